package service

import "github.com/OpenNSW/fito/internal/fito/model"

// Aggregate groups line items by payer and resolved catalog code, summing boxes
// and stems. Lines without any quantity are skipped. Groups keep the order in
// which their key first appears and the first payer name seen.
func Aggregate(items []model.ShipmentLineItem, lookup map[string]string) []model.AggregatedLineItem {
	index := make(map[string]int, len(items))
	out := make([]model.AggregatedLineItem, 0, len(items))

	for _, item := range items {
		if !item.HasQuantity() {
			continue
		}

		payer := model.NoPayerID
		if item.PayerID != nil {
			payer = *item.PayerID
		}
		code := lookup[item.ProductCode]
		if code == "" {
			code = item.ProductCode
		}

		key := payer + "|" + code
		if i, ok := index[key]; ok {
			out[i].Boxes += item.Boxes
			out[i].Stems += item.Stems
			continue
		}
		index[key] = len(out)
		out = append(out, model.AggregatedLineItem{
			PayerID:   payer,
			PayerName: item.PayerName,
			Code:      code,
			Boxes:     item.Boxes,
			Stems:     item.Stems,
		})
	}
	return out
}

// Totals sums boxes and stems over aggregated items.
func Totals(items []model.AggregatedLineItem) (boxes, stems int) {
	for _, item := range items {
		boxes += item.Boxes
		stems += item.Stems
	}
	return boxes, stems
}
