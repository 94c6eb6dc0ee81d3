package export

import (
	"fmt"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/xuri/excelize/v2"
)

const (
	lineItemsSheet = "Guias"
	mappingsSheet  = "Mapeos"
)

// PreviewWorkbook lays out the aggregated line items and the product mappings
// that a generation request would carry.
func PreviewWorkbook(doc model.ShipmentDocument, items []model.AggregatedLineItem, mappings []model.ProductMapping) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), lineItemsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(mappingsSheet); err != nil {
		return nil, fmt.Errorf("create mappings sheet: %w", err)
	}

	names := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if m.CodigoAgrocalidad != "" {
			names[m.CodigoAgrocalidad] = m.NombreComun
		}
	}

	set := func(sheet string, col, row int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, value)
	}

	set(lineItemsSheet, 1, 1, "guiNumero")
	set(lineItemsSheet, 2, 1, doc.GuideNumber)
	set(lineItemsSheet, 3, 1, "docNumero")
	set(lineItemsSheet, 4, 1, doc.ID)

	headers := []string{"idPagador", "nombrePagador", "codigoAgrocalidad", "nombreComun", "cajas", "tallos"}
	for i, h := range headers {
		set(lineItemsSheet, i+1, 3, h)
	}

	var boxes, stems int
	for i, li := range items {
		r := i + 4
		set(lineItemsSheet, 1, r, li.PayerID)
		set(lineItemsSheet, 2, r, li.PayerName)
		set(lineItemsSheet, 3, r, li.Code)
		set(lineItemsSheet, 4, r, names[li.Code])
		set(lineItemsSheet, 5, r, li.Boxes)
		set(lineItemsSheet, 6, r, li.Stems)
		boxes += li.Boxes
		stems += li.Stems
	}
	totalRow := len(items) + 4
	set(lineItemsSheet, 4, totalRow, "TOTAL")
	set(lineItemsSheet, 5, totalRow, boxes)
	set(lineItemsSheet, 6, totalRow, stems)

	for i, h := range []string{"codigoOriginal", "codigoAgrocalidad", "nombreComun", "confianza"} {
		set(mappingsSheet, i+1, 1, h)
	}
	for i, m := range mappings {
		r := i + 2
		set(mappingsSheet, 1, r, m.OriginalCode)
		set(mappingsSheet, 2, r, m.CodigoAgrocalidad)
		set(mappingsSheet, 3, r, m.NombreComun)
		set(mappingsSheet, 4, r, m.Confidence)
	}

	_ = f.SetColWidth(lineItemsSheet, "B", "B", 32)
	_ = f.SetColWidth(lineItemsSheet, "D", "D", 28)
	return f, nil
}
