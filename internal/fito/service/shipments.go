package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OpenNSW/fito/internal/fito/model"
)

// ErrShipmentNotFound is returned when a document id is not among the candidate shipments.
var ErrShipmentNotFound = errors.New("shipment not found")

// ShipmentSource is the read-only legacy system of record.
type ShipmentSource interface {
	ListShipments(ctx context.Context) ([]model.ShipmentDocument, error)
	ListLineItems(ctx context.Context, documentID int64) ([]model.ShipmentLineItem, error)
}

// ShipmentSelector lists candidate shipments and loads their qualifying line items.
type ShipmentSelector struct {
	source ShipmentSource
}

func NewShipmentSelector(source ShipmentSource) *ShipmentSelector {
	return &ShipmentSelector{source: source}
}

func (s *ShipmentSelector) ListShipments(ctx context.Context) ([]model.ShipmentDocument, error) {
	docs, err := s.source.ListShipments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	return docs, nil
}

// FindShipment returns the candidate shipment with the given id.
func (s *ShipmentSelector) FindShipment(ctx context.Context, documentID int64) (*model.ShipmentDocument, error) {
	docs, err := s.ListShipments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == documentID {
			return &docs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrShipmentNotFound, documentID)
}

// LoadLineItems fetches the child lines of a shipment and keeps only those
// with both boxes and stems.
func (s *ShipmentSelector) LoadLineItems(ctx context.Context, documentID int64) ([]model.ShipmentLineItem, error) {
	items, err := s.source.ListLineItems(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items for shipment %d: %w", documentID, err)
	}

	kept := make([]model.ShipmentLineItem, 0, len(items))
	for _, item := range items {
		if item.Shippable() {
			kept = append(kept, item)
		}
	}
	if dropped := len(items) - len(kept); dropped > 0 {
		slog.DebugContext(ctx, "dropped line items without quantity",
			"documentID", documentID,
			"dropped", dropped,
			"kept", len(kept))
	}
	return kept, nil
}

// DistinctProductCodes returns each product code once, in first-occurrence order.
func DistinctProductCodes(items []model.ShipmentLineItem) []string {
	seen := make(map[string]struct{}, len(items))
	codes := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductCode]; ok {
			continue
		}
		seen[item.ProductCode] = struct{}{}
		codes = append(codes, item.ProductCode)
	}
	return codes
}
