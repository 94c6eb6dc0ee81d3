package service

import (
	"context"
	"errors"
	"testing"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestShipmentSelector_LoadLineItems_Filters(t *testing.T) {
	source := new(MockShipmentSource)
	source.On("ListLineItems", mock.Anything, int64(10)).Return([]model.ShipmentLineItem{
		{LineNumber: 1, ProductCode: "A1", Boxes: 0, Stems: 0},
		{LineNumber: 2, ProductCode: "A1", Boxes: 5, Stems: 0},
		{LineNumber: 3, ProductCode: "B2", Boxes: 3, Stems: 2},
		{LineNumber: 4, ProductCode: "C3", Boxes: 0, Stems: 9},
	}, nil)

	items, err := NewShipmentSelector(source).LoadLineItems(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].LineNumber)
	source.AssertExpectations(t)
}

func TestShipmentSelector_LoadLineItems_Error(t *testing.T) {
	source := new(MockShipmentSource)
	source.On("ListLineItems", mock.Anything, int64(10)).Return(nil, errors.New("boom"))

	_, err := NewShipmentSelector(source).LoadLineItems(context.Background(), 10)
	assert.ErrorContains(t, err, "shipment 10")
}

func TestShipmentSelector_FindShipment(t *testing.T) {
	source := new(MockShipmentSource)
	source.On("ListShipments", mock.Anything).Return([]model.ShipmentDocument{
		{ID: 1, GuideNumber: "G-1"},
		{ID: 2, GuideNumber: "G-2"},
	}, nil)
	selector := NewShipmentSelector(source)

	doc, err := selector.FindShipment(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "G-2", doc.GuideNumber)

	_, err = selector.FindShipment(context.Background(), 3)
	assert.ErrorIs(t, err, ErrShipmentNotFound)
}

func TestDistinctProductCodes(t *testing.T) {
	items := []model.ShipmentLineItem{
		{ProductCode: "B2"}, {ProductCode: "A1"}, {ProductCode: "B2"}, {ProductCode: "C3"}, {ProductCode: "A1"},
	}
	assert.Equal(t, []string{"B2", "A1", "C3"}, DistinctProductCodes(items))
	assert.Empty(t, DistinctProductCodes(nil))
}
