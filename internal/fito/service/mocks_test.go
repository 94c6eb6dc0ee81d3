package service

import (
	"context"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/stretchr/testify/mock"
)

type MockShipmentSource struct {
	mock.Mock
}

func (m *MockShipmentSource) ListShipments(ctx context.Context) ([]model.ShipmentDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ShipmentDocument), args.Error(1)
}

func (m *MockShipmentSource) ListLineItems(ctx context.Context, documentID int64) ([]model.ShipmentLineItem, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ShipmentLineItem), args.Error(1)
}

type MockDestinationCatalog struct {
	mock.Mock
}

func (m *MockDestinationCatalog) LookupDestination(ctx context.Context, code string) (*model.DestinationInfo, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DestinationInfo), args.Error(1)
}

func (m *MockDestinationCatalog) SearchPorts(ctx context.Context, query string, ecuador bool) ([]model.Port, error) {
	args := m.Called(ctx, query, ecuador)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Port), args.Error(1)
}

type MockProductCatalog struct {
	mock.Mock
}

func (m *MockProductCatalog) SearchProducts(ctx context.Context, query, subtype string) ([]model.ProductCatalogItem, error) {
	args := m.Called(ctx, query, subtype)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProductCatalogItem), args.Error(1)
}

type MockGenerationClient struct {
	mock.Mock
}

func (m *MockGenerationClient) Generate(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GenerateResponse), args.Error(1)
}

func (m *MockGenerationClient) JobStatus(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GenerationJob), args.Error(1)
}

func (m *MockGenerationClient) DownloadURL(jobID string) string {
	return "http://catalog.local/api/fito/download/" + jobID
}

type MockJobListener struct {
	mock.Mock
}

func (m *MockJobListener) OnJobAccepted(ctx context.Context, req model.GenerateRequest, resp model.GenerateResponse) {
	m.Called(ctx, req, resp)
}

func (m *MockJobListener) OnJobTerminal(ctx context.Context, job model.GenerationJob) {
	m.Called(ctx, job)
}

func strPtr(s string) *string {
	return &s
}
