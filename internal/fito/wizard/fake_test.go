package wizard

import (
	"context"
	"errors"
	"sync"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// fakeCatalog serves fixed shipment, port and product data.
type fakeCatalog struct {
	shipments    []model.ShipmentDocument
	lineItems    map[int64][]model.ShipmentLineItem
	destinations map[string]*model.DestinationInfo
	ports        map[string][]model.Port
	products     map[string][]model.ProductCatalogItem // keyed by subtype

	mu       sync.Mutex
	requests []model.GenerateRequest
	final    model.JobStatus
}

func (f *fakeCatalog) ListShipments(ctx context.Context) ([]model.ShipmentDocument, error) {
	return f.shipments, nil
}

func (f *fakeCatalog) ListLineItems(ctx context.Context, documentID int64) ([]model.ShipmentLineItem, error) {
	return f.lineItems[documentID], nil
}

func (f *fakeCatalog) LookupDestination(ctx context.Context, code string) (*model.DestinationInfo, error) {
	return f.destinations[code], nil
}

func (f *fakeCatalog) SearchPorts(ctx context.Context, query string, ecuador bool) ([]model.Port, error) {
	return f.ports[query], nil
}

func (f *fakeCatalog) SearchProducts(ctx context.Context, query, subtype string) ([]model.ProductCatalogItem, error) {
	return f.products[subtype], nil
}

func (f *fakeCatalog) Generate(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(req.LineItems) == 0 {
		return nil, errors.New("no line items")
	}
	return &model.GenerateResponse{JobID: "job-1", Message: "accepted", Count: len(req.LineItems)}, nil
}

func (f *fakeCatalog) JobStatus(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	status := f.final
	if status == "" {
		status = model.JobStatusCompleted
	}
	return &model.GenerationJob{ID: jobID, Status: status, ProcessedCount: 1, TotalCount: 1}, nil
}

func (f *fakeCatalog) DownloadURL(jobID string) string {
	return "http://catalog.local/api/fito/download/" + jobID
}

func (f *fakeCatalog) submitted() []model.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.GenerateRequest{}, f.requests...)
}

func strPtr(s string) *string {
	return &s
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		shipments: []model.ShipmentDocument{
			{ID: 1, GuideNumber: "729-1234 5675", DestinationCode: "TSE"},
			{ID: 2, GuideNumber: "729-9999 0001", DestinationCode: "AMS"},
		},
		lineItems: map[int64][]model.ShipmentLineItem{
			1: {
				{DocumentID: 1, LineNumber: 1, ProductCode: "A1", Boxes: 5, Stems: 100, PayerID: strPtr("P1"), PayerName: "Finca Uno", Consignee: "Steppe Flowers||Kabanbay 12||Astana"},
				{DocumentID: 1, LineNumber: 2, ProductCode: "A1", Boxes: 3, Stems: 60, PayerID: strPtr("P1"), PayerName: "Finca Uno", Consignee: "Steppe Flowers||Kabanbay 12||Astana"},
				{DocumentID: 1, LineNumber: 3, ProductCode: "B2", Boxes: 0, Stems: 20, PayerID: strPtr("P1"), PayerName: "Finca Uno"},
			},
			2: {
				{DocumentID: 2, LineNumber: 1, ProductCode: "C3", Boxes: 2, Stems: 40, Consignee: "Tulip BV||Aalsmeer"},
			},
		},
		destinations: map[string]*model.DestinationInfo{
			"AMS": {Code: "AMS", Name: "Amsterdam"},
		},
		ports: map[string][]model.Port{
			"ASTANA":    {{Code: "KZNQZ", Name: "Astana"}},
			"Amsterdam": {{Code: "NLAMS", Name: "Amsterdam Schiphol"}, {Code: "NLRTM", Name: "Rotterdam"}},
		},
		products: map[string][]model.ProductCatalogItem{
			"ROSA": {{Code: "AGR-100", CommonName: "Rosa"}},
		},
	}
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) JobAccepted(ctx context.Context, sessionID uuid.UUID, shipment model.ShipmentDocument, req model.GenerateRequest, resp model.GenerateResponse) {
	m.Called(ctx, sessionID, shipment, req, resp)
}

func (m *MockRecorder) JobFinished(ctx context.Context, job model.GenerationJob) {
	m.Called(ctx, job)
}
