package wizard

import (
	"context"
	"testing"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/fito/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(catalog *fakeCatalog, recorder JobRecorder) *Manager {
	return NewManager(Deps{
		Catalog:          catalog,
		Resolver:         service.NewDestinationResolver(catalog, nil),
		Recorder:         recorder,
		PollInterval:     5 * time.Millisecond,
		MatchConcurrency: 2,
	}, time.Hour)
}

func completeConfig(v View) model.GenerationConfig {
	cfg := v.Config
	cfg.RequestType = "NUEVA"
	cfg.LanguageCode = "ES"
	cfg.ProductionTypeCode = "CONVENCIONAL"
	cfg.ShipDate = "2026-10-20"
	cfg.OriginPort = "ECUIO"
	cfg.BrandName = "Andes Roses"
	return cfg
}

func TestSession_FullWalkthrough(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	recorder := new(MockRecorder)
	m := newTestManager(catalog, recorder)
	s := m.Create(ctx)

	recorder.On("JobAccepted", mock.Anything, s.ID,
		mock.MatchedBy(func(doc model.ShipmentDocument) bool { return doc.GuideNumber == "729-1234 5675" }),
		mock.Anything, mock.Anything).Once()
	recorder.On("JobFinished", mock.Anything, mock.MatchedBy(func(job model.GenerationJob) bool {
		return job.ID == "job-1" && job.Status == model.JobStatusCompleted
	})).Once()

	v, err := s.SelectShipment(ctx, 1)
	require.NoError(t, err)
	require.Len(t, v.LineItems, 2, "the line without boxes is dropped")
	assert.Equal(t, "Steppe Flowers", v.Config.ConsigneeName)
	assert.Equal(t, "Kabanbay 12 Astana", v.Config.ConsigneeAddress)
	assert.Equal(t, "KZNQZ", v.Config.DestinationPort)
	require.NotNil(t, v.Destination)
	assert.Equal(t, "ASTANA", v.Destination.SearchTerm)
	require.Len(t, v.Mappings, 1)
	assert.Equal(t, "A1", v.Mappings[0].OriginalCode)

	v, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, StepConfigure, v.Step)

	s.UpdateConfig(completeConfig(v))
	v, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, StepMapProducts, v.Step)

	_, err = s.ApplyGlobalSubtype(ctx, "ROSA")
	require.NoError(t, err)
	v, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, StepGenerate, v.Step)

	preview, err := s.Preview()
	require.NoError(t, err)
	assert.Equal(t, []model.AggregatedLineItem{
		{PayerID: "P1", PayerName: "Finca Uno", Code: "AGR-100", Boxes: 8, Stems: 160},
	}, preview.LineItems)
	assert.Equal(t, 8, preview.Boxes)
	assert.Equal(t, 160, preview.Stems)

	resp, err := s.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)

	assert.Eventually(t, func() bool { return s.Job().State == service.TrackerDone }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "http://catalog.local/api/fito/download/job-1", s.Job().DownloadURL)

	s.tracker.Wait()
	reqs := catalog.submitted()
	require.Len(t, reqs, 1)
	assert.Equal(t, []int64{1}, reqs[0].ShipmentIDs)
	assert.Equal(t, "AGR-100", reqs[0].ProductMappings[0].CodigoAgrocalidad)
	recorder.AssertExpectations(t)
}

func TestSession_Gates(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(newFakeCatalog(), nil)
	s := m.Create(ctx)

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrStepIncomplete)

	_, err = s.SelectShipment(ctx, 1)
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	require.ErrorIs(t, err, ErrStepIncomplete)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepConfigure, stepErr.Step)
	assert.Contains(t, stepErr.Fields, "fechaEmbarque")
	assert.Contains(t, stepErr.Fields, "tipoSolicitud")
	assert.NotContains(t, stepErr.Fields, "nombreConsignatario", "autofilled fields are already valid")

	cfg := completeConfig(s.View())
	cfg.ShipDate = "20/10/2026"
	s.UpdateConfig(cfg)
	_, err = s.Next()
	require.ErrorAs(t, err, &stepErr)
	assert.Contains(t, stepErr.Fields, "fechaEmbarque")

	s.UpdateConfig(completeConfig(s.View()))
	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepMapProducts, stepErr.Step)
	assert.Equal(t, []string{"A1"}, stepErr.Unresolved)

	_, err = s.Generate(ctx)
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestSession_BackNeverFails(t *testing.T) {
	s := newTestManager(newFakeCatalog(), nil).Create(context.Background())
	v := s.Back()
	assert.Equal(t, StepSelectShipment, v.Step)
}

func TestSession_ReselectKeepsOperatorEdits(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(newFakeCatalog(), nil).Create(ctx)

	v, err := s.SelectShipment(ctx, 1)
	require.NoError(t, err)

	cfg := v.Config
	cfg.ConsigneeName = "Typed By Operator"
	s.UpdateConfig(cfg)

	v, err = s.SelectShipment(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Typed By Operator", v.Config.ConsigneeName)
	assert.Equal(t, "Aalsmeer", v.Config.ConsigneeAddress)
	assert.Equal(t, "NLAMS", v.Config.DestinationPort)
	require.NotNil(t, v.Destination)
	assert.Len(t, v.Destination.Alternatives, 2)
	assert.Equal(t, []string{"C3"}, []string{v.Mappings[0].OriginalCode})
}

func TestSession_SelectShipmentErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(newFakeCatalog(), nil).Create(ctx)

	_, err := s.SelectShipment(ctx, 42)
	assert.ErrorIs(t, err, service.ErrShipmentNotFound)

	_, err = s.SelectShipment(ctx, 1)
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.SelectShipment(ctx, 2)
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestSession_MappingNeedsShipment(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(newFakeCatalog(), nil).Create(ctx)

	_, err := s.SetSubtype(ctx, "A1", "ROSA")
	assert.ErrorIs(t, err, ErrNoShipment)
	_, err = s.ApplyGlobalSubtype(ctx, "ROSA")
	assert.ErrorIs(t, err, ErrNoShipment)
	_, err = s.SearchProducts(ctx, "A1", "ro")
	assert.ErrorIs(t, err, ErrNoShipment)
	_, err = s.SelectProduct("A1", model.ProductCatalogItem{Code: "AGR-1"})
	assert.ErrorIs(t, err, ErrNoShipment)
	_, err = s.ClearProduct("A1")
	assert.ErrorIs(t, err, ErrNoShipment)
	_, err = s.Preview()
	assert.ErrorIs(t, err, ErrNoShipment)
}

func TestSession_FailedJobIsReported(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog()
	catalog.final = model.JobStatusFailed
	s := newTestManager(catalog, nil).Create(ctx)

	v, err := s.SelectShipment(ctx, 1)
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)
	s.UpdateConfig(completeConfig(v))
	_, err = s.Next()
	require.NoError(t, err)
	_, err = s.SelectProduct("A1", model.ProductCatalogItem{Code: "AGR-7", CommonName: "Rosa roja"})
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Generate(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.Job().State == service.TrackerFailed }, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Job().DownloadURL)
}

func TestSession_SearchDestinationPorts(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(newFakeCatalog(), nil).Create(ctx)

	ports, err := s.SearchDestinationPorts(ctx, " A ")
	require.NoError(t, err)
	assert.Empty(t, ports)

	ports, err = s.SearchDestinationPorts(ctx, "Amsterdam")
	require.NoError(t, err)
	assert.Len(t, ports, 2)
}
