package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/fito/service"
	"github.com/google/uuid"
)

// Session holds the state of one operator walking through the wizard.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	deps     *Deps
	selector *service.ShipmentSelector
	tracker  *service.JobTracker
	listener *sessionListener

	mu          sync.Mutex
	step        Step
	shipment    *model.ShipmentDocument
	lineItems   []model.ShipmentLineItem
	config      model.GenerationConfig
	autofill    *service.Autofill
	destination *service.DestinationResolution
	mapper      *service.ProductMapper
	lastSeen    time.Time
}

// View is the JSON representation of a session.
type View struct {
	ID            uuid.UUID                      `json:"id"`
	Step          Step                           `json:"step"`
	StepName      string                         `json:"stepName"`
	Shipment      *model.ShipmentDocument        `json:"shipment,omitempty"`
	LineItems     []model.ShipmentLineItem       `json:"lineItems"`
	Config        model.GenerationConfig         `json:"config"`
	Destination   *service.DestinationResolution `json:"destination,omitempty"`
	Mappings      []service.MappingEntry         `json:"mappings"`
	MappingsValid bool                           `json:"mappingsValid"`
	Job           service.TrackerSnapshot        `json:"job"`
	CreatedAt     time.Time                      `json:"createdAt"`
}

// Preview is the aggregated payload that Generate would submit.
type Preview struct {
	Shipment  model.ShipmentDocument     `json:"shipment"`
	Config    model.GenerationConfig     `json:"config"`
	Mappings  []model.ProductMapping     `json:"productMappings"`
	LineItems []model.AggregatedLineItem `json:"guiasHijas"`
	Boxes     int                        `json:"totalCajas"`
	Stems     int                        `json:"totalTallos"`
}

func newSession(deps *Deps) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		deps:      deps,
		selector:  service.NewShipmentSelector(deps.Catalog),
		autofill:  service.NewAutofill(),
		lastSeen:  now,
	}
	s.listener = &sessionListener{sessionID: s.ID, recorder: deps.Recorder}
	var listener service.JobListener
	if deps.Recorder != nil {
		listener = s.listener
	}
	s.tracker = service.NewJobTracker(deps.Catalog, deps.PollInterval, listener, deps.Metrics)
	return s
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Step returns the current wizard page.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// View returns a consistent snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		ID:          s.ID,
		Step:        s.step,
		StepName:    s.step.String(),
		LineItems:   append([]model.ShipmentLineItem{}, s.lineItems...),
		Config:      s.config,
		Destination: s.destination,
		Mappings:    []service.MappingEntry{},
		CreatedAt:   s.CreatedAt,
	}
	if s.shipment != nil {
		doc := *s.shipment
		v.Shipment = &doc
	}
	mapper := s.mapper
	s.mu.Unlock()

	if mapper != nil {
		v.Mappings = mapper.Entries()
		v.MappingsValid = mapper.Valid()
	}
	v.Job = s.tracker.Snapshot()
	return v
}

// ListShipments returns the candidate shipments for step 0.
func (s *Session) ListShipments(ctx context.Context) ([]model.ShipmentDocument, error) {
	return s.selector.ListShipments(ctx)
}

// SelectShipment loads a shipment's line items, seeds the product mapper and
// pre-fills the consignee and destination fields.
func (s *Session) SelectShipment(ctx context.Context, documentID int64) (View, error) {
	s.mu.Lock()
	if s.step != StepSelectShipment {
		s.mu.Unlock()
		return View{}, fmt.Errorf("%w: shipments are selected on %s, session is on %s", ErrWrongStep, StepSelectShipment, s.step)
	}
	s.mu.Unlock()

	doc, err := s.selector.FindShipment(ctx, documentID)
	if err != nil {
		return View{}, err
	}
	items, err := s.selector.LoadLineItems(ctx, documentID)
	if err != nil {
		return View{}, err
	}
	resolution := s.deps.Resolver.Resolve(ctx, doc.DestinationCode)
	mapper := service.NewProductMapper(s.deps.Catalog, service.DistinctProductCodes(items), s.deps.MatchConcurrency, s.deps.Metrics)

	s.mu.Lock()
	s.shipment = doc
	s.lineItems = items
	s.mapper = mapper
	s.destination = resolution

	if len(items) > 0 {
		name, address := service.ParseConsignee(items[0].Consignee)
		s.autofill.Apply(fieldConsigneeName, &s.config.ConsigneeName, name)
		s.autofill.Apply(fieldConsigneeAddress, &s.config.ConsigneeAddress, address)
	}
	port := ""
	if resolution != nil && resolution.Selected != nil {
		port = resolution.Selected.Code
	}
	s.autofill.Apply(fieldDestinationPort, &s.config.DestinationPort, port)
	s.mu.Unlock()

	slog.InfoContext(ctx, "shipment selected",
		"sessionID", s.ID,
		"documentID", doc.ID,
		"guideNumber", doc.GuideNumber,
		"lineItems", len(items),
		"productCodes", len(mapper.Codes()))

	return s.View(), nil
}

// UpdateConfig replaces the generation form.
func (s *Session) UpdateConfig(cfg model.GenerationConfig) View {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	return s.View()
}

// Next advances one step once the current step's gate is satisfied.
func (s *Session) Next() (View, error) {
	s.mu.Lock()
	if err := s.gateLocked(s.step); err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	if s.step == StepGenerate {
		s.mu.Unlock()
		return View{}, fmt.Errorf("%w: %s is the last step", ErrWrongStep, StepGenerate)
	}
	s.step++
	s.mu.Unlock()
	return s.View(), nil
}

// Back moves one step back. It never fails.
func (s *Session) Back() View {
	s.mu.Lock()
	if s.step > StepSelectShipment {
		s.step--
	}
	s.mu.Unlock()
	return s.View()
}

func (s *Session) gateLocked(step Step) error {
	switch step {
	case StepSelectShipment:
		if s.shipment == nil {
			return &StepError{Step: step, Reason: "no shipment selected"}
		}
		if len(s.lineItems) == 0 {
			return &StepError{Step: step, Reason: "shipment has no line items with boxes and stems"}
		}
	case StepConfigure:
		if err := s.config.Validate(); err != nil {
			var ve *model.ValidationError
			if errors.As(err, &ve) {
				return &StepError{Step: step, Reason: "generation settings are incomplete", Fields: ve.Fields}
			}
			return &StepError{Step: step, Reason: err.Error()}
		}
	case StepMapProducts:
		if s.mapper == nil || !s.mapper.Valid() {
			var unresolved []string
			if s.mapper != nil {
				unresolved = s.mapper.Unresolved()
			}
			return &StepError{Step: step, Reason: "every product code needs a catalog product", Unresolved: unresolved}
		}
	}
	return nil
}

func (s *Session) productMapper() (*service.ProductMapper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapper == nil {
		return nil, ErrNoShipment
	}
	return s.mapper, nil
}

// SearchDestinationPorts searches international ports for a manual destination pick.
func (s *Session) SearchDestinationPorts(ctx context.Context, query string) ([]model.Port, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < service.MinSearchLength {
		return []model.Port{}, nil
	}
	ports, err := s.deps.Catalog.SearchPorts(ctx, query, false)
	if err != nil {
		return nil, fmt.Errorf("failed to search destination ports: %w", err)
	}
	return ports, nil
}

// SetSubtype sets the subtype of one product code and auto-matches it.
func (s *Session) SetSubtype(ctx context.Context, code, subtype string) (service.MappingEntry, error) {
	pm, err := s.productMapper()
	if err != nil {
		return service.MappingEntry{}, err
	}
	return pm.SetSubtype(ctx, code, subtype)
}

// ApplyGlobalSubtype sets the same subtype on every product code.
func (s *Session) ApplyGlobalSubtype(ctx context.Context, subtype string) ([]service.MappingEntry, error) {
	pm, err := s.productMapper()
	if err != nil {
		return nil, err
	}
	return pm.ApplyGlobalSubtype(ctx, subtype)
}

// SearchProducts searches the catalog within the code's subtype.
func (s *Session) SearchProducts(ctx context.Context, code, query string) ([]model.ProductCatalogItem, error) {
	pm, err := s.productMapper()
	if err != nil {
		return nil, err
	}
	return pm.Search(ctx, code, query)
}

// SelectProduct records a manual pick for a product code.
func (s *Session) SelectProduct(code string, item model.ProductCatalogItem) (service.MappingEntry, error) {
	pm, err := s.productMapper()
	if err != nil {
		return service.MappingEntry{}, err
	}
	return pm.Select(code, item)
}

// ClearProduct drops the mapping of a product code.
func (s *Session) ClearProduct(code string) (service.MappingEntry, error) {
	pm, err := s.productMapper()
	if err != nil {
		return service.MappingEntry{}, err
	}
	return pm.Clear(code)
}

// Preview builds the request Generate would submit without submitting it.
func (s *Session) Preview() (Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewLocked()
}

func (s *Session) previewLocked() (Preview, error) {
	if s.shipment == nil || s.mapper == nil {
		return Preview{}, ErrNoShipment
	}
	items := service.Aggregate(s.lineItems, s.mapper.Lookup())
	boxes, stems := service.Totals(items)
	return Preview{
		Shipment:  *s.shipment,
		Config:    s.config,
		Mappings:  s.mapper.Mappings(),
		LineItems: items,
		Boxes:     boxes,
		Stems:     stems,
	}, nil
}

// Generate re-checks every gate and submits the aggregated request.
func (s *Session) Generate(ctx context.Context) (*model.GenerateResponse, error) {
	s.mu.Lock()
	if s.step != StepGenerate {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: generation runs on %s, session is on %s", ErrWrongStep, StepGenerate, s.step)
	}
	for _, step := range []Step{StepSelectShipment, StepConfigure, StepMapProducts} {
		if err := s.gateLocked(step); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	preview, err := s.previewLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	req := model.GenerateRequest{
		ShipmentIDs:     []int64{preview.Shipment.ID},
		Config:          preview.Config,
		ProductMappings: preview.Mappings,
		LineItems:       preview.LineItems,
	}
	s.listener.setShipment(preview.Shipment)

	slog.InfoContext(ctx, "submitting fito generation",
		"sessionID", s.ID,
		"documentID", preview.Shipment.ID,
		"lineItems", len(req.LineItems),
		"boxes", preview.Boxes,
		"stems", preview.Stems)

	return s.tracker.Submit(ctx, req)
}

// Job returns the tracker snapshot.
func (s *Session) Job() service.TrackerSnapshot {
	return s.tracker.Snapshot()
}

// CancelJob stops tracking the current job.
func (s *Session) CancelJob() {
	s.tracker.Cancel()
}

func (s *Session) busy() bool {
	switch s.tracker.State() {
	case service.TrackerSubmitting, service.TrackerTracking:
		return true
	}
	return false
}

// sessionListener forwards tracker events to the recorder with the session's shipment.
type sessionListener struct {
	sessionID uuid.UUID
	recorder  JobRecorder

	mu       sync.Mutex
	shipment model.ShipmentDocument
}

func (l *sessionListener) setShipment(doc model.ShipmentDocument) {
	l.mu.Lock()
	l.shipment = doc
	l.mu.Unlock()
}

func (l *sessionListener) OnJobAccepted(ctx context.Context, req model.GenerateRequest, resp model.GenerateResponse) {
	l.mu.Lock()
	doc := l.shipment
	l.mu.Unlock()
	l.recorder.JobAccepted(ctx, l.sessionID, doc, req, resp)
}

func (l *sessionListener) OnJobTerminal(ctx context.Context, job model.GenerationJob) {
	l.recorder.JobFinished(ctx, job)
}
