package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/fito/service"
	"github.com/OpenNSW/fito/internal/metrics"
	"github.com/google/uuid"
)

// Step is a wizard page.
type Step int

const (
	StepSelectShipment Step = iota
	StepConfigure
	StepMapProducts
	StepGenerate
)

func (s Step) String() string {
	switch s {
	case StepSelectShipment:
		return "SELECT_SHIPMENT"
	case StepConfigure:
		return "CONFIGURE"
	case StepMapProducts:
		return "MAP_PRODUCTS"
	case StepGenerate:
		return "GENERATE"
	default:
		return fmt.Sprintf("STEP_%d", int(s))
	}
}

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrStepIncomplete  = errors.New("current step is incomplete")
	ErrWrongStep       = errors.New("operation not available at the current step")
	ErrNoShipment      = errors.New("no shipment selected")
)

// StepError explains why the wizard refused to advance.
type StepError struct {
	Step       Step              `json:"step"`
	Reason     string            `json:"reason"`
	Fields     map[string]string `json:"fields,omitempty"`
	Unresolved []string          `json:"unresolvedCodes,omitempty"`
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Step, e.Reason)
	if len(e.Unresolved) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Unresolved, ", "))
	}
	return b.String()
}

func (e *StepError) Unwrap() error {
	return ErrStepIncomplete
}

// Catalog is everything the wizard needs from the external service.
type Catalog interface {
	service.ShipmentSource
	service.DestinationCatalog
	service.ProductCatalog
	service.GenerationClient
}

// JobRecorder persists the outcome of submitted generation jobs.
type JobRecorder interface {
	JobAccepted(ctx context.Context, sessionID uuid.UUID, shipment model.ShipmentDocument, req model.GenerateRequest, resp model.GenerateResponse)
	JobFinished(ctx context.Context, job model.GenerationJob)
}

// Deps are shared by every session of a Manager.
type Deps struct {
	Catalog          Catalog
	Resolver         *service.DestinationResolver
	Recorder         JobRecorder
	Metrics          *metrics.FitoMetrics
	PollInterval     time.Duration
	MatchConcurrency int
}

// Form field keys tracked by the autofill.
const (
	fieldConsigneeName    = "nombreConsignatario"
	fieldConsigneeAddress = "direccionConsignatario"
	fieldDestinationPort  = "puertoDestino"
)
