package model

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// GenerationConfig is the operator-entered certificate configuration.
type GenerationConfig struct {
	RequestType        string `json:"tipoSolicitud" validate:"required"`
	LanguageCode       string `json:"codigoIdioma" validate:"required"`
	ProductionTypeCode string `json:"codigoTipoProduccion" validate:"required"`
	ShipDate           string `json:"fechaEmbarque" validate:"required,datetime=2006-01-02"`
	OriginPort         string `json:"puertoOrigen" validate:"required"`
	DestinationPort    string `json:"puertoDestino" validate:"required"`
	BrandName          string `json:"nombreMarca" validate:"required"`
	ConsigneeName      string `json:"nombreConsignatario" validate:"required"`
	ConsigneeAddress   string `json:"direccionConsignatario" validate:"required"`
	Notes              string `json:"observaciones,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidationError lists the offending fields keyed by their JSON name.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return "invalid configuration: " + strings.Join(parts, ", ")
}

// Validate reports every missing or malformed field. Notes are optional.
func (c GenerationConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("validate configuration: %w", err)
	}
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = validationMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return fmt.Sprintf("must match %s", fe.Param())
	}
	return "is invalid"
}

// JobStatus is the lifecycle state of a generation job as reported by the generation service.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether polling should stop on this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GenerationJob is the externally owned asynchronous generation unit.
type GenerationJob struct {
	ID             string    `json:"jobId"`
	Status         JobStatus `json:"status"`
	ProcessedCount int       `json:"processedCount"`
	TotalCount     int       `json:"totalCount"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Progress returns processed/total, or 0 when the total is unknown.
func (j GenerationJob) Progress() float64 {
	if j.TotalCount <= 0 {
		return 0
	}
	return float64(j.ProcessedCount) / float64(j.TotalCount)
}

// GenerateRequest is the submission body of POST /fito/generate.
type GenerateRequest struct {
	ShipmentIDs     []int64              `json:"guias"`
	Config          GenerationConfig     `json:"config"`
	ProductMappings []ProductMapping     `json:"productMappings"`
	LineItems       []AggregatedLineItem `json:"guiasHijas"`
}

// GenerateResponse acknowledges an accepted generation request.
type GenerateResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}
