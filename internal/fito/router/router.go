package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/OpenNSW/fito/internal/archive"
	"github.com/OpenNSW/fito/internal/catalog"
	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/fito/service"
	"github.com/OpenNSW/fito/internal/fito/wizard"
	"github.com/OpenNSW/fito/internal/history"
)

// APIPrefix is the mount point of every FITO endpoint.
const APIPrefix = "/api/v1/fito"

// ReferenceData is the read-only catalog surface used outside of a session.
type ReferenceData interface {
	service.ShipmentSource
	ListSubtypes(ctx context.Context) ([]string, error)
	ListPorts(ctx context.Context, ecuador bool) ([]model.Port, error)
	SearchPorts(ctx context.Context, query string, ecuador bool) ([]model.Port, error)
}

// HistoryStore is the query side of the generation audit log.
type HistoryStore interface {
	List(ctx context.Context, filter history.ListFilter) (*history.ListResult, error)
	GetByJobID(ctx context.Context, jobID string) (*history.GenerationRecord, error)
}

// ArchiveReader serves archived certificate files.
type ArchiveReader interface {
	Open(ctx context.Context, jobID string) (io.ReadCloser, string, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// FitoRouter exposes the certificate wizard over HTTP.
type FitoRouter struct {
	sessions  *wizard.Manager
	reference ReferenceData
	selector  *service.ShipmentSelector
	history   HistoryStore
	archive   ArchiveReader
	health    HealthCheck
}

// NewFitoRouter wires the handlers. history, archive and health may be nil;
// the matching endpoints then answer 503 or report only the service itself.
func NewFitoRouter(sessions *wizard.Manager, reference ReferenceData, store HistoryStore, archive ArchiveReader, health HealthCheck) *FitoRouter {
	return &FitoRouter{
		sessions:  sessions,
		reference: reference,
		selector:  service.NewShipmentSelector(reference),
		history:   store,
		archive:   archive,
		health:    health,
	}
}

// Register mounts every endpoint on mux.
func (fr *FitoRouter) Register(mux *http.ServeMux) {
	p := APIPrefix

	mux.HandleFunc("GET "+p+"/shipments", fr.HandleListShipments)
	mux.HandleFunc("GET "+p+"/shipments/{id}/items", fr.HandleListShipmentItems)
	mux.HandleFunc("GET "+p+"/subtypes", fr.HandleListSubtypes)
	mux.HandleFunc("GET "+p+"/ports", fr.HandleListPorts)

	mux.HandleFunc("POST "+p+"/sessions", fr.HandleCreateSession)
	mux.HandleFunc("GET "+p+"/sessions/{id}", fr.HandleGetSession)
	mux.HandleFunc("DELETE "+p+"/sessions/{id}", fr.HandleCloseSession)

	mux.HandleFunc("POST "+p+"/sessions/{id}/shipment", fr.HandleSelectShipment)
	mux.HandleFunc("PUT "+p+"/sessions/{id}/config", fr.HandleUpdateConfig)
	mux.HandleFunc("POST "+p+"/sessions/{id}/next", fr.HandleNext)
	mux.HandleFunc("POST "+p+"/sessions/{id}/back", fr.HandleBack)
	mux.HandleFunc("POST "+p+"/sessions/{id}/destination/search", fr.HandleSearchDestination)

	mux.HandleFunc("PUT "+p+"/sessions/{id}/mappings/subtype", fr.HandleApplyGlobalSubtype)
	mux.HandleFunc("PUT "+p+"/sessions/{id}/mappings/{code}/subtype", fr.HandleSetSubtype)
	mux.HandleFunc("GET "+p+"/sessions/{id}/mappings/{code}/search", fr.HandleSearchProducts)
	mux.HandleFunc("PUT "+p+"/sessions/{id}/mappings/{code}", fr.HandleSelectProduct)
	mux.HandleFunc("DELETE "+p+"/sessions/{id}/mappings/{code}", fr.HandleClearProduct)

	mux.HandleFunc("GET "+p+"/sessions/{id}/preview", fr.HandlePreview)
	mux.HandleFunc("GET "+p+"/sessions/{id}/preview.xlsx", fr.HandlePreviewWorkbook)

	mux.HandleFunc("POST "+p+"/sessions/{id}/generate", fr.HandleGenerate)
	mux.HandleFunc("GET "+p+"/sessions/{id}/job", fr.HandleGetJob)
	mux.HandleFunc("DELETE "+p+"/sessions/{id}/job", fr.HandleCancelJob)

	mux.HandleFunc("GET "+p+"/history", fr.HandleListHistory)
	mux.HandleFunc("GET "+p+"/history/{jobId}", fr.HandleGetHistory)
	mux.HandleFunc("GET "+p+"/archive/{jobId}", fr.HandleGetArchive)

	mux.HandleFunc("GET /health", fr.HandleHealth)
}

// HandleHealth handles GET /health
func (fr *FitoRouter) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if fr.health != nil {
		if err := fr.health(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"service": "fito",
				"error":   err.Error(),
			})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "fito",
	})
}

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// writeServiceError maps a domain error to its HTTP status. A StepError also
// carries the offending fields and product codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "action", action, "error", err)
	}

	var stepErr *wizard.StepError
	if errors.As(err, &stepErr) {
		writeJSONResponse(w, status, map[string]any{
			"success": false,
			"error":   err.Error(),
			"details": stepErr,
		})
		return
	}
	writeJSONError(w, status, action+": "+err.Error())
}

func statusFor(err error) int {
	var upstream *catalog.StatusError
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound),
		errors.Is(err, service.ErrShipmentNotFound),
		errors.Is(err, service.ErrUnknownProductCode),
		errors.Is(err, history.ErrRecordNotFound),
		errors.Is(err, archive.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrStepIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, wizard.ErrNoShipment),
		errors.Is(err, service.ErrJobInFlight):
		return http.StatusConflict
	case errors.Is(err, service.ErrSubtypeRequired),
		errors.Is(err, archive.ErrInvalidJobID):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
