package sandbox

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/OpenNSW/fito/internal/fito/model"
)

// Handler serves the catalog and generation API that the wizard talks to
type Handler struct {
	fixtures *Fixtures
	runner   *Runner
	token    string
}

// NewHandler creates a new sandbox handler. A non-empty token is required as a bearer token.
func NewHandler(fixtures *Fixtures, runner *Runner, token string) *Handler {
	return &Handler{
		fixtures: fixtures,
		runner:   runner,
		token:    token,
	}
}

// Register mounts the API under basePath (e.g. "/api").
func (h *Handler) Register(mux *http.ServeMux, basePath string) {
	p := strings.TrimRight(basePath, "/")
	route := func(pattern string, fn http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+p+path, h.authorize(fn))
	}

	route("GET /fito/guias", h.HandleListShipments)
	route("GET /fito/guias/{id}/hijas", h.HandleListLineItems)
	route("GET /fito/destino/{code}", h.HandleLookupDestination)
	route("POST /fito/generate", h.HandleGenerate)
	route("GET /fito/status/{jobId}", h.HandleStatus)
	route("GET /fito/download/{jobId}", h.HandleDownload)

	route("GET /catalogs/puertos", h.HandleListPorts)
	route("GET /catalogs/puertos/search", h.HandleSearchPorts)
	route("GET /catalogs/productos/subtipos", h.HandleListSubtypes)
	route("GET /catalogs/productos/autocomplete", h.HandleAutocomplete)

	mux.HandleFunc("GET /health", h.HandleHealth)
}

func (h *Handler) authorize(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				WriteJSONError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next(w, r)
	})
}

// HandleListShipments handles GET /fito/guias
func (h *Handler) HandleListShipments(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, h.fixtures.Shipments)
}

// HandleListLineItems handles GET /fito/guias/{id}/hijas
// Lines are returned unfiltered, including those without quantity.
func (h *Handler) HandleListLineItems(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid document number")
		return
	}
	if _, ok := h.fixtures.FindShipment(id); !ok {
		WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("shipment %d not found", id))
		return
	}
	items := h.fixtures.LineItems[id]
	if items == nil {
		items = []model.ShipmentLineItem{}
	}
	WriteJSONResponse(w, http.StatusOK, items)
}

// HandleLookupDestination handles GET /fito/destino/{code}
// Unknown codes answer null, as the registry does.
func (h *Handler) HandleLookupDestination(w http.ResponseWriter, r *http.Request) {
	info, ok := h.fixtures.Destinations[strings.ToUpper(r.PathValue("code"))]
	if !ok {
		WriteJSONResponse(w, http.StatusOK, nil)
		return
	}
	WriteJSONResponse(w, http.StatusOK, info)
}

// HandleListPorts handles GET /catalogs/puertos?esEcuador=
func (h *Handler) HandleListPorts(w http.ResponseWriter, r *http.Request) {
	ecuador, ok := parseEcuador(w, r)
	if !ok {
		return
	}
	WriteJSONResponse(w, http.StatusOK, h.fixtures.PortList(ecuador))
}

// HandleSearchPorts handles GET /catalogs/puertos/search?q=&esEcuador=
func (h *Handler) HandleSearchPorts(w http.ResponseWriter, r *http.Request) {
	ecuador, ok := parseEcuador(w, r)
	if !ok {
		return
	}
	WriteJSONResponse(w, http.StatusOK, h.fixtures.SearchPorts(r.URL.Query().Get("q"), ecuador))
}

// HandleListSubtypes handles GET /catalogs/productos/subtipos
func (h *Handler) HandleListSubtypes(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, h.fixtures.Subtypes)
}

// HandleAutocomplete handles GET /catalogs/productos/autocomplete?q=&subtipo=
func (h *Handler) HandleAutocomplete(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	WriteJSONResponse(w, http.StatusOK, h.fixtures.SearchProducts(query.Get("q"), query.Get("subtipo")))
}

// HandleGenerate handles POST /fito/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.runner.Submit(ctx, req)
	if err != nil {
		var ve *model.ValidationError
		switch {
		case errors.Is(err, ErrEmptyRequest), errors.As(err, &ve):
			WriteJSONError(w, http.StatusBadRequest, err.Error())
		default:
			slog.ErrorContext(ctx, "failed to accept generation request", "error", err)
			WriteJSONError(w, http.StatusInternalServerError, "Failed to accept request: "+err.Error())
		}
		return
	}
	WriteJSONResponse(w, http.StatusAccepted, resp)
}

// HandleStatus handles GET /fito/status/{jobId}
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.runner.Status(r.Context(), r.PathValue("jobId"))
	if err != nil {
		h.writeJobError(w, r, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, job)
}

// HandleDownload handles GET /fito/download/{jobId}
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	data, err := h.runner.Download(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xml"`, jobID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.WarnContext(r.Context(), "failed to write certificate download", "jobID", jobID, "error", err)
	}
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "fito-sandbox",
	})
}

func (h *Handler) writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		WriteJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrJobNotReady):
		WriteJSONError(w, http.StatusConflict, err.Error())
	default:
		slog.ErrorContext(r.Context(), "failed to load job", "error", err)
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseEcuador(w http.ResponseWriter, r *http.Request) (bool, bool) {
	v := r.URL.Query().Get("esEcuador")
	if v == "" {
		return false, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "esEcuador must be true or false")
		return false, false
	}
	return b, true
}

// WriteJSONResponse writes a JSON response with the given status code
func WriteJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteJSONError writes a JSON error response
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	WriteJSONResponse(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
