package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/OpenNSW/fito/internal/fito/export"
	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/fito/wizard"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type selectShipmentRequest struct {
	DocumentID int64 `json:"documentId"`
}

type subtypeRequest struct {
	Subtype string `json:"subtype"`
}

type searchRequest struct {
	Query string `json:"q"`
}

// session resolves the {id} path value to a live session, writing the error response on failure.
func (fr *FitoRouter) session(w http.ResponseWriter, r *http.Request) (*wizard.Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid session id format")
		return nil, false
	}
	s, err := fr.sessions.Get(id)
	if err != nil {
		writeServiceError(w, r, "failed to load session", err)
		return nil, false
	}
	return s, true
}

// HandleCreateSession handles POST /api/v1/fito/sessions
func (fr *FitoRouter) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := fr.sessions.Create(r.Context())
	writeJSONResponse(w, http.StatusCreated, s.View())
}

// HandleGetSession handles GET /api/v1/fito/sessions/{id}
func (fr *FitoRouter) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, s.View())
}

// HandleCloseSession handles DELETE /api/v1/fito/sessions/{id}
func (fr *FitoRouter) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid session id format")
		return
	}
	if err := fr.sessions.Close(r.Context(), id); err != nil {
		writeServiceError(w, r, "failed to close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSelectShipment handles POST /api/v1/fito/sessions/{id}/shipment
// Request body: {"documentId": 123}
func (fr *FitoRouter) HandleSelectShipment(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	var req selectShipmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID <= 0 {
		writeJSONError(w, http.StatusBadRequest, "documentId is required")
		return
	}
	v, err := s.SelectShipment(r.Context(), req.DocumentID)
	if err != nil {
		writeServiceError(w, r, "failed to select shipment", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, v)
}

// HandleUpdateConfig handles PUT /api/v1/fito/sessions/{id}/config
// Request body: GenerationConfig. Validation happens when advancing.
func (fr *FitoRouter) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	var cfg model.GenerationConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	writeJSONResponse(w, http.StatusOK, s.UpdateConfig(cfg))
}

// HandleNext handles POST /api/v1/fito/sessions/{id}/next
func (fr *FitoRouter) HandleNext(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	v, err := s.Next()
	if err != nil {
		writeServiceError(w, r, "cannot advance", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, v)
}

// HandleBack handles POST /api/v1/fito/sessions/{id}/back
func (fr *FitoRouter) HandleBack(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, s.Back())
}

// HandleSearchDestination handles POST /api/v1/fito/sessions/{id}/destination/search
// Request body: {"q": "amst"}
func (fr *FitoRouter) HandleSearchDestination(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ports, err := s.SearchDestinationPorts(r.Context(), req.Query)
	if err != nil {
		writeServiceError(w, r, "failed to search ports", err)
		return
	}
	if ports == nil {
		ports = []model.Port{}
	}
	writeJSONResponse(w, http.StatusOK, ports)
}

// HandleApplyGlobalSubtype handles PUT /api/v1/fito/sessions/{id}/mappings/subtype
// Request body: {"subtype": "ROSA"}
func (fr *FitoRouter) HandleApplyGlobalSubtype(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	var req subtypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entries, err := s.ApplyGlobalSubtype(r.Context(), strings.TrimSpace(req.Subtype))
	if err != nil {
		writeServiceError(w, r, "failed to apply subtype", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, entries)
}

// HandleSetSubtype handles PUT /api/v1/fito/sessions/{id}/mappings/{code}/subtype
func (fr *FitoRouter) HandleSetSubtype(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	var req subtypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := s.SetSubtype(r.Context(), r.PathValue("code"), strings.TrimSpace(req.Subtype))
	if err != nil {
		writeServiceError(w, r, "failed to set subtype", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, entry)
}

// HandleSearchProducts handles GET /api/v1/fito/sessions/{id}/mappings/{code}/search?q=
func (fr *FitoRouter) HandleSearchProducts(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	items, err := s.SearchProducts(r.Context(), r.PathValue("code"), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, "failed to search products", err)
		return
	}
	if items == nil {
		items = []model.ProductCatalogItem{}
	}
	writeJSONResponse(w, http.StatusOK, items)
}

// HandleSelectProduct handles PUT /api/v1/fito/sessions/{id}/mappings/{code}
// Request body: {"codigoAgrocalidad": "...", "nombreComun": "..."}
func (fr *FitoRouter) HandleSelectProduct(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	var item model.ProductCatalogItem
	if !decodeJSON(w, r, &item) {
		return
	}
	entry, err := s.SelectProduct(r.PathValue("code"), item)
	if err != nil {
		writeServiceError(w, r, "failed to select product", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, entry)
}

// HandleClearProduct handles DELETE /api/v1/fito/sessions/{id}/mappings/{code}
func (fr *FitoRouter) HandleClearProduct(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	entry, err := s.ClearProduct(r.PathValue("code"))
	if err != nil {
		writeServiceError(w, r, "failed to clear product", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, entry)
}

// HandlePreview handles GET /api/v1/fito/sessions/{id}/preview
func (fr *FitoRouter) HandlePreview(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	preview, err := s.Preview()
	if err != nil {
		writeServiceError(w, r, "failed to build preview", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, preview)
}

// HandlePreviewWorkbook handles GET /api/v1/fito/sessions/{id}/preview.xlsx
func (fr *FitoRouter) HandlePreviewWorkbook(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	preview, err := s.Preview()
	if err != nil {
		writeServiceError(w, r, "failed to build preview", err)
		return
	}
	f, err := export.PreviewWorkbook(preview.Shipment, preview.LineItems, preview.Mappings)
	if err != nil {
		writeServiceError(w, r, "failed to build workbook", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="fito-%d.xlsx"`, preview.Shipment.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := f.WriteTo(w); err != nil {
		slog.WarnContext(r.Context(), "workbook stream interrupted", "sessionID", s.ID, "error", err)
	}
}

// HandleGenerate handles POST /api/v1/fito/sessions/{id}/generate
// Response: 202 with {jobId, message, count}
func (fr *FitoRouter) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	resp, err := s.Generate(r.Context())
	if err != nil {
		writeServiceError(w, r, "failed to submit generation", err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, resp)
}

// HandleGetJob handles GET /api/v1/fito/sessions/{id}/job
func (fr *FitoRouter) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, s.Job())
}

// HandleCancelJob handles DELETE /api/v1/fito/sessions/{id}/job
// Stops tracking only; the job keeps running on the generation service.
func (fr *FitoRouter) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	s, ok := fr.session(w, r)
	if !ok {
		return
	}
	s.CancelJob()
	writeJSONResponse(w, http.StatusOK, s.Job())
}
