package router

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/history"
	"github.com/OpenNSW/fito/utils"
)

// HandleListHistory handles GET /api/v1/fito/history
// Optional query params: status, offset, limit
func (fr *FitoRouter) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	if fr.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "generation history is not configured")
		return
	}

	query := r.URL.Query()
	var filter history.ListFilter
	if v := query.Get("status"); v != "" {
		status := model.JobStatus(v)
		filter.Status = &status
	}

	var err error
	if filter.Offset, err = utils.OptionalIntQuery(query, "offset"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = utils.OptionalIntQuery(query, "limit"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := fr.history.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, "failed to list history", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// HandleGetHistory handles GET /api/v1/fito/history/{jobId}
func (fr *FitoRouter) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if fr.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "generation history is not configured")
		return
	}
	record, err := fr.history.GetByJobID(r.Context(), r.PathValue("jobId"))
	if err != nil {
		writeServiceError(w, r, "failed to load history record", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, record)
}

// HandleGetArchive handles GET /api/v1/fito/archive/{jobId}
// Streams the archived certificate XML.
func (fr *FitoRouter) HandleGetArchive(w http.ResponseWriter, r *http.Request) {
	if fr.archive == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "certificate archive is not enabled")
		return
	}
	jobID := r.PathValue("jobId")
	body, contentType, err := fr.archive.Open(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, r, "failed to open archived certificates", err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/xml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xml"`, jobID))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.WarnContext(r.Context(), "archive stream interrupted", "jobID", jobID, "error", err)
	}
}
