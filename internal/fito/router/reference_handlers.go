package router

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/fito/service"
)

// HandleListShipments handles GET /api/v1/fito/shipments
func (fr *FitoRouter) HandleListShipments(w http.ResponseWriter, r *http.Request) {
	docs, err := fr.selector.ListShipments(r.Context())
	if err != nil {
		writeServiceError(w, r, "failed to list shipments", err)
		return
	}
	if docs == nil {
		docs = []model.ShipmentDocument{}
	}
	writeJSONResponse(w, http.StatusOK, docs)
}

// HandleListShipmentItems handles GET /api/v1/fito/shipments/{id}/items
// Only lines carrying both boxes and stems are returned.
func (fr *FitoRouter) HandleListShipmentItems(w http.ResponseWriter, r *http.Request) {
	documentID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	items, err := fr.selector.LoadLineItems(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, r, "failed to load line items", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, items)
}

// HandleListSubtypes handles GET /api/v1/fito/subtypes
func (fr *FitoRouter) HandleListSubtypes(w http.ResponseWriter, r *http.Request) {
	subtypes, err := fr.reference.ListSubtypes(r.Context())
	if err != nil {
		writeServiceError(w, r, "failed to list subtypes", err)
		return
	}
	if subtypes == nil {
		subtypes = []string{}
	}
	writeJSONResponse(w, http.StatusOK, subtypes)
}

// HandleListPorts handles GET /api/v1/fito/ports
// Optional query params: q (search term), ecuador (true for origin ports)
func (fr *FitoRouter) HandleListPorts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	ecuador := false
	if v := query.Get("ecuador"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "query parameter ecuador must be a boolean")
			return
		}
		ecuador = b
	}

	var (
		ports []model.Port
		err   error
	)
	q := strings.TrimSpace(query.Get("q"))
	switch {
	case q == "":
		ports, err = fr.reference.ListPorts(r.Context(), ecuador)
	case utf8.RuneCountInString(q) < service.MinSearchLength:
		ports = []model.Port{}
	default:
		ports, err = fr.reference.SearchPorts(r.Context(), q, ecuador)
	}
	if err != nil {
		writeServiceError(w, r, "failed to load ports", err)
		return
	}
	if ports == nil {
		ports = []model.Port{}
	}
	writeJSONResponse(w, http.StatusOK, ports)
}
