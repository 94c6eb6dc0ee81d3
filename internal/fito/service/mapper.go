package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// MinSearchLength is the shortest manual search query sent to the catalog.
const MinSearchLength = 2

var (
	ErrSubtypeRequired    = errors.New("a product subtype must be selected first")
	ErrUnknownProductCode = errors.New("product code is not part of this shipment")
)

// MappingState is the per-code position in the mapping state machine.
type MappingState string

const (
	MappingNoSubtype MappingState = "NO_SUBTYPE"
	MappingLoading   MappingState = "LOADING"
	MappingMatched   MappingState = "MATCHED"
	MappingUnmatched MappingState = "UNMATCHED"
	MappingManual    MappingState = "MANUAL"
)

// ProductCatalog is the subtype-scoped product autocomplete.
type ProductCatalog interface {
	SearchProducts(ctx context.Context, query, subtype string) ([]model.ProductCatalogItem, error)
}

// MappingEntry is the operator-facing state of one product code.
type MappingEntry struct {
	OriginalCode      string       `json:"originalCode"`
	Subtype           string       `json:"subtype,omitempty"`
	State             MappingState `json:"state"`
	Loading           bool         `json:"loading"`
	CodigoAgrocalidad string       `json:"codigoAgrocalidad"`
	NombreComun       string       `json:"nombreComun"`
	Matched           bool         `json:"matched"`
	Confidence        float64      `json:"confidence"`
}

type mappingSlot struct {
	entry MappingEntry
	// seq is bumped on every mutation; an auto-match only lands if seq is unchanged.
	seq uint64
}

func (s *mappingSlot) resolve(item model.ProductCatalogItem, state MappingState, confidence float64) {
	s.entry.CodigoAgrocalidad = item.Code
	s.entry.NombreComun = item.CommonName
	s.entry.Matched = item.Code != ""
	s.entry.Confidence = confidence
	s.entry.State = state
	s.entry.Loading = false
}

func (s *mappingSlot) unresolve() {
	s.resolve(model.ProductCatalogItem{}, MappingUnmatched, model.ConfidenceNone)
	if s.entry.Subtype == "" {
		s.entry.State = MappingNoSubtype
	}
}

// ProductMapper maps the distinct product codes of a shipment to catalog codes.
// All methods are safe for concurrent use.
type ProductMapper struct {
	catalog     ProductCatalog
	metrics     *metrics.FitoMetrics
	concurrency int

	mu    sync.Mutex
	codes []string
	slots map[string]*mappingSlot
}

// NewProductMapper starts every code in NO_SUBTYPE. Duplicate codes are ignored.
func NewProductMapper(catalog ProductCatalog, codes []string, concurrency int, m *metrics.FitoMetrics) *ProductMapper {
	if concurrency < 1 {
		concurrency = 1
	}
	pm := &ProductMapper{
		catalog:     catalog,
		metrics:     m,
		concurrency: concurrency,
		slots:       make(map[string]*mappingSlot, len(codes)),
	}
	for _, code := range codes {
		if _, ok := pm.slots[code]; ok {
			continue
		}
		pm.codes = append(pm.codes, code)
		pm.slots[code] = &mappingSlot{entry: MappingEntry{
			OriginalCode: code,
			State:        MappingNoSubtype,
		}}
	}
	return pm
}

// SetSubtype assigns a subtype to one code and auto-matches it against the catalog.
// A failed or empty search leaves the code unmatched; it is not an error.
func (pm *ProductMapper) SetSubtype(ctx context.Context, code, subtype string) (MappingEntry, error) {
	subtype = strings.TrimSpace(subtype)
	if subtype == "" {
		return MappingEntry{}, ErrSubtypeRequired
	}

	pm.mu.Lock()
	slot, ok := pm.slots[code]
	if !ok {
		pm.mu.Unlock()
		return MappingEntry{}, fmt.Errorf("%w: %q", ErrUnknownProductCode, code)
	}
	slot.seq++
	seq := slot.seq
	slot.entry.Subtype = subtype
	slot.resolve(model.ProductCatalogItem{}, MappingLoading, model.ConfidenceNone)
	slot.entry.Loading = true
	pm.mu.Unlock()

	items, err := pm.catalog.SearchProducts(ctx, code, subtype)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if slot.seq != seq {
		pm.metrics.IncAutoMatch(metrics.MatchStale)
		slog.DebugContext(ctx, "discarding stale auto-match", "code", code, "subtype", subtype)
		return slot.entry, nil
	}

	switch {
	case err != nil:
		pm.metrics.IncAutoMatch(metrics.MatchError)
		slog.WarnContext(ctx, "product auto-match failed",
			"code", code,
			"subtype", subtype,
			"error", err)
		slot.unresolve()
	case len(items) == 0 || strings.TrimSpace(items[0].Code) == "":
		pm.metrics.IncAutoMatch(metrics.MatchUnmatched)
		slot.unresolve()
	default:
		pm.metrics.IncAutoMatch(metrics.MatchMatched)
		slot.resolve(items[0], MappingMatched, model.ConfidenceAuto)
	}
	return slot.entry, nil
}

// ApplyGlobalSubtype assigns one subtype to every code and auto-matches them concurrently.
// Each code's result is applied independently of the others.
func (pm *ProductMapper) ApplyGlobalSubtype(ctx context.Context, subtype string) ([]MappingEntry, error) {
	if strings.TrimSpace(subtype) == "" {
		return nil, ErrSubtypeRequired
	}

	var g errgroup.Group
	g.SetLimit(pm.concurrency)
	for _, code := range pm.Codes() {
		g.Go(func() error {
			_, err := pm.SetSubtype(ctx, code, subtype)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pm.Entries(), nil
}

// Search runs a manual catalog search within the code's subtype. Queries shorter
// than MinSearchLength return no results without reaching the catalog.
func (pm *ProductMapper) Search(ctx context.Context, code, query string) ([]model.ProductCatalogItem, error) {
	pm.mu.Lock()
	slot, ok := pm.slots[code]
	var subtype string
	if ok {
		subtype = slot.entry.Subtype
	}
	pm.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProductCode, code)
	}
	if subtype == "" {
		return nil, ErrSubtypeRequired
	}
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLength {
		return []model.ProductCatalogItem{}, nil
	}

	items, err := pm.catalog.SearchProducts(ctx, query, subtype)
	if err != nil {
		return nil, fmt.Errorf("product search failed: %w", err)
	}
	return items, nil
}

// Select records an operator pick with full confidence. An empty catalog code clears the mapping.
func (pm *ProductMapper) Select(code string, item model.ProductCatalogItem) (MappingEntry, error) {
	if strings.TrimSpace(item.Code) == "" {
		return pm.Clear(code)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	slot, ok := pm.slots[code]
	if !ok {
		return MappingEntry{}, fmt.Errorf("%w: %q", ErrUnknownProductCode, code)
	}
	slot.seq++
	slot.resolve(item, MappingManual, model.ConfidenceManual)
	return slot.entry, nil
}

// Clear resets a code to unmatched, keeping its subtype.
func (pm *ProductMapper) Clear(code string) (MappingEntry, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	slot, ok := pm.slots[code]
	if !ok {
		return MappingEntry{}, fmt.Errorf("%w: %q", ErrUnknownProductCode, code)
	}
	slot.seq++
	slot.unresolve()
	return slot.entry, nil
}

// Codes returns the product codes in shipment order.
func (pm *ProductMapper) Codes() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return append([]string(nil), pm.codes...)
}

// Entries returns a snapshot of every code's state in shipment order.
func (pm *ProductMapper) Entries() []MappingEntry {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	entries := make([]MappingEntry, 0, len(pm.codes))
	for _, code := range pm.codes {
		entries = append(entries, pm.slots[code].entry)
	}
	return entries
}

// Valid reports whether every code resolved to a catalog code.
func (pm *ProductMapper) Valid() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, code := range pm.codes {
		if pm.slots[code].entry.CodigoAgrocalidad == "" {
			return false
		}
	}
	return true
}

// Unresolved lists the codes that still lack a catalog code.
func (pm *ProductMapper) Unresolved() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var missing []string
	for _, code := range pm.codes {
		if pm.slots[code].entry.CodigoAgrocalidad == "" {
			missing = append(missing, code)
		}
	}
	return missing
}

// Mappings returns the outbound mapping set without subtype or loading state.
func (pm *ProductMapper) Mappings() []model.ProductMapping {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	out := make([]model.ProductMapping, 0, len(pm.codes))
	for _, code := range pm.codes {
		e := pm.slots[code].entry
		out = append(out, model.ProductMapping{
			OriginalCode:      e.OriginalCode,
			CodigoAgrocalidad: e.CodigoAgrocalidad,
			NombreComun:       e.NombreComun,
			Matched:           e.CodigoAgrocalidad != "",
			Confidence:        e.Confidence,
		})
	}
	return out
}

// Lookup maps each resolved original code to its catalog code.
func (pm *ProductMapper) Lookup() map[string]string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	lookup := make(map[string]string, len(pm.codes))
	for _, code := range pm.codes {
		if c := pm.slots[code].entry.CodigoAgrocalidad; c != "" {
			lookup[code] = c
		}
	}
	return lookup
}
