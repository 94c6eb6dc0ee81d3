package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/OpenNSW/fito/internal/fito/model"
	"gopkg.in/yaml.v3"
)

// builtinAliases cannot be overridden by the alias file.
var builtinAliases = map[string]string{
	"TSE": "ASTANA",
}

// DestinationCatalog is the code registry plus port search.
type DestinationCatalog interface {
	LookupDestination(ctx context.Context, code string) (*model.DestinationInfo, error)
	SearchPorts(ctx context.Context, query string, ecuador bool) ([]model.Port, error)
}

// DestinationResolution is the best-effort pre-selection of the destination port.
type DestinationResolution struct {
	RawCode      string       `json:"rawCode"`
	SearchTerm   string       `json:"searchTerm"`
	Selected     *model.Port  `json:"selected,omitempty"`
	Alternatives []model.Port `json:"alternatives"`
}

// DestinationResolver turns a free-text shipment destination code into an international port.
type DestinationResolver struct {
	catalog DestinationCatalog
	aliases map[string]string
}

// NewDestinationResolver merges extra aliases (keyed case-insensitively) with the built-in ones.
func NewDestinationResolver(catalog DestinationCatalog, extra map[string]string) *DestinationResolver {
	aliases := make(map[string]string, len(extra)+len(builtinAliases))
	for code, term := range extra {
		aliases[strings.ToUpper(strings.TrimSpace(code))] = term
	}
	for code, term := range builtinAliases {
		aliases[code] = term
	}
	return &DestinationResolver{catalog: catalog, aliases: aliases}
}

// LoadDestinationAliases reads a YAML map of destination code to search term.
func LoadDestinationAliases(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination aliases: %w", err)
	}
	aliases := map[string]string{}
	if err := yaml.Unmarshal(raw, &aliases); err != nil {
		return nil, fmt.Errorf("failed to parse destination aliases %s: %w", path, err)
	}
	return aliases, nil
}

// SearchTerm picks the port search term: alias, registry name, airport name, raw code.
func (r *DestinationResolver) SearchTerm(rawCode string, info *model.DestinationInfo) string {
	code := strings.TrimSpace(rawCode)
	if term, ok := r.aliases[strings.ToUpper(code)]; ok {
		return term
	}
	if info != nil {
		if name := strings.TrimSpace(info.Name); name != "" {
			return name
		}
		if airport := strings.TrimSpace(info.AirportName); airport != "" {
			return airport
		}
	}
	return code
}

// Resolve returns nil for an empty code. Lookup and search failures are
// logged and yield a resolution without a selected port.
func (r *DestinationResolver) Resolve(ctx context.Context, rawCode string) *DestinationResolution {
	code := strings.TrimSpace(rawCode)
	if code == "" {
		return nil
	}

	info, err := r.catalog.LookupDestination(ctx, code)
	if err != nil {
		slog.WarnContext(ctx, "destination registry lookup failed", "code", code, "error", err)
		info = nil
	}

	res := &DestinationResolution{
		RawCode:      code,
		SearchTerm:   r.SearchTerm(code, info),
		Alternatives: []model.Port{},
	}

	ports, err := r.catalog.SearchPorts(ctx, res.SearchTerm, false)
	if err != nil {
		slog.WarnContext(ctx, "destination port search failed",
			"code", code,
			"searchTerm", res.SearchTerm,
			"error", err)
		return res
	}
	if len(ports) == 0 {
		slog.InfoContext(ctx, "no port matches destination", "code", code, "searchTerm", res.SearchTerm)
		return res
	}

	selected := ports[0]
	res.Selected = &selected
	res.Alternatives = ports
	return res
}
