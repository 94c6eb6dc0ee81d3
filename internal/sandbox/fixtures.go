package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"gopkg.in/yaml.v3"
)

// Fixtures is the reference data served by the sandbox.
type Fixtures struct {
	Shipments    []model.ShipmentDocument           `json:"shipments"`
	LineItems    map[int64][]model.ShipmentLineItem `json:"lineItems"`
	Destinations map[string]model.DestinationInfo   `json:"destinations"`
	EcuadorPorts []model.Port                       `json:"ecuadorPorts"`
	Ports        []model.Port                       `json:"ports"`
	Subtypes     []string                           `json:"subtypes"`
	Products     []model.ProductCatalogItem         `json:"products"`
}

// LoadFixtures reads fixtures from a YAML file whose keys are the catalog API's
// JSON field names. List sections replace the defaults and keyed sections
// are merged into them.
func LoadFixtures(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures %s: %w", path, err)
	}
	return parseFixtures(raw)
}

func parseFixtures(raw []byte) (*Fixtures, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	data, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to convert fixtures: %w", err)
	}
	f := DefaultFixtures()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}
	return f, nil
}

// stringKeys rewrites YAML mappings with non-string keys (document numbers)
// so they can be encoded as JSON objects.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	}
	return v
}

// FindShipment returns the shipment with the given document number.
func (f *Fixtures) FindShipment(id int64) (model.ShipmentDocument, bool) {
	for _, doc := range f.Shipments {
		if doc.ID == id {
			return doc, true
		}
	}
	return model.ShipmentDocument{}, false
}

// PortList returns the Ecuadorian or the international port list.
func (f *Fixtures) PortList(ecuador bool) []model.Port {
	if ecuador {
		return f.EcuadorPorts
	}
	return f.Ports
}

// SearchPorts ranks ports by code, name and country against the query.
func (f *Fixtures) SearchPorts(query string, ecuador bool) []model.Port {
	q := normalize(query)
	if q == "" {
		return []model.Port{}
	}
	var hits []ranked[model.Port]
	for _, p := range f.PortList(ecuador) {
		score := max(scoreField(q, p.Code, 4), scoreField(q, p.Name, 3), scoreField(q, p.Country, 1))
		if score > 0 {
			hits = append(hits, ranked[model.Port]{item: p, score: score, key: p.Code})
		}
	}
	return sortRanked(hits)
}

// SearchProducts ranks catalog products within a subtype. An empty subtype searches all.
func (f *Fixtures) SearchProducts(query, subtype string) []model.ProductCatalogItem {
	q := normalize(query)
	if q == "" {
		return []model.ProductCatalogItem{}
	}
	var hits []ranked[model.ProductCatalogItem]
	for _, p := range f.Products {
		if subtype != "" && !strings.EqualFold(p.Subtype, subtype) {
			continue
		}
		score := max(scoreField(q, p.Code, 4), scoreField(q, p.CommonName, 3), scoreField(q, p.ScientificName, 2))
		if score > 0 {
			hits = append(hits, ranked[model.ProductCatalogItem]{item: p, score: score, key: p.Code})
		}
	}
	return sortRanked(hits)
}

type ranked[T any] struct {
	item  T
	score int
	key   string
}

func sortRanked[T any](hits []ranked[T]) []T {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].key < hits[j].key
	})
	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

// scoreField weighs an exact match over a prefix match over a substring match.
func scoreField(q, field string, weight int) int {
	v := normalize(field)
	switch {
	case v == "":
		return 0
	case v == q:
		return weight * 100
	case strings.HasPrefix(v, q):
		return weight * 10
	case strings.Contains(v, q):
		return weight
	}
	return 0
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// DefaultFixtures is a small but complete dataset covering every wizard path:
// registry-resolved and aliased destinations, lines without quantity, lines
// without a payer and several payers per shipment.
func DefaultFixtures() *Fixtures {
	payer := func(s string) *string { return &s }
	issued := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	return &Fixtures{
		Shipments: []model.ShipmentDocument{
			{ID: 50101, GuideNumber: "729-4410 2231", IssueDate: issued, DestinationCode: "AMS", LineItemCount: 4},
			{ID: 50102, GuideNumber: "729-4410 2242", IssueDate: issued, DestinationCode: "TSE", LineItemCount: 2},
			{ID: 50103, GuideNumber: "906-1180 0075", IssueDate: issued.AddDate(0, 0, 1), DestinationCode: "MIA", LineItemCount: 2},
		},
		LineItems: map[int64][]model.ShipmentLineItem{
			50101: {
				{DocumentID: 50101, LineNumber: 1, ProductCode: "RFR-50", Boxes: 10, Stems: 250, PayerID: payer("1790012345001"), PayerName: "Rosas del Cotopaxi", Consignee: "Holland Flowers BV||Legmeerdijk 313||Aalsmeer"},
				{DocumentID: 50101, LineNumber: 2, ProductCode: "RFR-50", Boxes: 4, Stems: 100, PayerID: payer("1790012345001"), PayerName: "Rosas del Cotopaxi", Consignee: "Holland Flowers BV||Legmeerdijk 313||Aalsmeer"},
				{DocumentID: 50101, LineNumber: 3, ProductCode: "GYP-XL", Boxes: 3, Stems: 75, PayerID: payer("1791122334001"), PayerName: "Flores Tabacundo", Consignee: "Holland Flowers BV||Legmeerdijk 313||Aalsmeer"},
				{DocumentID: 50101, LineNumber: 4, ProductCode: "CLV-ST", Boxes: 0, Stems: 0, PayerID: payer("1791122334001"), PayerName: "Flores Tabacundo"},
			},
			50102: {
				{DocumentID: 50102, LineNumber: 1, ProductCode: "RFR-60", Boxes: 6, Stems: 150, PayerID: payer("1790012345001"), PayerName: "Rosas del Cotopaxi", Consignee: "Steppe Flowers LLP||Kabanbay Batyr 12||Astana"},
				{DocumentID: 50102, LineNumber: 2, ProductCode: "RFR-60", Boxes: 2, Stems: 50, PayerName: "Finca sin registro", Consignee: "Steppe Flowers LLP||Kabanbay Batyr 12||Astana"},
			},
			50103: {
				{DocumentID: 50103, LineNumber: 1, ProductCode: "HYD-WH", Boxes: 8, Stems: 160, PayerID: payer("1792233445001"), PayerName: "Hortensias Andinas", Consignee: "Miami Bloom Inc||NW 25th St 6500||Miami FL"},
				{DocumentID: 50103, LineNumber: 2, ProductCode: "RFR-50", Boxes: 1, Stems: 25, PayerID: payer("1792233445001"), PayerName: "Hortensias Andinas", Consignee: "Miami Bloom Inc||NW 25th St 6500||Miami FL"},
			},
		},
		Destinations: map[string]model.DestinationInfo{
			"AMS": {Code: "AMS", Name: "Amsterdam", AirportName: "Schiphol", CountryCode: "NL"},
			"MIA": {Code: "MIA", Name: "", AirportName: "Miami International", CountryCode: "US"},
		},
		EcuadorPorts: []model.Port{
			{Code: "ECUIO", Name: "Quito Mariscal Sucre"},
			{Code: "ECGYE", Name: "Guayaquil Jose Joaquin de Olmedo"},
		},
		Ports: []model.Port{
			{Code: "NLAMS", Name: "Amsterdam", Country: "Netherlands"},
			{Code: "NLRTM", Name: "Rotterdam", Country: "Netherlands"},
			{Code: "KZNQZ", Name: "Astana", Country: "Kazakhstan"},
			{Code: "USMIA", Name: "Miami International", Country: "United States"},
			{Code: "RUMOW", Name: "Moscow", Country: "Russia"},
		},
		Subtypes: []string{"ROSA", "GYPSOPHILA", "CLAVEL", "HORTENSIA"},
		Products: []model.ProductCatalogItem{
			{Code: "AGR-0101", CommonName: "Rosa roja RFR-50", ScientificName: "Rosa sp.", Subtype: "ROSA"},
			{Code: "AGR-0102", CommonName: "Rosa roja RFR-60", ScientificName: "Rosa sp.", Subtype: "ROSA"},
			{Code: "AGR-0110", CommonName: "Rosa spray", ScientificName: "Rosa sp.", Subtype: "ROSA"},
			{Code: "AGR-0201", CommonName: "Gypsophila GYP-XL", ScientificName: "Gypsophila paniculata", Subtype: "GYPSOPHILA"},
			{Code: "AGR-0301", CommonName: "Clavel estandar", ScientificName: "Dianthus caryophyllus", Subtype: "CLAVEL"},
			{Code: "AGR-0401", CommonName: "Hortensia blanca", ScientificName: "Hydrangea macrophylla", Subtype: "HORTENSIA"},
		},
	}
}
