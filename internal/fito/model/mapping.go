package model

// Confidence values recorded on a product mapping.
const (
	ConfidenceNone   = 0.0
	ConfidenceAuto   = 0.9
	ConfidenceManual = 1.0
)

// NoPayerID groups line items whose payer identifier is absent.
const NoPayerID = "NO-ID"

// ProductCatalogItem is one ranked result of the product autocomplete.
type ProductCatalogItem struct {
	Code           string `json:"codigoAgrocalidad"`
	CommonName     string `json:"nombreComun"`
	ScientificName string `json:"nombreCientifico,omitempty"`
	Subtype        string `json:"subtipo,omitempty"`
}

// ProductMapping is the outbound form of a resolved product code.
type ProductMapping struct {
	OriginalCode      string  `json:"originalCode"`
	CodigoAgrocalidad string  `json:"codigoAgrocalidad"`
	NombreComun       string  `json:"nombreComun"`
	Matched           bool    `json:"matched"`
	Confidence        float64 `json:"confidence"`
}

// AggregatedLineItem is one (payer, catalog code) group of a shipment.
type AggregatedLineItem struct {
	PayerID   string `json:"idPagador"`
	PayerName string `json:"nombrePagador"`
	Code      string `json:"codigoAgrocalidad"`
	Boxes     int    `json:"cajas"`
	Stems     int    `json:"tallos"`
}
