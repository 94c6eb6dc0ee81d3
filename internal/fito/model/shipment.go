package model

import "time"

// ShipmentDocument is a parent export shipment ("guía madre") owned by the legacy system of record.
type ShipmentDocument struct {
	ID               int64     `json:"docNumero"`
	GuideNumber      string    `json:"guiNumero"`
	IssueDate        time.Time `json:"guiFechaEmision"`
	DestinationCode  string    `json:"desCodigo"`
	ConsigneeName    string    `json:"consignatarioNombre,omitempty"`
	ConsigneeAddress string    `json:"consignatarioDireccion,omitempty"`
	LineItemCount    int       `json:"cantidadHijas,omitempty"`
}

// ShipmentLineItem is one child line ("guía hija") of a shipment.
type ShipmentLineItem struct {
	DocumentID  int64   `json:"docNumero"`
	LineNumber  int     `json:"hijNumero"`
	ProductCode string  `json:"codigoProducto"`
	Boxes       int     `json:"cajas"`
	Stems       int     `json:"tallos"`
	PayerID     *string `json:"idPagador"`
	PayerName   string  `json:"nombrePagador"`
	// Consignee encodes "name||addressPart1||addressPart2".
	Consignee string `json:"consignatario"`
}

// Shippable reports whether the line survives the list-load filter.
func (li ShipmentLineItem) Shippable() bool {
	return li.Boxes > 0 && li.Stems > 0
}

// HasQuantity reports whether the line carries any quantity at all.
func (li ShipmentLineItem) HasQuantity() bool {
	return li.Boxes > 0 || li.Stems > 0
}

// DestinationInfo is the code registry answer for a destination code.
type DestinationInfo struct {
	Code        string `json:"desCodigo"`
	Name        string `json:"desNombre"`
	AirportName string `json:"desAeropuerto"`
	CountryCode string `json:"desPais"`
}

// Port is an entry of the port catalog. Ecuadorian ports carry no country.
type Port struct {
	Code    string `json:"codigo"`
	Name    string `json:"nombre"`
	Country string `json:"pais,omitempty"`
}
