package export

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/beevik/etree"
)

const (
	rootTag        = "certificadosFitosanitarios"
	certificateTag = "certificado"
	productTag     = "producto"
)

// ErrNotCertificateDocument is returned when XML parses but is not a certificate batch.
var ErrNotCertificateDocument = errors.New("document is not a phytosanitary certificate batch")

// CertificateSummary describes a certificate batch document.
type CertificateSummary struct {
	JobID        string `json:"jobId"`
	Certificates int    `json:"certificates"`
	Products     int    `json:"products"`
	Boxes        int    `json:"boxes"`
	Stems        int    `json:"stems"`
}

// BuildCertificates renders one certificate per payer from an aggregated request.
// Payers appear in the order of their first aggregated line.
func BuildCertificates(jobID string, req model.GenerateRequest, generatedAt time.Time) ([]byte, error) {
	names := make(map[string]string, len(req.ProductMappings))
	for _, m := range req.ProductMappings {
		if m.CodigoAgrocalidad != "" {
			names[m.CodigoAgrocalidad] = m.NombreComun
		}
	}

	var payers []string
	byPayer := map[string][]model.AggregatedLineItem{}
	for _, li := range req.LineItems {
		if _, ok := byPayer[li.PayerID]; !ok {
			payers = append(payers, li.PayerID)
		}
		byPayer[li.PayerID] = append(byPayer[li.PayerID], li)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootTag)
	root.CreateAttr("jobId", jobID)
	root.CreateAttr("generado", generatedAt.UTC().Format(time.RFC3339))

	cfg := req.Config
	for i, payer := range payers {
		lines := byPayer[payer]
		cert := root.CreateElement(certificateTag)
		cert.CreateAttr("numero", strconv.Itoa(i+1))

		for _, f := range []struct{ tag, value string }{
			{"tipoSolicitud", cfg.RequestType},
			{"codigoIdioma", cfg.LanguageCode},
			{"codigoTipoProduccion", cfg.ProductionTypeCode},
			{"fechaEmbarque", cfg.ShipDate},
			{"puertoOrigen", cfg.OriginPort},
			{"puertoDestino", cfg.DestinationPort},
			{"nombreMarca", cfg.BrandName},
		} {
			cert.CreateElement(f.tag).SetText(f.value)
		}

		consignee := cert.CreateElement("consignatario")
		consignee.CreateElement("nombre").SetText(cfg.ConsigneeName)
		consignee.CreateElement("direccion").SetText(cfg.ConsigneeAddress)

		exporter := cert.CreateElement("exportador")
		exporter.CreateAttr("idPagador", payer)
		exporter.SetText(lines[0].PayerName)

		guides := cert.CreateElement("guias")
		for _, id := range req.ShipmentIDs {
			guides.CreateElement("guia").SetText(strconv.FormatInt(id, 10))
		}

		products := cert.CreateElement("productos")
		for _, li := range lines {
			p := products.CreateElement(productTag)
			p.CreateAttr("codigoAgrocalidad", li.Code)
			if name := names[li.Code]; name != "" {
				p.CreateAttr("nombreComun", name)
			}
			p.CreateElement("cajas").SetText(strconv.Itoa(li.Boxes))
			p.CreateElement("tallos").SetText(strconv.Itoa(li.Stems))
		}

		if cfg.Notes != "" {
			cert.CreateElement("observaciones").SetText(cfg.Notes)
		}
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

// InspectCertificates parses a certificate batch and totals its contents.
func InspectCertificates(data []byte) (*CertificateSummary, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing certificate XML: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != rootTag {
		return nil, ErrNotCertificateDocument
	}

	summary := &CertificateSummary{JobID: root.SelectAttrValue("jobId", "")}
	for _, cert := range root.SelectElements(certificateTag) {
		summary.Certificates++
		for _, p := range cert.FindElements("./productos/" + productTag) {
			summary.Products++
			boxes, err := intChild(p, "cajas")
			if err != nil {
				return nil, err
			}
			stems, err := intChild(p, "tallos")
			if err != nil {
				return nil, err
			}
			summary.Boxes += boxes
			summary.Stems += stems
		}
	}
	return summary, nil
}

func intChild(e *etree.Element, tag string) (int, error) {
	child := e.SelectElement(tag)
	if child == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(child.Text()))
	if err != nil {
		return 0, fmt.Errorf("invalid <%s> in product %s: %w", tag, e.SelectAttrValue("codigoAgrocalidad", "?"), err)
	}
	return n, nil
}
