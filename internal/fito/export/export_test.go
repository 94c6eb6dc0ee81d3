package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRequest() model.GenerateRequest {
	return model.GenerateRequest{
		ShipmentIDs: []int64{1001},
		Config: model.GenerationConfig{
			RequestType:      "NUEVA",
			LanguageCode:     "ES",
			DestinationPort:  "KZNQZ",
			ConsigneeName:    "Steppe Flowers",
			ConsigneeAddress: "Kabanbay 12 Astana",
		},
		ProductMappings: []model.ProductMapping{
			{OriginalCode: "A1", CodigoAgrocalidad: "AGR-100", NombreComun: "Rosa", Matched: true, Confidence: 0.9},
			{OriginalCode: "B2", CodigoAgrocalidad: "AGR-200", NombreComun: "Clavel", Matched: true, Confidence: 1},
		},
		LineItems: []model.AggregatedLineItem{
			{PayerID: "P1", PayerName: "Finca Uno", Code: "AGR-100", Boxes: 8, Stems: 160},
			{PayerID: "P2", PayerName: "Finca Dos", Code: "AGR-100", Boxes: 1, Stems: 20},
			{PayerID: "P1", PayerName: "Finca Uno", Code: "AGR-200", Boxes: 2, Stems: 50},
		},
	}
}

func TestBuildCertificates_OnePerPayer(t *testing.T) {
	data, err := BuildCertificates("job-9", sampleRequest(), time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	xml := string(data)
	assert.True(t, strings.HasPrefix(xml, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, xml, `generado="2026-10-19T12:00:00Z"`)
	assert.Contains(t, xml, `<exportador idPagador="P1">Finca Uno</exportador>`)
	assert.Contains(t, xml, `nombreComun="Clavel"`)
	assert.NotContains(t, xml, "<observaciones>")

	summary, err := InspectCertificates(data)
	require.NoError(t, err)
	assert.Equal(t, &CertificateSummary{JobID: "job-9", Certificates: 2, Products: 3, Boxes: 11, Stems: 230}, summary)
}

func TestInspectCertificates_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed", data: "<certificadosFitosanitarios jobId=><certificado>"},
		{name: "wrong root", data: "<factura/>"},
		{name: "empty", data: ""},
		{name: "bad quantity", data: `<certificadosFitosanitarios><certificado><productos><producto codigoAgrocalidad="X"><cajas>ocho</cajas></producto></productos></certificado></certificadosFitosanitarios>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InspectCertificates([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestInspectCertificates_EmptyBatch(t *testing.T) {
	summary, err := InspectCertificates([]byte(`<certificadosFitosanitarios jobId="j"/>`))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Certificates)
	assert.Equal(t, "j", summary.JobID)
}

func TestPreviewWorkbook(t *testing.T) {
	req := sampleRequest()
	f, err := PreviewWorkbook(model.ShipmentDocument{ID: 1001, GuideNumber: "729-1234 5675"}, req.LineItems, req.ProductMappings)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{lineItemsSheet, mappingsSheet}, wb.GetSheetList())

	rows, err := wb.GetRows(lineItemsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, "729-1234 5675", rows[0][1])
	assert.Equal(t, []string{"idPagador", "nombrePagador", "codigoAgrocalidad", "nombreComun", "cajas", "tallos"}, rows[2])
	assert.Equal(t, []string{"P1", "Finca Uno", "AGR-100", "Rosa", "8", "160"}, rows[3])
	assert.Equal(t, []string{"", "", "", "TOTAL", "11", "230"}, rows[6])

	mappings, err := wb.GetRows(mappingsSheet)
	require.NoError(t, err)
	require.Len(t, mappings, 3)
	assert.Equal(t, "A1", mappings[1][0])
	assert.Equal(t, "AGR-200", mappings[2][1])
}
