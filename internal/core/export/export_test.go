package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/pkg/errors"
)

func sampleTable() *types.ResultTable {
	return &types.ResultTable{
		Columns: []types.Column{
			{Field: "region", Label: "Region", Type: types.DimString},
			{Field: "amount", Label: "Revenue", Type: types.DimNumber, Format: &types.FormatSpec{Decimals: 2, Prefix: "$"}},
		},
		Rows: []types.Row{
			{"region": "east", "amount": float64(1200.5)},
			{"region": "west", "amount": float64(800)},
			{"region": "north", "amount": nil},
		},
		Summary: &types.Summary{
			Totals: map[string]types.MetricValue{
				"amount": {Value: 2000.5},
			},
		},
	}
}

func TestExport_CSV(t *testing.T) {
	data, err := Export(sampleTable(), FormatCSV, "Revenue")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Region,Revenue", lines[0])
	assert.Equal(t, "east,$1200.50", lines[1])
	assert.Equal(t, "west,$800.00", lines[2])
	assert.Equal(t, "north,", lines[3])
}

func TestExport_JSON(t *testing.T) {
	data, err := Export(sampleTable(), FormatJSON, "Revenue")
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "Revenue", payload["title"])
	assert.Len(t, payload["rows"], 3)
	assert.Contains(t, payload, "summary")
}

func TestExport_HTML(t *testing.T) {
	data, err := Export(sampleTable(), FormatHTML, "Revenue")
	require.NoError(t, err)

	html := string(data)
	assert.Contains(t, html, "<title>Revenue</title>")
	assert.Contains(t, html, "<th>Region</th>")
	assert.Contains(t, html, "<td>$1200.50</td>")
	assert.Contains(t, html, "Revenue: $2000.50")
}

func TestExport_XLSX(t *testing.T) {
	data, err := Export(sampleTable(), FormatXLSX, "Revenue")
	require.NoError(t, err)
	// XLSX files are zip archives
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}

func TestExport_PDF(t *testing.T) {
	data, err := Export(sampleTable(), FormatPDF, "Revenue")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestExport_PPTXUnsupported(t *testing.T) {
	_, err := Export(sampleTable(), FormatPPTX, "Revenue")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestExport_UnknownFormat(t *testing.T) {
	_, err := Export(sampleTable(), "docx", "Revenue")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestExport_NilTable(t *testing.T) {
	_, err := Export(nil, FormatCSV, "Revenue")
	assert.Error(t, err)
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil, nil))
	assert.Equal(t, "east", formatCell("east", nil))
	assert.Equal(t, "1200.5", formatCell(float64(1200.5), nil))
	assert.Equal(t, "$1200.50", formatCell(float64(1200.5), &types.FormatSpec{Decimals: 2, Prefix: "$"}))
	assert.Equal(t, "42%", formatCell(float64(42), &types.FormatSpec{Decimals: 0, Suffix: "%"}))
}
