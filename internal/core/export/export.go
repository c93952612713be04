package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/pkg/errors"
)

// Supported export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatHTML = "html"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
	FormatPPTX = "pptx"
)

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Export renders a result table into the given format. Column format
// hints are applied here; the table's numeric values stay untouched.
func Export(table *types.ResultTable, format, title string) ([]byte, error) {
	if table == nil {
		return nil, errors.NewConfigurationError("no result table to export")
	}

	switch strings.ToLower(format) {
	case FormatCSV:
		return exportCSV(table)
	case FormatJSON:
		return exportJSON(table, title)
	case FormatHTML:
		return exportHTML(table, title)
	case FormatXLSX:
		return exportXLSX(table, title)
	case FormatPDF:
		return exportPDF(table, title)
	case FormatPPTX:
		return nil, errors.NewConfigurationError("pptx export is not supported")
	default:
		return nil, errors.NewConfigurationError("unknown export format %q", format)
	}
}

func exportCSV(table *types.ResultTable) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col.Label
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range table.Rows {
		record := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			record[i] = formatCell(row[col.Field], col.Format)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func exportJSON(table *types.ResultTable, title string) ([]byte, error) {
	payload := map[string]interface{}{
		"title":   title,
		"columns": table.Columns,
		"rows":    table.Rows,
	}
	if table.Summary != nil {
		payload["summary"] = table.Summary
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode json export: %w", err)
	}
	return data, nil
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<table border="1" cellspacing="0" cellpadding="4">
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{if .Totals}}<h2>Summary</h2>
<ul>{{range .Totals}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body>
</html>
`))

func exportHTML(table *types.ResultTable, title string) ([]byte, error) {
	header := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col.Label
	}

	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			record[i] = formatCell(row[col.Field], col.Format)
		}
		rows = append(rows, record)
	}

	var totals []string
	if table.Summary != nil {
		for _, col := range table.Columns {
			val, ok := table.Summary.Totals[col.Field]
			if !ok {
				continue
			}
			if val.NoData {
				totals = append(totals, fmt.Sprintf("%s: no data", col.Label))
			} else {
				totals = append(totals, fmt.Sprintf("%s: %s", col.Label, formatCell(val.Value, col.Format)))
			}
		}
	}

	var buf bytes.Buffer
	err := htmlTemplate.Execute(&buf, map[string]interface{}{
		"Title":  title,
		"Header": header,
		"Rows":   rows,
		"Totals": totals,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render html export: %w", err)
	}
	return buf.Bytes(), nil
}

func exportXLSX(table *types.ResultTable, title string) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "data"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range table.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Label)
	}
	for r, row := range table.Rows {
		for c, col := range table.Columns {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			switch v := row[col.Field].(type) {
			case nil:
				// leave empty
			case float64:
				_ = f.SetCellValue(sheet, cell, v)
			default:
				_ = f.SetCellValue(sheet, cell, formatCell(v, col.Format))
			}
		}
	}

	if table.Summary != nil {
		summarySheet := "summary"
		_, err := f.NewSheet(summarySheet)
		if err != nil {
			return nil, fmt.Errorf("failed to create summary sheet: %w", err)
		}
		_ = f.SetCellValue(summarySheet, "A1", title)
		rowNum := 3
		for _, col := range table.Columns {
			val, ok := table.Summary.Totals[col.Field]
			if !ok {
				continue
			}
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", rowNum), col.Label)
			if val.NoData {
				_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", rowNum), "no data")
			} else {
				_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", rowNum), val.Value)
			}
			rowNum++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write xlsx export: %w", err)
	}
	return buf.Bytes(), nil
}

func exportPDF(table *types.ResultTable, title string) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	colWidth := 270.0 / float64(len(table.Columns))

	pdf.SetFont("Arial", "B", 9)
	for _, col := range table.Columns {
		pdf.CellFormat(colWidth, 6, col.Label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range table.Rows {
		for _, col := range table.Columns {
			align := "L"
			if _, isNumber := row[col.Field].(float64); isNumber {
				align = "R"
			}
			pdf.CellFormat(colWidth, 6, formatCell(row[col.Field], col.Format), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf export: %w", err)
	}
	return buf.Bytes(), nil
}

// formatCell renders one cell value, applying the column's format hint.
func formatCell(v interface{}, format *types.FormatSpec) string {
	if v == nil {
		return ""
	}

	f, isNumber := v.(float64)
	if !isNumber {
		return fmt.Sprintf("%v", v)
	}

	if format == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	text := strconv.FormatFloat(f, 'f', format.Decimals, 64)
	return format.Prefix + text + format.Suffix
}
