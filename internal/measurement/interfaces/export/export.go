// Package export renders stored series and diagnostics reports as files.
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	diagnostics "pv-telemetry/internal/diagnostics/domain"
	measurement "pv-telemetry/internal/measurement/domain"
)

const (
	seriesSheet  = "measurements"
	summarySheet = "summary"
)

// BuildSeriesXLSX renders one logger's series. Metadata keys become extra
// columns in sorted order after the canonical fields.
func BuildSeriesXLSX(loggerID string, series []measurement.Measurement, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(seriesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "PV Logger Export")
	_ = f.SetCellValue(summarySheet, "A3", "Logger")
	_ = f.SetCellValue(summarySheet, "B3", loggerID)
	_ = f.SetCellValue(summarySheet, "A4", "Records")
	_ = f.SetCellValue(summarySheet, "B4", len(series))
	if len(series) > 0 {
		_ = f.SetCellValue(summarySheet, "A5", "Logger Type")
		_ = f.SetCellValue(summarySheet, "B5", string(series[0].LoggerType))
		_ = f.SetCellValue(summarySheet, "A6", "From")
		_ = f.SetCellValue(summarySheet, "B6", series[0].Timestamp.In(loc).Format(time.RFC3339))
		_ = f.SetCellValue(summarySheet, "A7", "To")
		_ = f.SetCellValue(summarySheet, "B7", series[len(series)-1].Timestamp.In(loc).Format(time.RFC3339))
	}

	metaKeys := metadataKeys(series)
	header := append([]any{"Timestamp", "Active Power (W)", "Energy Daily (kWh)", "Irradiance (W/m2)"}, toAny(metaKeys)...)
	if err := f.SetSheetRow(seriesSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, m := range series {
		row := []any{m.Timestamp.In(loc).Format("2006-01-02 15:04:05"), cell(m.ActivePowerW), cell(m.EnergyDailyKWh), cell(m.Irradiance)}
		for _, key := range metaKeys {
			row = append(row, metaCell(m.Metadata, key))
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(seriesSheet, axis, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDiagnosticsPDF renders a diagnostics report.
func BuildDiagnosticsPDF(report diagnostics.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Logger Diagnostics")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Logger: %s (%s)", report.LoggerID, report.LoggerType))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", report.From.Format(time.RFC3339), report.To.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Health: %s", strings.ToUpper(string(report.OverallHealth))))
	pdf.Ln(5)
	pdf.Cell(0, 6, report.Summary)
	pdf.Ln(8)

	if len(report.Issues) == 0 {
		return output(pdf)
	}
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(22, 6, "Code", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(14, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, "Last Seen", "1", 0, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Description / Fix", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, issue := range report.Issues {
		pdf.CellFormat(22, 6, issue.Code, "1", 0, "L", false, 0, "")
		pdf.CellFormat(18, 6, string(issue.Severity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(14, 6, fmt.Sprintf("%d", issue.Occurrences), "1", 0, "R", false, 0, "")
		pdf.CellFormat(34, 6, issue.LastSeen.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(0, 6, issue.Description+" / "+issue.SuggestedFix, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	if report.IssueCount > len(report.Issues) {
		pdf.Ln(2)
		pdf.Cell(0, 6, fmt.Sprintf("%d more issue(s) not shown", report.IssueCount-len(report.Issues)))
	}
	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func metadataKeys(series []measurement.Measurement) []string {
	seen := make(map[string]struct{})
	for _, m := range series {
		for k := range m.Metadata {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func metaCell(meta measurement.Metadata, key string) any {
	v, ok := meta[key]
	if !ok {
		return nil
	}
	if f, ok := v.Float(); ok {
		return f
	}
	return v.String()
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
