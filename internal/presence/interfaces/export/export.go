// Package export renders per-person presence statistics as downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"netpresence/internal/presence/application"
)

// Format is a supported export file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for unknown export formats.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// ParseFormat maps a query value to a Format. Empty means xlsx.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Filename builds the attachment name for a person's report.
func Filename(hostname string, f Format, generated time.Time) string {
	return fmt.Sprintf("presence_%s_%s.%s", sanitize(hostname), generated.Format("20060102"), f)
}

// Render builds the file for stats in the requested format.
func Render(stats application.PersonStats, f Format, generated time.Time) ([]byte, error) {
	stats = stats.Rounded()
	switch f {
	case FormatXLSX:
		return BuildPersonStatsXLSX(stats, generated)
	case FormatPDF:
		return BuildPersonStatsPDF(stats, generated)
	case FormatCSV:
		return BuildPersonStatsCSV(stats)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// BuildPersonStatsPDF renders a one-page PDF report.
func BuildPersonStatsPDF(stats application.PersonStats, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Presence Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Hostname: %s", stats.Hostname))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", period(stats)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Online days: %d", stats.Summary.TotalOnlineDays))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Average hours per day: %.2f", stats.Summary.AverageHoursPerDay))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Max hours online: %.2f", stats.Summary.MaxHoursOnline))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Online hours", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Offline intervals", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range stats.Days {
		pdf.CellFormat(40, 6, day.Day, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", day.OnlineHours), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, strconv.Itoa(day.OfflineIntervals), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPersonStatsXLSX renders a workbook with summary and days sheets.
func BuildPersonStatsXLSX(stats application.PersonStats, generated time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	daysSheet := "days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Presence Report")
	_ = f.SetCellValue(summarySheet, "A3", "Hostname")
	_ = f.SetCellValue(summarySheet, "B3", stats.Hostname)
	_ = f.SetCellValue(summarySheet, "A4", "Period")
	_ = f.SetCellValue(summarySheet, "B4", period(stats))
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", generated.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Online days")
	_ = f.SetCellValue(summarySheet, "B6", stats.Summary.TotalOnlineDays)
	_ = f.SetCellValue(summarySheet, "A7", "Average hours per day")
	_ = f.SetCellValue(summarySheet, "B7", stats.Summary.AverageHoursPerDay)
	_ = f.SetCellValue(summarySheet, "A8", "Max hours online")
	_ = f.SetCellValue(summarySheet, "B8", stats.Summary.MaxHoursOnline)

	_ = f.SetCellValue(daysSheet, "A1", "Day")
	_ = f.SetCellValue(daysSheet, "B1", "Online hours")
	_ = f.SetCellValue(daysSheet, "C1", "Offline intervals")
	for i, day := range stats.Days {
		row := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), day.Day)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), day.OnlineHours)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", row), day.OfflineIntervals)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPersonStatsCSV renders one row per day.
func BuildPersonStatsCSV(stats application.PersonStats) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"hostname", "day", "online_hours", "offline_intervals"})
	for _, day := range stats.Days {
		_ = writer.Write([]string{
			stats.Hostname,
			day.Day,
			strconv.FormatFloat(day.OnlineHours, 'f', 2, 64),
			strconv.Itoa(day.OfflineIntervals),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func period(stats application.PersonStats) string {
	if len(stats.Days) == 0 {
		return ""
	}
	return stats.Days[0].Day + " .. " + stats.Days[len(stats.Days)-1].Day
}

func sanitize(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}
