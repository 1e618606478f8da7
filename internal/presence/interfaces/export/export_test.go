package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"netpresence/internal/presence/application"
)

var generated = time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)

func sampleStats() application.PersonStats {
	return application.PersonStats{
		Hostname: "alice-laptop",
		Known:    true,
		Days: []application.DayStats{
			{Day: "2024-03-06", OnlineHours: 7.256, OfflineIntervals: 2},
			{Day: "2024-03-07", OnlineHours: 0, OfflineIntervals: 0},
		},
		Summary: application.Summary{TotalOnlineDays: 1, AverageHoursPerDay: 3.628, MaxHoursOnline: 7.256},
	}
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{"": FormatXLSX, "XLSX": FormatXLSX, "pdf": FormatPDF, " csv ": FormatCSV} {
		got, err := ParseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRender_XLSX(t *testing.T) {
	data, err := Render(sampleStats(), FormatXLSX, generated)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	host, err := f.GetCellValue("summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "alice-laptop", host)

	rows, err := f.GetRows("days")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2024-03-06", "7.26", "2"}, rows[1])
}

func TestRender_PDF(t *testing.T) {
	data, err := Render(sampleStats(), FormatPDF, generated)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRender_CSV(t *testing.T) {
	data, err := Render(sampleStats(), FormatCSV, generated)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"hostname", "day", "online_hours", "offline_intervals"}, records[0])
	assert.Equal(t, []string{"alice-laptop", "2024-03-06", "7.26", "2"}, records[1])
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render(sampleStats(), Format("docx"), generated)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "presence_alice_s_pc_20240308.pdf", Filename("alice's pc", FormatPDF, generated))
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
}
