package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/shift-roster/internal/application"
	"github.com/example/shift-roster/internal/shift"
)

func TestWriteReport(t *testing.T) {
	report := application.Report{
		Day:    "2024-03-10",
		Source: application.ReportSourceHistory,
		Rows: []application.ReportRow{
			{PersonID: 1, Name: "Ana", Location: "Gate 1", Status: shift.StatusDone, StartTime: "08:00", EndTime: "09:15"},
			{PersonID: 2, Name: "Bruno", Status: shift.StatusActive, StartTime: "23:50", EndTime: "01:05", Message: "night"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewXLSXWriter().WriteReport(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"2024-03-10"}, f.GetSheetList())
	rows, err := f.GetRows("2024-03-10")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"1", "Ana", "Gate 1", "done", "08:00", "09:15"}, rows[1])
	assert.Equal(t, []string{"2", "Bruno", "", "active", "23:50", "01:05", "night"}, rows[2])

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "source: history", props.Description)
}

func TestWriteReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXLSXWriter().WriteReport(&buf, application.Report{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("report")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
