package exportsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/attendify/attendify/core/attendance"
)

func TestWriteDateReport(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	report := attendance.DateReport{
		Date:   "2024-03-01",
		Closed: true,
		Rows: []attendance.DateRow{
			{StudentID: "a", StudentName: "Abanoub", Status: attendance.StatusPresent, Rating: 8, Timestamp: ts},
			{StudentID: "b", StudentName: "Bishoy", Status: attendance.StatusPresent, Rating: 9, Timestamp: ts},
			{StudentID: "c", StudentName: "", StudentDeleted: true, Status: attendance.StatusAbsent, Timestamp: ts},
		},
	}

	data, err := DateReportBytes(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(attendanceSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Student", "Status", "Rating", "Time", "Removed"}, rows[0])
	assert.Equal(t, []string{"Abanoub", "present", "8", "09:30:00"}, rows[1])
	assert.Equal(t, []string{"", "absent", "", "09:30:00", "yes"}, rows[3])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Date", "2024-03-01"},
		{"Status", "closed"},
		{"Present", "2"},
		{"Absent", "1"},
		{"Average rating", "8.5"},
	}, summary)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "attendance-2024-03-01.xlsx", Filename("2024-03-01"))
}
