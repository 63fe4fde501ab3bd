// Package exportsvc renders attendance reports as spreadsheets.
package exportsvc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/attendify/attendify/core/attendance"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	attendanceSheet = "Attendance"
	summarySheet    = "Summary"
	timeLayout      = "15:04:05"
)

var header = []interface{}{"Student", "Status", "Rating", "Time", "Removed"}

// Filename is the download name of the export of date.
func Filename(date string) string {
	return "attendance-" + date + ".xlsx"
}

// WriteDateReport writes report as an XLSX workbook to w: one row per record
// followed by a summary sheet.
func WriteDateReport(w io.Writer, report attendance.DateReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", attendanceSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	if err := f.SetSheetRow(attendanceSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	var present, absent, rated, ratingSum int
	for i, row := range report.Rows {
		var rating interface{}
		if row.Rating > 0 {
			rating = row.Rating
		}
		removed := ""
		if row.StudentDeleted {
			removed = "yes"
		}
		values := []interface{}{row.StudentName, string(row.Status), rating, row.Timestamp.Format(timeLayout), removed}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(attendanceSheet, cell, &values); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}

		switch row.Status {
		case attendance.StatusPresent:
			present++
			if row.Rating > 0 {
				rated++
				ratingSum += row.Rating
			}
		case attendance.StatusAbsent:
			absent++
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return errors.Wrap(err, "creating summary sheet")
	}
	status := "open"
	if report.Closed {
		status = "closed"
	}
	var avg string
	if rated > 0 {
		avg = fmt.Sprintf("%.1f", float64(ratingSum)/float64(rated))
	}
	summary := [][]interface{}{
		{"Date", report.Date},
		{"Status", status},
		{"Present", present},
		{"Absent", absent},
		{"Average rating", avg},
	}
	for i, values := range summary {
		values := values
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &values); err != nil {
			return errors.Wrap(err, "writing summary")
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

// DateReportBytes is WriteDateReport into memory.
func DateReportBytes(report attendance.DateReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteDateReport(&buf, report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
