package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/student"
)

type (
	// DateSummary counts one date's attendance.
	DateSummary struct {
		Date    string `json:"date"`
		Present int    `json:"present"`
		Absent  int    `json:"absent"`
		Closed  bool   `json:"closed"`
	}

	// DateRow is a record joined with its student's name.
	DateRow struct {
		StudentID      string    `json:"student_id"`
		StudentName    string    `json:"student_name"`
		StudentDeleted bool      `json:"student_deleted"`
		Status         Status    `json:"status"`
		Rating         int       `json:"rating"`
		Timestamp      time.Time `json:"timestamp"`
	}

	DateReport struct {
		Date    string     `json:"date"`
		Closed  bool       `json:"closed"`
		EndedAt *time.Time `json:"ended_at,omitempty"`
		Rows    []DateRow  `json:"rows"`
	}

	StudentStats struct {
		Total         int     `json:"total"`
		Present       int     `json:"present"`
		Absent        int     `json:"absent"`
		AverageRating float64 `json:"average_rating"` // over rated present records
	}

	StudentHistory struct {
		StudentID string       `json:"student_id"`
		Records   []Record     `json:"records"` // date desc
		Stats     StudentStats `json:"stats"`
	}

	// Stats is the dashboard overview of today.
	Stats struct {
		Date          string  `json:"date"`
		TotalStudents int     `json:"total_students"`
		PresentToday  int     `json:"present_today"`
		AverageRating float64 `json:"average_rating"`
	}
)

// Dates summarizes every date having records or a closure marker, most recent first.
func (svc *Service) Dates(ctx context.Context) ([]DateSummary, error) {
	records, err := svc.repo.QueryRecords(ctx, RecordFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	closures, err := svc.repo.QueryClosures(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying closures")
	}

	byDate := make(map[string]*DateSummary)
	get := func(date string) *DateSummary {
		s, ok := byDate[date]
		if !ok {
			s = &DateSummary{Date: date}
			byDate[date] = s
		}
		return s
	}
	for _, rec := range records {
		s := get(rec.Date)
		switch rec.Status {
		case StatusPresent:
			s.Present++
		case StatusAbsent:
			s.Absent++
		}
	}
	for _, c := range closures {
		get(c.Date).Closed = true
	}

	summaries := make([]DateSummary, 0, len(byDate))
	for _, s := range byDate {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Date > summaries[j].Date })
	return summaries, nil
}

// DateReport lists the records of date with student names, ordered by name.
// Records of deleted students are kept and flagged.
func (svc *Service) DateReport(ctx context.Context, date string) (DateReport, error) {
	if !core.IsDate(date) {
		return DateReport{}, ErrInvalidDate
	}
	records, err := svc.repo.QueryRecords(ctx, RecordFilter{Date: date})
	if err != nil {
		return DateReport{}, errors.Wrap(err, "querying records")
	}
	roster, err := svc.roster.QueryAll(ctx)
	if err != nil {
		return DateReport{}, errors.Wrap(err, "querying roster")
	}
	names := rosterNames(roster)

	report := DateReport{Date: date, Rows: make([]DateRow, 0, len(records))}
	for _, rec := range records {
		name, ok := names[rec.StudentID]
		report.Rows = append(report.Rows, DateRow{
			StudentID:      rec.StudentID,
			StudentName:    name,
			StudentDeleted: !ok,
			Status:         rec.Status,
			Rating:         rec.Rating,
			Timestamp:      rec.Timestamp,
		})
	}
	sort.SliceStable(report.Rows, func(i, j int) bool {
		ri, rj := report.Rows[i], report.Rows[j]
		if ri.StudentName != rj.StudentName {
			return ri.StudentName < rj.StudentName
		}
		return ri.StudentID < rj.StudentID
	})

	closure, err := svc.repo.GetClosure(ctx, date)
	switch errors.Cause(err) {
	case nil:
		report.Closed = true
		endedAt := closure.EndedAt
		report.EndedAt = &endedAt
	case ErrNotFound:
	default:
		return DateReport{}, errors.Wrap(err, "getting closure")
	}
	return report, nil
}

// StudentHistory returns the records of studentID, most recent first, keeping only status when set.
// Stats always cover every record.
func (svc *Service) StudentHistory(ctx context.Context, studentID string, status Status) (StudentHistory, error) {
	if status != "" && !status.Valid() {
		return StudentHistory{}, ErrInvalidStatus
	}
	records, err := svc.repo.QueryRecords(ctx, RecordFilter{StudentID: studentID})
	if err != nil {
		return StudentHistory{}, errors.Wrap(err, "querying records")
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date > records[j].Date })

	hist := StudentHistory{StudentID: studentID, Records: make([]Record, 0, len(records))}
	var rated, ratingSum int
	for _, rec := range records {
		hist.Stats.Total++
		switch rec.Status {
		case StatusPresent:
			hist.Stats.Present++
			if rec.Rating > 0 {
				rated++
				ratingSum += rec.Rating
			}
		case StatusAbsent:
			hist.Stats.Absent++
		}
		if status == "" || rec.Status == status {
			hist.Records = append(hist.Records, rec)
		}
	}
	if rated > 0 {
		hist.Stats.AverageRating = core.Round1(float64(ratingSum) / float64(rated))
	}
	return hist, nil
}

// Stats returns the roster size and today's attendance. The average covers all of today's records.
func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	today := svc.Today()
	roster, err := svc.roster.QueryAll(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying roster")
	}
	records, err := svc.repo.QueryRecords(ctx, RecordFilter{Date: today})
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying records")
	}

	stats := Stats{Date: today, TotalStudents: len(roster)}
	var ratingSum int
	for _, rec := range records {
		if rec.Status == StatusPresent {
			stats.PresentToday++
		}
		ratingSum += rec.Rating
	}
	if len(records) > 0 {
		stats.AverageRating = core.Round1(float64(ratingSum) / float64(len(records)))
	}
	return stats, nil
}

func rosterNames(roster []student.Student) map[string]string {
	names := make(map[string]string, len(roster))
	for _, std := range roster {
		names[std.ID] = std.Name
	}
	return names
}
