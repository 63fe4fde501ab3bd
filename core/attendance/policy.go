package attendance

import (
	"time"

	"github.com/attendify/attendify/core/student"
)

// DefaultPresentRating is given to present students left unrated when their day is closed.
const DefaultPresentRating = MaxRating

// PlanClosure applies the day-closure policy to ledger:
//   - every roster student not marked present is set absent with rating 0
//   - every present student keeps a rating > 0, otherwise gets defaultRating
//
// Ledger entries of students missing from roster are left untouched.
func PlanClosure(ledger Ledger, roster []student.Student, defaultRating int, now time.Time) ([]Record, Closure) {
	if defaultRating < MinRating || defaultRating > MaxRating {
		defaultRating = DefaultPresentRating
	}
	now = now.UTC()

	records := make([]Record, 0, len(roster))
	for _, std := range roster {
		rec := Record{
			Date:      ledger.Date,
			StudentID: std.ID,
			Status:    StatusAbsent,
			Timestamp: now,
		}
		if e, ok := ledger.Entry(std.ID); ok && e.Status == StatusPresent {
			rec.Status = StatusPresent
			rec.Rating = e.Rating
			if rec.Rating <= 0 {
				rec.Rating = defaultRating
			}
		}
		records = append(records, rec)
	}
	return records, Closure{Date: ledger.Date, Ended: true, EndedAt: now}
}
