package attendance

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Rating bounds. 0 means unrated and is never set directly.
const (
	MinRating = 1
	MaxRating = 10
)

var (
	// errors
	ErrDayClosed     = errors.New("attendance for this day has been closed")
	ErrInvalidState  = errors.New("only present students can be rated")
	ErrInvalidRating = errors.New("rating must be between 1 and 10")
	ErrInvalidStatus = errors.New("status must be one of present or absent")
	ErrInvalidDate   = errors.New("date must be formatted as yyyy-MM-dd")
	ErrNotFound      = errors.New("attendance not found")
)

// Record is the attendance of one student on one date. (Date, StudentID) is unique.
type Record struct {
	Date      string    `json:"date"` // yyyy-MM-dd
	StudentID string    `json:"student_id"`
	Status    Status    `json:"status"`
	Rating    int       `json:"rating"`
	Timestamp time.Time `json:"timestamp"` // UTC; last write
}

func (r Record) Key() string {
	return RecordKey(r.Date, r.StudentID)
}

func (r Record) Entry() Entry {
	return Entry{Status: r.Status, Rating: r.Rating}
}

// RecordKey is the store key of the (date, studentID) record.
func RecordKey(date, studentID string) string {
	return date + "_" + studentID
}

// Closure marks a date as ended. Once written, records of that date are immutable.
type Closure struct {
	Date     string    `json:"date"`
	Ended    bool      `json:"ended"`
	EndedAt  time.Time `json:"ended_at"` // UTC
	ClosedBy string    `json:"closed_by"`
}

// Entry is a student's status and rating within a Ledger.
type Entry struct {
	Status Status `json:"status"`
	Rating int    `json:"rating"`
}

// Ledger is a snapshot of one date's attendance, keyed by student ID.
type Ledger struct {
	Date    string           `json:"date"`
	Closed  bool             `json:"closed"`
	Entries map[string]Entry `json:"entries"`
}

// NewLedger builds the Ledger of date from its records.
func NewLedger(date string, records []Record) Ledger {
	l := Ledger{Date: date, Entries: make(map[string]Entry, len(records))}
	for _, rec := range records {
		if rec.Date == date {
			l.Entries[rec.StudentID] = rec.Entry()
		}
	}
	return l
}

// Entry returns the entry of studentID and whether it has been marked.
func (l Ledger) Entry(studentID string) (Entry, bool) {
	e, ok := l.Entries[studentID]
	return e, ok
}

func (l Ledger) Count(status Status) int {
	var n int
	for _, e := range l.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// RecordFilter selects records by exact match. Empty fields match everything.
type RecordFilter struct {
	Date      string
	StudentID string
}

func (f RecordFilter) Match(rec Record) bool {
	return (f.Date == "" || rec.Date == f.Date) && (f.StudentID == "" || rec.StudentID == f.StudentID)
}

type (
	// MutateFunc computes the new record from the current one; found is false when no record exists yet.
	// Returning an error aborts the write.
	MutateFunc func(cur Record, found bool) (Record, error)

	// PlanFunc computes the records and the marker to write when closing the day of ledger.
	// It runs inside the store's critical section for the date; returning an error aborts the closure.
	PlanFunc func(ctx context.Context, ledger Ledger) ([]Record, Closure, error)

	Repository interface {
		QueryRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
		// GetClosure returns ErrNotFound when date is open.
		GetClosure(ctx context.Context, date string) (Closure, error)
		QueryClosures(ctx context.Context) ([]Closure, error)
		// UpdateRecord atomically reads the (date, studentID) record, fails with ErrDayClosed when date
		// is closed, then stores what mutate returns.
		UpdateRecord(ctx context.Context, date, studentID string, mutate MutateFunc) (Record, error)
		// CloseDay atomically fails with ErrDayClosed when date is closed, otherwise loads the current
		// ledger of date, then writes the planned records followed by the closure marker.
		CloseDay(ctx context.Context, date string, plan PlanFunc) (Closure, error)
	}
)
