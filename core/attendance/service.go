package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/student"
)

var nowFunc = time.Now // mockable

type (
	// Roster is the read side of the student roster.
	Roster interface {
		QueryAll(ctx context.Context) ([]student.Student, error)
		FindByScanKey(ctx context.Context, raw string) (student.Student, error)
	}

	// Listener is notified after successful attendance writes.
	Listener interface {
		RecordUpdated(rec Record)
		DayClosed(ledger Ledger, closure Closure)
	}

	Options struct {
		// DefaultPresentRating is given to unrated present students on closure; see DefaultPresentRating.
		DefaultPresentRating int
		// Location defines "today"; UTC when nil.
		Location  *time.Location
		Listeners []Listener
	}

	Service struct {
		repo          Repository
		roster        Roster
		defaultRating int
		loc           *time.Location
		listeners     []Listener
	}
)

func NewService(repo Repository, roster Roster, opts Options) *Service {
	svc := &Service{
		repo:          repo,
		roster:        roster,
		defaultRating: opts.DefaultPresentRating,
		loc:           opts.Location,
		listeners:     opts.Listeners,
	}
	if svc.defaultRating < MinRating || svc.defaultRating > MaxRating {
		svc.defaultRating = DefaultPresentRating
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	return svc
}

// AddListener registers l for the following writes. It is not safe to call concurrently with writes.
func (svc *Service) AddListener(l Listener) {
	svc.listeners = append(svc.listeners, l)
}

// Today returns the current date in the service location.
func (svc *Service) Today() string {
	return core.FormatDate(nowFunc(), svc.loc)
}

func (svc *Service) LoadForDate(ctx context.Context, date string) (Ledger, error) {
	if !core.IsDate(date) {
		return Ledger{}, ErrInvalidDate
	}
	records, err := svc.repo.QueryRecords(ctx, RecordFilter{Date: date})
	if err != nil {
		return Ledger{}, errors.Wrap(err, "querying records")
	}
	ledger := NewLedger(date, records)
	if ledger.Closed, err = svc.IsDayClosed(ctx, date); err != nil {
		return Ledger{}, err
	}
	return ledger, nil
}

func (svc *Service) IsDayClosed(ctx context.Context, date string) (bool, error) {
	if !core.IsDate(date) {
		return false, ErrInvalidDate
	}
	if _, err := svc.repo.GetClosure(ctx, date); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting closure")
	}
	return true, nil
}

// SetStatus upserts the status of studentID on date, keeping any existing rating.
func (svc *Service) SetStatus(ctx context.Context, studentID string, status Status, date string) (Entry, error) {
	if !status.Valid() {
		return Entry{}, ErrInvalidStatus
	}
	if !core.IsDate(date) {
		return Entry{}, ErrInvalidDate
	}

	rec, err := svc.repo.UpdateRecord(ctx, date, studentID, func(cur Record, found bool) (Record, error) {
		if !found {
			cur = Record{Date: date, StudentID: studentID}
		}
		cur.Status = status
		cur.Timestamp = nowFunc().UTC()
		return cur, nil
	})
	if err != nil {
		return Entry{}, err
	}
	svc.notifyRecord(rec)
	return rec.Entry(), nil
}

// SetRating rates a present student on date.
func (svc *Service) SetRating(ctx context.Context, studentID string, rating int, date string) (Entry, error) {
	if rating < MinRating || rating > MaxRating {
		return Entry{}, ErrInvalidRating
	}
	if !core.IsDate(date) {
		return Entry{}, ErrInvalidDate
	}

	rec, err := svc.repo.UpdateRecord(ctx, date, studentID, func(cur Record, found bool) (Record, error) {
		if !found || cur.Status != StatusPresent {
			return Record{}, ErrInvalidState
		}
		cur.Rating = rating
		cur.Timestamp = nowFunc().UTC()
		return cur, nil
	})
	if err != nil {
		return Entry{}, err
	}
	svc.notifyRecord(rec)
	return rec.Entry(), nil
}

// CloseDay applies the closure policy to date against the current roster and locks it.
// closedBy identifies the actor (user ID, "scheduler", "cli").
//
// The roster is read inside the store's critical section, so a student created before the
// closure started is covered; one created while it runs is ordered after it.
func (svc *Service) CloseDay(ctx context.Context, date, closedBy string) (Ledger, error) {
	if !core.IsDate(date) {
		return Ledger{}, ErrInvalidDate
	}

	var ledger Ledger
	var planned []Record
	closure, err := svc.repo.CloseDay(ctx, date, func(ctx context.Context, current Ledger) ([]Record, Closure, error) {
		roster, err := svc.roster.QueryAll(ctx)
		if err != nil {
			return nil, Closure{}, errors.Wrap(err, "querying roster")
		}
		records, closure := PlanClosure(current, roster, svc.defaultRating, nowFunc())
		closure.ClosedBy = closedBy
		ledger, planned = closedLedger(current, records), records
		return records, closure, nil
	})
	if err != nil {
		return Ledger{}, err
	}

	for _, rec := range planned {
		svc.notifyRecord(rec)
	}
	for _, l := range svc.listeners {
		l.DayClosed(ledger, closure)
	}
	return ledger, nil
}

// closedLedger is current with the closure records applied.
func closedLedger(current Ledger, records []Record) Ledger {
	ledger := Ledger{Date: current.Date, Entries: make(map[string]Entry, len(current.Entries)+len(records)), Closed: true}
	for id, e := range current.Entries {
		ledger.Entries[id] = e
	}
	for _, rec := range records {
		ledger.Entries[rec.StudentID] = rec.Entry()
	}
	return ledger
}

// MarkScanned resolves raw to a roster student and marks them present on date.
// An unknown raw value yields student.ErrNotFound and no write.
func (svc *Service) MarkScanned(ctx context.Context, raw, date string) (student.Student, Entry, error) {
	std, err := svc.roster.FindByScanKey(ctx, raw)
	if err != nil {
		return student.Student{}, Entry{}, err
	}
	entry, err := svc.SetStatus(ctx, std.ID, StatusPresent, date)
	if err != nil {
		return student.Student{}, Entry{}, err
	}
	return std, entry, nil
}

func (svc *Service) notifyRecord(rec Record) {
	for _, l := range svc.listeners {
		l.RecordUpdated(rec)
	}
}
