package inmemdb

import (
	"context"
	"sort"

	"github.com/attendify/attendify/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(filter), nil
}

func (repo *attendanceRepository) query(filter attendance.RecordFilter) []attendance.Record {
	records := make([]attendance.Record, 0)
	for _, rec := range repo.db.records {
		if filter.Match(rec) {
			records = append(records, rec)
		}
	}
	sortRecords(records)
	return records
}

func (repo *attendanceRepository) GetClosure(_ context.Context, date string) (attendance.Closure, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.closures[date]; ok {
		return c, nil
	}
	return attendance.Closure{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) QueryClosures(_ context.Context) ([]attendance.Closure, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	closures := make([]attendance.Closure, 0, len(repo.db.closures))
	for _, c := range repo.db.closures {
		closures = append(closures, c)
	}
	sort.Slice(closures, func(i, j int) bool { return closures[i].Date > closures[j].Date })
	return closures, nil
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, date, studentID string, mutate attendance.MutateFunc) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, closed := repo.db.closures[date]; closed {
		return attendance.Record{}, attendance.ErrDayClosed
	}
	key := attendance.RecordKey(date, studentID)
	cur, found := repo.db.records[key]
	rec, err := mutate(cur, found)
	if err != nil {
		return attendance.Record{}, err
	}
	rec.Date, rec.StudentID = date, studentID
	repo.db.records[key] = rec
	return rec, nil
}

func (repo *attendanceRepository) CloseDay(ctx context.Context, date string, plan attendance.PlanFunc) (attendance.Closure, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, closed := repo.db.closures[date]; closed {
		return attendance.Closure{}, attendance.ErrDayClosed
	}
	ledger := attendance.NewLedger(date, repo.query(attendance.RecordFilter{Date: date}))
	records, closure, err := plan(ctx, ledger)
	if err != nil {
		return attendance.Closure{}, err
	}
	for _, rec := range records {
		repo.db.records[rec.Key()] = rec
	}
	repo.db.closures[date] = closure
	return closure, nil
}
