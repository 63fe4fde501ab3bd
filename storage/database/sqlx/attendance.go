package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/attendify/attendify/core/attendance"
)

const (
	recordColumns  = `id, date, student_id, status, rating, timestamp`
	closureColumns = `date, ended, ended_at, closed_by`

	upsertRecordQuery = `INSERT INTO attendance (` + recordColumns + `)
		VALUES (:id, :date, :student_id, :status, :rating, :timestamp)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, rating = EXCLUDED.rating, timestamp = EXCLUDED.timestamp`
)

type recordRow struct {
	ID        string    `db:"id"`
	Date      string    `db:"date"`
	StudentID string    `db:"student_id"`
	Status    string    `db:"status"`
	Rating    int       `db:"rating"`
	Timestamp time.Time `db:"timestamp"`
}

func toRecordRow(rec attendance.Record) recordRow {
	return recordRow{
		ID:        rec.Key(),
		Date:      rec.Date,
		StudentID: rec.StudentID,
		Status:    string(rec.Status),
		Rating:    rec.Rating,
		Timestamp: rec.Timestamp.UTC(),
	}
}

func (r recordRow) record() attendance.Record {
	return attendance.Record{
		Date:      r.Date,
		StudentID: r.StudentID,
		Status:    attendance.Status(r.Status),
		Rating:    r.Rating,
		Timestamp: r.Timestamp.UTC(),
	}
}

type closureRow struct {
	Date     string    `db:"date"`
	Ended    bool      `db:"ended"`
	EndedAt  time.Time `db:"ended_at"`
	ClosedBy string    `db:"closed_by"`
}

func (r closureRow) closure() attendance.Closure {
	return attendance.Closure{Date: r.Date, Ended: r.Ended, EndedAt: r.EndedAt.UTC(), ClosedBy: r.ClosedBy}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	var w where
	if filter.Date != "" {
		w.add("date = ?", filter.Date)
	}
	if filter.StudentID != "" {
		w.add("student_id = ?", filter.StudentID)
	}
	return queryRecords(ctx, repo.db, w)
}

func queryRecords(ctx context.Context, q sqlx.QueryerContext, w where) ([]attendance.Record, error) {
	var rows []recordRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT `+recordColumns+` FROM attendance`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

func (repo *attendanceRepository) GetClosure(ctx context.Context, date string) (attendance.Closure, error) {
	var row closureRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+closureColumns+` FROM attendance_end WHERE date = $1`, date); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Closure{}, attendance.ErrNotFound
		}
		return attendance.Closure{}, errors.Wrap(err, "selecting closure")
	}
	return row.closure(), nil
}

func (repo *attendanceRepository) QueryClosures(ctx context.Context) ([]attendance.Closure, error) {
	var rows []closureRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+closureColumns+` FROM attendance_end ORDER BY date DESC`); err != nil {
		return nil, errors.Wrap(err, "selecting closures")
	}
	closures := make([]attendance.Closure, 0, len(rows))
	for _, row := range rows {
		closures = append(closures, row.closure())
	}
	return closures, nil
}

// lockOpenDate takes the transaction-scoped lock of date and fails with ErrDayClosed when it is closed.
// Every write of a date's records goes through it, so closures and mutations are serialized per date.
func lockOpenDate(ctx context.Context, tx *sqlx.Tx, date string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, date); err != nil {
		return errors.Wrap(err, "locking date")
	}
	var closed bool
	if err := tx.GetContext(ctx, &closed, `SELECT EXISTS (SELECT 1 FROM attendance_end WHERE date = $1)`, date); err != nil {
		return errors.Wrap(err, "checking closure")
	}
	if closed {
		return attendance.ErrDayClosed
	}
	return nil
}

func (repo *attendanceRepository) UpdateRecord(ctx context.Context, date, studentID string, mutate attendance.MutateFunc) (attendance.Record, error) {
	var rec attendance.Record
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := lockOpenDate(ctx, tx, date); err != nil {
			return err
		}

		var (
			row   recordRow
			cur   attendance.Record
			found = true
		)
		err := tx.GetContext(ctx, &row, `SELECT `+recordColumns+` FROM attendance WHERE id = $1`, attendance.RecordKey(date, studentID))
		switch err {
		case nil:
			cur = row.record()
		case sql.ErrNoRows:
			found = false
		default:
			return errors.Wrap(err, "selecting record")
		}

		if rec, err = mutate(cur, found); err != nil {
			return err
		}
		rec.Date, rec.StudentID = date, studentID
		_, err = tx.NamedExecContext(ctx, upsertRecordQuery, toRecordRow(rec))
		return errors.Wrap(err, "upserting record")
	})
	if err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

func (repo *attendanceRepository) CloseDay(ctx context.Context, date string, plan attendance.PlanFunc) (attendance.Closure, error) {
	var closure attendance.Closure
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := lockOpenDate(ctx, tx, date); err != nil {
			return err
		}

		var w where
		w.add("date = ?", date)
		current, err := queryRecords(ctx, tx, w)
		if err != nil {
			return err
		}

		var records []attendance.Record
		records, closure, err = plan(ctx, attendance.NewLedger(date, current))
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareNamedContext(ctx, upsertRecordQuery)
		if err != nil {
			return errors.Wrap(err, "preparing upsert")
		}
		defer func() { _ = stmt.Close() }()
		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, toRecordRow(rec)); err != nil {
				return errors.Wrapf(err, "upserting record %s", rec.Key())
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO attendance_end (`+closureColumns+`) VALUES ($1, $2, $3, $4)`,
			closure.Date, closure.Ended, closure.EndedAt.UTC(), closure.ClosedBy)
		return errors.Wrap(err, "inserting closure")
	})
	if err != nil {
		return attendance.Closure{}, err
	}
	return closure, nil
}
