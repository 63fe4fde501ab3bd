package firestorerepos

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/grpc/status"

	"github.com/attendify/attendify/core/attendance"
)

// claimTTL bounds how long an unfinished chunked closure keeps a date locked.
const claimTTL = time.Minute

type recordDoc struct {
	Date      string    `firestore:"date"`
	StudentID string    `firestore:"studentId"`
	Status    string    `firestore:"status"`
	Rating    int       `firestore:"rating"`
	Timestamp time.Time `firestore:"timestamp"`
}

// closureDoc is the attendance_end marker. Closing is set while a chunked closure is in progress;
// ClaimID identifies the CloseDay call holding it.
type closureDoc struct {
	Date      string    `firestore:"date"`
	Ended     bool      `firestore:"ended"`
	EndedAt   time.Time `firestore:"endedAt"`
	ClosedBy  string    `firestore:"closedBy"`
	Closing   bool      `firestore:"closing,omitempty"`
	ClaimID   string    `firestore:"claimId,omitempty"`
	ClaimedAt time.Time `firestore:"claimedAt,omitempty"`
}

func claimDoc(date, claimID string, now time.Time) closureDoc {
	return closureDoc{Date: date, Closing: true, ClaimID: claimID, ClaimedAt: now.UTC()}
}

func toRecordDoc(rec attendance.Record) recordDoc {
	return recordDoc{
		Date:      rec.Date,
		StudentID: rec.StudentID,
		Status:    string(rec.Status),
		Rating:    rec.Rating,
		Timestamp: rec.Timestamp.UTC(),
	}
}

func decodeRecord(doc *firestore.DocumentSnapshot) (attendance.Record, error) {
	var d recordDoc
	if err := doc.DataTo(&d); err != nil {
		return attendance.Record{}, err
	}
	return attendance.Record{
		Date:      d.Date,
		StudentID: d.StudentID,
		Status:    attendance.Status(d.Status),
		Rating:    d.Rating,
		Timestamp: d.Timestamp.UTC(),
	}, nil
}

func decodeClosure(doc *firestore.DocumentSnapshot) (closureDoc, error) {
	var d closureDoc
	if err := doc.DataTo(&d); err != nil {
		return closureDoc{}, err
	}
	if d.Date == "" {
		d.Date = doc.Ref.ID
	}
	return d, nil
}

func (d closureDoc) closure() attendance.Closure {
	return attendance.Closure{Date: d.Date, Ended: d.Ended, EndedAt: d.EndedAt.UTC(), ClosedBy: d.ClosedBy}
}

// locked reports whether the marker forbids record writes at now.
func (d closureDoc) locked(now time.Time) bool {
	return d.Ended || (d.Closing && now.Sub(d.ClaimedAt) < claimTTL)
}

// heldBy reports whether the marker is an unexpired claim taken by claimID at now.
func (d closureDoc) heldBy(claimID string, now time.Time) bool {
	return !d.Ended && d.Closing && claimID != "" && d.ClaimID == claimID && now.Sub(d.ClaimedAt) < claimTTL
}

type attendanceRepository struct {
	client *firestore.Client
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(client *firestore.Client) attendance.Repository {
	return &attendanceRepository{client: client}
}

func (repo *attendanceRepository) records() *firestore.CollectionRef {
	return repo.client.Collection(attendanceCollection)
}

func (repo *attendanceRepository) closures() *firestore.CollectionRef {
	return repo.client.Collection(closuresCollection)
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	q := repo.records().Query
	if filter.Date != "" {
		q = q.Where("date", "==", filter.Date)
	}
	if filter.StudentID != "" {
		q = q.Where("studentId", "==", filter.StudentID)
	}
	records, err := readRecords(q.Documents(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return records, nil
}

func readRecords(iter *firestore.DocumentIterator) ([]attendance.Record, error) {
	records := make([]attendance.Record, 0)
	err := collect(iter, func(doc *firestore.DocumentSnapshot) error {
		rec, err := decodeRecord(doc)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
	return records, nil
}

func (repo *attendanceRepository) GetClosure(ctx context.Context, date string) (attendance.Closure, error) {
	doc, err := repo.closures().Doc(date).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return attendance.Closure{}, attendance.ErrNotFound
		}
		return attendance.Closure{}, errors.Wrap(err, "getting closure")
	}
	d, err := decodeClosure(doc)
	if err != nil {
		return attendance.Closure{}, err
	}
	if !d.Ended {
		return attendance.Closure{}, attendance.ErrNotFound
	}
	return d.closure(), nil
}

func (repo *attendanceRepository) QueryClosures(ctx context.Context) ([]attendance.Closure, error) {
	closures := make([]attendance.Closure, 0)
	err := collect(repo.closures().Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
		d, err := decodeClosure(doc)
		if err != nil {
			return err
		}
		if d.Ended {
			closures = append(closures, d.closure())
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying closures")
	}
	sort.Slice(closures, func(i, j int) bool { return closures[i].Date > closures[j].Date })
	return closures, nil
}

// readMarker reads the closure marker of date within tx; found is false when none exists.
func (repo *attendanceRepository) readMarker(tx *firestore.Transaction, date string) (d closureDoc, found bool, err error) {
	doc, err := tx.Get(repo.closures().Doc(date))
	if err != nil {
		if isNotFound(err) {
			return closureDoc{}, false, nil
		}
		return closureDoc{}, false, err
	}
	d, err = decodeClosure(doc)
	return d, err == nil, err
}

func (repo *attendanceRepository) UpdateRecord(ctx context.Context, date, studentID string, mutate attendance.MutateFunc) (attendance.Record, error) {
	ref := repo.records().Doc(attendance.RecordKey(date, studentID))

	var rec attendance.Record
	err := repo.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		marker, found, err := repo.readMarker(tx, date)
		if err != nil {
			return err
		}
		if found && marker.locked(time.Now()) {
			return attendance.ErrDayClosed
		}

		var cur attendance.Record
		doc, err := tx.Get(ref)
		switch {
		case err == nil:
			if cur, err = decodeRecord(doc); err != nil {
				return err
			}
		case isNotFound(err):
			doc = nil
		default:
			return err
		}

		next, err := mutate(cur, doc != nil)
		if err != nil {
			return err
		}
		next.Date, next.StudentID = date, studentID
		rec = next
		return tx.Set(ref, toRecordDoc(next))
	})
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return attendance.Record{}, errors.Wrap(err, "updating attendance")
		}
		return attendance.Record{}, err
	}
	return rec, nil
}

// CloseDay writes small days in a single transaction. Days whose plan exceeds the transaction
// write limit are closed in three steps: claim the marker, commit the records in chunks, then
// finish the marker. Every chunk and the finish run in a transaction that checks the claim is
// still ours and renews it, so a closure that lost its claim stops with ErrDayClosed.
func (repo *attendanceRepository) CloseDay(ctx context.Context, date string, plan attendance.PlanFunc) (attendance.Closure, error) {
	markerRef := repo.closures().Doc(date)
	claimID := uuid.New().String()

	var (
		records []attendance.Record
		closure attendance.Closure
		chunked bool
	)
	err := repo.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		marker, found, err := repo.readMarker(tx, date)
		if err != nil {
			return err
		}
		now := time.Now()
		if found && marker.locked(now) {
			return attendance.ErrDayClosed
		}
		current, err := readRecords(tx.Documents(repo.records().Where("date", "==", date)))
		if err != nil {
			return err
		}
		records, closure, err = plan(ctx, attendance.NewLedger(date, current))
		if err != nil {
			return err
		}

		chunked = len(records) >= maxWrites
		if !chunked {
			for _, rec := range records {
				if err := tx.Set(repo.records().Doc(rec.Key()), toRecordDoc(rec)); err != nil {
					return err
				}
			}
			return tx.Set(markerRef, toClosureDoc(closure))
		}
		return tx.Set(markerRef, claimDoc(date, claimID, now))
	})
	if err != nil {
		return attendance.Closure{}, closeError(err, "closing day")
	}
	if !chunked {
		return closure, nil
	}

	// one write of each chunk transaction renews the claim
	const chunkSize = maxWrites - 1
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		err := repo.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			if err := repo.checkClaim(tx, date, claimID); err != nil {
				return err
			}
			for _, rec := range chunk {
				if err := tx.Set(repo.records().Doc(rec.Key()), toRecordDoc(rec)); err != nil {
					return err
				}
			}
			return tx.Set(markerRef, claimDoc(date, claimID, time.Now()))
		})
		if err != nil {
			return attendance.Closure{}, closeError(err, "closing day: committing records %d-%d", start, end)
		}
	}

	err = repo.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := repo.checkClaim(tx, date, claimID); err != nil {
			return err
		}
		return tx.Set(markerRef, toClosureDoc(closure))
	})
	if err != nil {
		return attendance.Closure{}, closeError(err, "closing day: writing marker")
	}
	return closure, nil
}

// checkClaim fails with ErrDayClosed unless the marker of date is still claimed by claimID.
func (repo *attendanceRepository) checkClaim(tx *firestore.Transaction, date, claimID string) error {
	marker, found, err := repo.readMarker(tx, date)
	if err != nil {
		return err
	}
	if !found || !marker.heldBy(claimID, time.Now()) {
		return attendance.ErrDayClosed
	}
	return nil
}

func closeError(err error, format string, args ...interface{}) error {
	if errors.Cause(err) == attendance.ErrDayClosed {
		return attendance.ErrDayClosed
	}
	return errors.Wrapf(err, format, args...)
}

func toClosureDoc(c attendance.Closure) closureDoc {
	return closureDoc{Date: c.Date, Ended: c.Ended, EndedAt: c.EndedAt.UTC(), ClosedBy: c.ClosedBy}
}
