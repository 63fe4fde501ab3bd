package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/student"
	"github.com/attendify/attendify/storage/database/inmem"
)

const day = "2024-03-10"

type fixture struct {
	svc     *attendance.Service
	repo    attendance.Repository
	stdRepo student.Repository
	stdSvc  *student.Service
	a, b    student.Student
}

func setup(t *testing.T, opts ...attendance.Options) fixture {
	t.Helper()
	db := inmemdb.Open()
	f := fixture{
		repo:    inmemdb.NewAttendanceRepository(db),
		stdRepo: inmemdb.NewStudentRepository(db),
	}
	f.stdSvc = student.NewService(f.stdRepo)

	var opt attendance.Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	f.svc = attendance.NewService(f.repo, f.stdSvc, opt)

	ctx := context.Background()
	var err error
	f.a, err = f.stdSvc.Create(ctx, student.NewStudent{Name: "A", Phone: "01012345678"})
	require.NoError(t, err)
	f.b, err = f.stdSvc.Create(ctx, student.NewStudent{Name: "B", Phone: "01198765432"})
	require.NoError(t, err)
	return f
}

// countingRepo counts the writes reaching the store.
type countingRepo struct {
	attendance.Repository
	mu     sync.Mutex
	writes int
}

func (r *countingRepo) UpdateRecord(ctx context.Context, date, studentID string, mutate attendance.MutateFunc) (attendance.Record, error) {
	rec, err := r.Repository.UpdateRecord(ctx, date, studentID, mutate)
	if err == nil {
		r.mu.Lock()
		r.writes++
		r.mu.Unlock()
	}
	return rec, err
}

func (r *countingRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func TestService_SetStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	_, err = f.svc.SetRating(ctx, f.a.ID, 6, day)
	require.NoError(t, err)

	tests := []struct {
		name      string
		studentID string
		status    attendance.Status
		date      string
		want      attendance.Entry
		wantErr   error
	}{
		{name: "new record defaults rating", studentID: f.b.ID, status: attendance.StatusAbsent, date: day, want: attendance.Entry{Status: attendance.StatusAbsent}},
		{name: "keeps existing rating", studentID: f.a.ID, status: attendance.StatusPresent, date: day, want: attendance.Entry{Status: attendance.StatusPresent, Rating: 6}},
		{name: "absent keeps rating", studentID: f.a.ID, status: attendance.StatusAbsent, date: day, want: attendance.Entry{Status: attendance.StatusAbsent, Rating: 6}},
		{name: "invalid status", studentID: f.a.ID, status: "late", date: day, wantErr: attendance.ErrInvalidStatus},
		{name: "invalid date", studentID: f.a.ID, status: attendance.StatusPresent, date: "10/03/2024", wantErr: attendance.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.SetStatus(ctx, tt.studentID, tt.status, tt.date)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_SetStatusThenLoad(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, rating := range []int{0, 4} {
		_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
		require.NoError(t, err)
		if rating > 0 {
			_, err = f.svc.SetRating(ctx, f.a.ID, rating, day)
			require.NoError(t, err)
		}
		_, err = f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
		require.NoError(t, err)

		ledger, err := f.svc.LoadForDate(ctx, day)
		require.NoError(t, err)
		entry, ok := ledger.Entry(f.a.ID)
		require.True(t, ok)
		assert.Equal(t, attendance.Entry{Status: attendance.StatusPresent, Rating: rating}, entry)
	}
}

func TestService_LoadForDate_Empty(t *testing.T) {
	f := setup(t)

	ledger, err := f.svc.LoadForDate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, day, ledger.Date)
	assert.False(t, ledger.Closed)
	assert.Empty(t, ledger.Entries)
}

func TestService_SetRating(t *testing.T) {
	db := inmemdb.Open()
	repo := &countingRepo{Repository: inmemdb.NewAttendanceRepository(db)}
	stdSvc := student.NewService(inmemdb.NewStudentRepository(db))
	svc := attendance.NewService(repo, stdSvc, attendance.Options{})
	ctx := context.Background()

	present, err := stdSvc.Create(ctx, student.NewStudent{Name: "P", Phone: "01012345678"})
	require.NoError(t, err)
	absent, err := stdSvc.Create(ctx, student.NewStudent{Name: "Q", Phone: "01212345678"})
	require.NoError(t, err)
	unmarked, err := stdSvc.Create(ctx, student.NewStudent{Name: "R", Phone: "01512345678"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, present.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, absent.ID, attendance.StatusAbsent, day)
	require.NoError(t, err)

	tests := []struct {
		name      string
		studentID string
		rating    int
		want      attendance.Entry
		wantErr   error
	}{
		{name: "zero", studentID: present.ID, rating: 0, wantErr: attendance.ErrInvalidRating},
		{name: "negative", studentID: present.ID, rating: -1, wantErr: attendance.ErrInvalidRating},
		{name: "above max", studentID: present.ID, rating: 11, wantErr: attendance.ErrInvalidRating},
		{name: "absent student", studentID: absent.ID, rating: 5, wantErr: attendance.ErrInvalidState},
		{name: "unmarked student", studentID: unmarked.ID, rating: 5, wantErr: attendance.ErrInvalidState},
		{name: "min", studentID: present.ID, rating: 1, want: attendance.Entry{Status: attendance.StatusPresent, Rating: 1}},
		{name: "max", studentID: present.ID, rating: 10, want: attendance.Entry{Status: attendance.StatusPresent, Rating: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := repo.calls()
			got, err := svc.SetRating(ctx, tt.studentID, tt.rating, day)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				assert.Equal(t, before, repo.calls(), "no write expected")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ledger, err := svc.LoadForDate(ctx, day)
	require.NoError(t, err)
	_, marked := ledger.Entry(unmarked.ID)
	assert.False(t, marked, "rejected rating must not create a record")
	assert.Equal(t, attendance.Entry{Status: attendance.StatusAbsent}, ledger.Entries[absent.ID])
}

func TestService_SetRatingZeroKeepsPrevious(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	_, err = f.svc.SetRating(ctx, f.a.ID, 7, day)
	require.NoError(t, err)

	_, err = f.svc.SetRating(ctx, f.a.ID, 0, day)
	assert.Equal(t, attendance.ErrInvalidRating, errors.Cause(err))

	ledger, err := f.svc.LoadForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 7, ledger.Entries[f.a.ID].Rating)
}

func TestService_CloseDay(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	defer attendance.SetNowFunc(func() time.Time { return now })()

	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)

	ledger, err := f.svc.CloseDay(ctx, day, "tester")
	require.NoError(t, err)
	assert.True(t, ledger.Closed)
	assert.Equal(t, attendance.Entry{Status: attendance.StatusPresent, Rating: 10}, ledger.Entries[f.a.ID])
	assert.Equal(t, attendance.Entry{Status: attendance.StatusAbsent, Rating: 0}, ledger.Entries[f.b.ID])

	closure, err := f.repo.GetClosure(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, attendance.Closure{Date: day, Ended: true, EndedAt: now, ClosedBy: "tester"}, closure)

	closed, err := f.svc.IsDayClosed(ctx, day)
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestService_CloseDayKeepsRating(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	_, err = f.svc.SetRating(ctx, f.a.ID, 3, day)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, f.b.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	_, err = f.svc.SetRating(ctx, f.b.ID, 5, day)
	require.NoError(t, err)
	// b ends absent: its rating must be reset
	_, err = f.svc.SetStatus(ctx, f.b.ID, attendance.StatusAbsent, day)
	require.NoError(t, err)

	ledger, err := f.svc.CloseDay(ctx, day, "tester")
	require.NoError(t, err)
	assert.Equal(t, attendance.Entry{Status: attendance.StatusPresent, Rating: 3}, ledger.Entries[f.a.ID])
	assert.Equal(t, attendance.Entry{Status: attendance.StatusAbsent, Rating: 0}, ledger.Entries[f.b.ID])
}

func TestService_CloseDayCustomDefault(t *testing.T) {
	f := setup(t, attendance.Options{DefaultPresentRating: 8})
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	ledger, err := f.svc.CloseDay(ctx, day, "tester")
	require.NoError(t, err)
	assert.Equal(t, 8, ledger.Entries[f.a.ID].Rating)
}

func TestService_ClosedDayRejectsMutations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	_, err = f.svc.CloseDay(ctx, day, "tester")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, f.b.ID, attendance.StatusPresent, day)
	assert.Equal(t, attendance.ErrDayClosed, errors.Cause(err))
	_, err = f.svc.SetRating(ctx, f.a.ID, 4, day)
	assert.Equal(t, attendance.ErrDayClosed, errors.Cause(err))
	_, err = f.svc.CloseDay(ctx, day, "tester")
	assert.Equal(t, attendance.ErrDayClosed, errors.Cause(err))
	_, _, err = f.svc.MarkScanned(ctx, f.b.Phone, day)
	assert.Equal(t, attendance.ErrDayClosed, errors.Cause(err))

	ledger, err := f.svc.LoadForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, attendance.Entry{Status: attendance.StatusPresent, Rating: 10}, ledger.Entries[f.a.ID])
	assert.Equal(t, attendance.Entry{Status: attendance.StatusAbsent}, ledger.Entries[f.b.ID])

	// other dates stay open
	_, err = f.svc.SetStatus(ctx, f.b.ID, attendance.StatusPresent, "2024-03-11")
	assert.NoError(t, err)
}

func TestService_ConcurrentMarkingAndClosure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := f.a.ID
			if i%2 == 0 {
				id = f.b.ID
			}
			_, err := f.svc.SetStatus(ctx, id, attendance.StatusPresent, day)
			results <- err
		}(i)
	}
	_, closeErr := f.svc.CloseDay(ctx, day, "tester")
	wg.Wait()
	close(results)
	require.NoError(t, closeErr)

	for err := range results {
		if err != nil {
			assert.Equal(t, attendance.ErrDayClosed, errors.Cause(err))
		}
	}

	// whatever landed before the closure was seen by it: every present student is rated
	ledger, err := f.svc.LoadForDate(ctx, day)
	require.NoError(t, err)
	for id, e := range ledger.Entries {
		if e.Status == attendance.StatusPresent {
			assert.Equal(t, 10, e.Rating, id)
		} else {
			assert.Equal(t, 0, e.Rating, id)
		}
	}
}

func TestService_MarkScanned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	std, entry, err := f.svc.MarkScanned(ctx, "01012345678", day)
	require.NoError(t, err)
	assert.Equal(t, f.a.ID, std.ID)
	assert.Equal(t, attendance.Entry{Status: attendance.StatusPresent}, entry)

	for _, raw := range []string{"01099999999", " 01012345678", ""} {
		_, _, err = f.svc.MarkScanned(ctx, raw, day)
		assert.Equal(t, student.ErrNotFound, errors.Cause(err), raw)
	}

	ledger, err := f.svc.LoadForDate(ctx, day)
	require.NoError(t, err)
	assert.Len(t, ledger.Entries, 1)
	assert.Equal(t, attendance.StatusPresent, ledger.Entries[f.a.ID].Status)
}

type recordingListener struct {
	mu      sync.Mutex
	updated []attendance.Record
	closed  []attendance.Closure
}

func (l *recordingListener) RecordUpdated(rec attendance.Record) {
	l.mu.Lock()
	l.updated = append(l.updated, rec)
	l.mu.Unlock()
}

func (l *recordingListener) DayClosed(_ attendance.Ledger, c attendance.Closure) {
	l.mu.Lock()
	l.closed = append(l.closed, c)
	l.mu.Unlock()
}

func TestService_Listeners(t *testing.T) {
	l := new(recordingListener)
	f := setup(t, attendance.Options{Listeners: []attendance.Listener{l}})
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)
	_, err = f.svc.SetRating(ctx, f.a.ID, 0, day) // rejected
	require.Error(t, err)
	_, err = f.svc.CloseDay(ctx, day, "tester")
	require.NoError(t, err)

	assert.Len(t, l.updated, 3) // status + 2 closure writes
	require.Len(t, l.closed, 1)
	assert.Equal(t, day, l.closed[0].Date)
}

// hookRepo runs beforeClose ahead of each closure and fails reads with readErr.
type hookRepo struct {
	attendance.Repository
	beforeClose func()
	readErr     error
}

func (r *hookRepo) QueryRecords(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	if r.readErr != nil {
		return nil, r.readErr
	}
	return r.Repository.QueryRecords(ctx, filter)
}

func (r *hookRepo) CloseDay(ctx context.Context, date string, plan attendance.PlanFunc) (attendance.Closure, error) {
	if r.beforeClose != nil {
		r.beforeClose()
	}
	return r.Repository.CloseDay(ctx, date, plan)
}

func TestService_CloseDayCoversStudentsAddedBeforeLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var late student.Student
	repo := &hookRepo{Repository: f.repo, beforeClose: func() {
		var err error
		late, err = f.stdSvc.Create(ctx, student.NewStudent{Name: "C", Phone: "01255555555"})
		require.NoError(t, err)
	}}
	svc := attendance.NewService(repo, f.stdSvc, attendance.Options{})

	ledger, err := svc.CloseDay(ctx, day, "tester")
	require.NoError(t, err)
	assert.Equal(t, attendance.Entry{Status: attendance.StatusAbsent}, ledger.Entries[late.ID])

	stored, err := f.svc.LoadForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, attendance.Entry{Status: attendance.StatusAbsent}, stored.Entries[late.ID])
	assert.Len(t, stored.Entries, 3)
}

func TestService_CloseDayReturnsLedgerWithoutReload(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	defer attendance.SetNowFunc(func() time.Time { return now })()

	l := new(recordingListener)
	f := setup(t)
	ctx := context.Background()
	// a record of a student no longer on the roster
	_, err := f.repo.UpdateRecord(ctx, day, "gone", func(cur attendance.Record, _ bool) (attendance.Record, error) {
		cur.Status = attendance.StatusPresent
		cur.Rating = 2
		return cur, nil
	})
	require.NoError(t, err)

	repo := &hookRepo{Repository: f.repo, readErr: errors.New("read failed")}
	svc := attendance.NewService(repo, f.stdSvc, attendance.Options{Listeners: []attendance.Listener{l}})
	_, err = svc.SetStatus(ctx, f.a.ID, attendance.StatusPresent, day)
	require.NoError(t, err)

	ledger, err := svc.CloseDay(ctx, day, "tester")
	require.NoError(t, err)
	assert.Equal(t, attendance.Ledger{
		Date:   day,
		Closed: true,
		Entries: map[string]attendance.Entry{
			f.a.ID: {Status: attendance.StatusPresent, Rating: 10},
			f.b.ID: {Status: attendance.StatusAbsent},
			"gone": {Status: attendance.StatusPresent, Rating: 2},
		},
	}, ledger)

	require.Len(t, l.closed, 1)
	assert.Equal(t, attendance.Closure{Date: day, Ended: true, EndedAt: now, ClosedBy: "tester"}, l.closed[0])
}
