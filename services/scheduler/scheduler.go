// Package schedulersvc runs the periodic jobs: automatic day closure and scan session pruning.
package schedulersvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
)

const (
	ClosedBy      = "scheduler"
	pruneSchedule = "@every 1m"
	jobTimeout    = 5 * time.Minute
)

type (
	// DayCloser is the part of attendance.Service the scheduler drives.
	DayCloser interface {
		Today() string
		IsDayClosed(ctx context.Context, date string) (bool, error)
		CloseDay(ctx context.Context, date, closedBy string) (attendance.Ledger, error)
	}

	// Pruner drops stale scan sessions.
	Pruner interface {
		Prune() int
		Len() int
	}

	Scheduler struct {
		cron       *cron.Cron
		closer     DayCloser
		pruner     Pruner
		onPrune    func(open int)
		logger     core.Logger
		closeSpec  string
		closeEntry cron.EntryID
	}
)

// New builds the scheduler; onPrune, when set, receives the open session count after each prune.
func New(conf *core.Config, closer DayCloser, pruner Pruner, onPrune func(open int), logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(conf.Attendance.Location())),
		closer:    closer,
		pruner:    pruner,
		onPrune:   onPrune,
		logger:    logger,
		closeSpec: conf.Attendance.AutoCloseSchedule,
	}
}

// Start registers the jobs and starts the cron runner in its own goroutine.
func (s *Scheduler) Start() error {
	if s.closeSpec != "" {
		id, err := s.cron.AddFunc(s.closeSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, err := s.CloseToday(ctx); err != nil {
				s.logger.Error("closing day", err)
			}
		})
		if err != nil {
			return errors.Wrapf(err, "parsing auto-close schedule %q", s.closeSpec)
		}
		s.closeEntry = id
	}
	if s.pruner != nil {
		if _, err := s.cron.AddFunc(pruneSchedule, s.PruneScans); err != nil {
			return errors.Wrap(err, "scheduling scan pruning")
		}
	}
	s.cron.Start()
	return nil
}

// Stop stops the runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// NextClosure returns the next automatic closure time, zero when disabled or not started.
func (s *Scheduler) NextClosure() time.Time {
	if s.closeEntry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.closeEntry).Next
}

// CloseToday closes today if it is still open; closed reports whether this call closed it.
func (s *Scheduler) CloseToday(ctx context.Context) (closed bool, err error) {
	date := s.closer.Today()
	isClosed, err := s.closer.IsDayClosed(ctx, date)
	if err != nil {
		return false, err
	}
	if isClosed {
		return false, nil
	}
	ledger, err := s.closer.CloseDay(ctx, date, ClosedBy)
	if err != nil {
		if errors.Cause(err) == attendance.ErrDayClosed {
			return false, nil
		}
		return false, err
	}
	s.logger.Info("day closed", map[string]interface{}{
		"date":    date,
		"present": ledger.Count(attendance.StatusPresent),
		"absent":  ledger.Count(attendance.StatusAbsent),
	})
	return true, nil
}

func (s *Scheduler) PruneScans() {
	if n := s.pruner.Prune(); n > 0 {
		s.logger.Debug("pruned scan sessions", map[string]interface{}{"count": n})
	}
	if s.onPrune != nil {
		s.onPrune(s.pruner.Len())
	}
}
