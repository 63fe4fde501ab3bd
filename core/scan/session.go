// Package scan drives the QR scan surface: a session moves from idle to a terminal
// matched, cancelled or error state and resolves the decoded scan key to a student.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/student"
)

type State string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting-permission"
	StateScanning           State = "scanning"
	StateMatched            State = "matched"
	StateCancelled          State = "cancelled"
	StateError              State = "error"
)

func (s State) Terminal() bool {
	return s == StateMatched || s == StateCancelled || s == StateError
}

// Error reasons
const (
	ReasonNotFound          = "not_found"
	ReasonPermissionDenied  = "permission_denied"
	ReasonCameraUnavailable = "camera_unavailable"
	ReasonDecoderFailure    = "decoder_failure"
	ReasonDayClosed         = "day_closed"
	ReasonStoreFailure      = "store_failure"
	// ReasonOther stands for client supplied reasons outside this set.
	ReasonOther = "other"
)

// KnownReason returns reason when it is empty or one of the reasons above, ReasonOther otherwise.
func KnownReason(reason string) string {
	switch reason {
	case "", ReasonNotFound, ReasonPermissionDenied, ReasonCameraUnavailable,
		ReasonDecoderFailure, ReasonDayClosed, ReasonStoreFailure:
		return reason
	}
	return ReasonOther
}

var (
	ErrTerminal          = errors.New("scan session is over")
	ErrInvalidTransition = errors.New("invalid scan session transition")
)

type (
	// Match is the outcome of a resolved scan.
	Match struct {
		Student student.Student  `json:"student"`
		Entry   attendance.Entry `json:"entry"`
	}

	// Resolver maps a raw scan key to a student and records their presence on date.
	Resolver func(ctx context.Context, raw, date string) (Match, error)

	// View is a snapshot of a Session.
	View struct {
		ID        string    `json:"id"`
		Date      string    `json:"date"`
		State     State     `json:"state"`
		Reason    string    `json:"reason,omitempty"`
		Match     *Match    `json:"match,omitempty"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

// Session is one opening of the scan surface. It is safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	id        string
	date      string
	state     State
	reason    string
	match     *Match
	err       error // what ended the session in error, when known
	createdAt time.Time
	updatedAt time.Time
	resolve   Resolver
	done      chan struct{}
}

func NewSession(id, date string, resolve Resolver) *Session {
	now := nowFunc().UTC()
	return &Session{
		id:        id,
		date:      date,
		state:     StateIdle,
		createdAt: now,
		updatedAt: now,
		resolve:   resolve,
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() View {
	return View{
		ID:        s.id,
		Date:      s.date,
		State:     s.state,
		Reason:    s.reason,
		Match:     s.match,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) Open() (View, error) {
	return s.transition(func() error {
		return s.moveFrom(StateIdle, StateAwaitingPermission, "")
	})
}

func (s *Session) GrantPermission() (View, error) {
	return s.transition(func() error {
		return s.moveFrom(StateAwaitingPermission, StateScanning, "")
	})
}

func (s *Session) DenyPermission(reason string) (View, error) {
	return s.deny(reason, nil)
}

func (s *Session) deny(reason string, cause error) (View, error) {
	if reason == "" {
		reason = ReasonPermissionDenied
	}
	return s.transition(func() error {
		if s.state != StateAwaitingPermission {
			return ErrInvalidTransition
		}
		s.err = cause
		s.set(StateError, reason)
		return nil
	})
}

// Fail reports a camera or decoder failure while scanning.
func (s *Session) Fail(reason string) (View, error) {
	return s.fail(reason, nil)
}

func (s *Session) fail(reason string, cause error) (View, error) {
	if reason == "" {
		reason = ReasonDecoderFailure
	}
	return s.transition(func() error {
		if s.state != StateAwaitingPermission && s.state != StateScanning {
			return ErrInvalidTransition
		}
		s.err = cause
		s.set(StateError, reason)
		return nil
	})
}

func (s *Session) Cancel() (View, error) {
	return s.transition(func() error {
		s.set(StateCancelled, "")
		return nil
	})
}

// Decode resolves raw. A known student ends the session as matched, anything else ends it in error.
// The resolver error is returned along with the final view.
func (s *Session) Decode(ctx context.Context, raw string) (View, error) {
	var resolveErr error
	v, err := s.transition(func() error {
		if s.state != StateScanning {
			return ErrInvalidTransition
		}
		m, err := s.resolve(ctx, raw, s.date)
		if err != nil {
			resolveErr = err
			s.err = err
			s.set(StateError, reasonOf(err))
			return nil
		}
		s.match = &m
		s.set(StateMatched, "")
		return nil
	})
	if err != nil {
		return v, err
	}
	return v, resolveErr
}

func (s *Session) transition(fn func() error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return s.view(), ErrTerminal
	}
	if err := fn(); err != nil {
		return s.view(), err
	}
	return s.view(), nil
}

func (s *Session) moveFrom(from, to State, reason string) error {
	if s.state != from {
		return ErrInvalidTransition
	}
	s.set(to, reason)
	return nil
}

// set must be called with s.mu held.
func (s *Session) set(state State, reason string) {
	s.state = state
	s.reason = reason
	s.updatedAt = nowFunc().UTC()
	if state.Terminal() {
		close(s.done)
	}
}

func reasonOf(err error) string {
	switch pkgerrors.Cause(err) {
	case student.ErrNotFound:
		return ReasonNotFound
	case attendance.ErrDayClosed:
		return ReasonDayClosed
	default:
		return ReasonStoreFailure
	}
}
