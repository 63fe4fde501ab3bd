package scan

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Camera errors
var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrDecoderFailure    = errors.New("decoder failure")
)

// Camera acquires frames and decodes QR codes. onDecode receives the raw decoded string.
type Camera interface {
	RequestPermission(ctx context.Context) error
	Start(onDecode func(raw string), onError func(err error)) error
	Stop()
}

// Scanner runs a Session against a Camera.
type Scanner struct {
	session *Session
	camera  Camera
}

func NewScanner(session *Session, camera Camera) *Scanner {
	return &Scanner{session: session, camera: camera}
}

// Run asks for camera permission, scans until the session ends and stops the camera.
// Cancelling ctx cancels the session. The returned error is the one that ended the session, if any.
func (sc *Scanner) Run(ctx context.Context) (View, error) {
	if v := sc.session.View(); v.State == StateIdle {
		if _, err := sc.session.Open(); err != nil {
			return v, err
		}
	}

	if err := sc.camera.RequestPermission(ctx); err != nil {
		if ctx.Err() != nil {
			v, _ := sc.session.Cancel()
			return v, nil
		}
		v, _ := sc.session.deny(cameraReason(err), err)
		return v, err
	}
	if _, err := sc.session.GrantPermission(); err != nil {
		return sc.session.View(), err
	}

	onDecode := func(raw string) {
		_, _ = sc.session.Decode(ctx, raw)
	}
	onError := func(err error) {
		_, _ = sc.session.fail(cameraReason(err), err)
	}
	if err := sc.camera.Start(onDecode, onError); err != nil {
		v, _ := sc.session.fail(cameraReason(err), err)
		return v, err
	}
	defer sc.camera.Stop()

	select {
	case <-sc.session.Done():
	case <-ctx.Done():
		_, _ = sc.session.Cancel()
	}
	return sc.session.View(), sc.session.Err()
}

func cameraReason(err error) string {
	switch pkgerrors.Cause(err) {
	case ErrPermissionDenied:
		return ReasonPermissionDenied
	case ErrCameraUnavailable:
		return ReasonCameraUnavailable
	default:
		return ReasonDecoderFailure
	}
}
