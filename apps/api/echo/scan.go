package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/scan"
)

// scanApi drives the scan sessions of the browser camera surface: the client reports the
// permission prompt outcome, decoded values and camera failures.
type scanApi struct {
	scans      *scan.Manager
	attendance *attendance.Service
	observer   ScanObserver
}

func registerScanAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	scans *scan.Manager,
	attSvc *attendance.Service,
	observer ScanObserver,
) {
	api := scanApi{scans: scans, attendance: attSvc, observer: observer}

	sg := g.Group("/scans", jwt, staffMiddleware())
	sg.POST("", api.open)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/permission", api.grant)
	sg.DELETE("/:id/permission", api.deny)
	sg.POST("/:id/decode", api.decode)
	sg.POST("/:id/fail", api.fail)
	sg.DELETE("/:id", api.cancel)
}

func (api *scanApi) open(ctx echo.Context) error {
	var data OpenScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenScanRequest")
	}
	date := core.CleanString(data.Date)
	if date == "" {
		date = api.attendance.Today()
	}
	if !core.IsDate(date) {
		return attendance.ErrInvalidDate
	}
	return ctx.JSON(http.StatusCreated, api.scans.Open(date).View())
}

func (api *scanApi) session(ctx echo.Context) (*scan.Session, error) {
	return api.scans.Get(ctx.Param("id"))
}

func (api *scanApi) retrieve(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s.View())
}

// respond writes the session view, counting sessions that just ended.
func (api *scanApi) respond(ctx echo.Context, view scan.View, err error) error {
	if err != nil {
		switch errors.Cause(err) {
		case scan.ErrTerminal, scan.ErrInvalidTransition:
			return err
		}
	}
	if api.observer != nil && view.State.Terminal() {
		api.observer.ScanFinished(view)
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *scanApi) grant(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	view, err := s.GrantPermission()
	return api.respond(ctx, view, err)
}

func (api *scanApi) deny(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	view, err := s.DenyPermission(scan.ReasonPermissionDenied)
	return api.respond(ctx, view, err)
}

// decode resolves a decoded value. Resolution failures end the session in error and
// are reported through the returned view, not as an HTTP error.
func (api *scanApi) decode(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	var data ScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanRequest")
	}
	view, err := s.Decode(ctx.Request().Context(), data.Raw)
	if err != nil && view.Reason == scan.ReasonStoreFailure {
		return errors.Wrap(err, "resolving scan")
	}
	return api.respond(ctx, view, err)
}

func (api *scanApi) fail(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	var data ScanFailureRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanFailureRequest")
	}
	reason := core.CleanString(data.Reason)
	if reason == "" {
		reason = scan.ReasonCameraUnavailable
	}
	view, err := s.Fail(reason)
	return api.respond(ctx, view, err)
}

func (api *scanApi) cancel(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	view, err := s.Cancel()
	if err == nil {
		api.scans.Remove(s.ID())
	}
	return api.respond(ctx, view, err)
}

// Resolver returns the scan.Resolver marking scanned students present through svc.
func Resolver(svc *attendance.Service) scan.Resolver {
	return func(ctx context.Context, raw, date string) (scan.Match, error) {
		std, entry, err := svc.MarkScanned(ctx, raw, date)
		if err != nil {
			return scan.Match{}, err
		}
		return scan.Match{Student: std, Entry: entry}, nil
	}
}
