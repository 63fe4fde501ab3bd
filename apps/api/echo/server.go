// Package echoapi is the HTTP API of the attendance service.
package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/scan"
	"github.com/attendify/attendify/core/student"
	"github.com/attendify/attendify/core/user"
)

type (
	// ScanObserver is told about the scan sessions reaching a terminal state.
	ScanObserver interface {
		ScanFinished(view scan.View)
	}

	Deps struct {
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       user.Service
		StudentSvc    *student.Service
		AttendanceSvc *attendance.Service
		Scans         *scan.Manager
		ScanObserver  ScanObserver // optional
	}

	Server struct {
		app      *echo.Echo
		auth     *Auth
		address  string
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps *Deps) *Server {
	s := &Server{
		app:      echo.New(),
		auth:     NewAuth(deps.Conf),
		address:  deps.Conf.Server.Address,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup(deps)
	return s
}

func (s *Server) setup(deps *Deps) {
	conf := deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig())

	registerUserAPI(v1, jwt, s.auth, deps.UserSvc, deps.Validate)
	registerStudentAPI(v1, jwt, deps.StudentSvc, deps.AttendanceSvc, deps.Validate)
	registerAttendanceAPI(v1, jwt, deps.AttendanceSvc, deps.StudentSvc)
	registerScanAPI(v1, jwt, deps.Scans, deps.AttendanceSvc, deps.ScanObserver)
}

// Auth returns the token issuer of the server.
func (s *Server) Auth() *Auth {
	return s.auth
}

// Start listens on the configured address. Listening errors are sent on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives the interrupt and terminate signals, and the internal shutdown requests.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Attendify API!")
}
