package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/student"
	exportsvc "github.com/attendify/attendify/services/export"
)

// todayParam may replace a `:date` path param.
const todayParam = "today"

type attendanceApi struct {
	svc      *attendance.Service
	students *student.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, students *student.Service) {
	api := attendanceApi{svc: svc, students: students}

	g.GET("/stats", api.stats, jwt, staffMiddleware())

	ag := g.Group("/attendance", jwt, staffMiddleware())
	ag.GET("/dates", api.dates)
	ag.GET("/dates/:date", api.dateReport)
	ag.GET("/dates/:date/export", api.export)

	ag.GET("/:date", api.ledger)
	ag.POST("/:date/close", api.closeDay, adminMiddleware())
	ag.POST("/:date/scan", api.scan)

	sg := ag.Group("/:date/students/:id", studentMiddleware(students))
	sg.PUT("/status", api.setStatus)
	sg.PUT("/rating", api.setRating)
}

func (api *attendanceApi) date(ctx echo.Context) string {
	if d := ctx.Param("date"); d != todayParam {
		return d
	}
	return api.svc.Today()
}

func (api *attendanceApi) ledger(ctx echo.Context) error {
	ledger, err := api.svc.LoadForDate(ctx.Request().Context(), api.date(ctx))
	if err != nil {
		return errors.Wrap(err, "loading ledger")
	}
	return ctx.JSON(http.StatusOK, ledger)
}

func (api *attendanceApi) setStatus(ctx echo.Context) error {
	std, err := contextStudent(ctx)
	if err != nil {
		return err
	}
	var data StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}

	date := api.date(ctx)
	entry, err := api.svc.SetStatus(ctx.Request().Context(), std.ID, data.Status, date)
	if err != nil {
		return errors.Wrap(err, "setting status")
	}
	return ctx.JSON(http.StatusOK, EntryResponse{Date: date, StudentID: std.ID, Entry: entry})
}

func (api *attendanceApi) setRating(ctx echo.Context) error {
	std, err := contextStudent(ctx)
	if err != nil {
		return err
	}
	var data RatingRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RatingRequest")
	}

	date := api.date(ctx)
	entry, err := api.svc.SetRating(ctx.Request().Context(), std.ID, data.Rating, date)
	if err != nil {
		return errors.Wrap(err, "setting rating")
	}
	return ctx.JSON(http.StatusOK, EntryResponse{Date: date, StudentID: std.ID, Entry: entry})
}

func (api *attendanceApi) closeDay(ctx echo.Context) error {
	ledger, err := api.svc.CloseDay(ctx.Request().Context(), api.date(ctx), actor(ctx))
	if err != nil {
		return errors.Wrap(err, "closing day")
	}
	return ctx.JSON(http.StatusOK, ledger)
}

// scan marks the student of a decoded scan key present.
func (api *attendanceApi) scan(ctx echo.Context) error {
	var data ScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanRequest")
	}

	date := api.date(ctx)
	std, entry, err := api.svc.MarkScanned(ctx.Request().Context(), data.Raw, date)
	if err != nil {
		return errors.Wrap(err, "marking scanned student")
	}
	return ctx.JSON(http.StatusOK, ScanResponse{Date: date, Student: std, Entry: entry})
}

func (api *attendanceApi) dates(ctx echo.Context) error {
	summaries, err := api.svc.Dates(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing dates")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *attendanceApi) dateReport(ctx echo.Context) error {
	report, err := api.svc.DateReport(ctx.Request().Context(), api.date(ctx))
	if err != nil {
		return errors.Wrap(err, "building date report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *attendanceApi) export(ctx echo.Context) error {
	report, err := api.svc.DateReport(ctx.Request().Context(), api.date(ctx))
	if err != nil {
		return errors.Wrap(err, "building date report")
	}
	data, err := exportsvc.DateReportBytes(report)
	if err != nil {
		return errors.Wrap(err, "exporting date report")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+exportsvc.Filename(report.Date)+`"`)
	return ctx.Blob(http.StatusOK, exportsvc.ContentType, data)
}

func (api *attendanceApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
