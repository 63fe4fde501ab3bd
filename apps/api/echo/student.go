package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/student"
)

var errStdNotFoundInCtx = errors.New("student object not found in echo.Context")

type studentApi struct {
	svc        *student.Service
	attendance *attendance.Service
	validate   *validator.Validate
}

func registerStudentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *student.Service,
	attSvc *attendance.Service,
	validate *validator.Validate,
) {
	api := studentApi{svc: svc, attendance: attSvc, validate: validate}

	sg := g.Group("/students", jwt, staffMiddleware())
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())

	dg := sg.Group("/:id", studentMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/attendance", api.history)
	dg.GET("/qrcode", api.qrcode)
}

// studentMiddleware sets the student of the `:id` path param as the context object.
func studentMiddleware(svc *student.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			std, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == student.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding student by ID")
			}
			ctx.Set(contextObjectKey, std)
			return next(ctx)
		}
	}
}

func contextStudent(ctx echo.Context) (student.Student, error) {
	std, ok := ctx.Get(contextObjectKey).(student.Student)
	if !ok {
		return student.Student{}, errors.Wrap(errStdNotFoundInCtx, "retrieving object from context")
	}
	return std, nil
}

func (api *studentApi) query(ctx echo.Context) error {
	var filter student.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := contextStudent(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	std, err := contextStudent(ctx)
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err = api.svc.Update(ctx.Request().Context(), std, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

// destroy removes the student from the roster. Their attendance history is kept.
func (api *studentApi) destroy(ctx echo.Context) error {
	std, err := contextStudent(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), std.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// history lists the student's records; `status` is one of all (default), present or absent.
func (api *studentApi) history(ctx echo.Context) error {
	std, err := contextStudent(ctx)
	if err != nil {
		return err
	}

	status := attendance.Status(ctx.QueryParam("status"))
	if status == "all" {
		status = ""
	}
	hist, err := api.attendance.StudentHistory(ctx.Request().Context(), std.ID, status)
	if err != nil {
		return errors.Wrap(err, "getting student history")
	}
	return ctx.JSON(http.StatusOK, hist)
}

func (api *studentApi) qrcode(ctx echo.Context) error {
	std, err := contextStudent(ctx)
	if err != nil {
		return err
	}
	png, err := api.svc.QRCode(std)
	if err != nil {
		return errors.Wrap(err, "encoding qr code")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+std.Phone+`.png"`)
	return ctx.Blob(http.StatusOK, "image/png", png)
}
