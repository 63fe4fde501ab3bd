package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/attendify/attendify/core"
)

// Student is a roster entry. Phone is the scan key encoded in the student's QR code.
type Student struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	FatherPhone      string    `json:"father_phone"`
	MotherPhone      string    `json:"mother_phone"`
	DateOfBirth      string    `json:"date_of_birth"` // yyyy-MM-dd
	YearOfStudy      string    `json:"year_of_study"`
	ChurchFatherName string    `json:"church_father_name"`
	Address          string    `json:"address"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to register a Student.
type NewStudent struct {
	Name             string `json:"name" validate:"required"`
	Phone            string `json:"phone" validate:"required,phone"`
	FatherPhone      string `json:"father_phone" validate:"omitempty,phone"`
	MotherPhone      string `json:"mother_phone" validate:"omitempty,phone"`
	DateOfBirth      string `json:"date_of_birth" validate:"omitempty,isodate"`
	YearOfStudy      string `json:"year_of_study"`
	ChurchFatherName string `json:"church_father_name"`
	Address          string `json:"address"`
}

func (ns *NewStudent) clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Phone = core.CleanString(ns.Phone)
	ns.FatherPhone = core.CleanString(ns.FatherPhone)
	ns.MotherPhone = core.CleanString(ns.MotherPhone)
	ns.DateOfBirth = core.CleanString(ns.DateOfBirth)
	ns.YearOfStudy = core.CleanString(ns.YearOfStudy)
	ns.ChurchFatherName = core.CleanString(ns.ChurchFatherName)
	ns.Address = core.CleanString(ns.Address)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.clean()
	return validate.Struct(ns)
}

// UpdateStudent replaces every editable field of a Student.
type UpdateStudent NewStudent

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	ns := (*NewStudent)(us)
	ns.clean()
	return validate.Struct(ns)
}

type QueryFilter struct {
	Search      string `query:"search"` // case-insensitive match on Name or Phone
	Phone       string `query:"phone"`  // exact match
	YearOfStudy string `query:"year_of_study"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.YearOfStudy = core.CleanString(qf.YearOfStudy)
}

// Repository persists the roster.
type Repository interface {
	CreateStudent(ctx context.Context, std Student) (Student, error)
	UpdateStudent(ctx context.Context, std Student) (Student, error)
	// GetStudentByID returns ErrNotFound when id is unknown.
	GetStudentByID(ctx context.Context, id string) (Student, error)
	// QueryStudents returns the students matching filter ordered by name unless orderings say otherwise.
	QueryStudents(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]Student, error)
	DeleteStudent(ctx context.Context, id string) error
}
