package student

import (
	"context"
	"errors"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/attendify/attendify/core"
)

var ErrNotFound = errors.New("student not found")

var (
	nowFunc = time.Now // mockable

	orderingFields = []string{"name", "phone", "year_of_study", "created_at"}
)

const qrCodeSize = 256

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := nowFunc().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		Name:             ns.Name,
		Phone:            ns.Phone,
		FatherPhone:      ns.FatherPhone,
		MotherPhone:      ns.MotherPhone,
		DateOfBirth:      ns.DateOfBirth,
		YearOfStudy:      ns.YearOfStudy,
		ChurchFatherName: ns.ChurchFatherName,
		Address:          ns.Address,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (svc *Service) Update(ctx context.Context, std Student, us UpdateStudent) (Student, error) {
	std.Name = us.Name
	std.Phone = us.Phone
	std.FatherPhone = us.FatherPhone
	std.MotherPhone = us.MotherPhone
	std.DateOfBirth = us.DateOfBirth
	std.YearOfStudy = us.YearOfStudy
	std.ChurchFatherName = us.ChurchFatherName
	std.Address = us.Address
	std.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateStudent(ctx, std)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]Student, error) {
	orderings = core.CleanOrderings(orderings, orderingFields...)
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	return svc.repo.QueryStudents(ctx, filter, orderings)
}

// QueryAll returns the full roster.
func (svc *Service) QueryAll(ctx context.Context) ([]Student, error) {
	return svc.Query(ctx, QueryFilter{}, nil)
}

// Delete removes the student. Attendance history referencing it is kept.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteStudent(ctx, id)
}

// FindByScanKey resolves a raw scanned value to the first student whose phone equals it exactly.
// The value is not normalized.
func (svc *Service) FindByScanKey(ctx context.Context, raw string) (Student, error) {
	if raw == "" {
		return Student{}, ErrNotFound
	}
	students, err := svc.repo.QueryStudents(ctx, QueryFilter{Phone: raw}, []core.DBOrdering{{Field: "created_at", Ascending: true}})
	if err != nil {
		return Student{}, err
	}
	if len(students) == 0 {
		return Student{}, ErrNotFound
	}
	return students[0], nil
}

// QRCode returns the PNG QR code encoding the student's scan key.
func (svc *Service) QRCode(std Student) ([]byte, error) {
	return qrcode.Encode(std.Phone, qrcode.Medium, qrCodeSize)
}
