package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/student"
)

const studentColumns = `id, name, phone, father_phone, mother_phone, date_of_birth, year_of_study,
	church_father_name, address, created_at, updated_at`

type studentRow struct {
	ID               string      `db:"id"`
	Name             string      `db:"name"`
	Phone            string      `db:"phone"`
	FatherPhone      null.String `db:"father_phone"`
	MotherPhone      null.String `db:"mother_phone"`
	DateOfBirth      null.String `db:"date_of_birth"`
	YearOfStudy      null.String `db:"year_of_study"`
	ChurchFatherName null.String `db:"church_father_name"`
	Address          null.String `db:"address"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func optional(s string) null.String {
	return null.NewString(s, s != "")
}

func toStudentRow(std student.Student) studentRow {
	return studentRow{
		ID:               std.ID,
		Name:             std.Name,
		Phone:            std.Phone,
		FatherPhone:      optional(std.FatherPhone),
		MotherPhone:      optional(std.MotherPhone),
		DateOfBirth:      optional(std.DateOfBirth),
		YearOfStudy:      optional(std.YearOfStudy),
		ChurchFatherName: optional(std.ChurchFatherName),
		Address:          optional(std.Address),
		CreatedAt:        std.CreatedAt.UTC(),
		UpdatedAt:        std.UpdatedAt.UTC(),
	}
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:               r.ID,
		Name:             r.Name,
		Phone:            r.Phone,
		FatherPhone:      r.FatherPhone.String,
		MotherPhone:      r.MotherPhone.String,
		DateOfBirth:      r.DateOfBirth.String,
		YearOfStudy:      r.YearOfStudy.String,
		ChurchFatherName: r.ChurchFatherName.String,
		Address:          r.Address.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	std.ID = uuid.New().String()
	q := `INSERT INTO students (` + studentColumns + `) VALUES
		(:id, :name, :phone, :father_phone, :mother_phone, :date_of_birth, :year_of_study,
		:church_father_name, :address, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toStudentRow(std)); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	q := `UPDATE students SET name = :name, phone = :phone, father_phone = :father_phone,
		mother_phone = :mother_phone, date_of_birth = :date_of_birth, year_of_study = :year_of_study,
		church_father_name = :church_father_name, address = :address, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toStudentRow(std))
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return std, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, orderings []core.DBOrdering) ([]student.Student, error) {
	var w where
	if filter.Phone != "" {
		w.add("phone = ?", filter.Phone)
	}
	if filter.YearOfStudy != "" {
		w.add("year_of_study = ?", filter.YearOfStudy)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		w.add("(name ILIKE ? OR phone LIKE ?)", pattern, pattern)
	}

	var rows []studentRow
	q := `SELECT ` + studentColumns + ` FROM students` + w.String() +
		orderBy(orderings, "name ASC", "name", "phone", "year_of_study", "created_at") + `, id ASC`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return student.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.ErrNotFound
	}
	return nil
}
