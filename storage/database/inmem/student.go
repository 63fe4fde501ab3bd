package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	std.ID = uuid.New().String()
	repo.db.table[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[std.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.table[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) GetStudentByID(_ context.Context, id string) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if std, ok := repo.db.table[id]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter, orderings []core.DBOrdering) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0, len(repo.db.table))
	for _, std := range repo.db.table {
		if filter.Phone != "" && std.Phone != filter.Phone {
			continue
		}
		if filter.YearOfStudy != "" && std.YearOfStudy != filter.YearOfStudy {
			continue
		}
		if filter.Search != "" && !(containsFold(std.Name, filter.Search) || containsFold(std.Phone, filter.Search)) {
			continue
		}
		students = append(students, *std)
	}

	orderings = append(orderings, core.DBOrdering{Field: "id", Ascending: true})
	sort.SliceStable(students, lessFunc(orderings, func(i int, name string) string {
		switch name {
		case "name":
			return students[i].Name
		case "phone":
			return students[i].Phone
		case "year_of_study":
			return students[i].YearOfStudy
		case "created_at":
			return students[i].CreatedAt.Format(time.RFC3339Nano)
		default:
			return students[i].ID
		}
	}))
	return students, nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return student.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
