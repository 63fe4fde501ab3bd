package firestorerepos

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/student"
)

type studentDoc struct {
	Name             string    `firestore:"name"`
	Phone            string    `firestore:"phone"`
	FatherPhone      string    `firestore:"fatherPhone"`
	MotherPhone      string    `firestore:"motherPhone"`
	DateOfBirth      string    `firestore:"dateOfBirth"`
	YearOfStudy      string    `firestore:"yearOfStudy"`
	ChurchFatherName string    `firestore:"churchFatherName"`
	Address          string    `firestore:"address"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func toStudentDoc(std student.Student) studentDoc {
	return studentDoc{
		Name:             std.Name,
		Phone:            std.Phone,
		FatherPhone:      std.FatherPhone,
		MotherPhone:      std.MotherPhone,
		DateOfBirth:      std.DateOfBirth,
		YearOfStudy:      std.YearOfStudy,
		ChurchFatherName: std.ChurchFatherName,
		Address:          std.Address,
		CreatedAt:        std.CreatedAt.UTC(),
		UpdatedAt:        std.UpdatedAt.UTC(),
	}
}

func decodeStudent(doc *firestore.DocumentSnapshot) (student.Student, error) {
	var d studentDoc
	if err := doc.DataTo(&d); err != nil {
		return student.Student{}, err
	}
	return student.Student{
		ID:               doc.Ref.ID,
		Name:             d.Name,
		Phone:            d.Phone,
		FatherPhone:      d.FatherPhone,
		MotherPhone:      d.MotherPhone,
		DateOfBirth:      d.DateOfBirth,
		YearOfStudy:      d.YearOfStudy,
		ChurchFatherName: d.ChurchFatherName,
		Address:          d.Address,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}, nil
}

type studentRepository struct {
	client *firestore.Client
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(client *firestore.Client) student.Repository {
	return &studentRepository{client: client}
}

func (repo *studentRepository) col() *firestore.CollectionRef {
	return repo.client.Collection(studentsCollection)
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	ref := repo.col().NewDoc()
	if _, err := ref.Create(ctx, toStudentDoc(std)); err != nil {
		return student.Student{}, errors.Wrap(err, "creating student")
	}
	std.ID = ref.ID
	return std, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	ref := repo.col().Doc(std.ID)
	err := repo.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, toStudentDoc(std))
	})
	if err != nil {
		if isNotFound(err) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	return std, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	if id == "" {
		return student.Student{}, student.ErrNotFound
	}
	doc, err := repo.col().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return decodeStudent(doc)
}

// QueryStudents pushes exact filters down to Firestore and applies search and ordering in memory,
// since Firestore has neither substring matching nor multi-field ordering without composite indexes.
func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, orderings []core.DBOrdering) ([]student.Student, error) {
	q := repo.col().Query
	if filter.Phone != "" {
		q = q.Where("phone", "==", filter.Phone)
	}
	if filter.YearOfStudy != "" {
		q = q.Where("yearOfStudy", "==", filter.YearOfStudy)
	}

	students := make([]student.Student, 0)
	err := collect(q.Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
		std, err := decodeStudent(doc)
		if err != nil {
			return err
		}
		if filter.Search == "" || containsFold(std.Name, filter.Search) || containsFold(std.Phone, filter.Search) {
			students = append(students, std)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
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

func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	ref := repo.col().Doc(id)
	err := repo.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if err != nil {
		if isNotFound(err) {
			return student.ErrNotFound
		}
		return errors.Wrap(err, "deleting student")
	}
	return nil
}
