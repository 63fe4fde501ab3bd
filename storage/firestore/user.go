package firestorerepos

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/user"
)

type userDoc struct {
	Name         string    `firestore:"name"`
	Username     string    `firestore:"username"`
	Email        string    `firestore:"email"`
	IsActive     bool      `firestore:"isActive"`
	Roles        []string  `firestore:"roles"`
	PasswordHash []byte    `firestore:"passwordHash"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
	LastLogin    time.Time `firestore:"lastLogin,omitempty"`
}

func toUserDoc(usr user.User) userDoc {
	return userDoc{
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.Active(),
		Roles:        usr.Roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    usr.LastLogin.UTC(),
	}
}

func decodeUser(doc *firestore.DocumentSnapshot) (user.User, error) {
	var d userDoc
	if err := doc.DataTo(&d); err != nil {
		return user.User{}, err
	}
	usr := user.User{
		ID:           doc.Ref.ID,
		Name:         d.Name,
		Username:     d.Username,
		Email:        d.Email,
		Roles:        d.Roles,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		LastLogin:    d.LastLogin.UTC(),
	}
	usr.SetActive(d.IsActive)
	return usr, nil
}

type userRepository struct {
	client *firestore.Client
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(client *firestore.Client) user.Repository {
	return &userRepository{client: client}
}

func (repo *userRepository) col() *firestore.CollectionRef {
	return repo.client.Collection(usersCollection)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	ref := repo.col().NewDoc()
	if _, err := ref.Create(ctx, toUserDoc(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	usr.ID = ref.ID
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	now := time.Now().UTC()
	usr.UpdatedAt = now
	if usr.ID == "" {
		usr.CreatedAt = now
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	ref := repo.col().Doc(usr.ID)
	err := repo.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, toUserDoc(usr))
	})
	if err != nil {
		if isNotFound(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	if filter.ID != "" {
		doc, err := repo.col().Doc(filter.ID).Get(ctx)
		if err != nil {
			if isNotFound(err) {
				return user.User{}, user.ErrNotFound
			}
			return user.User{}, errors.Wrap(err, "getting user")
		}
		usr, err := decodeUser(doc)
		if err != nil {
			return user.User{}, err
		}
		if !matches(usr, filter) {
			return user.User{}, user.ErrNotFound
		}
		return usr, nil
	}

	var queries []firestore.Query
	switch {
	case filter.Username != "":
		queries = append(queries, repo.col().Where("username", "==", filter.Username))
	case filter.Email != "":
		queries = append(queries, repo.col().Where("email", "==", filter.Email))
	case len(filter.UsernameOrEmail) > 0:
		queries = append(queries,
			repo.col().Where("username", "in", filter.UsernameOrEmail),
			repo.col().Where("email", "in", filter.UsernameOrEmail),
		)
	default:
		return user.User{}, user.ErrNotFound
	}

	for _, q := range queries {
		var found *user.User
		err := collect(q.Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
			usr, err := decodeUser(doc)
			if err != nil {
				return err
			}
			if found == nil && matches(usr, filter) {
				found = &usr
			}
			return nil
		})
		if err != nil {
			return user.User{}, errors.Wrap(err, "querying users")
		}
		if found != nil {
			return *found, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func matches(usr user.User, filter user.GetFilter) bool {
	if filter.Username != "" && usr.Username != filter.Username {
		return false
	}
	if filter.Email != "" && usr.Email != filter.Email {
		return false
	}
	if len(filter.UsernameOrEmail) > 0 {
		for _, v := range filter.UsernameOrEmail {
			if v != "" && (usr.Username == v || usr.Email == v) {
				return true
			}
		}
		return false
	}
	return true
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error) {
	var users []user.User
	err := collect(repo.col().Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
		usr, err := decodeUser(doc)
		if err != nil {
			return err
		}
		if filter == nil || filter.Match(usr) {
			users = append(users, usr)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	orderings = core.CleanOrderings(orderings, "name", "username", "email", "created_at")
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(users, lessFunc(orderings, func(i int, name string) string {
		switch name {
		case "name":
			return users[i].Name
		case "username":
			return users[i].Username
		case "email":
			return users[i].Email
		default:
			return users[i].CreatedAt.Format(time.RFC3339Nano)
		}
	}))
	return users, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := repo.col().Doc(id).Delete(ctx); err != nil {
			return errors.Wrapf(err, "deleting user %s", id)
		}
	}
	return nil
}
