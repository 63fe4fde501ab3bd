package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.New().String()
	repo.db.table[usr.ID] = &usr
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

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.query() {
		if matchGetFilter(usr, filter) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.table))
	for _, usr := range repo.query() {
		if filter == nil || filter.Match(usr) {
			users = append(users, usr)
		}
	}
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

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func matchGetFilter(usr user.User, filter user.GetFilter) bool {
	if filter.ID == "" && filter.Username == "" && filter.Email == "" && len(filter.UsernameOrEmail) == 0 {
		return false
	}
	if filter.ID != "" && usr.ID != filter.ID {
		return false
	}
	if filter.Username != "" && usr.Username != filter.Username {
		return false
	}
	if filter.Email != "" && usr.Email != filter.Email {
		return false
	}
	if len(filter.UsernameOrEmail) > 0 {
		var found bool
		for _, v := range filter.UsernameOrEmail {
			if v != "" && (usr.Username == v || usr.Email == v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
