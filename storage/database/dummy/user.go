package dummydb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-edu/meridian/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

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

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, excl := range excludedUsers {
		if usr.ID == excl.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if isExcluded(usr, excludedUsers) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = uuid.New().String()
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.query()
	if filter == nil || filter.IsEmpty() {
		return users, nil
	}

	res := make([]user.User, 0, len(users))
	for _, usr := range users {
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !(strings.Contains(strings.ToLower(usr.Name), search) ||
				strings.Contains(strings.ToLower(usr.Username), search) ||
				strings.Contains(strings.ToLower(usr.Email), search)) {
				continue
			}
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if filter.HouseID != "" && usr.HouseID != filter.HouseID {
			continue
		}
		if filter.IsActive != nil {
			if usr.IsActive == nil || *usr.IsActive != *filter.IsActive {
				continue
			}
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		res = append(res, usr)
	}
	return res, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.query() {
		switch {
		case filter.Username != "" && usr.Username == filter.Username:
			return usr, nil
		case filter.Email != "" && usr.Email == filter.Email:
			return usr, nil
		case filter.UsernameOrEmail != "" &&
			(usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUsersByID(ctx context.Context, ids []string) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]user.User, 0, len(ids))
	for _, id := range ids {
		if usr, ok := repo.db.table[id]; ok {
			res = append(res, *usr)
		}
	}
	return res, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, houseID *string) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.Role != "" {
		orig.Role = usr.Role
	}
	if usr.Capabilities != nil {
		orig.Capabilities = usr.Capabilities
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if !usr.LastLogin.IsZero() {
		orig.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		orig.UpdatedAt = usr.UpdatedAt
	}
	if isActive != nil {
		orig.IsActive = isActive
	}
	if houseID != nil {
		orig.HouseID = *houseID
	}
	return *orig, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}
