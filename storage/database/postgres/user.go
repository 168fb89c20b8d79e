// Package pgrepos implements the domain repositories on PostgreSQL via sqlx.
package pgrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/user"
)

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

// userRow mirrors the "user" table.
type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     null.Bool      `db:"is_active"`
	Role         string         `db:"role"`
	Capabilities pq.StringArray `db:"capabilities"`
	HouseID      null.String    `db:"house_id"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    null.Time      `db:"created_at"`
	UpdatedAt    null.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (repo userRepository) row(usr user.User) userRow {
	caps := make(pq.StringArray, 0, len(usr.Capabilities))
	for _, c := range usr.Capabilities {
		caps = append(caps, string(c))
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     null.BoolFromPtr(usr.IsActive),
		Role:         string(usr.Role),
		Capabilities: caps,
		HouseID:      null.NewString(usr.HouseID, usr.HouseID != ""),
		PasswordHash: null.BytesFrom(usr.PasswordHash),
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unrow(row userRow) user.User {
	caps := make([]auth.Capability, 0, len(row.Capabilities))
	for _, c := range row.Capabilities {
		caps = append(caps, auth.Capability(c))
	}
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		IsActive:     row.IsActive.Ptr(),
		Role:         auth.Role(row.Role),
		Capabilities: caps,
		HouseID:      row.HouseID.String,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
		LastLogin:    row.LastLogin.Time,
	}
}

func (repo userRepository) unrowSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unrow(row))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const userColumns = `id, name, username, email, is_active, role, capabilities, house_id, password_hash, created_at, updated_at, last_login`

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	q := `SELECT username, email FROM "user" WHERE (username = $1 OR email = $2)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make(pq.StringArray, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += ` AND NOT (id = ANY($3))`
		args = append(args, ids)
	}

	var clash struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	err := repo.exec.GetContext(ctx, &clash, q+" LIMIT 1", args...)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && clash.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.row(usr)
	q := `INSERT INTO "user" (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := repo.exec.ExecContext(ctx, q,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Role,
		row.Capabilities, row.HouseID, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			p := arg(val)
			conds = append(conds, fmt.Sprintf("(name ILIKE %s OR username ILIKE %s OR email ILIKE %s)", p, p, p))
		}
		if filter.Role != "" {
			conds = append(conds, "role = "+arg(string(filter.Role)))
		}
		if filter.HouseID != "" {
			conds = append(conds, "house_id = "+arg(filter.HouseID))
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = "+arg(*filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	q := `SELECT ` + userColumns + ` FROM "user"`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	var rows []userRow
	if err := repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unrowSlice(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var cond string
	var args []interface{}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond, args = "id = $1", []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = "username = $1", []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = "email = $1", []interface{}{filter.Email}
	case filter.UsernameOrEmail != "":
		cond, args = "(username = $1 OR email = $1)", []interface{}{filter.UsernameOrEmail}
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM "user" WHERE ` + cond
	if err := repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unrow(row), nil
}

func (repo userRepository) GetUsersByID(ctx context.Context, ids []string) ([]user.User, error) {
	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM "user" WHERE id = ANY($1)`
	if err := repo.exec.SelectContext(ctx, &rows, q, pq.StringArray(ids)); err != nil {
		return nil, errors.Wrap(err, "querying users by id")
	}
	return repo.unrowSlice(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, houseID *string) (user.User, error) {
	var sets []string
	var args []interface{}
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	row := repo.row(usr)
	if usr.Name != "" {
		set("name", row.Name)
	}
	if usr.Username != "" {
		set("username", row.Username)
	}
	if usr.Email != "" {
		set("email", row.Email)
	}
	if usr.Role != "" {
		set("role", row.Role)
	}
	if usr.Capabilities != nil {
		set("capabilities", row.Capabilities)
	}
	if usr.PasswordHash != nil {
		set("password_hash", row.PasswordHash)
	}
	if !usr.LastLogin.IsZero() {
		set("last_login", row.LastLogin)
	}
	if !usr.UpdatedAt.IsZero() {
		set("updated_at", row.UpdatedAt)
	}
	if isActive != nil {
		set("is_active", *isActive)
	}
	if houseID != nil {
		set("house_id", null.NewString(*houseID, *houseID != ""))
	}
	if len(sets) == 0 {
		return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	}

	args = append(args, usr.ID)
	q := fmt.Sprintf(`UPDATE "user" SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(sets, ", "), len(args))

	var updated userRow
	if err := repo.exec.GetContext(ctx, &updated, q, args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "updating user")
	}
	return repo.unrow(updated), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string) (int, error) {
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pq.StringArray(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}
