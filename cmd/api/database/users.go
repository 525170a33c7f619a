package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

const userColumns = `id, name, email, is_active, password_hash, refresh_token_hash, created_at, updated_at`

type userRow struct {
	ID               uuid.UUID      `db:"id"`
	Name             string         `db:"name"`
	Email            string         `db:"email"`
	IsActive         bool           `db:"is_active"`
	PasswordHash     string         `db:"password_hash"`
	RefreshTokenHash sql.NullString `db:"refresh_token_hash"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r userRow) toUser() library.User {
	u := library.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.RefreshTokenHash.Valid {
		hash := r.RefreshTokenHash.String
		u.RefreshTokenHash = &hash
	}
	return u
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (store *Store) CreateUser(ctx context.Context, userEntry library.User) (library.User, error) {
	sqlStatement := `
	INSERT INTO users (id, name, email, is_active, password_hash, refresh_token_hash, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + userColumns
	var row userRow
	err := store.get(ctx, "CreateUser", &row, sqlStatement,
		userEntry.ID, userEntry.Name, userEntry.Email, userEntry.IsActive, userEntry.PasswordHash,
		nullString(userEntry.RefreshTokenHash), userEntry.CreatedAt, userEntry.UpdatedAt)
	if err != nil {
		return library.User{}, fmt.Errorf("storing user on db: %w", translate(err))
	}
	return row.toUser(), nil
}

func (store *Store) GetUserByID(ctx context.Context, id uuid.UUID) (library.User, error) {
	return store.oneUser(ctx, "GetUserByID", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (store *Store) GetUserByEmail(ctx context.Context, email string) (library.User, error) {
	return store.oneUser(ctx, "GetUserByEmail", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

/* Holds the user row until the surrounding transaction ends, queueing the user's other transactions. */
func (store *Store) LockUser(ctx context.Context, id uuid.UUID) (library.User, error) {
	return store.oneUser(ctx, "LockUser", `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (store *Store) oneUser(ctx context.Context, action, sqlStatement string, arg any) (library.User, error) {
	var row userRow
	if err := store.get(ctx, action, &row, sqlStatement, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.User{}, fmt.Errorf("searching user: %w", library.ErrResponseUserNotFound)
		}
		return library.User{}, fmt.Errorf("searching user: %w", err)
	}
	return row.toUser(), nil
}

func (store *Store) ListUsers(ctx context.Context, page, pageSize int) ([]library.User, error) {
	query := dialect.From("users").
		Prepared(true).
		Select(goqu.L(userColumns)).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc())
	if page > 0 && pageSize > 0 {
		query = query.Limit(uint(pageSize)).Offset(uint((page - 1) * pageSize))
	}

	sqlQuery, args, err := query.ToSQL()
	if err != nil {
		return []library.User{}, fmt.Errorf("listing users from db, building query: %w", err)
	}

	var rows []userRow
	if err := store.selectRows(ctx, "ListUsers", &rows, sqlQuery, args...); err != nil {
		return []library.User{}, fmt.Errorf("listing users from db: %w", err)
	}

	users := make([]library.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (store *Store) CountUsers(ctx context.Context) (int, error) {
	var total int
	if err := store.get(ctx, "CountUsers", &total, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("counting users from db: %w", err)
	}
	return total, nil
}

func (store *Store) UpdateUser(ctx context.Context, userEntry library.User) (library.User, error) {
	sqlStatement := `
	UPDATE users
	SET name = $2, email = $3, is_active = $4, updated_at = $5
	WHERE id = $1
	RETURNING ` + userColumns
	var row userRow
	err := store.get(ctx, "UpdateUser", &row, sqlStatement,
		userEntry.ID, userEntry.Name, userEntry.Email, userEntry.IsActive, userEntry.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.User{}, fmt.Errorf("updating user on db: %w", library.ErrResponseUserNotFound)
		}
		return library.User{}, fmt.Errorf("updating user on db: %w", translate(err))
	}
	return row.toUser(), nil
}

func (store *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	affected, err := store.exec(ctx, "DeleteUser", `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deleting user on db: %w", library.ErrResponseUserNotFound)
	}
	return nil
}

func (store *Store) SetRefreshTokenHash(ctx context.Context, userID uuid.UUID, hash *string) error {
	affected, err := store.exec(ctx, "SetRefreshTokenHash",
		`UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1`, userID, nullString(hash))
	if err != nil {
		return fmt.Errorf("storing refresh token on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("storing refresh token on db: %w", library.ErrResponseUserNotFound)
	}
	return nil
}
