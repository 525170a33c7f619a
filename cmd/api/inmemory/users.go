package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/library"
)

type AdaptedUser struct {
	ID               string
	Name             string
	Email            string
	IsActive         bool
	PasswordHash     string
	RefreshTokenHash *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func adaptUserIdToString(u library.User) AdaptedUser {
	return AdaptedUser{
		ID:               u.ID.String(),
		Name:             u.Name,
		Email:            u.Email,
		IsActive:         u.IsActive,
		PasswordHash:     u.PasswordHash,
		RefreshTokenHash: u.RefreshTokenHash,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func adaptUserIdToUUID(u AdaptedUser) library.User {
	return library.User{
		ID:               uuid.MustParse(u.ID),
		Name:             u.Name,
		Email:            u.Email,
		IsActive:         u.IsActive,
		PasswordHash:     u.PasswordHash,
		RefreshTokenHash: u.RefreshTokenHash,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func getUser(txn *memdb.Txn, id uuid.UUID) (AdaptedUser, error) {
	raw, err := txn.First("user", "id", id.String())
	if err != nil {
		return AdaptedUser{}, err
	}
	if raw == nil {
		return AdaptedUser{}, library.ErrResponseUserNotFound
	}
	return raw.(AdaptedUser), nil
}

func emailTaken(txn *memdb.Txn, email, ownerID string) (bool, error) {
	raw, err := txn.First("user", "email", email)
	if err != nil {
		return false, err
	}
	return raw != nil && raw.(AdaptedUser).ID != ownerID, nil
}

func (store *InMemoryStore) CreateUser(ctx context.Context, userEntry library.User) (library.User, error) {
	err := store.write(func(txn *memdb.Txn) error {
		taken, err := emailTaken(txn, userEntry.Email, userEntry.ID.String())
		if err != nil {
			return err
		}
		if taken {
			return library.ErrResponseEmailAlreadyExists
		}
		return txn.Insert("user", adaptUserIdToString(userEntry))
	})
	if err != nil {
		return library.User{}, fmt.Errorf("storing user on db: %w", err)
	}
	return userEntry, nil
}

func (store *InMemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (library.User, error) {
	txn, done := store.read()
	defer done()

	u, err := getUser(txn, id)
	if err != nil {
		return library.User{}, fmt.Errorf("searching user by ID: %w", err)
	}
	return adaptUserIdToUUID(u), nil
}

func (store *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (library.User, error) {
	txn, done := store.read()
	defer done()

	raw, err := txn.First("user", "email", email)
	if err != nil {
		return library.User{}, fmt.Errorf("searching user by email: %w", err)
	}
	if raw == nil {
		return library.User{}, fmt.Errorf("searching user by email: %w", library.ErrResponseUserNotFound)
	}
	return adaptUserIdToUUID(raw.(AdaptedUser)), nil
}

func (store *InMemoryStore) LockUser(ctx context.Context, id uuid.UUID) (library.User, error) {
	return store.GetUserByID(ctx, id)
}

func (store *InMemoryStore) ListUsers(ctx context.Context, page, pageSize int) ([]library.User, error) {
	txn, done := store.read()
	defer done()

	it, err := txn.Get("user", "id")
	if err != nil {
		return []library.User{}, fmt.Errorf("listing users from db: %w", err)
	}

	users := []library.User{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		users = append(users, adaptUserIdToUUID(obj.(AdaptedUser)))
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	return paginate(users, page, pageSize), nil
}

func (store *InMemoryStore) CountUsers(ctx context.Context) (int, error) {
	txn, done := store.read()
	defer done()

	it, err := txn.Get("user", "id")
	if err != nil {
		return 0, fmt.Errorf("counting users from db: %w", err)
	}

	total := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		total++
	}
	return total, nil
}

func (store *InMemoryStore) UpdateUser(ctx context.Context, userEntry library.User) (library.User, error) {
	var updated AdaptedUser
	err := store.write(func(txn *memdb.Txn) error {
		stored, err := getUser(txn, userEntry.ID)
		if err != nil {
			return err
		}
		taken, err := emailTaken(txn, userEntry.Email, stored.ID)
		if err != nil {
			return err
		}
		if taken {
			return library.ErrResponseEmailAlreadyExists
		}

		updated = stored
		updated.Name = userEntry.Name
		updated.Email = userEntry.Email
		updated.IsActive = userEntry.IsActive
		updated.UpdatedAt = userEntry.UpdatedAt
		return txn.Insert("user", updated)
	})
	if err != nil {
		return library.User{}, fmt.Errorf("updating user on db: %w", err)
	}
	return adaptUserIdToUUID(updated), nil
}

func (store *InMemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	err := store.write(func(txn *memdb.Txn) error {
		stored, err := getUser(txn, id)
		if err != nil {
			return err
		}
		if _, err := txn.DeleteAll("borrowing", "user_id", stored.ID); err != nil {
			return err
		}
		return txn.Delete("user", stored)
	})
	if err != nil {
		return fmt.Errorf("deleting user on db: %w", err)
	}
	return nil
}

func (store *InMemoryStore) SetRefreshTokenHash(ctx context.Context, userID uuid.UUID, hash *string) error {
	err := store.write(func(txn *memdb.Txn) error {
		stored, err := getUser(txn, userID)
		if err != nil {
			return err
		}
		stored.RefreshTokenHash = hash
		stored.UpdatedAt = now()
		return txn.Insert("user", stored)
	})
	if err != nil {
		return fmt.Errorf("storing refresh token on db: %w", err)
	}
	return nil
}
