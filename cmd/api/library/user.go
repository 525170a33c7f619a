package library

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID               uuid.UUID
	Name             string
	Email            string
	IsActive         bool
	PasswordHash     string
	RefreshTokenHash *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CreateUserRequest struct {
	Name  string
	Email string
}

func (r CreateUserRequest) Validate() error {
	if r.Name == "" || !validEmail(r.Email) {
		return ErrResponseUserEntryBlankFields
	}
	return nil
}

type UpdateUserRequest struct {
	ID       uuid.UUID
	Name     *string
	Email    *string
	IsActive *bool
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	if err := req.Validate(); err != nil {
		return User{}, err
	}

	createdAt := s.now()
	return s.repo.CreateUser(ctx, User{
		ID:        uuid.New(),
		Name:      req.Name,
		Email:     req.Email,
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int) (Page[User], error) {
	itemsTotal, err := s.repo.CountUsers(ctx)
	if err != nil {
		return Page[User]{}, repositoryError("CountUsers", err)
	}

	if itemsTotal == 0 {
		return Page[User]{Results: []User{}}, nil
	}

	pageTotal, err := countPages(itemsTotal, page, pageSize)
	if err != nil {
		return Page[User]{}, err
	}

	users, err := s.repo.ListUsers(ctx, page, pageSize)
	if err != nil {
		return Page[User]{}, repositoryError("ListUsers", err)
	}

	return Page[User]{
		PageCurrent: page,
		PageTotal:   pageTotal,
		PageSize:    pageSize,
		ItemsTotal:  itemsTotal,
		Results:     users,
	}, nil
}

func (s *Service) UpdateUser(ctx context.Context, req UpdateUserRequest) (User, error) {
	var updated User
	err := s.withTx(ctx, "UpdateUser", func(tx Repository) error {
		stored, err := tx.LockUser(ctx, req.ID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			stored.Name = *req.Name
		}
		if req.Email != nil {
			stored.Email = *req.Email
		}
		if req.IsActive != nil {
			stored.IsActive = *req.IsActive
		}
		if stored.Name == "" || !validEmail(stored.Email) {
			return ErrResponseUserEntryBlankFields
		}
		stored.UpdatedAt = s.now()

		updated, err = tx.UpdateUser(ctx, stored)
		return err
	})
	if err != nil {
		return User{}, err
	}

	return updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteUser(ctx, id)
}
