package library

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/auth"
)

type SignUpRequest struct {
	Name     string
	Email    string
	Password string
}

type SignInRequest struct {
	Email    string
	Password string
}

var errTokensNotConfigured = errors.New("token manager not configured")

/* Compared against when the email is unknown, so both sign in failures cost one bcrypt check. */
var dummyPasswordHash = sync.OnceValue(func() string {
	hash, _ := auth.HashPassword("library-service-dummy-password")
	return hash
})

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (auth.Tokens, error) {
	if req.Name == "" || !validEmail(req.Email) || req.Password == "" {
		return auth.Tokens{}, ErrResponseAuthEntryBlankFields
	}
	if s.tokens == nil {
		return auth.Tokens{}, errTokensNotConfigured
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return auth.Tokens{}, fmt.Errorf("hashing password: %w", err)
	}

	createdAt := s.now()
	var tokens auth.Tokens
	err = s.withTx(ctx, "SignUp", func(tx Repository) error {
		newUser, err := tx.CreateUser(ctx, User{
			ID:           uuid.New(),
			Name:         req.Name,
			Email:        req.Email,
			IsActive:     true,
			PasswordHash: passwordHash,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		})
		if err != nil {
			return err
		}

		tokens, err = s.issueTokens(ctx, tx, newUser)
		return err
	})
	if err != nil {
		return auth.Tokens{}, err
	}

	return tokens, nil
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (auth.Tokens, error) {
	if req.Email == "" || req.Password == "" {
		return auth.Tokens{}, ErrResponseAuthEntryBlankFields
	}
	if s.tokens == nil {
		return auth.Tokens{}, errTokensNotConfigured
	}

	u, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrResponseUserNotFound) {
			auth.ComparePassword(dummyPasswordHash(), req.Password)
			return auth.Tokens{}, ErrResponseAccessDenied
		}
		return auth.Tokens{}, err
	}
	if !u.IsActive || u.PasswordHash == "" || !auth.ComparePassword(u.PasswordHash, req.Password) {
		return auth.Tokens{}, ErrResponseAccessDenied
	}

	return s.issueTokens(ctx, s.repo, u)
}

/*
Rotates the token pair. The presented refresh token must match the hash stored at the last
issue, and the user row stays locked until the new hash is written so a token rotates once.
*/
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	if s.tokens == nil {
		return auth.Tokens{}, errTokensNotConfigured
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return auth.Tokens{}, ErrResponseAccessDenied
	}

	var tokens auth.Tokens
	err = s.withTx(ctx, "RefreshTokens", func(tx Repository) error {
		u, err := tx.LockUser(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, ErrResponseUserNotFound) {
				return ErrResponseAccessDenied
			}
			return err
		}
		if !u.IsActive || u.RefreshTokenHash == nil || !auth.CompareRefreshToken(*u.RefreshTokenHash, refreshToken) {
			return ErrResponseAccessDenied
		}

		tokens, err = s.issueTokens(ctx, tx, u)
		return err
	})
	if err != nil {
		return auth.Tokens{}, err
	}

	return tokens, nil
}

func (s *Service) LogOut(ctx context.Context, userID uuid.UUID) error {
	return s.repo.SetRefreshTokenHash(ctx, userID, nil)
}

func (s *Service) issueTokens(ctx context.Context, repo Repository, u User) (auth.Tokens, error) {
	tokens, err := s.tokens.IssueTokens(u.ID, u.Email)
	if err != nil {
		return auth.Tokens{}, fmt.Errorf("issuing tokens: %w", err)
	}

	hash, err := auth.HashRefreshToken(tokens.RefreshToken)
	if err != nil {
		return auth.Tokens{}, fmt.Errorf("hashing refresh token: %w", err)
	}
	if err := repo.SetRefreshTokenHash(ctx, u.ID, &hash); err != nil {
		return auth.Tokens{}, err
	}

	return tokens, nil
}
