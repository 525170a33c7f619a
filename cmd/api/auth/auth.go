package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

type Tokens struct {
	AccessToken  string
	RefreshToken string
}

type Claims struct {
	UserID uuid.UUID
	Email  string
}

type Config struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

type Manager struct {
	accessSecret  []byte
	accessTTL     time.Duration
	refreshSecret []byte
	refreshTTL    time.Duration
	now           func() time.Time
}

type tokenClaims struct {
	Email string `json:"email"`
	Use   string `json:"token_use"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		accessTTL:     cfg.AccessTTL,
		refreshSecret: []byte(cfg.RefreshSecret),
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

/* Signs a new access/refresh pair for the user. Both carry the user ID as subject. */
func (m *Manager) IssueTokens(userID uuid.UUID, email string) (Tokens, error) {
	access, err := m.sign(userID, email, useAccess, m.accessSecret, m.accessTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := m.sign(userID, email, useRefresh, m.refreshSecret, m.refreshTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("signing refresh token: %w", err)
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *Manager) ParseAccessToken(token string) (Claims, error) {
	return m.parse(token, useAccess, m.accessSecret)
}

func (m *Manager) ParseRefreshToken(token string) (Claims, error) {
	return m.parse(token, useRefresh, m.refreshSecret)
}

func (m *Manager) sign(userID uuid.UUID, email, use string, secret []byte, ttl time.Duration) (string, error) {
	now := m.now()
	claims := tokenClaims{
		Email: email,
		Use:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (m *Manager) parse(tokenString, use string, secret []byte) (Claims, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Use != use {
		return Claims{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: subject: %w", ErrInvalidToken, err)
	}

	return Claims{UserID: userID, Email: claims.Email}, nil
}
