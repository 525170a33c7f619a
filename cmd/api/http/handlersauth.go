package http

import (
	"net/http"

	"github.com/library-service/cmd/api/auth"
	"github.com/library-service/cmd/api/library"
)

type SignUpEntry struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInEntry struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshEntry struct {
	RefreshToken string `json:"refresh_token"`
}

type TokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var entry SignUpEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}

	tokens, err := h.service.SignUp(r.Context(), library.SignUpRequest{
		Name:     entry.Name,
		Email:    entry.Email,
		Password: entry.Password,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusCreated, tokensToResponse(tokens))
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var entry SignInEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}

	tokens, err := h.service.SignIn(r.Context(), library.SignInRequest{Email: entry.Email, Password: entry.Password})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, tokensToResponse(tokens))
}

func (h *Handler) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var entry RefreshEntry
	if !h.decodeEntry(w, r, &entry) {
		return
	}
	if entry.RefreshToken == "" {
		responseJSON(w, http.StatusUnauthorized, library.ErrResponseUnauthorized)
		return
	}

	tokens, err := h.service.RefreshTokens(r.Context(), entry.RefreshToken)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, tokensToResponse(tokens))
}

/* Drops the stored refresh token of the authenticated user. */
func (h *Handler) logOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		responseJSON(w, http.StatusUnauthorized, library.ErrResponseUnauthorized)
		return
	}

	if err := h.service.LogOut(r.Context(), claims.UserID); err != nil {
		h.handleError(err, w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func tokensToResponse(t auth.Tokens) TokensResponse {
	return TokensResponse{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}
