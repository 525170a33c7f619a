package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

type UserEntry struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UpdateUserEntry struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	IsActive *bool   `json:"is_active"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var userEntry UserEntry
	if !h.decodeEntry(w, r, &userEntry) {
		return
	}

	storedUser, err := h.service.CreateUser(r.Context(), library.CreateUserRequest{
		Name:  userEntry.Name,
		Email: userEntry.Email,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusCreated, userToResponse(storedUser))
}

func (h *Handler) getUserById(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	returnedUser, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, userToResponse(returnedUser))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, valid := extractPageParams(r.URL.Query())
	if !valid {
		responseJSON(w, http.StatusBadRequest, library.ErrResponseQueryPageInvalid)
		return
	}

	pagedUsers, err := h.service.ListUsers(r.Context(), page, pageSize)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, pageToResponse(pagedUsers, userToResponse))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	var userEntry UpdateUserEntry
	if !h.decodeEntry(w, r, &userEntry) {
		return
	}

	updatedUser, err := h.service.UpdateUser(r.Context(), library.UpdateUserRequest{
		ID:       id,
		Name:     userEntry.Name,
		Email:    userEntry.Email,
		IsActive: userEntry.IsActive,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, userToResponse(updatedUser))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.handleError(err, w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

/* Credentials never leave the service. */
func userToResponse(u library.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
