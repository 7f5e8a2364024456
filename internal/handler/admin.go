package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mathtutor/internal/model"
)

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	ExternalID  string `json:"external_id"`
}

var validRoles = map[model.UserRole]bool{
	model.UserRoleStudent: true,
	model.UserRoleTeacher: true,
	model.UserRoleAdmin:   true,
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeMessage(w, r, http.StatusBadRequest, "UsernamePasswordRequired", nil)
		return
	}
	role := model.UserRole(req.Role)
	if role == "" {
		role = model.UserRoleStudent
	}
	if !validRoles[role] {
		writeMessage(w, r, http.StatusBadRequest, "ErrBadRequest", nil)
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if existing != nil {
		writeMessage(w, r, http.StatusConflict, "UserCreateFailed", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		ExternalID:   req.ExternalID,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "username", req.Username, "error", err)
		writeMessage(w, r, http.StatusConflict, "UserCreateFailed", nil)
		return
	}
	user, err := h.store.GetUserByID(id)
	if err == nil && user == nil {
		err = model.ErrNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slog.Info("user created", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidUserID", nil)
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(id)
	if err == nil && user == nil {
		err = model.ErrNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slog.Info("user active flag toggled", "id", id, "active", user.Active)
	writeJSON(w, http.StatusOK, user)
}
