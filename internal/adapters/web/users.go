package web

import (
	"net/http"

	"boutique-credit/internal/app"

	"github.com/go-chi/chi/v5"
)

// createUser handles POST /api/users and POST /api/auth/register.
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Role     string `json:"role"`
		ClientID *int   `json:"client_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	u, err := h.svc.CreateUser(r.Context(), app.CreateUserRequest{
		Login:    body.Login,
		Password: body.Password,
		Role:     body.Role,
		ClientID: body.ClientID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, u, "user created")
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, users, "")
}

func (h *Handler) listUsersByRole(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsersByRole(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, users, "")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	u, err := h.svc.UpdateUser(r.Context(), app.UpdateUserRequest{UserID: id, Login: body.Login, Password: body.Password})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u, "user updated")
}
