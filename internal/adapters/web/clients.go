package web

import (
	"net/http"
	"strconv"

	"boutique-credit/internal/app"
	"boutique-credit/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type clientBody struct {
	LastName       *string          `json:"last_name"`
	FirstName      *string          `json:"first_name"`
	Phone          *string          `json:"phone"`
	Address        *string          `json:"address"`
	PhotoRef       *string          `json:"photo_ref"`
	CategoryID     *int             `json:"category_id"`
	MaxOutstanding *decimal.Decimal `json:"max_outstanding"`
	Login          string           `json:"login"`
	Password       string           `json:"password"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// createClient handles POST /api/clients. login/password optionally create a CLIENT account.
func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var body clientBody
	if !decodeJSON(w, r, &body) {
		return
	}
	c, err := h.svc.CreateClient(r.Context(), app.CreateClientRequest{
		LastName:       deref(body.LastName),
		FirstName:      deref(body.FirstName),
		Phone:          deref(body.Phone),
		Address:        deref(body.Address),
		PhotoRef:       deref(body.PhotoRef),
		CategoryID:     body.CategoryID,
		MaxOutstanding: body.MaxOutstanding,
		Login:          body.Login,
		Password:       body.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, c, "client created")
}

// listClients handles GET /api/clients?hasUser=true|false.
func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	var hasUser *bool
	if raw := r.URL.Query().Get("hasUser"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, "hasUser must be true or false", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		hasUser = &v
	}
	clients, err := h.svc.ListClients(r.Context(), hasUser)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, clients, "")
}

// listDebtors handles GET /api/clients/dettes.
func (h *Handler) listDebtors(w http.ResponseWriter, r *http.Request) {
	debtors, err := h.svc.ListDebtors(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, debtors, "")
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok || !ownsClient(w, r, id) {
		return
	}
	c, err := h.svc.GetClient(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c, "")
}

func (h *Handler) getClientByPhone(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetClientByPhone(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c, "")
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var body clientBody
	if !decodeJSON(w, r, &body) {
		return
	}
	c, err := h.svc.UpdateClient(r.Context(), id, core.ClientUpdate{
		LastName:       body.LastName,
		FirstName:      body.FirstName,
		Phone:          body.Phone,
		Address:        body.Address,
		PhotoRef:       body.PhotoRef,
		CategoryID:     body.CategoryID,
		MaxOutstanding: body.MaxOutstanding,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c, "client updated")
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteClient(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listClientDettes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok || !ownsClient(w, r, id) {
		return
	}
	dettes, err := h.svc.ListClientDettes(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dettes, "")
}

// sendReminder handles POST /api/clients/{id}/rappel.
func (h *Handler) sendReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.SendReminder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type reminderResponse struct {
		Notification *core.Notification `json:"notification"`
		Tone         string             `json:"tone"`
		Source       string             `json:"source"`
	}
	writeData(w, http.StatusCreated, reminderResponse{
		Notification: res.Notification,
		Tone:         res.Tone,
		Source:       res.Source,
	}, "reminder sent")
}
