package web

import (
	"net/http"
	"slices"

	"boutique-credit/internal/authz"
	"boutique-credit/internal/core"
)

func (h *Handler) sendNotification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID int    `json:"client_id"`
		Message  string `json:"message"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	n, err := h.svc.SendNotification(r.Context(), body.ClientID, body.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, n, "notification sent")
}

// listNotifications handles GET /api/notifications/client/{id}.
func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathInt(w, r, "id")
	if !ok || !ownsClient(w, r, clientID) {
		return
	}
	notes, err := h.svc.ListNotifications(r.Context(), clientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, notes, "")
}

// markNotificationRead handles PATCH /api/notifications/{id}/read.
func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if claims := authFromContext(r.Context()); claims != nil && authz.Scoped(claims.Role) {
		own, err := h.svc.ListNotifications(r.Context(), *claims.ClientID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !slices.ContainsFunc(own, func(n core.Notification) bool { return n.ID == id }) {
			writeError(w, r, "clients may only access their own data", "FORBIDDEN", http.StatusForbidden)
			return
		}
	}
	n, err := h.svc.MarkNotificationRead(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, n, "")
}
