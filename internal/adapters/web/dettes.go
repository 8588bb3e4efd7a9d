package web

import (
	"net/http"

	"boutique-credit/internal/app"
	"boutique-credit/internal/authz"

	"github.com/shopspring/decimal"
)

type detteLineBody struct {
	ArticleID int `json:"article_id"`
	Quantity  int `json:"quantity"`
}

type detteBody struct {
	ClientID int             `json:"client_id"`
	Lines    []detteLineBody `json:"lines"`
}

func (b detteBody) toRequest() app.DetteRequest {
	req := app.DetteRequest{ClientID: b.ClientID, Lines: make([]app.DetteLineRequest, len(b.Lines))}
	for i, l := range b.Lines {
		req.Lines[i] = app.DetteLineRequest{ArticleID: l.ArticleID, Quantity: l.Quantity}
	}
	return req
}

// submitDemande handles POST /api/dettes/demande. CLIENT callers submit for
// themselves; client_id may be omitted.
func (h *Handler) submitDemande(w http.ResponseWriter, r *http.Request) {
	var body detteBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if claims := authFromContext(r.Context()); claims != nil && authz.Scoped(claims.Role) && body.ClientID == 0 {
		body.ClientID = *claims.ClientID
	}
	if body.ClientID != 0 && !ownsClient(w, r, body.ClientID) {
		return
	}

	d, err := h.svc.SubmitDemande(r.Context(), body.toRequest())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, d, "demande submitted")
}

// createDette handles POST /api/dettes.
func (h *Handler) createDette(w http.ResponseWriter, r *http.Request) {
	var body detteBody
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := h.svc.CreateDette(r.Context(), body.toRequest())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, d, "dette created")
}

// listDettes handles GET /api/dettes?status=.
func (h *Handler) listDettes(w http.ResponseWriter, r *http.Request) {
	var status *string
	if s := r.URL.Query().Get("status"); s != "" {
		status = &s
	}
	dettes, err := h.svc.ListDettes(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dettes, "")
}

func (h *Handler) listPendingDemandes(w http.ResponseWriter, r *http.Request) {
	dettes, err := h.svc.ListPendingDemandes(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dettes, "")
}

// listOwnDettes handles GET /api/dettes/demandes/client for the caller's linked client.
func (h *Handler) listOwnDettes(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	if claims == nil || claims.ClientID == nil {
		writeError(w, r, "no client is linked to this account", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	dettes, err := h.svc.ListClientDettes(r.Context(), *claims.ClientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dettes, "")
}

func (h *Handler) cancelClientDemande(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathInt(w, r, "clientId")
	if !ok {
		return
	}
	d, err := h.svc.CancelClientDemande(r.Context(), clientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d, "demande cancelled")
}

func (h *Handler) getDette(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetDette(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ownsClient(w, r, d.ClientID) {
		return
	}
	writeData(w, http.StatusOK, d, "")
}

// getDetteLines handles GET /api/dettes/{id}/articles.
func (h *Handler) getDetteLines(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetDette(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ownsClient(w, r, d.ClientID) {
		return
	}
	writeData(w, http.StatusOK, d.Lines, "")
}

// updateDetteStatus handles PATCH /api/dettes/{id}/status.
func (h *Handler) updateDetteStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := h.svc.UpdateDetteStatus(r.Context(), id, body.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d, "status updated to "+d.Status)
}

// relaunchDette handles POST /api/dettes/{id}/relance.
func (h *Handler) relaunchDette(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if !h.ownsDette(w, r, id) {
		return
	}
	d, err := h.svc.RelaunchDette(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d, "demande relaunched")
}

// registerPayment handles PUT /api/dettes/{id}/paiements.
func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := h.svc.RegisterPayment(r.Context(), id, body.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d, "payment registered")
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if !h.ownsDette(w, r, id) {
		return
	}
	payments, err := h.svc.ListPayments(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, payments, "")
}

func (h *Handler) deleteDette(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteDette(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
