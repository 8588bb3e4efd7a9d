package web

import (
	"net/http"

	"boutique-credit/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (h *Handler) createArticle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Label         string          `json:"label"`
		UnitPrice     decimal.Decimal `json:"unit_price"`
		StockQuantity int             `json:"stock_quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	a, err := h.svc.CreateArticle(r.Context(), app.CreateArticleRequest{
		Label:         body.Label,
		UnitPrice:     body.UnitPrice,
		StockQuantity: body.StockQuantity,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, a, "article created")
}

// listArticles handles GET /api/articles?disponible=true (in-stock only).
func (h *Handler) listArticles(w http.ResponseWriter, r *http.Request) {
	inStockOnly := r.URL.Query().Get("disponible") == "true"
	articles, err := h.svc.ListArticles(r.Context(), inStockOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, articles, "")
}

func (h *Handler) getArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	a, err := h.svc.GetArticle(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a, "")
}

func (h *Handler) findArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.FindArticle(r.Context(), chi.URLParam(r, "label"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a, "")
}

// restockArticle handles PATCH /api/articles/{id}/stock. quantity is added to the current stock.
func (h *Handler) restockArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	a, err := h.svc.RestockArticle(r.Context(), id, body.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a, "stock updated")
}

func (h *Handler) seedCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.SeedCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cats, "categories seeded")
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cats, "")
}
