package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"boutique-credit/internal/app"
	"boutique-credit/internal/authz"
	"boutique-credit/internal/config"

	"github.com/go-chi/chi/v5"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	tokenTTL  time.Duration
}

// NewHandler creates and wires the chi router with all routes. Token signing,
// CORS and the request body cap come from the server section of the config.
func NewHandler(svc app.ApplicationService, cfg config.ServerConfig) http.Handler {
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	h := &Handler{
		svc:       svc,
		jwtSecret: cfg.JWTSecret,
		tokenTTL:  tokenTTL,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(cfg.Origins(), cfg.CORSMaxAge))
	r.Use(RequestBodyLimit(cfg.MaxBodyBytes))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		can := RequireCapability

		// Auth & users
		r.Get("/api/auth/me", h.me)
		r.With(can(authz.CapManageUsers)).Post("/api/auth/register", h.createUser)
		r.With(can(authz.CapManageUsers)).Post("/api/users", h.createUser)
		r.With(can(authz.CapListUsers)).Get("/api/users", h.listUsers)
		r.With(can(authz.CapListUsers)).Get("/api/users/role/{role}", h.listUsersByRole)
		r.With(can(authz.CapManageUsers)).Put("/api/users/{id}", h.updateUser)

		// Dettes
		r.With(can(authz.CapSubmitDemande)).Post("/api/dettes/demande", h.submitDemande)
		r.With(can(authz.CapCreateDette)).Post("/api/dettes", h.createDette)
		r.With(can(authz.CapListDettes)).Get("/api/dettes", h.listDettes)
		r.With(can(authz.CapListDettes)).Get("/api/dettes/demandes", h.listPendingDemandes)
		r.With(can(authz.CapListOwnDettes)).Get("/api/dettes/demandes/client", h.listOwnDettes)
		r.With(can(authz.CapCancelClientDemande)).Patch("/api/dettes/clients/{clientId}/cancel", h.cancelClientDemande)
		r.With(can(authz.CapViewDette)).Get("/api/dettes/{id}", h.getDette)
		r.With(can(authz.CapViewDette)).Get("/api/dettes/{id}/articles", h.getDetteLines)
		r.With(can(authz.CapUpdateDetteStatus)).Patch("/api/dettes/{id}/status", h.updateDetteStatus)
		r.With(can(authz.CapRelaunchDette)).Post("/api/dettes/{id}/relance", h.relaunchDette)
		r.With(can(authz.CapRegisterPayment)).Put("/api/dettes/{id}/paiements", h.registerPayment)
		r.With(can(authz.CapViewPayments)).Get("/api/dettes/{id}/paiements", h.listPayments)
		r.With(can(authz.CapDeleteDette)).Delete("/api/dettes/{id}", h.deleteDette)

		// Clients
		r.With(can(authz.CapManageClients)).Post("/api/clients", h.createClient)
		r.With(can(authz.CapListClients)).Get("/api/clients", h.listClients)
		r.With(can(authz.CapListClients)).Get("/api/clients/dettes", h.listDebtors)
		r.With(can(authz.CapListClients)).Get("/api/clients/telephone/{phone}", h.getClientByPhone)
		r.With(can(authz.CapViewClient)).Get("/api/clients/{id}", h.getClient)
		r.With(can(authz.CapManageClients)).Put("/api/clients/{id}", h.updateClient)
		r.With(can(authz.CapManageClients)).Delete("/api/clients/{id}", h.deleteClient)
		r.With(can(authz.CapListClientDettes)).Get("/api/clients/{id}/dettes", h.listClientDettes)
		r.With(can(authz.CapDraftReminder)).Post("/api/clients/{id}/rappel", h.sendReminder)

		// Catalog
		r.With(can(authz.CapManageArticles)).Post("/api/articles", h.createArticle)
		r.With(can(authz.CapListArticles)).Get("/api/articles", h.listArticles)
		r.With(can(authz.CapViewArticle)).Get("/api/articles/find/{label}", h.findArticle)
		r.With(can(authz.CapViewArticle)).Get("/api/articles/{id}", h.getArticle)
		r.With(can(authz.CapManageArticles)).Patch("/api/articles/{id}/stock", h.restockArticle)
		r.With(can(authz.CapManageCategories)).Post("/api/categories/seed", h.seedCategories)
		r.With(can(authz.CapListCategories)).Get("/api/categories", h.listCategories)

		// Notifications
		r.With(can(authz.CapSendNotification)).Post("/api/notifications", h.sendNotification)
		r.With(can(authz.CapReadNotifications)).Get("/api/notifications/client/{id}", h.listNotifications)
		r.With(can(authz.CapReadNotifications)).Patch("/api/notifications/{id}/read", h.markNotificationRead)
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// pathInt parses a positive integer URL parameter, writing 400 on failure.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, r, "invalid "+name+": "+raw, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
