package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boutique-credit/internal/app"
	"boutique-credit/internal/authz"
	"boutique-credit/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

type authClaimsKey struct{}

// AuthClaims holds the authenticated user's identity extracted from the JWT.
type AuthClaims struct {
	UserID   int
	Login    string
	Role     authz.Role
	ClientID *int // set for CLIENT users
}

// authFromContext returns the auth claims stored in ctx, or nil.
func authFromContext(ctx context.Context) *AuthClaims {
	v, _ := ctx.Value(authClaimsKey{}).(*AuthClaims)
	return v
}

// jwtClaims is the JWT payload struct used for signing and parsing.
type jwtClaims struct {
	UserID   int    `json:"user_id"`
	Login    string `json:"login"`
	Role     string `json:"role"`
	ClientID *int   `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// tokenFromRequest reads the auth_token cookie, falling back to a Bearer header.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie("auth_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (h *Handler) parseToken(raw string) (*AuthClaims, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	role, err := authz.ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}
	if role == authz.RoleClient && claims.ClientID == nil {
		return nil, fmt.Errorf("client token without client id")
	}
	return &AuthClaims{UserID: claims.UserID, Login: claims.Login, Role: role, ClientID: claims.ClientID}, nil
}

// issueToken signs a token for session valid for the handler's token TTL.
func (h *Handler) issueToken(session *app.UserSession) (string, error) {
	now := time.Now()
	claims := &jwtClaims{
		UserID:   session.UserID,
		Login:    session.Login,
		Role:     session.Role.String(),
		ClientID: session.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}

// RequireAuth is chi middleware that validates the auth token and injects
// AuthClaims into the request context. Returns 401 if the token is absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		claims, err := h.parseToken(raw)
		if err != nil {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		recordCaller(r.Context(), claims)
		ctx := context.WithValue(r.Context(), authClaimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability rejects callers whose role does not hold cap with 403.
// Must run after RequireAuth.
func RequireCapability(cap authz.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := authFromContext(r.Context())
			if claims == nil {
				writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
				return
			}
			if !authz.Allowed(claims.Role, cap) {
				writeError(w, r, "role "+claims.Role.String()+" may not perform this operation", "FORBIDDEN", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ownsClient writes 403 and returns false when a CLIENT caller targets another client.
func ownsClient(w http.ResponseWriter, r *http.Request, clientID int) bool {
	claims := authFromContext(r.Context())
	if claims == nil || !authz.Scoped(claims.Role) {
		return true
	}
	if claims.ClientID == nil || *claims.ClientID != clientID {
		writeError(w, r, "clients may only access their own data", "FORBIDDEN", http.StatusForbidden)
		return false
	}
	return true
}

// ownsDette loads dette id for CLIENT callers and checks it belongs to them.
func (h *Handler) ownsDette(w http.ResponseWriter, r *http.Request, id int) bool {
	claims := authFromContext(r.Context())
	if claims == nil || !authz.Scoped(claims.Role) {
		return true
	}
	d, err := h.svc.GetDette(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return false
	}
	return ownsClient(w, r, d.ClientID)
}

type sessionResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type userView struct {
	ID           int                `json:"id"`
	Login        string             `json:"login"`
	Role         authz.Role         `json:"role"`
	ClientID     *int               `json:"client_id,omitempty"`
	Capabilities []authz.Capability `json:"capabilities,omitempty"`
}

// login handles POST /api/auth/login.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			writeError(w, r, "invalid login or password", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	signed, err := h.issueToken(session)
	if err != nil {
		writeError(w, r, "token generation failed", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.tokenTTL / time.Second),
	})
	writeData(w, http.StatusOK, sessionResponse{
		Token: signed,
		User:  userView{ID: session.UserID, Login: session.Login, Role: session.Role, ClientID: session.ClientID},
	}, "")
}

// logout handles POST /api/auth/logout and clears the auth cookie.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// me handles GET /api/auth/me and returns the current user's profile.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	if claims == nil {
		writeError(w, r, "not authenticated", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	user, err := h.svc.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, userView{
		ID:           user.ID,
		Login:        user.Login,
		Role:         user.Role,
		ClientID:     user.ClientID,
		Capabilities: authz.Capabilities(claims.Role),
	}, "")
}
