package web

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"boutique-credit/internal/authz"

	"github.com/google/uuid"
)

type requestInfoKey struct{}

// requestInfo is shared by the middleware chain for one request. RequestID
// creates it; RequireAuth records the caller once the token is verified, so
// the outer Logger and Recoverer can attribute the request.
type requestInfo struct {
	id    string
	login string
	role  authz.Role
}

func (i *requestInfo) caller() string {
	if i == nil || i.login == "" {
		return "-"
	}
	return i.login + "/" + i.role.String()
}

func requestInfoFromContext(ctx context.Context) *requestInfo {
	v, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return v
}

// requestIDFromContext returns the request ID from ctx, or empty string.
func requestIDFromContext(ctx context.Context) string {
	if info := requestInfoFromContext(ctx); info != nil {
		return info.id
	}
	return ""
}

// recordCaller attaches the authenticated caller to the request's log line.
func recordCaller(ctx context.Context, claims *AuthClaims) {
	if info := requestInfoFromContext(ctx); info != nil && claims != nil {
		info.login = claims.Login
		info.role = claims.Role
	}
}

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9\-]{1,64}$`)

// RequestID tags each request with an X-Request-ID. A caller-supplied id is
// kept only when it is a short alphanumeric/hyphen string.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestInfoKey{}, &requestInfo{id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger writes one line per request:
//
//	PATCH /api/dettes/4/status 200 1.2ms 312B boutiquier/BOUTIQUIER [id]
//
// Anonymous requests show "-" as the caller.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		info := requestInfoFromContext(r.Context())
		log.Printf("%s %s %d %s %dB %s [%s]",
			r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond),
			rec.bytes, info.caller(), requestIDFromContext(r.Context()))
	})
}

// Recoverer turns a handler panic into a 500 and logs the stack with the caller.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				info := requestInfoFromContext(r.Context())
				log.Printf("panic in %s %s by %s [%s]: %v\n%s",
					r.Method, r.URL.Path, info.caller(), requestIDFromContext(r.Context()), rv, debug.Stack())
				writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS answers cross-origin requests from the configured origins only. The
// session cookie is sent cross-site, so credentials are allowed and the
// request id is exposed to browser clients. No origins disables CORS.
func CORS(origins []string, maxAge time.Duration) func(http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Authorization", "Content-Type", "X-Request-ID"}, ", ")
	allowMethods := strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && slices.Contains(origins, origin)
			if allowed {
				h := w.Header()
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			}

			// Preflight: answered here, never routed.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h := w.Header()
					h.Set("Access-Control-Allow-Headers", allowHeaders)
					h.Set("Access-Control-Allow-Methods", allowMethods)
					if maxAge > 0 {
						h.Set("Access-Control-Max-Age", strconv.Itoa(int(maxAge/time.Second)))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestBodyLimit caps request bodies at maxBytes; decodeJSON turns the
// overflow into a 413. A non-positive limit disables the cap.
func RequestBodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the status code and body size for Logger.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}
