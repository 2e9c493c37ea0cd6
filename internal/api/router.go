// Package api wires the HTTP/JSON surface: route table, envelope
// extraction from body or query string, and request logging, fronting
// the device registry, session store and admin packages.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hadv/ethaura-passkeys/internal/admin"
	"github.com/hadv/ethaura-passkeys/internal/devices"
	"github.com/hadv/ethaura-passkeys/internal/gateway"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/sessions"
)

// Config bundles the collaborators the router dispatches to.
type Config struct {
	Devices     *devices.Registry
	Sessions    *sessions.Store
	Admin       *admin.Admin
	Recoverer   gateway.Recoverer
	RateLimiter *gateway.IPRateLimiter
	CORS        gateway.CORSConfig
	Logger      log.Logger
	Now         func() time.Time
	StartedAt   time.Time
}

// New builds the full handler, with CORS and rate limiting applied to
// the /api/* surface and an unauthenticated /health probe outside it.
func New(cfg Config) http.Handler {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	h := &handlers{cfg: cfg}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/passkeys", h.addDevice).Methods(http.MethodPost)
	api.HandleFunc("/passkeys/{accountAddress}", h.getDevices).Methods(http.MethodGet)
	api.HandleFunc("/passkeys", h.removeDevice).Methods(http.MethodDelete)
	api.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}", h.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/complete", h.completeSession).Methods(http.MethodPost)
	api.HandleFunc("/admin/stats", h.adminStats).Methods(http.MethodGet)
	api.HandleFunc("/admin/backup", h.adminBackup).Methods(http.MethodPost)

	api.Use(cfg.RateLimiter.Middleware)
	api.Use(cfg.CORS.Wrap)

	return withRequestLog(cfg.Logger, r)
}

// statusRecorder wraps a ResponseWriter to capture the status code
// written, mirroring gorilla/handlers.CombinedLoggingHandler's own
// loggingResponseWriter -- that package writes its access log straight
// to an io.Writer, so it can't be reused here directly, but the
// wrap-and-record idiom is the same.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestLog(logger log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Infof("%s %s %d %s %s", r.Method, r.URL.Path, rec.status, time.Since(start), truncatedSourceIP(r))
	})
}

// truncatedSourceIP returns the client's source IP with its most
// specific component masked off (the last octet for IPv4, the last 16
// bits for IPv6), so request logs identify a caller's network without
// pinpointing the exact host.
func truncatedSourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "unknown"
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(112, 128)).String()
}
