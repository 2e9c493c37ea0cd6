package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
)

// CORSConfig controls which origins may call the /api/* surface.
type CORSConfig struct {
	// FrontendOrigin is the single allowed origin in production.
	FrontendOrigin string
	// Development relaxes the origin check to localhost and ephemeral
	// tunneling domains, for local frontend development against a
	// non-production backend.
	Development bool
}

// devOriginSuffixes are ephemeral tunneling domains permitted in
// development mode, in addition to localhost.
var devOriginSuffixes = []string{".ngrok.io", ".ngrok-free.app", ".loca.lt"}

// Wrap applies CORS to next. Requests with no Origin header (native
// mobile clients, health probes) are always permitted through untouched.
func (c CORSConfig) Wrap(next http.Handler) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOriginValidator(c.originAllowed),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
	)
	wrapped := cors(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") == "" {
			next.ServeHTTP(w, r)
			return
		}
		wrapped.ServeHTTP(w, r)
	})
}

func (c CORSConfig) originAllowed(origin string) bool {
	if c.FrontendOrigin != "" && origin == c.FrontendOrigin {
		return true
	}
	if !c.Development {
		return false
	}
	if origin == "http://localhost:3000" || origin == "http://127.0.0.1:3000" {
		return true
	}
	for _, suffix := range devOriginSuffixes {
		if strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
