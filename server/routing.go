package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
)

const requestIDHeader = "X-Request-Id"

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	resolve := s.corsMiddleware(s.rateLimit(s.requestID(s.HandleResolution)))
	s.mux.HandleFunc("POST /_zentity/resolution", resolve)
	s.mux.HandleFunc("POST /_zentity/resolution/{entity_type}", resolve)
	s.mux.HandleFunc("OPTIONS /_zentity/resolution", resolve)
	s.mux.HandleFunc("OPTIONS /_zentity/resolution/{entity_type}", resolve)

	s.mux.HandleFunc("GET /_zentity/models", s.corsMiddleware(s.HandleListModels))
	s.mux.HandleFunc("/_zentity/models/{entity_type}", s.corsMiddleware(s.HandleModel)) // GET/PUT/DELETE

	s.mux.HandleFunc("GET /ws/resolution", s.rateLimit(s.requestID(s.HandleResolutionWebSocket)))
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /health", s.corsMiddleware(s.HandleHealth))
}

// corsMiddleware adds CORS headers for allowed origins and answers preflight requests
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// rateLimit rejects requests beyond the configured rate with 429
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && r.Method != http.MethodOptions && !s.limiter.Allow() {
			s.logger.Warnw("Request rate limited", logger.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeFailure(w, http.StatusTooManyRequests, errors.New("too many requests"), false)
			return
		}
		next(w, r)
	}
}

// requestID tags the request context with the caller's X-Request-Id, or a new one
func (s *Server) requestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	}
}

// checkOrigin accepts requests without an Origin header and origins with an allowed prefix
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
