package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mastersrl/carnivalsync/store"
)

// RegisterHTTP mounts the admin surface on r. With a token configured,
// every /admin route requires it as a bearer credential; /healthz stays
// open for probes.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/admin/sync", func(r chi.Router) {
		r.Use(bearerAuth(s.cfg.AdminToken))

		r.Post("/trigger", func(w http.ResponseWriter, req *http.Request) {
			result := s.TriggerManual(req.Context())
			code := http.StatusOK
			if !result.Success {
				code = http.StatusConflict
			}
			writeJSON(w, code, result)
		})

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			status, err := s.Status(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, status)
		})

		r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
			limit := 50
			if raw := req.URL.Query().Get("limit"); raw != "" {
				if n, err := strconv.Atoi(raw); err == nil && n > 0 {
					limit = n
				}
			}
			events, err := s.store.List(req.Context(), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if events == nil {
				events = []*store.Event{}
			}
			writeJSON(w, http.StatusOK, events)
		})
	})
}

// bearerAuth enforces "Authorization: Bearer <token>" with a
// constant-time compare. An empty configured token leaves the surface
// open, which is the development default.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
