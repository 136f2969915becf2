package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type ctxKey int

const adminNameKey ctxKey = iota

// requireAdmin guards the admin API. A request authenticates with a
// bearer key matching either the configured master key or an entry in
// the admins table. The master key is the bootstrap path: with it an
// operator can mint per-admin keys over the API.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "AuthRequired",
				"message": "missing bearer token",
			})
			return
		}

		if s.cfg.AdminKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) == 1 {
			ctx := context.WithValue(r.Context(), adminNameKey, "master")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		admin, err := s.engine.Store().AuthenticateAdmin(r.Context(), key)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "AuthRequired",
				"message": "invalid bearer token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), adminNameKey, admin.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}
