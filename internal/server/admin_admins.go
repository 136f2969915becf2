package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvault/lexhost/internal/store"
	"github.com/atvault/lexhost/internal/xrpc"
)

type adminView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CreatedAt  string `json:"createdAt"`
	LastUsedAt string `json:"lastUsedAt,omitempty"`
}

func adminViewOf(a *store.Admin) adminView {
	v := adminView{
		ID:        a.ID,
		Name:      a.Name,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.LastUsedAt != nil {
		v.LastUsedAt = a.LastUsedAt.Format(time.RFC3339)
	}
	return v
}

// handleCreateAdmin mints a new admin API key. The plaintext key is
// returned once and never stored.
func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput, "missing name"))
		return
	}

	admin, key, err := s.engine.Store().CreateAdmin(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"admin": adminViewOf(admin),
		"key":   key,
	})
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := s.engine.Store().ListAdmins(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]adminView, 0, len(admins))
	for _, a := range admins {
		views = append(views, adminViewOf(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": views})
}

func (s *Server) handleDeleteAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Store().DeleteAdmin(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}
