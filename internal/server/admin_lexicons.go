package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/xrpc"
)

// lexiconView is the admin API shape of a stored lexicon.
type lexiconView struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	RecordKey        string     `json:"recordKey,omitempty"`
	TargetCollection string     `json:"targetCollection,omitempty"`
	Action           string     `json:"action,omitempty"`
	Script           string     `json:"script,omitempty"`
	Source           string     `json:"source"`
	AuthorityDID     string     `json:"authorityDid,omitempty"`
	Backfill         bool       `json:"backfill"`
	Revision         int        `json:"revision"`
	LastFetchedAt    *time.Time `json:"lastFetchedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Lexicon          any        `json:"lexicon,omitempty"`
}

func lexiconViewOf(p *lexicon.ParsedLexicon, includeDoc bool) lexiconView {
	v := lexiconView{
		ID:               p.ID,
		Type:             string(p.Type),
		RecordKey:        p.RecordKey,
		TargetCollection: p.TargetCollection,
		Action:           string(p.Action),
		Script:           p.Script,
		Source:           string(p.Source),
		AuthorityDID:     p.AuthorityDID,
		Backfill:         p.Backfill,
		Revision:         p.Revision,
		LastFetchedAt:    p.LastFetchedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if includeDoc {
		v.Lexicon = p.Raw
	}
	return v
}

type putLexiconRequest struct {
	Lexicon          map[string]any `json:"lexicon"`
	TargetCollection string         `json:"targetCollection"`
	Action           string         `json:"action"`
	Script           string         `json:"script"`
	Backfill         bool           `json:"backfill"`
}

// handlePutLexicon installs or updates a manual lexicon.
func (s *Server) handlePutLexicon(w http.ResponseWriter, r *http.Request) {
	var req putLexiconRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Lexicon == nil {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput, "missing lexicon document"))
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		docID, _ := req.Lexicon["id"].(string)
		if docID != "" && docID != id {
			s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput,
				"lexicon id %q does not match path %q", docID, id))
			return
		}
		req.Lexicon["id"] = id
	}

	action, err := lexicon.ParseAction(req.Action)
	if err != nil {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput, "%v", err))
		return
	}

	p, err := s.engine.PutLexicon(r.Context(), engine.LexiconUpsert{
		Doc:              req.Lexicon,
		TargetCollection: req.TargetCollection,
		Action:           action,
		Script:           req.Script,
		Source:           lexicon.SourceManual,
		Backfill:         req.Backfill,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lexiconViewOf(p, false))
}

func (s *Server) handleGetLexicon(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetLexicon(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lexiconViewOf(p, true))
}

func (s *Server) handleListLexicons(w http.ResponseWriter, r *http.Request) {
	s.listLexicons(w, r, lexicon.Source(r.URL.Query().Get("source")))
}

func (s *Server) handleListNetworkLexicons(w http.ResponseWriter, r *http.Request) {
	s.listLexicons(w, r, lexicon.SourceNetwork)
}

func (s *Server) listLexicons(w http.ResponseWriter, r *http.Request, source lexicon.Source) {
	lexicons, err := s.engine.ListLexicons(r.Context(), source)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]lexiconView, 0, len(lexicons))
	for _, p := range lexicons {
		views = append(views, lexiconViewOf(p, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"lexicons": views})
}

func (s *Server) handleDeleteLexicon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		id = chi.URLParam(r, "nsid")
	}
	if err := s.engine.DeleteLexicon(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}
