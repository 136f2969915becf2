package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/xrpc"
)

type installNetworkRequest struct {
	NSID             string `json:"nsid"`
	TargetCollection string `json:"targetCollection"`
	Action           string `json:"action"`
	Script           string `json:"script"`
	Backfill         bool   `json:"backfill"`
}

// handleInstallNetworkLexicon resolves an NSID on the network and stores
// the fetched document. Resolution failures are reported as NotFound:
// from the caller's point of view the lexicon does not exist.
func (s *Server) handleInstallNetworkLexicon(w http.ResponseWriter, r *http.Request) {
	var req installNetworkRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.NSID == "" {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput, "missing nsid"))
		return
	}
	action, err := lexicon.ParseAction(req.Action)
	if err != nil {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput, "%v", err))
		return
	}

	p, err := s.installFromNetwork(r, req.NSID, req.TargetCollection, action, req.Script, req.Backfill)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lexiconViewOf(p, false))
}

// handleRefreshNetworkLexicon re-resolves an installed network lexicon,
// keeping its local configuration.
func (s *Server) handleRefreshNetworkLexicon(w http.ResponseWriter, r *http.Request) {
	nsid := chi.URLParam(r, "nsid")
	existing, err := s.engine.GetLexicon(nsid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if existing.Source != lexicon.SourceNetwork {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput,
			"lexicon %s was not installed from the network", nsid))
		return
	}

	p, err := s.installFromNetwork(r, nsid, existing.TargetCollection, existing.Action, existing.Script, existing.Backfill)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lexiconViewOf(p, false))
}

func (s *Server) installFromNetwork(r *http.Request, nsid, targetCollection string, action lexicon.Action, script string, backfill bool) (*lexicon.ParsedLexicon, error) {
	if s.resolver == nil {
		return nil, xrpc.NewError(xrpc.NameInternal, "network resolution is disabled")
	}
	res, err := s.resolver.Resolve(r.Context(), nsid)
	if err != nil {
		s.logger.Warn("lexicon resolution failed", "nsid", nsid, "error", err)
		return nil, xrpc.NewError(xrpc.NameNotFound, "could not resolve lexicon %s", nsid)
	}
	now := time.Now().UTC()
	return s.engine.PutLexicon(r.Context(), engine.LexiconUpsert{
		Doc:              res.Doc,
		TargetCollection: targetCollection,
		Action:           action,
		Script:           script,
		Source:           lexicon.SourceNetwork,
		AuthorityDID:     res.AuthorityDID,
		Backfill:         backfill,
		LastFetchedAt:    &now,
	})
}
