package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/store"
	"github.com/atvault/lexhost/internal/xrpc"
)

type backfillView struct {
	ID           string `json:"id"`
	Collection   string `json:"collection"`
	Status       string `json:"status"`
	ReposTotal   int    `json:"reposTotal"`
	ReposDone    int    `json:"reposDone"`
	RecordsSaved int    `json:"recordsSaved"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func backfillViewOf(job *store.BackfillJob) backfillView {
	return backfillView{
		ID:           job.ID,
		Collection:   job.Collection,
		Status:       job.Status,
		ReposTotal:   job.ReposTotal,
		ReposDone:    job.ReposDone,
		RecordsSaved: job.RecordsSaved,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
}

// handleStartBackfill creates a backfill job and kicks off discovery in
// the background. One active job per collection.
func (s *Server) handleStartBackfill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection string `json:"collection"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Collection == "" {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput, "missing collection"))
		return
	}
	if s.relay == nil || s.resolver == nil {
		s.writeError(w, xrpc.NewError(xrpc.NameInternal, "backfill is disabled"))
		return
	}
	lex := s.engine.Registry().Get(req.Collection)
	if lex == nil || lex.Type != lexicon.TypeRecord {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidInput,
			"no record lexicon registered for %s", req.Collection))
		return
	}

	active, err := s.engine.Store().ActiveBackfillJob(r.Context(), req.Collection)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	if active != nil {
		s.writeError(w, xrpc.NewError(xrpc.NameConflict,
			"backfill %s already running for %s", active.ID, req.Collection))
		return
	}

	job, err := s.engine.Store().CreateBackfillJob(r.Context(), req.Collection)
	if err != nil {
		s.writeError(w, err)
		return
	}

	go s.runBackfill(job)

	writeJSON(w, http.StatusAccepted, backfillViewOf(job))
}

func (s *Server) handleListBackfill(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.engine.Store().ListBackfillJobs(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]backfillView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, backfillViewOf(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *Server) handleGetBackfill(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.Store().GetBackfillJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backfillViewOf(job))
}

// runBackfill walks the relay's repo listing for the job's collection
// and copies every readable record into the local store. Unreachable
// repos and invalid records are skipped, not fatal.
func (s *Server) runBackfill(job *store.BackfillJob) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	st := s.engine.Store()
	fail := func(err error) {
		job.Status = store.BackfillFailed
		job.Error = err.Error()
		if uerr := st.UpdateBackfillJob(ctx, job); uerr != nil {
			s.logger.Error("backfill update failed", "job", job.ID, "error", uerr)
		}
		s.logger.Error("backfill failed", "job", job.ID, "collection", job.Collection, "error", err)
	}

	job.Status = store.BackfillRunning
	if err := st.UpdateBackfillJob(ctx, job); err != nil {
		s.logger.Error("backfill update failed", "job", job.ID, "error", err)
		return
	}

	dids, err := s.relay.DiscoverRepos(ctx, job.Collection, s.cfg.BackfillMaxRepos)
	if err != nil {
		fail(err)
		return
	}
	job.ReposTotal = len(dids)
	if err := st.UpdateBackfillJob(ctx, job); err != nil {
		s.logger.Error("backfill update failed", "job", job.ID, "error", err)
	}

	for _, did := range dids {
		saved, err := s.backfillRepo(ctx, did, job.Collection)
		if err != nil {
			s.logger.Warn("backfill repo skipped", "job", job.ID, "did", did, "error", err)
		}
		job.ReposDone++
		job.RecordsSaved += saved
		if err := st.UpdateBackfillJob(ctx, job); err != nil {
			s.logger.Error("backfill update failed", "job", job.ID, "error", err)
		}
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}
	}

	job.Status = store.BackfillCompleted
	if err := st.UpdateBackfillJob(ctx, job); err != nil {
		s.logger.Error("backfill update failed", "job", job.ID, "error", err)
		return
	}
	s.logger.Info("backfill completed",
		"job", job.ID, "collection", job.Collection,
		"repos", job.ReposDone, "records", job.RecordsSaved)
}

// backfillRepo copies one repo's records for a collection. Records that
// fail validation against the local lexicon are skipped.
func (s *Server) backfillRepo(ctx context.Context, did, collection string) (int, error) {
	pds, err := s.resolver.ResolvePDS(ctx, did)
	if err != nil {
		return 0, err
	}

	saved := 0
	cursor := ""
	for {
		page, err := s.resolver.ListRepoRecords(ctx, pds, did, collection, cursor, 100)
		if err != nil {
			return saved, err
		}
		for _, rec := range page.Records {
			_, err := s.engine.SaveRecord(ctx, engine.RecordSave{
				DID:        did,
				Collection: collection,
				Rkey:       rec.Rkey,
				KeyType:    "any",
				Value:      rec.Value,
			})
			if err != nil {
				s.logger.Debug("backfill record skipped", "uri", rec.URI, "error", err)
				continue
			}
			saved++
		}
		if page.Cursor == "" || len(page.Records) == 0 {
			return saved, nil
		}
		cursor = page.Cursor
	}
}
