package server

import (
	"net/http"
	"strconv"

	"github.com/atvault/lexhost/internal/store"
	"github.com/atvault/lexhost/internal/xrpc"
)

type adminRecordView struct {
	URI        string         `json:"uri"`
	CID        string         `json:"cid"`
	DID        string         `json:"did"`
	Collection string         `json:"collection"`
	Rkey       string         `json:"rkey"`
	Value      map[string]any `json:"value"`
}

func adminRecordViewOf(rec *store.Record) adminRecordView {
	return adminRecordView{
		URI:        rec.URI,
		CID:        rec.CID,
		DID:        rec.DID,
		Collection: rec.Collection,
		Rkey:       rec.Rkey,
		Value:      rec.Value,
	}
}

// handleListRecords browses stored records with cursor pagination.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := store.RecordQuery{
		Collection: r.URL.Query().Get("collection"),
		DID:        r.URL.Query().Get("did"),
		Cursor:     r.URL.Query().Get("cursor"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, xrpc.NewError(xrpc.NameInvalidParams, "limit must be an integer"))
			return
		}
		q.Limit = n
	}
	if q.Collection == "" {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidParams, "missing collection"))
		return
	}

	page, err := s.engine.QueryRecords(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]adminRecordView, 0, len(page.Records))
	for i := range page.Records {
		views = append(views, adminRecordViewOf(&page.Records[i]))
	}
	out := map[string]any{"records": views}
	if page.NextCursor != "" {
		out["cursor"] = page.NextCursor
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidParams, "missing uri"))
		return
	}
	rec, err := s.engine.GetRecord(r.Context(), uri)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adminRecordViewOf(rec))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidParams, "missing uri"))
		return
	}
	if err := s.engine.DeleteRecord(r.Context(), uri); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "uri": uri})
}

// handleDeleteCollection removes every record in one collection.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	if collection == "" {
		s.writeError(w, xrpc.NewError(xrpc.NameInvalidParams, "missing collection"))
		return
	}
	n, err := s.engine.DeleteCollection(r.Context(), collection)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("collection cleared", "collection", collection, "deleted", n)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n, "collection": collection})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
