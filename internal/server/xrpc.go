package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleQuery serves GET /xrpc/{method}. Query string parameters become
// the method's raw parameters, coerced against the lexicon downstream.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	params := make(map[string]string)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}

	out, err := s.dispatcher.Query(r.Context(), method, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProcedure serves POST /xrpc/{method} with a JSON object body.
func (s *Server) handleProcedure(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	input := map[string]any{}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &input); err != nil {
			s.writeError(w, err)
			return
		}
	}

	out, err := s.dispatcher.Procedure(r.Context(), method, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if out == nil {
		out = map[string]any{}
	}
	writeJSON(w, http.StatusOK, out)
}
