package server

import (
	"encoding/json"
	"net/http"

	"github.com/atvault/lexhost/internal/xrpc"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError serializes any error in the XRPC wire shape. Unknown
// errors are mapped to InternalServerError with the detail withheld.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	xe := xrpc.MapError(err)
	if xe.Status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, xe.Status, xe)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return xrpc.NewError(xrpc.NameInvalidInput, "malformed JSON body: %v", err)
	}
	return nil
}
