package api

import (
	"encoding/json"
	"net/http"
)

// HandleLeases is the sole mutating endpoint in this revision. Per the
// source this is distilled from, it is a stub: the only contract it
// upholds is the Leader Gate in front of it (enforced by middleware, not
// here) and that the body is well-formed JSON. It does not validate
// {agent, capabilities} — whether that validation belongs here is an open
// question in the source material, and this implementation deliberately
// does not guess at a schema beyond "valid JSON".
func (s *Server) HandleLeases(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength != 0 {
		var body any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			errorJSON(w, "request body must be valid JSON", "INVALID_ARGUMENT", http.StatusBadRequest)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
