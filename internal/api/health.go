package api

import (
	"context"
	"net/http"
	"time"
)

// healthzTimeout bounds how long GET /healthz waits on the backing-store
// ping before treating it as unreachable.
const healthzTimeout = 2 * time.Second

// HealthChecker verifies that a dependency is reachable and healthy.
// Implementations should be lightweight (e.g. Ping, SELECT 1).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthzResponse is the body returned by GET /healthz.
type HealthzResponse struct {
	OK          bool   `json:"ok"`
	Role        string `json:"role"`
	LeaderEpoch int64  `json:"leader_epoch"`
	LeaderID    string `json:"leader_id"`
}

// HandleHealthz is a liveness probe: it never gates on role. Role, epoch
// and leader_id reflect the last published RoleState snapshot regardless
// of backing-store reachability. ok reflects whether the backing store
// responded to a ping within healthzTimeout, when a DBHealth checker is
// configured; with none configured, ok is unconditionally true (process
// liveness only).
func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.Roles.RoleState()

	ok := true
	if s.DBHealth != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthzTimeout)
		defer cancel()
		ok = s.DBHealth.HealthCheck(ctx) == nil
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthzResponse{
		OK:          ok,
		Role:        string(state.Role),
		LeaderEpoch: state.LeaderEpoch,
		LeaderID:    state.LeaderID,
	})
}
