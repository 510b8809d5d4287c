package api

import "net/http"

// RoleResponse is the body returned by GET /role (GET /healthz carries the
// same role fields in HealthzResponse). leader_epoch/leader_id read as the zero value
// (0 / "") until the election loop has observed its first leader.
type RoleResponse struct {
	NodeID      string `json:"node_id"`
	Role        string `json:"role"`
	LeaderEpoch int64  `json:"leader_epoch"`
	LeaderID    string `json:"leader_id"`
}

// HandleRole reports this process's current role and the epoch/leader_id it
// last observed. Never gated — introspection is available from STANDBY too.
func (s *Server) HandleRole(w http.ResponseWriter, _ *http.Request) {
	state := s.Roles.RoleState()

	writeJSON(w, http.StatusOK, RoleResponse{
		NodeID:      s.NodeID,
		Role:        string(state.Role),
		LeaderEpoch: state.LeaderEpoch,
		LeaderID:    state.LeaderID,
	})
}
