package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dspu-systems/controllerd/internal/election"
)

// NotLeaderResponse is the structured body returned by RequireLeader when
// this process is not LEADER, per spec §6.
type NotLeaderResponse struct {
	Error       string  `json:"error"`
	LeaderID    *string `json:"leader_id"`
	LeaderURL   *string `json:"leader_url"`
	LeaderEpoch *int64  `json:"leader_epoch"`
	NodeID      string  `json:"node_id"`
	Role        string  `json:"role"`
}

// RequireLeader is middleware that rejects mutating requests unless this
// process's RoleState currently reports LEADER. It is the HTTP-visible
// enforcement of the election loop's single-leader safety invariant — the
// only thing that makes STANDBY usefully distinct from LEADER to clients.
func (s *Server) RequireLeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := s.Roles.RoleState()
		if state.Role == election.RoleLeader {
			next.ServeHTTP(w, r)
			return
		}

		resp := NotLeaderResponse{
			Error:  "NOT_LEADER",
			NodeID: s.NodeID,
			Role:   string(election.RoleStandby),
		}
		if s.LeaderURL != "" {
			leaderURL := s.LeaderURL
			resp.LeaderURL = &leaderURL
		}
		if state.HasLeaderInfo {
			leaderID := state.LeaderID
			leaderEpoch := state.LeaderEpoch
			resp.LeaderID = &leaderID
			resp.LeaderEpoch = &leaderEpoch
			w.Header().Set("x-dspu-leader-epoch", strconv.FormatInt(state.LeaderEpoch, 10))
			w.Header().Set("x-dspu-leader-id", state.LeaderID)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to encode NOT_LEADER response", "error", err)
		}
	})
}
