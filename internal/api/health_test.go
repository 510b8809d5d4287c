package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dspu-systems/controllerd/internal/api"
	"github.com/dspu-systems/controllerd/internal/election"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHealthChecker implements api.HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(_ context.Context) error {
	return m.err
}

func TestHandleHealthz_NoDBHealthConfigured_ReturnsOK(t *testing.T) {
	rs := &fakeRoleSource{state: election.RoleState{NodeID: "n1", Role: election.RoleStandby}}
	srv := &api.Server{Roles: rs, NodeID: "n1"}
	router := api.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body api.HealthzResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.OK)
	assert.Equal(t, "STANDBY", body.Role)
}

func TestHandleHealthz_DBHealthy_ReturnsOK(t *testing.T) {
	rs := &fakeRoleSource{state: election.RoleState{
		NodeID: "n1", Role: election.RoleLeader, LeaderEpoch: 3, LeaderID: "n1", HasLeaderInfo: true,
	}}
	srv := &api.Server{Roles: rs, NodeID: "n1", DBHealth: &mockHealthChecker{err: nil}}
	router := api.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body api.HealthzResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.OK)
	assert.Equal(t, "LEADER", body.Role)
	assert.Equal(t, int64(3), body.LeaderEpoch)
	assert.Equal(t, "n1", body.LeaderID)
}

func TestHandleHealthz_DBUnreachable_Returns503(t *testing.T) {
	rs := &fakeRoleSource{state: election.RoleState{NodeID: "n1", Role: election.RoleStandby}}
	srv := &api.Server{Roles: rs, NodeID: "n1", DBHealth: &mockHealthChecker{err: errors.New("connection refused")}}
	router := api.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body api.HealthzResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.OK)
}

func TestHandleHealthz_ReturnsJSON(t *testing.T) {
	rs := &fakeRoleSource{state: election.RoleState{NodeID: "n1", Role: election.RoleStandby}}
	srv := &api.Server{Roles: rs, NodeID: "n1"}
	router := api.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
