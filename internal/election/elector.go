// Package election implements the leader-election and fencing subsystem:
// a long-lived background loop that holds (or attempts to hold) a
// session-scoped exclusive lock in the backing store and, on acquisition,
// bumps and publishes a strictly-increasing epoch.
//
// The loop never touches the backing store directly — it depends on the
// Locker, Session and RoleReader ports below, which infrastructure code
// (internal/postgres) implements. This keeps the state machine testable
// with fakes, the way the teacher's mockLock-based tests work.
package election

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dspu-systems/controllerd/internal/errs"
)

// Role is one of the two observable roles a peer can report.
type Role string

const (
	RoleStandby Role = "STANDBY"
	RoleLeader  Role = "LEADER"
)

// RoleState is the in-process snapshot published by the Elector and read by
// the HTTP surface. It is immutable; a new value replaces the old one
// atomically. HasLeaderInfo is false for the pre-tick INIT snapshot, for a
// STANDBY whose best-effort read failed or found no published leader yet,
// for the snapshot published after a lost session, and for the final
// snapshot after shutdown — it distinguishes "no epoch/leader_id known" from
// "epoch is legitimately 0".
type RoleState struct {
	NodeID        string
	Role          Role
	LeaderEpoch   int64
	LeaderID      string
	HasLeaderInfo bool
}

// Session represents this process's exclusive hold on LEADER_LOCK for the
// duration of a leader term. BumpEpoch performs the bump transaction
// (increment leader_epoch, set leader_id and updated_ms, commit, all in one
// transaction). Ping detects session death (LOCK_LOST) without relying on
// BumpEpoch traffic, since a leader republishes without further writes on
// most ticks. Release unlocks LEADER_LOCK and returns the session.
type Session interface {
	BumpEpoch(ctx context.Context, nodeID string) (epoch int64, err error)
	Ping(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker attempts non-blocking acquisition of LEADER_LOCK. A successful
// acquisition yields a Session that must be held for the entire term.
type Locker interface {
	TryAcquireLeaderLock(ctx context.Context) (session Session, acquired bool, err error)
}

// RoleReader performs a best-effort read of the durably published epoch and
// leader_id, used by STANDBY peers to populate their RoleState.
type RoleReader interface {
	ReadRole(ctx context.Context) (epoch int64, leaderID string, ok bool, err error)
}

// Elector runs the election loop described in spec §4.2. Construct one with
// New, call Start once, and Stop to shut down; RoleState reads the current
// snapshot and never blocks.
type Elector struct {
	nodeID       string
	pollInterval time.Duration
	locker       Locker
	reader       RoleReader

	state atomic.Pointer[RoleState]

	mu      sync.Mutex
	session Session

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Elector in the INIT state (RoleState{Role: STANDBY,
// HasLeaderInfo: false}) that becomes a running election loop once Start is
// called.
func New(nodeID string, pollInterval time.Duration, locker Locker, reader RoleReader) *Elector {
	e := &Elector{
		nodeID:       nodeID,
		pollInterval: pollInterval,
		locker:       locker,
		reader:       reader,
	}
	e.state.Store(&RoleState{NodeID: nodeID, Role: RoleStandby})
	return e
}

// RoleState returns the most recently published snapshot. Safe to call
// concurrently from any number of HTTP handlers; never blocks on the
// backing store.
func (e *Elector) RoleState() RoleState {
	return *e.state.Load()
}

// Start begins the election loop in a background goroutine. It ticks
// immediately, then at the configured poll interval.
func (e *Elector) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)

		e.tick(ctx)

		ticker := time.NewTicker(e.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.shutdown()
				return
			case <-ticker.C:
				e.tick(ctx)
			}
		}
	}()
}

// Stop cancels the election loop and waits for it to finish. If this
// process holds LEADER_LOCK, the session is released before Stop returns.
func (e *Elector) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}

// tick implements one iteration of the algorithm in spec §4.2.
func (e *Elector) tick(ctx context.Context) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()

	if session != nil {
		e.tickAsLeader(ctx, session)
		return
	}

	e.tickAsStandby(ctx)
}

// tickAsLeader handles step 4 (republish) and the "session error" row of
// the state-machine table: a failed liveness ping means LOCK_LOST, so the
// loop drops to STANDBY before attempting a fresh acquisition in the same
// tick — it must never republish LEADER without winning the lock again.
func (e *Elector) tickAsLeader(ctx context.Context, session Session) {
	if err := session.Ping(ctx); err != nil {
		slog.Warn("leader session lost, dropping to standby", "error", fmt.Errorf("%w: %v", errs.ErrLockLost, err))
		e.clearSession()
		e.publish(&RoleState{NodeID: e.nodeID, Role: RoleStandby})
		e.tickAsStandby(ctx)
		return
	}

	// No DB traffic required: republish the remembered snapshot unchanged.
	e.publish(e.state.Load())
}

// tickAsStandby handles steps 1–3: attempt non-blocking acquisition; on
// success, bump the epoch and publish LEADER; on failure (lock held
// elsewhere, or any transient error), publish STANDBY with a best-effort
// read of the current epoch/leader_id.
func (e *Elector) tickAsStandby(ctx context.Context) {
	newSession, acquired, err := e.locker.TryAcquireLeaderLock(ctx)
	if err != nil {
		slog.Warn("advisory lock attempt failed", "error", fmt.Errorf("%w: %v", errs.ErrBackingStoreTransient, err))
		e.publishStandbyBestEffort(ctx)
		return
	}
	if !acquired {
		e.publishStandbyBestEffort(ctx)
		return
	}

	epoch, err := newSession.BumpEpoch(ctx, e.nodeID)
	if err != nil {
		// The system MUST NOT publish LEADER with an unwritten epoch: release
		// and remain STANDBY until the next successful acquisition.
		slog.Error("bump transaction failed, releasing leader lock", "error", err)
		_ = newSession.Release(ctx)
		e.publishStandbyBestEffort(ctx)
		return
	}

	e.mu.Lock()
	e.session = newSession
	e.mu.Unlock()

	slog.Info("acquired leadership", "node_id", e.nodeID, "leader_epoch", epoch)
	e.publish(&RoleState{NodeID: e.nodeID, Role: RoleLeader, LeaderEpoch: epoch, LeaderID: e.nodeID, HasLeaderInfo: true})
}

// publishStandbyBestEffort reads the durable epoch/leader_id for
// introspection only; a failed read still publishes STANDBY (never LEADER),
// just with epoch 0 / leader_id absent, per spec §4.2 step 3.
func (e *Elector) publishStandbyBestEffort(ctx context.Context) {
	epoch, leaderID, ok, err := e.reader.ReadRole(ctx)
	if err != nil || !ok {
		e.publish(&RoleState{NodeID: e.nodeID, Role: RoleStandby})
		return
	}
	e.publish(&RoleState{NodeID: e.nodeID, Role: RoleStandby, LeaderEpoch: epoch, LeaderID: leaderID, HasLeaderInfo: true})
}

func (e *Elector) publish(rs *RoleState) {
	e.state.Store(rs)
}

func (e *Elector) clearSession() {
	e.mu.Lock()
	e.session = nil
	e.mu.Unlock()
}

// shutdown releases LEADER_LOCK if held and publishes a final STANDBY
// snapshot. Called once, from the loop goroutine, when its context is
// cancelled.
func (e *Elector) shutdown() {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.mu.Unlock()

	if session != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.Release(releaseCtx); err != nil {
			slog.Warn("failed to release leader session on shutdown", "error", err)
		}
	}

	e.publish(&RoleState{NodeID: e.nodeID, Role: RoleStandby})
}
