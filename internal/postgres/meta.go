package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dspu-systems/controllerd/internal/election"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// upsertMetaSQL writes a single dspu_meta row, overwriting any existing
// value. BumpEpoch uses it for all three rows (leader_epoch, leader_id,
// updated_ms), so a missing row is inserted rather than skipped.
const upsertMetaSQL = `
INSERT INTO dspu_meta (k, v) VALUES ($1, $2)
ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`

// MetaStore is the Postgres-backed implementation of election.Locker and
// election.RoleReader. It holds the shared pool used for best-effort reads
// and non-blocking lock attempts; successful acquisitions hand off a
// dedicated *LeaderSession pinned to its own connection for the term.
type MetaStore struct {
	pool   *pgxpool.Pool
	lockID int64
}

// NewMetaStore creates a MetaStore that arbitrates LEADER_LOCK using lockID
// (the configured LEADER_LOCK_KEY) over pool.
func NewMetaStore(pool *pgxpool.Pool, lockID int64) *MetaStore {
	return &MetaStore{pool: pool, lockID: lockID}
}

// TryAcquireLeaderLock attempts a non-blocking, session-scoped acquisition
// of LEADER_LOCK on a connection pulled out of the pool and held for the
// rest of the term. pg_try_advisory_lock is session-scoped (unlike
// pg_advisory_xact_lock), so the lock survives exactly as long as this one
// physical connection does — and a process crash releases it, since
// Postgres releases session locks the moment the backend's socket closes.
func (m *MetaStore) TryAcquireLeaderLock(ctx context.Context) (election.Session, bool, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", m.lockID).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	return &LeaderSession{conn: conn, lockID: m.lockID}, true, nil
}

// ReadRole performs a best-effort, unlocked read of the durably published
// leader_epoch and leader_id rows. ok is false when either row is missing
// (e.g. schema freshly initialised, no leader has ever bumped the epoch, so
// leader_id does not exist yet).
func (m *MetaStore) ReadRole(ctx context.Context) (epoch int64, leaderID string, ok bool, err error) {
	rows, err := m.pool.Query(ctx, "SELECT k, v FROM dspu_meta WHERE k IN ('leader_epoch', 'leader_id')")
	if err != nil {
		return 0, "", false, fmt.Errorf("read role: %w", err)
	}
	defer rows.Close()

	found := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return 0, "", false, fmt.Errorf("scan role row: %w", err)
		}
		found[k] = v
	}
	if err := rows.Err(); err != nil {
		return 0, "", false, fmt.Errorf("read role: %w", err)
	}

	epochStr, hasEpoch := found["leader_epoch"]
	leaderID, hasLeaderID := found["leader_id"]
	if !hasEpoch || !hasLeaderID {
		return 0, "", false, nil
	}

	var e int64
	if _, err := fmt.Sscanf(epochStr, "%d", &e); err != nil {
		return 0, "", false, fmt.Errorf("parse leader_epoch %q: %w", epochStr, err)
	}
	return e, leaderID, true, nil
}

// LeaderSession is a MetaStore acquisition's handle on its held connection.
// It implements election.Session.
type LeaderSession struct {
	conn     *pgxpool.Conn
	lockID   int64
	released bool
}

// BumpEpoch runs the bump transaction: read the current leader_epoch,
// write back leader_epoch+1 alongside leader_id and updated_ms, and commit
// — all as one transaction, so a crash mid-bump never leaves leader_id
// pointing at an epoch nobody wrote. A missing leader_epoch row (schema
// freshly initialised before its seed row is visible to this transaction)
// is treated as epoch 0; the upsert below inserts the row either way.
func (s *LeaderSession) BumpEpoch(ctx context.Context, nodeID string) (int64, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin bump tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var current string
	err = tx.QueryRow(ctx, "SELECT v FROM dspu_meta WHERE k = 'leader_epoch' FOR UPDATE").Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("read leader_epoch: %w", err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		current = "0"
	}

	var epoch int64
	if _, err := fmt.Sscanf(current, "%d", &epoch); err != nil {
		return 0, fmt.Errorf("parse leader_epoch %q: %w", current, err)
	}
	epoch++

	now := time.Now().UnixMilli()
	for _, row := range [][2]string{
		{"leader_epoch", fmt.Sprintf("%d", epoch)},
		{"leader_id", nodeID},
		{"updated_ms", fmt.Sprintf("%d", now)},
	} {
		if _, err := tx.Exec(ctx, upsertMetaSQL, row[0], row[1]); err != nil {
			return 0, fmt.Errorf("write %s: %w", row[0], err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit bump tx: %w", err)
	}
	return epoch, nil
}

// Ping verifies the held connection is still alive, detecting LOCK_LOST
// without needing a write — Postgres drops the session lock the instant
// this connection dies, so a successful ping is proof the lock still
// stands.
func (s *LeaderSession) Ping(ctx context.Context) error {
	if s.released {
		return errors.New("leader session already released")
	}
	return s.conn.Ping(ctx)
}

// Release explicitly unlocks LEADER_LOCK and returns the connection to the
// pool. Safe to call even if the connection has already died; the unlock
// call is best-effort since a dead connection has already dropped the
// session lock on the server side.
func (s *LeaderSession) Release(ctx context.Context) error {
	s.released = true
	defer s.conn.Release()

	var unlocked bool
	if err := s.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", s.lockID).Scan(&unlocked); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
