package checkpoint

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/shell"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the checkpoint store: SQLite persistence plus the snapshot and
// restore logic around it. Access is serialized by a store mutex on top of
// SQLite's own transactional guarantees.
type Store struct {
	db    *sqlx.DB
	state Collector
	exec  shell.Runner
	mu    sync.Mutex

	cmdTimeout     time.Duration
	rulesetTimeout time.Duration
}

// NewStore opens (creating if needed) the checkpoint database at dbPath and
// runs schema migrations. state reads live system state for snapshots; exec
// executes restoration commands.
func NewStore(dbPath string, state Collector, exec shell.Runner) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("failed to open checkpoint database %s", dbPath), err)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, errors.NewStorageError("failed to set migration dialect", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, errors.NewStorageError("failed to run checkpoint schema migrations", err)
	}

	return &Store{
		db:             db,
		state:          state,
		exec:           exec,
		cmdTimeout:     30 * time.Second,
		rulesetTimeout: 5 * time.Second,
	}, nil
}

// SetTimeouts overrides the per-command and ruleset-load timeouts used by
// restore.
func (s *Store) SetTimeouts(command, ruleset time.Duration) {
	if command > 0 {
		s.cmdTimeout = command
	}
	if ruleset > 0 {
		s.rulesetTimeout = ruleset
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot reads the current live state of every subsystem in scope and
// persists it under a fresh id. Any unreadable subsystem fails the whole
// snapshot with SNAPSHOT_FAILED before anything is written: a partial
// snapshot cannot support a full rollback.
func (s *Store) Snapshot(ctx context.Context, scope Scope, label string) (*Checkpoint, error) {
	snapshots, err := s.collect(ctx, scope)
	if err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Label:     label,
		Interface: scope.Interface,
		Snapshots: *snapshots,
	}

	blob, err := json.Marshal(cp.Snapshots)
	if err != nil {
		return nil, errors.NewStorageError("failed to serialize snapshot", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, created_at, label, iface, snapshots) VALUES ($1, $2, $3, $4, $5)`,
		cp.ID, cp.CreatedAt, cp.Label, cp.Interface, string(blob))
	if err != nil {
		return nil, errors.NewStorageError("failed to persist checkpoint", err)
	}

	log.Debugf("checkpoint %s created for %s (label %q)", cp.ID, cp.Interface, cp.Label)
	return cp, nil
}

func (s *Store) collect(ctx context.Context, scope Scope) (*Snapshots, error) {
	snap := &Snapshots{}

	// Ordered like the forward apply so failures read naturally in logs.
	for _, cat := range scope.Subsystems {
		switch cat {
		case catalog.CategoryKernelParameter:
			if len(scope.SysctlKeys) == 0 {
				continue
			}
			values, err := s.state.SysctlValues(ctx, scope.SysctlKeys)
			if err != nil {
				return nil, err
			}
			snap.Sysctl = values
		case catalog.CategoryQueueing:
			state, err := s.state.QdiscState(ctx, scope.Interface)
			if err != nil {
				return nil, err
			}
			snap.Queueing = state
		case catalog.CategoryFirewall:
			state, err := s.state.RulesetState(ctx)
			if err != nil {
				return nil, err
			}
			snap.Firewall = state
		case catalog.CategoryNIC:
			flags, err := s.state.OffloadFlags(ctx, scope.Interface)
			if err != nil {
				return nil, err
			}
			snap.Offloads = flags
		case catalog.CategoryLink:
			mtu, err := s.state.LinkMTU(scope.Interface)
			if err != nil {
				return nil, err
			}
			snap.MTU = &mtu
		default:
			return nil, errors.Newf(errors.ErrCodeSnapshotFailed, "unknown subsystem %q in snapshot scope", cat)
		}
	}
	return snap, nil
}

// Get returns the checkpoint with the given id, or NOT_FOUND.
func (s *Store) Get(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, id)
}

// checkpointRow is the raw table representation; snapshots are a JSON blob.
type checkpointRow struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	Label     string    `db:"label"`
	Interface string    `db:"iface"`
	Snapshots string    `db:"snapshots"`
}

func (r *checkpointRow) decode() (*Checkpoint, error) {
	cp := &Checkpoint{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Label:     r.Label,
		Interface: r.Interface,
	}
	if err := json.Unmarshal([]byte(r.Snapshots), &cp.Snapshots); err != nil {
		return nil, errors.NewStorageError("failed to decode checkpoint snapshots", err)
	}
	return cp, nil
}

func (s *Store) get(ctx context.Context, id string) (*Checkpoint, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, created_at, label, iface, snapshots FROM checkpoints WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodeNotFound, "checkpoint %s not found", id)
	}
	if err != nil {
		return nil, errors.NewStorageError("failed to read checkpoint", err)
	}
	return row.decode()
}

// List returns all checkpoints, newest first, snapshots included.
func (s *Store) List(ctx context.Context) ([]*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []checkpointRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, created_at, label, iface, snapshots FROM checkpoints ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.NewStorageError("failed to list checkpoints", err)
	}

	out := make([]*Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Delete removes the checkpoint with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = $1`, id)
	if err != nil {
		return errors.NewStorageError("failed to delete checkpoint", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeNotFound, "checkpoint %s not found", id)
	}
	return nil
}

// Prune deletes all but the newest keep checkpoints and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		return 0, errors.New(errors.ErrCodeStorage, "prune keep count must be >= 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE id NOT IN (
			SELECT id FROM checkpoints ORDER BY created_at DESC, id LIMIT $1
		)`, keep)
	if err != nil {
		return 0, errors.NewStorageError("failed to prune checkpoints", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of stored checkpoints.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM checkpoints`); err != nil {
		return 0, errors.NewStorageError("failed to count checkpoints", err)
	}
	return n, nil
}
