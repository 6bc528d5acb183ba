// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pianohacker/qualia/internal/sqlitefn"
)

// driverName is the database/sql driver name modernc.org/sqlite registers
// itself under.
const driverName = "sqlite"

// Option configures a Store at Open time.
type Option func(*openOptions) error

type openOptions struct {
	logger      *zap.Logger
	busyTimeout time.Duration
}

func getDefaultOpenOptions() openOptions {
	return openOptions{
		logger:      zap.NewNop(),
		busyTimeout: 5 * time.Second,
	}
}

// WithLogger attaches a zap logger to a Store. Migration steps, checkpoint
// commits and undo operations are logged at Debug/Info. Without this
// option, a Store logs nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(o *openOptions) error {
		if logger == nil {
			return fmt.Errorf("%w: WithLogger requires a non-nil logger", ErrUsage)
		}
		o.logger = logger
		return nil
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database before
// giving up. Defaults to five seconds.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *openOptions) error {
		o.busyTimeout = d
		return nil
	}
}

// Store owns the single persistent connection to an embedded document
// store. A Store is not safe for concurrent use from multiple goroutines
// while a Checkpoint is open: at most one Checkpoint may exist per Store at
// a time, enforced by checkpointMu.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	checkpointMu sync.Mutex
}

// Open opens (creating if necessary) the document store at path. path may
// be ":memory:" for a private, in-memory database scoped to this *Store.
//
// Open performs, in order: registration of the QUALIA_REGEXP and
// QUALIA_JSON_MERGE SQL functions used by the query compiler and
// MutableCollection.Set respectively (driver-wide, before the connection is
// opened), WAL journal mode configuration (skipped for ":memory:"), the busy
// timeout, a JSON-support probe, and schema migration.
func Open(path string, opts ...Option) (*Store, error) {
	o := getDefaultOpenOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	if err := sqlitefn.Register(); err != nil {
		return nil, fmt.Errorf("%w: registering SQL functions: %v", ErrStorage, err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrStorage, path, err)
	}
	// A Store owns exactly one connection to the backing engine by design
	// (§5): reads share the writer's connection, and there is no
	// multi-writer concurrency to support.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: setting WAL mode: %v", ErrStorage, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: setting busy_timeout: %v", ErrStorage, err)
	}

	if err := probeJSONSupport(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path, logger: o.logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// probeJSONSupport verifies the backing engine's JSON extension is
// available by parsing "{}" (§4.D step 2).
func probeJSONSupport(db *sql.DB) error {
	var out string
	if err := db.QueryRow("SELECT json('{}')").Scan(&out); err != nil {
		return fmt.Errorf("%w: backing engine lacks JSON support: %v", ErrStorage, err)
	}
	return nil
}

// Close closes the store's connection. It does not commit or roll back any
// open checkpoint; callers must do that first.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path this store was opened with.
func (s *Store) Path() string {
	return s.path
}

// migrationStep is one numbered schema change. Steps are applied in order
// starting just after the database's current PRAGMA user_version; each step
// runs in the same transaction as the bump of the counter to its number, so
// a crash mid-upgrade resumes at the right step (§4.D step 3, §6). The steps
// are plain CREATE TABLE / ALTER TABLE statements, not idempotent ones:
// re-running a step against a schema that already has its change fails.
type migrationStep func(tx *sql.Tx) error

var migrationSteps = []migrationStep{
	// v1: the objects table.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			CREATE TABLE objects (
				object_id  INTEGER PRIMARY KEY AUTOINCREMENT,
				properties TEXT NOT NULL
			)
		`)
		return err
	},
	// v2: the change log and checkpoints table (description added in v3).
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			CREATE TABLE object_changes (
				serial    INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp TEXT NOT NULL,
				object_id INTEGER NOT NULL,
				action    TEXT NOT NULL,
				previous  TEXT NOT NULL
			)
		`)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			CREATE TABLE checkpoints (
				checkpoint_id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp     TEXT NOT NULL,
				serial        INTEGER NOT NULL
			)
		`)
		return err
	},
	// v3: checkpoints gain a human-readable description.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`ALTER TABLE checkpoints ADD COLUMN description TEXT NOT NULL DEFAULT ''`)
		return err
	},
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("%w: reading schema version: %v", ErrStorage, err)
	}

	for i := version; i < len(migrationSteps); i++ {
		step := migrationSteps[i]
		nextVersion := i + 1

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("%w: beginning migration %d: %v", ErrStorage, nextVersion, err)
		}
		if err := step(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: applying migration %d: %v", ErrStorage, nextVersion, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", nextVersion)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: bumping schema version to %d: %v", ErrStorage, nextVersion, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: committing migration %d: %v", ErrStorage, nextVersion, err)
		}
		s.logger.Info("qualia: applied schema migration", zap.Int("version", nextVersion))
	}
	return nil
}

// All returns a Collection over every object in the store.
func (s *Store) All() Collection {
	return newCollection(s.db, Empty())
}

// Query returns a Collection over the objects matching q.
func (s *Store) Query(q QueryNode) Collection {
	return newCollection(s.db, q)
}

// Checkpoint opens a new buffered transaction. Only one Checkpoint may be
// open per Store at a time; calling Checkpoint again before the first one
// is Committed or RolledBack returns ErrUsage.
func (s *Store) Checkpoint() (*Checkpoint, error) {
	if !s.checkpointMu.TryLock() {
		return nil, fmt.Errorf("%w: a checkpoint is already open on this store", ErrUsage)
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.checkpointMu.Unlock()
		return nil, fmt.Errorf("%w: opening checkpoint transaction: %v", ErrStorage, err)
	}
	return &Checkpoint{store: s, tx: tx}, nil
}

// LastCheckpointID returns the newest checkpoint id, or 0 if the store has
// never been committed to.
func (s *Store) LastCheckpointID() (int64, error) {
	return lastCheckpointID(s.db)
}

func lastCheckpointID(q queryer) (int64, error) {
	var id int64
	err := q.QueryRow("SELECT COALESCE(MAX(checkpoint_id), 0) FROM checkpoints").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: reading last checkpoint id: %v", ErrStorage, err)
	}
	return id, nil
}

// ModifiedSince reports whether the store's last checkpoint id differs
// from id, i.e. whether anything has committed since id was observed.
func (s *Store) ModifiedSince(id int64) (bool, error) {
	last, err := s.LastCheckpointID()
	if err != nil {
		return false, err
	}
	return last != id, nil
}

// CheckpointInfo is a read-only summary of one committed checkpoint.
type CheckpointInfo struct {
	CheckpointID int64
	Serial       int64
	Description  string
}

// RecentCheckpoints returns up to limit of the most recently committed
// checkpoints, newest first. This is a pure read added alongside the
// undo engine (the original Rust implementation's "commands.rs" history
// view was built on the same primitive); it does not mutate undo state.
func (s *Store) RecentCheckpoints(limit int) ([]CheckpointInfo, error) {
	rows, err := s.db.Query(
		"SELECT checkpoint_id, serial, description FROM checkpoints ORDER BY checkpoint_id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying checkpoints: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []CheckpointInfo
	for rows.Next() {
		var info CheckpointInfo
		if err := rows.Scan(&info.CheckpointID, &info.Serial, &info.Description); err != nil {
			return nil, fmt.Errorf("%w: scanning checkpoint: %v", ErrStorage, err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating checkpoints: %v", ErrStorage, err)
	}
	return out, nil
}

// Undo performs one step of linear undo: it reverses every change entry of
// the newest committed checkpoint, in reverse serial order, deletes that
// checkpoint's row and change entries, and returns its description. If
// there are no checkpoints to undo, it returns ("", false) and leaves the
// store untouched. Redo is not supported (§1 Non-goals).
func (s *Store) Undo() (string, bool, error) {
	if !s.checkpointMu.TryLock() {
		return "", false, fmt.Errorf("%w: cannot undo while a checkpoint is open", ErrUsage)
	}
	defer s.checkpointMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("%w: beginning undo transaction: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	type checkpointRow struct {
		id          int64
		serial      int64
		description string
	}
	rows, err := tx.Query("SELECT checkpoint_id, serial, description FROM checkpoints ORDER BY checkpoint_id DESC LIMIT 2")
	if err != nil {
		return "", false, fmt.Errorf("%w: reading newest checkpoints: %v", ErrStorage, err)
	}
	var recent []checkpointRow
	for rows.Next() {
		var r checkpointRow
		if err := rows.Scan(&r.id, &r.serial, &r.description); err != nil {
			rows.Close()
			return "", false, fmt.Errorf("%w: scanning checkpoint: %v", ErrStorage, err)
		}
		recent = append(recent, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", false, fmt.Errorf("%w: iterating checkpoints: %v", ErrStorage, err)
	}
	rows.Close()

	if len(recent) == 0 {
		return "", false, nil
	}
	cur := recent[0]
	var prevSerial int64
	if len(recent) == 2 {
		prevSerial = recent[1].serial
	}

	changeRows, err := tx.Query(
		"SELECT serial, object_id, action, previous FROM object_changes WHERE serial > ? ORDER BY serial DESC",
		prevSerial,
	)
	if err != nil {
		return "", false, fmt.Errorf("%w: reading change entries: %v", ErrStorage, err)
	}
	type changeEntry struct {
		serial   int64
		objectID int64
		action   string
		previous string
	}
	var entries []changeEntry
	for changeRows.Next() {
		var e changeEntry
		if err := changeRows.Scan(&e.serial, &e.objectID, &e.action, &e.previous); err != nil {
			changeRows.Close()
			return "", false, fmt.Errorf("%w: scanning change entry: %v", ErrStorage, err)
		}
		entries = append(entries, e)
	}
	if err := changeRows.Err(); err != nil {
		changeRows.Close()
		return "", false, fmt.Errorf("%w: iterating change entries: %v", ErrStorage, err)
	}
	changeRows.Close()

	for _, e := range entries {
		var (
			res sql.Result
			err error
		)
		switch changeType(e.action) {
		case changeAdd:
			res, err = tx.Exec("DELETE FROM objects WHERE object_id = ?", e.objectID)
		case changeDelete:
			res, err = tx.Exec("INSERT INTO objects (object_id, properties) VALUES (?, ?)", e.objectID, e.previous)
		case changeUpdate:
			res, err = tx.Exec("UPDATE objects SET properties = ? WHERE object_id = ?", e.previous, e.objectID)
		default:
			return "", false, fmt.Errorf("%w: unknown change action %q at serial %d", ErrStorage, e.action, e.serial)
		}
		if err != nil {
			return "", false, fmt.Errorf("%w: undoing change at serial %d: %v", ErrStorage, e.serial, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return "", false, fmt.Errorf("%w: counting rows undone at serial %d: %v", ErrStorage, e.serial, err)
		}
		if affected != 1 {
			panic(fmt.Sprintf("qualia: corrupt change log: undoing %s at serial %d affected %d rows, expected 1", e.action, e.serial, affected))
		}
	}

	if _, err := tx.Exec("DELETE FROM object_changes WHERE serial > ?", prevSerial); err != nil {
		return "", false, fmt.Errorf("%w: deleting undone change entries: %v", ErrStorage, err)
	}
	if _, err := tx.Exec("DELETE FROM checkpoints WHERE checkpoint_id = ?", cur.id); err != nil {
		return "", false, fmt.Errorf("%w: deleting undone checkpoint: %v", ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("%w: committing undo: %v", ErrStorage, err)
	}

	s.logger.Info("qualia: undid checkpoint", zap.Int64("checkpoint_id", cur.id), zap.String("description", cur.description))
	return cur.description, true, nil
}

// changeType is the kind of mutation recorded in one change entry (§3).
type changeType string

const (
	changeAdd    changeType = "Add"
	changeDelete changeType = "Delete"
	changeUpdate changeType = "Update"
)
