// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Checkpoint is a buffered transaction: an in-progress, named batch of
// mutations. It is created by Store.Checkpoint, which enforces that at
// most one Checkpoint is open per Store at a time.
//
// A Checkpoint must be finished on every code path, including error
// returns, by calling exactly one of Commit or Rollback; neither method
// panics if called on an already-finished Checkpoint, but leaving a
// Checkpoint neither committed nor rolled back holds its transaction (and
// the store's single-checkpoint lock) open indefinitely.
type Checkpoint struct {
	store *Store
	tx    *sql.Tx
	done  bool
}

// All returns a Collection over every object as seen through this
// checkpoint's pending writes.
func (cp *Checkpoint) All() Collection {
	return newCollection(cp.tx, Empty())
}

// Query returns a MutableCollection over the objects matching q, as seen
// through this checkpoint's pending writes. The returned collection
// additionally supports Delete and Set.
func (cp *Checkpoint) Query(q QueryNode) MutableCollection {
	return MutableCollection{Collection: newCollection(cp.tx, q), cp: cp}
}

// Add inserts a new object and returns its assigned id. obj must not
// already carry IdentityField.
func (cp *Checkpoint) Add(obj Object) (int64, error) {
	if cp.done {
		return 0, fmt.Errorf("%w: checkpoint is already committed or rolled back", ErrUsage)
	}
	if _, ok := obj[IdentityField]; ok {
		return 0, fmt.Errorf("%w: object passed to Add must not have %s set", ErrUsage, IdentityField)
	}

	data, err := obj.toJSON()
	if err != nil {
		return 0, err
	}

	res, err := cp.tx.Exec("INSERT INTO objects (properties) VALUES (?)", string(data))
	if err != nil {
		return 0, fmt.Errorf("%w: inserting object: %v", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: reading inserted object id: %v", ErrStorage, err)
	}

	if err := cp.appendChange(changeAdd, id, Object{}); err != nil {
		return 0, err
	}
	return id, nil
}

// appendChange records one reversible mutation in the change log. previous
// is the full property map before the change (empty for Add).
func (cp *Checkpoint) appendChange(action changeType, objectID int64, previous Object) error {
	data, err := previous.toJSON()
	if err != nil {
		return err
	}
	_, err = cp.tx.Exec(
		"INSERT INTO object_changes (timestamp, object_id, action, previous) VALUES (?, ?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339Nano), objectID, string(action), string(data),
	)
	if err != nil {
		return fmt.Errorf("%w: recording change entry: %v", ErrStorage, err)
	}
	return nil
}

// Commit appends a checkpoint row whose serial is the maximum change-entry
// serial seen so far (0 if this checkpoint made no changes) and commits the
// underlying transaction. Commit releases the store's single-checkpoint
// lock whether it succeeds or fails.
func (cp *Checkpoint) Commit(description string) error {
	if cp.done {
		return fmt.Errorf("%w: checkpoint is already committed or rolled back", ErrUsage)
	}
	defer cp.finish()

	var serial int64
	if err := cp.tx.QueryRow("SELECT COALESCE(MAX(serial), 0) FROM object_changes").Scan(&serial); err != nil {
		return fmt.Errorf("%w: reading max change serial: %v", ErrStorage, err)
	}

	_, err := cp.tx.Exec(
		"INSERT INTO checkpoints (timestamp, serial, description) VALUES (?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339Nano), serial, description,
	)
	if err != nil {
		return fmt.Errorf("%w: recording checkpoint: %v", ErrStorage, err)
	}
	if err := cp.tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing checkpoint: %v", ErrStorage, err)
	}

	cp.store.logger.Debug("qualia: committed checkpoint", zap.String("description", description), zap.Int64("serial", serial))
	return nil
}

// Rollback discards every mutation this checkpoint buffered and releases
// the store's single-checkpoint lock. It is a no-op if the checkpoint was
// already committed or rolled back.
func (cp *Checkpoint) Rollback() error {
	if cp.done {
		return nil
	}
	defer cp.finish()
	if err := cp.tx.Rollback(); err != nil {
		return fmt.Errorf("%w: rolling back checkpoint: %v", ErrStorage, err)
	}
	return nil
}

func (cp *Checkpoint) finish() {
	cp.done = true
	cp.store.checkpointMu.Unlock()
}
