// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

import (
	"database/sql"
	"fmt"
)

// queryer is satisfied by both *sql.DB and *sql.Tx, letting a Collection be
// bound either to a Store's connection (read path) or to an open
// Checkpoint's transaction (reads that must see pending writes).
type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// Collection is an immutable, lazy handle over (connection, query): every
// method recompiles and re-executes the query, so a Collection is cheap to
// build and always reflects the current state of whatever it is bound to.
type Collection struct {
	q    queryer
	node QueryNode
}

func newCollection(q queryer, node QueryNode) Collection {
	return Collection{q: q, node: node}
}

// Len returns the number of objects the collection currently matches.
func (c Collection) Len() (int, error) {
	comp, err := c.node.compile()
	if err != nil {
		return 0, err
	}
	var n int
	err = c.q.QueryRow("SELECT COUNT(*) FROM objects WHERE "+comp.where, comp.args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: counting objects: %v", ErrStorage, err)
	}
	return n, nil
}

// Exists reports whether the collection matches at least one object.
func (c Collection) Exists() (bool, error) {
	n, err := c.Len()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Iter fully materialises every matching object, injecting object_id into
// each. Materialising up-front is deliberate: errors surface synchronously
// rather than mid-iteration. Callers needing to page through an unbounded
// result set must issue multiple, narrower queries (§1 Non-goals).
func (c Collection) Iter() ([]Object, error) {
	comp, err := c.node.compile()
	if err != nil {
		return nil, err
	}
	rows, err := c.q.Query("SELECT object_id, properties FROM objects WHERE "+comp.where, comp.args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying objects: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("%w: scanning object: %v", ErrStorage, err)
		}
		obj, err := objectFromJSON(data, &id)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating objects: %v", ErrStorage, err)
	}
	return out, nil
}

// One returns the unique matching object. It returns a *NotOneError
// (wrapping ErrNotOne) if the collection matches zero or more than one
// object.
func (c Collection) One() (Object, error) {
	objs, err := c.Iter()
	if err != nil {
		return nil, err
	}
	if len(objs) != 1 {
		return nil, &NotOneError{Found: len(objs)}
	}
	return objs[0], nil
}

// IterAs materialises every matching object and converts each into T via
// newT/Shape.FromObject, the store-free variant of the §6 shape contract.
func IterAs[T Shape](c Collection, newT func() T) ([]T, error) {
	objs, err := c.Iter()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(objs))
	for _, obj := range objs {
		t := newT()
		if err := t.FromObject(obj); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// OneAs converts the unique matching object into T via Shape.FromObject.
func OneAs[T Shape](c Collection, newT func() T) (T, error) {
	var zero T
	obj, err := c.One()
	if err != nil {
		return zero, err
	}
	t := newT()
	if err := t.FromObject(obj); err != nil {
		return zero, err
	}
	return t, nil
}

// IterConverted is IterAs's store-aware sibling: it uses StoreShape, which
// may issue sub-queries against store to dereference identifier-valued
// fields (§6, §9).
func IterConverted[T StoreShape](c Collection, store *Store, newT func() T) ([]T, error) {
	objs, err := c.Iter()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(objs))
	for _, obj := range objs {
		t := newT()
		if err := t.FromStoreObject(store, obj); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// OneConverted is OneAs's store-aware sibling.
func OneConverted[T StoreShape](c Collection, store *Store, newT func() T) (T, error) {
	var zero T
	obj, err := c.One()
	if err != nil {
		return zero, err
	}
	t := newT()
	if err := t.FromStoreObject(store, obj); err != nil {
		return zero, err
	}
	return t, nil
}

// MutableCollection is a Collection bound to an open Checkpoint, adding
// Delete and Set. All read methods delegate to the embedded Collection.
type MutableCollection struct {
	Collection
	cp *Checkpoint
}

// Delete removes every matching object and returns how many were removed.
// Each removal is recorded in the change log with the object's current
// properties as its "previous" snapshot before a single bulk DELETE
// executes.
func (mc MutableCollection) Delete() (int, error) {
	objs, err := mc.Iter()
	if err != nil {
		return 0, err
	}
	if len(objs) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(objs))
	for _, obj := range objs {
		id, _ := obj.ID()
		if err := mc.cp.appendChange(changeDelete, id, obj.withoutIdentity()); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}

	placeholders, args := idPlaceholders(ids)
	_, err = mc.cp.tx.Exec("DELETE FROM objects WHERE object_id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting objects: %v", ErrStorage, err)
	}
	return len(ids), nil
}

// Set merges patch into every matching object's properties and returns how
// many objects were updated. It is a no-op if patch is empty. Each update
// is recorded in the change log with the object's current properties as
// its "previous" snapshot before a single bulk UPDATE sets every top-level
// key of patch on every matching row via the QUALIA_JSON_MERGE SQL
// function; nested values are replaced, not merged recursively. Per §9,
// a key present in patch always ends up set, even if its PropValue came
// from a JSON null upstream: there is no null PropValue to delete with.
func (mc MutableCollection) Set(patch Object) (int, error) {
	if len(patch) == 0 {
		return 0, nil
	}

	objs, err := mc.Iter()
	if err != nil {
		return 0, err
	}
	if len(objs) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(objs))
	for _, obj := range objs {
		id, _ := obj.ID()
		if err := mc.cp.appendChange(changeUpdate, id, obj.withoutIdentity()); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}

	patchData, err := patch.toJSON()
	if err != nil {
		return 0, err
	}

	placeholders, args := idPlaceholders(ids)
	query := fmt.Sprintf(
		"UPDATE objects SET properties = QUALIA_JSON_MERGE(properties, ?) WHERE object_id IN (%s)",
		placeholders,
	)
	_, err = mc.cp.tx.Exec(query, append([]any{string(patchData)}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("%w: updating objects: %v", ErrStorage, err)
	}
	return len(ids), nil
}

func idPlaceholders(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	placeholders := ""
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}
