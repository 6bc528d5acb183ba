// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

// CachedMapping is a pre-materialised query result, mapped through a
// caller-supplied function, whose validity is tied to the last checkpoint
// id observed at construction or refresh time. Invalidation is coarse by
// design: any committed change anywhere on the store invalidates every
// CachedMapping, matching the simplicity goal of §4.I.
//
// CachedMap is a free function rather than a Store method because Go does
// not allow a method to introduce its own type parameters beyond its
// receiver's.
type CachedMapping[T any] struct {
	query      QueryNode
	mapFn      func(*Store, Object) (T, error)
	capturedID int64
	results    []T
}

// CachedMap runs q against store, maps every resulting Object through f
// (which receives a store handle so it may dereference related objects),
// and captures store's current last checkpoint id as the mapping's
// validity token.
func CachedMap[T any](store *Store, q QueryNode, f func(*Store, Object) (T, error)) (*CachedMapping[T], error) {
	cm := &CachedMapping[T]{query: q, mapFn: f}
	if err := cm.reload(store); err != nil {
		return nil, err
	}
	return cm, nil
}

func (cm *CachedMapping[T]) reload(store *Store) error {
	id, err := store.LastCheckpointID()
	if err != nil {
		return err
	}
	objs, err := store.Query(cm.query).Iter()
	if err != nil {
		return err
	}
	results := make([]T, 0, len(objs))
	for _, obj := range objs {
		t, err := cm.mapFn(store, obj)
		if err != nil {
			return err
		}
		results = append(results, t)
	}
	cm.capturedID = id
	cm.results = results
	return nil
}

// Iter returns the cached results, as of the last (re)load.
func (cm *CachedMapping[T]) Iter() []T {
	return cm.results
}

// Len returns the number of cached results.
func (cm *CachedMapping[T]) Len() int {
	return len(cm.results)
}

// Exists reports whether the cache holds at least one result.
func (cm *CachedMapping[T]) Exists() bool {
	return len(cm.results) > 0
}

// Valid reports whether store's last checkpoint id still matches the id
// captured when this mapping was last loaded or refreshed.
func (cm *CachedMapping[T]) Valid(store *Store) (bool, error) {
	last, err := store.LastCheckpointID()
	if err != nil {
		return false, err
	}
	return last == cm.capturedID, nil
}

// RefreshIfNeeded re-runs the query and updates the captured checkpoint id
// iff the mapping is currently invalid; it is a no-op otherwise.
func (cm *CachedMapping[T]) RefreshIfNeeded(store *Store) error {
	valid, err := cm.Valid(store)
	if err != nil {
		return err
	}
	if valid {
		return nil
	}
	return cm.reload(store)
}
