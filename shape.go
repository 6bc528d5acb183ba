// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

// This file declares the §6 object-shape contract: the interfaces an
// external, generated type T implements so Collection can convert query
// results into and out of it. The code generator that produces these
// conformances from record declarations (the qualia_derive equivalent) is
// out of scope per spec.md §1 and §6; only the contract it targets lives
// here.

// Shape is implemented by a user-defined record type that can be built
// from an Object. FromObject must be a total conversion: any field that
// cannot be populated from obj is reported as a *ConversionError, never a
// panic.
type Shape interface {
	FromObject(obj Object) error
}

// ToObjectShape is implemented by a Shape that can also convert itself back
// into an Object, e.g. for re-adding or re-querying.
type ToObjectShape interface {
	Shape
	ToObject() Object
}

// IdentifiedShape is implemented by a Shape whose underlying type carries
// an object_id property; SetID lets a caller give the shape the identity the
// store assigned or returned. Nothing in this package calls SetID: IterAs
// and OneAs pass the id to FromObject as the IdentityField property.
type IdentifiedShape interface {
	Shape
	SetID(id int64)
}

// FixedQueryShape is implemented by a Shape type whose zero value can
// report every "fixed" equality constraint declared on it (e.g. a
// discriminator field distinguishing one record type's rows from
// another's in a shared collection). Q returns a QueryBuilder preloaded
// with those constraints.
type FixedQueryShape interface {
	Shape
	Q() QueryBuilder
}

// StoreShape is the store-aware variant of Shape: it may issue sub-queries
// against store to dereference identifier-valued fields (object_id-typed
// properties referencing another object), stopping after one hop per §9's
// cyclic-reference guidance.
type StoreShape interface {
	FromStoreObject(store *Store, obj Object) error
}
