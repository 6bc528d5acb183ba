/*
Package qualia is an embedded document store for schemaless objects.

Objects are property maps (string to number-or-string) persisted in a single
SQLite file. Every mutation happens inside a Checkpoint, a buffered
transaction that groups an arbitrary number of adds, deletes and updates into
one named, atomically-committed unit. Every committed checkpoint can be
undone, in order, through a linear undo stack; there is no redo.

Objects are found with a small composable query language: equality on typed
scalars, identity lookup, and a wildcard/word "like" matcher, combined with
conjunction. A query compiles to a parameterized SQL where-clause and is
exposed to callers as a Collection, a lazy, re-usable handle that
materialises results on demand.

Example:

	store, err := qualia.Open("objects.db")
	if err != nil {
		return err
	}
	defer store.Close()

	cp, err := store.Checkpoint()
	if err != nil {
		return err
	}
	id, err := cp.Add(qualia.NewObject(
		"name", "alice",
		"age", 30,
	))
	if err != nil {
		return err
	}
	if err := cp.Commit("add alice"); err != nil {
		return err
	}

	alice, err := store.Query(qualia.Q().ID(id).Build()).One()
*/
package qualia
