// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pianohacker/qualia"
)

// person is a hand-written stand-in for what the out-of-scope derive macro
// (§6) would generate for a struct like:
//
//	type Person struct {
//	    ID   int64  `qualia:"object_id"`
//	    Name string
//	    Boss int64 // references another object's object_id
//	}
type person struct {
	id   int64
	name string
	boss int64
}

func (p *person) FromObject(obj qualia.Object) error {
	name, ok := obj["name"].AsString()
	if !ok {
		return &qualia.ConversionError{Kind: qualia.FieldMissing, Field: "name"}
	}
	p.name = name
	if id, ok := obj.ID(); ok {
		p.id = id
	}
	if boss, ok := obj["boss"]; ok {
		n, ok := boss.AsNumber()
		if !ok {
			return &qualia.ConversionError{Kind: qualia.FieldWrongType, Field: "boss", Expected: "Number"}
		}
		p.boss = n
	}
	return nil
}

func (p *person) SetID(id int64) { p.id = id }

func (p *person) ToObject() qualia.Object {
	return qualia.NewObject("name", p.name, "boss", p.boss)
}

// bossName is a StoreShape: it dereferences the referenced boss object by
// id, one hop, per §9's cyclic-reference guidance.
type bossName struct {
	name   string
	bossOf string
}

func (b *bossName) FromStoreObject(store *qualia.Store, obj qualia.Object) error {
	name, ok := obj["name"].AsString()
	if !ok {
		return &qualia.ConversionError{Kind: qualia.FieldMissing, Field: "name"}
	}
	b.name = name

	bossID, ok := obj["boss"]
	if !ok {
		return nil
	}
	id, ok := bossID.AsNumber()
	if !ok || id == 0 {
		return nil
	}
	boss, err := store.Query(qualia.Q().ID(id).Build()).One()
	if err != nil {
		return err
	}
	bossOf, _ := boss["name"].AsString()
	b.bossOf = bossOf
	return nil
}

func TestIterAs_ConvertsEveryMatch(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	cp, err := store.Checkpoint()
	require.NoError(t, err)
	bossID, err := cp.Add(qualia.NewObject("name", "carol", "boss", int64(0)))
	require.NoError(t, err)
	_, err = cp.Add(qualia.NewObject("name", "alice", "boss", bossID))
	require.NoError(t, err)
	require.NoError(t, cp.Commit("people"))

	people, err := qualia.IterAs(store.Query(qualia.Q().Equal("name", qualia.String("alice")).Build()), func() *person { return &person{} })
	require.NoError(t, err)
	require.Len(t, people, 1)
	require.Equal(t, "alice", people[0].name)
	require.Equal(t, bossID, people[0].boss)
}

func TestOneConverted_DereferencesOneHop(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	cp, err := store.Checkpoint()
	require.NoError(t, err)
	bossID, err := cp.Add(qualia.NewObject("name", "carol", "boss", int64(0)))
	require.NoError(t, err)
	_, err = cp.Add(qualia.NewObject("name", "alice", "boss", bossID))
	require.NoError(t, err)
	require.NoError(t, cp.Commit("people"))

	bn, err := qualia.OneConverted(
		store.Query(qualia.Q().Equal("name", qualia.String("alice")).Build()),
		store,
		func() *bossName { return &bossName{} },
	)
	require.NoError(t, err)
	require.Equal(t, "alice", bn.name)
	require.Equal(t, "carol", bn.bossOf)
}
