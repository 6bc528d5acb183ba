// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pianohacker/qualia"
)

func TestPropValue_AsNumberAsString(t *testing.T) {
	t.Parallel()

	n := qualia.Number(42)
	num, ok := n.AsNumber()
	require.True(t, ok)
	assert.Equal(t, int64(42), num)
	_, ok = n.AsString()
	assert.False(t, ok)

	s := qualia.String("hello")
	str, ok := s.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", str)
	_, ok = s.AsNumber()
	assert.False(t, ok)
}

func TestPropValue_Equal(t *testing.T) {
	t.Parallel()

	assert.True(t, qualia.Number(1).Equal(qualia.Number(1)))
	assert.False(t, qualia.Number(1).Equal(qualia.Number(2)))
	assert.True(t, qualia.String("a").Equal(qualia.String("a")))
	assert.False(t, qualia.String("a").Equal(qualia.Number(0)))
}

func TestPropValueFromJSON_RejectsNonScalar(t *testing.T) {
	t.Parallel()

	_, err := qualia.PropValueFromJSON(nil)
	require.Error(t, err)

	_, err = qualia.PropValueFromJSON(true)
	require.Error(t, err)

	_, err = qualia.PropValueFromJSON(3.5)
	require.Error(t, err)

	_, err = qualia.PropValueFromJSON([]any{1, 2})
	require.Error(t, err)

	v, err := qualia.PropValueFromJSON(float64(7))
	require.NoError(t, err)
	n, ok := v.AsNumber()
	require.True(t, ok)
	assert.Equal(t, int64(7), n)
}

func TestNewObject(t *testing.T) {
	t.Parallel()

	obj := qualia.NewObject(
		"name", "alice",
		"age", 30,
		"name", "alicia", // duplicate keys overwrite
	)
	assert.Len(t, obj, 2)
	name, ok := obj["name"].AsString()
	require.True(t, ok)
	assert.Equal(t, "alicia", name)
}

func TestNewObject_OddArgsPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		qualia.NewObject("name")
	})
}

func TestObject_Merge(t *testing.T) {
	t.Parallel()

	base := qualia.NewObject("name", "one", "blah", "blah")
	merged := base.Merge(qualia.NewObject("name", "wun"))

	assert.True(t, merged.Equal(qualia.NewObject("name", "wun", "blah", "blah")))
	// Merge does not mutate the receiver.
	assert.True(t, base.Equal(qualia.NewObject("name", "one", "blah", "blah")))
}

func TestObject_ID(t *testing.T) {
	t.Parallel()

	obj := qualia.NewObject("name", "one")
	_, ok := obj.ID()
	assert.False(t, ok)

	obj[qualia.IdentityField] = qualia.Number(5)
	id, ok := obj.ID()
	require.True(t, ok)
	assert.Equal(t, int64(5), id)
}
