// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pianohacker/qualia"
)

func TestQueryBuilder_EmptyBuildsEmpty(t *testing.T) {
	t.Parallel()
	node := qualia.QB().Build()
	assert.Equal(t, qualia.Empty(), node)
}

func TestQueryBuilder_SingleCriterionBuildsBareNode(t *testing.T) {
	t.Parallel()
	node := qualia.Q().Equal("name", qualia.String("alice")).Build()
	assert.Equal(t, qualia.PropEqual("name", qualia.String("alice")), node)
}

func TestQueryBuilder_MultipleCriteriaBuildAnd(t *testing.T) {
	t.Parallel()
	node := qualia.Q().
		Equal("name", qualia.String("alice")).
		Like("bio", "engineer").
		Build()
	assert.Equal(t, qualia.And(
		qualia.PropEqual("name", qualia.String("alice")),
		qualia.PropLike("bio", "engineer"),
	), node)
}

func TestQueryBuilder_ChainingDoesNotMutateSharedPrefix(t *testing.T) {
	t.Parallel()
	base := qualia.Q().Equal("kind", qualia.String("person"))
	a := base.Equal("name", qualia.String("alice")).Build()
	b := base.Equal("name", qualia.String("bob")).Build()

	assert.NotEqual(t, a, b)
}

func TestQueryBuilder_ID(t *testing.T) {
	t.Parallel()
	node := qualia.Q().ID(5).Build()
	assert.Equal(t, qualia.PropEqual(qualia.IdentityField, qualia.Number(5)), node)
}
