// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

import (
	"testing"

	"github.com/dlclark/regexp2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatch(t *testing.T, pattern, text string) bool {
	t.Helper()
	compiled, err := compileLikePattern(pattern)
	require.NoError(t, err)
	re, err := regexp2.Compile(compiled, regexp2.None)
	require.NoError(t, err)
	matched, err := re.MatchString(text)
	require.NoError(t, err)
	return matched
}

func TestCompileLikePattern_WordsAndStars(t *testing.T) {
	t.Parallel()

	const title = "why the lucky stiff"

	assert.True(t, mustMatch(t, "why", title))
	assert.True(t, mustMatch(t, "why luck*", title))
	assert.True(t, mustMatch(t, "*tiff", title))
	assert.True(t, mustMatch(t, "the *ck*", title))

	assert.False(t, mustMatch(t, "wh", title))
	assert.False(t, mustMatch(t, "lucky why", title))
}

func TestCompileLikePattern_CaseInsensitive(t *testing.T) {
	t.Parallel()
	assert.True(t, mustMatch(t, "blah", "BLAH"))
	assert.True(t, mustMatch(t, "BLAH", "blah"))
}

func TestCompileLikePattern_StarNeverSpansWordBoundary(t *testing.T) {
	t.Parallel()
	// "foo*" must not match across a space into the next word.
	assert.False(t, mustMatch(t, "foo*baz", "foo bar baz"))
	assert.True(t, mustMatch(t, "foo*baz", "foobarbaz"))
}

func TestQueryNode_CompileEmpty(t *testing.T) {
	t.Parallel()
	c, err := Empty().compile()
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", c.where)
	assert.Empty(t, c.args)
}

func TestQueryNode_CompilePropEqualIdentity(t *testing.T) {
	t.Parallel()
	c, err := PropEqual(IdentityField, Number(7)).compile()
	require.NoError(t, err)
	assert.Equal(t, "objects.object_id = ?", c.where)
	assert.Equal(t, []any{int64(7)}, c.args)
}

func TestQueryNode_CompilePropEqualIdentityRejectsString(t *testing.T) {
	t.Parallel()
	_, err := PropEqual(IdentityField, String("nope")).compile()
	require.Error(t, err)
}

func TestQueryNode_CompileAndJoinsChildren(t *testing.T) {
	t.Parallel()
	c, err := And(
		PropEqual("name", String("alice")),
		PropEqual("age", Number(30)),
	).compile()
	require.NoError(t, err)
	assert.Contains(t, c.where, " AND ")
	assert.Len(t, c.args, 4)
}

func TestQueryNode_CompileAndEmptyIsEmpty(t *testing.T) {
	t.Parallel()
	c, err := And().compile()
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", c.where)
}
