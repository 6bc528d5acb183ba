// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package sqlitefn_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/pianohacker/qualia/internal/sqlitefn"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	require.NoError(t, sqlitefn.Register())
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegexpFunc_MatchesWordBoundary(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	var matched bool
	err := db.QueryRow("SELECT QUALIA_REGEXP(?, ?)", `(?i)\bblah\b`, "blah").Scan(&matched)
	require.NoError(t, err)
	require.True(t, matched)

	err = db.QueryRow("SELECT QUALIA_REGEXP(?, ?)", `(?i)\bblah\b`, "blahblah").Scan(&matched)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestJSONMergeFunc_DeepMerges(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	var merged string
	err := db.QueryRow(
		"SELECT QUALIA_JSON_MERGE(?, ?)",
		`{"name":"one","blah":"blah"}`,
		`{"name":"wun"}`,
	).Scan(&merged)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"wun","blah":"blah"}`, merged)
}

func TestRegister_Idempotent(t *testing.T) {
	t.Parallel()
	require.NoError(t, sqlitefn.Register())
	require.NoError(t, sqlitefn.Register())
}
