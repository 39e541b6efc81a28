// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testQueries = Queries{
	Count:       "SELECT count(*) FROM addresses",
	SelectIDs:   "SELECT pid FROM addresses ORDER BY pid LIMIT ? OFFSET ?",
	SelectPoint: "SELECT longitude, latitude FROM addresses WHERE pid = ?",
}

// setupTestDB seeds an in-memory database with n addresses pid01..pidNN.
func setupTestDB(t *testing.T, n int) *sql.DB {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("CREATE TABLE addresses (pid VARCHAR, longitude DOUBLE, latitude DOUBLE)")
	require.NoError(t, err)

	for i := 1; i <= n; i++ {
		_, err = db.Exec(
			"INSERT INTO addresses VALUES (?, ?, ?)",
			fmt.Sprintf("pid%02d", i),
			140.0+float64(i),
			-30.0-float64(i),
		)
		require.NoError(t, err)
	}

	return db
}

func TestDBRegisterPaging(t *testing.T) {
	db := setupTestDB(t, 10)

	r, err := NewDBRegister(context.Background(), db, testQueries)
	require.NoError(t, err)
	assert.Equal(t, 10, r.Count())

	tests := []struct {
		page     int
		pageSize int
		ids      []string
		hasMore  bool
	}{
		{1, 4, []string{"pid01", "pid02", "pid03", "pid04"}, true},
		{2, 4, []string{"pid05", "pid06", "pid07", "pid08"}, true},
		{3, 4, []string{"pid09", "pid10"}, false},
		{4, 4, []string{}, false},
		{1, 10, []string{"pid01", "pid02", "pid03", "pid04", "pid05", "pid06", "pid07", "pid08", "pid09", "pid10"}, false},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("page=%d,size=%d", test.page, test.pageSize), func(t *testing.T) {
			page, err := r.GetIDs(context.Background(), test.page, test.pageSize)
			require.NoError(t, err)
			assert.Equal(t, test.ids, page.IDs)
			assert.Equal(t, test.hasMore, page.HasMore)
		})
	}
}

// The count is a construction-time snapshot: rows inserted afterwards do
// not change the continuation decision.
func TestDBRegisterCountSnapshot(t *testing.T) {
	db := setupTestDB(t, 4)

	r, err := NewDBRegister(context.Background(), db, testQueries)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO addresses VALUES ('pid99', 141.0, -31.0)")
	require.NoError(t, err)

	page, err := r.GetIDs(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.False(t, page.HasMore, "hasMore must follow the snapshot, not the live table")
}

func TestDBRegisterGetPoint(t *testing.T) {
	db := setupTestDB(t, 3)

	r, err := NewDBRegister(context.Background(), db, testQueries)
	require.NoError(t, err)

	p, err := r.GetPoint(context.Background(), "pid02")
	require.NoError(t, err)
	assert.InDelta(t, 142.0, p.Lng, 1e-9)
	assert.InDelta(t, -32.0, p.Lat, 1e-9)
}

func TestDBRegisterGetPointMissing(t *testing.T) {
	db := setupTestDB(t, 1)

	r, err := NewDBRegister(context.Background(), db, testQueries)
	require.NoError(t, err)

	_, err = r.GetPoint(context.Background(), "nope")
	require.Error(t, err)

	var pointErr *FetchPointError
	require.ErrorAs(t, err, &pointErr)
	assert.Equal(t, "nope", pointErr.ID)
}

func TestDBRegisterInitialisationError(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)

	defer db.Close()

	_, err = NewDBRegister(context.Background(), db, Queries{
		Count:       "SELECT count(*) FROM no_such_table",
		SelectIDs:   testQueries.SelectIDs,
		SelectPoint: testQueries.SelectPoint,
	})
	require.Error(t, err)

	var initErr *InitialisationError
	assert.ErrorAs(t, err, &initErr)
}

func TestDBRegisterGetIDsFailure(t *testing.T) {
	db := setupTestDB(t, 2)

	r, err := NewDBRegister(context.Background(), db, Queries{
		Count:       testQueries.Count,
		SelectIDs:   "SELECT pid FROM no_such_table LIMIT ? OFFSET ?",
		SelectPoint: testQueries.SelectPoint,
	})
	require.NoError(t, err)

	_, err = r.GetIDs(context.Background(), 1, 2)
	require.Error(t, err)

	var batchErr *FetchIDBatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Page)
}
