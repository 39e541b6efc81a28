// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"context"
	"database/sql"
	"fmt"

	"pipjoin/spatial"
)

// Queries are the three statements the database register runs. Count is
// executed once at construction, SelectIDs takes (limit, offset) and
// SelectPoint takes the identifier and must return (longitude, latitude).
type Queries struct {
	Count       string
	SelectIDs   string
	SelectPoint string
}

// DefaultQueries index the GNAF address database.
var DefaultQueries = Queries{
	Count: "SELECT count(*) FROM gnaf.address_detail",
	SelectIDs: "SELECT address_detail_pid " +
		"FROM gnaf.address_detail " +
		"ORDER BY address_detail_pid " +
		"LIMIT $1 OFFSET $2",
	SelectPoint: "SELECT longitude, latitude " +
		"FROM gnaf.address_default_geocode " +
		"WHERE address_detail_pid = $1",
}

// DBRegister is an identifier register backed by a relational database.
// The total record count is a snapshot taken at construction; it is not
// refreshed per page.
type DBRegister struct {
	db      *sql.DB
	queries Queries
	count   int
}

// NewDBRegister probes the database with the count query and returns a
// ready register. A failed probe yields an *InitialisationError: without
// a record count no paging decision can be made.
func NewDBRegister(ctx context.Context, db *sql.DB, queries Queries) (*DBRegister, error) {
	if queries.Count == "" {
		queries.Count = DefaultQueries.Count
	}

	if queries.SelectIDs == "" {
		queries.SelectIDs = DefaultQueries.SelectIDs
	}

	if queries.SelectPoint == "" {
		queries.SelectPoint = DefaultQueries.SelectPoint
	}

	r := &DBRegister{db: db, queries: queries}
	if err := db.QueryRowContext(ctx, queries.Count).Scan(&r.count); err != nil {
		return nil, &InitialisationError{Err: fmt.Errorf("counting records: %w", err)}
	}

	return r, nil
}

// Count returns the record count snapshot taken at construction.
func (r *DBRegister) Count() int { return r.count }

// GetIDs returns the identifiers at offset pageSize*(page-1). HasMore is
// computed against the construction-time count snapshot.
func (r *DBRegister) GetIDs(ctx context.Context, page, pageSize int) (Page, error) {
	rows, err := r.db.QueryContext(ctx, r.queries.SelectIDs, pageSize, pageSize*(page-1))
	if err != nil {
		return Page{}, &FetchIDBatchError{Page: page, Err: err}
	}
	defer rows.Close()

	ids := make([]string, 0, pageSize)

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Page{}, &FetchIDBatchError{Page: page, Err: fmt.Errorf("scanning identifier: %w", err)}
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return Page{}, &FetchIDBatchError{Page: page, Err: err}
	}

	return Page{IDs: ids, HasMore: pageSize*page < r.count}, nil
}

// GetPoint looks up the coordinates for a single identifier by key.
func (r *DBRegister) GetPoint(ctx context.Context, id string) (spatial.Point, error) {
	var p spatial.Point
	if err := r.db.QueryRowContext(ctx, r.queries.SelectPoint, id).Scan(&p.Lng, &p.Lat); err != nil {
		return spatial.Point{}, &FetchPointError{ID: id, Err: err}
	}

	return p, nil
}
