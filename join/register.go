// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

// Package join resolves, for every record of a paginated identifier
// register, the polygon that spatially contains the record's point, and
// appends the joined rows to an output file.
package join

import (
	"context"

	"pipjoin/spatial"
)

// Page is one slice of the identifier register. HasMore reports whether a
// further page exists after this one.
type Page struct {
	IDs     []string
	HasMore bool
}

// Pager pages through the identifier register. Pages are 1-based and
// bounded by pageSize. Failures are reported as *FetchIDBatchError.
type Pager interface {
	GetIDs(ctx context.Context, page, pageSize int) (Page, error)
}

// PointProvider resolves an identifier to its coordinates. Failures are
// reported as *FetchPointError.
type PointProvider interface {
	GetPoint(ctx context.Context, id string) (spatial.Point, error)
}

// Register is an identifier index that can both page through its records
// and resolve any of them to a point.
type Register interface {
	Pager
	PointProvider
}

// Matcher performs the point-in-polygon search against the polygon layer.
// The predicate names a spatial relation (e.g. "Contains", "Intersects")
// and is forwarded verbatim to the remote service. An empty identifier
// with a nil error means no polygon contained the point. Failures are
// reported as *PIPError.
type Matcher interface {
	ObtainID(ctx context.Context, p spatial.Point, predicate string) (string, error)
}
