// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

// Status classifies how the resolution of a single identifier ended.
type Status int

const (
	// StatusResolved means both lookups completed; the polygon id may
	// still be empty when no polygon contained the point.
	StatusResolved Status = iota

	// StatusPointLookupFailed means the register could not produce
	// coordinates; no polygon search was attempted.
	StatusPointLookupFailed

	// StatusPolygonMatchFailed means the point-in-polygon search failed.
	StatusPolygonMatchFailed
)

// Failure tags written verbatim to the output stream.
const (
	TagPointFail = "POINTFAIL"
	TagPIPFail   = "PIPFAIL"
)

// Outcome is the result of resolving one identifier. Exactly one Outcome
// exists per dispatched identifier, failures included.
type Outcome struct {
	Seq       int64
	ID        string
	Status    Status
	PolygonID string
}

// Result is the value of the output row's third column: the polygon
// identifier (possibly empty) or a failure tag.
func (o Outcome) Result() string {
	switch o.Status {
	case StatusPointLookupFailed:
		return TagPointFail
	case StatusPolygonMatchFailed:
		return TagPIPFail
	default:
		return o.PolygonID
	}
}

// Record is one output row, written once and never mutated after flush.
type Record struct {
	Seq    int64
	ID     string
	Result string
}

// Record converts the outcome into its output row.
func (o Outcome) Record() Record {
	return Record{Seq: o.Seq, ID: o.ID, Result: o.Result()}
}
