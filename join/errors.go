// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"fmt"
)

// FetchIDBatchError reports a failed register page fetch. The whole page
// is discarded; callers must not assume partial results were returned.
type FetchIDBatchError struct {
	Page int
	Err  error
}

func (e *FetchIDBatchError) Error() string {
	return fmt.Sprintf("fetching id batch for page %d: %v", e.Page, e.Err)
}

func (e *FetchIDBatchError) Unwrap() error { return e.Err }

// FetchPointError reports a failed point lookup for a single identifier.
type FetchPointError struct {
	ID  string
	Err error
}

func (e *FetchPointError) Error() string {
	return fmt.Sprintf("fetching point for %q: %v", e.ID, e.Err)
}

func (e *FetchPointError) Unwrap() error { return e.Err }

// PIPError reports a failed point-in-polygon search. Transport and parse
// failures are not distinguished: either way no usable feature collection
// was received.
type PIPError struct {
	Err error
}

func (e *PIPError) Error() string {
	return fmt.Sprintf("point in polygon search: %v", e.Err)
}

func (e *PIPError) Unwrap() error { return e.Err }

// InitialisationError reports a register that could not be constructed.
// A run must not proceed without a usable register, so this one is fatal.
type InitialisationError struct {
	Err error
}

func (e *InitialisationError) Error() string {
	return fmt.Sprintf("initialising register: %v", e.Err)
}

func (e *InitialisationError) Unwrap() error { return e.Err }
