// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// Sink persists one group's worth of output records. The coordinator
// serializes flushes, so implementations never see two calls in flight.
type Sink interface {
	Flush(records []Record) error
}

// FileSink appends records to a text file, one `seq,id,result' row per
// line. The file is opened and closed per flush so a crash between
// groups never leaves an open handle behind.
type FileSink struct {
	path string
}

// NewFileSink creates a sink appending to the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Flush appends every record as one line. An empty record sequence is a
// no-op open/close that leaves existing content untouched.
func (s *FileSink) Flush(records []Record) (err error) {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing %s: %w", s.path, cerr))
		}
	}()

	w := bufio.NewWriter(f)

	for _, r := range records {
		if _, werr := fmt.Fprintf(w, "%d,%s,%s\n", r.Seq, r.ID, r.Result); werr != nil {
			return fmt.Errorf("writing record %d: %w", r.Seq, werr)
		}
	}

	if werr := w.Flush(); werr != nil {
		return fmt.Errorf("flushing %s: %w", s.path, werr)
	}

	return err
}
