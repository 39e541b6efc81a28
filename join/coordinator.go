// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Options configure a join run.
type Options struct {
	// StartPage is the first register page to process, 1-based
	StartPage int

	// StopPage halts the run when the page index reaches it, even if
	// the register still has more pages
	StopPage int

	// PageSize bounds the number of identifiers per register page
	PageSize int

	// Concurrency is the maximum number of in-flight resolutions, and
	// therefore the group width
	Concurrency int

	// StartSeq is the sequence number assigned to the first identifier
	StartSeq int64

	// Predicate is the spatial relation forwarded to the polygon service
	Predicate string
}

// Metrics tracks statistics for one join run.
type Metrics struct {
	Pages         int // register pages processed
	PageErrors    int // register pages skipped after a fetch failure
	Resolved      int // records joined to a polygon
	EmptyMatches  int // records whose point fell in no polygon
	PointFailures int // records whose point lookup failed
	MatchFailures int // records whose polygon search failed
}

// Merge combines two Metrics.
func (m *Metrics) Merge(o *Metrics) *Metrics {
	m.Pages += o.Pages
	m.PageErrors += o.PageErrors
	m.Resolved += o.Resolved
	m.EmptyMatches += o.EmptyMatches
	m.PointFailures += o.PointFailures
	m.MatchFailures += o.MatchFailures

	return m
}

// Records is the total number of output rows produced.
func (m *Metrics) Records() int {
	return m.Resolved + m.EmptyMatches + m.PointFailures + m.MatchFailures
}

// Coordinator drives the join: it pages through the register, partitions
// each page into concurrency-bounded groups, resolves every identifier of
// a group in parallel and flushes the group's records before moving on.
// At most one group is in flight at any time, so memory is bounded to one
// group's worth of outstanding work.
type Coordinator struct {
	register Register
	matcher  Matcher
	sink     Sink
	opts     Options
	Metrics  Metrics
}

// NewCoordinator creates a coordinator with the provided collaborators.
func NewCoordinator(register Register, matcher Matcher, sink Sink, opts Options) *Coordinator {
	if opts.StartPage <= 0 {
		opts.StartPage = 1
	}

	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &Coordinator{
		register: register,
		matcher:  matcher,
		sink:     sink,
		opts:     opts,
	}
}

// Run processes pages until the stop page is reached or the register is
// exhausted, whichever comes first. A failed page fetch is logged and
// skipped; the page index still advances. Only a sink failure aborts the
// run, since it would otherwise silently drop records.
func (c *Coordinator) Run(ctx context.Context) error {
	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) && c.opts.StopPage > c.opts.StartPage {
		bar = progressbar.NewOptions(c.opts.StopPage-c.opts.StartPage,
			progressbar.OptionSetDescription("Joining"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	seq := c.opts.StartSeq
	hasMore := true

	for page := c.opts.StartPage; page < c.opts.StopPage && hasMore; page++ {
		p, err := c.register.GetIDs(ctx, page, c.opts.PageSize)
		if err != nil {
			c.Metrics.PageErrors++

			log.Warn().Err(err).Int("page", page).Msg("Skipping page")

			continue
		}

		c.Metrics.Pages++
		hasMore = p.HasMore

		for start := 0; start < len(p.IDs); start += c.opts.Concurrency {
			group := p.IDs[start:min(start+c.opts.Concurrency, len(p.IDs))]
			if err := c.processGroup(ctx, seq, group); err != nil {
				return err
			}

			seq += int64(len(group))
		}

		log.Debug().
			Int("page", page).
			Int("records", len(p.IDs)).
			Bool("has_more", hasMore).
			Msg("Page complete")

		if bar != nil {
			if err := bar.Add(1); err != nil {
				log.Warn().Err(err).Msg("Updating progress bar")
			}
		}
	}

	log.Info().
		Int("pages", c.Metrics.Pages).
		Int("page_errors", c.Metrics.PageErrors).
		Int("records", c.Metrics.Records()).
		Int("resolved", c.Metrics.Resolved).
		Int("empty_matches", c.Metrics.EmptyMatches).
		Int("point_failures", c.Metrics.PointFailures).
		Int("match_failures", c.Metrics.MatchFailures).
		Msg("Join complete")

	return nil
}

// processGroup launches one resolution per identifier, waits for the
// whole group to finish and flushes the records in sequence order. No
// task's failure cancels its siblings; every identifier yields exactly
// one outcome.
func (c *Coordinator) processGroup(ctx context.Context, seq int64, group []string) error {
	outcomes := make(chan Outcome, len(group))

	for _, id := range group {
		go c.resolve(ctx, seq, id, outcomes)

		seq++
	}

	records := make([]Record, 0, len(group))

	for range group {
		o := <-outcomes
		c.tally(o)

		records = append(records, o.Record())
	}

	// Completion order is whatever the network gave us; the output
	// contract is sequence order.
	slices.SortFunc(records, func(a, b Record) int { return cmp.Compare(a.Seq, b.Seq) })

	if err := c.sink.Flush(records); err != nil {
		return fmt.Errorf("flushing group of %d records: %w", len(records), err)
	}

	return nil
}

// resolve turns one identifier into an Outcome. Record-level errors never
// escape: they become failure-tagged outcomes.
func (c *Coordinator) resolve(ctx context.Context, seq int64, id string, out chan<- Outcome) {
	p, err := c.register.GetPoint(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Point lookup failed")

		out <- Outcome{Seq: seq, ID: id, Status: StatusPointLookupFailed}

		return
	}

	polygonID, err := c.matcher.ObtainID(ctx, p, c.opts.Predicate)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Stringer("point", p).Msg("Polygon match failed")

		out <- Outcome{Seq: seq, ID: id, Status: StatusPolygonMatchFailed}

		return
	}

	out <- Outcome{Seq: seq, ID: id, Status: StatusResolved, PolygonID: polygonID}
}

func (c *Coordinator) tally(o Outcome) {
	switch o.Status {
	case StatusPointLookupFailed:
		c.Metrics.PointFailures++
	case StatusPolygonMatchFailed:
		c.Metrics.MatchFailures++
	case StatusResolved:
		if o.PolygonID == "" {
			c.Metrics.EmptyMatches++
		} else {
			c.Metrics.Resolved++
		}
	}
}
