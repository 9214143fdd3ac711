package job

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/query"
)

// outcome is the fate of one query. Query failures are kept here rather than
// returned through the group so every query of a hop runs to completion.
type outcome struct {
	query query.Query
	req   resolution.SearchRequest
	resp  *resolution.SearchResponse
	took  time.Duration
	err   error
}

// dispatch runs a hop's queries concurrently and waits for all of them
func (j *Job) dispatch(ctx context.Context, hop int, queries []query.Query, deadline time.Time) []outcome {
	outcomes := make([]outcome, len(queries))

	var g errgroup.Group
	if j.opts.Concurrency > 0 {
		g.SetLimit(j.opts.Concurrency)
	}
	for i, q := range queries {
		g.Go(func() error {
			outcomes[i] = j.search(ctx, q, deadline)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// search runs one query with its own timeout: max_time_per_query, or what is
// left of the job budget when that is shorter
func (j *Job) search(ctx context.Context, q query.Query, deadline time.Time) (o outcome) {
	o.query = q
	o.req = resolution.SearchRequest{
		Collection: q.Collection,
		Query:      q.Clause,
		Size:       q.Size,
		Options:    j.opts.Search,
	}
	o.req.Options.Version = o.req.Options.Version || j.opts.IncludeVersion
	o.req.Options.SeqNoPrimaryTerm = o.req.Options.SeqNoPrimaryTerm || j.opts.IncludeSeqNoPrimaryTerm
	o.req.Options.Profile = o.req.Options.Profile || j.opts.Profile

	defer func() {
		if r := recover(); r != nil {
			o.resp = nil
			o.err = errors.NewInternalError("search of %s panicked: %v", q.Collection, r)
		}
	}()

	timeout := j.opts.MaxTimePerQuery
	if !deadline.IsZero() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			o.err = errors.Wrap(errors.ErrTimeout, "job time budget exhausted")
			return o
		}
		if timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}
	o.req.Timeout = timeout

	qctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	qctx, span := j.tracer.Start(qctx, "resolution.query", trace.WithAttributes(
		attribute.Int("entres.hop", q.Hop),
		attribute.Int("entres.query", q.Index),
		attribute.String("entres.collection", q.Collection),
	))
	defer span.End()

	j.log.Debugw("search", logger.FieldHop, q.Hop, logger.FieldQueryIndex, q.Index,
		logger.FieldCollection, q.Collection, "clause", Explain(q.Clause))

	start := time.Now()
	resp, err := j.cfg.Store.Search(qctx, o.req)
	o.took = time.Since(start)
	if err != nil {
		if ctx.Err() == nil && qctx.Err() != nil && !errors.IsTimeoutError(err) {
			err = errors.Wrap(errors.ErrTimeout, err.Error())
		}
		o.err = errors.WrapBackend(err, fmt.Sprintf("search %s", q.Collection))
		span.RecordError(o.err)
		span.SetStatus(codes.Error, string(errors.Classify(o.err)))
		return o
	}
	if resp == nil {
		resp = &resolution.SearchResponse{}
	}
	o.resp = resp
	span.SetAttributes(attribute.Int("entres.documents", len(resp.Documents)))
	return o
}

// record keeps every query of a hop for the result, turns failures into
// warnings, and reports how many failed and whether any timed out
func (j *Job) record(hop int, outcomes []outcome) (failed int, timedOut bool) {
	for _, o := range outcomes {
		j.st.queries = append(j.st.queries, QueryRecord{
			Hop:        hop,
			Query:      o.query.Index,
			Collection: o.query.Collection,
			Request:    o.req,
			Response:   o.resp,
			Took:       o.took,
			Err:        o.err,
		})

		if o.err != nil {
			failed++
			if errors.IsTimeoutError(o.err) {
				timedOut = true
			}
			j.st.warnings = append(j.st.warnings,
				fmt.Sprintf("hop %d query %d on %s failed: %v", hop, o.query.Index, o.query.Collection, o.err))
			j.log.Warnw("query failed", logger.FieldHop, hop, logger.FieldQueryIndex, o.query.Index,
				logger.FieldCollection, o.query.Collection, logger.FieldError, o.err.Error(),
				logger.FieldErrorType, string(errors.Classify(o.err)))
			j.emit(resolution.Event{
				Type:       resolution.EventQueryFailed,
				Hop:        hop,
				Query:      o.query.Index,
				Collection: o.query.Collection,
				Error:      o.err.Error(),
				Duration:   o.took,
			})
			continue
		}

		if o.resp.TimedOut || o.resp.Partial {
			timedOut = timedOut || o.resp.TimedOut
			j.st.warnings = append(j.st.warnings,
				fmt.Sprintf("hop %d query %d on %s returned partial results", hop, o.query.Index, o.query.Collection))
		}
		j.emit(resolution.Event{
			Type:       resolution.EventQueryCompleted,
			Hop:        hop,
			Query:      o.query.Index,
			Collection: o.query.Collection,
			Hits:       len(o.resp.Documents),
			Duration:   o.took,
		})
	}
	return failed, timedOut
}
