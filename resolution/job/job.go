// Package job runs resolution jobs.
//
// A job starts from the values and criteria of an input, then hop by hop
// builds queries from the values first seen in the previous hop, runs them
// concurrently, and merges the documents they return. It stops when a hop
// discovers nothing new, when max_hops is reached, or when the time budget
// runs out.
//
// Usage:
//
//	j, err := job.New(job.Config{Input: in, Store: store, Options: job.DefaultOptions()})
//	if err != nil {
//	    return err
//	}
//	result := j.Execute(ctx)
//	data, err := result.Marshal()
package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/input"
	"github.com/teranos/entres/resolution/model"
	"github.com/teranos/entres/resolution/query"
)

// TracerName is the instrumentation name of job spans
const TracerName = "github.com/teranos/entres/resolution/job"

// Config holds everything a job needs
type Config struct {
	EntityType string // label for logs, events, and results; may be empty for embedded models
	Input      *input.Input
	Store      resolution.DocumentStore

	// Options default to DefaultOptions when left zero
	Options Options

	// Optional
	Logger    *zap.SugaredLogger
	Observers []resolution.Observer
	Tracer    trace.Tracer
}

// Job is a single resolution run. It runs exactly once.
type Job struct {
	id      string
	cfg     Config
	opts    Options
	in      *input.Input
	builder *query.Builder
	log     *zap.SugaredLogger
	tracer  trace.Tracer
	st      *state

	mu      sync.Mutex
	status  resolution.JobState
	hop     int
	started bool
	done    chan struct{}
	result  *Result
}

// New validates cfg and prepares a pending job
func New(cfg Config) (*Job, error) {
	if cfg.Input == nil || cfg.Input.Model == nil {
		return nil, errors.NewInvalidRequestError("job needs a validated input")
	}
	if cfg.Store == nil {
		return nil, errors.NewInvalidRequestError("job needs a document store")
	}
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}

	builder, err := query.NewBuilder(cfg.Input, query.Options{
		MaxClausesPerQuery: cfg.Options.MaxClausesPerQuery,
		MaxDocsPerQuery:    cfg.Options.MaxDocsPerQuery,
	})
	if err != nil {
		return nil, err
	}

	j := &Job{
		id:      uuid.NewString(),
		cfg:     cfg,
		opts:    cfg.Options,
		in:      cfg.Input,
		builder: builder,
		log:     cfg.Logger,
		tracer:  cfg.Tracer,
		st:      seedState(cfg.Input),
		status:  resolution.JobPending,
		done:    make(chan struct{}),
	}
	if j.log == nil {
		j.log = zap.NewNop().Sugar()
	}
	j.log = j.log.With(logger.FieldJobID, j.id, logger.FieldEntityType, cfg.EntityType)
	if j.tracer == nil {
		j.tracer = otel.Tracer(TracerName)
	}
	return j, nil
}

// ID is the job's unique id
func (j *Job) ID() string {
	return j.id
}

// State is the job's lifecycle state
func (j *Job) State() resolution.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Hop is the current hop, or the last one run once the job is terminal
func (j *Job) Hop() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.hop
}

// Failed reports whether the job ended in failure
func (j *Job) Failed() bool {
	return j.State() == resolution.JobFailed
}

// Done is closed when the job reaches a terminal state
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result is the terminal result, or nil while the job is still running
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Run starts the job in the background and calls callback with the result.
// Input that yields no first-hop query fails the job immediately and the
// validation error is returned instead; callback is not called then. A second
// Run returns errors.ErrJobAlreadyRun.
func (j *Job) Run(ctx context.Context, callback func(*Result)) error {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return errors.ErrJobAlreadyRun
	}
	j.started = true
	j.mu.Unlock()

	start := time.Now()
	queries, err := j.builder.Build(1, j.st.frontier, j.st.known, j.st.visited)
	if err == nil && len(queries) == 0 {
		err = errors.NewInvalidRequestError("input yields no queries: no resolver is covered by its attributes and no ids or clauses apply")
	}
	if err != nil {
		j.finish(j.fail(start, err))
		return err
	}

	j.setState(resolution.JobRunning)
	go func() {
		res := j.execute(ctx, start, queries)
		j.finish(res)
		if callback != nil {
			callback(res)
		}
	}()
	return nil
}

// Execute runs the job and blocks until it is terminal. On a job that was
// already started it waits for that run's result.
func (j *Job) Execute(ctx context.Context) *Result {
	_ = j.Run(ctx, nil)
	<-j.done
	return j.Result()
}

func (j *Job) execute(ctx context.Context, start time.Time, queries []query.Query) (res *Result) {
	ctx, span := j.tracer.Start(ctx, "resolution.job", trace.WithAttributes(
		attribute.String("entres.job_id", j.id),
		attribute.String("entres.entity_type", j.cfg.EntityType),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("entres.hops", res.Hops),
			attribute.String("entres.termination", string(res.Termination)),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(res.Termination))
		}
		span.End()
	}()

	var deadline time.Time
	if j.opts.MaxTimePerJob > 0 {
		deadline = start.Add(j.opts.MaxTimePerJob)
	}

	failures := 0
	for hop := 1; ; hop++ {
		if hop > 1 {
			var err error
			queries, err = j.builder.Build(hop, j.st.frontier, j.st.known, j.st.visited)
			if err != nil {
				return j.fail(start, err)
			}
			if len(queries) == 0 {
				return j.complete(start, TerminationEmptyFrontier)
			}
		}
		if err := ctx.Err(); err != nil {
			return j.fail(start, errors.Wrap(errors.ErrCancelled, err.Error()))
		}

		j.setHop(hop)
		hopStart := time.Now()
		j.emit(resolution.Event{Type: resolution.EventHopStarted, Hop: hop, Queries: len(queries)})
		j.log.Debugw("hop started", logger.FieldHop, hop, logger.FieldCount, len(queries))

		outcomes := j.dispatch(ctx, hop, queries, deadline)
		if err := ctx.Err(); err != nil {
			return j.fail(start, errors.Wrap(errors.ErrCancelled, err.Error()))
		}

		failed, timedOut := j.record(hop, outcomes)
		failures += failed
		if err := j.checkFailures(hop, outcomes, failed, failures); err != nil {
			return j.fail(start, err)
		}

		found, err := j.merge(hop, outcomes)
		if err != nil {
			return j.fail(start, err)
		}

		j.emit(resolution.Event{
			Type:     resolution.EventHopCompleted,
			Hop:      hop,
			Queries:  len(queries),
			Hits:     found,
			Duration: time.Since(hopStart),
		})
		j.log.Debugw("hop completed", logger.FieldHop, hop, logger.FieldCount, found,
			logger.FieldDurationMS, time.Since(hopStart).Milliseconds())

		budgetGone := !deadline.IsZero() && !time.Now().Before(deadline)
		switch {
		case j.st.frontier.Len() == 0 && !(budgetGone && timedOut):
			return j.complete(start, TerminationEmptyFrontier)
		case budgetGone:
			return j.complete(start, TerminationTimeBudget)
		case hop >= j.opts.MaxHops:
			return j.complete(start, TerminationMaxHops)
		}
	}
}

// checkFailures applies the partial failure policy to a finished hop
func (j *Job) checkFailures(hop int, outcomes []outcome, failed, total int) error {
	if failed == 0 {
		return nil
	}
	var first error
	for _, o := range outcomes {
		if o.err != nil {
			first = o.err
			break
		}
	}

	switch {
	case failed == len(outcomes) && hop == 1:
		return errors.Wrapf(first, "all %d queries of hop 1 failed", failed)
	case failed == len(outcomes) && !j.opts.AllowPartialResults:
		return errors.Wrapf(first, "all %d queries of hop %d failed", failed, hop)
	case j.opts.MaxQueryFailures >= 0 && total > j.opts.MaxQueryFailures:
		return errors.Wrapf(first, "%d failed queries exceed max_query_failures %d", total, j.opts.MaxQueryFailures)
	}
	return nil
}

// merge folds a hop's responses into the state in query order, then rank order.
// The first hit of a document wins.
func (j *Job) merge(hop int, outcomes []outcome) (found int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError("merge of hop %d panicked: %v", hop, r)
		}
	}()

	known := j.st.known
	next := model.NewValueSet()
	for _, o := range outcomes {
		if o.err != nil || o.resp == nil {
			continue
		}
		ix, ok := j.in.Model.Index(o.query.Collection)
		if !ok {
			return found, errors.NewInternalError("response for unknown collection %q", o.query.Collection)
		}

		for _, doc := range o.resp.Documents {
			h := &Hit{
				Index:       o.query.Collection,
				ID:          doc.ID,
				Hop:         hop,
				Query:       o.query.Index,
				Score:       doc.Score,
				Version:     doc.Version,
				SeqNo:       doc.SeqNo,
				PrimaryTerm: doc.PrimaryTerm,
				Source:      doc.Source,
				Attributes:  model.NewValueSet(),
			}
			if !j.st.visit(h) {
				continue
			}
			found++

			for _, f := range ix.Fields {
				for _, v := range f.Values(doc.Source, j.in.Params(f.Attribute.Name)) {
					h.Attributes.Add(v)
					if known.Has(v) {
						continue
					}
					if next.Add(v) {
						j.st.prov[v.Key()] = provenance{hop: hop, origin: h}
					}
				}
			}
			if j.opts.IncludeExplanation {
				j.explain(h, ix, hop, known)
			}
		}
	}

	j.st.advance(next)
	return found, nil
}

func (j *Job) complete(start time.Time, reason Termination) *Result {
	j.log.Infow("job completed", logger.FieldTermination, string(reason), logger.FieldHop, j.Hop(),
		logger.FieldCount, len(j.st.hits), logger.FieldDurationMS, time.Since(start).Milliseconds())
	return j.snapshot(start, reason, nil)
}

func (j *Job) fail(start time.Time, err error) *Result {
	reason := failureReason(err)
	j.log.Warnw("job failed", logger.FieldTermination, string(reason), logger.FieldHop, j.Hop(),
		logger.FieldError, err.Error(), logger.FieldErrorType, string(errors.Classify(err)))
	return j.snapshot(start, reason, err)
}

func (j *Job) snapshot(start time.Time, reason Termination, err error) *Result {
	order := make([]string, len(j.in.Model.Attributes))
	for i, a := range j.in.Model.Attributes {
		order[i] = a.Name
	}
	return &Result{
		JobID:          j.id,
		EntityType:     j.cfg.EntityType,
		Took:           time.Since(start),
		Hops:           j.Hop(),
		Termination:    reason,
		Failed:         err != nil,
		Hits:           j.st.hits,
		Attributes:     j.st.known,
		Queries:        j.st.queries,
		Warnings:       j.st.warnings,
		Err:            err,
		opts:           j.opts,
		attributeOrder: order,
	}
}

// finish publishes the result and moves the job to its terminal state
func (j *Job) finish(res *Result) {
	next := resolution.JobSucceeded
	if res.Failed {
		next = resolution.JobFailed
	}
	j.mu.Lock()
	j.result = res
	j.status = next
	j.mu.Unlock()

	j.emit(resolution.Event{
		Type:        resolution.EventStateChanged,
		State:       next,
		Hop:         res.Hops,
		Hits:        len(res.Hits),
		Termination: string(res.Termination),
		Error:       errorString(res.Err),
		Duration:    res.Took,
	})
	close(j.done)
}

func (j *Job) setState(s resolution.JobState) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
	j.emit(resolution.Event{Type: resolution.EventStateChanged, State: s})
}

func (j *Job) setHop(hop int) {
	j.mu.Lock()
	j.hop = hop
	j.mu.Unlock()
}

// emit delivers e to every observer in order
func (j *Job) emit(e resolution.Event) {
	e.JobID = j.id
	e.EntityType = j.cfg.EntityType
	e.Time = time.Now()
	for _, o := range j.cfg.Observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					j.log.Errorw("observer panicked", "event", e.Type, "panic", r)
				}
			}()
			o.OnEvent(e)
		}()
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
