package job

import (
	"time"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution"
)

// Job defaults
const (
	DefaultMaxHops            = 100
	DefaultMaxDocsPerQuery    = 1000
	DefaultMaxClausesPerQuery = 1024
	DefaultMaxTimePerQuery    = 10 * time.Second
)

// Options configure one job. Include flags shape the serialized result only.
type Options struct {
	IncludeAttributes       bool // _attributes
	IncludeHits             bool // hits
	IncludeExplanation      bool // _explanation
	IncludeQueries          bool // queries
	IncludeScore            bool // _score
	IncludeSource           bool // _source
	IncludeVersion          bool // _version
	IncludeSeqNoPrimaryTerm bool // _seq_no_primary_term
	IncludeErrorTrace       bool // error_trace
	Profile                 bool
	Pretty                  bool

	MaxHops            int
	MaxDocsPerQuery    int
	MaxClausesPerQuery int
	MaxTimePerQuery    time.Duration // 0 = no per-query limit
	MaxTimePerJob      time.Duration // 0 = unbounded
	MaxQueryFailures   int           // -1 = unlimited
	Concurrency        int           // 0 = unlimited

	// AllowPartialResults keeps a job running when every query of a hop after
	// the first fails. A fully failed first hop always fails the job.
	AllowPartialResults bool

	Search resolution.SearchOptions
}

// DefaultOptions returns the options a job uses when nothing overrides them
func DefaultOptions() Options {
	return Options{
		IncludeAttributes:   true,
		IncludeHits:         true,
		IncludeSource:       true,
		IncludeErrorTrace:   true,
		MaxHops:             DefaultMaxHops,
		MaxDocsPerQuery:     DefaultMaxDocsPerQuery,
		MaxClausesPerQuery:  DefaultMaxClausesPerQuery,
		MaxTimePerQuery:     DefaultMaxTimePerQuery,
		MaxQueryFailures:    -1,
		AllowPartialResults: true,
	}
}

// OptionsFromConfig applies the configured job defaults over DefaultOptions
func OptionsFromConfig(cfg am.ResolutionConfig) (Options, error) {
	o := DefaultOptions()
	o.MaxHops = cfg.MaxHops
	o.MaxDocsPerQuery = cfg.MaxDocsPerQuery
	o.MaxClausesPerQuery = cfg.MaxClausesPerQuery
	o.MaxQueryFailures = cfg.MaxQueryFailures
	o.Concurrency = cfg.Concurrency
	o.AllowPartialResults = cfg.AllowPartialResults
	o.IncludeErrorTrace = cfg.IncludeErrorTrace
	o.MaxTimePerQuery = cfg.MaxTimePerQueryDuration()
	o.MaxTimePerJob = cfg.MaxTimePerJobDuration()
	return o, o.Validate()
}

// Validate checks the limits
func (o Options) Validate() error {
	switch {
	case o.MaxHops < 1:
		return errors.NewInvalidRequestError("max_hops must be >= 1, got %d", o.MaxHops)
	case o.MaxDocsPerQuery < 1:
		return errors.NewInvalidRequestError("max_docs_per_query must be >= 1, got %d", o.MaxDocsPerQuery)
	case o.MaxClausesPerQuery < 1:
		return errors.NewInvalidRequestError("max_clauses_per_query must be >= 1, got %d", o.MaxClausesPerQuery)
	case o.MaxTimePerQuery < 0:
		return errors.NewInvalidRequestError("max_time_per_query must not be negative")
	case o.MaxTimePerJob < 0:
		return errors.NewInvalidRequestError("max_time_per_job must not be negative")
	case o.MaxQueryFailures < -1:
		return errors.NewInvalidRequestError("max_query_failures must be >= -1, got %d", o.MaxQueryFailures)
	case o.Concurrency < 0:
		return errors.NewInvalidRequestError("concurrency must be >= 0, got %d", o.Concurrency)
	}
	return nil
}
