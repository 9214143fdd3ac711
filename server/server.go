// Package server exposes entity resolution over HTTP and WebSocket.
//
// Routes:
//
//	POST   /_zentity/resolution                 model embedded in the body
//	POST   /_zentity/resolution/{entity_type}   model from the model store
//	GET    /_zentity/models                     list entity types
//	GET    /_zentity/models/{entity_type}       read a model
//	PUT    /_zentity/models/{entity_type}       create or replace a model (JSON or YAML)
//	DELETE /_zentity/models/{entity_type}       delete a model
//	GET    /ws/resolution                       stream job events, then the result
//	GET    /metrics                             prometheus
//	GET    /health
//
// Job options are query parameters with their resolution API names
// (max_hops, _explanation, search.preference, ...).
package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/job"
	"github.com/teranos/entres/telemetry"
)

// ServerState is the lifecycle state of a Server
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

// Options configure a Server
type Options struct {
	Store  resolution.DocumentStore
	Models resolution.ModelStore

	// Defaults are the job options request parameters override. Zero means job.DefaultOptions.
	Defaults job.Options

	// Optional
	Metrics           *telemetry.Metrics
	AllowedOrigins    []string
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int
	Logger            *zap.SugaredLogger
}

// OptionsFromConfig fills the configurable parts of Options from cfg
func OptionsFromConfig(cfg *am.Config) (Options, error) {
	defaults, err := job.OptionsFromConfig(cfg.Resolution)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Defaults:          defaults,
		AllowedOrigins:    cfg.GetServerAllowedOrigins(),
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	}, nil
}

// Server serves resolution jobs
type Server struct {
	store    resolution.DocumentStore
	models   resolution.ModelStore
	defaults job.Options
	metrics  *telemetry.Metrics
	origins  []string
	limiter  *rate.Limiter // nil = unlimited
	logger   *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server

	state      atomic.Int32
	activeJobs atomic.Int64
	wg         sync.WaitGroup // in-flight websocket streams
}

// New validates opts and registers the routes
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server needs a document store")
	}
	if opts.Models == nil {
		return nil, errors.New("server needs a model store")
	}
	if opts.Defaults == (job.Options{}) {
		opts.Defaults = job.DefaultOptions()
	}
	if err := opts.Defaults.Validate(); err != nil {
		return nil, errors.Wrap(err, "job defaults")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	s := &Server{
		store:    opts.Store,
		models:   opts.Models,
		defaults: opts.Defaults,
		metrics:  opts.Metrics,
		origins:  opts.AllowedOrigins,
		logger:   opts.Logger,
		mux:      http.NewServeMux(),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	s.setupHTTPRoutes()
	return s, nil
}

// Handler is the root handler with every route registered
func (s *Server) Handler() http.Handler {
	return s.mux
}

// observers lists the observers every job gets, plus extra
func (s *Server) observers(extra ...resolution.Observer) []resolution.Observer {
	var out []resolution.Observer
	if s.metrics.Enabled() {
		out = append(out, s.metrics)
	}
	return append(out, extra...)
}

// track counts a running job until the returned func is called
func (s *Server) track() func() {
	s.activeJobs.Add(1)
	return func() { s.activeJobs.Add(-1) }
}

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// maxBodySize bounds request bodies of resolution and model routes
const maxBodySize = 16 << 20
