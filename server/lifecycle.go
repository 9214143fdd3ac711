package server

import (
	"context"
	"net"
	"net/http"

	"github.com/teranos/entres/errors"
)

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "ok"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(l)
	}()
	s.logger.Infow("Server ready", "addr", l.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, l)
}

// Stop drains the server: new jobs are refused, in-flight requests and
// streams finish until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown", "active_jobs", s.activeJobs.Load())
	s.setState(ServerStateDraining)

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	streams := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(streams)
	}()
	select {
	case <-streams:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	s.setState(ServerStateStopped)
	if err != nil {
		return errors.Wrap(err, "shutdown")
	}
	s.logger.Infow("Server stopped")
	return nil
}
