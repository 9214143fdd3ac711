package am

import (
	"time"

	"github.com/teranos/entres/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}
	if c.Server.RequestsPerSecond < 0 {
		return errors.Newf("server.requests_per_second must be >= 0, got %f", c.Server.RequestsPerSecond)
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst <= 0 {
		return errors.Newf("server.burst must be > 0 when rate limiting is enabled, got %d", c.Server.Burst)
	}

	switch c.Models.Source {
	case "", ModelSourceDatabase:
	case ModelSourceDirectory:
		if c.Models.Directory == "" {
			return errors.New("models.directory cannot be empty when models.source is \"directory\"")
		}
	default:
		return errors.Newf("models.source must be %q or %q, got %q", ModelSourceDatabase, ModelSourceDirectory, c.Models.Source)
	}

	r := c.Resolution
	if r.MaxHops < 1 {
		return errors.Newf("resolution.max_hops must be >= 1, got %d", r.MaxHops)
	}
	if r.MaxDocsPerQuery < 1 {
		return errors.Newf("resolution.max_docs_per_query must be >= 1, got %d", r.MaxDocsPerQuery)
	}
	if r.MaxClausesPerQuery < 1 {
		return errors.Newf("resolution.max_clauses_per_query must be >= 1, got %d", r.MaxClausesPerQuery)
	}
	if r.MaxQueryFailures < -1 {
		return errors.Newf("resolution.max_query_failures must be >= -1, got %d", r.MaxQueryFailures)
	}
	if r.Concurrency < 0 {
		return errors.Newf("resolution.concurrency must be >= 0, got %d", r.Concurrency)
	}
	if err := validateDuration("resolution.max_time_per_query", r.MaxTimePerQuery); err != nil {
		return err
	}
	if err := validateDuration("resolution.max_time_per_job", r.MaxTimePerJob); err != nil {
		return err
	}

	return nil
}

// validateDuration accepts an empty string (unset) or a positive Go duration
func validateDuration(key, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrapf(err, "%s is not a valid duration", key)
	}
	if d <= 0 {
		return errors.Newf("%s must be positive, got %s", key, value)
	}
	return nil
}
