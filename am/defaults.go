package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "entres.db")

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.requests_per_second", 0) // unlimited
	v.SetDefault("server.burst", 20)

	// Model provider defaults
	v.SetDefault("models.source", ModelSourceDatabase)
	v.SetDefault("models.directory", "models")
	v.SetDefault("models.watch", true)

	// Resolution job defaults
	v.SetDefault("resolution.max_hops", 100)
	v.SetDefault("resolution.max_docs_per_query", 1000)
	v.SetDefault("resolution.max_time_per_query", "10s")
	v.SetDefault("resolution.max_time_per_job", "")
	v.SetDefault("resolution.max_clauses_per_query", 1024)
	v.SetDefault("resolution.max_query_failures", -1)
	v.SetDefault("resolution.concurrency", 0)
	v.SetDefault("resolution.allow_partial_results", true)
	v.SetDefault("resolution.include_error_trace", true)

	// Telemetry defaults
	v.SetDefault("telemetry.metrics", true)
	v.SetDefault("telemetry.namespace", "entres")

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars explicitly binds configuration that deployments commonly override
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "ENTRES_DATABASE_PATH")
	v.BindEnv("server.port", "ENTRES_SERVER_PORT")
	v.BindEnv("models.directory", "ENTRES_MODELS_DIRECTORY")
}

// GetServerPort returns the configured server port, or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "entres.db" // Fallback default
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed websocket origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// MaxTimePerQueryDuration parses resolution.max_time_per_query. Zero means "use the job default".
func (c *ResolutionConfig) MaxTimePerQueryDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxTimePerQuery)
	return d
}

// MaxTimePerJobDuration parses resolution.max_time_per_job. Zero means unbounded.
func (c *ResolutionConfig) MaxTimePerJobDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxTimePerJob)
	return d
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, Models: {Source: %s}, Resolution: {MaxHops: %d}}",
		c.GetDatabasePath(), c.GetServerPort(), c.Models.Source, c.Resolution.MaxHops)
}
