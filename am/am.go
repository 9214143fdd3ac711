package am

// Config represents the core entres configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
	Models     ModelsConfig     `mapstructure:"models" toml:"models"`
	Resolution ResolutionConfig `mapstructure:"resolution" toml:"resolution"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" toml:"telemetry"`
	Log        LogConfig        `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite database holding documents and models
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ServerConfig configures the resolution HTTP server
type ServerConfig struct {
	Port              *int     `mapstructure:"port" toml:"port"` // nil = DefaultServerPort, 0 is invalid (omit for default)
	AllowedOrigins    []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second" toml:"requests_per_second"` // 0 = unlimited
	Burst             int      `mapstructure:"burst" toml:"burst"`
}

// Server port constants
const (
	DefaultServerPort = 9200
)

// Model source kinds
const (
	ModelSourceDatabase  = "database"
	ModelSourceDirectory = "directory"
)

// ModelsConfig selects where entity models are read from
type ModelsConfig struct {
	Source    string `mapstructure:"source" toml:"source"`       // "database" or "directory"
	Directory string `mapstructure:"directory" toml:"directory"` // used when source = "directory"
	Watch     bool   `mapstructure:"watch" toml:"watch"`         // reload directory models on change
}

// ResolutionConfig holds job defaults. Request parameters override them per job.
type ResolutionConfig struct {
	MaxHops            int    `mapstructure:"max_hops" toml:"max_hops"`
	MaxDocsPerQuery    int    `mapstructure:"max_docs_per_query" toml:"max_docs_per_query"`
	MaxTimePerQuery    string `mapstructure:"max_time_per_query" toml:"max_time_per_query"` // Go duration, e.g. "10s"
	MaxTimePerJob      string `mapstructure:"max_time_per_job" toml:"max_time_per_job"`     // empty = unbounded
	MaxClausesPerQuery int    `mapstructure:"max_clauses_per_query" toml:"max_clauses_per_query"`
	MaxQueryFailures   int    `mapstructure:"max_query_failures" toml:"max_query_failures"` // -1 = unlimited
	Concurrency        int    `mapstructure:"concurrency" toml:"concurrency"`               // 0 = unlimited

	AllowPartialResults bool `mapstructure:"allow_partial_results" toml:"allow_partial_results"`
	IncludeErrorTrace   bool `mapstructure:"include_error_trace" toml:"include_error_trace"`
}

// TelemetryConfig configures prometheus metrics
type TelemetryConfig struct {
	Metrics   bool   `mapstructure:"metrics" toml:"metrics"`
	Namespace string `mapstructure:"namespace" toml:"namespace"`
}

// LogConfig configures the global logger
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json"`
	Level string `mapstructure:"level" toml:"level"`
}

// DefaultDirPermissions is used when creating ~/.entres
const DefaultDirPermissions = 0750
