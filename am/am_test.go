package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/entres/internal/util"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance without user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "entres.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())
	assert.Equal(t, ModelSourceDatabase, cfg.Models.Source)
	assert.Equal(t, 100, cfg.Resolution.MaxHops)
	assert.Equal(t, 1000, cfg.Resolution.MaxDocsPerQuery)
	assert.Equal(t, 10*time.Second, cfg.Resolution.MaxTimePerQueryDuration())
	assert.Zero(t, cfg.Resolution.MaxTimePerJobDuration())
	assert.Equal(t, 1024, cfg.Resolution.MaxClausesPerQuery)
	assert.Equal(t, -1, cfg.Resolution.MaxQueryFailures)
	assert.True(t, cfg.Resolution.AllowPartialResults)
	assert.True(t, cfg.Telemetry.Metrics)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/var/lib/entres/zion.db"

[server]
port = 9300

[resolution]
max_hops = 3
max_time_per_query = "250ms"
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/entres/zion.db", cfg.Database.Path)
	assert.Equal(t, 9300, cfg.GetServerPort())
	assert.Equal(t, 3, cfg.Resolution.MaxHops)
	assert.Equal(t, 250*time.Millisecond, cfg.Resolution.MaxTimePerQueryDuration())
	// Untouched keys keep their defaults
	assert.Equal(t, 1000, cfg.Resolution.MaxDocsPerQuery)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[models]\nsource = \"s3\"\n"), 0644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models.source")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = util.Ptr(0) }, wantErr: "server.port cannot be 0"},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = util.Ptr(-1) }, wantErr: "server.port must be positive"},
		{name: "rate limit without burst", mutate: func(c *Config) {
			c.Server.RequestsPerSecond = 5
			c.Server.Burst = 0
		}, wantErr: "server.burst"},
		{name: "directory source without directory", mutate: func(c *Config) {
			c.Models.Source = ModelSourceDirectory
			c.Models.Directory = ""
		}, wantErr: "models.directory"},
		{name: "negative hops", mutate: func(c *Config) { c.Resolution.MaxHops = -1 }, wantErr: "max_hops"},
		{name: "zero clauses", mutate: func(c *Config) { c.Resolution.MaxClausesPerQuery = 0 }, wantErr: "max_clauses_per_query"},
		{name: "unlimited failures", mutate: func(c *Config) { c.Resolution.MaxQueryFailures = -1 }},
		{name: "failures below -1", mutate: func(c *Config) { c.Resolution.MaxQueryFailures = -2 }, wantErr: "max_query_failures"},
		{name: "bad duration", mutate: func(c *Config) { c.Resolution.MaxTimePerQuery = "soon" }, wantErr: "max_time_per_query"},
		{name: "negative duration", mutate: func(c *Config) { c.Resolution.MaxTimePerJob = "-1s" }, wantErr: "max_time_per_job"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Resolution.Concurrency = -4 }, wantErr: "concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DefaultConfig()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteConfig_RoundTripsAndRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "am.toml")

	cfg, err := DefaultConfig()
	require.NoError(t, err)
	cfg.Resolution.MaxHops = 7
	cfg.Server.Port = util.Ptr(9400)

	require.NoError(t, WriteConfig(path, cfg))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Resolution.MaxHops)
	assert.Equal(t, 9400, loaded.GetServerPort())

	// Every further write pushes the previous file into .back1
	for i := 0; i < 4; i++ {
		cfg.Resolution.MaxHops = 10 + i
		require.NoError(t, WriteConfig(path, cfg))
	}
	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		assert.FileExists(t, path+suffix)
	}
	assert.NoFileExists(t, path+".back4")

	back1, err := LoadFromFile(path + ".back1")
	require.NoError(t, err)
	assert.Equal(t, 12, back1.Resolution.MaxHops)
}

func TestLoad_ProjectConfigAndSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("[resolution]\nmax_hops = 4\n"), 0644))
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() {
		os.Chdir(wd)
		Reset()
	})
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENTRES_LOG_LEVEL", "debug")
	Reset()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Resolution.MaxHops)
	assert.Equal(t, "debug", cfg.Log.Level)

	settings, err := Settings()
	require.NoError(t, err)
	byKey := map[string]SettingInfo{}
	for _, s := range settings {
		byKey[s.Key] = s
	}
	assert.Equal(t, SourceProject, byKey["resolution.max_hops"].Source)
	assert.Equal(t, SourceEnvironment, byKey["log.level"].Source)
	assert.Equal(t, SourceDefault, byKey["database.path"].Source)
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[resolution]\nmax_hops = 1\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()
	cw.SetDebounce(10 * time.Millisecond)
	cw.SetLoader(func() (*Config, error) { return LoadFromFile(path) })

	reloaded := make(chan int, 4)
	cw.OnReload(func(c *Config) error {
		reloaded <- c.Resolution.MaxHops
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(path, []byte("[resolution]\nmax_hops = 9\n"), 0644))

	select {
	case hops := <-reloaded:
		assert.Equal(t, 9, hops)
	case <-time.After(5 * time.Second):
		t.Fatal("config watcher did not reload")
	}
}

func TestConfigWatcher_IgnoresOwnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	cw.MarkOwnWrite()
	assert.True(t, cw.checkOwnWrite())
	assert.False(t, cw.checkOwnWrite())
}
