package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
	"github.com/Sumatoshi-tech/hostload/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".hostload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""), nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultResolution, cfg.Resolution)
	assert.Equal(t, config.DefaultStart, cfg.Start)
	assert.Equal(t, config.DefaultEnd, cfg.End)
	assert.Equal(t, config.DefaultPageSize, cfg.PageSize)
	assert.Equal(t, config.SourceShards, cfg.Source.Kind)
	assert.Equal(t, "task_usage", cfg.Source.Table)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "cpu_rate", cfg.Database.ValueColumn)
	assert.Equal(t, "file", cfg.Artifact.Backend)
	assert.Equal(t, "none", cfg.Artifact.Compression)
	assert.Equal(t, "cpu_usage", cfg.Artifact.Dataset)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Debug)

	w, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, 41761, w.Len())
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	content := `output: out.hlds
resolution: 300000000
debug: true
checkpoint:
  import: done.txt
  export: done-new.txt
source:
  kind: database
database:
  driver: sqlite3
  dsn: file:trace.db
artifact:
  backend: badger
  compression: lz4
telemetry:
  metrics_addr: ":9464"
`

	cfg, err := config.LoadConfig(writeConfig(t, content), nil)
	require.NoError(t, err)

	assert.Equal(t, "out.hlds", cfg.Output)
	assert.Equal(t, int64(300000000), cfg.Resolution)
	assert.True(t, cfg.Debug)
	assert.Equal(t, config.CheckpointConfig{Import: "done.txt", Export: "done-new.txt"}, cfg.Checkpoint)
	assert.Equal(t, config.SourceDatabase, cfg.Source.Kind)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "badger", cfg.Artifact.Backend)
	assert.Equal(t, "lz4", cfg.Artifact.Compression)
	assert.Equal(t, ":9464", cfg.Telemetry.MetricsAddr)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "resolution: [unclosed"), nil)
	require.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("HOSTLOAD_ARTIFACT_BACKEND", "badger")
	t.Setenv("HOSTLOAD_RESOLUTION", "1000")

	cfg, err := config.LoadConfig(writeConfig(t, "artifact:\n  backend: file\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Artifact.Backend)
	assert.Equal(t, int64(1000), cfg.Resolution)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.Int64("resolution", config.DefaultResolution, "")
	flags.String("source-glob", "", "")
	flags.Bool("debug", false, "")
	flags.Int("page-size", config.DefaultPageSize, "")
	flags.String("database-value-column", "", "")

	require.NoError(t, flags.Parse([]string{
		"--source-glob", "data/*.csv.gz",
		"--page-size", "10",
		"--database-value-column", "mean_cpu",
	}))

	cfg, err := config.LoadConfig(writeConfig(t, "resolution: 5\nsource:\n  glob: other/*.csv\n"), flags)
	require.NoError(t, err)

	assert.Equal(t, int64(5), cfg.Resolution, "unchanged flag keeps file value")
	assert.Equal(t, "data/*.csv.gz", cfg.Source.Glob)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, "mean_cpu", cfg.Database.ValueColumn)
}

func TestFlagName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "page-size", config.FlagName("page_size"))
	assert.Equal(t, "checkpoint-import", config.FlagName("checkpoint.import"))
	assert.Equal(t, "telemetry-otlp-endpoint", config.FlagName("telemetry.otlp_endpoint"))
}

func validConfig() config.Config {
	return config.Config{
		Output:     "out.hlds",
		Resolution: config.DefaultResolution,
		Start:      config.DefaultStart,
		End:        config.DefaultEnd,
		PageSize:   config.DefaultPageSize,
		Source:     config.SourceConfig{Kind: config.SourceShards, Glob: "*.csv.gz"},
		Database:   config.DatabaseConfig{Driver: "postgres", DSN: "postgres://localhost/trace"},
		Artifact:   config.ArtifactConfig{Backend: "file", Compression: "none", Dataset: "cpu_usage"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "no output", mutate: func(c *config.Config) { c.Output = "" }, wantErr: config.ErrNoOutput},
		{name: "zero resolution", mutate: func(c *config.Config) { c.Resolution = 0 }, wantErr: bucket.ErrInvalidWindow},
		{name: "empty window", mutate: func(c *config.Config) { c.End = c.Start }, wantErr: bucket.ErrInvalidWindow},
		{
			name:    "overflowing window",
			mutate:  func(c *config.Config) { c.Start, c.End, c.Resolution = -5e18, 5e18, 1e18 },
			wantErr: bucket.ErrInvalidWindow,
		},
		{name: "unknown source", mutate: func(c *config.Config) { c.Source.Kind = "kafka" }, wantErr: config.ErrInvalidSource},
		{name: "no shard pattern", mutate: func(c *config.Config) { c.Source.Glob = "" }, wantErr: config.ErrNoShardPattern},
		{
			name:   "schema instead of glob",
			mutate: func(c *config.Config) { c.Source.Glob, c.Source.Schema = "", "schema.csv" },
		},
		{
			name:    "database page size",
			mutate:  func(c *config.Config) { c.Source.Kind, c.PageSize = config.SourceDatabase, 0 },
			wantErr: config.ErrInvalidPageSize,
		},
		{
			name:    "database driver",
			mutate:  func(c *config.Config) { c.Source.Kind, c.Database.Driver = config.SourceDatabase, "mysql" },
			wantErr: config.ErrInvalidDriver,
		},
		{
			name:    "database dsn",
			mutate:  func(c *config.Config) { c.Source.Kind, c.Database.DSN = config.SourceDatabase, "" },
			wantErr: config.ErrNoDSN,
		},
		{name: "backend", mutate: func(c *config.Config) { c.Artifact.Backend = "hdf5" }, wantErr: config.ErrInvalidBackend},
		{
			name:    "compression",
			mutate:  func(c *config.Config) { c.Artifact.Compression = "zstd" },
			wantErr: config.ErrInvalidCompressor,
		},
		{name: "dataset", mutate: func(c *config.Config) { c.Artifact.Dataset = "" }, wantErr: config.ErrNoDataset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
