// Package config provides configuration loading and validation for hostload.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
)

// Source kinds.
const (
	SourceShards   = "shards"
	SourceDatabase = "database"
)

// configName is the file looked up in the working and home directories.
const configName = ".hostload"

// envPrefix prefixes every environment override, e.g. HOSTLOAD_ARTIFACT_BACKEND.
const envPrefix = "HOSTLOAD"

// Sentinel validation errors.
var (
	ErrNoOutput          = errors.New("output path is required")
	ErrInvalidPageSize   = errors.New("page size must be positive")
	ErrInvalidSource     = errors.New("invalid source kind")
	ErrNoShardPattern    = errors.New("shard source needs source.glob or source.schema")
	ErrInvalidDriver     = errors.New("invalid database driver")
	ErrNoDSN             = errors.New("database source needs database.dsn")
	ErrInvalidBackend    = errors.New("invalid artifact backend")
	ErrInvalidCompressor = errors.New("invalid artifact compression")
	ErrNoDataset         = errors.New("artifact dataset name is required")
)

var (
	validDrivers     = []string{"postgres", "sqlite3", "clickhouse"}
	validBackends    = []string{"file", "badger"}
	validCompression = []string{"none", "lz4"}
)

// Config holds all configuration for a hostload run.
type Config struct {
	Output     string `mapstructure:"output"`
	Resolution int64  `mapstructure:"resolution"`
	Start      int64  `mapstructure:"start"`
	End        int64  `mapstructure:"end"`
	PageSize   int    `mapstructure:"page_size"`
	Debug      bool   `mapstructure:"debug"`

	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Source     SourceConfig     `mapstructure:"source"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Artifact   ArtifactConfig   `mapstructure:"artifact"`
	Log        LogConfig        `mapstructure:"log"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// CheckpointConfig holds the checkpoint log paths.
type CheckpointConfig struct {
	Import string `mapstructure:"import"`
	Export string `mapstructure:"export"`
}

// SourceConfig selects where intervals come from.
type SourceConfig struct {
	Kind string `mapstructure:"kind"`
	// Glob matches shard files directly.
	Glob string `mapstructure:"glob"`
	// Schema is a YAML descriptor or cluster-data schema.csv.
	Schema string `mapstructure:"schema"`
	// Table selects the table within a schema.csv.
	Table string `mapstructure:"table"`
	// Root is the directory the descriptor's shard pattern is relative to.
	Root string `mapstructure:"root"`
}

// DatabaseConfig holds the database source connection.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	ValueColumn string `mapstructure:"value_column"`
	StartColumn string `mapstructure:"start_column"`
	EndColumn   string `mapstructure:"end_column"`
}

// ArtifactConfig selects the output storage.
type ArtifactConfig struct {
	Backend     string `mapstructure:"backend"`
	Compression string `mapstructure:"compression"`
	Dataset     string `mapstructure:"dataset"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	OTLPHeaders  string `mapstructure:"otlp_headers"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

// LoadConfig loads configuration from defaults, an optional YAML file,
// HOSTLOAD_* environment variables and changed flags, in increasing
// precedence. An empty configPath searches for .hostload.yaml in the
// working directory, then $HOME; a missing file there is not an error.
// flags maps config keys to flags named by FlagName.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")

		home, homeErr := os.UserHomeDir()
		if homeErr == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	bindErr := bindFlags(viperCfg, flags)
	if bindErr != nil {
		return nil, bindErr
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("output", "")
	viperCfg.SetDefault("resolution", DefaultResolution)
	viperCfg.SetDefault("start", DefaultStart)
	viperCfg.SetDefault("end", DefaultEnd)
	viperCfg.SetDefault("page_size", DefaultPageSize)
	viperCfg.SetDefault("debug", false)

	viperCfg.SetDefault("checkpoint.import", "")
	viperCfg.SetDefault("checkpoint.export", "")

	viperCfg.SetDefault("source.kind", DefaultSourceKind)
	viperCfg.SetDefault("source.glob", "")
	viperCfg.SetDefault("source.schema", "")
	viperCfg.SetDefault("source.table", DefaultTable)
	viperCfg.SetDefault("source.root", DefaultSourceRoot)

	viperCfg.SetDefault("database.driver", DefaultDriver)
	viperCfg.SetDefault("database.dsn", "")
	viperCfg.SetDefault("database.table", DefaultTable)
	viperCfg.SetDefault("database.value_column", DefaultValueColumn)
	viperCfg.SetDefault("database.start_column", DefaultStartColumn)
	viperCfg.SetDefault("database.end_column", DefaultEndColumn)

	viperCfg.SetDefault("artifact.backend", DefaultBackend)
	viperCfg.SetDefault("artifact.compression", DefaultCompression)
	viperCfg.SetDefault("artifact.dataset", DefaultDataset)

	viperCfg.SetDefault("log.level", DefaultLogLevel)
	viperCfg.SetDefault("log.json", DefaultLogJSON)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.metrics_addr", "")
}

var flagNames = strings.NewReplacer(".", "-", "_", "-")

// FlagName returns the flag bound to a config key: "database.value_column"
// is read from --database-value-column.
func FlagName(key string) string {
	return flagNames.Replace(key)
}

// bindFlags binds every flag named after a known key. Unchanged flags do not
// override lower layers.
func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	for _, key := range viperCfg.AllKeys() {
		flag := flags.Lookup(FlagName(key))
		if flag == nil || !flag.Changed {
			continue
		}

		err := viperCfg.BindPFlag(key, flag)
		if err != nil {
			return fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	return nil
}

// Window returns the analysis window.
func (c *Config) Window() (bucket.Window, error) {
	return bucket.NewWindow(c.Start, c.End, c.Resolution)
}

// Validate checks the configuration for a run.
func (c *Config) Validate() error {
	if c.Output == "" {
		return ErrNoOutput
	}

	_, err := c.Window()
	if err != nil {
		return err
	}

	switch c.Source.Kind {
	case SourceShards:
		if c.Source.Glob == "" && c.Source.Schema == "" {
			return ErrNoShardPattern
		}
	case SourceDatabase:
		if c.PageSize <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidPageSize, c.PageSize)
		}

		if !slices.Contains(validDrivers, c.Database.Driver) {
			return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Database.Driver)
		}

		if c.Database.DSN == "" {
			return ErrNoDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSource, c.Source.Kind)
	}

	if !slices.Contains(validBackends, c.Artifact.Backend) {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Artifact.Backend)
	}

	if !slices.Contains(validCompression, c.Artifact.Compression) {
		return fmt.Errorf("%w: %q", ErrInvalidCompressor, c.Artifact.Compression)
	}

	if c.Artifact.Dataset == "" {
		return ErrNoDataset
	}

	return nil
}
