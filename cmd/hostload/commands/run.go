package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/hostload/internal/store"
	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
	"github.com/Sumatoshi-tech/hostload/pkg/checkpoint"
	"github.com/Sumatoshi-tech/hostload/pkg/config"
	"github.com/Sumatoshi-tech/hostload/pkg/interval"
	"github.com/Sumatoshi-tech/hostload/pkg/observability"
	"github.com/Sumatoshi-tech/hostload/pkg/persist"
	"github.com/Sumatoshi-tech/hostload/pkg/report"
	"github.com/Sumatoshi-tech/hostload/pkg/runner"
	"github.com/Sumatoshi-tech/hostload/pkg/schema"
	"github.com/Sumatoshi-tech/hostload/pkg/version"
)

// flagAliases keeps the historical checkpoint flag names working.
var flagAliases = map[string]string{
	"import-file": "checkpoint-import",
	"export-file": "checkpoint-export",
}

// RunCommand holds the flags of the run command that are not config keys.
type RunCommand struct {
	configPath string
	reportPath string
	verbose    bool
}

// RunReport is the JSON or YAML document written by --report.
type RunReport struct {
	runner.Result `yaml:",inline"`

	Output  string         `json:"output" yaml:"output"`
	Summary report.Summary `json:"summary" yaml:"summary"`
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run [output]",
		Short: "Aggregate intervals into a time series artifact",
		Long: `Aggregate rate intervals into fixed-resolution buckets.

Shards listed in the checkpoint log are skipped; every other shard is applied,
flushed to the artifact and then appended to the log, so an interrupted run
resumes where it stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: rc.run,
	}

	flags := cmd.Flags()
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if alias, ok := flagAliases[name]; ok {
			name = alias
		}

		return pflag.NormalizedName(name)
	})

	flags.StringVar(&rc.configPath, "config", "", "Config file (default: .hostload.yaml in . or $HOME)")
	flags.StringVar(&rc.reportPath, "report", "", "Write a run report (.json, .yaml)")
	flags.BoolVarP(&rc.verbose, "verbose", "v", false, "Log at debug level")

	flags.Int64P("resolution", "r", config.DefaultResolution, "Bucket width in source time units")
	flags.Int64("start", config.DefaultStart, "Analysis window start")
	flags.Int64("end", config.DefaultEnd, "Analysis window end (exclusive)")
	flags.Int("page-size", config.DefaultPageSize, "Rows per database page")
	flags.BoolP("debug", "d", false, "Stop after the first applied chunk")

	flags.StringP("checkpoint-import", "i", "", "Checkpoint log of already applied shards (alias --import-file)")
	flags.StringP("checkpoint-export", "e", "", "Checkpoint log receiving applied shards (alias --export-file)")

	flags.String("source-kind", config.DefaultSourceKind, "Interval source: shards or database")
	flags.String("source-glob", "", "Shard file glob")
	flags.String("source-schema", "", "Schema descriptor (.yaml) or cluster-data schema.csv")
	flags.String("source-table", config.DefaultTable, "Table within schema.csv")
	flags.String("source-root", config.DefaultSourceRoot, "Directory the descriptor pattern is relative to")

	flags.String("database-driver", config.DefaultDriver, "Database driver: postgres, sqlite3, clickhouse")
	flags.String("database-dsn", "", "Database connection string")
	flags.String("database-table", config.DefaultTable, "Interval table")
	flags.String("database-value-column", config.DefaultValueColumn, "Rate column")
	flags.String("database-start-column", config.DefaultStartColumn, "Interval start column")
	flags.String("database-end-column", config.DefaultEndColumn, "Interval end column")

	flags.String("artifact-backend", config.DefaultBackend, "Artifact backend: file or badger")
	flags.String("artifact-compression", config.DefaultCompression, "Artifact compression: none or lz4")
	flags.String("artifact-dataset", config.DefaultDataset, "Dataset name")

	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.Bool("log-json", config.DefaultLogJSON, "Log as JSON")

	flags.String("telemetry-otlp-endpoint", "", "OTLP gRPC collector address")
	flags.Bool("telemetry-otlp-insecure", false, "Disable TLS for OTLP")
	flags.String("telemetry-otlp-headers", "", "OTLP headers as k1=v1,k2=v2")
	flags.String("telemetry-metrics-addr", "", "Serve /metrics and /healthz on this address")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) (err error) {
	cfg, err := config.LoadConfig(rc.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	if len(args) > 0 {
		cfg.Output = args[0]
	}

	if rc.verbose {
		cfg.Log.Level = "debug"
	}

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	providers, err := observability.Init(observabilityConfig(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		err = errors.Join(err, providers.Shutdown(context.Background()))
	}()

	logger := providers.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if providers.MetricsHandler != nil {
		server, serveErr := observability.StartServer(cfg.Telemetry.MetricsAddr,
			observability.NewRouter(providers.Tracer, providers.MetricsHandler), logger)
		if serveErr != nil {
			return serveErr
		}

		defer func() {
			err = errors.Join(err, server.Shutdown(context.Background()))
		}()
	}

	metrics, err := observability.NewRunMetrics(providers.Meter)
	if err != nil {
		return err
	}

	res, err := rc.execute(ctx, cfg, providers, metrics)
	if res != nil {
		printSummary(cmd.OutOrStdout(), cfg.Output, res)

		reportErr := rc.writeReport(cfg, res)
		if reportErr != nil {
			logger.ErrorContext(ctx, "write run report", "path", rc.reportPath, "error", reportErr)
			err = errors.Join(err, reportErr)
		}
	}

	return err
}

func (rc *RunCommand) execute(
	ctx context.Context,
	cfg *config.Config,
	providers observability.Providers,
	metrics *observability.RunMetrics,
) (*runner.Result, error) {
	logger := providers.Logger

	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}

	var (
		src         interval.Source
		checkpoints runner.Checkpoints
	)

	switch cfg.Source.Kind {
	case config.SourceDatabase:
		if cfg.Checkpoint.Import != "" || cfg.Checkpoint.Export != "" {
			logger.WarnContext(ctx, "checkpoint logs are ignored for the database source")
		}

		querier, openErr := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, store.Columns{
			Table: cfg.Database.Table,
			Value: cfg.Database.ValueColumn,
			Start: cfg.Database.StartColumn,
			End:   cfg.Database.EndColumn,
		})
		if openErr != nil {
			return nil, openErr
		}

		defer querier.Close()

		src, err = interval.NewDatabaseSource(ctx, querier, window, cfg.PageSize)
		if err != nil {
			return nil, err
		}
	default:
		shards, shardErr := openShards(cfg)
		if shardErr != nil {
			return nil, shardErr
		}

		cpStore, cpErr := checkpoint.Open(checkpoint.Options{
			ImportPath: cfg.Checkpoint.Import,
			ExportPath: cfg.Checkpoint.Export,
			Logger:     logger,
		})
		if cpErr != nil {
			return nil, cpErr
		}

		defer cpStore.Close()

		logger.InfoContext(ctx, "shards found",
			"shards", len(shards.paths),
			"already_applied", cpStore.Imported())

		src = interval.NewShardSource(shards.paths, shards.mapping)
		checkpoints = cpStore
	}

	artifacts, err := artifact.Open(cfg.Artifact.Backend, cfg.Output, artifact.Options{
		Compression: artifact.Compression(cfg.Artifact.Compression),
		Logger:      logger,
	})
	if err != nil {
		return nil, errors.Join(err, src.Close())
	}

	run, err := runner.New(runner.Options{
		Window:      window,
		Dataset:     cfg.Artifact.Dataset,
		Source:      src,
		Store:       artifacts,
		Checkpoints: checkpoints,
		Debug:       cfg.Debug,
		Logger:      logger,
		Tracer:      providers.Tracer,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, errors.Join(err, src.Close(), artifacts.Close())
	}

	logger.InfoContext(ctx, "starting run",
		"source", cfg.Source.Kind,
		"output", cfg.Output,
		"backend", cfg.Artifact.Backend,
		"buckets", window.Len())

	return run.Run(ctx)
}

type shardSet struct {
	paths   []string
	mapping schema.Mapping
}

// openShards resolves the shard list and column mapping. A descriptor gives
// the mapping and, without an explicit glob, the shard pattern.
func openShards(cfg *config.Config) (shardSet, error) {
	set := shardSet{mapping: schema.TaskUsageMapping}
	pattern := cfg.Source.Glob

	if cfg.Source.Schema != "" {
		desc, err := schema.LoadFile(cfg.Source.Schema, cfg.Source.Table)
		if err != nil {
			return shardSet{}, err
		}

		set.mapping, err = desc.Mapping()
		if err != nil {
			return shardSet{}, err
		}

		if pattern == "" {
			pattern = desc.Glob(cfg.Source.Root)
		}
	}

	paths, err := interval.GlobShards(pattern)
	if err != nil {
		return shardSet{}, err
	}

	set.paths = paths

	return set, nil
}

func observabilityConfig(cfg *config.Config, logOutput io.Writer) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.Mode = observability.ModeRun
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = os.Getenv("HOSTLOAD_ENV")
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.MetricsAddr = cfg.Telemetry.MetricsAddr
	obsCfg.DebugTrace = cfg.Debug
	obsCfg.LogLevel = observability.ParseLevel(cfg.Log.Level)
	obsCfg.LogJSON = cfg.Log.JSON
	obsCfg.LogOutput = logOutput

	if obsCfg.LogLevel == slog.LevelDebug {
		obsCfg.DebugTrace = true
	}

	return obsCfg
}

func (rc *RunCommand) writeReport(cfg *config.Config, res *runner.Result) error {
	if rc.reportPath == "" {
		return nil
	}

	rep := RunReport{Result: *res, Output: cfg.Output}

	window, err := cfg.Window()
	if err != nil {
		return err
	}

	if len(res.Values) == window.Len() {
		m, seriesErr := artifact.NewSeries(cfg.Artifact.Dataset, window, res.Values)
		if seriesErr != nil {
			return seriesErr
		}

		rep.Summary = report.Summarize(m)
	}

	return persist.NewPersister[RunReport]().Save(rc.reportPath, &rep)
}
