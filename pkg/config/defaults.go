package config

// Window defaults in microseconds. The end is one past the last
// task_usage timestamp of the 2011 cluster trace.
const (
	DefaultResolution int64 = 60_000_000
	DefaultStart      int64 = 600_000_000
	DefaultEnd        int64 = 2_506_200_000_001
)

// Source defaults.
const (
	DefaultPageSize   = 100_000
	DefaultSourceKind = SourceShards
	DefaultTable      = "task_usage"
	DefaultSourceRoot = "."
)

// Database column defaults.
const (
	DefaultDriver      = "postgres"
	DefaultValueColumn = "cpu_rate"
	DefaultStartColumn = "start_time"
	DefaultEndColumn   = "end_time"
)

// Artifact defaults.
const (
	DefaultBackend     = "file"
	DefaultCompression = "none"
	DefaultDataset     = "cpu_usage"
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)
