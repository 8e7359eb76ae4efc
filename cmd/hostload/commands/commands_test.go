package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
	"github.com/Sumatoshi-tech/hostload/pkg/checkpoint"
	"github.com/Sumatoshi-tech/hostload/pkg/config"
	"github.com/Sumatoshi-tech/hostload/pkg/runner"
)

const descriptorYAML = `table: task_usage
pattern: shards/part-*.csv
columns:
  - {name: start_time, index: 0, type: INTEGER, mandatory: true}
  - {name: end_time, index: 1, type: INTEGER, mandatory: true}
  - {name: job_id, index: 2, type: INTEGER, mandatory: true}
  - {name: task_index, index: 3, type: INTEGER, mandatory: true}
  - {name: machine_id, index: 4, type: INTEGER, mandatory: true}
  - {name: cpu_rate, index: 5, type: FLOAT}
interval:
  value: cpu_rate
  start: start_time
  end: end_time
`

// taskUsageRow builds a 20-field task_usage row.
func taskUsageRow(start, end int, rate string) string {
	fields := make([]string, 20)
	for i := range fields {
		fields[i] = "0"
	}

	fields[0] = strconv.Itoa(start)
	fields[1] = strconv.Itoa(end)
	fields[5] = rate

	return strings.Join(fields, ",") + "\n"
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// execute runs the command tree with an explicit config file so no
// .hostload.yaml from the environment is picked up.
func execute(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()

	cfgPath := filepath.Join(dir, "hostload.yaml")
	if _, err := os.Stat(cfgPath); err != nil {
		writeFile(t, cfgPath, "log:\n  level: warn\n")
	}

	if len(args) > 0 && args[0] == "run" {
		args = append(args, "--config", cfgPath)
	}

	var stdout, stderr bytes.Buffer

	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func loadValues(t *testing.T, path string, w bucket.Window) []float64 {
	t.Helper()

	m, err := artifact.NewFileStore(path, artifact.CompressionNone).Load(context.Background(), config.DefaultDataset)
	require.NoError(t, err)

	values, err := artifact.SeriesValues(m, w)
	require.NoError(t, err)

	return values
}

func unitWindow(t *testing.T) bucket.Window {
	t.Helper()

	w, err := bucket.NewWindow(0, 5, 1)
	require.NoError(t, err)

	return w
}

func TestRunCommand_GlobShards(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "part-00000.csv"), taskUsageRow(0, 5, "10"))

	out := filepath.Join(dir, "out.hlds")
	logPath := filepath.Join(dir, "applied.log")
	reportPath := filepath.Join(dir, "report.json")

	stdout, _, err := execute(t, dir, "run", out,
		"--source-glob", filepath.Join(dir, "part-*.csv"),
		"--start", "0", "--end", "5", "-r", "1",
		"-e", logPath,
		"--report", reportPath)
	require.NoError(t, err)

	assert.Contains(t, stdout, "COMPLETED")
	assert.Contains(t, stdout, "1 applied, 0 skipped")
	assert.Equal(t, []float64{10, 10, 10, 10, 10}, loadValues(t, out, unitWindow(t)))

	applied, _, err := checkpoint.ReadLog(logPath)
	require.NoError(t, err)
	assert.Contains(t, applied, filepath.Join(dir, "part-00000.csv"))

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var rep RunReport

	require.NoError(t, json.Unmarshal(data, &rep))
	assert.Equal(t, runner.StateCompleted, rep.State)
	assert.Equal(t, out, rep.Output)
	assert.Equal(t, 5, rep.Summary.Buckets)
	assert.InDelta(t, 10.0, rep.Summary.Mean, 1e-12)
	assert.NotEmpty(t, rep.RunID)
}

func TestRunCommand_DescriptorDebugThenResume(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "task_usage.yaml"), descriptorYAML)
	writeFile(t, filepath.Join(dir, "shards", "part-00000.csv"), "0,2,1,0,7,4\n")
	writeFile(t, filepath.Join(dir, "shards", "part-00001.csv"), "2,5,1,1,7,2\n")

	out := filepath.Join(dir, "out.hlds")
	logPath := filepath.Join(dir, "applied.log")
	args := []string{
		"run", out,
		"--source-schema", filepath.Join(dir, "task_usage.yaml"),
		"--source-root", dir,
		"--start", "0", "--end", "5", "--resolution", "1",
		"--import-file", logPath,
	}

	stdout, _, err := execute(t, dir, append(args, "--debug")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "STOPPED_DEBUG")

	applied, _, err := checkpoint.ReadLog(logPath)
	require.NoError(t, err)
	assert.Len(t, applied, 1)

	stdout, _, err = execute(t, dir, args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "COMPLETED")
	assert.Contains(t, stdout, "1 applied, 1 skipped")
	assert.Contains(t, stdout, "resumed")

	assert.Equal(t, []float64{4, 4, 2, 2, 2}, loadValues(t, out, unitWindow(t)))
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, _, err := execute(t, dir, "run", filepath.Join(dir, "out.hlds"))
	require.ErrorIs(t, err, config.ErrNoShardPattern)

	_, _, err = execute(t, dir, "run", filepath.Join(dir, "out.hlds"),
		"--source-glob", "*.csv", "--artifact-backend", "hdf5")
	require.ErrorIs(t, err, config.ErrInvalidBackend)
}

func TestRunCommand_DatabaseSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "out.hlds")

	_, _, err := execute(t, dir, "run", out,
		"--source-kind", "database",
		"--database-driver", "sqlite3",
		"--database-dsn", filepath.Join(dir, "missing", "trace.db"))
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func saveSeries(t *testing.T, path string, values ...float64) {
	t.Helper()

	w, err := bucket.NewWindow(0, int64(len(values)), 1)
	require.NoError(t, err)

	m, err := artifact.NewSeries(config.DefaultDataset, w, values)
	require.NoError(t, err)

	require.NoError(t, artifact.NewFileStore(path, artifact.CompressionLZ4).Save(context.Background(), m))
}

func TestDumpCommand_CSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.hlds")
	saveSeries(t, path, 1.5, 0, 2)

	stdout, _, err := execute(t, dir, "dump", path, "--format", "csv")
	require.NoError(t, err)

	assert.Equal(t, "start,value\n0,1.5\n1,0\n2,2\n", stdout)
}

func TestDumpCommand_PlotToFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.hlds")
	plotPath := filepath.Join(dir, "plot.html")
	saveSeries(t, path, 1, 2)

	_, _, err := execute(t, dir, "dump", path, "-f", "plot", "-o", plotPath, "--title", "cell a")
	require.NoError(t, err)

	data, err := os.ReadFile(plotPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>cell a</title>")
}

func TestDumpCommand_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.hlds")

	_, _, err := execute(t, dir, "dump", path)
	require.ErrorIs(t, err, artifact.ErrNotFound)

	saveSeries(t, path, 1)

	_, _, err = execute(t, dir, "dump", path, "--dataset", "memory_usage")
	require.ErrorIs(t, err, artifact.ErrNotFound)

	_, _, err = execute(t, dir, "dump", path, "--backend", "hdf5")
	require.ErrorIs(t, err, artifact.ErrUnknownBackend)
}

func TestSchemaCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "task_usage.yaml")
	writeFile(t, path, descriptorYAML)

	stdout, _, err := execute(t, dir, "schema", path, "--root", "/data")
	require.NoError(t, err)

	assert.Contains(t, stdout, "table task_usage")
	assert.Contains(t, stdout, "mapping: value=5 start=0 end=1 width=6")
	assert.Contains(t, stdout, "shards: /data/shards/part-*.csv")
	assert.Contains(t, stdout, "cpu_rate")
}

func TestSchemaCommand_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	writeFile(t, path, "table: task_usage\ncolumns: []\n")

	_, _, err := execute(t, dir, "schema", path)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "hostload "))
}
