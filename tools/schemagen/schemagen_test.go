package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hostload/cmd/hostload/commands"
)

func TestGenerateSchema_RunReport(t *testing.T) {
	t.Parallel()

	schema := generateSchema("hostload run report", commands.RunReport{})

	require.Contains(t, schema.Properties, "run_id")
	require.Contains(t, schema.Properties, "summary")
	assert.NotContains(t, schema.Properties, "Values")

	assert.Equal(t, "string", schema.Properties["state"].Type)
	assert.Contains(t, schema.Properties["state"].Enum, "STOPPED_DEBUG")
	assert.Equal(t, "string", schema.Properties["started"].Type)
	assert.Equal(t, "#/definitions/Summary", schema.Properties["summary"].Ref)
	assert.Contains(t, schema.Definitions, "Summary")

	assert.Contains(t, schema.Required, "output")
	assert.NotContains(t, schema.Required, "error")
}

func TestWriteSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run_report.json")

	require.NoError(t, writeSchema(path, generateSchema("report", commands.RunReport{})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "report", decoded["title"])
}
