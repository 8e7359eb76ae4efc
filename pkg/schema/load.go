package schema

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed descriptor.schema.json
var documentSchema []byte

// clusterHeaderFields is the column count of a cluster-data schema.csv row:
// file pattern, field number, content, format, mandatory.
const clusterHeaderFields = 5

// LoadFile reads a descriptor. Files ending in .csv are read as a cluster-data
// schema.csv and table selects the table; anything else is read as YAML.
func LoadFile(path, table string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ParseClusterCSV(bytes.NewReader(data), table, DefaultRoles)
	}

	return ParseYAML(data)
}

// ParseYAML decodes, structurally checks and validates a YAML descriptor.
func ParseYAML(data []byte) (*Descriptor, error) {
	var doc any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}

	err = checkDocument(doc)
	if err != nil {
		return nil, err
	}

	var desc Descriptor

	err = yaml.Unmarshal(data, &desc)
	if err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}

	err = desc.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate descriptor: %w", err)
	}

	return &desc, nil
}

func checkDocument(doc any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(documentSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDocument, err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrDocument, strings.Join(msgs, "; "))
}

// ParseClusterCSV builds the descriptor of one table from a cluster-data
// schema.csv. Field numbers in that file are 1-based.
func ParseClusterCSV(r io.Reader, table string, roles Roles) (*Descriptor, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = clusterHeaderFields

	_, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read schema header: %w", err)
	}

	desc := &Descriptor{Table: table, Interval: roles}

	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("read schema row: %w", readErr)
		}

		name, pattern, ok := strings.Cut(row[0], "/")
		if !ok || name != table {
			continue
		}

		number, convErr := strconv.Atoi(strings.TrimSpace(row[1]))
		if convErr != nil {
			return nil, fmt.Errorf("field number %q: %w", row[1], convErr)
		}

		desc.Pattern = filepath.ToSlash(filepath.Join(table, pattern))
		desc.Columns = append(desc.Columns, Column{
			Name:      NormalizeName(row[2]),
			Index:     number - 1,
			Type:      Type(strings.TrimSpace(row[3])),
			Mandatory: strings.TrimSpace(row[4]) == "YES",
		})
	}

	if len(desc.Columns) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	err = desc.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate descriptor: %w", err)
	}

	return desc, nil
}
