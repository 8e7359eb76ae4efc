// Package schema describes the column layout of delimited shard files and
// resolves the columns that carry an interval's value, start and end.
package schema

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Type is a column format as listed in the cluster-data schema.
type Type string

// Known column types.
const (
	TypeInteger             Type = "INTEGER"
	TypeFloat               Type = "FLOAT"
	TypeBoolean             Type = "BOOLEAN"
	TypeStringHash          Type = "STRING_HASH"
	TypeStringHashOrInteger Type = "STRING_HASH_OR_INTEGER"
)

var knownTypes = []Type{TypeInteger, TypeFloat, TypeBoolean, TypeStringHash, TypeStringHashOrInteger}

// Sentinel errors for descriptor validation.
var (
	// ErrNoColumns indicates a descriptor without columns.
	ErrNoColumns = errors.New("descriptor has no columns")
	// ErrColumnIndex indicates duplicate or non-contiguous column indices.
	ErrColumnIndex = errors.New("column indices must be unique and contiguous from 0")
	// ErrDuplicateName indicates two columns sharing a name.
	ErrDuplicateName = errors.New("duplicate column name")
	// ErrUnknownType indicates a column type outside the known set.
	ErrUnknownType = errors.New("unknown column type")
	// ErrUnknownRole indicates an interval role naming a missing column.
	ErrUnknownRole = errors.New("interval role names unknown column")
	// ErrRoleType indicates an interval role bound to a non-numeric column.
	ErrRoleType = errors.New("interval role has unsupported type")
	// ErrDocument indicates a descriptor document that fails structural validation.
	ErrDocument = errors.New("invalid descriptor document")
	// ErrUnknownTable indicates a table missing from a cluster schema file.
	ErrUnknownTable = errors.New("table not found in schema")
)

// Column is one field of a shard row.
type Column struct {
	Name      string `yaml:"name"`
	Index     int    `yaml:"index"`
	Type      Type   `yaml:"type"`
	Mandatory bool   `yaml:"mandatory"`
}

// Roles names the columns holding an interval's value, start and end.
type Roles struct {
	Value string `yaml:"value"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// DefaultRoles are the task_usage columns aggregated into host load.
var DefaultRoles = Roles{Value: "cpu_rate", Start: "start_time", End: "end_time"}

// Descriptor is the validated layout of one table's shard files.
type Descriptor struct {
	Table    string   `yaml:"table"`
	Pattern  string   `yaml:"pattern"`
	Columns  []Column `yaml:"columns"`
	Interval Roles    `yaml:"interval"`
}

// Mapping holds the zero-based field positions of the interval columns and
// the number of fields every row must have.
type Mapping struct {
	Value int
	Start int
	End   int
	Width int
	// OptionalValue is set when the value column is not mandatory; rows with
	// an empty value are then dropped instead of failing the shard.
	OptionalValue bool
}

// TaskUsageMapping is the layout of the 2011 cluster trace task_usage
// shards, used when shards are globbed without a descriptor.
var TaskUsageMapping = Mapping{Value: 5, Start: 0, End: 1, Width: 20, OptionalValue: true}

// Validate checks column indices, names, types and interval roles.
func (d *Descriptor) Validate() error {
	if len(d.Columns) == 0 {
		return ErrNoColumns
	}

	indices := make([]int, 0, len(d.Columns))
	names := make(map[string]struct{}, len(d.Columns))

	for _, col := range d.Columns {
		if !slices.Contains(knownTypes, col.Type) {
			return fmt.Errorf("%w: column %q has type %q", ErrUnknownType, col.Name, col.Type)
		}

		key := NormalizeName(col.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, col.Name)
		}

		names[key] = struct{}{}
		indices = append(indices, col.Index)
	}

	slices.Sort(indices)

	for i, idx := range indices {
		if idx != i {
			return fmt.Errorf("%w: got %v", ErrColumnIndex, indices)
		}
	}

	_, err := d.Mapping()

	return err
}

// Mapping resolves the interval roles to field positions.
func (d *Descriptor) Mapping() (Mapping, error) {
	value, err := d.role("value", d.Interval.Value, TypeFloat, TypeInteger)
	if err != nil {
		return Mapping{}, err
	}

	start, err := d.role("start", d.Interval.Start, TypeInteger)
	if err != nil {
		return Mapping{}, err
	}

	end, err := d.role("end", d.Interval.End, TypeInteger)
	if err != nil {
		return Mapping{}, err
	}

	return Mapping{
		Value:         value.Index,
		Start:         start.Index,
		End:           end.Index,
		Width:         len(d.Columns),
		OptionalValue: !value.Mandatory,
	}, nil
}

// Column returns the column with the given (normalized) name.
func (d *Descriptor) Column(name string) (Column, bool) {
	key := NormalizeName(name)

	for _, col := range d.Columns {
		if NormalizeName(col.Name) == key {
			return col, true
		}
	}

	return Column{}, false
}

// Glob returns the shard glob pattern rooted at root.
func (d *Descriptor) Glob(root string) string {
	return filepath.Join(root, filepath.FromSlash(d.Pattern))
}

func (d *Descriptor) role(role, name string, allowed ...Type) (Column, error) {
	col, ok := d.Column(name)
	if !ok {
		return Column{}, fmt.Errorf("%w: %s=%q", ErrUnknownRole, role, name)
	}

	if !slices.Contains(allowed, col.Type) {
		return Column{}, fmt.Errorf("%w: %s column %q is %s", ErrRoleType, role, col.Name, col.Type)
	}

	return col, nil
}

// NormalizeName folds a column description to the identifier used for
// lookups: lower case, spaces as underscores, slashes dropped.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "/", "")

	return strings.Join(strings.Fields(name), "_")
}
