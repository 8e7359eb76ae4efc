// Package main generates JSON schemas for the documents hostload writes.
package main

import (
	"encoding"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/hostload/cmd/hostload/commands"
	"github.com/Sumatoshi-tech/hostload/pkg/persist"
	"github.com/Sumatoshi-tech/hostload/pkg/runner"
)

const schemaPerm = 0o644

// Schema represents a JSON Schema.
type Schema struct {
	Schema      string             `json:"$schema,omitempty"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Type        string             `json:"type,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Definitions map[string]*Schema `json:"definitions,omitempty"`
}

var textMarshaler = reflect.TypeFor[encoding.TextMarshaler]()

// enums lists the values of text-encoded enumerations.
var enums = map[reflect.Type][]string{
	reflect.TypeFor[runner.State](): {
		runner.StateInit.String(),
		runner.StateRunning.String(),
		runner.StateCompleted.String(),
		runner.StateStoppedDebug.String(),
		runner.StateFailed.String(),
	},
}

// documents maps schema file names to the types they describe.
var documents = map[string]struct {
	title string
	value any
}{
	"run_report": {"hostload run report", commands.RunReport{}},
}

func main() {
	outputDir := flag.String("o", "docs/schemas", "Output directory for schemas")
	flag.Parse()

	err := os.MkdirAll(*outputDir, 0o755)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(documents))
	for name := range documents {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		doc := documents[name]

		err = writeSchema(filepath.Join(*outputDir, name+".json"), generateSchema(doc.title, doc.value))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing schema for %s: %v\n", name, err)
			os.Exit(1)
		}

		fmt.Printf("Generated schema for %s\n", name)
	}
}

func generateSchema(title string, v any) *Schema {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	defs := make(map[string]*Schema)
	props, required := structToProperties(t, defs)

	schema := &Schema{
		Schema:     "https://json-schema.org/draft-07/schema#",
		Title:      title,
		Type:       "object",
		Properties: props,
		Required:   required,
	}

	if len(defs) > 0 {
		schema.Definitions = defs
	}

	return schema
}

func structToProperties(t reflect.Type, defs map[string]*Schema) (map[string]*Schema, []string) {
	props := make(map[string]*Schema)

	var required []string

	for i := range t.NumField() {
		field := t.Field(i)
		jsonTag := field.Tag.Get("json")

		if field.Anonymous && jsonTag == "" {
			embedded := field.Type
			if embedded.Kind() == reflect.Ptr {
				embedded = embedded.Elem()
			}

			embeddedProps, embeddedRequired := structToProperties(embedded, defs)
			for name, prop := range embeddedProps {
				props[name] = prop
			}

			required = append(required, embeddedRequired...)

			continue
		}

		if jsonTag == "-" || jsonTag == "" || !field.IsExported() {
			continue
		}

		jsonName, opts, _ := strings.Cut(jsonTag, ",")
		props[jsonName] = typeToSchema(field.Type, defs)

		if opts != "omitempty" {
			required = append(required, jsonName)
		}
	}

	sort.Strings(required)

	return props, required
}

func typeToSchema(t reflect.Type, defs map[string]*Schema) *Schema {
	if values, ok := enums[t]; ok {
		return &Schema{Type: "string", Enum: values}
	}

	if t == reflect.TypeFor[time.Time]() {
		return &Schema{Type: "string", Description: "RFC 3339 timestamp"}
	}

	if t.Implements(textMarshaler) {
		return &Schema{Type: "string"}
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if t == reflect.TypeFor[time.Duration]() {
			return &Schema{Type: "integer", Description: "Duration in nanoseconds"}
		}

		return &Schema{Type: "integer"}

	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}

	case reflect.Bool:
		return &Schema{Type: "boolean"}

	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: typeToSchema(t.Elem(), defs)}

	case reflect.Map:
		return &Schema{Type: "object"}

	case reflect.Struct:
		defName := t.Name()
		if defName == "" {
			props, required := structToProperties(t, defs)

			return &Schema{Type: "object", Properties: props, Required: required}
		}

		if _, exists := defs[defName]; !exists {
			props, required := structToProperties(t, defs)
			defs[defName] = &Schema{Type: "object", Properties: props, Required: required}
		}

		return &Schema{Ref: "#/definitions/" + defName}

	case reflect.Ptr:
		return typeToSchema(t.Elem(), defs)

	default:
		return &Schema{Type: "object"}
	}
}

func writeSchema(path string, schema *Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	return persist.WriteFileAtomic(path, schemaPerm, func(w io.Writer) error {
		_, writeErr := w.Write(append(data, '\n'))

		return writeErr
	})
}
