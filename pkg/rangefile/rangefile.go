// Package rangefile loads explicit stratigraphic range definitions from JSON.
package rangefile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// ErrSchema is returned when a range file does not match the schema.
var ErrSchema = errors.New("range file does not match schema")

//go:embed ranges-schema.json
var schemaJSON []byte

type document struct {
	Ranges []entry `json:"ranges"`
}

type entry struct {
	Name  string `json:"name"`
	First string `json:"first"`
	Last  string `json:"last,omitempty"`
}

// Parse validates data against the schema and returns its range definitions in file order.
func Parse(data []byte) ([]srtree.RangeDef, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.Field()+": "+verr.Description())
		}

		return nil, fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}

	var doc document

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("decode ranges: %w", err)
	}

	defs := make([]srtree.RangeDef, 0, len(doc.Ranges))
	for _, e := range doc.Ranges {
		defs = append(defs, srtree.RangeDef{Name: e.Name, First: e.First, Last: e.Last})
	}

	return defs, nil
}

// Load reads and parses a range file.
func Load(path string) ([]srtree.RangeDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read range file: %w", err)
	}

	return Parse(data)
}

// Marshal renders definitions in the file format.
func Marshal(defs []srtree.RangeDef) ([]byte, error) {
	doc := document{Ranges: make([]entry, 0, len(defs))}
	for _, d := range defs {
		doc.Ranges = append(doc.Ranges, entry(d))
	}

	return json.MarshalIndent(doc, "", "  ")
}
