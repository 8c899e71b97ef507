package sqlpatch

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// fixtureFile is the YAML shape of a row-set fixture.
type fixtureFile struct {
	Cols      []string         `yaml:"cols"`
	Rows      [][]any          `yaml:"rows"`
	NamedRows []map[string]any `yaml:"named_rows"`
}

// LoadFixture reads a row-set fixture from a YAML file. The file declares
// columns (with optional "name::type" hints) and either positional rows or
// name-keyed rows:
//
//	cols: [id, name, created_at::timestamptz]
//	rows:
//	  - [1, alice, "2024-01-01T00:00:00+00:00"]
//	named_rows:
//	  - id: 2
//	    name: bob
func LoadFixture(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var f fixtureFile
	if err := yaml.UnmarshalWithOptions(raw, &f, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file %s: %w", path, err)
	}
	if len(f.Rows) > 0 && len(f.NamedRows) > 0 {
		return nil, fmt.Errorf("%w: fixture %s mixes positional and named rows", ErrColumnMismatch, path)
	}
	return &Data{Cols: f.Cols, Rows: f.Rows, NamedRows: f.NamedRows}, nil
}
