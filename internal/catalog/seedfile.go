package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tuannm99/sqlmission/internal/record"
)

// seedFile is the on-disk dataset layout:
//
//	tables:
//	  - name: users
//	    columns: [id, name, age]
//	    rows:
//	      - [1, Alice, 28]
type seedFile struct {
	Tables []struct {
		Name    string   `yaml:"name"`
		Columns []string `yaml:"columns"`
		Rows    [][]any  `yaml:"rows"`
	} `yaml:"tables"`
}

// LoadSeedFile reads a replacement dataset from a YAML file.
func LoadSeedFile(path string) (*TableSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(b)
}

// ParseSeed decodes and validates a YAML dataset.
func ParseSeed(b []byte) (*TableSet, error) {
	var sf seedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(sf.Tables) == 0 {
		return nil, fmt.Errorf("seed: no tables defined")
	}

	ts := NewTableSet()
	for _, st := range sf.Tables {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return nil, fmt.Errorf("seed: table without name")
		}
		if _, dup := ts.Table(name); dup {
			return nil, fmt.Errorf("seed: duplicate table %q", name)
		}

		t := &Table{Name: name, Columns: st.Columns}
		if !t.HasColumn(record.IDColumn) {
			return nil, fmt.Errorf("seed: table %q has no %s column", name, record.IDColumn)
		}

		seen := make(map[int64]struct{}, len(st.Rows))
		for i, vals := range st.Rows {
			if len(vals) != len(st.Columns) {
				return nil, fmt.Errorf("seed: table %q row %d has %d values, want %d",
					name, i, len(vals), len(st.Columns))
			}
			for j, v := range vals {
				cv, err := seedValue(v)
				if err != nil {
					return nil, fmt.Errorf("seed: table %q row %d column %s: %w", name, i, st.Columns[j], err)
				}
				vals[j] = cv
			}

			r := record.NewRow(st.Columns, vals)
			id, ok := r.ID()
			if !ok {
				return nil, fmt.Errorf("seed: table %q row %d has a non-numeric id", name, i)
			}
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("seed: table %q has duplicate id %d", name, id)
			}
			seen[id] = struct{}{}
			t.Append(r)
		}
		ts.Put(t)
	}
	return ts, nil
}

func seedValue(v any) (record.Value, error) {
	switch x := v.(type) {
	case nil, string, int, int64, float64:
		return record.Normalize(x), nil
	case bool:
		return fmt.Sprintf("%t", x), nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
