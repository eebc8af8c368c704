package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// IDColumn is the column every table row is identified by.
const IDColumn = "id"

// Row is an ordered column -> value mapping.
// Column lookups are case-insensitive; the stored spelling is kept for display.
type Row struct {
	cols   []string
	values map[string]Value
}

// NewRow builds a row from parallel column/value slices.
func NewRow(cols []string, vals []Value) Row {
	r := Row{
		cols:   make([]string, 0, len(cols)),
		values: make(map[string]Value, len(cols)),
	}
	for i, c := range cols {
		var v Value
		if i < len(vals) {
			v = vals[i]
		}
		r.Set(c, v)
	}
	return r
}

func key(col string) string { return strings.ToLower(strings.TrimSpace(col)) }

// Get returns the value for col and whether the column exists.
func (r Row) Get(col string) (Value, bool) {
	v, ok := r.values[key(col)]
	return v, ok
}

// Set adds or overwrites col, appending new columns at the end.
func (r *Row) Set(col string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	k := key(col)
	if _, ok := r.values[k]; !ok {
		r.cols = append(r.cols, strings.TrimSpace(col))
	}
	r.values[k] = Normalize(v)
}

// Columns returns the column names in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// ID returns the row identifier, if the row has a numeric id column.
func (r Row) ID() (int64, bool) {
	v, ok := r.Get(IDColumn)
	if !ok {
		return 0, false
	}
	f, ok := Number(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Clone returns a deep copy; values are scalars so copying the map is enough.
func (r Row) Clone() Row {
	out := Row{
		cols:   r.Columns(),
		values: make(map[string]Value, len(r.values)),
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// MarshalJSON writes the row as a JSON object preserving column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[key(c)])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, keeping key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: row must be a JSON object")
	}

	*r = Row{values: make(map[string]Value)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		col, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: bad row key %v", tok)
		}

		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch x := tok.(type) {
		case nil:
			r.Set(col, nil)
		case string:
			r.Set(col, x)
		case json.Number:
			if i, err := x.Int64(); err == nil {
				r.Set(col, i)
				continue
			}
			f, err := x.Float64()
			if err != nil {
				return fmt.Errorf("record: bad number for %s: %w", col, err)
			}
			r.Set(col, f)
		case bool:
			r.Set(col, fmt.Sprintf("%t", x))
		default:
			return fmt.Errorf("record: column %s must hold a scalar", col)
		}
	}

	_, err = dec.Token()
	return err
}
