// Copyright 2026 The Open Mortality Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dataset models CDC Socrata datasets as typed columnar tables.
//
// A table is parsed from a CSV export. Headings are cleaned into identifier
// form, every column gets a Kind inferred from its cells, and empty cells
// become nulls. The registry in this package lists the CDC datasets the
// reproduction studies draw from.
package dataset

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"go.chromium.org/luci/common/errors"
)

// Kind is the inferred type of a table column.
type Kind int

// Column kinds, in widening order for numeric ones.
const (
	String Kind = iota // the fallback kind, also used for all-null columns
	Int
	Float
	Date
)

// String returns the lowercase kind name used in schemas and errors.
func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Date:
		return "date"
	default:
		return "string"
	}
}

// isoDate is how dates appear in table JSON output.
const isoDate = "2006-01-02"

// Value is one nullable table cell.
//
// The zero Value is a null of kind String.
type Value struct {
	kind Kind
	null bool
	i    int64
	f    float64
	t    time.Time
	s    string
}

// Kind returns the kind of the cell's column.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the cell was empty in the source CSV.
func (v Value) IsNull() bool { return v.null }

// Int returns the integer value. Zero for nulls and non-int cells.
func (v Value) Int() int64 { return v.i }

// Float returns the numeric value, widening Int cells. Zero for nulls and
// non-numeric cells.
func (v Value) Float() float64 {
	if v.kind == Int {
		return float64(v.i)
	}
	return v.f
}

// Date returns the date at UTC midnight. Zero for nulls and non-date cells.
func (v Value) Date() time.Time { return v.t }

// String renders the value the way it would appear in a CSV cell: nulls are
// empty, dates are ISO, strings are verbatim.
func (v Value) String() string {
	switch {
	case v.null:
		return ""
	case v.kind == Int:
		return strconv.FormatInt(v.i, 10)
	case v.kind == Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case v.kind == Date:
		return v.t.Format(isoDate)
	default:
		return v.s
	}
}

// Equal reports whether two values have the same kind, nullness and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.null != o.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.kind {
	case Int:
		return v.i == o.i
	case Float:
		return v.f == o.f
	case Date:
		return v.t.Equal(o.t)
	default:
		return v.s == o.s
	}
}

// MarshalJSON encodes nulls as JSON null and dates as "2006-01-02" strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.null:
		return []byte("null"), nil
	case v.kind == Int:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case v.kind == Float:
		return json.Marshal(v.f)
	case v.kind == Date:
		return json.Marshal(v.t.Format(isoDate))
	default:
		return json.Marshal(v.s)
	}
}

func nullValue(k Kind) Value      { return Value{kind: k, null: true} }
func intValue(i int64) Value      { return Value{kind: Int, i: i} }
func floatValue(f float64) Value  { return Value{kind: Float, f: f} }
func dateValue(t time.Time) Value { return Value{kind: Date, t: t} }
func strValue(s string) Value     { return Value{kind: String, s: s} }

// Column describes one table column.
type Column struct {
	Name string // cleaned heading, see CleanHeading
	Raw  string // heading exactly as it appeared in the CSV
	Kind Kind
}

// Table is a typed columnar view of one CSV export.
type Table struct {
	Name    string
	Columns []Column

	byName map[string]int
	rows   [][]Value
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.rows) }

// Column returns the index of the column with the given cleaned name, or -1.
func (t *Table) Column(name string) int {
	if i, ok := t.byName[name]; ok {
		return i
	}
	return -1
}

// Value returns the cell at the given row and column indexes.
func (t *Table) Value(row, col int) Value { return t.rows[row][col] }

// Row returns the row as a Record keyed by cleaned column name.
func (t *Table) Row(i int) Record { return Record{t: t, row: i} }

// Rows returns all rows as Records.
func (t *Table) Rows() []Record {
	out := make([]Record, len(t.rows))
	for i := range t.rows {
		out[i] = Record{t: t, row: i}
	}
	return out
}

// MarshalJSON encodes the table as its schema plus rows in column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	cols := make([]map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = map[string]string{"name": c.Name, "kind": c.Kind.String()}
	}
	return json.Marshal(map[string]any{
		"name":    t.Name,
		"columns": cols,
		"rows":    t.rows,
	})
}

// Record is one table row addressed by cleaned column names.
type Record struct {
	t   *Table
	row int
}

// Get returns the named cell.
func (r Record) Get(name string) (Value, bool) {
	i, ok := r.t.byName[name]
	if !ok {
		return Value{}, false
	}
	return r.t.rows[r.row][i], true
}

// MarshalJSON encodes the record as an object with fields in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.t.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := r.t.rows[r.row][i].MarshalJSON()
		if err != nil {
			return nil, errors.Fmt("marshaling column %q: %w", c.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
