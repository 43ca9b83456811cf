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

package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"
)

// CleanHeading turns a raw CSV heading into identifier form.
//
// Parentheses, commas, hyphens and spaces become underscores, runs of
// underscores collapse to one, and trailing underscores are stripped. For
// example "COVID-19 (U071, Multiple Cause of Death)" becomes
// "COVID_19_U071_Multiple_Cause_of_Death".
func CleanHeading(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	prev := false
	for _, r := range raw {
		switch r {
		case '(', ')', ',', '-', ' ':
			r = '_'
		}
		if r == '_' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), "_")
}

// cleanHeadings cleans every heading and disambiguates collisions.
//
// A heading that cleans to the empty string becomes field_<n>. A cleaned
// name already taken by an earlier column gets a _2, _3, ... suffix.
func cleanHeadings(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, len(raw))
	for i, h := range raw {
		name := CleanHeading(h)
		if name == "" {
			name = fmt.Sprintf("field_%d", i+1)
		}
		if _, dup := seen[name]; dup {
			for n := 2; ; n++ {
				cand := fmt.Sprintf("%s_%d", name, n)
				if _, dup := seen[cand]; !dup {
					name = cand
					break
				}
			}
		}
		seen[name] = struct{}{}
		out[i] = name
	}
	return out
}

// delimiters considered by the sniffer, in preference order.
var delimiters = []rune{',', ';', '\t'}

// sniffDelimiter picks the delimiter that splits the header line into the
// most fields. Ties go to the earlier candidate, so a plain one-column
// header sniffs as comma.
func sniffDelimiter(header string) rune {
	best, bestFields := delimiters[0], 1
	for _, d := range delimiters {
		r := csv.NewReader(strings.NewReader(header))
		r.Comma = d
		fields, err := r.Read()
		if err == nil && len(fields) > bestFields {
			best, bestFields = d, len(fields)
		}
	}
	return best
}

// detectKind infers the kind of one non-empty cell: int, then float, then
// ISO date, then string. Numeric and date parses ignore surrounding spaces.
func detectKind(cell string) Kind {
	s := strings.TrimSpace(cell)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return Float
	}
	if _, ok := parseDate(s); ok {
		return Date
	}
	return String
}

// parseDate accepts the ISO date and datetime forms CDC exports use and
// keeps only the date part.
func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(isoDate, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// mergeKinds reconciles a column's running kind with a new cell's kind.
// Int widens to Float; any other disagreement is an error.
func mergeKinds(col string, prev, next Kind) (Kind, error) {
	if prev == next {
		return prev, nil
	}
	if (prev == Int && next == Float) || (prev == Float && next == Int) {
		return Float, nil
	}
	return 0, errors.Fmt("column %q has mismatching types: %s vs %s", col, prev, next)
}

// convert turns a raw cell into a Value of the column's settled kind.
func convert(col string, cell string, k Kind) (Value, error) {
	if cell == "" {
		return nullValue(k), nil
	}
	s := strings.TrimSpace(cell)
	switch k {
	case Int:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, errors.Fmt("column %q: parsing %q as int: %w", col, cell, err)
		}
		return intValue(i), nil
	case Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, errors.Fmt("column %q: parsing %q as float: %w", col, cell, err)
		}
		return floatValue(f), nil
	case Date:
		t, ok := parseDate(s)
		if !ok {
			return Value{}, errors.Fmt("column %q: parsing %q as date", col, cell)
		}
		return dateValue(t), nil
	default:
		return strValue(cell), nil
	}
}

// Parse reads one CSV export into a typed table.
//
// The delimiter is sniffed from the header line. Column kinds are inferred
// over all rows: every non-empty cell of a column must parse as the same
// kind, except that int cells widen to float. A column with no non-empty
// cells is a string column. Empty cells become nulls. Rows with a field
// count different from the header are an error.
func Parse(name string, r io.Reader) (*Table, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Fmt("reading CSV body: %w", err)
	}

	var header string
	for rest := string(blob); rest != ""; {
		line := rest
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i+1], rest[i+1:]
		} else {
			rest = ""
		}
		if strings.TrimSpace(line) != "" {
			header = line
			break
		}
	}
	if header == "" {
		return nil, errors.New("empty CSV input, no header row")
	}

	cr := csv.NewReader(strings.NewReader(string(blob)))
	cr.Comma = sniffDelimiter(header)
	raw, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Fmt("parsing CSV: %w", err)
	}

	names := cleanHeadings(raw[0])
	body := raw[1:]

	kinds := make([]Kind, len(names))
	voted := make([]bool, len(names))
	for _, row := range body {
		for i, cell := range row {
			if cell == "" {
				continue
			}
			k := detectKind(cell)
			if !voted[i] {
				kinds[i], voted[i] = k, true
				continue
			}
			if kinds[i], err = mergeKinds(names[i], kinds[i], k); err != nil {
				return nil, err
			}
		}
	}

	tb := &Table{
		Name:    name,
		Columns: make([]Column, len(names)),
		byName:  make(map[string]int, len(names)),
		rows:    make([][]Value, 0, len(body)),
	}
	for i, n := range names {
		tb.Columns[i] = Column{Name: n, Raw: raw[0][i], Kind: kinds[i]}
		tb.byName[n] = i
	}
	for _, row := range body {
		vals := make([]Value, len(row))
		for i, cell := range row {
			if vals[i], err = convert(names[i], cell, kinds[i]); err != nil {
				return nil, err
			}
		}
		tb.rows = append(tb.rows, vals)
	}
	return tb, nil
}
