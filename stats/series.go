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

// Package stats recomputes the mortality statistics a study reproduces:
// weekly excess mortality against a pre-pandemic baseline, directly
// age-standardized death rates, and comorbidity attribution.
package stats

import (
	"math"
	"sort"

	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/mmwr"
)

// WeeklyCount is one week's death count.
//
// CDC withholds counts between 1 and 9; such cells arrive empty and are
// marked Suppressed rather than silently treated as zero.
type WeeklyCount struct {
	Week       mmwr.Week
	Count      int64
	Suppressed bool
}

// Series is a weekly death-count series for one jurisdiction and cause,
// sorted by week.
type Series struct {
	Jurisdiction string
	Cause        string
	Points       []WeeklyCount
}

// TableColumns names the columns a weekly series is extracted from.
//
// Count is the cause column, e.g. "All_Cause" or
// "COVID_19_U071_Underlying_Cause_of_Death". Ending is optional; when set,
// each row's week ending date is checked against the MMWR calendar.
type TableColumns struct {
	Jurisdiction string
	Year         string
	Week         string
	Count        string
	Ending       string
}

// WeeklyDeathsColumns matches the NCHS weekly deaths datasets.
func WeeklyDeathsColumns(cause string) TableColumns {
	return TableColumns{
		Jurisdiction: "Jurisdiction_of_Occurrence",
		Year:         "MMWR_Year",
		Week:         "MMWR_Week",
		Count:        cause,
		Ending:       "Week_Ending_Date",
	}
}

func columnIndex(tb *dataset.Table, name string) (int, error) {
	if name == "" {
		return -1, errors.New("column name is empty")
	}
	if i := tb.Column(name); i >= 0 {
		return i, nil
	}
	return -1, errors.Fmt("table %s has no column %q", tb.Name, name)
}

// countColumn resolves a death or mention count column, rejecting columns
// whose inferred kind is not numeric. A column that is all suppressed cells
// parses as String and is accepted, since every read of it is a null.
func countColumn(tb *dataset.Table, name string) (int, error) {
	i, err := columnIndex(tb, name)
	if err != nil {
		return -1, err
	}
	switch k := tb.Columns[i].Kind; k {
	case dataset.Int, dataset.Float:
	case dataset.String:
		for r := range tb.NumRows() {
			if !tb.Value(r, i).IsNull() {
				return -1, errors.Fmt("column %q is not numeric", name)
			}
		}
	default:
		return -1, errors.Fmt("column %q is not numeric", name)
	}
	return i, nil
}

// countValue rounds a cell of a countColumn-checked column to a whole count.
func countValue(v dataset.Value) int64 { return int64(math.Round(v.Float())) }

// SeriesFromTable extracts one jurisdiction's weekly series from a parsed
// table.
//
// Suppressed cells become Suppressed points. Duplicate weeks, invalid MMWR
// weeks and week ending dates that contradict the MMWR calendar are errors.
func SeriesFromTable(tb *dataset.Table, cols TableColumns, jurisdiction string) (*Series, error) {
	jur, err := columnIndex(tb, cols.Jurisdiction)
	if err != nil {
		return nil, err
	}
	year, err := columnIndex(tb, cols.Year)
	if err != nil {
		return nil, err
	}
	week, err := columnIndex(tb, cols.Week)
	if err != nil {
		return nil, err
	}
	count, err := countColumn(tb, cols.Count)
	if err != nil {
		return nil, err
	}
	ending := -1
	if cols.Ending != "" {
		if ending, err = columnIndex(tb, cols.Ending); err != nil {
			return nil, err
		}
		// An all-empty ending column parses as String and skips the check.
		if k := tb.Columns[ending].Kind; k != dataset.Date {
			for r := range tb.NumRows() {
				if !tb.Value(r, ending).IsNull() {
					return nil, errors.Fmt("column %q is %s, not a date", cols.Ending, k)
				}
			}
		}
	}

	s := &Series{Jurisdiction: jurisdiction, Cause: cols.Count}
	seen := map[mmwr.Week]struct{}{}
	for r := range tb.NumRows() {
		if tb.Value(r, jur).String() != jurisdiction {
			continue
		}
		yv, wv := tb.Value(r, year), tb.Value(r, week)
		if yv.IsNull() || wv.IsNull() {
			return nil, errors.Fmt("row %d of %s has no MMWR year or week", r, tb.Name)
		}
		w := mmwr.Week{Year: int(yv.Int()), Week: int(wv.Int())}
		if !w.Valid() {
			return nil, errors.Fmt("row %d of %s: invalid MMWR week %s", r, tb.Name, w)
		}
		if _, dup := seen[w]; dup {
			return nil, errors.Fmt("duplicate week %s for jurisdiction %q", w, jurisdiction)
		}
		seen[w] = struct{}{}
		if ending >= 0 {
			if ev := tb.Value(r, ending); !ev.IsNull() && !ev.Date().Equal(w.Ending()) {
				return nil, errors.Fmt("row %d of %s: week ending %s does not match week %s (ends %s)",
					r, tb.Name, ev, w, w.Ending().Format("2006-01-02"))
			}
		}
		cv := tb.Value(r, count)
		s.Points = append(s.Points, WeeklyCount{
			Week:       w,
			Count:      countValue(cv),
			Suppressed: cv.IsNull(),
		})
	}
	if len(s.Points) == 0 {
		return nil, errors.Fmt("table %s has no rows for jurisdiction %q", tb.Name, jurisdiction)
	}
	sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Week.Before(s.Points[j].Week) })
	return s, nil
}

// Window returns the sub-series covering [from, to], inclusive.
func (s *Series) Window(from, to mmwr.Week) *Series {
	out := &Series{Jurisdiction: s.Jurisdiction, Cause: s.Cause}
	for _, p := range s.Points {
		if !p.Week.Before(from) && !to.Before(p.Week) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}
