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

package study

import (
	"context"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/stats"
)

// Cleaned column names of the NCHS weekly deaths datasets.
const (
	allCauseColumn = "All_Cause"
	covidColumn    = "COVID_19_U071_Underlying_Cause_of_Death"
)

// Aggregate row selectors of the NCHS by-age and by-condition datasets.
const (
	byTotal  = "By Total"
	allAges  = "All Ages"
	allSexes = "All Sexes"
)

// Tables carries the parsed datasets a study run reads, keyed by role.
// Conditions and Age may be nil when the study leaves those bindings out.
type Tables struct {
	Weekly         *dataset.Table
	WeeklyBaseline *dataset.Table
	Conditions     *dataset.Table
	Age            *dataset.Table
}

// Results holds everything one study run recomputed.
type Results struct {
	Study        string                    `json:"study"`
	Jurisdiction string                    `json:"jurisdiction"`
	ComputedAt   time.Time                 `json:"computed_at"`
	Excess       *stats.ExcessSummary      `json:"excess"`
	Covid        *CauseTotal               `json:"covid"`
	Comorbidity  *stats.ComorbiditySummary `json:"comorbidity"`
	AgeAdjusted  *stats.AdjustedRate       `json:"age_adjusted"`
}

// CauseTotal is a plain death total over the study window for one cause.
type CauseTotal struct {
	Cause           string `json:"cause"`
	Total           int64  `json:"total"`
	SuppressedWeeks int    `json:"suppressed_weeks,omitempty"`
}

// Compute recomputes every statistic the study's datasets allow. The study
// must come from Load or Parse.
//
// Excess mortality is always computed. The COVID-19 death total needs the
// weekly table to carry the underlying-cause column, comorbidity needs the
// conditions table, and age adjustment needs both the age table and a
// population block; a missing input leaves the matching Results field nil.
func Compute(ctx context.Context, s *Study, tables Tables) (*Results, error) {
	if tables.Weekly == nil || tables.WeeklyBaseline == nil {
		return nil, errors.New("the weekly and weekly_baseline tables are required")
	}
	from, to := s.Window.Weeks()

	res := &Results{
		Study:        s.Meta.Name,
		Jurisdiction: s.Meta.Jurisdiction,
		ComputedAt:   clock.Now(ctx).UTC(),
	}

	yr := s.Baseline.Range()
	logging.Infof(ctx, "Fitting %s baseline for %q over %d-%d", s.Baseline.Method, s.Meta.Jurisdiction, yr[0], yr[1])
	history, err := stats.SeriesFromTable(tables.WeeklyBaseline, stats.WeeklyDeathsColumns(allCauseColumn), s.Meta.Jurisdiction)
	if err != nil {
		return nil, errors.Fmt("reading the baseline series: %w", err)
	}
	baseline, err := stats.FitBaseline([]*stats.Series{history}, s.Baseline.Method, yr)
	if err != nil {
		return nil, err
	}

	obs, err := stats.SeriesFromTable(tables.Weekly, stats.WeeklyDeathsColumns(allCauseColumn), s.Meta.Jurisdiction)
	if err != nil {
		return nil, errors.Fmt("reading the observed series: %w", err)
	}
	windowed := obs.Window(from, to)
	if len(windowed.Points) == 0 {
		return nil, errors.Fmt("the window %s..%s selects no weeks of %s", from, to, tables.Weekly.Name)
	}
	if res.Excess, err = stats.ComputeExcess(windowed, baseline, s.Interval.Level); err != nil {
		return nil, err
	}
	logging.Infof(ctx, "Excess deaths over %s..%s: %.0f (observed %d, expected %.0f)",
		from, to, res.Excess.TotalExcess, res.Excess.TotalObserved, res.Excess.TotalExpected)

	if tables.Weekly.Column(covidColumn) >= 0 {
		covid, err := stats.SeriesFromTable(tables.Weekly, stats.WeeklyDeathsColumns(covidColumn), s.Meta.Jurisdiction)
		if err != nil {
			return nil, errors.Fmt("reading the COVID-19 series: %w", err)
		}
		res.Covid = totalOf(covid.Window(from, to))
	} else {
		logging.Warningf(ctx, "Table %s has no %s column, skipping the COVID-19 total", tables.Weekly.Name, covidColumn)
	}

	if tables.Conditions != nil {
		res.Comorbidity, err = stats.Comorbidity(tables.Conditions, stats.ConditionsColumns(), stats.ComorbidityFilter{
			State:    s.Meta.Jurisdiction,
			AgeGroup: allAges,
			Group:    byTotal,
		})
		if err != nil {
			return nil, errors.Fmt("attributing comorbidities: %w", err)
		}
	}

	if tables.Age != nil && len(s.Population) > 0 {
		pop := make(map[string]int64, len(s.Population))
		for _, b := range s.Population {
			pop[b.Band] = b.Population
		}
		groups, err := stats.AgeDeathsFromTable(tables.Age, stats.AgeSexColumns(), stats.AgeFilter{
			State: s.Meta.Jurisdiction,
			Group: byTotal,
			Sex:   allSexes,
		}, pop)
		if err != nil {
			return nil, errors.Fmt("reading age band deaths: %w", err)
		}
		if res.AgeAdjusted, err = stats.AgeAdjust(groups, s.Interval.Level); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func totalOf(s *stats.Series) *CauseTotal {
	t := &CauseTotal{Cause: s.Cause}
	for _, p := range s.Points {
		if p.Suppressed {
			t.SuppressedWeeks++
			continue
		}
		t.Total += p.Count
	}
	return t
}
