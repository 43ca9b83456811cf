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
	"fmt"
	"strings"
	"testing"

	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/mmwr"
)

const computeStudy = `
study: {name: tiny, jurisdiction: United States}
window: {from: 2020-02-01, to: 2020-02-29}
baseline: {method: average, years: [2015, 2019]}
interval: {level: 0.95}
datasets:
  weekly: weekly-deaths
  weekly_baseline: weekly-deaths-baseline
  conditions: covid-conditions
  age: covid-age-sex
population:
  - {band: "25-34 years", population: 10000}
  - {band: "65-74 years", population: 10000}
`

const computeConditionsCSV = `Group,State,Condition Group,Condition,Age Group,COVID-19 Deaths,Number of Mentions
By Total,United States,Respiratory diseases,Influenza and pneumonia,All Ages,45,49
By Total,United States,COVID-19,COVID-19,All Ages,100,100
`

const computeAgeCSV = `Group,State,Sex,Age Group,COVID-19 Deaths
By Total,United States,All Sexes,25-34 years,5
By Total,United States,All Sexes,65-74 years,20
`

// weeklyCSV covers 2020 weeks 5..9 (endings 2020-02-01 .. 2020-02-29).
// Week 5 runs 130 observed against an expected 100: elevated.
func weeklyCSV() string {
	counts := map[int]int64{5: 130, 6: 100, 7: 100, 8: 100, 9: 90}
	covid := map[int]int64{5: 30}
	var b strings.Builder
	b.WriteString(`Jurisdiction of Occurrence,MMWR Year,MMWR Week,Week Ending Date,All Cause,"COVID-19 (U071, Underlying Cause of Death)"` + "\n")
	for wk := 5; wk <= 9; wk++ {
		w := mmwr.Week{Year: 2020, Week: wk}
		fmt.Fprintf(&b, "United States,2020,%d,%s,%d,%d\n",
			wk, w.Ending().Format("2006-01-02"), counts[wk], covid[wk])
	}
	return b.String()
}

// baselineCSV holds a flat 100 deaths for weeks 5..9 of 2015..2019.
func baselineCSV() string {
	var b strings.Builder
	b.WriteString("Jurisdiction of Occurrence,MMWR Year,MMWR Week,Week Ending Date,All Cause\n")
	for year := 2015; year <= 2019; year++ {
		for wk := 5; wk <= 9; wk++ {
			w := mmwr.Week{Year: year, Week: wk}
			fmt.Fprintf(&b, "United States,%d,%d,%s,100\n", year, wk, w.Ending().Format("2006-01-02"))
		}
	}
	return b.String()
}

func parseTable(t *ftt.Test, name, body string) *dataset.Table {
	tb, err := dataset.Parse(name, strings.NewReader(body))
	assert.Loosely(t, err, should.BeNil)
	return tb
}

func TestCompute(t *testing.T) {
	t.Parallel()

	ftt.Run("Compute", t, func(t *ftt.Test) {
		ctx, _ := testclock.UseTime(context.Background(), testclock.TestRecentTimeUTC)
		s, err := Parse(ctx, "study.yaml", []byte(computeStudy))
		assert.Loosely(t, err, should.BeNil)

		tables := Tables{
			Weekly:         parseTable(t, "weekly-deaths", weeklyCSV()),
			WeeklyBaseline: parseTable(t, "weekly-deaths-baseline", baselineCSV()),
			Conditions:     parseTable(t, "covid-conditions", computeConditionsCSV),
			Age:            parseTable(t, "covid-age-sex", computeAgeCSV),
		}

		t.Run("Full pipeline", func(t *ftt.Test) {
			res, err := Compute(ctx, s, tables)
			assert.Loosely(t, err, should.BeNil)

			assert.Loosely(t, res.Study, should.Equal("tiny"))
			assert.Loosely(t, res.Jurisdiction, should.Equal("United States"))
			assert.Loosely(t, res.ComputedAt, should.Match(testclock.TestRecentTimeUTC))

			assert.Loosely(t, res.Excess.Weeks, should.HaveLength(5))
			assert.Loosely(t, res.Excess.TotalObserved, should.Equal(520))
			assert.Loosely(t, res.Excess.TotalExpected, should.AlmostEqual(500.0))
			assert.Loosely(t, res.Excess.TotalExcess, should.AlmostEqual(20.0))
			assert.Loosely(t, res.Excess.ElevatedWeeks, should.Equal(1))
			assert.Loosely(t, res.Excess.Weeks[0].Week, should.Match(mmwr.Week{Year: 2020, Week: 5}))
			assert.Loosely(t, res.Excess.Weeks[0].Elevated, should.BeTrue)
			assert.Loosely(t, res.Excess.PeakWeek, should.Match(mmwr.Week{Year: 2020, Week: 5}))
			assert.Loosely(t, res.Excess.PeakPercent, should.AlmostEqual(130.0, 1e-9))

			assert.Loosely(t, res.Covid.Cause, should.Equal("COVID_19_U071_Underlying_Cause_of_Death"))
			assert.Loosely(t, res.Covid.Total, should.Equal(30))
			assert.Loosely(t, res.Covid.SuppressedWeeks, should.BeZero)

			assert.Loosely(t, res.Comorbidity.CovidDeaths, should.Equal(100))
			assert.Loosely(t, res.Comorbidity.MeanAdditionalConditions, should.AlmostEqual(0.49))

			assert.Loosely(t, res.AgeAdjusted.Crude, should.AlmostEqual(125.0))
			assert.Loosely(t, res.AgeAdjusted.Adjusted, should.AlmostEqual(99.1322, 1e-3))
		})

		t.Run("Optional tables absent", func(t *ftt.Test) {
			res, err := Compute(ctx, s, Tables{
				Weekly:         tables.Weekly,
				WeeklyBaseline: tables.WeeklyBaseline,
			})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, res.Excess, should.NotBeNil)
			assert.Loosely(t, res.Covid, should.NotBeNil)
			assert.Loosely(t, res.Comorbidity, should.BeNil)
			assert.Loosely(t, res.AgeAdjusted, should.BeNil)
		})

		t.Run("Missing required tables", func(t *ftt.Test) {
			_, err := Compute(ctx, s, Tables{Weekly: tables.Weekly})
			assert.Loosely(t, err, should.ErrLike("required"))
		})

		t.Run("Window outside the weekly table", func(t *ftt.Test) {
			late, err := Parse(ctx, "study.yaml", []byte(`
study: {name: tiny, jurisdiction: United States}
window: {from: 2022-01-02, to: 2022-02-05}
baseline: {years: [2015, 2019]}
datasets: {weekly: weekly-deaths, weekly_baseline: weekly-deaths-baseline}
`))
			assert.Loosely(t, err, should.BeNil)
			_, err = Compute(ctx, late, Tables{Weekly: tables.Weekly, WeeklyBaseline: tables.WeeklyBaseline})
			assert.Loosely(t, err, should.ErrLike("selects no weeks"))
		})

		t.Run("Jurisdiction absent from the tables", func(t *ftt.Test) {
			guam, err := Parse(ctx, "study.yaml", []byte(`
study: {name: tiny, jurisdiction: Guam}
window: {from: 2020-02-01, to: 2020-02-29}
baseline: {years: [2015, 2019]}
datasets: {weekly: weekly-deaths, weekly_baseline: weekly-deaths-baseline}
`))
			assert.Loosely(t, err, should.BeNil)
			_, err = Compute(ctx, guam, Tables{Weekly: tables.Weekly, WeeklyBaseline: tables.WeeklyBaseline})
			assert.Loosely(t, err, should.ErrLike(`no rows for jurisdiction "Guam"`))
		})
	})
}
