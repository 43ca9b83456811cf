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

package stats

import (
	"sort"

	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/dataset"
)

// ConditionStat is one contributing condition's aggregate over the filter.
type ConditionStat struct {
	Group      string `json:"group"`
	Condition  string `json:"condition"`
	Mentions   int64  `json:"mentions"`
	Deaths     int64  `json:"deaths"`
	Suppressed bool   `json:"suppressed,omitempty"` // counts below CDC's publication cutoff arrive empty
}

// ConditionGroupShare aggregates one condition group's mentions.
type ConditionGroupShare struct {
	Group           string  `json:"group"`
	Mentions        int64   `json:"mentions"`
	PercentOfDeaths float64 `json:"percent_of_deaths"`
}

// ComorbiditySummary is the comorbidity attribution for deaths involving
// COVID-19.
type ComorbiditySummary struct {
	Jurisdiction             string                `json:"jurisdiction"`
	AgeGroup                 string                `json:"age_group"`
	CovidDeaths              int64                 `json:"covid_deaths"`
	TotalMentions            int64                 `json:"total_mentions"`
	MeanAdditionalConditions float64               `json:"mean_additional_conditions"`
	SuppressedConditions     int                   `json:"suppressed_conditions"`
	Conditions               []ConditionStat       `json:"conditions"`
	Groups                   []ConditionGroupShare `json:"groups"`
}

// ComorbidityColumns names the columns of a contributing-conditions table.
type ComorbidityColumns struct {
	State          string
	Group          string // reporting period grouping: "By Total", "By Year", "By Month"
	ConditionGroup string
	Condition      string
	AgeGroup       string
	Deaths         string
	Mentions       string
}

// ConditionsColumns matches the NCHS contributing conditions dataset.
func ConditionsColumns() ComorbidityColumns {
	return ComorbidityColumns{
		State:          "State",
		Group:          "Group",
		ConditionGroup: "Condition_Group",
		Condition:      "Condition",
		AgeGroup:       "Age_Group",
		Deaths:         "COVID_19_Deaths",
		Mentions:       "Number_of_Mentions",
	}
}

// ComorbidityFilter selects the rows a summary is computed over.
type ComorbidityFilter struct {
	State    string // e.g. "United States"
	AgeGroup string // e.g. "All Ages"
	Group    string // e.g. "By Total"
}

// covidCondition is the condition row carrying total COVID-19 deaths rather
// than a contributing condition.
const covidCondition = "COVID-19"

// Comorbidity computes condition attribution for COVID-19 deaths.
//
// Within the filtered rows, the COVID-19 condition row supplies the death
// total; every other condition contributes its certificate mentions. The
// mean additional conditions per death is total mentions over COVID-19
// deaths. Suppressed condition rows are listed and counted, not summed.
func Comorbidity(tb *dataset.Table, cols ComorbidityColumns, filter ComorbidityFilter) (*ComorbiditySummary, error) {
	state, err := columnIndex(tb, cols.State)
	if err != nil {
		return nil, err
	}
	group, err := columnIndex(tb, cols.Group)
	if err != nil {
		return nil, err
	}
	condGroup, err := columnIndex(tb, cols.ConditionGroup)
	if err != nil {
		return nil, err
	}
	cond, err := columnIndex(tb, cols.Condition)
	if err != nil {
		return nil, err
	}
	age, err := columnIndex(tb, cols.AgeGroup)
	if err != nil {
		return nil, err
	}
	deaths, err := countColumn(tb, cols.Deaths)
	if err != nil {
		return nil, err
	}
	mentions, err := countColumn(tb, cols.Mentions)
	if err != nil {
		return nil, err
	}

	sum := &ComorbiditySummary{
		Jurisdiction: filter.State,
		AgeGroup:     filter.AgeGroup,
		CovidDeaths:  -1,
	}
	for r := range tb.NumRows() {
		if tb.Value(r, state).String() != filter.State {
			continue
		}
		if filter.AgeGroup != "" && tb.Value(r, age).String() != filter.AgeGroup {
			continue
		}
		if filter.Group != "" && tb.Value(r, group).String() != filter.Group {
			continue
		}

		name := tb.Value(r, cond).String()
		if name == covidCondition {
			dv := tb.Value(r, deaths)
			if dv.IsNull() {
				return nil, errors.Fmt("COVID-19 deaths are suppressed for %q", filter.State)
			}
			if sum.CovidDeaths >= 0 {
				return nil, errors.Fmt("multiple COVID-19 rows match the filter in %s", tb.Name)
			}
			sum.CovidDeaths = countValue(dv)
			continue
		}

		dv, mv := tb.Value(r, deaths), tb.Value(r, mentions)
		cs := ConditionStat{
			Group:      tb.Value(r, condGroup).String(),
			Condition:  name,
			Suppressed: mv.IsNull(),
		}
		if !mv.IsNull() {
			cs.Mentions = countValue(mv)
		}
		if !dv.IsNull() {
			cs.Deaths = countValue(dv)
		}
		sum.Conditions = append(sum.Conditions, cs)
	}

	if sum.CovidDeaths < 0 {
		return nil, errors.Fmt("no COVID-19 row matches the filter in %s", tb.Name)
	}
	if len(sum.Conditions) == 0 {
		return nil, errors.Fmt("no contributing condition rows match the filter in %s", tb.Name)
	}

	groups := map[string]int64{}
	for _, c := range sum.Conditions {
		if c.Suppressed {
			sum.SuppressedConditions++
			continue
		}
		sum.TotalMentions += c.Mentions
		groups[c.Group] += c.Mentions
	}
	if sum.CovidDeaths > 0 {
		sum.MeanAdditionalConditions = float64(sum.TotalMentions) / float64(sum.CovidDeaths)
	}

	for g, m := range groups {
		share := ConditionGroupShare{Group: g, Mentions: m}
		if sum.CovidDeaths > 0 {
			share.PercentOfDeaths = 100 * float64(m) / float64(sum.CovidDeaths)
		}
		sum.Groups = append(sum.Groups, share)
	}
	sort.Slice(sum.Groups, func(i, j int) bool {
		if sum.Groups[i].Mentions != sum.Groups[j].Mentions {
			return sum.Groups[i].Mentions > sum.Groups[j].Mentions
		}
		return sum.Groups[i].Group < sum.Groups[j].Group
	})
	sort.Slice(sum.Conditions, func(i, j int) bool {
		if sum.Conditions[i].Mentions != sum.Conditions[j].Mentions {
			return sum.Conditions[i].Mentions > sum.Conditions[j].Mentions
		}
		return sum.Conditions[i].Condition < sum.Conditions[j].Condition
	})
	return sum, nil
}
