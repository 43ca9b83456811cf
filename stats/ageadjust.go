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
	"math"

	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/dataset"
)

// AgeBand is one band of the 2000 US standard population.
type AgeBand struct {
	Label  string
	StdPop int64 // the band's share of the standard million
}

// StandardMillion is the 2000 US standard million used for direct age
// standardization, with the NCHS 11-band grouping. The shares sum to
// exactly 1,000,000.
var StandardMillion = []AgeBand{
	{"Under 1 year", 13818},
	{"1-4 years", 55317},
	{"5-14 years", 145565},
	{"15-24 years", 138646},
	{"25-34 years", 135573},
	{"35-44 years", 162613},
	{"45-54 years", 134834},
	{"55-64 years", 87247},
	{"65-74 years", 66037},
	{"75-84 years", 44842},
	{"85 years and over", 15508},
}

// AgeGroupDeaths is the observed deaths and resident population of one age
// band.
type AgeGroupDeaths struct {
	Band       string
	Deaths     int64
	Population int64
}

// AdjustedRate is a mortality rate per 100,000, crude and directly
// standardized to the 2000 US standard population.
type AdjustedRate struct {
	Crude    float64 `json:"crude"`
	Adjusted float64 `json:"adjusted"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	Level    float64 `json:"level"`
}

// AgeAdjust computes crude and age-adjusted death rates per 100,000.
//
// Standard weights are renormalized over the bands actually provided, so a
// subset of bands standardizes against its own share of the standard
// million. The confidence interval is the normal approximation with
// variance sum(w_i^2 * d_i / n_i^2), treating deaths as Poisson.
func AgeAdjust(groups []AgeGroupDeaths, level float64) (*AdjustedRate, error) {
	if len(groups) == 0 {
		return nil, errors.New("no age groups given")
	}
	z, err := zFor(level)
	if err != nil {
		return nil, err
	}

	std := make(map[string]int64, len(StandardMillion))
	for _, b := range StandardMillion {
		std[b.Label] = b.StdPop
	}

	var stdTotal, deaths, population int64
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if _, ok := std[g.Band]; !ok {
			return nil, errors.Fmt("unknown age band %q", g.Band)
		}
		if _, dup := seen[g.Band]; dup {
			return nil, errors.Fmt("age band %q appears twice", g.Band)
		}
		seen[g.Band] = struct{}{}
		if g.Population <= 0 {
			return nil, errors.Fmt("age band %q has population %d", g.Band, g.Population)
		}
		if g.Deaths < 0 {
			return nil, errors.Fmt("age band %q has negative deaths", g.Band)
		}
		stdTotal += std[g.Band]
		deaths += g.Deaths
		population += g.Population
	}

	var adjusted, variance float64
	for _, g := range groups {
		w := float64(std[g.Band]) / float64(stdTotal)
		d := float64(g.Deaths)
		n := float64(g.Population)
		adjusted += w * d / n
		variance += w * w * d / (n * n)
	}

	const per = 100000
	se := per * math.Sqrt(variance)
	rate := &AdjustedRate{
		Crude:    per * float64(deaths) / float64(population),
		Adjusted: per * adjusted,
		Level:    level,
	}
	rate.Lower = math.Max(0, rate.Adjusted-z*se)
	rate.Upper = rate.Adjusted + z*se
	return rate, nil
}

// AgeColumns names the columns of a deaths-by-age table.
type AgeColumns struct {
	State    string
	Group    string // reporting period grouping: "By Total", "By Year", "By Month"
	Sex      string
	AgeGroup string
	Deaths   string
}

// AgeSexColumns matches the NCHS deaths by sex and age dataset.
func AgeSexColumns() AgeColumns {
	return AgeColumns{
		State:    "State",
		Group:    "Group",
		Sex:      "Sex",
		AgeGroup: "Age_Group",
		Deaths:   "COVID_19_Deaths",
	}
}

// AgeFilter selects the rows age band deaths are read from.
type AgeFilter struct {
	State string // e.g. "United States"
	Group string // e.g. "By Total"
	Sex   string // e.g. "All Sexes"
}

// AgeDeathsFromTable reads per-band deaths for every band named in pop.
//
// pop maps band labels to the jurisdiction's resident population in that
// band; the returned groups carry both deaths and population, ordered as
// in StandardMillion, ready for AgeAdjust. A band with no matching row,
// several matching rows or a suppressed count is an error.
func AgeDeathsFromTable(tb *dataset.Table, cols AgeColumns, filter AgeFilter, pop map[string]int64) ([]AgeGroupDeaths, error) {
	state, err := columnIndex(tb, cols.State)
	if err != nil {
		return nil, err
	}
	group, err := columnIndex(tb, cols.Group)
	if err != nil {
		return nil, err
	}
	sex, err := columnIndex(tb, cols.Sex)
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

	if len(pop) == 0 {
		return nil, errors.New("no age band populations given")
	}
	std := make(map[string]bool, len(StandardMillion))
	for _, b := range StandardMillion {
		std[b.Label] = true
	}
	for band := range pop {
		if !std[band] {
			return nil, errors.Fmt("unknown age band %q", band)
		}
	}

	found := make(map[string]int64, len(pop))
	for r := range tb.NumRows() {
		if tb.Value(r, state).String() != filter.State {
			continue
		}
		if filter.Group != "" && tb.Value(r, group).String() != filter.Group {
			continue
		}
		if filter.Sex != "" && tb.Value(r, sex).String() != filter.Sex {
			continue
		}
		band := tb.Value(r, age).String()
		if _, want := pop[band]; !want {
			continue
		}
		if _, dup := found[band]; dup {
			return nil, errors.Fmt("multiple rows match age band %q in %s", band, tb.Name)
		}
		dv := tb.Value(r, deaths)
		if dv.IsNull() {
			return nil, errors.Fmt("deaths are suppressed for age band %q", band)
		}
		found[band] = countValue(dv)
	}

	groups := make([]AgeGroupDeaths, 0, len(pop))
	for _, b := range StandardMillion {
		n, ok := pop[b.Label]
		if !ok {
			continue
		}
		d, ok := found[b.Label]
		if !ok {
			return nil, errors.Fmt("no row matches age band %q in %s", b.Label, tb.Name)
		}
		groups = append(groups, AgeGroupDeaths{Band: b.Label, Deaths: d, Population: n})
	}
	return groups, nil
}
