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
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
)

// Metric names a recomputed quantity a published figure can reference.
const (
	MetricAllCauseTotal            = "all_cause_total"
	MetricCovidDeathsTotal         = "covid_deaths_total"
	MetricExcessDeathsTotal        = "excess_deaths_total"
	MetricExpectedDeathsTotal      = "expected_deaths_total"
	MetricPeakPercentOfExpected    = "peak_percent_of_expected"
	MetricElevatedWeeks            = "elevated_weeks"
	MetricMeanAdditionalConditions = "mean_additional_conditions"
	MetricAgeAdjustedRate          = "age_adjusted_rate"
	MetricCrudeRate                = "crude_rate"
)

var knownMetrics = stringset.NewFromSlice(
	MetricAllCauseTotal,
	MetricCovidDeathsTotal,
	MetricExcessDeathsTotal,
	MetricExpectedDeathsTotal,
	MetricPeakPercentOfExpected,
	MetricElevatedWeeks,
	MetricMeanAdditionalConditions,
	MetricAgeAdjustedRate,
	MetricCrudeRate,
)

// KnownMetric reports whether name refers to a metric Compare can resolve.
func KnownMetric(name string) bool { return knownMetrics.Has(name) }

// KnownMetrics returns all metric names, sorted.
func KnownMetrics() []string { return knownMetrics.ToSortedSlice() }

// Metric resolves a metric name against the results.
//
// ok is false when the run did not have the inputs the metric needs, e.g.
// age_adjusted_rate without a population block.
func (r *Results) Metric(name string) (value float64, ok bool, err error) {
	switch name {
	case MetricAllCauseTotal:
		if r.Excess != nil {
			return float64(r.Excess.TotalObserved), true, nil
		}
	case MetricCovidDeathsTotal:
		if r.Covid != nil {
			return float64(r.Covid.Total), true, nil
		}
	case MetricExcessDeathsTotal:
		if r.Excess != nil {
			return r.Excess.TotalExcess, true, nil
		}
	case MetricExpectedDeathsTotal:
		if r.Excess != nil {
			return r.Excess.TotalExpected, true, nil
		}
	case MetricPeakPercentOfExpected:
		if r.Excess != nil {
			return r.Excess.PeakPercent, true, nil
		}
	case MetricElevatedWeeks:
		if r.Excess != nil {
			return float64(r.Excess.ElevatedWeeks), true, nil
		}
	case MetricMeanAdditionalConditions:
		if r.Comorbidity != nil {
			return r.Comorbidity.MeanAdditionalConditions, true, nil
		}
	case MetricAgeAdjustedRate:
		if r.AgeAdjusted != nil {
			return r.AgeAdjusted.Adjusted, true, nil
		}
	case MetricCrudeRate:
		if r.AgeAdjusted != nil {
			return r.AgeAdjusted.Crude, true, nil
		}
	default:
		return 0, false, errors.Fmt("unknown metric %q", name)
	}
	return 0, false, nil
}
