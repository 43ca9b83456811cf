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
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/mmwr"
)

// Excess is one week of observed mortality against its expectation.
type Excess struct {
	Week       mmwr.Week `json:"week"`
	Ending     time.Time `json:"ending"`
	Observed   int64     `json:"observed"`
	Expected   float64   `json:"expected"`
	Excess     float64   `json:"excess"`
	Lower      float64   `json:"lower"`
	Upper      float64   `json:"upper"`
	Elevated   bool      `json:"elevated"`
	Suppressed bool      `json:"suppressed,omitempty"`
}

// ExcessSummary aggregates an excess mortality series over its window.
//
// Suppressed weeks are excluded from the totals and counted separately.
type ExcessSummary struct {
	Jurisdiction    string    `json:"jurisdiction"`
	Cause           string    `json:"cause"`
	Level           float64   `json:"level"`
	Weeks           []Excess  `json:"weeks"`
	TotalObserved   int64     `json:"total_observed"`
	TotalExpected   float64   `json:"total_expected"`
	TotalExcess     float64   `json:"total_excess"`
	ElevatedWeeks   int       `json:"elevated_weeks"`
	SuppressedWeeks int       `json:"suppressed_weeks"`
	PeakWeek        mmwr.Week `json:"peak_week"`
	PeakPercent     float64   `json:"peak_percent"`
}

// zFor returns the two-sided normal quantile for a prediction level, e.g.
// 1.96 for 0.95.
func zFor(level float64) (float64, error) {
	if level <= 0 || level >= 1 {
		return 0, errors.Fmt("interval level must be inside (0, 1), got %g", level)
	}
	return distuv.UnitNormal.Quantile(0.5 + level/2), nil
}

// ComputeExcess scores an observed series against a baseline.
//
// Each week's prediction interval is the Poisson normal approximation
// mu ± z*sqrt(mu). A week is Elevated when the observed count exceeds the
// interval's upper bound.
func ComputeExcess(obs *Series, b *Baseline, level float64) (*ExcessSummary, error) {
	if len(obs.Points) == 0 {
		return nil, errors.Fmt("series for %q has no points", obs.Jurisdiction)
	}
	z, err := zFor(level)
	if err != nil {
		return nil, err
	}

	sum := &ExcessSummary{
		Jurisdiction: obs.Jurisdiction,
		Cause:        obs.Cause,
		Level:        level,
		Weeks:        make([]Excess, 0, len(obs.Points)),
	}
	peakRatio := 0.0
	for _, p := range obs.Points {
		mu, err := b.ExpectedAt(p.Week)
		if err != nil {
			return nil, errors.Fmt("week %s: %w", p.Week, err)
		}
		e := Excess{
			Week:       p.Week,
			Ending:     p.Week.Ending(),
			Expected:   mu,
			Lower:      math.Max(0, mu-z*math.Sqrt(mu)),
			Upper:      mu + z*math.Sqrt(mu),
			Suppressed: p.Suppressed,
		}
		if p.Suppressed {
			sum.SuppressedWeeks++
			sum.Weeks = append(sum.Weeks, e)
			continue
		}
		e.Observed = p.Count
		e.Excess = float64(p.Count) - mu
		e.Elevated = float64(p.Count) > e.Upper
		sum.Weeks = append(sum.Weeks, e)

		sum.TotalObserved += p.Count
		sum.TotalExpected += mu
		if e.Elevated {
			sum.ElevatedWeeks++
		}
		if mu > 0 {
			if ratio := float64(p.Count) / mu; ratio > peakRatio {
				peakRatio = ratio
				sum.PeakWeek = p.Week
				sum.PeakPercent = 100 * ratio
			}
		}
	}
	sum.TotalExcess = float64(sum.TotalObserved) - sum.TotalExpected
	return sum, nil
}
