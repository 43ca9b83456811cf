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

import "math"

// Verdict classifies one published figure against its recomputation.
type Verdict string

// Verdicts, from best to worst.
const (
	Reproduced  Verdict = "REPRODUCED"
	Divergent   Verdict = "DIVERGENT"
	NotComputed Verdict = "NOT_COMPUTED"
)

// FigureComparison is the check of one published figure.
type FigureComparison struct {
	ID         string  `json:"id"`
	Metric     string  `json:"metric"`
	Published  float64 `json:"published"`
	Recomputed float64 `json:"recomputed"`
	Delta      float64 `json:"delta"`
	RelDelta   float64 `json:"relative_delta"` // fraction of the published magnitude
	Verdict    Verdict `json:"verdict"`
}

// Comparison is the verdict table of a study run, in study order.
type Comparison struct {
	Figures []FigureComparison `json:"figures"`
	Overall Verdict            `json:"overall"`
}

// allows reports whether recomputed sits within tolerance of published.
func (t Tolerance) allows(published, recomputed float64) bool {
	diff := math.Abs(recomputed - published)
	if t.Absolute != 0 {
		return diff <= t.Absolute
	}
	return diff <= t.Relative*math.Abs(published)
}

// Compare checks every published figure against the recomputed results.
//
// A figure whose metric lacked inputs (no population block, no conditions
// dataset) is NOT_COMPUTED and does not fail the comparison. The overall
// verdict is REPRODUCED when every computed figure is within tolerance,
// DIVERGENT when any is not, and NOT_COMPUTED when no figure could be
// checked at all.
func Compare(res *Results, figures []Figure) (*Comparison, error) {
	cmp := &Comparison{}
	reproduced, divergent := 0, 0
	for _, f := range figures {
		val, ok, err := res.Metric(f.Metric)
		if err != nil {
			return nil, err
		}
		fc := FigureComparison{
			ID:        f.ID,
			Metric:    f.Metric,
			Published: f.Value,
			Verdict:   NotComputed,
		}
		if ok {
			fc.Recomputed = val
			fc.Delta = val - f.Value
			if f.Value != 0 {
				fc.RelDelta = fc.Delta / math.Abs(f.Value)
			}
			if f.Tolerance.allows(f.Value, val) {
				fc.Verdict = Reproduced
				reproduced++
			} else {
				fc.Verdict = Divergent
				divergent++
			}
		}
		cmp.Figures = append(cmp.Figures, fc)
	}
	switch {
	case divergent > 0:
		cmp.Overall = Divergent
	case reproduced > 0 || len(figures) == 0:
		cmp.Overall = Reproduced
	default:
		cmp.Overall = NotComputed
	}
	return cmp, nil
}
