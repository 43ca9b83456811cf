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
	"gonum.org/v1/gonum/stat"

	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/mmwr"
)

// BaselineMethod selects how expected weekly deaths derive from the
// baseline years.
type BaselineMethod string

const (
	// Average is the mean count of the week across the baseline years.
	Average BaselineMethod = "average"
	// Trend fits a per-week linear regression of count on year across the
	// baseline years and extrapolates it to the target year.
	Trend BaselineMethod = "trend"
)

// KnownMethod reports whether m is a recognized baseline method.
func KnownMethod(m BaselineMethod) bool {
	return m == Average || m == Trend
}

// weekFit is expected(year) = alpha + beta*year for one week of the year.
type weekFit struct {
	alpha, beta float64
}

// Baseline holds per-week expected death counts fit on pre-pandemic years.
type Baseline struct {
	Method BaselineMethod
	Years  [2]int // inclusive year range the fit used

	byWeek map[int]weekFit
}

// FitBaseline derives a weekly baseline from historical series.
//
// history carries one or more series of the same jurisdiction and cause;
// only points within the year range contribute, suppressed points are
// skipped. With fewer than two usable years for a week, Trend degrades to
// that week's mean.
func FitBaseline(history []*Series, method BaselineMethod, years [2]int) (*Baseline, error) {
	if !KnownMethod(method) {
		return nil, errors.Fmt("unknown baseline method %q", method)
	}
	if years[0] > years[1] {
		return nil, errors.Fmt("baseline years %d-%d are reversed", years[0], years[1])
	}

	type obs struct {
		year  float64
		count float64
	}
	byWeek := map[int][]obs{}
	for _, s := range history {
		for _, p := range s.Points {
			if p.Suppressed || p.Week.Year < years[0] || p.Week.Year > years[1] {
				continue
			}
			byWeek[p.Week.Week] = append(byWeek[p.Week.Week], obs{float64(p.Week.Year), float64(p.Count)})
		}
	}
	if len(byWeek) == 0 {
		return nil, errors.Fmt("baseline years %d-%d have no usable data", years[0], years[1])
	}

	b := &Baseline{Method: method, Years: years, byWeek: make(map[int]weekFit, len(byWeek))}
	for w, pts := range byWeek {
		xs := make([]float64, len(pts))
		ys := make([]float64, len(pts))
		for i, p := range pts {
			xs[i], ys[i] = p.year, p.count
		}
		if method == Trend && len(pts) >= 2 {
			alpha, beta := stat.LinearRegression(xs, ys, nil, false)
			b.byWeek[w] = weekFit{alpha: alpha, beta: beta}
		} else {
			b.byWeek[w] = weekFit{alpha: stat.Mean(ys, nil)}
		}
	}
	return b, nil
}

// ExpectedAt returns expected deaths for one target week.
//
// Week 53 falls back to week 52's fit when the baseline years had no
// 53-week year. A negative trend extrapolation clamps to zero.
func (b *Baseline) ExpectedAt(w mmwr.Week) (float64, error) {
	f, ok := b.byWeek[w.Week]
	if !ok && w.Week == 53 {
		f, ok = b.byWeek[52]
	}
	if !ok {
		return 0, errors.Fmt("baseline has no data for week %d of the year", w.Week)
	}
	mu := f.alpha + f.beta*float64(w.Year)
	if mu < 0 {
		mu = 0
	}
	return mu, nil
}
