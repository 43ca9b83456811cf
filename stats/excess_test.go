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
	"testing"
	"time"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/openmortality/cdcstats/mmwr"
)

func TestZFor(t *testing.T) {
	t.Parallel()

	ftt.Run("zFor", t, func(t *ftt.Test) {
		z, err := zFor(0.95)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, z, should.AlmostEqual(1.959964, 1e-5))

		z, err = zFor(0.99)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, z, should.AlmostEqual(2.575829, 1e-5))

		_, err = zFor(0)
		assert.Loosely(t, err, should.ErrLike("inside (0, 1)"))
		_, err = zFor(1)
		assert.Loosely(t, err, should.ErrLike("inside (0, 1)"))
	})
}

func TestComputeExcess(t *testing.T) {
	t.Parallel()

	ftt.Run("ComputeExcess", t, func(t *ftt.Test) {
		baseline, err := FitBaseline([]*Series{
			yearSeries(2019, map[int]int64{1: 100, 2: 200, 3: 100}),
		}, Average, [2]int{2019, 2019})
		assert.Loosely(t, err, should.BeNil)

		obs := &Series{
			Jurisdiction: "United States",
			Cause:        "All_Cause",
			Points: []WeeklyCount{
				{Week: mmwr.Week{Year: 2020, Week: 1}, Count: 130},
				{Week: mmwr.Week{Year: 2020, Week: 2}, Count: 205},
				{Week: mmwr.Week{Year: 2020, Week: 3}, Suppressed: true},
			},
		}

		t.Run("Scores weeks and sums the window", func(t *ftt.Test) {
			sum, err := ComputeExcess(obs, baseline, 0.95)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, sum.Weeks, should.HaveLength(3))

			// Week 1: 130 observed vs 100 expected. The 95% interval tops out
			// at 100 + 1.96*10, so the week is elevated.
			wk := sum.Weeks[0]
			assert.Loosely(t, wk.Observed, should.Equal(130))
			assert.Loosely(t, wk.Expected, should.AlmostEqual(100.0))
			assert.Loosely(t, wk.Excess, should.AlmostEqual(30.0))
			assert.Loosely(t, wk.Upper, should.AlmostEqual(119.59964, 1e-4))
			assert.Loosely(t, wk.Lower, should.AlmostEqual(80.40036, 1e-4))
			assert.Loosely(t, wk.Elevated, should.BeTrue)
			assert.Loosely(t, wk.Ending, should.Match(time.Date(2020, time.January, 4, 0, 0, 0, 0, time.UTC)))

			// Week 2: 205 vs 200 sits inside the interval.
			assert.Loosely(t, sum.Weeks[1].Elevated, should.BeFalse)

			// Week 3 is suppressed: listed, not summed.
			assert.Loosely(t, sum.Weeks[2].Suppressed, should.BeTrue)
			assert.Loosely(t, sum.Weeks[2].Observed, should.BeZero)

			assert.Loosely(t, sum.TotalObserved, should.Equal(335))
			assert.Loosely(t, sum.TotalExpected, should.AlmostEqual(300.0))
			assert.Loosely(t, sum.TotalExcess, should.AlmostEqual(35.0))
			assert.Loosely(t, sum.ElevatedWeeks, should.Equal(1))
			assert.Loosely(t, sum.SuppressedWeeks, should.Equal(1))
		})

		t.Run("Peak is the highest observed-to-expected ratio", func(t *ftt.Test) {
			sum, err := ComputeExcess(obs, baseline, 0.95)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, sum.PeakWeek, should.Match(mmwr.Week{Year: 2020, Week: 1}))
			assert.Loosely(t, sum.PeakPercent, should.AlmostEqual(130.0, 1e-9))
		})

		t.Run("Wider intervals flag fewer weeks", func(t *ftt.Test) {
			sum95, err := ComputeExcess(obs, baseline, 0.95)
			assert.Loosely(t, err, should.BeNil)
			sum999, err := ComputeExcess(obs, baseline, 0.999)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, sum95.ElevatedWeeks, should.Equal(1))
			assert.Loosely(t, sum999.ElevatedWeeks, should.BeZero)
		})

		t.Run("Missing baseline week is an error", func(t *ftt.Test) {
			week9 := &Series{Points: []WeeklyCount{{Week: mmwr.Week{Year: 2020, Week: 9}, Count: 10}}}
			_, err := ComputeExcess(week9, baseline, 0.95)
			assert.Loosely(t, err, should.ErrLike("week 2020w09: baseline has no data"))
		})

		t.Run("Empty series is an error", func(t *ftt.Test) {
			_, err := ComputeExcess(&Series{Jurisdiction: "Nowhere"}, baseline, 0.95)
			assert.Loosely(t, err, should.ErrLike("no points"))
		})

		t.Run("Bad level is an error", func(t *ftt.Test) {
			_, err := ComputeExcess(obs, baseline, 1.95)
			assert.Loosely(t, err, should.ErrLike("inside (0, 1)"))
		})
	})
}
