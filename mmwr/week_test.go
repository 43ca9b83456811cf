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

package mmwr

import (
	"testing"
	"time"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeek(t *testing.T) {
	t.Parallel()

	ftt.Run("Week", t, func(t *ftt.Test) {
		t.Run("Ending", func(t *ftt.Test) {
			// Published CDC calendar facts.
			assert.Loosely(t, Week{2020, 1}.Ending(), should.Match(date(2020, time.January, 4)))
			assert.Loosely(t, Week{2020, 16}.Ending(), should.Match(date(2020, time.April, 18)))
			assert.Loosely(t, Week{2020, 53}.Ending(), should.Match(date(2021, time.January, 2)))
			assert.Loosely(t, Week{2021, 1}.Ending(), should.Match(date(2021, time.January, 9)))
		})

		t.Run("Starting", func(t *ftt.Test) {
			assert.Loosely(t, Week{2020, 1}.Starting(), should.Match(date(2019, time.December, 29)))
			assert.Loosely(t, Week{2021, 1}.Starting(), should.Match(date(2021, time.January, 3)))
		})

		t.Run("Weeks per year", func(t *ftt.Test) {
			assert.Loosely(t, Weeks(2014), should.Equal(53))
			assert.Loosely(t, Weeks(2015), should.Equal(52))
			assert.Loosely(t, Weeks(2019), should.Equal(52))
			assert.Loosely(t, Weeks(2020), should.Equal(53))
			assert.Loosely(t, Weeks(2021), should.Equal(52))
		})

		t.Run("FromTime", func(t *ftt.Test) {
			assert.Loosely(t, FromTime(date(2020, time.January, 1)), should.Match(Week{2020, 1}))
			assert.Loosely(t, FromTime(date(2019, time.December, 29)), should.Match(Week{2020, 1}))
			assert.Loosely(t, FromTime(date(2019, time.December, 28)), should.Match(Week{2019, 52}))
			assert.Loosely(t, FromTime(date(2021, time.January, 2)), should.Match(Week{2020, 53}))
			assert.Loosely(t, FromTime(date(2021, time.January, 3)), should.Match(Week{2021, 1}))
			assert.Loosely(t, FromTime(date(2020, time.April, 15)), should.Match(Week{2020, 16}))
		})

		t.Run("FromTime ignores the clock and the zone", func(t *ftt.Test) {
			loc := time.FixedZone("UTC-8", -8*3600)
			late := time.Date(2020, time.January, 4, 23, 59, 59, 0, loc)
			assert.Loosely(t, FromTime(late), should.Match(Week{2020, 1}))
		})

		t.Run("Round trip through a 53-week year", func(t *ftt.Test) {
			w := Week{2019, 50}
			for range 30 {
				assert.Loosely(t, FromTime(w.Ending()), should.Match(w))
				assert.Loosely(t, FromTime(w.Starting()), should.Match(w))
				w = w.Next()
			}
		})

		t.Run("Next rolls over year boundaries", func(t *ftt.Test) {
			assert.Loosely(t, Week{2019, 52}.Next(), should.Match(Week{2020, 1}))
			assert.Loosely(t, Week{2020, 53}.Next(), should.Match(Week{2021, 1}))
			assert.Loosely(t, Week{2020, 10}.Next(), should.Match(Week{2020, 11}))
		})

		t.Run("Valid", func(t *ftt.Test) {
			assert.Loosely(t, Week{2020, 53}.Valid(), should.BeTrue)
			assert.Loosely(t, Week{2019, 53}.Valid(), should.BeFalse)
			assert.Loosely(t, Week{2020, 0}.Valid(), should.BeFalse)
		})

		t.Run("String", func(t *ftt.Test) {
			assert.Loosely(t, Week{2020, 5}.String(), should.Equal("2020w05"))
		})
	})
}

func TestRange(t *testing.T) {
	t.Parallel()

	ftt.Run("Range", t, func(t *ftt.Test) {
		t.Run("Spans a 53-week year", func(t *ftt.Test) {
			got, err := Range(Week{2020, 51}, Week{2021, 2})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.Match([]Week{
				{2020, 51}, {2020, 52}, {2020, 53}, {2021, 1}, {2021, 2},
			}))
		})

		t.Run("Single week", func(t *ftt.Test) {
			got, err := Range(Week{2020, 7}, Week{2020, 7})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.HaveLength(1))
		})

		t.Run("Rejects invalid endpoints", func(t *ftt.Test) {
			_, err := Range(Week{2019, 53}, Week{2020, 1})
			assert.Loosely(t, err, should.ErrLike("invalid week 2019w53"))
		})

		t.Run("Rejects reversed ranges", func(t *ftt.Test) {
			_, err := Range(Week{2020, 10}, Week{2020, 9})
			assert.Loosely(t, err, should.ErrLike("precedes"))
		})
	})
}
