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

// Package mmwr implements MMWR epidemiological week arithmetic.
//
// MMWR weeks (the CDC's Morbidity and Mortality Weekly Report calendar) run
// Sunday through Saturday. Week 1 of a year is the first week with at least
// four days in January, equivalently the week whose ending Saturday falls on
// or after January 4. Years have 52 or 53 weeks.
package mmwr

import (
	"fmt"
	"time"

	"go.chromium.org/luci/common/errors"
)

// Week identifies one MMWR week.
//
// The MMWR year may differ from the calendar year close to January 1: the
// last days of December can belong to week 1 of the next year and the first
// days of January to week 52 or 53 of the previous one.
type Week struct {
	Year int `json:"year"`
	Week int `json:"week"` // 1-based, at most Weeks(Year)
}

// week1End returns the Saturday ending week 1 of the given MMWR year.
func week1End(year int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	days := (int(time.Saturday) - int(jan4.Weekday()) + 7) % 7
	return jan4.AddDate(0, 0, days)
}

// FromTime returns the MMWR week containing the given time.
//
// Only the calendar date (in t's location) matters, the time of day is
// ignored.
func FromTime(t time.Time) Week {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	sat := d.AddDate(0, 0, (int(time.Saturday)-int(d.Weekday())+7)%7)
	year := sat.Year()
	w1 := week1End(year)
	if sat.Before(w1) {
		year--
		w1 = week1End(year)
	}
	return Week{Year: year, Week: int(sat.Sub(w1)/(7*24*time.Hour)) + 1}
}

// Weeks returns the number of MMWR weeks in a year, 52 or 53.
func Weeks(year int) int {
	return int(week1End(year+1).Sub(week1End(year)) / (7 * 24 * time.Hour))
}

// Ending returns the Saturday on which the week ends, at UTC midnight.
func (w Week) Ending() time.Time {
	return week1End(w.Year).AddDate(0, 0, (w.Week-1)*7)
}

// Starting returns the Sunday on which the week starts, at UTC midnight.
func (w Week) Starting() time.Time {
	return w.Ending().AddDate(0, 0, -6)
}

// Next returns the week immediately after w, rolling over year boundaries.
func (w Week) Next() Week {
	if w.Week < Weeks(w.Year) {
		return Week{Year: w.Year, Week: w.Week + 1}
	}
	return Week{Year: w.Year + 1, Week: 1}
}

// Before reports whether w is strictly earlier than o.
func (w Week) Before(o Week) bool {
	if w.Year != o.Year {
		return w.Year < o.Year
	}
	return w.Week < o.Week
}

// Valid reports whether the week index exists in its year.
func (w Week) Valid() bool {
	return w.Week >= 1 && w.Week <= Weeks(w.Year)
}

func (w Week) String() string {
	return fmt.Sprintf("%04dw%02d", w.Year, w.Week)
}

// Range returns all weeks from `from` to `to`, inclusive.
func Range(from, to Week) ([]Week, error) {
	switch {
	case !from.Valid():
		return nil, errors.Fmt("invalid week %s", from)
	case !to.Valid():
		return nil, errors.Fmt("invalid week %s", to)
	case to.Before(from):
		return nil, errors.Fmt("range end %s precedes start %s", to, from)
	}
	var out []Week
	for w := from; !to.Before(w); w = w.Next() {
		out = append(out, w)
	}
	return out, nil
}
