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

// Package study defines reproduction studies.
//
// A study is a YAML file naming the datasets to read, the window and
// baseline to recompute over, and the published figures the recomputed
// values are checked against.
package study

import (
	"context"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/config/validation"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/mmwr"
	"github.com/openmortality/cdcstats/stats"
)

// Study is a parsed and validated study definition.
type Study struct {
	Meta       Meta     `yaml:"study" json:"study"`
	Window     Window   `yaml:"window" json:"window"`
	Baseline   Baseline `yaml:"baseline" json:"baseline"`
	Interval   Interval `yaml:"interval" json:"interval"`
	Datasets   Datasets `yaml:"datasets" json:"datasets"`
	Population []Band   `yaml:"population" json:"population,omitempty"`
	Published  []Figure `yaml:"published" json:"published,omitempty"`
}

// Meta identifies the study.
type Meta struct {
	Name         string `yaml:"name" json:"name"`
	Jurisdiction string `yaml:"jurisdiction" json:"jurisdiction"`
}

// Window is the inclusive date range the study recomputes over.
type Window struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`

	from, to time.Time // filled by validation
}

// Weeks returns the window as an inclusive MMWR week range. Valid only
// after a successful Load or Parse.
func (w Window) Weeks() (from, to mmwr.Week) {
	return mmwr.FromTime(w.from), mmwr.FromTime(w.to)
}

// Baseline says how expected deaths are fitted.
type Baseline struct {
	Method stats.BaselineMethod `yaml:"method" json:"method"`
	Years  []int                `yaml:"years" json:"years"` // [first, last], inclusive
}

// Range returns the baseline years as [first, last]. Valid only after a
// successful Load or Parse.
func (b Baseline) Range() [2]int {
	return [2]int{b.Years[0], b.Years[1]}
}

// Interval configures the prediction and confidence intervals.
type Interval struct {
	Level float64 `yaml:"level" json:"level"`
}

// Datasets binds dataset roles to registry ids. Weekly and WeeklyBaseline
// are required; Conditions and Age may be left empty to skip comorbidity
// attribution and age adjustment.
type Datasets struct {
	Weekly         string `yaml:"weekly" json:"weekly"`
	WeeklyBaseline string `yaml:"weekly_baseline" json:"weekly_baseline"`
	Conditions     string `yaml:"conditions" json:"conditions,omitempty"`
	Age            string `yaml:"age" json:"age,omitempty"`
}

// Band is one age band of the jurisdiction's resident population.
type Band struct {
	Band       string `yaml:"band" json:"band"`
	Population int64  `yaml:"population" json:"population"`
}

// Figure is one published figure the study tries to reproduce.
type Figure struct {
	ID        string    `yaml:"id" json:"id"`
	Metric    string    `yaml:"metric" json:"metric"`
	Value     float64   `yaml:"value" json:"value"`
	Tolerance Tolerance `yaml:"tolerance" json:"tolerance"`
}

// Tolerance bounds how far a recomputed value may sit from the published
// one. Exactly one of Relative or Absolute is set; Relative is a fraction
// of the published value's magnitude.
type Tolerance struct {
	Relative float64 `yaml:"relative" json:"relative,omitempty"`
	Absolute float64 `yaml:"absolute" json:"absolute,omitempty"`
}

// Load reads and validates a study definition from a YAML file.
func Load(ctx context.Context, path string) (*Study, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Fmt("reading study: %w", err)
	}
	return Parse(ctx, path, blob)
}

// Parse unmarshals and validates a study definition. The path shows up in
// validation messages only.
func Parse(ctx context.Context, path string, blob []byte) (*Study, error) {
	s := &Study{}
	if err := yaml.UnmarshalStrict(blob, s); err != nil {
		return nil, errors.Fmt("parsing %s: %w", path, err)
	}
	if s.Baseline.Method == "" {
		s.Baseline.Method = stats.Average
	}
	if s.Interval.Level == 0 {
		s.Interval.Level = 0.95
	}
	vctx := validation.Context{Context: ctx}
	vctx.SetFile(path)
	s.validate(&vctx)
	if err := vctx.Finalize(); err != nil {
		return nil, err
	}
	return s, nil
}

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

func (s *Study) validate(vctx *validation.Context) {
	vctx.Enter("study")
	if s.Meta.Name == "" {
		vctx.Errorf("name is required")
	} else if !nameRe.MatchString(s.Meta.Name) {
		vctx.Errorf("name %q does not match %q", s.Meta.Name, nameRe)
	}
	if s.Meta.Jurisdiction == "" {
		vctx.Errorf("jurisdiction is required")
	}
	vctx.Exit()

	vctx.Enter("window")
	var err error
	if s.Window.from, err = parseDay(s.Window.From); err != nil {
		vctx.Errorf("bad from date: %s", err)
	}
	if s.Window.to, err = parseDay(s.Window.To); err != nil {
		vctx.Errorf("bad to date: %s", err)
	}
	if !s.Window.from.IsZero() && !s.Window.to.IsZero() && s.Window.to.Before(s.Window.from) {
		vctx.Errorf("window end %s precedes start %s", s.Window.To, s.Window.From)
	}
	vctx.Exit()

	vctx.Enter("baseline")
	if !stats.KnownMethod(s.Baseline.Method) {
		vctx.Errorf("unknown method %q (want %q or %q)", s.Baseline.Method, stats.Average, stats.Trend)
	}
	switch {
	case len(s.Baseline.Years) != 2:
		vctx.Errorf("years must be [first, last], got %d values", len(s.Baseline.Years))
	case s.Baseline.Years[0] > s.Baseline.Years[1]:
		vctx.Errorf("years [%d, %d] are reversed", s.Baseline.Years[0], s.Baseline.Years[1])
	}
	vctx.Exit()

	vctx.Enter("interval")
	if s.Interval.Level <= 0 || s.Interval.Level >= 1 {
		vctx.Errorf("level must be inside (0, 1), got %g", s.Interval.Level)
	}
	vctx.Exit()

	vctx.Enter("datasets")
	for _, b := range []struct {
		role     string
		id       string
		required bool
	}{
		{"weekly", s.Datasets.Weekly, true},
		{"weekly_baseline", s.Datasets.WeeklyBaseline, true},
		{"conditions", s.Datasets.Conditions, false},
		{"age", s.Datasets.Age, false},
	} {
		vctx.Enter("%s", b.role)
		switch {
		case b.id == "" && b.required:
			vctx.Errorf("a dataset id is required")
		case b.id != "":
			if _, ok := dataset.SourceByID(b.id); !ok {
				vctx.Errorf("unknown dataset id %q", b.id)
			}
		}
		vctx.Exit()
	}
	vctx.Exit()

	std := stringset.New(len(stats.StandardMillion))
	for _, b := range stats.StandardMillion {
		std.Add(b.Label)
	}
	bands := stringset.New(len(s.Population))
	for i, b := range s.Population {
		vctx.Enter("population #%d", i+1)
		switch {
		case b.Band == "":
			vctx.Errorf("band is required")
		case !std.Has(b.Band):
			vctx.Errorf("unknown age band %q", b.Band)
		case !bands.Add(b.Band):
			vctx.Errorf("age band %q is listed twice", b.Band)
		}
		if b.Population <= 0 {
			vctx.Errorf("population must be positive, got %d", b.Population)
		}
		vctx.Exit()
	}

	ids := stringset.New(len(s.Published))
	for i, f := range s.Published {
		vctx.Enter("published #%d", i+1)
		if f.ID == "" {
			vctx.Errorf("id is required")
		} else if !ids.Add(f.ID) {
			vctx.Errorf("id %q is already in use", f.ID)
		}
		if f.Metric == "" {
			vctx.Errorf("metric is required")
		} else if !KnownMetric(f.Metric) {
			vctx.Errorf("unknown metric %q (known: %s)", f.Metric, strings.Join(KnownMetrics(), ", "))
		}
		switch rel, abs := f.Tolerance.Relative, f.Tolerance.Absolute; {
		case rel != 0 && abs != 0:
			vctx.Errorf("tolerance: only one of relative or absolute may be set")
		case rel == 0 && abs == 0:
			vctx.Errorf("tolerance: one of relative or absolute is required")
		case rel < 0:
			vctx.Errorf("tolerance: relative must be positive, got %v", rel)
		case abs < 0:
			vctx.Errorf("tolerance: absolute must be positive, got %v", abs)
		}
		vctx.Exit()
	}
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("a YYYY-MM-DD date is required")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Fmt("%q is not a YYYY-MM-DD date", s)
	}
	return t, nil
}
