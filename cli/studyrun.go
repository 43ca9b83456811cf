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

package cli

import (
	"context"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/fetch"
	"github.com/openmortality/cdcstats/study"
)

// studyCommandRun is embedded by subcommands that execute a study.
type studyCommandRun struct {
	baseCommandRun
	studyPath string
}

func (r *studyCommandRun) registerStudyFlags() {
	r.registerCacheDirFlag()
	r.Flags.StringVar(&r.studyPath, "study", "", "Path to the study definition YAML.")
}

// studyRun bundles everything one study execution produced.
type studyRun struct {
	Study      *study.Study
	Results    *study.Results
	Comparison *study.Comparison
	Snapshots  []fetch.Snapshot // in studySources order
}

// runStudy loads the study, brings its datasets through the snapshot cache
// and recomputes its statistics.
//
// Datasets already in the cache are not refetched, so a run is reproducible
// once its inputs are cached.
func (r *studyCommandRun) runStudy(ctx context.Context) (*studyRun, error) {
	s, err := study.Load(ctx, r.studyPath)
	if err != nil {
		return nil, err
	}
	srcs, err := studySources(s)
	if err != nil {
		return nil, err
	}

	f := &fetch.Fetcher{}
	tables, snaps, err := f.FetchAll(ctx, fetch.NewCache(r.cacheDir), srcs, false)
	if err != nil {
		return nil, err
	}

	res, err := study.Compute(ctx, s, study.Tables{
		Weekly:         tables[s.Datasets.Weekly],
		WeeklyBaseline: tables[s.Datasets.WeeklyBaseline],
		Conditions:     tables[s.Datasets.Conditions],
		Age:            tables[s.Datasets.Age],
	})
	if err != nil {
		return nil, err
	}
	cmp, err := study.Compare(res, s.Published)
	if err != nil {
		return nil, err
	}

	run := &studyRun{Study: s, Results: res, Comparison: cmp}
	for _, src := range srcs {
		run.Snapshots = append(run.Snapshots, *snaps[src.ID])
	}
	return run, nil
}

// studySources returns the registry sources a study needs, in dataset role
// order, without duplicates.
func studySources(s *study.Study) ([]dataset.Source, error) {
	ids := []string{
		s.Datasets.Weekly,
		s.Datasets.WeeklyBaseline,
		s.Datasets.Conditions,
		s.Datasets.Age,
	}
	seen := stringset.New(len(ids))
	srcs := make([]dataset.Source, 0, len(ids))
	for _, id := range ids {
		if id == "" || !seen.Add(id) {
			continue
		}
		src, ok := dataset.SourceByID(id)
		if !ok {
			return nil, errors.Fmt("unknown dataset id %q", id)
		}
		srcs = append(srcs, src)
	}
	return srcs, nil
}
