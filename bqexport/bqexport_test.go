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

package bqexport

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/openmortality/cdcstats/fetch"
	"github.com/openmortality/cdcstats/mmwr"
	"github.com/openmortality/cdcstats/stats"
	"github.com/openmortality/cdcstats/study"
)

func sampleResults() *study.Results {
	return &study.Results{
		Study:        "repro-2020",
		Jurisdiction: "United States",
		ComputedAt:   time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC),
		Excess: &stats.ExcessSummary{
			Jurisdiction: "United States",
			Cause:        "All_Cause",
			Level:        0.95,
			Weeks: []stats.Excess{
				{
					Week:     mmwr.Week{Year: 2020, Week: 5},
					Ending:   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
					Observed: 59087, Expected: 57935.4, Excess: 1151.6,
					Lower: 57463.7, Upper: 58407.1, Elevated: true,
				},
				{
					Week:       mmwr.Week{Year: 2020, Week: 6},
					Ending:     time.Date(2020, 2, 8, 0, 0, 0, 0, time.UTC),
					Expected:   57935.4,
					Lower:      57463.7,
					Upper:      58407.1,
					Suppressed: true,
				},
			},
		},
	}
}

func TestRows(t *testing.T) {
	t.Parallel()

	ftt.Run("Rows", t, func(t *ftt.Test) {
		snaps := []fetch.Snapshot{
			{Dataset: "weekly-deaths", SHA256: "aaaa"},
			{Dataset: "weekly-deaths-baseline", SHA256: "bbbb"},
		}

		t.Run("Flattens the excess series", func(t *ftt.Test) {
			rows := Rows(sampleResults(), snaps)
			assert.Loosely(t, rows, should.HaveLength(2))
			assert.That(t, *rows[0], should.Match(Row{
				Study:        "repro-2020",
				Jurisdiction: "United States",
				Cause:        "All_Cause",
				Year:         2020,
				Week:         5,
				WeekEnding:   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
				Observed:     59087,
				Expected:     57935.4,
				Excess:       1151.6,
				Lower:        57463.7,
				Upper:        58407.1,
				Elevated:     true,
				ComputedAt:   time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC),
				Inputs:       []string{"aaaa", "bbbb"},
			}))
			assert.Loosely(t, rows[1].Suppressed, should.BeTrue)
		})

		t.Run("Insert IDs name the study and week", func(t *ftt.Test) {
			rows := Rows(sampleResults(), snaps)
			assert.Loosely(t, rows[0].InsertID(), should.Equal("repro-2020/All_Cause/2020w05"))
			assert.Loosely(t, rows[1].InsertID(), should.Equal("repro-2020/All_Cause/2020w06"))
		})

		t.Run("Nothing to export", func(t *ftt.Test) {
			assert.Loosely(t, Rows(&study.Results{Study: "repro-2020"}, snaps), should.BeNil)
		})
	})
}

// fakeInserter records batches and fails them through fail.
type fakeInserter struct {
	mu   sync.Mutex
	puts [][]*bigquery.StructSaver
	fail func(batch []*bigquery.StructSaver) error
}

func (f *fakeInserter) Put(ctx context.Context, src any) error {
	batch, ok := src.([]*bigquery.StructSaver)
	if !ok {
		return errors.Fmt("unexpected src type %T", src)
	}
	f.mu.Lock()
	f.puts = append(f.puts, batch)
	f.mu.Unlock()
	if f.fail != nil {
		return f.fail(batch)
	}
	return nil
}

func (f *fakeInserter) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.puts))
	for i, p := range f.puts {
		sizes[i] = len(p)
	}
	sort.Ints(sizes)
	return sizes
}

func testRows(n int) []*Row {
	rows := make([]*Row, n)
	for i := range n {
		rows[i] = &Row{Study: "repro-2020", Cause: "All_Cause", Year: 2020, Week: i + 1}
	}
	return rows
}

func TestUpload(t *testing.T) {
	t.Parallel()

	ftt.Run("Upload", t, func(t *ftt.Test) {
		ctx := context.Background()

		t.Run("Splits rows into batches", func(t *ftt.Test) {
			ins := &fakeInserter{}
			assert.Loosely(t, Upload(ctx, ins, testRows(5), 2), should.BeNil)
			assert.That(t, ins.batchSizes(), should.Match([]int{1, 2, 2}))

			ids := stringset.New(5)
			for _, put := range ins.puts {
				for _, saver := range put {
					assert.Loosely(t, saver.Schema, should.HaveLength(15))
					ids.Add(saver.InsertID)
				}
			}
			assert.Loosely(t, ids, should.HaveLength(5))
		})

		t.Run("Defaults the batch size", func(t *ftt.Test) {
			ins := &fakeInserter{}
			assert.Loosely(t, Upload(ctx, ins, testRows(5), 0), should.BeNil)
			assert.That(t, ins.batchSizes(), should.Match([]int{5}))
		})

		t.Run("No rows is a no-op", func(t *ftt.Test) {
			ins := &fakeInserter{}
			assert.Loosely(t, Upload(ctx, ins, nil, 2), should.BeNil)
			assert.Loosely(t, ins.puts, should.BeEmpty)
		})

		t.Run("Accumulates row errors across batches", func(t *ftt.Test) {
			ins := &fakeInserter{
				fail: func(batch []*bigquery.StructSaver) error {
					return bigquery.PutMultiError{
						{
							InsertID: batch[0].InsertID,
							RowIndex: 0,
							Errors:   bigquery.MultiError{errors.New("bad row")},
						},
					}
				},
			}
			err := Upload(ctx, ins, testRows(5), 2)
			merr, ok := err.(bigquery.PutMultiError)
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, merr, should.HaveLength(3))

			indexes := make([]int, len(merr))
			for i, rowErr := range merr {
				indexes[i] = rowErr.RowIndex
			}
			sort.Ints(indexes)
			assert.That(t, indexes, should.Match([]int{0, 2, 4}))
		})

		t.Run("Aborts on fatal errors", func(t *ftt.Test) {
			ins := &fakeInserter{
				fail: func(batch []*bigquery.StructSaver) error {
					return errors.New("quota exhausted")
				},
			}
			assert.Loosely(t, Upload(ctx, ins, testRows(5), 2), should.ErrLike("quota exhausted"))
		})
	})
}

func TestParseTable(t *testing.T) {
	t.Parallel()

	ftt.Run("ParseTable", t, func(t *ftt.Test) {
		t.Run("Splits a full reference", func(t *ftt.Test) {
			project, dataset, table, err := ParseTable("open-mortality.mortality.excess_weekly")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, project, should.Equal("open-mortality"))
			assert.Loosely(t, dataset, should.Equal("mortality"))
			assert.Loosely(t, table, should.Equal("excess_weekly"))
		})

		t.Run("Rejects short references", func(t *ftt.Test) {
			_, _, _, err := ParseTable("mortality.excess_weekly")
			assert.Loosely(t, err, should.ErrLike("table reference should have form"))
		})
	})
}
