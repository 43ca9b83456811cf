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

// Package bqexport streams recomputed mortality series into BigQuery.
package bqexport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/fetch"
	"github.com/openmortality/cdcstats/study"
)

const (
	// DefaultBatchSize stays well under BigQuery's 50,000-row streaming
	// insert limit.
	DefaultBatchSize = 500

	// maxConcurrentInserts bounds parallel Put calls on one client.
	maxConcurrentInserts = 16
)

// Row is one week of a recomputed mortality series.
type Row struct {
	Study        string    `bigquery:"study"`
	Jurisdiction string    `bigquery:"jurisdiction"`
	Cause        string    `bigquery:"cause"`
	Year         int       `bigquery:"mmwr_year"`
	Week         int       `bigquery:"mmwr_week"`
	WeekEnding   time.Time `bigquery:"week_ending"`
	Observed     int64     `bigquery:"observed"`
	Expected     float64   `bigquery:"expected"`
	Excess       float64   `bigquery:"excess"`
	Lower        float64   `bigquery:"lower"`
	Upper        float64   `bigquery:"upper"`
	Elevated     bool      `bigquery:"elevated"`
	Suppressed   bool      `bigquery:"suppressed"`
	ComputedAt   time.Time `bigquery:"computed_at"`
	Inputs       []string  `bigquery:"inputs"` // sha256 digests of the input snapshots
}

// InsertID is stable across runs of the same study, so retried streaming
// inserts deduplicate on the BigQuery side.
func (r *Row) InsertID() string {
	return fmt.Sprintf("%s/%s/%04dw%02d", r.Study, r.Cause, r.Year, r.Week)
}

var rowSchema bigquery.Schema

func init() {
	var err error
	if rowSchema, err = bigquery.InferSchema(&Row{}); err != nil {
		panic(err)
	}
}

// Rows flattens a computed run into upload rows. Snapshot digests ride
// along so every row names the exact inputs that produced it.
func Rows(res *study.Results, snaps []fetch.Snapshot) []*Row {
	if res.Excess == nil {
		return nil
	}
	inputs := make([]string, len(snaps))
	for i := range snaps {
		inputs[i] = snaps[i].SHA256
	}
	ex := res.Excess
	rows := make([]*Row, len(ex.Weeks))
	for i, w := range ex.Weeks {
		rows[i] = &Row{
			Study:        res.Study,
			Jurisdiction: res.Jurisdiction,
			Cause:        ex.Cause,
			Year:         w.Week.Year,
			Week:         w.Week.Week,
			WeekEnding:   w.Ending,
			Observed:     w.Observed,
			Expected:     w.Expected,
			Excess:       w.Excess,
			Lower:        w.Lower,
			Upper:        w.Upper,
			Elevated:     w.Elevated,
			Suppressed:   w.Suppressed,
			ComputedAt:   res.ComputedAt,
			Inputs:       inputs,
		}
	}
	return rows
}

// Inserter is implemented by bigquery.Inserter.
type Inserter interface {
	// Put uploads one or more rows to the BigQuery service.
	Put(ctx context.Context, src any) error
}

// ParseTable splits a <project>.<dataset>.<table> reference.
func ParseTable(ref string) (project, dataset, table string, err error) {
	chunks := strings.Split(ref, ".")
	if len(chunks) != 3 {
		return "", "", "", errors.Fmt("table reference should have form <project>.<dataset>.<table>, got %q", ref)
	}
	return chunks[0], chunks[1], chunks[2], nil
}

// Upload streams rows into a BigQuery table in batches.
//
// Batches upload concurrently. Row-level insert errors accumulate across
// batches and come back as one bigquery.PutMultiError with row indexes
// rebased onto the rows slice; any other error aborts the upload.
func Upload(ctx context.Context, ins Inserter, rows []*Row, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var mu sync.Mutex
	var multiErr bigquery.PutMultiError

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentInserts)
	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]
		eg.Go(func() error {
			err := ins.Put(ctx, savers(batch))
			if err == nil {
				return nil
			}
			merr, ok := err.(bigquery.PutMultiError)
			if !ok {
				return err
			}
			for i := range merr {
				merr[i].RowIndex += start
			}
			mu.Lock()
			multiErr = append(multiErr, merr...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if len(multiErr) > 0 {
		return multiErr
	}
	return nil
}

func savers(rows []*Row) []*bigquery.StructSaver {
	out := make([]*bigquery.StructSaver, len(rows))
	for i, r := range rows {
		out[i] = &bigquery.StructSaver{
			Schema:   rowSchema,
			InsertID: r.InsertID(),
			Struct:   r,
		}
	}
	return out
}
