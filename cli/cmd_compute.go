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
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/openmortality/cdcstats/stats"
)

func cmdCompute() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "compute -study FILE [flags]",
		ShortDesc: "recompute a study's statistics",
		LongDesc: text.Doc(`
			Recompute every statistic the study's datasets allow and write the
			results under -out.

			Produces results.json with everything that was computed, excess.csv
			with the weekly excess mortality series and, when the study names a
			conditions dataset, conditions.csv with the comorbidity counts.

			Datasets missing from the cache are fetched first.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &computeRun{}
			r.init()
			r.registerStudyFlags()
			r.Flags.StringVar(&r.out, "out", ".", "Directory to write results into.")
			return r
		},
	}
}

type computeRun struct {
	studyCommandRun
	out string
}

func (r *computeRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return r.done(ctx, r.run(ctx, args))
}

func (r *computeRun) run(ctx context.Context, args []string) error {
	switch {
	case len(args) != 0:
		return errors.Fmt("unexpected positional arguments: %q", args)
	case r.studyPath == "":
		return errors.New("-study is required")
	}

	run, err := r.runStudy(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.out, 0777); err != nil {
		return err
	}

	blob, err := json.MarshalIndent(run.Results, "", "  ")
	if err != nil {
		return err
	}
	if err := r.writeFile(ctx, "results.json", append(blob, '\n')); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := writeExcessCSV(&buf, run.Results.Excess); err != nil {
		return err
	}
	if err := r.writeFile(ctx, "excess.csv", buf.Bytes()); err != nil {
		return err
	}

	if run.Results.Comorbidity != nil {
		buf.Reset()
		if err := writeConditionsCSV(&buf, run.Results.Comorbidity); err != nil {
			return err
		}
		if err := r.writeFile(ctx, "conditions.csv", buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (r *computeRun) writeFile(ctx context.Context, name string, blob []byte) error {
	path := filepath.Join(r.out, name)
	if err := os.WriteFile(path, blob, 0666); err != nil {
		return err
	}
	logging.Infof(ctx, "Wrote %s", path)
	return nil
}

// writeExcessCSV writes the weekly excess mortality series as CSV, one row
// per MMWR week.
func writeExcessCSV(w io.Writer, sum *stats.ExcessSummary) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{
		"mmwr_year", "mmwr_week", "week_ending",
		"observed", "expected", "excess", "lower", "upper",
		"elevated", "suppressed",
	})
	for _, wk := range sum.Weeks {
		cw.Write([]string{
			strconv.Itoa(wk.Week.Year),
			strconv.Itoa(wk.Week.Week),
			wk.Ending.UTC().Format("2006-01-02"),
			strconv.FormatInt(wk.Observed, 10),
			csvFloat(wk.Expected),
			csvFloat(wk.Excess),
			csvFloat(wk.Lower),
			csvFloat(wk.Upper),
			strconv.FormatBool(wk.Elevated),
			strconv.FormatBool(wk.Suppressed),
		})
	}
	cw.Flush()
	return cw.Error()
}

// writeConditionsCSV writes the per-condition comorbidity counts as CSV.
func writeConditionsCSV(w io.Writer, sum *stats.ComorbiditySummary) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"condition_group", "condition", "mentions", "deaths", "suppressed"})
	for _, c := range sum.Conditions {
		cw.Write([]string{
			c.Group,
			c.Condition,
			strconv.FormatInt(c.Mentions, 10),
			strconv.FormatInt(c.Deaths, 10),
			strconv.FormatBool(c.Suppressed),
		})
	}
	cw.Flush()
	return cw.Error()
}

func csvFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
