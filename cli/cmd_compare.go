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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/study"
)

func cmdCompare() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "compare -study FILE [flags]",
		ShortDesc: "check recomputed statistics against published figures",
		LongDesc: text.Doc(`
			Recompute the study and compare the results with the figures the
			study publishes.

			Exits non-zero unless every published figure is REPRODUCED within
			its tolerance.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &compareRun{}
			r.init()
			r.registerStudyFlags()
			r.Flags.BoolVar(&r.jsonOut, "json", false,
				"Print the comparison as JSON instead of a table.")
			return r
		},
	}
}

type compareRun struct {
	studyCommandRun
	jsonOut bool
}

func (r *compareRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return r.done(ctx, r.run(ctx, args))
}

func (r *compareRun) run(ctx context.Context, args []string) error {
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
	if r.jsonOut {
		blob, err := json.MarshalIndent(run.Comparison, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", blob)
	} else if err := printComparison(os.Stdout, run.Comparison); err != nil {
		return err
	}

	if run.Comparison.Overall != study.Reproduced {
		return errors.Fmt("study %s: %s", run.Study.Meta.Name, run.Comparison.Overall)
	}
	return nil
}

func printComparison(w io.Writer, cmp *study.Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tMETRIC\tPUBLISHED\tRECOMPUTED\tDELTA\tVERDICT\n")
	for _, f := range cmp.Figures {
		if f.Verdict == study.NotComputed {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\t\t%s\n", f.ID, f.Metric, figure(f.Published), f.Verdict)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Metric, figure(f.Published), figure(f.Recomputed), figure(f.Delta), f.Verdict)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nOverall: %s\n", cmp.Overall)
	return err
}

func figure(v float64) string {
	return humanize.CommafWithDigits(v, 1)
}
