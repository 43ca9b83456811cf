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
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/dataset"
)

func cmdDatasets() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "datasets",
		ShortDesc: "print the dataset registry",
		LongDesc: text.Doc(`
			Print the NCHS datasets cdcstats knows how to fetch.

			The ID column is what -dataset flags and the datasets block of a
			study definition refer to.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &datasetsRun{}
			r.init()
			return r
		},
	}
}

type datasetsRun struct {
	baseCommandRun
}

func (r *datasetsRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return r.done(ctx, r.run(ctx, args))
}

func (r *datasetsRun) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errors.Fmt("unexpected positional arguments: %q", args)
	}
	return printSources(os.Stdout, dataset.Sources())
}

func printSources(w io.Writer, srcs []dataset.Source) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tURL\n")
	for _, src := range srcs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", src.ID, src.Name, src.URL)
	}
	return tw.Flush()
}
