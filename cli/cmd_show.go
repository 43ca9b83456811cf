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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/fetch"
)

func cmdShow() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "show -dataset ID [flags]",
		ShortDesc: "print a cached dataset's schema and first rows",
		LongDesc: text.Doc(`
			Print the provenance, inferred schema and first rows of the newest
			cached snapshot of a dataset.

			With -json, only the rows are printed, as a JSON array of typed
			records.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &showRun{}
			r.init()
			r.registerCacheDirFlag()
			r.Flags.StringVar(&r.dataset, "dataset", "",
				"Registry ID, or the -name of a -url fetch, of the cached dataset.")
			r.Flags.IntVar(&r.limit, "limit", 10, "How many rows to print.")
			r.Flags.BoolVar(&r.jsonOut, "json", false,
				"Print rows as a JSON array instead of text.")
			return r
		},
	}
}

type showRun struct {
	baseCommandRun
	dataset string
	limit   int
	jsonOut bool
}

func (r *showRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return r.done(ctx, r.run(ctx, args))
}

func (r *showRun) run(ctx context.Context, args []string) error {
	switch {
	case len(args) != 0:
		return errors.Fmt("unexpected positional arguments: %q", args)
	case r.dataset == "":
		return errors.New("-dataset is required")
	case r.limit < 0:
		return errors.New("-limit must not be negative")
	}

	c := fetch.NewCache(r.cacheDir)
	snap, body, err := c.Open(r.dataset)
	switch {
	case errors.Is(err, fetch.ErrNoSnapshot):
		return errors.Fmt("dataset %q is not cached, fetch it first: cdcstats fetch -dataset %s", r.dataset, r.dataset)
	case err != nil:
		return err
	}
	tab, err := dataset.Parse(snap.Dataset, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return printTable(os.Stdout, snap, tab, r.limit, r.jsonOut)
}

func printTable(w io.Writer, snap *fetch.Snapshot, tab *dataset.Table, limit int, jsonOut bool) error {
	rows := tab.Rows()[:min(limit, tab.NumRows())]

	if jsonOut {
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", out)
		return err
	}

	fmt.Fprintf(w, "%s\n", snap.Dataset)
	fmt.Fprintf(w, "  fetched %s from %s\n", snap.FetchedAt.UTC().Format(time.RFC3339), snap.URL)
	fmt.Fprintf(w, "  sha256:%s, %s, %s rows\n", snap.Digest(),
		humanize.Bytes(uint64(snap.SizeBytes)), humanize.Comma(int64(snap.RowCount)))
	fmt.Fprintf(w, "\n")
	for _, col := range tab.Columns {
		fmt.Fprintf(w, "  %-40s %s\n", col.Name, col.Kind)
	}
	fmt.Fprintf(w, "\n")
	for _, rec := range rows {
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", out)
	}
	return nil
}
