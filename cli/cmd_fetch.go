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

	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/flag/stringlistflag"

	"github.com/openmortality/cdcstats/dataset"
	"github.com/openmortality/cdcstats/fetch"
)

func cmdFetch() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "fetch [flags]",
		ShortDesc: "download dataset snapshots into the cache",
		LongDesc: text.Doc(`
			Download CSV exports from data.cdc.gov and record them in the
			local snapshot cache, addressed by the SHA-256 of the bytes.

			Datasets are named by registry ID, see the datasets subcommand.
			A one-off export can be fetched with -url and -name instead.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &fetchRun{}
			r.init()
			r.registerCacheDirFlag()
			r.Flags.Var(&r.datasets, "dataset",
				"Registry ID of a dataset to fetch. May be repeated.")
			r.Flags.BoolVar(&r.all, "all", false,
				"Fetch every dataset in the registry.")
			r.Flags.StringVar(&r.url, "url", "",
				"Fetch a CSV export from this URL instead of the registry.")
			r.Flags.StringVar(&r.name, "name", "",
				"Dataset name to file a -url fetch under.")
			r.Flags.BoolVar(&r.force, "force", false,
				"Refetch even if the dataset is already cached.")
			return r
		},
	}
}

type fetchRun struct {
	baseCommandRun
	datasets stringlistflag.Flag
	all      bool
	url      string
	name     string
	force    bool
}

func (r *fetchRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return r.done(ctx, r.run(ctx, args))
}

func (r *fetchRun) validate(args []string) error {
	switch {
	case len(args) != 0:
		return errors.Fmt("unexpected positional arguments: %q", args)
	case r.url != "" && (r.all || len(r.datasets) > 0):
		return errors.New("-url cannot be combined with -dataset or -all")
	case r.url != "" && r.name == "":
		return errors.New("-url needs -name")
	case r.url == "" && r.name != "":
		return errors.New("-name only makes sense with -url")
	case r.all && len(r.datasets) > 0:
		return errors.New("-all and -dataset are mutually exclusive")
	case r.url == "" && !r.all && len(r.datasets) == 0:
		return errors.New("pass -dataset, -all or -url")
	}
	seen := stringset.New(len(r.datasets))
	for _, id := range r.datasets {
		if _, ok := dataset.SourceByID(id); !ok {
			return errors.Fmt("unknown dataset %q, run `cdcstats datasets` for the list", id)
		}
		if !seen.Add(id) {
			return errors.Fmt("duplicate -dataset %q", id)
		}
	}
	return nil
}

func (r *fetchRun) sources() []dataset.Source {
	switch {
	case r.url != "":
		return []dataset.Source{{ID: r.name, Name: r.name, URL: r.url}}
	case r.all:
		return dataset.Sources()
	}
	srcs := make([]dataset.Source, 0, len(r.datasets))
	for _, id := range r.datasets {
		src, _ := dataset.SourceByID(id)
		srcs = append(srcs, src)
	}
	return srcs
}

func (r *fetchRun) run(ctx context.Context, args []string) error {
	if err := r.validate(args); err != nil {
		return err
	}
	srcs := r.sources()

	f := &fetch.Fetcher{}
	_, snaps, err := f.FetchAll(ctx, fetch.NewCache(r.cacheDir), srcs, r.force)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		snap := snaps[src.ID]
		fmt.Printf("%s: %s rows, %s, sha256:%s\n",
			src.ID,
			humanize.Comma(int64(snap.RowCount)),
			humanize.Bytes(uint64(snap.SizeBytes)),
			snap.Digest())
	}
	return nil
}
