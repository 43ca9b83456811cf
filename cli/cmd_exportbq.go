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

	"cloud.google.com/go/bigquery"
	"github.com/maruel/subcommands"
	"google.golang.org/api/option"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/openmortality/cdcstats/bqexport"
	"github.com/openmortality/cdcstats/fetch"
)

func cmdExportBQ(p Params) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "export-bq -study FILE -table PROJECT.DATASET.TABLE [flags]",
		ShortDesc: "upload the recomputed weekly series to BigQuery",
		LongDesc: text.Doc(`
			Recompute the study and stream its weekly excess mortality series
			into a BigQuery table.

			Insert IDs are deterministic, so a rerun within BigQuery's
			deduplication window does not duplicate rows.

			Needs OAuth credentials, run "cdcstats auth-login" once first.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &exportBQRun{}
			r.init()
			r.registerStudyFlags()
			r.Flags.StringVar(&r.table, "table", "",
				"Destination table as <project>.<dataset>.<table>.")
			r.Flags.IntVar(&r.batchSize, "batch-size", bqexport.DefaultBatchSize,
				"Rows per insert request.")
			r.authFlags.Register(&r.Flags, p.Auth)
			return r
		},
	}
}

type exportBQRun struct {
	studyCommandRun
	table     string
	batchSize int
	authFlags authcli.Flags
}

func (r *exportBQRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return r.done(ctx, r.run(ctx, args))
}

func (r *exportBQRun) validate(args []string) error {
	switch {
	case len(args) != 0:
		return errors.Fmt("unexpected positional arguments: %q", args)
	case r.studyPath == "":
		return errors.New("-study is required")
	case r.table == "":
		return errors.New("-table is required")
	case r.batchSize <= 0:
		return errors.New("-batch-size must be positive")
	}
	_, _, _, err := bqexport.ParseTable(r.table)
	return err
}

func (r *exportBQRun) run(ctx context.Context, args []string) error {
	if err := r.validate(args); err != nil {
		return err
	}
	project, ds, table, err := bqexport.ParseTable(r.table)
	if err != nil {
		return err
	}

	authOpts, err := r.authFlags.Options()
	if err != nil {
		return err
	}
	ts, err := auth.NewAuthenticator(ctx, auth.SilentLogin, authOpts).TokenSource()
	switch {
	case err == auth.ErrLoginRequired:
		return errors.New("not logged in, run `cdcstats auth-login` first")
	case err != nil:
		return err
	}

	run, err := r.runStudy(ctx)
	if err != nil {
		return err
	}
	rows := bqexport.Rows(run.Results, run.Snapshots)
	if len(rows) == 0 {
		logging.Infof(ctx, "Nothing to export")
		return nil
	}

	client, err := bigquery.NewClient(ctx, project,
		option.WithTokenSource(ts),
		option.WithUserAgent(fetch.DefaultUserAgent))
	if err != nil {
		return err
	}
	defer client.Close()

	ins := client.Dataset(ds).Table(table).Inserter()
	if err := bqexport.Upload(ctx, ins, rows, r.batchSize); err != nil {
		return err
	}
	logging.Infof(ctx, "Inserted %d rows into %s", len(rows), r.table)
	return nil
}
