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
	"os"
	"path/filepath"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/flag/stringlistflag"
	"go.chromium.org/luci/common/logging"

	"github.com/openmortality/cdcstats/report"
)

// reportFormats are the -format values cmdReport accepts, in the order the
// files are written when no -format is passed.
var reportFormats = []string{"md", "html", "json"}

func cmdReport() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "report -study FILE [flags]",
		ShortDesc: "render a reproduction report",
		LongDesc: text.Doc(`
			Recompute the study and render the reproduction report, covering
			input provenance, the recomputed statistics, the comparison with
			published figures and the methodology.

			Writes report.md, report.html and report.json under -out, or the
			subset selected with -format.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &reportRun{}
			r.init()
			r.registerStudyFlags()
			r.Flags.StringVar(&r.out, "out", ".", "Directory to write the report into.")
			r.Flags.Var(&r.formats, "format",
				"Report format to write: md, html or json. May be repeated, defaults to all three.")
			return r
		},
	}
}

type reportRun struct {
	studyCommandRun
	out     string
	formats stringlistflag.Flag
}

func (r *reportRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return r.done(ctx, r.run(ctx, args))
}

// normalizeFormats validates -format values and fills in the default set.
func normalizeFormats(formats []string) ([]string, error) {
	if len(formats) == 0 {
		return reportFormats, nil
	}
	known := stringset.NewFromSlice(reportFormats...)
	seen := stringset.New(len(formats))
	var out []string
	for _, f := range formats {
		if !known.Has(f) {
			return nil, errors.Fmt("unknown -format %q, pass md, html or json", f)
		}
		if seen.Add(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *reportRun) run(ctx context.Context, args []string) error {
	switch {
	case len(args) != 0:
		return errors.Fmt("unexpected positional arguments: %q", args)
	case r.studyPath == "":
		return errors.New("-study is required")
	}
	formats, err := normalizeFormats(r.formats)
	if err != nil {
		return err
	}

	run, err := r.runStudy(ctx)
	if err != nil {
		return err
	}
	data := &report.Data{
		Study:      run.Study,
		Snapshots:  run.Snapshots,
		Results:    run.Results,
		Comparison: run.Comparison,
	}

	if err := os.MkdirAll(r.out, 0777); err != nil {
		return err
	}
	for _, f := range formats {
		var blob []byte
		switch f {
		case "md":
			blob = []byte(report.RenderMarkdown(data))
		case "html":
			blob = []byte(report.RenderHTML(data))
		case "json":
			var buf bytes.Buffer
			if err := report.WriteJSON(&buf, data); err != nil {
				return err
			}
			blob = buf.Bytes()
		}
		path := filepath.Join(r.out, "report."+f)
		if err := os.WriteFile(path, blob, 0666); err != nil {
			return err
		}
		logging.Infof(ctx, "Wrote %s", path)
	}
	return nil
}
