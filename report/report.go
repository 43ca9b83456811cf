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

// Package report renders reproduction runs as Markdown, HTML and JSON
// documents.
//
// Everything a report says comes from Data, so renders are deterministic:
// the same inputs produce byte-identical documents.
package report

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/russross/blackfriday/v2"

	"github.com/openmortality/cdcstats/fetch"
	"github.com/openmortality/cdcstats/stats"
	"github.com/openmortality/cdcstats/study"
)

// maxWeekRows caps the per-week excess table; the full series is in the
// JSON document.
const maxWeekRows = 26

// Data is everything one report renders.
type Data struct {
	Study      *study.Study      `json:"study"`
	Snapshots  []fetch.Snapshot  `json:"snapshots"`
	Results    *study.Results    `json:"results"`
	Comparison *study.Comparison `json:"comparison"`
}

// RenderMarkdown renders the report as a Markdown document.
func RenderMarkdown(d *Data) string {
	var b strings.Builder
	writeHeader(&b, d)
	writeProvenance(&b, d.Snapshots)
	if d.Results != nil {
		if d.Results.Excess != nil {
			writeExcess(&b, d.Results)
		}
		if d.Results.AgeAdjusted != nil {
			writeAgeAdjusted(&b, d.Results.AgeAdjusted)
		}
		if d.Results.Comorbidity != nil {
			writeComorbidity(&b, d.Results.Comorbidity)
		}
	}
	writeComparison(&b, d.Comparison)
	writeMethodology(&b, d)
	return b.String()
}

// RenderHTML renders the Markdown report into a minimal HTML document.
func RenderHTML(d *Data) string {
	body := blackfriday.Run([]byte(RenderMarkdown(d)))

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title(d)))
	b.WriteString("</head>\n<body>\n")
	b.Write(body)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// WriteJSON writes the machine-readable twin of the rendered report.
// Sections that were not computed are explicit nulls, not omitted.
func WriteJSON(w io.Writer, d *Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func title(d *Data) string {
	name := "unnamed study"
	if d.Study != nil && d.Study.Meta.Name != "" {
		name = d.Study.Meta.Name
	}
	return "Reproduction report: " + name
}

func writeHeader(b *strings.Builder, d *Data) {
	fmt.Fprintf(b, "# %s\n\n", title(d))
	if d.Study == nil {
		return
	}
	s := d.Study
	from, to := s.Window.Weeks()
	fmt.Fprintf(b, "- Jurisdiction: %s\n", s.Meta.Jurisdiction)
	fmt.Fprintf(b, "- Window: %s to %s (%s to %s)\n", s.Window.From, s.Window.To, from, to)
	yr := s.Baseline.Range()
	fmt.Fprintf(b, "- Baseline: %s over %d-%d\n", s.Baseline.Method, yr[0], yr[1])
	if d.Results != nil {
		fmt.Fprintf(b, "- Computed: %s\n", stamp(d.Results.ComputedAt))
	}
	b.WriteString("\n")
}

func writeProvenance(b *strings.Builder, snaps []fetch.Snapshot) {
	if len(snaps) == 0 {
		return
	}
	b.WriteString("## Input data\n\n")
	b.WriteString("| Dataset | Digest | Fetched | Rows | Size |\n")
	b.WriteString("| --- | --- | --- | ---: | ---: |\n")
	for i := range snaps {
		s := &snaps[i]
		fmt.Fprintf(b, "| %s | `%s` | %s | %s | %s |\n",
			s.Dataset, s.Digest(), stamp(s.FetchedAt),
			humanize.Comma(int64(s.RowCount)), humanize.Bytes(uint64(s.SizeBytes)))
	}
	b.WriteString("\n")
}

func writeExcess(b *strings.Builder, res *study.Results) {
	ex := res.Excess
	b.WriteString("## Excess mortality\n\n")
	fmt.Fprintf(b, "- Observed deaths: %s\n", humanize.Comma(ex.TotalObserved))
	fmt.Fprintf(b, "- Expected deaths: %s\n", count(ex.TotalExpected))
	fmt.Fprintf(b, "- Excess deaths: %s\n", count(ex.TotalExcess))
	fmt.Fprintf(b, "- Elevated weeks: %d of %d\n", ex.ElevatedWeeks, len(ex.Weeks))
	if len(ex.Weeks) > 0 {
		fmt.Fprintf(b, "- Peak: %s at %.1f%% of expected\n", ex.PeakWeek, ex.PeakPercent)
	}
	if ex.SuppressedWeeks > 0 {
		fmt.Fprintf(b, "- Suppressed weeks excluded from totals: %d\n", ex.SuppressedWeeks)
	}
	if res.Covid != nil {
		fmt.Fprintf(b, "- COVID-19 deaths (underlying cause): %s\n", humanize.Comma(res.Covid.Total))
	}
	b.WriteString("\n")

	if len(ex.Weeks) == 0 {
		return
	}
	fmt.Fprintf(b, "| Week | Ending | Observed | Expected | Excess | %.0f%% PI | Elevated |\n", ex.Level*100)
	b.WriteString("| --- | --- | ---: | ---: | ---: | --- | --- |\n")
	rows := ex.Weeks
	capped := 0
	if len(rows) > maxWeekRows {
		capped = len(rows) - maxWeekRows
		rows = rows[:maxWeekRows]
	}
	for _, w := range rows {
		if w.Suppressed {
			fmt.Fprintf(b, "| %s | %s | suppressed | %s | | %s to %s | |\n",
				w.Week, day(w.Ending), count(w.Expected), count(w.Lower), count(w.Upper))
			continue
		}
		mark := ""
		if w.Elevated {
			mark = "yes"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s to %s | %s |\n",
			w.Week, day(w.Ending), humanize.Comma(w.Observed),
			count(w.Expected), count(w.Excess), count(w.Lower), count(w.Upper), mark)
	}
	if capped > 0 {
		fmt.Fprintf(b, "\n%d more weeks are in the JSON report.\n", capped)
	}
	b.WriteString("\n")
}

func writeAgeAdjusted(b *strings.Builder, r *stats.AdjustedRate) {
	b.WriteString("## Age-adjusted mortality\n\n")
	fmt.Fprintf(b, "- Crude rate: %.1f per 100,000\n", r.Crude)
	fmt.Fprintf(b, "- Age-adjusted rate: %.1f per 100,000 (%.0f%% CI %.1f to %.1f)\n",
		r.Adjusted, r.Level*100, r.Lower, r.Upper)
	b.WriteString("\n")
}

func writeComorbidity(b *strings.Builder, c *stats.ComorbiditySummary) {
	b.WriteString("## Comorbidity\n\n")
	fmt.Fprintf(b, "- Deaths involving COVID-19: %s\n", humanize.Comma(c.CovidDeaths))
	fmt.Fprintf(b, "- Additional condition mentions: %s\n", humanize.Comma(c.TotalMentions))
	fmt.Fprintf(b, "- Mean additional conditions per death: %.2f\n", c.MeanAdditionalConditions)
	if c.SuppressedConditions > 0 {
		fmt.Fprintf(b, "- Conditions with suppressed counts: %d\n", c.SuppressedConditions)
	}
	b.WriteString("\n")

	if len(c.Groups) == 0 {
		return
	}
	b.WriteString("| Condition group | Mentions | Percent of deaths |\n")
	b.WriteString("| --- | ---: | ---: |\n")
	for _, g := range c.Groups {
		fmt.Fprintf(b, "| %s | %s | %.1f%% |\n", g.Group, humanize.Comma(g.Mentions), g.PercentOfDeaths)
	}
	b.WriteString("\n")
}

func writeComparison(b *strings.Builder, cmp *study.Comparison) {
	if cmp == nil {
		return
	}
	b.WriteString("## Published figures\n\n")
	if len(cmp.Figures) == 0 {
		b.WriteString("The study lists no published figures.\n")
	} else {
		b.WriteString("| ID | Metric | Published | Recomputed | Delta | Verdict |\n")
		b.WriteString("| --- | --- | ---: | ---: | ---: | --- |\n")
		for _, f := range cmp.Figures {
			if f.Verdict == study.NotComputed {
				fmt.Fprintf(b, "| %s | %s | %s | | | %s |\n", f.ID, f.Metric, count(f.Published), f.Verdict)
				continue
			}
			fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
				f.ID, f.Metric, count(f.Published), count(f.Recomputed), count(f.Delta), f.Verdict)
		}
	}
	fmt.Fprintf(b, "\nOverall verdict: **%s**\n\n", cmp.Overall)
}

func writeMethodology(b *strings.Builder, d *Data) {
	b.WriteString("## Methodology\n\n")
	if d.Study != nil {
		yr := d.Study.Baseline.Range()
		switch d.Study.Baseline.Method {
		case stats.Trend:
			fmt.Fprintf(b, "- Expected deaths: per-week linear regression of counts on year over %d-%d, extrapolated to the study year.\n", yr[0], yr[1])
		default:
			fmt.Fprintf(b, "- Expected deaths: per-week mean of counts over %d-%d.\n", yr[0], yr[1])
		}
		fmt.Fprintf(b, "- Prediction interval: Poisson normal approximation, expected +/- z*sqrt(expected) at level %g.\n", d.Study.Interval.Level)
	}
	b.WriteString("- Excess deaths: observed minus expected, summed over non-suppressed weeks.\n")
	b.WriteString("- Weeks are MMWR weeks ending on Saturday; week 1 ends on the first Saturday falling on or after January 4.\n")
	b.WriteString("- Week 53 baselines fall back to week 52 in years without a week 53.\n")
	b.WriteString("- Age adjustment: direct standardization to the 2000 US standard million, weights renormalized over the bands provided.\n")
	b.WriteString("- Counts the source suppresses (1-9 deaths) are excluded from totals and reported per section.\n")
}

// count formats a death count with thousands separators and at most one
// decimal.
func count(v float64) string {
	return humanize.CommafWithDigits(v, 1)
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
