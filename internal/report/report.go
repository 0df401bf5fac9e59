// Package report renders a forecast run as Markdown, and as HTML via gomarkdown.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"pollcast/domain/forecast"
)

// Markdown renders run as a Markdown document.
func Markdown(run *forecast.Run) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Forecast %s\n\n", run.ID)
	fmt.Fprintf(&b, "- Created: %s\n", run.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- History: `%s`\n", run.DatasetHash.Short())
	if run.PollsHash != "" {
		fmt.Fprintf(&b, "- Polls: `%s`\n", run.PollsHash.Short())
	}
	fmt.Fprintf(&b, "- Seed: %d, folds: %d, split: %g/%g\n", run.Seed, run.Folds, run.Split[0], run.Split[1])
	fmt.Fprintf(&b, "- Policy: %s, metric: %s\n\n", run.Policy, run.Metric)

	writePerformance(&b, run.Performance, run.BestOrder)

	b.WriteString("## Test set\n\n")
	b.WriteString("| Channel | RMSE |\n|---|---:|\n")
	for c, rmse := range run.TestRMSE {
		fmt.Fprintf(&b, "| %s | %.4f |\n", run.Labels[c], rmse)
	}
	fmt.Fprintf(&b, "\nError margin: **%.4f**\n\n", run.ErrorMargin)

	b.WriteString("## Tier thresholds\n\n")
	b.WriteString("| Tier | Margin |\n|---|---|\n")
	fmt.Fprintf(&b, "| %s | below %.4f |\n", forecast.TierTilt, run.Thresholds[0])
	fmt.Fprintf(&b, "| %s | %.4f to %.4f |\n", forecast.TierLean, run.Thresholds[0], run.Thresholds[1])
	fmt.Fprintf(&b, "| %s | %.4f to %.4f |\n", forecast.TierLikely, run.Thresholds[1], run.Thresholds[2])
	fmt.Fprintf(&b, "| %s | %.4f and above |\n\n", forecast.TierSafe, run.Thresholds[2])

	b.WriteString("## Prediction check\n\n")
	if run.Check.Passed {
		fmt.Fprintf(&b, "Passed for %d rows (tolerance %g).\n\n", run.Check.RowsChecked, run.Check.Tolerance)
	} else {
		fmt.Fprintf(&b, "Failed (tolerance %g): unequal lengths %t, negative values %d, rows summing above one %d.\n\n",
			run.Check.Tolerance, run.Check.UnequalLengths, run.Check.NegativeValues, run.Check.SumAboveOne)
	}

	if len(run.Forecasts) > 0 {
		b.WriteString("## Forecast\n\n")
		fmt.Fprintf(&b, "| Region | %s | %s | %s | Winner | Margin | Tier |\n", run.Labels[0], run.Labels[1], run.Labels[2])
		b.WriteString("|---|---:|---:|---:|---|---:|---|\n")
		for _, f := range run.Forecasts {
			winner := f.Winner
			if winner == "" {
				winner = "tie"
			}
			fmt.Fprintf(&b, "| %s | %.1f%% | %.1f%% | %.1f%% | %s | %.1f%% | %s |\n",
				f.Key, 100*f.Shares[0], 100*f.Shares[1], 100*f.Shares[2], winner, 100*f.Margin, f.Tier)
		}
	}
	return []byte(b.String())
}

func writePerformance(b *strings.Builder, table *forecast.PerformanceTable, best int) {
	if table == nil {
		return
	}
	b.WriteString("## Model selection\n\n")
	b.WriteString("| Order | Mean score | |\n|---:|---:|---|\n")
	for _, order := range table.Orders {
		mark := ""
		if order == best {
			mark = "selected"
		}
		fmt.Fprintf(b, "| %d | %.6f | %s |\n", order, table.Mean[order], mark)
	}
	b.WriteString("\n")
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.2rem 0.6rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders run as a standalone HTML page.
func HTML(run *forecast.Run) ([]byte, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	body := markdown.ToHTML(Markdown(run), p, renderer)

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: fmt.Sprintf("Forecast %s", run.ID),
		Body:  template.HTML(body),
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
