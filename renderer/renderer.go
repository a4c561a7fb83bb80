// Package renderer renders holdings, portfolio summaries and goal progress
// as markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
	"time"

	"github.com/etnz/valuation"
)

//go:embed templates/*.md
var templatesFS embed.FS

var templates, _ = fs.Sub(templatesFS, "templates")

const unknown = "n/a"

var funcs = template.FuncMap{
	"money":  formatMoney,
	"signed": formatSigned,
	"pct":    formatPercent,
	"days":   formatDays,
	"day":    formatDay,
}

func formatMoney(v any) string {
	switch m := v.(type) {
	case valuation.Money:
		return m.String()
	case *valuation.Money:
		if m != nil {
			return m.String()
		}
	}
	return unknown
}

func formatSigned(v any) string {
	switch m := v.(type) {
	case valuation.Money:
		return m.SignedString()
	case *valuation.Money:
		if m != nil {
			return m.SignedString()
		}
	case valuation.Percent:
		return m.SignedString()
	case *valuation.Percent:
		if m != nil {
			return m.SignedString()
		}
	}
	return unknown
}

func formatPercent(p *valuation.Percent) string {
	if p == nil {
		return unknown
	}
	return p.String()
}

func formatDays(d *int) string {
	if d == nil {
		return ""
	}
	return fmt.Sprint(*d)
}

func formatDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

// RenderHoldings renders a holdings table.
func RenderHoldings(holdings []valuation.HoldingSummary) string {
	partials := map[string]string{
		"holdings_title": "holdings_title.md",
		"holdings_table": "holdings_table.md",
	}
	return renderTemplate("holdings", "holdings.md", partials, holdings)
}

// RenderSummary renders a portfolio summary: totals, asset type breakdown,
// holdings and the holdings excluded from the totals.
func RenderSummary(s *valuation.PortfolioSummary) string {
	partials := map[string]string{
		"summary_title":       "summary_title.md",
		"summary_totals":      "summary_totals.md",
		"summary_asset_types": "summary_asset_types.md",
		"holdings_table":      "holdings_table.md",
		"summary_excluded":    "summary_excluded.md",
	}
	return renderTemplate("summary", "summary.md", partials, s)
}

// RenderGoals renders the goal progress table, followed by the alerts sent
// during the evaluation, if any.
func RenderGoals(progress []valuation.GoalProgress, alerts []valuation.Alert) string {
	return renderTemplate("goals", "goals.md", nil, progress) +
		renderTemplate("alerts", "alerts.md", nil, alerts)
}

// renderTemplate renders a main template that depends on several partials.
// Errors are rendered in place of the content.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		content, err := fs.ReadFile(templates, file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
