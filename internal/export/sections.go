package export

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"roivault/api/internal/store"
)

// SectionsToHTML renders report sections to HTML in order. Text sections
// become paragraphs, chart sections a data table with the chart type as a
// caption, and table sections a plain HTML table.
func SectionsToHTML(sections []store.Section) string {
	ordered := make([]store.Section, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	var sb strings.Builder
	for _, section := range ordered {
		sb.WriteString(fmt.Sprintf("<section>\n<h2>%s</h2>\n", html.EscapeString(section.Title)))
		switch section.Content.Type {
		case store.ContentText:
			renderTextContent(&sb, section.Content.Text)
		case store.ContentChart:
			renderChartContent(&sb, section.Content.Chart)
		case store.ContentTable:
			renderTableContent(&sb, section.Content.Table)
		}
		sb.WriteString("</section>\n")
	}
	return sb.String()
}

func renderTextContent(sb *strings.Builder, text string) {
	for _, paragraph := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("<p>%s</p>\n", html.EscapeString(trimmed)))
	}
}

// Charts cannot render as graphics in a static export; the underlying data
// is emitted as a table with one row per dataset.
func renderChartContent(sb *strings.Builder, chart *store.ChartData) {
	if chart == nil {
		return
	}
	sb.WriteString(fmt.Sprintf("<table class=\"chart-data\">\n<caption>%s chart</caption>\n<thead><tr><th></th>", html.EscapeString(chart.Type)))
	for _, label := range chart.Labels {
		sb.WriteString(fmt.Sprintf("<th>%s</th>", html.EscapeString(label)))
	}
	sb.WriteString("</tr></thead>\n<tbody>\n")
	for _, dataset := range chart.Datasets {
		sb.WriteString(fmt.Sprintf("<tr><th>%s</th>", html.EscapeString(dataset.Label)))
		for _, value := range dataset.Values {
			sb.WriteString(fmt.Sprintf("<td>%s</td>", strconv.FormatFloat(value, 'f', -1, 64)))
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>\n")
}

func renderTableContent(sb *strings.Builder, table *store.TableData) {
	if table == nil {
		return
	}
	sb.WriteString("<table>\n<thead><tr>")
	for _, header := range table.Headers {
		sb.WriteString(fmt.Sprintf("<th>%s</th>", html.EscapeString(header)))
	}
	sb.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range table.Rows {
		sb.WriteString("<tr>")
		for _, cell := range row {
			sb.WriteString(fmt.Sprintf("<td>%s</td>", html.EscapeString(cell)))
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>\n")
}
