package report

import (
	"fmt"
	"strings"
)

const (
	chartWidth   = 640
	chartHeight  = 320
	chartPadding = 40
)

// ChartSVG renders a chart's series as a deterministic standalone SVG.
// An empty or single-point series still yields a valid document.
func ChartSVG(chart Chart) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		chartWidth, chartHeight, chartWidth, chartHeight)
	b.WriteString("\n")

	title := strings.TrimSpace(chart.Title)
	if title == "" {
		title = FallbackText
	}
	fmt.Fprintf(&b, `<title>%s</title>`+"\n", escapeXML(title))
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`+"\n", chartWidth, chartHeight)
	fmt.Fprintf(&b, `<text x="%d" y="24" font-family="sans-serif" font-size="16">%s</text>`+"\n",
		chartPadding, escapeXML(title))

	points := chart.Points
	if len(points) > 0 {
		minV, maxV := points[0].Value, points[0].Value
		for _, p := range points[1:] {
			if p.Value < minV {
				minV = p.Value
			}
			if p.Value > maxV {
				maxV = p.Value
			}
		}
		span := maxV - minV
		if span == 0 {
			span = 1
		}

		plotW := float64(chartWidth - 2*chartPadding)
		plotH := float64(chartHeight - 2*chartPadding)
		step := plotW
		if len(points) > 1 {
			step = plotW / float64(len(points)-1)
		}

		coords := make([]string, 0, len(points))
		for i, p := range points {
			x := float64(chartPadding) + float64(i)*step
			y := float64(chartHeight-chartPadding) - (p.Value-minV)/span*plotH
			coords = append(coords, fmt.Sprintf("%.1f,%.1f", x, y))
		}
		fmt.Fprintf(&b, `<polyline fill="none" stroke="#1f6feb" stroke-width="2" points="%s"/>`+"\n",
			strings.Join(coords, " "))

		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="sans-serif" font-size="11">%s</text>`+"\n",
			chartPadding, chartHeight-chartPadding+16, escapeXML(points[0].Label))
		if len(points) > 1 {
			last := points[len(points)-1]
			fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="sans-serif" font-size="11" text-anchor="end">%s</text>`+"\n",
				chartWidth-chartPadding, chartHeight-chartPadding+16, escapeXML(last.Label))
		}
	}

	if unit := strings.TrimSpace(chart.Unit); unit != "" {
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="sans-serif" font-size="11" transform="rotate(-90 14 %d)">%s</text>`+"\n",
			14, chartHeight/2, chartHeight/2, escapeXML(unit))
	}

	b.WriteString("</svg>\n")
	return b.String()
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
