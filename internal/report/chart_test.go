package report

import (
	"strings"
	"testing"
)

func TestChartSVGEmptySeries(t *testing.T) {
	svg := ChartSVG(Chart{})
	if !strings.HasPrefix(svg, "<svg ") || !strings.Contains(svg, "</svg>") {
		t.Fatalf("expected valid svg document, got %q", svg)
	}
	if !strings.Contains(svg, FallbackText) {
		t.Fatalf("expected fallback title for untitled chart")
	}
	if strings.Contains(svg, "<polyline") {
		t.Fatalf("empty series must not render a polyline")
	}
}

func TestChartSVGSeries(t *testing.T) {
	chart := Chart{
		Title: "Voltage over time",
		Unit:  "V",
		Points: []ChartPoint{
			{Label: "00:00", Value: 229.8},
			{Label: "00:10", Value: 231.2},
			{Label: "00:20", Value: 230.1},
		},
	}
	svg := ChartSVG(chart)
	for _, want := range []string{"<polyline", "Voltage over time", "00:00", "00:20", ">V</text>"} {
		if !strings.Contains(svg, want) {
			t.Fatalf("expected %q in svg:\n%s", want, svg)
		}
	}
}

func TestChartSVGFlatSeries(t *testing.T) {
	chart := Chart{Points: []ChartPoint{{Label: "a", Value: 50}, {Label: "b", Value: 50}}}
	svg := ChartSVG(chart)
	if !strings.Contains(svg, "<polyline") {
		t.Fatalf("flat series must still render, got %q", svg)
	}
}

func TestChartSVGDeterministic(t *testing.T) {
	chart := Chart{Title: "T", Points: []ChartPoint{{Label: "a", Value: 1}, {Label: "b", Value: 2}}}
	if ChartSVG(chart) != ChartSVG(chart) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestChartSVGEscapesMarkup(t *testing.T) {
	chart := Chart{Title: `<script>"x" & y</script>`}
	svg := ChartSVG(chart)
	if strings.Contains(svg, "<script>") {
		t.Fatalf("expected markup escaped, got %q", svg)
	}
	if !strings.Contains(svg, "&lt;script&gt;") {
		t.Fatalf("expected escaped title, got %q", svg)
	}
}
