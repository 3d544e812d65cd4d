package report

// Report is the structured compliance report produced by the final
// pipeline stage and revised by the chat orchestrator.
type Report struct {
	Metadata     Metadata  `json:"metadata"`
	Sections     []Section `json:"sections"`
	Bibliography []string  `json:"bibliography,omitempty"`
}

// Metadata carries report-level descriptive fields.
type Metadata struct {
	Title         string `json:"title"`
	Author        string `json:"author,omitempty"`
	GeneratedDate string `json:"generatedDate,omitempty"`
	LanguageCode  string `json:"languageCode,omitempty"`
	SourceFile    string `json:"sourceFile,omitempty"`
}

// Section is one block of the report body.
type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
	Chart   *Chart `json:"chart,omitempty"`
}

// Chart describes an embeddable chart for a section. Points are
// (label, value) pairs rendered as a simple line chart.
type Chart struct {
	Title  string       `json:"title,omitempty"`
	Unit   string       `json:"unit,omitempty"`
	Points []ChartPoint `json:"points,omitempty"`

	// StorageKey references the rendered SVG blob once persisted.
	StorageKey string `json:"storageKey,omitempty"`
}

// ChartPoint is one sample in a chart series.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}
