package report

import (
	"fmt"
	"strings"
	"time"
)

// Fallback strings substituted for absent structured fields. The renderer
// is on the report read path and must produce a document for any input.
const (
	FallbackTitle   = "Power Quality Compliance Report"
	FallbackText    = "Not available"
	FallbackSection = "_No content available for this section._"

	unavailableDoc = `# Report Unavailable

The compliance report could not be rendered. Please retry the analysis or contact support.
`
)

// ToMdx deterministically converts a structured report into an MDX
// document. It never fails: a nil report or a panic during conversion
// yields the fixed unavailable document.
func ToMdx(r *Report) (mdx string) {
	defer func() {
		if rec := recover(); rec != nil {
			mdx = unavailableDoc
		}
	}()

	if r == nil {
		return unavailableDoc
	}

	var b strings.Builder

	title := strings.TrimSpace(r.Metadata.Title)
	if title == "" {
		title = FallbackTitle
	}
	fmt.Fprintf(&b, "# %s\n\n", EscapeMdx(title))

	author := strings.TrimSpace(r.Metadata.Author)
	if author == "" {
		author = FallbackText
	}
	generated := strings.TrimSpace(r.Metadata.GeneratedDate)
	if generated == "" {
		generated = time.Now().UTC().Format("2006-01-02")
	}
	fmt.Fprintf(&b, "**Author:** %s  \n", EscapeMdx(author))
	fmt.Fprintf(&b, "**Generated:** %s  \n", EscapeMdx(generated))
	if src := strings.TrimSpace(r.Metadata.SourceFile); src != "" {
		fmt.Fprintf(&b, "**Source dataset:** `%s`  \n", strings.ReplaceAll(src, "`", "'"))
	}
	b.WriteString("\n")

	if len(r.Sections) == 0 {
		b.WriteString("## Findings\n\n")
		b.WriteString(FallbackSection)
		b.WriteString("\n")
	}
	for _, section := range r.Sections {
		heading := strings.TrimSpace(section.Heading)
		if heading == "" {
			heading = FallbackText
		}
		fmt.Fprintf(&b, "## %s\n\n", EscapeMdx(heading))

		content := strings.TrimSpace(section.Content)
		if content == "" {
			b.WriteString(FallbackSection)
		} else {
			b.WriteString(EscapeMdx(content))
		}
		b.WriteString("\n\n")

		if section.Chart != nil && section.Chart.StorageKey != "" {
			alt := strings.TrimSpace(section.Chart.Title)
			if alt == "" {
				alt = heading
			}
			fmt.Fprintf(&b, "![%s](%s)\n\n", EscapeMdx(alt), section.Chart.StorageKey)
		}
	}

	if len(r.Bibliography) > 0 {
		b.WriteString("## References\n\n")
		for i, entry := range r.Bibliography {
			text := strings.TrimSpace(entry)
			if text == "" {
				text = FallbackText
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, EscapeMdx(text))
		}
		b.WriteString("\n")
	}

	return b.String()
}

var mdxEscaper = strings.NewReplacer(
	"{", "&#123;",
	"}", "&#125;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeMdx escapes the characters that are unsafe inside MDX body text.
// Braces and angle brackets open JSX expressions; everything else passes
// through so markdown formatting from the model survives.
func EscapeMdx(s string) string {
	return mdxEscaper.Replace(s)
}
