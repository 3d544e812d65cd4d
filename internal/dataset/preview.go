package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"powerquality-backend/internal/shared/storage/object"
)

const (
	// maxPreviewRows bounds how many data rows go into the LLM prompt.
	maxPreviewRows = 200
	maxFieldLen    = 120
)

// Preview is a bounded textual sample of an uploaded CSV dataset.
type Preview struct {
	Columns   []string
	RowCount  int
	Truncated bool
	Sample    [][]string
}

// Load reads a stored CSV and produces a preview for prompting.
func Load(ctx context.Context, store object.ObjectStore, storageKey string) (Preview, error) {
	body, err := store.Open(ctx, storageKey)
	if err != nil {
		return Preview{}, fmt.Errorf("open dataset %s: %w", storageKey, err)
	}
	defer body.Close()
	return Parse(body)
}

// Parse builds a preview from CSV content. Ragged rows are tolerated; the
// reader only fails on malformed quoting.
func Parse(r io.Reader) (Preview, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Preview{}, fmt.Errorf("dataset is empty")
	}
	if err != nil {
		return Preview{}, fmt.Errorf("read csv header: %w", err)
	}

	preview := Preview{Columns: clampFields(header)}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Preview{}, fmt.Errorf("read csv row %d: %w", preview.RowCount+1, err)
		}
		preview.RowCount++
		if len(preview.Sample) < maxPreviewRows {
			preview.Sample = append(preview.Sample, clampFields(record))
		} else {
			preview.Truncated = true
		}
	}
	return preview, nil
}

// PromptText renders the preview as the dataset sample block for prompts.
func (p Preview) PromptText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "columns: %s\n", strings.Join(p.Columns, ", "))
	fmt.Fprintf(&b, "rows: %d", p.RowCount)
	if p.Truncated {
		fmt.Fprintf(&b, " (sample of first %d shown)", maxPreviewRows)
	}
	b.WriteString("\n\n")
	for _, row := range p.Sample {
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	return b.String()
}

func clampFields(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if len(f) > maxFieldLen {
			f = f[:maxFieldLen]
		}
		out[i] = f
	}
	return out
}
