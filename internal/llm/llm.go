package llm

import (
	"context"
	"errors"

	"powerquality-backend/internal/report"
)

// Client abstracts the generative backend for the pipeline stages and the
// chat orchestrator.
type Client interface {
	SummarizeDataset(ctx context.Context, input SummarizeInput) (string, error)
	IdentifyRegulations(ctx context.Context, input RegulationsInput) ([]string, error)
	GenerateComplianceReport(ctx context.Context, input ReportInput) (*report.Report, error)
	// StreamChat emits partial response text through onDelta as it arrives
	// and returns the final structured outcome once the stream completes.
	StreamChat(ctx context.Context, input ChatInput, onDelta func(string)) (ChatOutcome, error)
}

// SummarizeInput carries the sampled dataset for the summarization stage.
type SummarizeInput struct {
	FileName     string
	DataPreview  string
	LanguageCode string
}

// RegulationsInput carries the summary for the regulation-identification stage.
type RegulationsInput struct {
	DataSummary  string
	LanguageCode string
}

// ReportInput carries everything the compliance-report stage needs.
type ReportInput struct {
	FileName     string
	DataSummary  string
	Regulations  []string
	LanguageCode string
}

// ChatInput carries the full report context for one chat turn.
type ChatInput struct {
	UserInputText string
	ReportMdx     string
	Report        *report.Report
	FileName      string
	LanguageCode  string
}

// ChatOutcome is the structured result of a chat turn. When the model
// decides the report needs revision, RevisedReport is non-nil.
type ChatOutcome struct {
	Reply         string         `json:"reply"`
	ReviseReport  bool           `json:"reviseReport"`
	RevisedReport *report.Report `json:"revisedReport,omitempty"`
}

// ErrEmptyOutput indicates the model returned no usable output.
var ErrEmptyOutput = errors.New("llm returned empty output")

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("llm not configured")

// PlaceholderClient is a stub implementation for environments without a
// provider configured.
type PlaceholderClient struct{}

func (PlaceholderClient) SummarizeDataset(ctx context.Context, input SummarizeInput) (string, error) {
	_ = ctx
	_ = input
	return "", ErrNotImplemented
}

func (PlaceholderClient) IdentifyRegulations(ctx context.Context, input RegulationsInput) ([]string, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}

func (PlaceholderClient) GenerateComplianceReport(ctx context.Context, input ReportInput) (*report.Report, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}

func (PlaceholderClient) StreamChat(ctx context.Context, input ChatInput, onDelta func(string)) (ChatOutcome, error) {
	_ = ctx
	_ = input
	_ = onDelta
	return ChatOutcome{}, ErrNotImplemented
}
