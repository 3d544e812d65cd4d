package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"powerquality-backend/internal/analyses"
	"powerquality-backend/internal/llm"
	"powerquality-backend/internal/report"
	"powerquality-backend/internal/shared/metrics"
	"powerquality-backend/internal/shared/telemetry"
	"powerquality-backend/internal/shared/util"
)

const maxChatErrorLength = 500

var (
	ErrEmptyInput     = errors.New("chat input text is required")
	ErrReportNotReady = errors.New("report is not available for chat")
)

// TurnError is returned when a chat turn fails after the AI log entry was
// reserved. It carries the entry key so clients can locate the error entry.
type TurnError struct {
	AIMessageKey string
	Err          error
}

func (e *TurnError) Error() string {
	if e.Err == nil {
		return "chat turn failed"
	}
	return "chat turn failed: " + e.Err.Error()
}

func (e *TurnError) Unwrap() error { return e.Err }

// TurnInput is one user message against a completed analysis.
type TurnInput struct {
	UserID     string
	AnalysisID string
	Text       string
}

// TurnResult is the synchronous outcome of a chat turn. Streaming deltas
// travel through the hub; this is what the HTTP response carries.
type TurnResult struct {
	Success        bool           `json:"success"`
	AIMessageKey   string         `json:"aiMessageKey"`
	ReportModified bool           `json:"reportModified"`
	RevisedReport  *report.Report `json:"revisedStructuredReport,omitempty"`
	NewMdxContent  string         `json:"newMdxContent,omitempty"`
}

// Orchestrator runs chat turns: it persists the user message, reserves an
// AI log entry, streams model output into it, and applies report revisions
// when the model requests one.
type Orchestrator struct {
	Repo     Repo
	Analyses *analyses.Service
	LLM      llm.Client
	Hub      *Hub
}

// HandleTurn processes one user chat message end to end.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) (TurnResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return TurnResult{}, ErrEmptyInput
	}
	if o.LLM == nil {
		return TurnResult{}, errors.New("llm client not configured")
	}

	rec, err := o.Analyses.Get(ctx, in.UserID, in.AnalysisID)
	if err != nil {
		return TurnResult{}, err
	}
	if rec.Status != analyses.StatusCompleted || rec.Report == nil {
		return TurnResult{}, ErrReportNotReady
	}
	mdx, err := o.Analyses.GetReportMdx(ctx, in.UserID, in.AnalysisID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load report context: %w", err)
	}

	// The model contract requires all four context fields.
	input := llm.ChatInput{
		UserInputText: in.Text,
		ReportMdx:     mdx,
		Report:        rec.Report,
		FileName:      rec.FileName,
		LanguageCode:  rec.LanguageCode,
	}
	if input.UserInputText == "" || input.ReportMdx == "" || input.Report == nil || input.FileName == "" {
		return TurnResult{}, errors.New("incomplete chat context")
	}

	now := time.Now().UTC()
	userMsg := Message{
		ID:         uuid.NewString(),
		AnalysisID: in.AnalysisID,
		Sender:     SenderUser,
		Text:       in.Text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Repo.Append(ctx, userMsg); err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}
	o.publish(Event{Type: "message", MessageID: userMsg.ID, AnalysisID: in.AnalysisID, Sender: SenderUser, Text: in.Text})

	// Reserve the AI entry up front so stream deltas have a stable key.
	aiMsg := Message{
		ID:         uuid.NewString(),
		AnalysisID: in.AnalysisID,
		Sender:     SenderAI,
		Text:       "",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := o.Repo.Append(ctx, aiMsg); err != nil {
		return TurnResult{}, fmt.Errorf("reserve ai message: %w", err)
	}
	o.publish(Event{Type: "message", MessageID: aiMsg.ID, AnalysisID: in.AnalysisID, Sender: SenderAI})

	metrics.IncChatTurn()

	var accumulated strings.Builder
	onDelta := func(delta string) {
		if delta == "" {
			return
		}
		accumulated.WriteString(delta)
		if err := o.Repo.UpdateText(ctx, aiMsg.ID, accumulated.String(), false); err != nil {
			telemetry.Warn("chat.delta_write_failed", map[string]any{
				"analysis_id": in.AnalysisID,
				"message_id":  aiMsg.ID,
				"error":       err.Error(),
			})
		}
		o.publish(Event{Type: "delta", MessageID: aiMsg.ID, AnalysisID: in.AnalysisID, Text: delta})
	}

	outcome, err := o.LLM.StreamChat(ctx, input, onDelta)
	if err != nil {
		return TurnResult{}, o.failTurn(in.AnalysisID, aiMsg.ID, err)
	}
	if strings.TrimSpace(outcome.Reply) == "" {
		return TurnResult{}, o.failTurn(in.AnalysisID, aiMsg.ID, llm.ErrEmptyOutput)
	}

	// The structured reply supersedes whatever the deltas accumulated.
	if err := o.Repo.UpdateText(ctx, aiMsg.ID, outcome.Reply, false); err != nil {
		return TurnResult{}, o.failTurn(in.AnalysisID, aiMsg.ID, fmt.Errorf("finalize ai message: %w", err))
	}
	o.publish(Event{Type: "final", MessageID: aiMsg.ID, AnalysisID: in.AnalysisID, Text: outcome.Reply})

	result := TurnResult{
		Success:      true,
		AIMessageKey: aiMsg.ID,
	}

	if outcome.ReviseReport && outcome.RevisedReport != nil {
		newMdx, err := o.Analyses.ReviseReport(ctx, in.UserID, in.AnalysisID, outcome.RevisedReport)
		if err != nil {
			return TurnResult{}, o.failTurn(in.AnalysisID, aiMsg.ID, fmt.Errorf("apply report revision: %w", err))
		}
		result.ReportModified = true
		result.RevisedReport = outcome.RevisedReport
		result.NewMdxContent = newMdx
	}

	return result, nil
}

// List returns the chat log for an analysis the user owns.
func (o *Orchestrator) List(ctx context.Context, userID, analysisID string, limit int) ([]Message, error) {
	if _, err := o.Analyses.Get(ctx, userID, analysisID); err != nil {
		return nil, err
	}
	return o.Repo.ListByAnalysis(ctx, analysisID, limit)
}

// Authorize checks that the user may stream events for the analysis.
func (o *Orchestrator) Authorize(ctx context.Context, userID, analysisID string) error {
	_, err := o.Analyses.Get(ctx, userID, analysisID)
	return err
}

// failTurn marks the reserved AI entry as failed with a bounded message and
// wraps the cause so callers still learn the entry key. The write uses a
// fresh context so a canceled request can still record its failure.
func (o *Orchestrator) failTurn(analysisID, aiMessageID string, cause error) error {
	metrics.IncChatFailed()
	msg := util.TruncateMessage(cause.Error(), maxChatErrorLength)
	if err := o.Repo.UpdateText(context.Background(), aiMessageID, msg, true); err != nil {
		telemetry.Error("chat.fail_write", map[string]any{
			"analysis_id": analysisID,
			"message_id":  aiMessageID,
			"error":       err.Error(),
		})
	}
	o.publish(Event{Type: "error", MessageID: aiMessageID, AnalysisID: analysisID, Text: msg, IsError: true})
	telemetry.Error("chat.turn_failed", map[string]any{
		"analysis_id": analysisID,
		"message_id":  aiMessageID,
		"error":       msg,
	})
	return &TurnError{AIMessageKey: aiMessageID, Err: cause}
}

func (o *Orchestrator) publish(evt Event) {
	if o.Hub != nil {
		o.Hub.Publish(evt)
	}
}
