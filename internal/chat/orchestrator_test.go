package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"powerquality-backend/internal/analyses"
	"powerquality-backend/internal/llm"
	"powerquality-backend/internal/report"
	"powerquality-backend/internal/shared/storage/object/local"
)

type streamingLLM struct {
	deltas  []string
	outcome llm.ChatOutcome
	err     error
	calls   int
	input   llm.ChatInput
}

func (s *streamingLLM) SummarizeDataset(ctx context.Context, input llm.SummarizeInput) (string, error) {
	_ = ctx
	_ = input
	return "", errors.New("not used in chat")
}

func (s *streamingLLM) IdentifyRegulations(ctx context.Context, input llm.RegulationsInput) ([]string, error) {
	_ = ctx
	_ = input
	return nil, errors.New("not used in chat")
}

func (s *streamingLLM) GenerateComplianceReport(ctx context.Context, input llm.ReportInput) (*report.Report, error) {
	_ = ctx
	_ = input
	return nil, errors.New("not used in chat")
}

func (s *streamingLLM) StreamChat(ctx context.Context, input llm.ChatInput, onDelta func(string)) (llm.ChatOutcome, error) {
	_ = ctx
	s.calls++
	s.input = input
	for _, d := range s.deltas {
		onDelta(d)
	}
	return s.outcome, s.err
}

func completedRecord(t *testing.T, repo *analyses.MemoryRepo, store *analyses.Service) analyses.Record {
	t.Helper()
	now := time.Now().UTC()
	rec := analyses.Record{
		ID:           "analysis-1",
		UserID:       "user-1",
		FileName:     "feeder7.csv",
		Title:        "Feeder 7",
		LanguageCode: "en",
		Status:       analyses.StatusCompleted,
		Progress:     100,
		Report: &report.Report{
			Metadata: report.Metadata{Title: "Feeder 7"},
			Sections: []report.Section{{Heading: "Voltage", Content: "Within limits."}},
		},
		ReportMdxKey: "users/h/reports/analysis-1/report.mdx",
		CreatedAt:    now,
		CompletedAt:  &now,
		UpdatedAt:    now,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	mdx := report.ToMdx(rec.Report)
	if _, err := store.Store.SaveWithKey(context.Background(), rec.ReportMdxKey, "text/markdown", strings.NewReader(mdx)); err != nil {
		t.Fatalf("seed mdx: %v", err)
	}
	return rec
}

func setupOrchestrator(t *testing.T, client llm.Client) (*Orchestrator, *MemoryRepo, analyses.Record) {
	t.Helper()
	analysisRepo := analyses.NewMemoryRepo()
	analysisSvc := &analyses.Service{
		Repo:  analysisRepo,
		Store: local.New(t.TempDir()),
		LLM:   client,
	}
	rec := completedRecord(t, analysisRepo, analysisSvc)

	chatRepo := NewMemoryRepo()
	orch := &Orchestrator{
		Repo:     chatRepo,
		Analyses: analysisSvc,
		LLM:      client,
		Hub:      NewHub(),
	}
	return orch, chatRepo, rec
}

func TestHandleTurnSuccess(t *testing.T) {
	client := &streamingLLM{
		deltas:  []string{"The voltage ", "stayed within limits."},
		outcome: llm.ChatOutcome{Reply: "The voltage stayed within limits."},
	}
	orch, repo, rec := setupOrchestrator(t, client)

	result, err := orch.HandleTurn(context.Background(), TurnInput{
		UserID:     "user-1",
		AnalysisID: rec.ID,
		Text:       "Was the voltage compliant?",
	})
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if result.AIMessageKey == "" {
		t.Fatalf("expected ai message key")
	}
	if result.ReportModified {
		t.Fatalf("expected no report modification")
	}

	msgs, err := repo.ListByAnalysis(context.Background(), rec.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user + ai messages, got %d", len(msgs))
	}
	if msgs[0].Sender != SenderUser || msgs[0].Text != "Was the voltage compliant?" {
		t.Fatalf("unexpected user message %+v", msgs[0])
	}
	if msgs[1].Sender != SenderAI || msgs[1].Text != client.outcome.Reply {
		t.Fatalf("expected final reply to supersede deltas, got %+v", msgs[1])
	}
	if msgs[1].IsError {
		t.Fatalf("success turn must not flag the ai entry as error")
	}

	if client.input.ReportMdx == "" || client.input.Report == nil || client.input.FileName == "" {
		t.Fatalf("expected full report context passed to the model, got %+v", client.input)
	}
}

func TestHandleTurnRevisesReport(t *testing.T) {
	revised := &report.Report{
		Sections: []report.Section{{Heading: "Corrected", Content: "Updated assessment."}},
	}
	client := &streamingLLM{
		outcome: llm.ChatOutcome{
			Reply:         "I updated the report.",
			ReviseReport:  true,
			RevisedReport: revised,
		},
	}
	orch, _, rec := setupOrchestrator(t, client)

	result, err := orch.HandleTurn(context.Background(), TurnInput{
		UserID:     "user-1",
		AnalysisID: rec.ID,
		Text:       "Please fix the flicker section",
	})
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if !result.ReportModified {
		t.Fatalf("expected report modified")
	}
	if result.RevisedReport == nil || !strings.Contains(result.NewMdxContent, "## Corrected") {
		t.Fatalf("expected revised report and mdx in result, got %+v", result)
	}

	got, err := orch.Analyses.Get(context.Background(), "user-1", rec.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if got.ReportModifiedAt == nil {
		t.Fatalf("expected reportModifiedAt set after revision")
	}
	if got.Report.Sections[0].Heading != "Corrected" {
		t.Fatalf("expected persisted report replaced, got %+v", got.Report.Sections[0])
	}
}

func TestHandleTurnLLMFailureMarksEntry(t *testing.T) {
	client := &streamingLLM{
		deltas: []string{"partial "},
		err:    errors.New("stream aborted"),
	}
	orch, repo, rec := setupOrchestrator(t, client)

	_, err := orch.HandleTurn(context.Background(), TurnInput{
		UserID:     "user-1",
		AnalysisID: rec.ID,
		Text:       "hello",
	})
	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got %v", err)
	}
	if turnErr.AIMessageKey == "" {
		t.Fatalf("expected ai message key in turn error")
	}

	msgs, _ := repo.ListByAnalysis(context.Background(), rec.ID, 0)
	var aiEntry *Message
	for i := range msgs {
		if msgs[i].ID == turnErr.AIMessageKey {
			aiEntry = &msgs[i]
		}
	}
	if aiEntry == nil {
		t.Fatalf("expected ai entry persisted")
	}
	if !aiEntry.IsError {
		t.Fatalf("expected ai entry flagged as error, got %+v", aiEntry)
	}
	if len(aiEntry.Text) > maxChatErrorLength {
		t.Fatalf("error text exceeds bound: %d", len(aiEntry.Text))
	}
}

func TestHandleTurnEmptyReplyFails(t *testing.T) {
	client := &streamingLLM{outcome: llm.ChatOutcome{Reply: "   "}}
	orch, _, rec := setupOrchestrator(t, client)

	_, err := orch.HandleTurn(context.Background(), TurnInput{UserID: "user-1", AnalysisID: rec.ID, Text: "hi"})
	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got %v", err)
	}
	if !errors.Is(err, llm.ErrEmptyOutput) {
		t.Fatalf("expected wrapped ErrEmptyOutput, got %v", err)
	}
}

func TestHandleTurnEmptyInput(t *testing.T) {
	orch, _, rec := setupOrchestrator(t, &streamingLLM{})
	if _, err := orch.HandleTurn(context.Background(), TurnInput{UserID: "user-1", AnalysisID: rec.ID, Text: "  "}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestHandleTurnReportNotReady(t *testing.T) {
	client := &streamingLLM{}
	analysisRepo := analyses.NewMemoryRepo()
	analysisSvc := &analyses.Service{Repo: analysisRepo, Store: local.New(t.TempDir()), LLM: client}
	now := time.Now().UTC()
	rec := analyses.Record{
		ID:        "analysis-2",
		UserID:    "user-1",
		FileName:  "data.csv",
		Status:    analyses.StatusSummarizingData,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := analysisRepo.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	orch := &Orchestrator{Repo: NewMemoryRepo(), Analyses: analysisSvc, LLM: client, Hub: NewHub()}

	if _, err := orch.HandleTurn(context.Background(), TurnInput{UserID: "user-1", AnalysisID: rec.ID, Text: "hi"}); !errors.Is(err, ErrReportNotReady) {
		t.Fatalf("expected ErrReportNotReady, got %v", err)
	}
}

func TestHandleTurnForeignAnalysis(t *testing.T) {
	orch, _, rec := setupOrchestrator(t, &streamingLLM{outcome: llm.ChatOutcome{Reply: "ok"}})
	if _, err := orch.HandleTurn(context.Background(), TurnInput{UserID: "user-2", AnalysisID: rec.ID, Text: "hi"}); !errors.Is(err, analyses.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleTurnPublishesEvents(t *testing.T) {
	client := &streamingLLM{
		deltas:  []string{"a", "b"},
		outcome: llm.ChatOutcome{Reply: "ab"},
	}
	orch, _, rec := setupOrchestrator(t, client)

	events, cancel := orch.Hub.Subscribe(rec.ID)
	defer cancel()

	if _, err := orch.HandleTurn(context.Background(), TurnInput{UserID: "user-1", AnalysisID: rec.ID, Text: "hi"}); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []string{"message", "message", "delta", "delta", "final"}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), types)
	}
	for i, typ := range want {
		if types[i] != typ {
			t.Fatalf("event %d: expected %s, got %s (%v)", i, typ, types[i], types)
		}
	}
}
