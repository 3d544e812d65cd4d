package analyses

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"powerquality-backend/internal/dataset"
	"powerquality-backend/internal/llm"
	"powerquality-backend/internal/report"
	"powerquality-backend/internal/shared/metrics"
	"powerquality-backend/internal/shared/telemetry"
	"powerquality-backend/internal/shared/util"
)

// ProcessAnalysis drives the full pipeline for one analysis: data
// summarization, regulation identification, then compliance assessment.
// Every stage transition is guarded on the expected status, so a redelivered
// job resumes from wherever the record actually is instead of repeating
// finished stages.
func (s *Service) ProcessAnalysis(ctx context.Context, analysisID string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.failPipeline(ctx, analysisID, ErrorCodeInternal, err)
		}
	}()

	rec, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("analysis lookup %s: %w", analysisID, err)
	}
	switch {
	case rec.Status == StatusDeleted:
		return fmt.Errorf("analysis %s: %w", analysisID, ErrDeleted)
	case rec.Status == StatusCompleted:
		return nil
	case !IsProcessing(rec.Status):
		return fmt.Errorf("analysis %s in status %s: %w", analysisID, rec.Status, ErrInvalidTransition)
	}
	if s.LLM == nil {
		err := errors.New("missing llm client")
		s.failPipeline(ctx, analysisID, ErrorCodeInternal, err)
		return err
	}

	requestID := requestIDFromContext(ctx)
	llmClient := llm.WithRetry(s.LLM, analysisID, requestID)

	for IsProcessing(rec.Status) {
		metrics.IncStageStarted()
		var stageErr error
		switch rec.Status {
		case StatusSummarizingData:
			stageErr = s.runSummarize(ctx, rec, llmClient)
		case StatusIdentifyingRegulations:
			stageErr = s.runIdentifyRegulations(ctx, rec, llmClient)
		case StatusAssessingCompliance:
			stageErr = s.runAssessCompliance(ctx, rec, llmClient)
		}
		if errors.Is(stageErr, ErrStatusConflict) {
			// Another worker advanced the record; let it finish the job.
			telemetry.Info("analysis.stage_conflict", map[string]any{
				"request_id":  requestID,
				"analysis_id": analysisID,
				"status":      rec.Status,
			})
			return nil
		}
		if stageErr != nil {
			metrics.IncStageFailed()
			code := classifyFailure(stageErr)
			s.failPipeline(ctx, analysisID, code, stageErr)
			return fmt.Errorf("stage %s: %w", rec.Status, stageErr)
		}
		metrics.IncStageCompleted()

		prev := rec.Status
		rec, err = s.Repo.GetByID(ctx, analysisID)
		if err != nil {
			return fmt.Errorf("analysis reload %s: %w", analysisID, err)
		}
		telemetry.Info("analysis.status", map[string]any{
			"request_id":        requestID,
			"user_id":           rec.UserID,
			"analysis_id":       rec.ID,
			"status":            rec.Status,
			"status_transition": prev + "->" + rec.Status,
		})
	}

	if rec.Status == StatusCompleted {
		metrics.ObservePipelineDurationMs(float64(time.Since(startedAt).Microseconds()) / 1000.0)
	}
	return nil
}

func (s *Service) runSummarize(ctx context.Context, rec Record, client llm.Client) error {
	if s.Store == nil {
		return errors.New("missing object store")
	}
	preview, err := dataset.Load(ctx, s.Store, rec.DatasetKey)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	summary, err := client.SummarizeDataset(ctx, llm.SummarizeInput{
		FileName:     rec.FileName,
		DataPreview:  preview.PromptText(),
		LanguageCode: rec.LanguageCode,
	})
	if err != nil {
		return fmt.Errorf("llm summarize: %w", err)
	}
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("llm summarize: %w", llm.ErrEmptyOutput)
	}

	return s.Repo.Apply(ctx, rec.ID, Update{
		ExpectStatus: strPtr(StatusSummarizingData),
		Status:       strPtr(StatusIdentifyingRegulations),
		Progress:     intPtr(ProgressIdentifying),
		DataSummary:  strPtr(summary),
	})
}

func (s *Service) runIdentifyRegulations(ctx context.Context, rec Record, client llm.Client) error {
	if strings.TrimSpace(rec.DataSummary) == "" {
		return errors.New("data summary missing before regulation stage")
	}
	regs, err := client.IdentifyRegulations(ctx, llm.RegulationsInput{
		DataSummary:  rec.DataSummary,
		LanguageCode: rec.LanguageCode,
	})
	if err != nil {
		return fmt.Errorf("llm identify regulations: %w", err)
	}
	if len(regs) == 0 {
		return fmt.Errorf("llm identify regulations: %w", llm.ErrEmptyOutput)
	}

	return s.Repo.Apply(ctx, rec.ID, Update{
		ExpectStatus: strPtr(StatusIdentifyingRegulations),
		Status:       strPtr(StatusAssessingCompliance),
		Progress:     intPtr(ProgressAssessing),
		Regulations:  regs,
	})
}

func (s *Service) runAssessCompliance(ctx context.Context, rec Record, client llm.Client) error {
	rep, err := client.GenerateComplianceReport(ctx, llm.ReportInput{
		FileName:     rec.FileName,
		DataSummary:  rec.DataSummary,
		Regulations:  rec.Regulations,
		LanguageCode: rec.LanguageCode,
	})
	if err != nil {
		return fmt.Errorf("llm compliance report: %w", err)
	}
	if rep == nil || len(rep.Sections) == 0 {
		return fmt.Errorf("llm compliance report: %w", llm.ErrEmptyOutput)
	}

	s.enrichReportMetadata(rep, rec)
	if s.Store != nil {
		s.renderCharts(ctx, rep, rec)
	}

	mdx := report.ToMdx(rep)
	mdxKey := reportMdxKey(rec.UserID, rec.ID)
	if s.Store != nil {
		if _, err := s.Store.SaveWithKey(ctx, mdxKey, "text/markdown", strings.NewReader(mdx)); err != nil {
			return fmt.Errorf("save report mdx: %w", err)
		}
	}

	completedAt := time.Now().UTC()
	return s.Repo.Apply(ctx, rec.ID, Update{
		ExpectStatus: strPtr(StatusAssessingCompliance),
		Status:       strPtr(StatusCompleted),
		Progress:     intPtr(ProgressCompleted),
		Report:       rep,
		ReportMdxKey: strPtr(mdxKey),
		CompletedAt:  timePtr(completedAt),
		ClearError:   true,
	})
}

// enrichReportMetadata fills the fields the model tends to omit so the
// rendered document always carries provenance.
func (s *Service) enrichReportMetadata(rep *report.Report, rec Record) {
	if strings.TrimSpace(rep.Metadata.Title) == "" {
		if rec.Title != "" {
			rep.Metadata.Title = rec.Title
		} else {
			rep.Metadata.Title = report.FallbackTitle
		}
	}
	if strings.TrimSpace(rep.Metadata.GeneratedDate) == "" {
		rep.Metadata.GeneratedDate = time.Now().UTC().Format("2006-01-02")
	}
	if strings.TrimSpace(rep.Metadata.LanguageCode) == "" {
		rep.Metadata.LanguageCode = rec.LanguageCode
	}
	if strings.TrimSpace(rep.Metadata.SourceFile) == "" {
		rep.Metadata.SourceFile = rec.FileName
	}
}

// renderCharts persists SVG renderings for sections carrying chart data.
// Chart failures degrade the report (the section keeps its text) rather
// than failing the stage.
func (s *Service) renderCharts(ctx context.Context, rep *report.Report, rec Record) {
	for i := range rep.Sections {
		chart := rep.Sections[i].Chart
		if chart == nil || len(chart.Points) == 0 {
			continue
		}
		svg := report.ChartSVG(*chart)
		key := fmt.Sprintf("users/%s/reports/%s/chart_%d.svg", util.HashUserKey(rec.UserID), rec.ID, i)
		if _, err := s.Store.SaveWithKey(ctx, key, "image/svg+xml", bytes.NewReader([]byte(svg))); err != nil {
			telemetry.Warn("analysis.chart_save_failed", map[string]any{
				"analysis_id": rec.ID,
				"storage_key": key,
				"error":       err.Error(),
			})
			continue
		}
		chart.StorageKey = key
	}
}

func reportMdxKey(userID, analysisID string) string {
	return fmt.Sprintf("users/%s/reports/%s/report.mdx", util.HashUserKey(userID), analysisID)
}

// failPipeline moves the record into the recoverable error status with a
// bounded message. A fresh background context is used so a canceled job can
// still record its failure.
func (s *Service) failPipeline(ctx context.Context, analysisID, code string, cause error) {
	if err := s.markPipelineError(context.Background(), analysisID, cause.Error()); err != nil {
		telemetry.Error("analysis.fail_update", map[string]any{
			"analysis_id": analysisID,
			"error":       err.Error(),
			"cause":       util.TruncateMessage(cause.Error(), MaxErrorMessageLength),
		})
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"analysis_id": analysisID,
		"status":      StatusError,
		"error_code":  code,
		"error":       util.TruncateMessage(cause.Error(), MaxErrorMessageLength),
	})
}

func (s *Service) markPipelineError(ctx context.Context, analysisID, message string) error {
	return s.Repo.Apply(ctx, analysisID, Update{
		Status:       strPtr(StatusError),
		ErrorMessage: strPtr(util.TruncateMessage(message, MaxErrorMessageLength)),
	})
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, llm.ErrEmptyOutput) {
		return ErrorCodeLLMEmptyOutput
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") && strings.Contains(msg, "llm"):
		return ErrorCodeLLMTimeout
	case strings.Contains(msg, "schema") || strings.Contains(msg, "parse"):
		return ErrorCodeLLMSchemaMismatch
	case strings.Contains(msg, "dataset") || strings.Contains(msg, "storage") || strings.Contains(msg, "save report"):
		return ErrorCodeStorage
	default:
		return ErrorCodeInternal
	}
}
