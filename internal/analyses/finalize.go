package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"powerquality-backend/internal/queue"
	"powerquality-backend/internal/shared/metrics"
	"powerquality-backend/internal/shared/telemetry"
)

// FinalizeOutcome reports what the upload finalizer did with a job.
type FinalizeOutcome string

const (
	// FinalizeApplied means the record moved into the first pipeline stage.
	FinalizeApplied FinalizeOutcome = "applied"
	// FinalizeSkipped means the record was already past the upload phase,
	// typically because the queue redelivered an acknowledged job.
	FinalizeSkipped FinalizeOutcome = "skipped"
	// FinalizeDegraded means the transition landed but a best-effort side
	// write failed; processing continues.
	FinalizeDegraded FinalizeOutcome = "degraded"
	// FinalizeFatal means the job can never succeed and must not be retried.
	FinalizeFatal FinalizeOutcome = "fatal"
)

// FinalizeUpload moves an uploaded analysis into the first pipeline stage.
// It only acts on records still in the uploading or error status; anything
// else is treated as an already-finalized redelivery.
func (s *Service) FinalizeUpload(ctx context.Context, msg queue.Message) (FinalizeOutcome, error) {
	if strings.TrimSpace(msg.AnalysisID) == "" {
		return FinalizeFatal, errors.New("message missing analysis id")
	}

	rec, err := s.Repo.GetByID(ctx, msg.AnalysisID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FinalizeFatal, fmt.Errorf("analysis %s: %w", msg.AnalysisID, err)
		}
		return "", err
	}
	if rec.Status == StatusDeleted {
		return FinalizeFatal, fmt.Errorf("analysis %s: %w", msg.AnalysisID, ErrDeleted)
	}
	if msg.UserID != "" && rec.UserID != msg.UserID {
		return FinalizeFatal, fmt.Errorf("analysis %s: owner mismatch", msg.AnalysisID)
	}

	if rec.Status != StatusUploading && rec.Status != StatusError {
		telemetry.Info("analysis.finalize_skipped", map[string]any{
			"request_id":  msg.RequestID,
			"analysis_id": msg.AnalysisID,
			"status":      rec.Status,
		})
		return FinalizeSkipped, nil
	}

	err = s.Repo.Apply(ctx, msg.AnalysisID, Update{
		ExpectStatus: strPtr(rec.Status),
		Status:       strPtr(StatusSummarizingData),
		Progress:     intPtr(UploadCompleteThreshold),
		ClearDerived: true,
		ClearError:   true,
	})
	if errors.Is(err, ErrStatusConflict) {
		// A concurrent worker won the transition.
		return FinalizeSkipped, nil
	}
	if err != nil {
		failMsg := "Upload finalization failed: " + err.Error()
		if markErr := s.markPipelineError(ctx, msg.AnalysisID, failMsg); markErr != nil {
			telemetry.Error("analysis.finalize_mark_error", map[string]any{
				"analysis_id": msg.AnalysisID,
				"error":       markErr.Error(),
			})
			return FinalizeDegraded, err
		}
		return "", err
	}

	metrics.IncUploadFinalized()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        msg.RequestID,
		"user_id":           rec.UserID,
		"analysis_id":       msg.AnalysisID,
		"status":            StatusSummarizingData,
		"status_transition": rec.Status + "->" + StatusSummarizingData,
	})
	return FinalizeApplied, nil
}
