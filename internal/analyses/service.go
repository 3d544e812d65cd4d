package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"powerquality-backend/internal/queue"
	"powerquality-backend/internal/shared/storage/object"
	"powerquality-backend/internal/shared/telemetry"
	"powerquality-backend/internal/shared/util"
	"powerquality-backend/internal/llm"
)

// Service contains business logic for analysis records.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
	Queue queue.Client
	LLM   llm.Client
	Model string
}

// CreateInput carries the user-supplied fields for a new analysis.
type CreateInput struct {
	UserID       string
	FileName     string
	Title        string
	Description  string
	LanguageCode string
	Tags         []string
}

// Create registers a new analysis in the uploading state and reserves a
// dataset storage key for the upcoming upload.
func (s *Service) Create(ctx context.Context, input CreateInput) (Record, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return Record{}, errors.New("userID is required")
	}
	fileName, err := util.SanitizeFileName(input.FileName)
	if err != nil {
		return Record{}, err
	}
	lang := strings.TrimSpace(input.LanguageCode)
	if lang == "" {
		lang = "en"
	}

	id := uuid.NewString()
	rec := Record{
		ID:             id,
		UserID:         input.UserID,
		FileName:       fileName,
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		LanguageCode:   lang,
		Status:         StatusUploading,
		Progress:       0,
		UploadProgress: 0,
		Tags:           input.Tags,
		DatasetKey:     datasetKey(input.UserID, id, fileName),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		return Record{}, err
	}
	telemetry.Info("analysis.created", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     rec.UserID,
		"analysis_id": rec.ID,
		"file_name":   rec.FileName,
	})
	return rec, nil
}

func datasetKey(userID, analysisID, fileName string) string {
	return fmt.Sprintf("users/%s/datasets/%s/%s", util.HashUserKey(userID), analysisID, fileName)
}

// Get returns a record owned by the user. Soft-deleted records surface as
// ErrDeleted, foreign records as ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id string) (Record, error) {
	return s.getOwned(ctx, userID, id)
}

// List returns the user's records, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// UpdateUploadProgress records client-reported upload progress. The overall
// progress is derived from it and stays strictly below the processing
// threshold so the upload can never look finished before the worker takes
// over.
func (s *Service) UpdateUploadProgress(ctx context.Context, userID, id string, uploadProgress int) (Record, error) {
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusUploading {
		return Record{}, ErrInvalidTransition
	}
	if uploadProgress < 0 {
		uploadProgress = 0
	}
	if uploadProgress > 100 {
		uploadProgress = 100
	}
	if uploadProgress < rec.UploadProgress {
		// Monotone: stale progress callbacks are ignored.
		return rec, nil
	}
	derived := DerivedUploadProgress(uploadProgress)
	if err := s.Repo.Apply(ctx, id, Update{
		UploadProgress: intPtr(uploadProgress),
		Progress:       intPtr(derived),
	}); err != nil {
		return Record{}, err
	}
	rec.UploadProgress = uploadProgress
	rec.Progress = derived
	return rec, nil
}

// MarkUploadFailed records an upload failure. Empty and unknown record IDs
// are no-ops so client error handlers can call this unconditionally.
func (s *Service) MarkUploadFailed(ctx context.Context, userID, id, message string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		// Upload failure reports are best-effort client telemetry; an
		// unknown or foreign record is logged and swallowed.
		if errors.Is(err, ErrNotFound) {
			telemetry.Info("analysis.upload_failed.unknown_record", map[string]any{
				"request_id":  requestIDFromContext(ctx),
				"user_id":     userID,
				"analysis_id": id,
			})
			return nil
		}
		return err
	}
	if rec.Status != StatusUploading && rec.Status != StatusError {
		return ErrInvalidTransition
	}
	msg := uploadFailedPrefix + util.TruncateMessage(message, MaxErrorMessageLength-uploadFailedPrefixBudget)
	if err := s.Repo.Apply(ctx, id, Update{
		Status:       strPtr(StatusError),
		ErrorMessage: strPtr(msg),
	}); err != nil {
		return err
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"analysis_id":       id,
		"status":            StatusError,
		"status_transition": rec.Status + "->" + StatusError,
	})
	return nil
}

// CompleteUpload marks the upload as fully transferred and enqueues the
// processing job. The actual status transition happens in the worker.
func (s *Service) CompleteUpload(ctx context.Context, userID, id string) (Record, error) {
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusUploading {
		return Record{}, ErrInvalidTransition
	}
	derived := DerivedUploadProgress(100)
	if err := s.Repo.Apply(ctx, id, Update{
		UploadProgress: intPtr(100),
		Progress:       intPtr(derived),
	}); err != nil {
		return Record{}, err
	}
	rec.UploadProgress = 100
	rec.Progress = derived

	if err := s.enqueue(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Retry restarts processing for a failed analysis. Only the error status is
// recoverable.
func (s *Service) Retry(ctx context.Context, userID, id string) (Record, error) {
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusError {
		return Record{}, ErrRetryNotAllowed
	}
	if err := s.Repo.Apply(ctx, id, Update{
		ExpectStatus: strPtr(StatusError),
		Status:       strPtr(StatusSummarizingData),
		Progress:     intPtr(UploadCompleteThreshold),
		ClearDerived: true,
		ClearError:   true,
	}); err != nil {
		return Record{}, err
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"analysis_id":       id,
		"status":            StatusSummarizingData,
		"status_transition": StatusError + "->" + StatusSummarizingData,
	})

	rec, err = s.Repo.GetByID(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := s.enqueue(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// UpdateMetadata changes title, description and tags. Tags replace the
// existing set wholesale.
func (s *Service) UpdateMetadata(ctx context.Context, userID, id string, title, description *string, tags []string) (Record, error) {
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return Record{}, err
	}
	upd := Update{}
	if title != nil {
		upd.Title = strPtr(strings.TrimSpace(*title))
	}
	if description != nil {
		upd.Description = strPtr(strings.TrimSpace(*description))
	}
	if tags != nil {
		upd.Tags = tags
	}
	if err := s.Repo.Apply(ctx, id, upd); err != nil {
		return Record{}, err
	}
	return s.Repo.GetByID(ctx, rec.ID)
}

// Delete soft-deletes a record and removes the stored dataset and report
// objects best-effort.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	if !CanTransition(rec.Status, StatusDeleted) {
		return ErrInvalidTransition
	}
	if err := s.Repo.Apply(ctx, id, Update{Status: strPtr(StatusDeleted)}); err != nil {
		return err
	}
	if s.Store != nil {
		for _, key := range []string{rec.DatasetKey, rec.ReportMdxKey} {
			if key == "" {
				continue
			}
			if err := s.Store.Delete(ctx, key); err != nil {
				telemetry.Warn("analysis.delete_object_failed", map[string]any{
					"analysis_id": id,
					"storage_key": key,
					"error":       err.Error(),
				})
			}
		}
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"analysis_id":       id,
		"status":            StatusDeleted,
		"status_transition": rec.Status + "->" + StatusDeleted,
	})
	return nil
}

// GetReportMdx returns the rendered MDX document for a completed analysis.
func (s *Service) GetReportMdx(ctx context.Context, userID, id string) (string, error) {
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if rec.ReportMdxKey == "" {
		return "", ErrNotFound
	}
	body, err := s.Store.Open(ctx, rec.ReportMdxKey)
	if err != nil {
		return "", fmt.Errorf("open report %s: %w", rec.ReportMdxKey, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Service) getOwned(ctx context.Context, userID, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, errors.New("analysis id is required")
	}
	rec, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	if rec.Status == StatusDeleted {
		return Record{}, ErrDeleted
	}
	return rec, nil
}

func (s *Service) enqueue(ctx context.Context, rec Record) error {
	if s.Queue == nil {
		// No queue configured: process inline in the background (dev mode).
		go func() {
			ctx := backgroundWithRequestID(ctx)
			if _, err := s.FinalizeUpload(ctx, queue.Message{UserID: rec.UserID, AnalysisID: rec.ID}); err != nil {
				telemetry.Error("analysis.finalize_inline", map[string]any{"analysis_id": rec.ID, "error": err.Error()})
				return
			}
			if err := s.ProcessAnalysis(ctx, rec.ID); err != nil {
				telemetry.Error("analysis.process_inline", map[string]any{"analysis_id": rec.ID, "error": err.Error()})
			}
		}()
		return nil
	}
	msg := queue.Message{
		UserID:     rec.UserID,
		AnalysisID: rec.ID,
		RequestID:  requestIDFromContext(ctx),
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		return fmt.Errorf("enqueue analysis %s: %w", rec.ID, err)
	}
	return nil
}

func backgroundWithRequestID(ctx context.Context) context.Context {
	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		return context.Background()
	}
	return withRequestID(context.Background(), requestID)
}
