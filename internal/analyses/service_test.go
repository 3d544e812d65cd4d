package analyses

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"powerquality-backend/internal/queue"
	"powerquality-backend/internal/shared/storage/object/local"
)

type captureQueue struct {
	sent []queue.Message
	err  error
}

func (q *captureQueue) Send(ctx context.Context, msg queue.Message) error {
	_ = ctx
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

func setupService(t *testing.T) (*Service, *MemoryRepo, *captureQueue) {
	t.Helper()
	repo := NewMemoryRepo()
	q := &captureQueue{}
	svc := &Service{
		Repo:  repo,
		Store: local.New(t.TempDir()),
		Queue: q,
	}
	return svc, repo, q
}

func mustCreate(t *testing.T, svc *Service, userID string) Record {
	t.Helper()
	rec, err := svc.Create(context.Background(), CreateInput{
		UserID:   userID,
		FileName: "grid-data.csv",
		Title:    "Substation feed",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

func TestCreateDefaults(t *testing.T) {
	svc, _, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if rec.Status != StatusUploading {
		t.Fatalf("expected status uploading, got %s", rec.Status)
	}
	if rec.LanguageCode != "en" {
		t.Fatalf("expected default language en, got %s", rec.LanguageCode)
	}
	if rec.Progress != 0 || rec.UploadProgress != 0 {
		t.Fatalf("expected zero progress, got %d/%d", rec.Progress, rec.UploadProgress)
	}
	if !strings.HasPrefix(rec.DatasetKey, "users/") || !strings.HasSuffix(rec.DatasetKey, "/grid-data.csv") {
		t.Fatalf("unexpected dataset key %q", rec.DatasetKey)
	}
	if strings.Contains(rec.DatasetKey, "user-1") {
		t.Fatalf("dataset key must not embed the raw user id: %q", rec.DatasetKey)
	}
}

func TestCreateRequiresUser(t *testing.T) {
	svc, _, _ := setupService(t)
	if _, err := svc.Create(context.Background(), CreateInput{FileName: "data.csv"}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}

func TestUpdateUploadProgressDerivesOverall(t *testing.T) {
	svc, _, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	got, err := svc.UpdateUploadProgress(context.Background(), "user-1", rec.ID, 50)
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if got.UploadProgress != 50 {
		t.Fatalf("expected upload progress 50, got %d", got.UploadProgress)
	}
	if got.Progress != DerivedUploadProgress(50) {
		t.Fatalf("expected derived progress %d, got %d", DerivedUploadProgress(50), got.Progress)
	}
	if got.Progress >= UploadCompleteThreshold {
		t.Fatalf("derived progress %d must stay below %d", got.Progress, UploadCompleteThreshold)
	}
}

func TestUpdateUploadProgressIgnoresRegression(t *testing.T) {
	svc, _, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if _, err := svc.UpdateUploadProgress(context.Background(), "user-1", rec.ID, 80); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, err := svc.UpdateUploadProgress(context.Background(), "user-1", rec.ID, 30)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if got.UploadProgress != 80 {
		t.Fatalf("expected stale progress ignored, got %d", got.UploadProgress)
	}
}

func TestUpdateUploadProgressRejectsWrongStatus(t *testing.T) {
	svc, repo, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if err := repo.Apply(context.Background(), rec.ID, Update{Status: strPtr(StatusCompleted)}); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	if _, err := svc.UpdateUploadProgress(context.Background(), "user-1", rec.ID, 10); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMarkUploadFailedEmptyIDIsNoop(t *testing.T) {
	svc, _, _ := setupService(t)
	if err := svc.MarkUploadFailed(context.Background(), "user-1", "", "network interrupted"); err != nil {
		t.Fatalf("expected no-op for empty id, got %v", err)
	}
}

func TestMarkUploadFailedUnknownIDIsNoop(t *testing.T) {
	svc, repo, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if err := svc.MarkUploadFailed(context.Background(), "user-1", "no-such-record", "network interrupted"); err != nil {
		t.Fatalf("expected no-op for unknown id, got %v", err)
	}
	got, err := repo.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusUploading {
		t.Fatalf("existing record must be untouched, got status %s", got.Status)
	}
}

func TestMarkUploadFailedTruncatesAndPrefixes(t *testing.T) {
	svc, repo, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	long := strings.Repeat("x", 2*MaxErrorMessageLength)
	if err := svc.MarkUploadFailed(context.Background(), "user-1", rec.ID, long); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err := repo.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusError {
		t.Fatalf("expected status error, got %s", got.Status)
	}
	if !strings.HasPrefix(got.ErrorMessage, "Upload failed: ") {
		t.Fatalf("expected upload-failed prefix, got %q", got.ErrorMessage)
	}
	if len(got.ErrorMessage) > MaxErrorMessageLength {
		t.Fatalf("error message exceeds bound: %d > %d", len(got.ErrorMessage), MaxErrorMessageLength)
	}
}

func TestMarkUploadFailedRejectsProcessingStatus(t *testing.T) {
	svc, repo, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if err := repo.Apply(context.Background(), rec.ID, Update{Status: strPtr(StatusSummarizingData)}); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	if err := svc.MarkUploadFailed(context.Background(), "user-1", rec.ID, "late failure"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteUploadEnqueuesJob(t *testing.T) {
	svc, _, q := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	got, err := svc.CompleteUpload(context.Background(), "user-1", rec.ID)
	if err != nil {
		t.Fatalf("complete upload: %v", err)
	}
	if got.UploadProgress != 100 {
		t.Fatalf("expected upload progress 100, got %d", got.UploadProgress)
	}
	if got.Progress != UploadCompleteThreshold-1 {
		t.Fatalf("expected overall progress %d, got %d", UploadCompleteThreshold-1, got.Progress)
	}
	if len(q.sent) != 1 {
		t.Fatalf("expected 1 enqueued message, got %d", len(q.sent))
	}
	msg := q.sent[0]
	if msg.AnalysisID != rec.ID || msg.UserID != "user-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Version != 1 {
		t.Fatalf("expected message version 1, got %d", msg.Version)
	}
}

func TestCompleteUploadRejectsWrongStatus(t *testing.T) {
	svc, repo, q := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if err := repo.Apply(context.Background(), rec.ID, Update{Status: strPtr(StatusSummarizingData)}); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	if _, err := svc.CompleteUpload(context.Background(), "user-1", rec.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(q.sent) != 0 {
		t.Fatalf("expected no enqueued message, got %d", len(q.sent))
	}
}

func TestRetryOnlyFromError(t *testing.T) {
	svc, repo, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if _, err := svc.Retry(context.Background(), "user-1", rec.ID); !errors.Is(err, ErrRetryNotAllowed) {
		t.Fatalf("expected ErrRetryNotAllowed from uploading, got %v", err)
	}

	if err := repo.Apply(context.Background(), rec.ID, Update{Status: strPtr(StatusCompleted)}); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	if _, err := svc.Retry(context.Background(), "user-1", rec.ID); !errors.Is(err, ErrRetryNotAllowed) {
		t.Fatalf("expected ErrRetryNotAllowed from completed, got %v", err)
	}
}

func TestRetryResetsDerivedFields(t *testing.T) {
	svc, repo, q := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if err := repo.Apply(context.Background(), rec.ID, Update{
		Status:       strPtr(StatusError),
		DataSummary:  strPtr("stale summary"),
		Regulations:  []string{"EN 50160"},
		ErrorMessage: strPtr("llm summarize: boom"),
	}); err != nil {
		t.Fatalf("seed error state: %v", err)
	}

	got, err := svc.Retry(context.Background(), "user-1", rec.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != StatusSummarizingData {
		t.Fatalf("expected status summarizing_data, got %s", got.Status)
	}
	if got.Progress != UploadCompleteThreshold {
		t.Fatalf("expected progress %d, got %d", UploadCompleteThreshold, got.Progress)
	}
	if got.DataSummary != "" || got.Regulations != nil || got.ErrorMessage != "" {
		t.Fatalf("expected derived fields cleared, got %+v", got)
	}
	if len(q.sent) != 1 {
		t.Fatalf("expected retry to enqueue, got %d messages", len(q.sent))
	}
}

func TestDeleteSoftDeletesAndHidesRecord(t *testing.T) {
	svc, repo, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if err := svc.Delete(context.Background(), "user-1", rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := repo.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if got.Status != StatusDeleted {
		t.Fatalf("expected status deleted, got %s", got.Status)
	}

	if _, err := svc.Get(context.Background(), "user-1", rec.ID); !errors.Is(err, ErrDeleted) {
		t.Fatalf("expected ErrDeleted on read, got %v", err)
	}
	list, err := svc.List(context.Background(), "user-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected deleted record hidden from list, got %d", len(list))
	}

	if err := svc.Delete(context.Background(), "user-1", rec.ID); !errors.Is(err, ErrDeleted) {
		t.Fatalf("expected ErrDeleted on repeat delete, got %v", err)
	}
}

func TestGetHidesForeignRecords(t *testing.T) {
	svc, _, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	if _, err := svc.Get(context.Background(), "user-2", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign record, got %v", err)
	}
}

func TestUpdateMetadataReplacesTags(t *testing.T) {
	svc, _, _ := setupService(t)
	rec := mustCreate(t, svc, "user-1")

	title := "  Feeder 7 harmonics  "
	got, err := svc.UpdateMetadata(context.Background(), "user-1", rec.ID, &title, nil, []string{"harmonics", "feeder-7"})
	if err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if got.Title != "Feeder 7 harmonics" {
		t.Fatalf("expected trimmed title, got %q", got.Title)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "harmonics" {
		t.Fatalf("unexpected tags %v", got.Tags)
	}

	got, err = svc.UpdateMetadata(context.Background(), "user-1", rec.ID, nil, nil, []string{"replaced"})
	if err != nil {
		t.Fatalf("replace tags: %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "replaced" {
		t.Fatalf("expected tags replaced wholesale, got %v", got.Tags)
	}
	if got.Title != "Feeder 7 harmonics" {
		t.Fatalf("nil title must leave the field unchanged, got %q", got.Title)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, repo, _ := setupService(t)
	older := mustCreate(t, svc, "user-1")
	newer := mustCreate(t, svc, "user-1")

	// Make creation order deterministic regardless of clock resolution.
	base := time.Now().UTC()
	seed := func(id string, at time.Time) {
		rec, err := repo.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		rec.CreatedAt = at
		if err := repo.Create(context.Background(), rec); err != nil {
			t.Fatalf("reseed %s: %v", id, err)
		}
	}
	seed(older.ID, base.Add(-time.Hour))
	seed(newer.ID, base)

	list, err := svc.List(context.Background(), "user-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	if list[0].ID != newer.ID {
		t.Fatalf("expected newest first, got %s", list[0].ID)
	}
}
