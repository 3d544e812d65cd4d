package analyses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func recordRows(rec Record) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "file_name", "title", "description", "language_code", "status",
		"progress", "upload_progress", "tags", "dataset_key", "data_summary", "regulations",
		"report", "report_mdx_key", "error_message", "created_at", "completed_at",
		"report_modified_at", "updated_at",
	}).AddRow(
		rec.ID, rec.UserID, rec.FileName, nil, nil, rec.LanguageCode, rec.Status,
		rec.Progress, rec.UploadProgress, nil, nil, nil, nil,
		nil, nil, nil, rec.CreatedAt, nil,
		nil, rec.UpdatedAt,
	)
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newPGRepo(t)
	rec := Record{
		ID:           "analysis-1",
		UserID:       "user-1",
		FileName:     "data.csv",
		LanguageCode: "en",
		Status:       StatusUploading,
		DatasetKey:   "users/h/datasets/analysis-1/data.csv",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO analyses").
		WithArgs(
			rec.ID,
			rec.UserID,
			rec.FileName,
			nil, // title
			nil, // description
			rec.LanguageCode,
			rec.Status,
			rec.Progress,
			rec.UploadProgress,
			sqlmock.AnyArg(), // tags jsonb
			rec.DatasetKey,
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newPGRepo(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoApplyStatusConflict(t *testing.T) {
	repo, mock := newPGRepo(t)

	// The guarded update misses because the status already moved on; the
	// follow-up read finds the row, so this is a conflict, not a missing record.
	mock.ExpectExec("UPDATE analyses").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").WillReturnRows(recordRows(Record{
		ID:           "analysis-1",
		UserID:       "user-1",
		FileName:     "data.csv",
		LanguageCode: "en",
		Status:       StatusIdentifyingRegulations,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}))

	err := repo.Apply(context.Background(), "analysis-1", Update{
		ExpectStatus: strPtr(StatusSummarizingData),
		Status:       strPtr(StatusIdentifyingRegulations),
	})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoApplyMissingRow(t *testing.T) {
	repo, mock := newPGRepo(t)
	mock.ExpectExec("UPDATE analyses").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.Apply(context.Background(), "missing", Update{
		ExpectStatus: strPtr(StatusSummarizingData),
		Status:       strPtr(StatusIdentifyingRegulations),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoApplyWithoutGuard(t *testing.T) {
	repo, mock := newPGRepo(t)
	mock.ExpectExec("UPDATE analyses").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Apply(context.Background(), "analysis-1", Update{Progress: intPtr(50)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListByUserExcludesDeleted(t *testing.T) {
	repo, mock := newPGRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT").
		WithArgs("user-1", 20, 0).
		WillReturnRows(recordRows(Record{
			ID: "a1", UserID: "user-1", FileName: "f.csv", LanguageCode: "en",
			Status: StatusCompleted, CreatedAt: now, UpdatedAt: now,
		}))

	out, err := repo.ListByUser(context.Background(), "user-1", 0, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(out) != 1 || out[0].ID != "a1" {
		t.Fatalf("unexpected result %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
