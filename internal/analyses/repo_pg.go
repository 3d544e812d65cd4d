package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"powerquality-backend/internal/report"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const recordColumns = `
id, user_id, file_name, title, description, language_code, status, progress, upload_progress,
tags, dataset_key, data_summary, regulations, report, report_mdx_key, error_message,
created_at, completed_at, report_modified_at, updated_at`

// Create inserts a new record.
func (r *PGRepo) Create(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO analyses (
	id, user_id, file_name, title, description, language_code, status, progress, upload_progress,
	tags, dataset_key, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`
	tagsPayload, err := marshalJSONB(rec.Tags)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.FileName,
		nullIfEmpty(rec.Title),
		nullIfEmpty(rec.Description),
		rec.LanguageCode,
		rec.Status,
		rec.Progress,
		rec.UploadProgress,
		tagsPayload,
		nullIfEmpty(rec.DatasetKey),
		rec.CreatedAt,
	)
	return err
}

// GetByID returns a record by ID, including soft-deleted records.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + recordColumns + `
FROM analyses
WHERE id = $1
LIMIT 1`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Apply updates fields on an existing record. With ExpectStatus set the
// update only lands when the stored status still matches.
func (r *PGRepo) Apply(ctx context.Context, id string, upd Update) error {
	const query = `
UPDATE analyses
SET status = COALESCE($1::text, status),
    progress = COALESCE($2::int, progress),
    upload_progress = COALESCE($3::int, upload_progress),
    title = COALESCE($4::text, title),
    description = COALESCE($5::text, description),
    tags = COALESCE($6::jsonb, tags),
    data_summary = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($8::text, data_summary) END,
    regulations = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($9::jsonb, regulations) END,
    report = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($10::jsonb, report) END,
    report_mdx_key = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($11::text, report_mdx_key) END,
    completed_at = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($12::timestamptz, completed_at) END,
    error_message = CASE WHEN $13::boolean THEN NULL ELSE COALESCE($14::text, error_message) END,
    report_modified_at = COALESCE($15::timestamptz, report_modified_at),
    updated_at = now()
WHERE id = $16
  AND ($17::text IS NULL OR status = $17::text)`

	tagsPayload, err := marshalJSONBOrNil(upd.Tags)
	if err != nil {
		return err
	}
	regsPayload, err := marshalJSONBOrNil(upd.Regulations)
	if err != nil {
		return err
	}
	var reportPayload any
	if upd.Report != nil {
		reportPayload, err = json.Marshal(upd.Report)
		if err != nil {
			return err
		}
	}

	res, err := r.DB.ExecContext(ctx, query,
		upd.Status,
		upd.Progress,
		upd.UploadProgress,
		upd.Title,
		upd.Description,
		tagsPayload,
		upd.ClearDerived,
		upd.DataSummary,
		regsPayload,
		reportPayload,
		upd.ReportMdxKey,
		upd.CompletedAt,
		upd.ClearError,
		upd.ErrorMessage,
		upd.ReportModifiedAt,
		id,
		upd.ExpectStatus,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if upd.ExpectStatus == nil {
			return ErrNotFound
		}
		// Distinguish a missing row from a lost status race.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStatusConflict
	}
	return nil
}

// ListByUser lists non-deleted records for a user, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + recordColumns + `
FROM analyses
WHERE user_id = $1 AND status <> 'deleted'
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var title, description sql.NullString
	var tagsRaw, regsRaw, reportRaw sql.NullString
	var datasetKey, dataSummary, reportMdxKey, errorMessage sql.NullString
	var completedAt, reportModifiedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.FileName,
		&title,
		&description,
		&rec.LanguageCode,
		&rec.Status,
		&rec.Progress,
		&rec.UploadProgress,
		&tagsRaw,
		&datasetKey,
		&dataSummary,
		&regsRaw,
		&reportRaw,
		&reportMdxKey,
		&errorMessage,
		&rec.CreatedAt,
		&completedAt,
		&reportModifiedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}

	if title.Valid {
		rec.Title = title.String
	}
	if description.Valid {
		rec.Description = description.String
	}
	if tagsRaw.Valid {
		_ = json.Unmarshal([]byte(tagsRaw.String), &rec.Tags)
	}
	if datasetKey.Valid {
		rec.DatasetKey = datasetKey.String
	}
	if dataSummary.Valid {
		rec.DataSummary = dataSummary.String
	}
	if regsRaw.Valid {
		_ = json.Unmarshal([]byte(regsRaw.String), &rec.Regulations)
	}
	if reportRaw.Valid {
		var rep report.Report
		if err := json.Unmarshal([]byte(reportRaw.String), &rep); err == nil {
			rec.Report = &rep
		}
	}
	if reportMdxKey.Valid {
		rec.ReportMdxKey = reportMdxKey.String
	}
	if errorMessage.Valid {
		rec.ErrorMessage = errorMessage.String
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	if reportModifiedAt.Valid {
		rec.ReportModifiedAt = &reportModifiedAt.Time
	}
	return rec, nil
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(value)
}

func marshalJSONBOrNil(values []string) (any, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
