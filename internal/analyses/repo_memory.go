package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analysis records in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Record
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Record)}
}

// Create stores the record.
func (r *MemoryRepo) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rec.ID] = rec
	return nil
}

// GetByID returns a record by its ID, including soft-deleted records.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Apply updates fields on an existing record.
func (r *MemoryRepo) Apply(ctx context.Context, id string, upd Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if upd.ExpectStatus != nil && rec.Status != *upd.ExpectStatus {
		return ErrStatusConflict
	}

	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Progress != nil {
		rec.Progress = *upd.Progress
	}
	if upd.UploadProgress != nil {
		rec.UploadProgress = *upd.UploadProgress
	}
	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	if upd.Description != nil {
		rec.Description = *upd.Description
	}
	if upd.Tags != nil {
		rec.Tags = append([]string(nil), upd.Tags...)
	}

	if upd.ClearDerived {
		rec.DataSummary = ""
		rec.Regulations = nil
		rec.Report = nil
		rec.ReportMdxKey = ""
		rec.CompletedAt = nil
	}
	if upd.ClearError {
		rec.ErrorMessage = ""
	}

	if upd.DataSummary != nil {
		rec.DataSummary = *upd.DataSummary
	}
	if upd.Regulations != nil {
		rec.Regulations = append([]string(nil), upd.Regulations...)
	}
	if upd.Report != nil {
		rec.Report = upd.Report
	}
	if upd.ReportMdxKey != nil {
		rec.ReportMdxKey = *upd.ReportMdxKey
	}
	if upd.ErrorMessage != nil {
		rec.ErrorMessage = *upd.ErrorMessage
	}
	if upd.CompletedAt != nil {
		rec.CompletedAt = upd.CompletedAt
	}
	if upd.ReportModifiedAt != nil {
		rec.ReportModifiedAt = upd.ReportModifiedAt
	}

	rec.UpdatedAt = time.Now().UTC()
	r.byID[id] = rec
	return nil
}

// ListByUser returns non-deleted records for a user, newest first.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	var out []Record
	for _, rec := range r.byID {
		if rec.UserID == userID && rec.Status != StatusDeleted {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Record{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
