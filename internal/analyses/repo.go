package analyses

import (
	"context"
	"time"

	"powerquality-backend/internal/report"
)

// Update describes a partial record update. Nil pointers leave fields
// untouched; Clear* flags null out groups of derived fields. ExpectStatus,
// when set, makes the update conditional on the current status so concurrent
// or redelivered jobs cannot clobber each other.
type Update struct {
	ExpectStatus *string

	Status         *string
	Progress       *int
	UploadProgress *int

	Title       *string
	Description *string
	Tags        []string

	DataSummary  *string
	Regulations  []string
	Report       *report.Report
	ReportMdxKey *string
	ErrorMessage *string

	CompletedAt      *time.Time
	ReportModifiedAt *time.Time

	// ClearDerived nulls data_summary, regulations, report, report_mdx_key
	// and completed_at. Used when a retry restarts the pipeline.
	ClearDerived bool
	// ClearError nulls error_message.
	ClearError bool
}

// Repo defines persistence operations for analysis records.
type Repo interface {
	Create(ctx context.Context, rec Record) error
	GetByID(ctx context.Context, id string) (Record, error)
	Apply(ctx context.Context, id string, upd Update) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error)
}

func strPtr(s string) *string    { return &s }
func intPtr(n int) *int          { return &n }
func timePtr(t time.Time) *time.Time { return &t }
