package analyses

import (
	"time"

	"powerquality-backend/internal/report"
)

// Record is the per-dataset analysis document. Status drives which fields
// are populated; see CanTransition for the allowed lifecycle.
type Record struct {
	ID             string   `json:"id"`
	UserID         string   `json:"userId"`
	FileName       string   `json:"fileName"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	LanguageCode   string   `json:"languageCode"`
	Status         string   `json:"status"`
	Progress       int      `json:"progress"`
	UploadProgress int      `json:"uploadProgress"`
	Tags           []string `json:"tags,omitempty"`

	DatasetKey   string         `json:"datasetKey,omitempty"`
	DataSummary  string         `json:"dataSummary,omitempty"`
	Regulations  []string       `json:"regulations,omitempty"`
	Report       *report.Report `json:"report,omitempty"`
	ReportMdxKey string         `json:"reportMdxKey,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`

	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ReportModifiedAt *time.Time `json:"reportModifiedAt,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

const (
	StatusUploading              = "uploading"
	StatusSummarizingData        = "summarizing_data"
	StatusIdentifyingRegulations = "identifying_regulations"
	StatusAssessingCompliance    = "assessing_compliance"
	StatusCompleted              = "completed"
	StatusError                  = "error"
	StatusDeleted                = "deleted"
)

const (
	// UploadCompleteThreshold is the overall progress value marking the
	// transition from upload to processing. Upload progress maps strictly
	// below it so a finished upload never collides with the marker.
	UploadCompleteThreshold = 10

	ProgressIdentifying = 35
	ProgressAssessing   = 70
	ProgressCompleted   = 100

	// MaxErrorMessageLength bounds stored and returned error payloads.
	MaxErrorMessageLength = 500

	// uploadFailedPrefixBudget is reserved out of MaxErrorMessageLength
	// when truncating upload error messages before prefixing.
	uploadFailedPrefix       = "Upload failed: "
	uploadFailedPrefixBudget = 25
)

var transitions = map[string][]string{
	StatusUploading:              {StatusSummarizingData, StatusError, StatusDeleted},
	StatusSummarizingData:        {StatusIdentifyingRegulations, StatusError, StatusDeleted},
	StatusIdentifyingRegulations: {StatusAssessingCompliance, StatusError, StatusDeleted},
	StatusAssessingCompliance:    {StatusCompleted, StatusError, StatusDeleted},
	StatusCompleted:              {StatusDeleted},
	StatusError:                  {StatusSummarizingData, StatusDeleted},
	StatusDeleted:                {},
}

// CanTransition reports whether moving from one status to another is allowed.
// Processing advances monotonically; error recovers only into
// summarizing_data via an explicit retry; deleted is terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsProcessing reports whether a status belongs to a pipeline stage.
func IsProcessing(status string) bool {
	switch status {
	case StatusSummarizingData, StatusIdentifyingRegulations, StatusAssessingCompliance:
		return true
	default:
		return false
	}
}

// DerivedUploadProgress scales an upload percentage into the overall
// progress range reserved for uploads, capped one unit below the
// upload-complete threshold.
func DerivedUploadProgress(uploadProgress int) int {
	if uploadProgress < 0 {
		uploadProgress = 0
	}
	if uploadProgress > 100 {
		uploadProgress = 100
	}
	derived := uploadProgress * UploadCompleteThreshold / 100
	if derived >= UploadCompleteThreshold {
		derived = UploadCompleteThreshold - 1
	}
	return derived
}
