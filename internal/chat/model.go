package chat

import "time"

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message is one entry in an analysis chat log. AI entries are written
// incrementally while the model streams and overwritten in place; the last
// write wins.
type Message struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysisId"`
	Sender     string    `json:"sender"`
	Text       string    `json:"text"`
	IsError    bool      `json:"isError,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
