package chat

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("chat message not found")

// Repo defines persistence for chat messages.
type Repo interface {
	Append(ctx context.Context, msg Message) error
	UpdateText(ctx context.Context, id, text string, isError bool) error
	ListByAnalysis(ctx context.Context, analysisID string, limit int) ([]Message, error)
}
