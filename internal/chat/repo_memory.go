package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores chat messages in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Message
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Message)}
}

func (r *MemoryRepo) Append(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[msg.ID] = msg
	return nil
}

func (r *MemoryRepo) UpdateText(ctx context.Context, id, text string, isError bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	msg.Text = text
	msg.IsError = isError
	msg.UpdatedAt = time.Now().UTC()
	r.byID[id] = msg
	return nil
}

func (r *MemoryRepo) ListByAnalysis(ctx context.Context, analysisID string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []Message
	for _, msg := range r.byID {
		if msg.AnalysisID == analysisID {
			out = append(out, msg)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
