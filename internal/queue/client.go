package queue

import "context"

// Client delivers upload-finalized events to the processing queue.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
