package llm

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"time"

	"powerquality-backend/internal/report"
)

const retryBaseDelay = 300 * time.Millisecond

// WithRetry wraps a client with a single retry on transient transport
// failures. Streaming chat is never retried: partial deltas may already
// have been written to the realtime log.
func WithRetry(base Client, analysisID, requestID string) Client {
	if base == nil {
		return nil
	}
	return retryingClient{base: base, analysisID: analysisID, requestID: requestID}
}

type retryingClient struct {
	base       Client
	analysisID string
	requestID  string
}

func (r retryingClient) SummarizeDataset(ctx context.Context, input SummarizeInput) (string, error) {
	out, err := r.base.SummarizeDataset(ctx, input)
	if err == nil || !shouldRetry(err) {
		return out, err
	}
	if err := r.wait(ctx, err); err != nil {
		return "", err
	}
	return r.base.SummarizeDataset(ctx, input)
}

func (r retryingClient) IdentifyRegulations(ctx context.Context, input RegulationsInput) ([]string, error) {
	out, err := r.base.IdentifyRegulations(ctx, input)
	if err == nil || !shouldRetry(err) {
		return out, err
	}
	if err := r.wait(ctx, err); err != nil {
		return nil, err
	}
	return r.base.IdentifyRegulations(ctx, input)
}

func (r retryingClient) GenerateComplianceReport(ctx context.Context, input ReportInput) (*report.Report, error) {
	out, err := r.base.GenerateComplianceReport(ctx, input)
	if err == nil || !shouldRetry(err) {
		return out, err
	}
	if err := r.wait(ctx, err); err != nil {
		return nil, err
	}
	return r.base.GenerateComplianceReport(ctx, input)
}

func (r retryingClient) StreamChat(ctx context.Context, input ChatInput, onDelta func(string)) (ChatOutcome, error) {
	return r.base.StreamChat(ctx, input, onDelta)
}

func (r retryingClient) wait(ctx context.Context, cause error) error {
	log.Printf("llm retry attempt=1 request_id=%s analysis_id=%s error=%s", r.requestID, r.analysisID, cause.Error())
	select {
	case <-time.After(retryBaseDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
