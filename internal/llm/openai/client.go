package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"powerquality-backend/internal/llm"
	"powerquality-backend/internal/report"
)

const maxCompletionTokens = 4096

// Client implements llm.Client using the OpenAI chat completions API.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient constructs an OpenAI-backed client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	return &Client{api: openai.NewClient(apiKey), model: model}, nil
}

func (c *Client) SummarizeDataset(ctx context.Context, input llm.SummarizeInput) (string, error) {
	raw, err := c.completeJSON(ctx, summarizeSystemPrompt, summarizeUserPrompt(input))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("summary output parse: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return "", llm.ErrEmptyOutput
	}
	return parsed.Summary, nil
}

func (c *Client) IdentifyRegulations(ctx context.Context, input llm.RegulationsInput) ([]string, error) {
	raw, err := c.completeJSON(ctx, regulationsSystemPrompt, regulationsUserPrompt(input))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Regulations []string `json:"regulations"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("regulations output parse: %w", err)
	}
	if len(parsed.Regulations) == 0 {
		return nil, llm.ErrEmptyOutput
	}
	return parsed.Regulations, nil
}

func (c *Client) GenerateComplianceReport(ctx context.Context, input llm.ReportInput) (*report.Report, error) {
	raw, err := c.completeJSON(ctx, reportSystemPrompt, reportUserPrompt(input))
	if err != nil {
		return nil, err
	}
	var parsed report.Report
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("report output parse: %w", err)
	}
	if len(parsed.Sections) == 0 {
		return nil, llm.ErrEmptyOutput
	}
	return &parsed, nil
}

// StreamChat streams the raw completion through onDelta and parses the
// accumulated JSON into the structured outcome once the stream ends.
func (c *Client) StreamChat(ctx context.Context, input llm.ChatInput, onDelta func(string)) (llm.ChatOutcome, error) {
	structuredJSON := "null"
	if input.Report != nil {
		if encoded, err := json.Marshal(input.Report); err == nil {
			structuredJSON = string(encoded)
		}
	}

	req := c.baseRequest(chatSystemPrompt, chatUserPrompt(input, structuredJSON))
	req.Stream = true

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return llm.ChatOutcome{}, fmt.Errorf("openai chat stream: %w", err)
	}
	defer stream.Close()

	var acc strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return llm.ChatOutcome{}, fmt.Errorf("openai chat stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		acc.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	full := strings.TrimSpace(acc.String())
	if full == "" {
		return llm.ChatOutcome{}, llm.ErrEmptyOutput
	}

	var outcome llm.ChatOutcome
	if err := json.Unmarshal([]byte(full), &outcome); err != nil {
		return llm.ChatOutcome{}, fmt.Errorf("chat outcome parse: %w", err)
	}
	if strings.TrimSpace(outcome.Reply) == "" {
		return llm.ChatOutcome{}, llm.ErrEmptyOutput
	}
	if outcome.ReviseReport && outcome.RevisedReport == nil {
		return llm.ChatOutcome{}, fmt.Errorf("chat outcome signals revision without revised report")
	}
	return outcome, nil
}

func (c *Client) completeJSON(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.baseRequest(systemPrompt, userPrompt))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, llm.ErrEmptyOutput
	}
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("invalid JSON from OpenAI")
	}
	if resp.Usage.TotalTokens > 0 {
		log.Printf("llm response model=%s prompt_tokens=%d completion_tokens=%d total_tokens=%d",
			c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
	return json.RawMessage(content), nil
}

func (c *Client) baseRequest(systemPrompt, userPrompt string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	// Reasoning models reject MaxTokens; use the completion-token knob.
	if isReasoningModel(c.model) {
		req.MaxCompletionTokens = maxCompletionTokens
	} else {
		req.MaxTokens = maxCompletionTokens
	}
	return req
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5")
}

var _ llm.Client = (*Client)(nil)
