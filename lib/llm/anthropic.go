// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hearthware/hearth/lib/secret"
)

// anthropicVersion is the API version header value the Messages API
// requires.
const anthropicVersion = "2023-06-01"

// DefaultAnthropicBaseURL is the production API endpoint. Tests point
// BaseURL at an httptest server instead.
const DefaultAnthropicBaseURL = "https://api.anthropic.com"

// defaultHTTPTimeout bounds a single completion request when the
// caller's context carries no deadline of its own.
const defaultHTTPTimeout = 120 * time.Second

// Anthropic implements [Provider] for the Anthropic Messages API.
// The API key lives in a secret.Buffer (mlock'd, zeroed on close) and
// is materialized as a header string only at request time.
type Anthropic struct {
	httpClient *http.Client
	baseURL    string
	apiKey     *secret.Buffer
}

// AnthropicConfig configures the provider client.
type AnthropicConfig struct {
	// BaseURL is the API root. Empty means DefaultAnthropicBaseURL.
	BaseURL string

	// APIKey is the borrowed credential buffer. The provider does not
	// close it; the owner (service main) does at shutdown.
	APIKey *secret.Buffer

	// HTTPClient overrides the default client. Nil gets a client with
	// defaultHTTPTimeout.
	HTTPClient *http.Client
}

// NewAnthropic creates an Anthropic Messages API provider.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Anthropic{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// Complete sends a non-streaming request and returns the full
// response.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := provider.buildRequest(request)

	headers := map[string]string{
		"anthropic-version": anthropicVersion,
	}
	if provider.apiKey != nil {
		headers["x-api-key"] = provider.apiKey.String()
	}

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.baseURL+"/v1/messages", wireRequest, headers, "llm/anthropic")
	if err != nil {
		return nil, err
	}

	return decodeResponse[anthropicResponse](httpResponse, "llm/anthropic")
}

// buildRequest converts the common types to Anthropic wire format.
func (provider *Anthropic) buildRequest(request Request) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
	}

	if request.System != "" {
		wireRequest.System = request.System
	}
	if request.Temperature != nil {
		wireRequest.Temperature = request.Temperature
	}
	if len(request.StopSequences) > 0 {
		wireRequest.StopSequences = request.StopSequences
	}

	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, anthropicMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}

	return wireRequest
}

// --- Wire types ---

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type anthropicResponse struct {
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

func (wireResp *anthropicResponse) toResponse() *Response {
	var text strings.Builder
	for _, block := range wireResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:       text.String(),
		Model:      wireResp.Model,
		StopReason: mapAnthropicStopReason(wireResp.StopReason),
		Usage: Usage{
			InputTokens:  wireResp.Usage.InputTokens,
			OutputTokens: wireResp.Usage.OutputTokens,
		},
	}
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopEndTurn
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopSequence
	default:
		return StopUnknown
	}
}
