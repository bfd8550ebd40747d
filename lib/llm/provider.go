// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks messages from the end user.
	RoleUser Role = "user"

	// RoleAssistant marks messages from the model.
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation context sent to the model.
type Message struct {
	Role    Role
	Content string
}

// UserMessage is shorthand for a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is shorthand for an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request is a provider-agnostic completion request.
type Request struct {
	// Model is the provider model identifier.
	Model string

	// MaxTokens caps the response length.
	MaxTokens int

	// System is the system prompt, empty to omit.
	System string

	// Messages is the conversation context, oldest first.
	Messages []Message

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// StopSequences stop generation when produced by the model.
	StopSequences []string
}

// Usage reports token accounting from the provider.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// StopReason indicates why generation ended.
type StopReason string

const (
	// StopEndTurn: the model finished naturally.
	StopEndTurn StopReason = "end_turn"

	// StopMaxTokens: the MaxTokens cap was hit.
	StopMaxTokens StopReason = "max_tokens"

	// StopSequence: one of the StopSequences was produced.
	StopSequence StopReason = "stop_sequence"

	// StopUnknown: the provider reported something unrecognized.
	StopUnknown StopReason = "unknown"
)

// Response is the completed model output.
type Response struct {
	// Text is the concatenated text content of the response.
	Text string

	// Model is the model that produced the response, as reported by
	// the provider.
	Model string

	// StopReason indicates why generation ended.
	StopReason StopReason

	// Usage is the provider's token accounting.
	Usage Usage
}

// Provider is the interface for LLM API backends.
type Provider interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)
}

// ProviderError is returned when the LLM API responds with an error.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited returns true if the error is a rate limit response (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == 429
}

// IsOverloaded returns true if the error is a server overload response (HTTP 529).
func (err *ProviderError) IsOverloaded() bool {
	return err.StatusCode == 529
}

// doProviderRequest marshals wireRequest as JSON, POSTs it to endpoint
// via httpClient with the given extra headers, and returns the HTTP
// response. Returns a *ProviderError for non-200 status codes.
//
// On success the caller is responsible for closing the response body.
// On error the body is already closed.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint string, wireRequest any, headers map[string]string, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		httpRequest.Header.Set(name, value)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// wireResponse is implemented by pointer-to-struct types that can
// convert themselves from JSON wire format to the common Response.
type wireResponse[T any] interface {
	*T
	toResponse() *Response
}

// decodeResponse reads an HTTP response body as JSON into a
// provider-specific wire response type and converts it to the common
// Response. The body is closed when this function returns.
func decodeResponse[T any, P wireResponse[T]](httpResponse *http.Response, prefix string) (*Response, error) {
	defer httpResponse.Body.Close()

	wireResp := P(new(T))
	if err := json.NewDecoder(httpResponse.Body).Decode(wireResp); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", prefix, err)
	}

	return wireResp.toResponse(), nil
}

// readProviderError parses an error response body in the common
// provider error format used by Anthropic and compatible APIs:
// {"error":{"type":"...","message":"..."}}. Extra fields in the error
// object are silently ignored.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}
