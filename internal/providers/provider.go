// Package providers defines the upstream model backends: reasoners for
// structured chat completions, embedders for vectorization, and TTS
// providers for speech synthesis.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Reasoner is the primary interface for chat/completion requests.
type Reasoner interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g., "openai").
	Name() string
}

// Embedder converts text into vectors.
type Embedder interface {
	// Embed vectorizes a batch of inputs. The result preserves input order.
	Embed(ctx context.Context, req *EmbedRequest) (*EmbedResult, error)

	// Name returns the provider identifier.
	Name() string

	// Dimension returns the vector dimension produced by this embedder.
	Dimension() int
}

// TTSProvider converts text to audio.
// Separate from Reasoner because it has different rate limiting, retry
// patterns, and result handling (audio bytes vs structured responses).
type TTSProvider interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Generate converts text to audio.
	Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// VoicesLister is implemented by TTS providers that can enumerate voices.
type VoicesLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ResponseFormat specifies structured output format.
type ResponseFormat struct {
	Type       string          `json:"type"` // "json_schema"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatRequest is a request to a reasoner.
type ChatRequest struct {
	// Required
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Timeout     time.Duration

	// Structured output
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// ChatResult is the complete response from a reasoner call.
type ChatResult struct {
	// Response content
	Content    string          `json:"content"`
	ParsedJSON json.RawMessage `json:"parsed_json,omitempty"` // Parsed if ResponseFormat was set

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Cost and timing
	CostUSD       float64       `json:"cost_usd"`
	ExecutionTime time.Duration `json:"execution_time"`
	TotalTime     time.Duration `json:"total_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Request tracking
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	// Success/error
	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryAfter   time.Duration
}

// EmbedRequest is a batch embedding request.
type EmbedRequest struct {
	Inputs []string `json:"inputs"`
	Model  string   `json:"model,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// EmbedResult is the response from an embedder.
type EmbedResult struct {
	Success    bool        `json:"success"`
	Embeddings [][]float32 `json:"embeddings"`

	// Token counts
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`

	// Cost and timing
	CostUSD       float64       `json:"cost_usd"`
	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Error info
	ErrorMessage string `json:"error_message,omitempty"`
}

// TTSRequest is a text-to-speech request.
type TTSRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	Format       string `json:"format,omitempty"` // "mp3" (default), "wav", ...
	Instructions string `json:"instructions,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// TTSResult is the response from a TTS provider.
type TTSResult struct {
	Success bool   `json:"success"`
	Audio   []byte `json:"-"`

	DurationMS int    `json:"duration_ms"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// Cost and timing
	CostUSD       float64       `json:"cost_usd"`
	CharCount     int           `json:"char_count"`
	ExecutionTime time.Duration `json:"execution_time"`

	// Error info
	ErrorMessage string `json:"error_message,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// Voice describes one selectable TTS voice.
type Voice struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

// RateLimitError is returned when a provider responds with 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError reports whether err is a provider rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// PermanentError is returned for provider failures that retrying cannot
// fix: auth failures, bad requests, unknown models.
type PermanentError struct {
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Message
}

// IsPermanentError reports whether err is a non-retriable provider error.
func IsPermanentError(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// parseRetryAfter parses a Retry-After header value in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
