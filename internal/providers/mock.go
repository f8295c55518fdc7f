package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockReasoner is a Reasoner for testing.
type MockReasoner struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	ResponseJSON json.RawMessage

	// Respond, when set, takes precedence over the canned responses and
	// lets a test produce per-request output.
	Respond func(req *ChatRequest) (string, error)

	// Queue of responses consumed in order. When exhausted, the canned
	// response fields are used.
	mu    sync.Mutex
	queue []string

	// State
	requestCount atomic.Int64
}

// NewMockReasoner creates a new mock reasoner with sensible defaults.
func NewMockReasoner() *MockReasoner {
	return &MockReasoner{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockReasoner) Name() string {
	return MockName
}

// Enqueue appends responses consumed in order by subsequent Chat calls.
func (c *MockReasoner) Enqueue(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, responses...)
}

// Chat sends a mock chat request.
func (c *MockReasoner) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	// Check if we should fail
	if c.ShouldFail {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock reasoner configured to fail"
		result.TotalTime = time.Since(start)
		return result, fmt.Errorf("mock reasoner configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = fmt.Sprintf("mock reasoner failed after %d requests", c.FailAfter)
		result.TotalTime = time.Since(start)
		return result, fmt.Errorf("mock reasoner failed after %d requests", c.FailAfter)
	}

	// Simulate latency
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			result.Success = false
			result.ErrorType = "context_cancelled"
			result.ErrorMessage = ctx.Err().Error()
			result.TotalTime = time.Since(start)
			return result, ctx.Err()
		}
	}

	// Build response
	content := c.ResponseText
	if c.Respond != nil {
		out, err := c.Respond(req)
		if err != nil {
			result.Success = false
			result.ErrorType = "mock_failure"
			result.ErrorMessage = err.Error()
			result.TotalTime = time.Since(start)
			return result, err
		}
		content = out
	} else {
		c.mu.Lock()
		if len(c.queue) > 0 {
			content = c.queue[0]
			c.queue = c.queue[1:]
		} else if req.ResponseFormat != nil && len(c.ResponseJSON) > 0 {
			content = string(c.ResponseJSON)
		}
		c.mu.Unlock()
	}

	result.Success = true
	result.Content = content
	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime

	// Simulate token counting
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}
	completionTokens := len(content) / 4

	result.PromptTokens = promptTokens
	result.CompletionTokens = completionTokens
	result.TotalTokens = promptTokens + completionTokens
	result.CostUSD = 0.001 // Mock cost

	if req.ResponseFormat != nil {
		var parsed json.RawMessage
		if err := json.Unmarshal([]byte(content), &parsed); err == nil {
			result.ParsedJSON = parsed
		}
	}

	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockReasoner) RequestCount() int64 {
	return c.requestCount.Load()
}

// Reset resets the request counter.
func (c *MockReasoner) Reset() {
	c.requestCount.Store(0)
}

// Verify interface
var _ Reasoner = (*MockReasoner)(nil)

// MockEmbedder is an Embedder for testing. It produces deterministic
// vectors derived from input bytes.
type MockEmbedder struct {
	Dimensions int
	Latency    time.Duration
	ShouldFail bool

	requestCount atomic.Int64
}

// NewMockEmbedder creates a new mock embedder.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Dimensions: 16,
		Latency:    time.Millisecond,
	}
}

// Name returns the provider identifier.
func (e *MockEmbedder) Name() string {
	return MockName
}

// Dimension returns the vector dimension.
func (e *MockEmbedder) Dimension() int {
	return e.Dimensions
}

// Embed produces one deterministic vector per input.
func (e *MockEmbedder) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResult, error) {
	start := time.Now()
	e.requestCount.Add(1)

	if e.ShouldFail {
		err := fmt.Errorf("mock embedder configured to fail")
		return &EmbedResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			Provider:      MockName,
			ExecutionTime: time.Since(start),
		}, err
	}

	if e.Latency > 0 {
		select {
		case <-time.After(e.Latency):
		case <-ctx.Done():
			return &EmbedResult{
				Success:       false,
				ErrorMessage:  ctx.Err().Error(),
				Provider:      MockName,
				ExecutionTime: time.Since(start),
			}, ctx.Err()
		}
	}

	embeddings := make([][]float32, len(req.Inputs))
	totalTokens := 0
	for i, input := range req.Inputs {
		vec := make([]float32, e.Dimensions)
		for j := range vec {
			// Deterministic hash-like mixing of input bytes.
			h := uint32(2166136261)
			for _, b := range []byte(input) {
				h = (h ^ uint32(b)) * 16777619
			}
			h += uint32(j) * 2654435761
			vec[j] = float32(h%2000)/1000.0 - 1.0
		}
		embeddings[i] = vec
		totalTokens += len(input) / 4
	}

	return &EmbedResult{
		Success:       true,
		Embeddings:    embeddings,
		PromptTokens:  totalTokens,
		TotalTokens:   totalTokens,
		CostUSD:       0.0001,
		Provider:      MockName,
		ExecutionTime: time.Since(start),
	}, nil
}

// RequestCount returns the number of requests made.
func (e *MockEmbedder) RequestCount() int64 {
	return e.requestCount.Load()
}

// Verify interface
var _ Embedder = (*MockEmbedder)(nil)

// MockTTSProvider is a TTSProvider for testing.
type MockTTSProvider struct {
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	requestCount atomic.Int64
}

// NewMockTTSProvider creates a new mock TTS provider.
func NewMockTTSProvider() *MockTTSProvider {
	return &MockTTSProvider{
		Latency:    time.Millisecond,
		RPS:        10.0,
		Retries:    3,
		RetryDelay: time.Second,
	}
}

// Name returns the provider identifier.
func (p *MockTTSProvider) Name() string {
	return MockName
}

// RequestsPerSecond returns the rate limit.
func (p *MockTTSProvider) RequestsPerSecond() float64 {
	return p.RPS
}

// MaxRetries returns the max retry count.
func (p *MockTTSProvider) MaxRetries() int {
	return p.Retries
}

// RetryDelayBase returns the base retry delay.
func (p *MockTTSProvider) RetryDelayBase() time.Duration {
	return p.RetryDelay
}

// ListVoices returns a fixed pair of test voices.
func (p *MockTTSProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	if p.ShouldFail {
		return nil, fmt.Errorf("mock tts configured to fail")
	}
	return []Voice{
		{VoiceID: "mock-warm", Name: "Mock Warm"},
		{VoiceID: "mock-bright", Name: "Mock Bright"},
	}, nil
}

// Generate produces placeholder audio bytes sized from the input text.
func (p *MockTTSProvider) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	count := p.requestCount.Add(1)

	result := &TTSResult{}

	if p.ShouldFail {
		result.ErrorMessage = "mock TTS provider configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock TTS provider configured to fail")
	}
	if p.FailAfter > 0 && int(count) > p.FailAfter {
		result.ErrorMessage = fmt.Sprintf("mock TTS provider failed after %d requests", p.FailAfter)
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock TTS provider failed after %d requests", p.FailAfter)
	}

	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			result.ErrorMessage = ctx.Err().Error()
			result.ExecutionTime = time.Since(start)
			return result, ctx.Err()
		}
	}

	audio := []byte(fmt.Sprintf("MOCKAUDIO[%s][%s]", req.Voice, req.Text))

	result.Success = true
	result.Audio = audio
	result.DurationMS = (len(req.Text) * 60 * 1000) / (150 * 5)
	result.Format = "mp3"
	result.CharCount = len(req.Text)
	result.CostUSD = 0.0005
	result.ExecutionTime = time.Since(start)

	return result, nil
}

// RequestCount returns the number of requests made.
func (p *MockTTSProvider) RequestCount() int64 {
	return p.requestCount.Load()
}

// Verify interface
var _ TTSProvider = (*MockTTSProvider)(nil)
var _ VoicesLister = (*MockTTSProvider)(nil)
