package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const openAIEmbedDefaultModel = "text-embedding-3-small"

// OpenAIEmbedConfig holds configuration for the OpenAI embeddings client.
type OpenAIEmbedConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// Cost per 1M input tokens in USD.
	CostPer1MTokens float64
}

// OpenAIEmbedClient implements Embedder using the OpenAI embeddings API.
type OpenAIEmbedClient struct {
	apiKey          string
	baseURL         string
	model           string
	dimension       int
	client          *http.Client
	maxRetries      int
	retryDelay      time.Duration
	costPer1MTokens float64
}

// NewOpenAIEmbedClient creates a new OpenAI embeddings client.
func NewOpenAIEmbedClient(cfg OpenAIEmbedConfig) *OpenAIEmbedClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openAIEmbedDefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.CostPer1MTokens == 0 {
		// text-embedding-3-small list price.
		cfg.CostPer1MTokens = 0.02
	}

	return &OpenAIEmbedClient{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries:      cfg.MaxRetries,
		retryDelay:      cfg.RetryDelay,
		costPer1MTokens: cfg.CostPer1MTokens,
	}
}

// Name returns the provider identifier.
func (c *OpenAIEmbedClient) Name() string {
	return OpenAIName
}

// Dimension returns the configured vector dimension.
func (c *OpenAIEmbedClient) Dimension() int {
	return c.dimension
}

// Embed vectorizes a batch of inputs.
func (c *OpenAIEmbedClient) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResult, error) {
	start := time.Now()

	if len(req.Inputs) == 0 {
		err := fmt.Errorf("inputs are required")
		return &EmbedResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	oaReq := openAIEmbedRequest{
		Model:      model,
		Input:      req.Inputs,
		Dimensions: c.dimension,
	}

	oaResp, err := c.doRequest(ctx, &oaReq)
	if err != nil {
		return &EmbedResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			Provider:      OpenAIName,
			ModelUsed:     model,
			ExecutionTime: time.Since(start),
		}, err
	}

	if len(oaResp.Data) != len(req.Inputs) {
		err := fmt.Errorf("embedding count mismatch: sent %d inputs, got %d vectors", len(req.Inputs), len(oaResp.Data))
		return &EmbedResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			Provider:      OpenAIName,
			ModelUsed:     model,
			ExecutionTime: time.Since(start),
		}, err
	}

	// Order by index; the API may return data out of order.
	embeddings := make([][]float32, len(oaResp.Data))
	for _, d := range oaResp.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			err := fmt.Errorf("embedding index %d out of range", d.Index)
			return &EmbedResult{
				Success:       false,
				ErrorMessage:  err.Error(),
				Provider:      OpenAIName,
				ModelUsed:     model,
				ExecutionTime: time.Since(start),
			}, err
		}
		embeddings[d.Index] = d.Embedding
	}

	costUSD := float64(oaResp.Usage.TotalTokens) * (c.costPer1MTokens / 1_000_000.0)

	return &EmbedResult{
		Success:       true,
		Embeddings:    embeddings,
		PromptTokens:  oaResp.Usage.PromptTokens,
		TotalTokens:   oaResp.Usage.TotalTokens,
		CostUSD:       costUSD,
		Provider:      OpenAIName,
		ModelUsed:     oaResp.Model,
		ExecutionTime: time.Since(start),
	}, nil
}

func (c *OpenAIEmbedClient) doRequest(ctx context.Context, body *openAIEmbedRequest) (*openAIEmbedResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.sleep(ctx, attempt)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", string(respBody)),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				StatusCode: resp.StatusCode,
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("OpenAI error (status %d): %s", resp.StatusCode, string(respBody))
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, &PermanentError{
				Message:    fmt.Sprintf("OpenAI error (status %d): %s", resp.StatusCode, string(respBody)),
				StatusCode: resp.StatusCode,
			}
		}

		var oaResp openAIEmbedResponse
		if err := json.Unmarshal(respBody, &oaResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		return &oaResp, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func (c *OpenAIEmbedClient) sleep(ctx context.Context, attempt int) {
	delay := c.retryDelay * time.Duration(1<<attempt)
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// OpenAI embeddings API types

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Verify interface
var _ Embedder = (*OpenAIEmbedClient)(nil)
