package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_TryConsume(t *testing.T) {
	t.Run("consumes available tokens", func(t *testing.T) {
		rl := NewRateLimiter(60)
		for i := 0; i < 10; i++ {
			if !rl.TryConsume() {
				t.Fatalf("expected token %d to be available", i)
			}
		}
	})

	t.Run("exhausts bucket", func(t *testing.T) {
		rl := NewRateLimiter(5)
		for i := 0; i < 5; i++ {
			if !rl.TryConsume() {
				t.Fatalf("expected token %d to be available", i)
			}
		}
		if rl.TryConsume() {
			t.Error("expected bucket to be exhausted")
		}
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(6000) // 100/sec, fast refill

	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	status := rl.Status()
	if status.TotalConsumed != 1 {
		t.Errorf("expected 1 consumed, got %d", status.TotalConsumed)
	}
}

func TestRateLimiter_Wait_Cancelled(t *testing.T) {
	rl := NewRateLimiter(1)
	// Drain the bucket
	for rl.TryConsume() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("expected context error from Wait on empty bucket")
	}
}

func TestRateLimiter_Record429(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.Record429(5 * time.Second)

	if rl.TryConsume() {
		t.Error("expected tokens drained after 429 with retry-after")
	}

	status := rl.Status()
	if status.Last429Time.IsZero() {
		t.Error("expected last 429 time recorded")
	}
}

func TestMockReasoner(t *testing.T) {
	t.Run("returns canned response", func(t *testing.T) {
		mock := NewMockReasoner()
		mock.ResponseText = "hello"

		result, err := mock.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Content != "hello" {
			t.Errorf("expected hello, got %s", result.Content)
		}
		if !result.Success {
			t.Error("expected success")
		}
	})

	t.Run("consumes queue in order", func(t *testing.T) {
		mock := NewMockReasoner()
		mock.Enqueue("first", "second")

		r1, _ := mock.Chat(context.Background(), &ChatRequest{})
		r2, _ := mock.Chat(context.Background(), &ChatRequest{})
		if r1.Content != "first" || r2.Content != "second" {
			t.Errorf("queue order wrong: %s, %s", r1.Content, r2.Content)
		}
	})

	t.Run("fails when configured", func(t *testing.T) {
		mock := NewMockReasoner()
		mock.ShouldFail = true

		_, err := mock.Chat(context.Background(), &ChatRequest{})
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	mock := NewMockEmbedder()

	r1, err := mock.Embed(context.Background(), &EmbedRequest{Inputs: []string{"alpha", "beta"}})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	r2, err := mock.Embed(context.Background(), &EmbedRequest{Inputs: []string{"alpha", "beta"}})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(r1.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(r1.Embeddings))
	}
	for i := range r1.Embeddings {
		for j := range r1.Embeddings[i] {
			if r1.Embeddings[i][j] != r2.Embeddings[i][j] {
				t.Fatal("embeddings not deterministic")
			}
		}
	}
	if len(r1.Embeddings[0]) != mock.Dimension() {
		t.Errorf("expected dimension %d, got %d", mock.Dimension(), len(r1.Embeddings[0]))
	}
}

func TestMockTTSProvider(t *testing.T) {
	mock := NewMockTTSProvider()

	result, err := mock.Generate(context.Background(), &TTSRequest{
		Text:  "hello world",
		Voice: "mock-a",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if len(result.Audio) == 0 {
		t.Error("expected audio bytes")
	}
	if result.CharCount != len("hello world") {
		t.Errorf("expected char count %d, got %d", len("hello world"), result.CharCount)
	}
}

func TestRegistry_FromConfig(t *testing.T) {
	cfg := RegistryConfig{
		Reasoners: map[string]ReasonerConfig{
			"mock":     {Type: "mock", Enabled: true},
			"disabled": {Type: "mock", Enabled: false},
			"nokey":    {Type: "openai", Enabled: true}, // no API key
		},
		Embedders: map[string]EmbedderConfig{
			"mock": {Type: "mock", Enabled: true, Dimension: 8},
		},
		Synths: map[string]SynthConfig{
			"mock": {Type: "mock", Enabled: true},
		},
	}

	r := NewRegistryFromConfig(cfg)

	if !r.HasReasoner("mock") {
		t.Error("expected mock reasoner registered")
	}
	if r.HasReasoner("disabled") {
		t.Error("disabled provider should not be registered")
	}
	if r.HasReasoner("nokey") {
		t.Error("provider without API key should not be registered")
	}

	emb, err := r.GetEmbedder("mock")
	if err != nil {
		t.Fatalf("GetEmbedder() error = %v", err)
	}
	if emb.Dimension() != 8 {
		t.Errorf("expected dimension 8, got %d", emb.Dimension())
	}

	if _, err := r.GetSynth("mock"); err != nil {
		t.Errorf("GetSynth() error = %v", err)
	}
	if _, err := r.GetSynth("missing"); err == nil {
		t.Error("expected error for missing synth provider")
	}
}

func TestRegistry_Reload(t *testing.T) {
	cfg := RegistryConfig{
		Reasoners: map[string]ReasonerConfig{
			"mock": {Type: "mock", Enabled: true},
		},
	}
	r := NewRegistryFromConfig(cfg)

	// Remove the provider in new config
	r.Reload(RegistryConfig{})
	if r.HasReasoner("mock") {
		t.Error("expected reasoner unregistered after reload")
	}

	// Add it back
	r.Reload(cfg)
	if !r.HasReasoner("mock") {
		t.Error("expected reasoner re-registered after reload")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("2"); d != 2*time.Second {
		t.Errorf("expected 2s, got %s", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("expected 0, got %s", d)
	}
	if d := parseRetryAfter("not-a-number"); d != 0 {
		t.Errorf("expected 0, got %s", d)
	}
}
