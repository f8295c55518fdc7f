package segment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/contract"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
	"github.com/jackzampolin/papercast/internal/reasoner"
	"github.com/jackzampolin/papercast/internal/retriever"
	"github.com/jackzampolin/papercast/internal/style"
	"github.com/jackzampolin/papercast/internal/synth"
)

const (
	draftJSON = `{"lines":[
		{"speaker":"host1","text":"What did the authors set out to do here?","emotion":"curious"},
		{"speaker":"host2","text":"They trained a model on two million samples.","emotion":"thoughtful","citations":["c1"]}
	]}`

	factcheckPassJSON = `{"accuracy_score":0.92,"line_verdicts":[
		{"line_index":0,"verified":true},
		{"line_index":1,"verified":true}
	],"feedback":"solid"}`

	factcheckFailJSON = `{"accuracy_score":0.6,"line_verdicts":[
		{"line_index":0,"verified":true},
		{"line_index":1,"verified":false,"issue":"sample count not supported"}
	],"feedback":"overclaims the dataset size"}`

	rewriteJSON = `{"lines":[
		{"line_index":1,"text":"They trained on roughly two million labeled samples.","emotion":"thoughtful","citations":["c1"]}
	]}`

	factcheckPassAfterRewriteJSON = `{"accuracy_score":0.9,"line_verdicts":[
		{"line_index":0,"verified":true},
		{"line_index":1,"verified":true}
	]}`
)

type stack struct {
	pipeline *Pipeline
	reasoner *providers.MockReasoner
	embedder *providers.MockEmbedder
	tts      *providers.MockTTSProvider
	governor *budget.Governor
	style    *style.Style
}

func paperBody(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		fmt.Fprintf(&b, "w%03d ", i)
	}
	return strings.TrimSpace(b.String())
}

func testStack(t *testing.T) *stack {
	t.Helper()

	gov := budget.NewGovernor(budget.Limits{
		MaxCostUSD:               10,
		MaxTokensPerPaper:        1_000_000,
		MaxProcessing:            time.Hour,
		ReasoningCostPer1KTokens: 0.01,
		EmbeddingCostPer1KTokens: 0.0001,
		SynthesisCostPer1KChars:  0.015,
	}, slog.Default())
	gov.StartJob("job-1")

	embedder := providers.NewMockEmbedder()
	embedder.Latency = 0
	ret := retriever.NewGateway(retriever.NewMemoryIndex(), embedder, gov, slog.Default(), retriever.GatewayConfig{
		Chunker:          retriever.ChunkerConfig{ChunkWords: 50, OverlapWords: 10, MinWords: 5},
		BatchSize:        4,
		RetrievalK:       3,
		MinIndexCoverage: 0.5,
	})
	paper := &podcast.Paper{PaperID: "p1", Title: "A Paper", Body: paperBody(200)}
	if _, err := ret.IndexPaper(context.Background(), "job-1", paper); err != nil {
		t.Fatalf("IndexPaper() error = %v", err)
	}

	mock := providers.NewMockReasoner()
	mock.Latency = 0
	rg := reasoner.NewGateway(mock, gov, slog.Default(), reasoner.Config{Model: "mock"})

	catalog, err := style.LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	st, err := catalog.Get("npr_calm")
	if err != nil {
		t.Fatal(err)
	}
	engine := style.NewEngine(catalog, slog.Default(), style.EngineConfig{})

	tts := providers.NewMockTTSProvider()
	tts.Latency = 0
	tts.RetryDelay = time.Millisecond
	store, err := synth.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	vm, err := synth.LoadVoiceMap()
	if err != nil {
		t.Fatal(err)
	}
	sg := synth.NewGateway(tts, vm, store, synth.NewMockStitcher(), gov, slog.Default(), synth.Config{})

	return &stack{
		pipeline: NewPipeline(rg, ret, engine, sg, slog.Default(), Config{}),
		reasoner: mock,
		embedder: embedder,
		tts:      tts,
		governor: gov,
		style:    st,
	}
}

func corePlan() podcast.SegmentPlan {
	return podcast.SegmentPlan{
		Index:           1,
		Type:            podcast.SegmentCore,
		Title:           "Training at Scale",
		Description:     "How the model was trained.",
		DurationTargetS: 120,
		KeyPoints:       []string{"dataset size", "training recipe"},
	}
}

func TestPipeline_HappyPath(t *testing.T) {
	s := testStack(t)
	s.reasoner.Enqueue(draftJSON, factcheckPassJSON)

	draft, err := s.pipeline.Process(context.Background(), "job-1", "p1", s.style, corePlan(), "A Paper")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !draft.IsComplete || !draft.VerificationPassed {
		t.Errorf("draft complete=%v verified=%v, want both true", draft.IsComplete, draft.VerificationPassed)
	}
	if draft.FactcheckScore != 0.92 {
		t.Errorf("score = %v, want 0.92", draft.FactcheckScore)
	}
	if draft.RewriteCount != 0 {
		t.Errorf("rewrite count = %d, want 0", draft.RewriteCount)
	}
	for i, line := range draft.Lines {
		if !line.IsVerified {
			t.Errorf("line %d not verified after passing check", i)
		}
		if !line.Arranged {
			t.Errorf("line %d not arranged", i)
		}
	}
	if draft.AudioRef == "" || draft.DurationMS <= 0 {
		t.Errorf("draft missing audio: ref=%q duration=%d", draft.AudioRef, draft.DurationMS)
	}
}

func TestPipeline_RewriteLoop(t *testing.T) {
	s := testStack(t)
	s.reasoner.Enqueue(draftJSON, factcheckFailJSON, rewriteJSON, factcheckPassAfterRewriteJSON)

	draft, err := s.pipeline.Process(context.Background(), "job-1", "p1", s.style, corePlan(), "A Paper")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if draft.RewriteCount != 1 {
		t.Errorf("rewrite count = %d, want 1", draft.RewriteCount)
	}
	if !draft.VerificationPassed {
		t.Error("expected verification to pass after rewrite")
	}
	if draft.FactcheckScore != 0.9 {
		t.Errorf("score = %v, want 0.9 from the re-check", draft.FactcheckScore)
	}
	if !strings.Contains(draft.Lines[1].Text, "roughly two million") {
		t.Errorf("flagged line not replaced: %q", draft.Lines[1].Text)
	}
	if !strings.Contains(draft.Lines[0].Text, "set out to do") {
		t.Errorf("unflagged line changed: %q", draft.Lines[0].Text)
	}
}

func TestPipeline_RewriteCapExhausted(t *testing.T) {
	s := testStack(t)
	// Fact-check keeps failing after both allowed rewrites.
	s.reasoner.Enqueue(draftJSON,
		factcheckFailJSON, rewriteJSON,
		factcheckFailJSON, rewriteJSON,
		factcheckFailJSON)

	draft, err := s.pipeline.Process(context.Background(), "job-1", "p1", s.style, corePlan(), "A Paper")
	if err != nil {
		t.Fatalf("cap exhaustion must not fail the segment: %v", err)
	}
	if draft.RewriteCount != 2 {
		t.Errorf("rewrite count = %d, want 2", draft.RewriteCount)
	}
	if draft.VerificationPassed {
		t.Error("verification passed despite persistent failures")
	}
	if draft.Lines[1].IsVerified {
		t.Error("flagged line reported verified")
	}
	if !draft.IsComplete || draft.AudioRef == "" {
		t.Error("segment should still complete with its best lines")
	}
}

func TestApplyVerdicts_NoPerLineJudgments(t *testing.T) {
	newDraft := func() *podcast.SegmentDraft {
		return &podcast.SegmentDraft{Lines: []podcast.ScriptLine{
			{Speaker: podcast.SpeakerHost1, Text: "What did the authors set out to do here?"},
			{Speaker: podcast.SpeakerHost2, Text: "They trained a model on two million samples."},
		}}
	}

	t.Run("low accuracy flags every line", func(t *testing.T) {
		draft := newDraft()
		applyVerdicts(draft, &contract.FactcheckContract{AccuracyScore: 0.5}, 0.75)
		for i, line := range draft.Lines {
			if line.IsVerified {
				t.Errorf("line %d verified at 0.5 accuracy with no line verdicts", i)
			}
			if !line.NeedsRewrite {
				t.Errorf("line %d not flagged for rewrite", i)
			}
		}
	})

	t.Run("passing accuracy verifies every line", func(t *testing.T) {
		draft := newDraft()
		applyVerdicts(draft, &contract.FactcheckContract{AccuracyScore: 0.9}, 0.75)
		for i, line := range draft.Lines {
			if !line.IsVerified || line.NeedsRewrite {
				t.Errorf("line %d verified=%v rewrite=%v at passing accuracy", i, line.IsVerified, line.NeedsRewrite)
			}
		}
	})

	t.Run("unjudged lines beside verdicts count as verified", func(t *testing.T) {
		draft := newDraft()
		applyVerdicts(draft, &contract.FactcheckContract{
			AccuracyScore: 0.5,
			LineVerdicts:  []contract.LineVerdict{{LineIndex: 1, Verified: false}},
		}, 0.75)
		if !draft.Lines[0].IsVerified {
			t.Error("unjudged banter line should count as verified")
		}
		if draft.Lines[1].IsVerified {
			t.Error("judged line reported verified against its verdict")
		}
	})
}

func TestPipeline_DraftContractFallback(t *testing.T) {
	s := testStack(t)
	// Draft responses never validate; fact-check responses do. The schema in
	// the response format tells the two apart.
	s.reasoner.Respond = func(req *providers.ChatRequest) (string, error) {
		if req.ResponseFormat != nil && strings.Contains(string(req.ResponseFormat.JSONSchema), "factcheck_verdict") {
			return factcheckPassJSON, nil
		}
		return "::not json::", nil
	}

	draft, err := s.pipeline.Process(context.Background(), "job-1", "p1", s.style, corePlan(), "A Paper")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !draft.DegradedDraft {
		t.Error("fallback draft not flagged degraded")
	}
	if len(draft.Lines) < 2 {
		t.Fatalf("fallback produced %d lines, want at least 2", len(draft.Lines))
	}
	if !strings.Contains(draft.Lines[0].Text, "Training at Scale") {
		t.Errorf("fallback opener missing plan title: %q", draft.Lines[0].Text)
	}
	if !draft.IsComplete || !draft.VerificationPassed {
		t.Errorf("fallback draft complete=%v verified=%v", draft.IsComplete, draft.VerificationPassed)
	}
}

func TestPipeline_StructuralSkipsReasoner(t *testing.T) {
	s := testStack(t)
	plan := podcast.SegmentPlan{Index: 0, Type: podcast.SegmentIntro, Title: "Intro", DurationTargetS: 30}

	draft, err := s.pipeline.Process(context.Background(), "job-1", "p1", s.style, plan, "A Paper")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !draft.Structural {
		t.Error("intro draft not marked structural")
	}
	if draft.FactcheckScore != 1.0 || !draft.VerificationPassed {
		t.Errorf("structural draft score=%v verified=%v", draft.FactcheckScore, draft.VerificationPassed)
	}
	if draft.AudioRef == "" {
		t.Error("structural draft missing audio")
	}
	if n := s.reasoner.RequestCount(); n != 0 {
		t.Errorf("structural segment made %d reasoner calls", n)
	}
}

func TestPipeline_TransientDraftFailureRetried(t *testing.T) {
	s := testStack(t)
	var calls atomic.Int64
	s.reasoner.Respond = func(req *providers.ChatRequest) (string, error) {
		if req.ResponseFormat != nil && strings.Contains(string(req.ResponseFormat.JSONSchema), "factcheck_verdict") {
			return factcheckPassJSON, nil
		}
		if calls.Add(1) == 1 {
			return "", fmt.Errorf("upstream hiccup")
		}
		return draftJSON, nil
	}

	draft, err := s.pipeline.Process(context.Background(), "job-1", "p1", s.style, corePlan(), "A Paper")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if draft.DegradedDraft {
		t.Error("retried draft should not be degraded")
	}
	if !draft.VerificationPassed {
		t.Error("expected verification to pass")
	}
}

func TestPipeline_DegradedRetrievalPropagates(t *testing.T) {
	s := testStack(t)
	// Embedder goes down after indexing; retrieval falls back to ordinal
	// slices and the draft carries the flag.
	s.embedder.ShouldFail = true
	s.reasoner.Enqueue(draftJSON, factcheckPassJSON)

	draft, err := s.pipeline.Process(context.Background(), "job-1", "p1", s.style, corePlan(), "A Paper")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !draft.DegradedContext {
		t.Error("degraded retrieval not flagged on the draft")
	}
	if !draft.IsComplete {
		t.Error("segment should still complete on degraded context")
	}
}

func TestPipeline_Cancellation(t *testing.T) {
	s := testStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	draft, err := s.pipeline.Process(ctx, "job-1", "p1", s.style, corePlan(), "A Paper")
	if podcast.KindOf(err) != podcast.ErrCancelled {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if !draft.Failed {
		t.Error("cancelled draft not marked failed")
	}
	if draft.IsComplete {
		t.Error("cancelled draft marked complete")
	}
}
