package reasoner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/contract"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
)

const validOutlineJSON = `{
  "episode_title": "The Paper Episode",
  "segments": [
    {"type": "intro", "title": "Welcome", "duration_target_s": 60, "key_points": []},
    {"type": "core", "title": "Main Findings", "duration_target_s": 300, "key_points": ["the model improves accuracy by 12%"]},
    {"type": "outro", "title": "Wrap Up", "duration_target_s": 60, "key_points": []}
  ]
}`

const validSegmentJSON = `{
  "lines": [
    {"speaker": "host1", "text": "So what did they find?", "emotion": "curious"},
    {"speaker": "host2", "text": "Accuracy went up twelve percent.", "emotion": "excited", "citations": ["c1"]}
  ]
}`

func testGateway(mock *providers.MockReasoner) (*Gateway, *budget.Governor) {
	gov := budget.NewGovernor(budget.Limits{
		MaxCostUSD:               10,
		MaxTokensPerPaper:        1_000_000,
		MaxProcessing:            time.Hour,
		ReasoningCostPer1KTokens: 0.01,
	}, slog.Default())
	gw := NewGateway(mock, gov, slog.Default(), Config{Model: "mock-model"})
	return gw, gov
}

func testPaper() *podcast.Paper {
	return &podcast.Paper{PaperID: "p1", Title: "A Study of Things"}
}

func testChunks() []podcast.Chunk {
	return []podcast.Chunk{
		{ChunkID: "c1", PaperID: "p1", Ordinal: 0, Text: "Accuracy improved by 12% over baseline."},
		{ChunkID: "c2", PaperID: "p1", Ordinal: 1, Text: "The method uses a two-stage pipeline."},
	}
}

func testLines() []podcast.ScriptLine {
	return []podcast.ScriptLine{
		{Speaker: podcast.SpeakerHost1, Text: "So what did they find?", Emotion: podcast.EmotionCurious},
		{Speaker: podcast.SpeakerHost2, Text: "Accuracy doubled.", Emotion: podcast.EmotionExcited, Citations: []podcast.Citation{{ChunkID: "c1"}}},
	}
}

func TestGateway_GenerateOutline(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.Enqueue(validOutlineJSON)
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		outline, err := gw.GenerateOutline(context.Background(), "job-1", testPaper(), testChunks(), "calm and curious", 420)
		if err != nil {
			t.Fatalf("GenerateOutline() error = %v", err)
		}
		if outline.EpisodeTitle != "The Paper Episode" {
			t.Errorf("unexpected title %q", outline.EpisodeTitle)
		}
		if len(outline.Segments) != 3 {
			t.Fatalf("expected 3 segments, got %d", len(outline.Segments))
		}
		if outline.TargetDurationS != 420 {
			t.Errorf("expected target duration carried through, got %v", outline.TargetDurationS)
		}
		if mock.RequestCount() != 1 {
			t.Errorf("expected 1 request, got %d", mock.RequestCount())
		}

		snap := gov.Snapshot("job-1")
		if snap.TokensUsed == 0 {
			t.Error("expected reasoning usage recorded")
		}
	})

	t.Run("repaired after one malformed response", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.Enqueue("here you go!", validOutlineJSON)
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		outline, err := gw.GenerateOutline(context.Background(), "job-1", testPaper(), testChunks(), "calm", 420)
		if err != nil {
			t.Fatalf("GenerateOutline() error = %v", err)
		}
		if outline == nil || len(outline.Segments) != 3 {
			t.Fatalf("expected repaired outline, got %+v", outline)
		}
		if mock.RequestCount() != 2 {
			t.Errorf("expected 2 requests (original + repair), got %d", mock.RequestCount())
		}
	})

	t.Run("fails after repair also malformed", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.Enqueue("nope", "still nope")
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		_, err := gw.GenerateOutline(context.Background(), "job-1", testPaper(), testChunks(), "calm", 420)
		if err == nil {
			t.Fatal("expected error after failed repair")
		}
		if !errors.Is(err, podcast.ErrMalformedContract) {
			t.Errorf("expected malformed contract, got %v", err)
		}
		if podcast.KindOf(err) != podcast.ErrContract {
			t.Errorf("expected contract kind, got %s", podcast.KindOf(err))
		}
		if mock.RequestCount() != 2 {
			t.Errorf("expected exactly 2 requests, got %d", mock.RequestCount())
		}
	})

	t.Run("budget gate blocks before any call", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.Enqueue(validOutlineJSON)
		gov := budget.NewGovernor(budget.Limits{
			MaxCostUSD:        10,
			MaxTokensPerPaper: 10, // below any realistic estimate
			MaxProcessing:     time.Hour,
		}, slog.Default())
		gw := NewGateway(mock, gov, slog.Default(), Config{})
		gov.StartJob("job-1")

		_, err := gw.GenerateOutline(context.Background(), "job-1", testPaper(), testChunks(), "calm", 420)
		if podcast.KindOf(err) != podcast.ErrBudgetExceeded {
			t.Fatalf("expected budget_exceeded, got %v", err)
		}
		if mock.RequestCount() != 0 {
			t.Errorf("expected no provider calls, got %d", mock.RequestCount())
		}
	})

	t.Run("provider failure surfaces as transient", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.ShouldFail = true
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		_, err := gw.GenerateOutline(context.Background(), "job-1", testPaper(), testChunks(), "calm", 420)
		if podcast.KindOf(err) != podcast.ErrUpstreamTransient {
			t.Fatalf("expected upstream_transient, got %v", err)
		}

		records := gov.Records("job-1")
		if len(records) != 1 || records[0].Success {
			t.Errorf("expected one failed usage record, got %+v", records)
		}
	})

	t.Run("rejected request surfaces as permanent", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.Respond = func(req *providers.ChatRequest) (string, error) {
			return "", &providers.PermanentError{
				Message:    "OpenAI error (status 401): invalid api key",
				StatusCode: 401,
			}
		}
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		_, err := gw.GenerateOutline(context.Background(), "job-1", testPaper(), testChunks(), "calm", 420)
		if podcast.KindOf(err) != podcast.ErrUpstreamPermanent {
			t.Fatalf("expected upstream_permanent, got %v", err)
		}
		if podcast.IsRetriable(err) {
			t.Error("a rejected request must not be retriable")
		}
	})
}

func TestGateway_GenerateDraft(t *testing.T) {
	mock := providers.NewMockReasoner()
	mock.Latency = 0
	mock.Enqueue(validSegmentJSON)
	gw, gov := testGateway(mock)
	gov.StartJob("job-1")

	plan := podcast.SegmentPlan{
		Index:           1,
		Type:            podcast.SegmentCore,
		Title:           "Main Findings",
		DurationTargetS: 300,
		KeyPoints:       []string{"accuracy improved by 12%"},
	}
	lines, err := gw.GenerateDraft(context.Background(), "job-1", plan, testChunks(), nil, "calm")
	if err != nil {
		t.Fatalf("GenerateDraft() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[1].Speaker != podcast.SpeakerHost2 {
		t.Errorf("unexpected speaker %s", lines[1].Speaker)
	}
	if len(lines[1].Citations) != 1 || lines[1].Citations[0].ChunkID != "c1" {
		t.Errorf("expected citation c1, got %+v", lines[1].Citations)
	}

	records := gov.Records("job-1")
	if len(records) != 1 || records[0].ItemKey != "segment_1" {
		t.Errorf("expected usage attributed to segment_1, got %+v", records)
	}
}

func TestGateway_FactCheck(t *testing.T) {
	t.Run("verdict parsed", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.Enqueue(`{"accuracy_score": 0.5, "line_verdicts": [{"line_index": 1, "verified": false, "issue": "accuracy gain is 12%, not double"}], "feedback": "one overclaim"}`)
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		fc, err := gw.FactCheck(context.Background(), "job-1", 1, testLines(), testChunks())
		if err != nil {
			t.Fatalf("FactCheck() error = %v", err)
		}
		if fc.AccuracyScore != 0.5 {
			t.Errorf("unexpected score %v", fc.AccuracyScore)
		}
		if len(fc.LineVerdicts) != 1 || fc.LineVerdicts[0].LineIndex != 1 {
			t.Errorf("unexpected verdicts %+v", fc.LineVerdicts)
		}
	})

	t.Run("verdict index out of range rejected", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		bad := `{"accuracy_score": 0.5, "line_verdicts": [{"line_index": 9, "verified": false, "issue": "x"}]}`
		mock.Enqueue(bad, bad)
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		_, err := gw.FactCheck(context.Background(), "job-1", 1, testLines(), testChunks())
		if !errors.Is(err, podcast.ErrMalformedContract) {
			t.Fatalf("expected malformed contract, got %v", err)
		}
	})
}

func TestGateway_Rewrite(t *testing.T) {
	verdict := &contract.FactcheckContract{
		AccuracyScore: 0.5,
		LineVerdicts: []contract.LineVerdict{
			{LineIndex: 0, Verified: true},
			{LineIndex: 1, Verified: false, Issue: "accuracy gain is 12%, not double"},
		},
	}

	t.Run("replaces only flagged lines", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		mock.Enqueue(`{"lines": [{"line_index": 1, "text": "Accuracy went up twelve percent.", "emotion": "thoughtful", "citations": ["c1"]}]}`)
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		lines := testLines()
		lines[1].IsVerified = true
		out, err := gw.Rewrite(context.Background(), "job-1", 1, lines, verdict, testChunks())
		if err != nil {
			t.Fatalf("Rewrite() error = %v", err)
		}
		if out[0].Text != lines[0].Text || out[0].Emotion != lines[0].Emotion {
			t.Errorf("unflagged line changed: %+v", out[0])
		}
		if out[1].Text != "Accuracy went up twelve percent." {
			t.Errorf("flagged line not replaced: %q", out[1].Text)
		}
		if out[1].Emotion != podcast.EmotionThoughtful {
			t.Errorf("emotion not applied: %s", out[1].Emotion)
		}
		if out[1].IsVerified {
			t.Error("rewritten line must lose its verified mark")
		}
	})

	t.Run("rejects rewrite of unflagged line", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		bad := `{"lines": [{"line_index": 0, "text": "rewritten banter"}]}`
		mock.Enqueue(bad, bad)
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		_, err := gw.Rewrite(context.Background(), "job-1", 1, testLines(), verdict, testChunks())
		if !errors.Is(err, podcast.ErrMalformedContract) {
			t.Fatalf("expected malformed contract, got %v", err)
		}
	})

	t.Run("no flagged lines is a no-op", func(t *testing.T) {
		mock := providers.NewMockReasoner()
		mock.Latency = 0
		gw, gov := testGateway(mock)
		gov.StartJob("job-1")

		clean := &contract.FactcheckContract{AccuracyScore: 1.0}
		lines := testLines()
		out, err := gw.Rewrite(context.Background(), "job-1", 1, lines, clean, testChunks())
		if err != nil {
			t.Fatalf("Rewrite() error = %v", err)
		}
		if len(out) != len(lines) || out[1].Text != lines[1].Text {
			t.Errorf("expected lines unchanged, got %+v", out)
		}
		if mock.RequestCount() != 0 {
			t.Errorf("expected no provider calls, got %d", mock.RequestCount())
		}
	})
}

func TestBuildRewriteUserPrompt(t *testing.T) {
	flagged := []flaggedLine{{Index: 1, Issue: "overclaim"}}
	prompt := BuildRewriteUserPrompt(testLines(), flagged, testChunks())
	for _, want := range []string{"line 1: overclaim", "[chunk c1]", "Accuracy doubled."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
