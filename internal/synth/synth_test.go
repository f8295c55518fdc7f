package synth

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
)

func TestVoiceMap_Resolve(t *testing.T) {
	vm, err := LoadVoiceMap()
	if err != nil {
		t.Fatalf("LoadVoiceMap() error = %v", err)
	}

	t.Run("mapped pair", func(t *testing.T) {
		if got := vm.Resolve("npr_calm", podcast.SpeakerHost1); got != "sage" {
			t.Errorf("Resolve(npr_calm, host1) = %q, want sage", got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := vm.Resolve("debate_format", podcast.SpeakerHost2)
		b := vm.Resolve("debate_format", podcast.SpeakerHost2)
		if a != b {
			t.Errorf("resolution not deterministic: %q vs %q", a, b)
		}
	})

	t.Run("unknown style falls back to default", func(t *testing.T) {
		if got := vm.Resolve("no_such_style", podcast.SpeakerHost1); got != vm.DefaultVoice {
			t.Errorf("expected default voice, got %q", got)
		}
	})

	t.Run("unmapped speaker falls back to narrator", func(t *testing.T) {
		vm2 := &VoiceMap{
			DefaultVoice: "fallback",
			Styles: map[string]map[podcast.Speaker]string{
				"partial": {podcast.SpeakerNarrator: "narr"},
			},
		}
		if got := vm2.Resolve("partial", podcast.SpeakerHost2); got != "narr" {
			t.Errorf("expected narrator fallback, got %q", got)
		}
	})
}

func TestStore(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	ref := store.LineRef("job-1", 2, 5, "mp3")
	if err := store.Write(ref, []byte("audio")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !store.Exists(ref) {
		t.Error("artifact missing after write")
	}
	data, err := store.Read(ref)
	if err != nil || string(data) != "audio" {
		t.Errorf("Read() = %q, %v", data, err)
	}

	t.Run("refs escaping the root rejected", func(t *testing.T) {
		if _, err := store.Resolve("../outside"); err == nil {
			t.Error("expected error for escaping ref")
		}
		if _, err := store.Resolve("/abs/path"); err == nil {
			t.Error("expected error for absolute ref")
		}
	})
}

func testSynthGateway(t *testing.T, tts providers.TTSProvider) (*Gateway, *budget.Governor) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	vm, err := LoadVoiceMap()
	if err != nil {
		t.Fatal(err)
	}
	gov := budget.NewGovernor(budget.Limits{
		MaxCostUSD:               10,
		MaxTokensPerPaper:        1_000_000,
		MaxProcessing:            time.Hour,
		SynthesisCostPer1KChars:  0.015,
	}, slog.Default())
	gw := NewGateway(tts, vm, store, NewMockStitcher(), gov, slog.Default(), Config{})
	return gw, gov
}

func testDraft() *podcast.SegmentDraft {
	return &podcast.SegmentDraft{
		Plan: podcast.SegmentPlan{Index: 1, Type: podcast.SegmentCore, Title: "Findings"},
		Lines: []podcast.ScriptLine{
			{Speaker: podcast.SpeakerHost1, Text: "What did they find?", Emotion: podcast.EmotionCurious, IsVerified: true, Arranged: true},
			{Speaker: podcast.SpeakerHost2, Text: "A twelve percent gain.", Emotion: podcast.EmotionExcited, IsVerified: true, Arranged: true},
		},
		FactcheckScore:     1.0,
		VerificationPassed: true,
		IsComplete:         true,
	}
}

func TestGateway_SynthesizeSegment(t *testing.T) {
	tts := providers.NewMockTTSProvider()
	tts.Latency = 0
	gw, gov := testSynthGateway(t, tts)
	gov.StartJob("job-1")

	draft := testDraft()
	if err := gw.SynthesizeSegment(context.Background(), "job-1", "npr_calm", draft); err != nil {
		t.Fatalf("SynthesizeSegment() error = %v", err)
	}
	if draft.AudioRef == "" {
		t.Fatal("draft missing audio ref")
	}
	if draft.DurationMS <= 0 {
		t.Error("draft missing duration")
	}

	data, err := gw.Store().Read(draft.AudioRef)
	if err != nil {
		t.Fatalf("segment artifact unreadable: %v", err)
	}
	// The mock TTS stamps the resolved voice into the artifact bytes.
	if !strings.Contains(string(data), "MOCKAUDIO[sage]") || !strings.Contains(string(data), "MOCKAUDIO[alloy]") {
		t.Errorf("expected both host voices in stitched audio, got %q", data)
	}
	if !strings.Contains(string(data), "[gap 250ms]") {
		t.Error("expected inter-line gap in stitched audio")
	}

	snap := gov.Snapshot("job-1")
	if snap.SynthCharacters == 0 {
		t.Error("expected synthesis characters recorded")
	}
}

func TestGateway_SynthesizeLine_Degrades(t *testing.T) {
	tts := providers.NewMockTTSProvider()
	tts.Latency = 0
	tts.ShouldFail = true
	tts.RetryDelay = time.Millisecond
	gw, gov := testSynthGateway(t, tts)
	gov.StartJob("job-1")

	line := &podcast.ScriptLine{Speaker: podcast.SpeakerHost1, Text: "Ten words of speech right here in this test line."}
	ref, durationMS, err := gw.SynthesizeLine(context.Background(), "job-1", "npr_calm", 0, 0, line)
	if err != nil {
		t.Fatalf("expected degradation, not failure: %v", err)
	}
	if !line.SynthesisDegraded {
		t.Error("line not flagged degraded")
	}
	if durationMS != 4000 { // 10 words at 150 wpm
		t.Errorf("placeholder duration = %d, want 4000", durationMS)
	}
	if !gw.Store().Exists(ref) {
		t.Error("placeholder artifact missing")
	}

	records := gov.Records("job-1")
	if len(records) != 1 || records[0].Success {
		t.Errorf("expected one failed usage record, got %+v", records)
	}
}

func TestGateway_SynthesizeLine_BudgetBlocks(t *testing.T) {
	tts := providers.NewMockTTSProvider()
	tts.Latency = 0
	store, _ := NewStore(t.TempDir())
	vm, _ := LoadVoiceMap()
	gov := budget.NewGovernor(budget.Limits{
		MaxCostUSD:              0.0001, // one line of synthesis exceeds this
		MaxTokensPerPaper:       1_000_000,
		MaxProcessing:           time.Hour,
		SynthesisCostPer1KChars: 10,
	}, slog.Default())
	gw := NewGateway(tts, vm, store, NewMockStitcher(), gov, slog.Default(), Config{})
	gov.StartJob("job-1")

	line := &podcast.ScriptLine{Speaker: podcast.SpeakerHost1, Text: "Some text."}
	_, _, err := gw.SynthesizeLine(context.Background(), "job-1", "npr_calm", 0, 0, line)
	if podcast.KindOf(err) != podcast.ErrBudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %v", err)
	}
	if tts.RequestCount() != 0 {
		t.Errorf("expected no TTS calls, got %d", tts.RequestCount())
	}
}

func TestGateway_StitchEpisode(t *testing.T) {
	tts := providers.NewMockTTSProvider()
	tts.Latency = 0
	gw, gov := testSynthGateway(t, tts)
	gov.StartJob("job-1")

	var refs []string
	for i := 0; i < 2; i++ {
		draft := testDraft()
		draft.Plan.Index = i
		if err := gw.SynthesizeSegment(context.Background(), "job-1", "npr_calm", draft); err != nil {
			t.Fatal(err)
		}
		refs = append(refs, draft.AudioRef)
	}

	ref, durationMS, err := gw.StitchEpisode(context.Background(), "job-1", "ep-1", refs)
	if err != nil {
		t.Fatalf("StitchEpisode() error = %v", err)
	}
	if durationMS <= 0 {
		t.Error("expected positive episode duration")
	}
	data, err := gw.Store().Read(ref)
	if err != nil {
		t.Fatalf("episode artifact unreadable: %v", err)
	}
	if !strings.Contains(string(data), "[gap 800ms]") {
		t.Error("expected inter-segment gap in episode audio")
	}
}
