package episode

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
	"github.com/jackzampolin/papercast/internal/synth"
)

func testAssembler(t *testing.T) (*Assembler, *synth.Gateway, *budget.Governor) {
	t.Helper()
	tts := providers.NewMockTTSProvider()
	tts.Latency = 0
	store, err := synth.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	vm, err := synth.LoadVoiceMap()
	if err != nil {
		t.Fatal(err)
	}
	gov := budget.NewGovernor(budget.Limits{
		MaxCostUSD:              10,
		MaxTokensPerPaper:       1_000_000,
		MaxProcessing:           time.Hour,
		SynthesisCostPer1KChars: 0.015,
	}, slog.Default())
	gov.StartJob("j1")
	sg := synth.NewGateway(tts, vm, store, synth.NewMockStitcher(), gov, slog.Default(), synth.Config{})
	return NewAssembler(sg, gov, slog.Default()), sg, gov
}

func completedJob(t *testing.T, sg *synth.Gateway) *podcast.Job {
	t.Helper()
	job := &podcast.Job{
		JobID:     "j1",
		PaperID:   "p1",
		StyleID:   "npr_calm",
		StartedAt: time.Now().Add(-time.Minute),
		Outline: &podcast.Outline{
			EpisodeTitle:    "A Paper, Explained",
			TargetDurationS: 300,
			Segments: []podcast.SegmentPlan{
				{Index: 0, Type: podcast.SegmentIntro, Title: "Intro"},
				{Index: 1, Type: podcast.SegmentCore, Title: "Findings", KeyPoints: []string{"k"}},
			},
		},
	}
	job.Segments = []podcast.SegmentDraft{
		{
			Plan: job.Outline.Segments[0],
			Lines: []podcast.ScriptLine{
				{Speaker: podcast.SpeakerHost1, Text: "Welcome!", IsVerified: true, Arranged: true},
			},
			FactcheckScore: 1.0, VerificationPassed: true, IsComplete: true, Structural: true,
		},
		{
			Plan: job.Outline.Segments[1],
			Lines: []podcast.ScriptLine{
				{Speaker: podcast.SpeakerHost1, Text: "What did they find?", IsVerified: true, Arranged: true},
				{Speaker: podcast.SpeakerHost2, Text: "A twelve percent gain.", IsVerified: true, Arranged: true},
			},
			FactcheckScore: 0.9, VerificationPassed: true, IsComplete: true,
		},
	}
	for i := range job.Segments {
		if err := sg.SynthesizeSegment(context.Background(), "j1", "npr_calm", &job.Segments[i]); err != nil {
			t.Fatal(err)
		}
	}
	return job
}

func TestAssembler_Assemble(t *testing.T) {
	a, sg, _ := testAssembler(t)
	job := completedJob(t, sg)

	ep, err := a.Assemble(context.Background(), job)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if ep.EpisodeID == "" || ep.AudioRef == "" {
		t.Fatalf("episode missing identity or audio: %+v", ep)
	}
	if len(ep.Segments) != len(job.Outline.Segments) {
		t.Errorf("episode has %d segment records, want %d", len(ep.Segments), len(job.Outline.Segments))
	}
	if ep.VerificationRate != 1.0 {
		t.Errorf("verification rate = %v, want 1.0", ep.VerificationRate)
	}
	if ep.VerificationDegraded || ep.SynthesisDegraded {
		t.Errorf("unexpected degradation flags: %+v", ep)
	}
	if ep.TotalDurationS <= 0 {
		t.Error("expected positive episode duration")
	}
	if ep.TotalCostUSD <= 0 {
		t.Error("expected synthesis cost on the episode")
	}
	if _, err := sg.Store().Read(ep.AudioRef); err != nil {
		t.Errorf("episode audio unreadable: %v", err)
	}

	t.Run("records follow outline order", func(t *testing.T) {
		for i, rec := range ep.Segments {
			if rec.Index != i {
				t.Errorf("record %d has index %d", i, rec.Index)
			}
		}
	})
}

func TestAssembler_DegradationSurfaced(t *testing.T) {
	a, sg, _ := testAssembler(t)
	job := completedJob(t, sg)

	// The core segment never verified and one line fell back to silence.
	job.Segments[1].VerificationPassed = false
	job.Segments[1].Lines[1].IsVerified = false
	job.Segments[1].Lines[0].SynthesisDegraded = true

	ep, err := a.Assemble(context.Background(), job)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if !ep.VerificationDegraded {
		t.Error("verification degradation not surfaced")
	}
	if !ep.SynthesisDegraded {
		t.Error("synthesis degradation not surfaced")
	}
	if ep.VerificationRate != 0.5 {
		t.Errorf("verification rate = %v, want 0.5", ep.VerificationRate)
	}
}

func TestAssembler_FailedSegmentExcludedFromAudio(t *testing.T) {
	a, sg, _ := testAssembler(t)
	job := completedJob(t, sg)
	job.Segments[1].Failed = true

	ep, err := a.Assemble(context.Background(), job)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(ep.Segments) != 2 {
		t.Errorf("failed segment dropped from records: %d", len(ep.Segments))
	}
	data, err := sg.Store().Read(ep.AudioRef)
	if err != nil {
		t.Fatal(err)
	}
	// Only the intro's line should be present in the stitched audio.
	if !strings.Contains(string(data), "MOCKAUDIO") {
		t.Errorf("expected intro audio in episode, got %q", data)
	}
	if strings.Contains(string(data), "twelve percent") {
		t.Error("failed segment's audio leaked into the episode")
	}
}

func TestAssembler_MismatchedDraftsRejected(t *testing.T) {
	a, sg, _ := testAssembler(t)
	job := completedJob(t, sg)
	job.Segments = job.Segments[:1]

	if _, err := a.Assemble(context.Background(), job); podcast.KindOf(err) != podcast.ErrInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}
