package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/episode"
	"github.com/jackzampolin/papercast/internal/jobstore"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
	"github.com/jackzampolin/papercast/internal/reasoner"
	"github.com/jackzampolin/papercast/internal/retriever"
	"github.com/jackzampolin/papercast/internal/segment"
	"github.com/jackzampolin/papercast/internal/style"
	"github.com/jackzampolin/papercast/internal/synth"
)

const (
	outlineJSON = `{"episode_title":"A Paper, Explained","segments":[
		{"type":"intro","title":"Intro","duration_target_s":30,"key_points":[]},
		{"type":"core","title":"Findings","description":"What they found.","duration_target_s":120,"key_points":["headline result"]},
		{"type":"outro","title":"Outro","duration_target_s":30,"key_points":[]}
	]}`

	coreDraftJSON = `{"lines":[
		{"speaker":"host1","text":"What did they find?","emotion":"curious"},
		{"speaker":"host2","text":"They report a twelve percent improvement.","emotion":"excited","citations":["c1"]}
	]}`

	checkPassJSON = `{"accuracy_score":0.9,"line_verdicts":[
		{"line_index":0,"verified":true},
		{"line_index":1,"verified":true}
	]}`

	checkFailJSON = `{"accuracy_score":0.6,"line_verdicts":[
		{"line_index":0,"verified":true},
		{"line_index":1,"verified":false,"issue":"improvement figure not in the paper"}
	],"feedback":"the number is overstated"}`

	checkStuckJSON = `{"accuracy_score":0.5,"line_verdicts":[
		{"line_index":1,"verified":false,"issue":"still unsupported"}
	],"feedback":"claim remains unsupported"}`

	fixJSON = `{"lines":[
		{"line_index":1,"text":"They report a clear improvement over the baseline.","emotion":"thoughtful","citations":["c1"]}
	]}`
)

type env struct {
	store *jobstore.Store
	orch  *Orchestrator
	mock  *providers.MockReasoner
	gov   *budget.Governor

	outlineCalls   atomic.Int64
	factcheckCalls atomic.Int64

	// Per-kind hooks; nil means the canned default.
	onOutline   func(n int64) (string, error)
	onDraft     func(n int64) (string, error)
	onFactcheck func(n int64) (string, error)
}

func defaultLimits() budget.Limits {
	return budget.Limits{
		MaxCostUSD:               10,
		MaxTokensPerPaper:        1_000_000,
		MaxProcessing:            time.Hour,
		ReasoningCostPer1KTokens: 0.01,
		EmbeddingCostPer1KTokens: 0.0001,
		SynthesisCostPer1KChars:  0.015,
	}
}

func newEnv(t *testing.T, limits budget.Limits) *env {
	t.Helper()
	logger := slog.Default()

	e := &env{
		store: jobstore.NewStore(logger),
		gov:   budget.NewGovernor(limits, logger),
		mock:  providers.NewMockReasoner(),
	}
	e.mock.Latency = 0
	e.mock.Respond = func(req *providers.ChatRequest) (string, error) {
		schema := ""
		if req.ResponseFormat != nil {
			schema = string(req.ResponseFormat.JSONSchema)
		}
		switch {
		case strings.Contains(schema, "episode_outline"):
			n := e.outlineCalls.Add(1)
			if e.onOutline != nil {
				return e.onOutline(n)
			}
			return outlineJSON, nil
		case strings.Contains(schema, "segment_script"):
			if e.onDraft != nil {
				return e.onDraft(0)
			}
			return coreDraftJSON, nil
		case strings.Contains(schema, "factcheck_verdict"):
			n := e.factcheckCalls.Add(1)
			if e.onFactcheck != nil {
				return e.onFactcheck(n)
			}
			return checkPassJSON, nil
		case strings.Contains(schema, "line_rewrites"):
			return fixJSON, nil
		default:
			return "", errors.New("unexpected request shape")
		}
	}

	embedder := providers.NewMockEmbedder()
	embedder.Latency = 0
	ret := retriever.NewGateway(retriever.NewMemoryIndex(), embedder, e.gov, logger, retriever.GatewayConfig{
		Chunker:    retriever.ChunkerConfig{ChunkWords: 50, OverlapWords: 10, MinWords: 5},
		BatchSize:  4,
		RetrievalK: 3,
	})
	rsn := reasoner.NewGateway(e.mock, e.gov, logger, reasoner.Config{Model: "mock"})

	catalog, err := style.LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	engine := style.NewEngine(catalog, logger, style.EngineConfig{})

	tts := providers.NewMockTTSProvider()
	tts.Latency = 0
	tts.RetryDelay = time.Millisecond
	artifacts, err := synth.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	vm, err := synth.LoadVoiceMap()
	if err != nil {
		t.Fatal(err)
	}
	sg := synth.NewGateway(tts, vm, artifacts, synth.NewMockStitcher(), e.gov, logger, synth.Config{})

	pipe := segment.NewPipeline(rsn, ret, engine, sg, logger, segment.Config{})
	asm := episode.NewAssembler(sg, e.gov, logger)

	e.orch = NewOrchestrator(e.store, e.gov, ret, rsn, catalog, pipe, asm, logger, Config{SegmentParallelism: 1})

	paper := &podcast.Paper{PaperID: "p1", Title: "A Paper", Body: testPaperBody()}
	if err := e.store.CreatePaper(paper); err != nil {
		t.Fatal(err)
	}
	if err := e.store.CreateJob(&podcast.Job{JobID: "j1", PaperID: "p1", StyleID: "npr_calm", TargetS: 300}); err != nil {
		t.Fatal(err)
	}
	return e
}

func testPaperBody() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The study measures throughput across workloads and reports gains. ")
	}
	return strings.TrimSpace(b.String())
}

func (e *env) states(t *testing.T) []podcast.State {
	t.Helper()
	events, err := e.store.Events("j1")
	if err != nil {
		t.Fatal(err)
	}
	out := make([]podcast.State, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.To)
	}
	return out
}

func statesEqual(a, b []podcast.State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOrchestrator_HappyPath(t *testing.T) {
	e := newEnv(t, defaultLimits())

	if err := e.orch.Run(context.Background(), "j1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, _ := e.store.GetJob("j1")
	if job.State != podcast.StateCompleted || job.ProgressPct != 100 {
		t.Fatalf("job = %s at %d%%, want completed at 100%%", job.State, job.ProgressPct)
	}
	if job.EpisodeID == "" {
		t.Fatal("completed job has no episode")
	}

	want := []podcast.State{
		podcast.StateUploaded, podcast.StateIndexing, podcast.StatePlanning,
		podcast.StateDrafting, podcast.StateFactChecking,
		podcast.StateGeneratingAudio, podcast.StateStitching, podcast.StateCompleted,
	}
	if got := e.states(t); !statesEqual(got, want) {
		t.Errorf("state sequence = %v, want %v", got, want)
	}

	ep, err := e.store.GetEpisode(job.EpisodeID)
	if err != nil {
		t.Fatalf("episode missing: %v", err)
	}
	if len(ep.Segments) != 3 {
		t.Errorf("episode has %d segments, want 3", len(ep.Segments))
	}
	if ep.VerificationRate != 1.0 || ep.VerificationDegraded {
		t.Errorf("verification rate=%v degraded=%v", ep.VerificationRate, ep.VerificationDegraded)
	}
	if ep.TotalCostUSD <= 0 {
		t.Error("episode missing cost")
	}
}

func TestOrchestrator_RewriteLoop(t *testing.T) {
	e := newEnv(t, defaultLimits())
	e.onFactcheck = func(n int64) (string, error) {
		if n == 1 {
			return checkFailJSON, nil
		}
		return checkPassJSON, nil
	}

	if err := e.orch.Run(context.Background(), "j1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, _ := e.store.GetJob("j1")
	if job.State != podcast.StateCompleted {
		t.Fatalf("job = %s, want completed", job.State)
	}

	core := job.Segments[1]
	if core.RewriteCount != 1 {
		t.Errorf("core rewrite count = %d, want 1", core.RewriteCount)
	}
	if !core.VerificationPassed {
		t.Error("core segment should verify after rewrite")
	}

	want := []podcast.State{
		podcast.StateUploaded, podcast.StateIndexing, podcast.StatePlanning,
		podcast.StateDrafting, podcast.StateFactChecking,
		podcast.StateRewriting, podcast.StateFactChecking,
		podcast.StateGeneratingAudio, podcast.StateStitching, podcast.StateCompleted,
	}
	if got := e.states(t); !statesEqual(got, want) {
		t.Errorf("state sequence = %v, want %v", got, want)
	}

	ep, _ := e.store.GetEpisode(job.EpisodeID)
	if ep.VerificationDegraded {
		t.Error("episode flagged degraded after successful rewrite")
	}
}

func TestOrchestrator_RewriteCapStillCompletes(t *testing.T) {
	e := newEnv(t, defaultLimits())
	e.onFactcheck = func(int64) (string, error) {
		return checkStuckJSON, nil
	}

	if err := e.orch.Run(context.Background(), "j1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, _ := e.store.GetJob("j1")
	if job.State != podcast.StateCompleted {
		t.Fatalf("job = %s, want completed despite unresolved verification", job.State)
	}

	core := job.Segments[1]
	if core.RewriteCount != 2 {
		t.Errorf("core rewrite count = %d, want the cap of 2", core.RewriteCount)
	}
	if core.VerificationPassed {
		t.Error("core segment should remain unverified")
	}

	ep, _ := e.store.GetEpisode(job.EpisodeID)
	if !ep.VerificationDegraded {
		t.Error("episode must surface verification degradation")
	}
	if ep.VerificationRate >= 1.0 {
		t.Errorf("verification rate = %v, want below 1.0", ep.VerificationRate)
	}
}

func TestOrchestrator_BudgetTrip(t *testing.T) {
	limits := defaultLimits()
	limits.MaxTokensPerPaper = 2000 // below one reasoning call's reservation
	e := newEnv(t, limits)

	err := e.orch.Run(context.Background(), "j1")
	if podcast.KindOf(err) != podcast.ErrBudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %v", err)
	}

	job, _ := e.store.GetJob("j1")
	if job.State != podcast.StateFailed {
		t.Fatalf("job = %s, want failed", job.State)
	}
	if job.Error == nil || job.Error.Kind != podcast.ErrBudgetExceeded {
		t.Errorf("job error = %+v, want budget_exceeded", job.Error)
	}
	if job.ProgressPct >= 95 {
		t.Errorf("progress = %d, job must fail before stitching", job.ProgressPct)
	}
	if n := len(e.store.ListEpisodes()); n != 0 {
		t.Errorf("expected no episode, found %d", n)
	}
}

func TestOrchestrator_MalformedOutlineRetried(t *testing.T) {
	e := newEnv(t, defaultLimits())
	// The first planning attempt burns its original call and the repair
	// re-prompt; the retried state then succeeds.
	e.onOutline = func(n int64) (string, error) {
		if n <= 2 {
			return "::not json::", nil
		}
		return outlineJSON, nil
	}

	if err := e.orch.Run(context.Background(), "j1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, _ := e.store.GetJob("j1")
	if job.State != podcast.StateCompleted {
		t.Fatalf("job = %s, want completed after retry", job.State)
	}
	if job.RetryCountForState != 0 {
		t.Errorf("retry counter = %d, must reset on the next transition", job.RetryCountForState)
	}
	if got := e.outlineCalls.Load(); got != 3 {
		t.Errorf("outline calls = %d, want 3 (attempt, repair, retry)", got)
	}

	// Planning is entered once; the retry happens in place.
	planning := 0
	for _, st := range e.states(t) {
		if st == podcast.StatePlanning {
			planning++
		}
	}
	if planning != 1 {
		t.Errorf("planning entered %d times, want 1", planning)
	}
}

func TestOrchestrator_CancellationMidDrafting(t *testing.T) {
	e := newEnv(t, defaultLimits())
	draftStarted := make(chan struct{})
	var once atomic.Bool
	e.onDraft = func(int64) (string, error) {
		if once.CompareAndSwap(false, true) {
			close(draftStarted)
		}
		time.Sleep(200 * time.Millisecond)
		return coreDraftJSON, nil
	}

	m := NewManager(e.orch, 2, slog.Default())
	m.Enqueue(context.Background(), "j1")

	select {
	case <-draftStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("drafting never started")
	}
	if err := m.Cancel("j1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	m.Wait()

	job, _ := e.store.GetJob("j1")
	if job.State != podcast.StateFailed {
		t.Fatalf("job = %s, want failed", job.State)
	}
	if job.Error == nil || job.Error.Kind != podcast.ErrCancelled {
		t.Errorf("job error = %+v, want cancelled", job.Error)
	}
	if n := len(e.store.ListEpisodes()); n != 0 {
		t.Errorf("cancelled job produced %d episodes", n)
	}

	// The outline survives as a partial artifact.
	if job.Outline == nil {
		t.Error("partial outline discarded on cancellation")
	}

	states := e.states(t)
	if states[len(states)-1] != podcast.StateFailed {
		t.Errorf("last event = %s, want failed", states[len(states)-1])
	}
	sawDrafting := false
	for _, st := range states {
		if st == podcast.StateDrafting {
			sawDrafting = true
		}
	}
	if !sawDrafting {
		t.Error("job never reached drafting before cancellation")
	}
}

func TestManager_ConcurrencyLimit(t *testing.T) {
	e := newEnv(t, defaultLimits())
	for _, id := range []string{"j2", "j3"} {
		if err := e.store.CreateJob(&podcast.Job{JobID: id, PaperID: "p1", StyleID: "npr_calm", TargetS: 300}); err != nil {
			t.Fatal(err)
		}
	}

	var inFlight, peak atomic.Int64
	e.onDraft = func(int64) (string, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return coreDraftJSON, nil
	}

	m := NewManager(e.orch, 2, slog.Default())
	for _, id := range []string{"j1", "j2", "j3"} {
		m.Enqueue(context.Background(), id)
	}
	m.Wait()

	for _, id := range []string{"j1", "j2", "j3"} {
		job, _ := e.store.GetJob(id)
		if job.State != podcast.StateCompleted {
			t.Errorf("job %s = %s, want completed", id, job.State)
		}
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("drafting observed %d jobs in flight, slot limit is 2", p)
	}
}
