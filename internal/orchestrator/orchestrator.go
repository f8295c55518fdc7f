// Package orchestrator drives jobs through the paper-to-episode workflow:
// indexing, planning, the drafting and verification phases, audio
// generation, and final stitching. It is the only writer of job state.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/episode"
	"github.com/jackzampolin/papercast/internal/jobstore"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/reasoner"
	"github.com/jackzampolin/papercast/internal/retriever"
	"github.com/jackzampolin/papercast/internal/segment"
	"github.com/jackzampolin/papercast/internal/style"
)

// Config holds workflow tuning.
type Config struct {
	MaxStateRetries    int // retries of one state before failing (3)
	MaxIterations      int // hard cap on workflow loop turns (50)
	SegmentParallelism int // concurrent segments in a phase (3)
	OutlineChunks      int // excerpts fed to the planner (8)
}

// Orchestrator runs one job at a time through the state machine. All job
// mutation goes through the store so event subscribers see every move.
type Orchestrator struct {
	store     *jobstore.Store
	governor  *budget.Governor
	retriever *retriever.Gateway
	reasoner  *reasoner.Gateway
	styles    *style.Catalog
	pipeline  *segment.Pipeline
	assembler *episode.Assembler
	logger    *slog.Logger
	cfg       Config

	indexStylesOnce sync.Once
}

// NewOrchestrator creates a workflow orchestrator.
func NewOrchestrator(store *jobstore.Store, governor *budget.Governor, ret *retriever.Gateway, rsn *reasoner.Gateway, styles *style.Catalog, pipe *segment.Pipeline, asm *episode.Assembler, logger *slog.Logger, cfg Config) *Orchestrator {
	if cfg.MaxStateRetries <= 0 {
		cfg.MaxStateRetries = 3
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}
	if cfg.SegmentParallelism <= 0 {
		cfg.SegmentParallelism = 3
	}
	if cfg.OutlineChunks <= 0 {
		cfg.OutlineChunks = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		governor:  governor,
		retriever: ret,
		reasoner:  rsn,
		styles:    styles,
		pipeline:  pipe,
		assembler: asm,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run drives a job until it reaches a terminal state. Partial artifacts are
// retained on failure and cancellation.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	o.governor.StartJob(jobID)
	log := o.logger.With("job_id", jobID)

	for {
		job, err := o.store.GetJob(jobID)
		if err != nil {
			return err
		}
		if job.State.Terminal() {
			if job.State == podcast.StateFailed && job.Error != nil {
				return job.Error
			}
			return nil
		}

		if err := o.bumpIteration(jobID); err != nil {
			o.fail(jobID, err)
			continue
		}
		if ctx.Err() != nil {
			o.fail(jobID, podcast.WrapError(podcast.ErrCancelled, ctx.Err()))
			continue
		}
		// Budget gate before every state's work.
		if err := o.governor.CheckPrecall(jobID, budget.OpReasoning, 0, 0); err != nil {
			o.fail(jobID, err)
			continue
		}

		if err := o.step(ctx, job); err != nil {
			o.handleStepError(jobID, job.State, err, log)
		}
	}
}

func (o *Orchestrator) step(ctx context.Context, job *podcast.Job) error {
	switch job.State {
	case podcast.StateUploaded:
		_, err := o.store.Transition(job.JobID, podcast.StateIndexing, "chunking and embedding paper")
		return err
	case podcast.StateIndexing:
		return o.stepIndexing(ctx, job)
	case podcast.StatePlanning:
		return o.stepPlanning(ctx, job)
	case podcast.StateDrafting:
		return o.stepDrafting(ctx, job)
	case podcast.StateFactChecking:
		return o.stepFactChecking(ctx, job)
	case podcast.StateRewriting:
		return o.stepRewriting(ctx, job)
	case podcast.StateGeneratingAudio:
		return o.stepGeneratingAudio(ctx, job)
	case podcast.StateStitching:
		return o.stepStitching(ctx, job)
	default:
		return podcast.NewError(podcast.ErrInternal, "job %s in unhandled state %s", job.JobID, job.State)
	}
}

func (o *Orchestrator) stepIndexing(ctx context.Context, job *podcast.Job) error {
	paper, err := o.store.GetPaper(job.PaperID)
	if err != nil {
		return podcast.WrapError(podcast.ErrBadInput, err)
	}

	report, err := o.retriever.IndexPaper(ctx, job.JobID, paper)
	if err != nil {
		return err
	}

	// Style patterns are shared across jobs; index them on first use.
	var styleErr error
	o.indexStylesOnce.Do(func() {
		styleErr = o.retriever.IndexStyles(ctx, job.JobID, o.styles.AllPatterns())
	})
	if styleErr != nil {
		o.logger.Warn("style pattern indexing failed, drafting without examples", "error", styleErr)
	}

	detail := "paper indexed"
	if report.Degraded {
		detail = "paper indexed with partial embedding coverage"
	}
	_, err = o.store.Transition(job.JobID, podcast.StatePlanning, detail)
	return err
}

func (o *Orchestrator) stepPlanning(ctx context.Context, job *podcast.Job) error {
	paper, err := o.store.GetPaper(job.PaperID)
	if err != nil {
		return podcast.WrapError(podcast.ErrBadInput, err)
	}
	st, err := o.styles.Get(job.StyleID)
	if err != nil {
		return err
	}

	chunks, _, err := o.retriever.RetrieveFacts(ctx, job.JobID, job.PaperID, paper.Title, o.cfg.OutlineChunks)
	if err != nil {
		return err
	}

	outline, err := o.reasoner.GenerateOutline(ctx, job.JobID, paper, chunks, st.Brief(), job.TargetS)
	if err != nil {
		return err
	}
	style.EnsureStructural(outline)

	if err := o.store.UpdateJob(job.JobID, func(j *podcast.Job) error {
		j.Outline = outline
		j.Segments = nil
		return nil
	}); err != nil {
		return err
	}
	_, err = o.store.Transition(job.JobID, podcast.StateDrafting, outline.EpisodeTitle)
	return err
}

func (o *Orchestrator) stepDrafting(ctx context.Context, job *podcast.Job) error {
	if job.Outline == nil {
		return podcast.NewError(podcast.ErrInternal, "job %s drafting without an outline", job.JobID)
	}
	paper, err := o.store.GetPaper(job.PaperID)
	if err != nil {
		return podcast.WrapError(podcast.ErrBadInput, err)
	}
	st, err := o.styles.Get(job.StyleID)
	if err != nil {
		return err
	}
	topic := job.Outline.EpisodeTitle
	if topic == "" {
		topic = paper.Title
	}

	drafts := make([]podcast.SegmentDraft, len(job.Outline.Segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SegmentParallelism)
	for i, plan := range job.Outline.Segments {
		g.Go(func() error {
			d, err := o.pipeline.Draft(gctx, job.JobID, job.PaperID, st, plan, topic)
			if d != nil {
				drafts[i] = *d
			}
			return err
		})
	}
	err = g.Wait()

	if saveErr := o.saveDrafts(job.JobID, drafts); saveErr != nil {
		return saveErr
	}
	if err != nil {
		return err
	}
	_, err = o.store.Transition(job.JobID, podcast.StateFactChecking, "segments drafted")
	return err
}

func (o *Orchestrator) stepFactChecking(ctx context.Context, job *podcast.Job) error {
	drafts := job.Segments
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SegmentParallelism)
	for i := range drafts {
		if drafts[i].Structural || drafts[i].Failed || drafts[i].VerificationPassed {
			continue
		}
		g.Go(func() error {
			return o.pipeline.Verify(gctx, job.JobID, job.PaperID, &drafts[i])
		})
	}
	err := g.Wait()

	if saveErr := o.saveDrafts(job.JobID, drafts); saveErr != nil {
		return saveErr
	}
	if err != nil {
		return err
	}

	// One rewriting entry covers every flagged segment with budget left.
	flagged := 0
	for i := range drafts {
		if o.wantsRewrite(&drafts[i]) {
			flagged++
		}
	}
	if flagged > 0 {
		_, err := o.store.Transition(job.JobID, podcast.StateRewriting, "rewriting flagged segments")
		return err
	}
	_, err = o.store.Transition(job.JobID, podcast.StateGeneratingAudio, "verification finished")
	return err
}

func (o *Orchestrator) stepRewriting(ctx context.Context, job *podcast.Job) error {
	drafts := job.Segments
	for i := range drafts {
		if !o.wantsRewrite(&drafts[i]) {
			continue
		}
		if err := o.pipeline.RewriteFlagged(ctx, job.JobID, job.PaperID, &drafts[i]); err != nil {
			if saveErr := o.saveDrafts(job.JobID, drafts); saveErr != nil {
				return saveErr
			}
			return err
		}
	}
	if err := o.saveDrafts(job.JobID, drafts); err != nil {
		return err
	}
	_, err := o.store.Transition(job.JobID, podcast.StateFactChecking, "re-checking rewritten segments")
	return err
}

func (o *Orchestrator) stepGeneratingAudio(ctx context.Context, job *podcast.Job) error {
	drafts := job.Segments
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SegmentParallelism)
	for i := range drafts {
		if drafts[i].Failed {
			continue
		}
		g.Go(func() error {
			return o.pipeline.Finalize(gctx, job.JobID, job.StyleID, &drafts[i])
		})
	}
	err := g.Wait()

	if saveErr := o.saveDrafts(job.JobID, drafts); saveErr != nil {
		return saveErr
	}
	if err != nil {
		return err
	}
	_, err = o.store.Transition(job.JobID, podcast.StateStitching, "segment audio ready")
	return err
}

func (o *Orchestrator) stepStitching(ctx context.Context, job *podcast.Job) error {
	ep, err := o.assembler.Assemble(ctx, job)
	if err != nil {
		return err
	}
	if err := o.store.SaveEpisode(ep); err != nil {
		return err
	}
	if err := o.store.UpdateJob(job.JobID, func(j *podcast.Job) error {
		j.EpisodeID = ep.EpisodeID
		snap := o.governor.Snapshot(job.JobID)
		j.CostEstimateUSD = snap.CostUSD
		j.TokensUsed = snap.TokensUsed
		return nil
	}); err != nil {
		return err
	}
	_, err = o.store.Transition(job.JobID, podcast.StateCompleted, "episode "+ep.EpisodeID)
	return err
}

// wantsRewrite reports whether a draft should enter the rewrite phase.
func (o *Orchestrator) wantsRewrite(d *podcast.SegmentDraft) bool {
	return !d.Structural && !d.Failed && !d.VerificationPassed && o.pipeline.CanRewrite(d)
}

func (o *Orchestrator) saveDrafts(jobID string, drafts []podcast.SegmentDraft) error {
	return o.store.UpdateJob(jobID, func(j *podcast.Job) error {
		j.Segments = drafts
		return nil
	})
}

// bumpIteration counts workflow loop turns and fails runaway jobs.
func (o *Orchestrator) bumpIteration(jobID string) error {
	var iterations int
	if err := o.store.UpdateJob(jobID, func(j *podcast.Job) error {
		j.Iterations++
		iterations = j.Iterations
		return nil
	}); err != nil {
		return err
	}
	if iterations > o.cfg.MaxIterations {
		return podcast.NewError(podcast.ErrInternal, "job %s exceeded %d workflow iterations", jobID, o.cfg.MaxIterations)
	}
	return nil
}

// handleStepError retries retriable failures in place, up to the per-state
// cap; everything else fails the job.
func (o *Orchestrator) handleStepError(jobID string, state podcast.State, err error, log *slog.Logger) {
	if !podcast.IsRetriable(err) {
		o.fail(jobID, err)
		return
	}

	var retries int
	if uerr := o.store.UpdateJob(jobID, func(j *podcast.Job) error {
		j.RetryCountForState++
		retries = j.RetryCountForState
		return nil
	}); uerr != nil {
		o.fail(jobID, uerr)
		return
	}
	if retries > o.cfg.MaxStateRetries {
		o.fail(jobID, err)
		return
	}
	log.Warn("state failed, retrying", "state", state, "attempt", retries, "error", err)
}

// fail records the error and moves the job to failed. Artifacts produced so
// far stay where they are.
func (o *Orchestrator) fail(jobID string, err error) {
	wrapped := podcast.WrapError(podcast.ErrInternal, err)
	if uerr := o.store.UpdateJob(jobID, func(j *podcast.Job) error {
		j.Error = wrapped
		return nil
	}); uerr != nil {
		o.logger.Error("recording job error failed", "job_id", jobID, "error", uerr)
	}
	if _, terr := o.store.Transition(jobID, podcast.StateFailed, string(wrapped.Kind)); terr != nil {
		o.logger.Error("failing job failed", "job_id", jobID, "error", terr)
	}
}
