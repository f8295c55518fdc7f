// Package segment drives one outline segment from plan to synthesized
// audio: draft, fact-check, bounded rewrite loop, arrangement, synthesis.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/papercast/internal/contract"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/reasoner"
	"github.com/jackzampolin/papercast/internal/retriever"
	"github.com/jackzampolin/papercast/internal/style"
	"github.com/jackzampolin/papercast/internal/synth"
)

// Config holds per-segment tuning.
type Config struct {
	AccuracyThreshold float64 // inclusive pass boundary (0.75)
	MaxRewrites       int     // rewrite loop cap (2)
	MaxRetries        int     // per-stage retries for retriable failures (2)
	RetrievalK        int     // fact chunks per segment (5)
}

// Pipeline produces a completed SegmentDraft for one plan. Structural
// segments skip drafting and verification entirely; their lines come from
// the style templates with a fixed score of 1.
type Pipeline struct {
	reasoner  *reasoner.Gateway
	retriever *retriever.Gateway
	styles    *style.Engine
	synth     *synth.Gateway
	logger    *slog.Logger
	cfg       Config
}

// NewPipeline creates a segment pipeline.
func NewPipeline(r *reasoner.Gateway, ret *retriever.Gateway, styles *style.Engine, syn *synth.Gateway, logger *slog.Logger, cfg Config) *Pipeline {
	if cfg.AccuracyThreshold <= 0 {
		cfg.AccuracyThreshold = 0.75
	}
	if cfg.MaxRewrites <= 0 {
		cfg.MaxRewrites = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{reasoner: r, retriever: ret, styles: styles, synth: syn, logger: logger, cfg: cfg}
}

// Process runs one segment to completion: draft, the verification loop,
// then finalization. The returned draft is always non-nil and carries
// whatever was produced before any error.
func (p *Pipeline) Process(ctx context.Context, jobID, paperID string, st *style.Style, plan podcast.SegmentPlan, topic string) (*podcast.SegmentDraft, error) {
	draft, err := p.Draft(ctx, jobID, paperID, st, plan, topic)
	if err != nil {
		return draft, err
	}

	for {
		if err := p.Verify(ctx, jobID, paperID, draft); err != nil {
			draft.Failed = true
			return draft, err
		}
		if draft.VerificationPassed || !p.CanRewrite(draft) {
			break
		}
		if err := p.RewriteFlagged(ctx, jobID, paperID, draft); err != nil {
			draft.Failed = true
			return draft, err
		}
	}

	if err := p.Finalize(ctx, jobID, st.ID, draft); err != nil {
		return draft, err
	}
	return draft, nil
}

// Draft produces the initial lines for a plan. Structural plans come from
// the style templates; everything else is drafted against retrieved
// excerpts, falling back to a deterministic template on contract failure.
func (p *Pipeline) Draft(ctx context.Context, jobID, paperID string, st *style.Style, plan podcast.SegmentPlan, topic string) (*podcast.SegmentDraft, error) {
	if plan.Type.Structural() {
		draft := style.StructuralDraft(st, plan, topic)
		return &draft, nil
	}

	draft := &podcast.SegmentDraft{Plan: plan}

	chunks, degraded, err := p.retrieveFacts(ctx, jobID, paperID, plan)
	if err != nil {
		draft.Failed = true
		return draft, err
	}
	draft.DegradedContext = degraded

	if err := p.draft(ctx, jobID, st, plan, chunks, draft); err != nil {
		draft.Failed = true
		return draft, err
	}
	return draft, nil
}

// Verify runs one fact-check pass over the draft. On a clean pass every
// line is marked verified; otherwise flagged lines carry the rewrite mark
// and the caller decides whether a rewrite round is still allowed. The
// pass boundary is inclusive: a score exactly at the threshold passes.
// Structural and already-verified drafts are no-ops.
func (p *Pipeline) Verify(ctx context.Context, jobID, paperID string, draft *podcast.SegmentDraft) error {
	if draft.Structural || draft.VerificationPassed {
		return nil
	}

	chunks, _, err := p.retrieveFacts(ctx, jobID, paperID, draft.Plan)
	if err != nil {
		return err
	}

	var fc *contract.FactcheckContract
	err = p.withRetries(ctx, "factcheck", func() error {
		var ferr error
		fc, ferr = p.reasoner.FactCheck(ctx, jobID, draft.Plan.Index, draft.Lines, chunks)
		return ferr
	})
	if err != nil {
		return err
	}

	draft.FactcheckScore = fc.AccuracyScore
	draft.FactcheckFeedback = fc.Feedback
	applyVerdicts(draft, fc, p.cfg.AccuracyThreshold)

	if fc.AccuracyScore >= p.cfg.AccuracyThreshold && !draft.NeedsRewrite() {
		draft.VerificationPassed = true
		for i := range draft.Lines {
			draft.Lines[i].IsVerified = true
			draft.Lines[i].NeedsRewrite = false
		}
		return nil
	}

	draft.VerificationPassed = false
	if !p.CanRewrite(draft) {
		p.logger.Warn("rewrites exhausted, continuing unverified",
			"job_id", jobID, "segment", draft.Plan.Index,
			"score", fc.AccuracyScore, "rewrites", draft.RewriteCount)
	}
	return nil
}

// CanRewrite reports whether the draft has rewrite budget left.
func (p *Pipeline) CanRewrite(draft *podcast.SegmentDraft) bool {
	return draft.RewriteCount < p.cfg.MaxRewrites
}

// RewriteFlagged replaces the draft's flagged lines and increments the
// rewrite counter. Unflagged lines are preserved byte for byte. The caller
// must re-verify afterwards.
func (p *Pipeline) RewriteFlagged(ctx context.Context, jobID, paperID string, draft *podcast.SegmentDraft) error {
	if !draft.NeedsRewrite() && draft.FactcheckScore >= p.cfg.AccuracyThreshold {
		return nil
	}

	chunks, _, err := p.retrieveFacts(ctx, jobID, paperID, draft.Plan)
	if err != nil {
		return err
	}

	fc := &contract.FactcheckContract{
		AccuracyScore: draft.FactcheckScore,
		Feedback:      draft.FactcheckFeedback,
	}
	for i, line := range draft.Lines {
		if line.NeedsRewrite {
			fc.LineVerdicts = append(fc.LineVerdicts, contract.LineVerdict{
				LineIndex: i, Verified: false, Issue: draft.FactcheckFeedback,
			})
		}
	}
	if len(fc.LineVerdicts) == 0 {
		// Score below threshold without per-line flags; give the model the
		// whole segment to tighten.
		for i := range draft.Lines {
			fc.LineVerdicts = append(fc.LineVerdicts, contract.LineVerdict{
				LineIndex: i, Verified: false, Issue: draft.FactcheckFeedback,
			})
		}
	}

	var rewritten []podcast.ScriptLine
	err = p.withRetries(ctx, "rewrite", func() error {
		var rerr error
		rewritten, rerr = p.reasoner.Rewrite(ctx, jobID, draft.Plan.Index, draft.Lines, fc, chunks)
		return rerr
	})
	if err != nil {
		return err
	}
	draft.Lines = rewritten
	draft.RewriteCount++
	return nil
}

// Finalize arranges the draft for delivery and synthesizes its audio,
// marking it complete.
func (p *Pipeline) Finalize(ctx context.Context, jobID, styleID string, draft *podcast.SegmentDraft) error {
	arranged, err := p.styles.ArrangeSegment(draft.Lines, styleID)
	if err != nil {
		draft.Failed = true
		return err
	}
	draft.Lines = arranged

	if err := p.synthesize(ctx, jobID, styleID, draft); err != nil {
		draft.Failed = true
		return err
	}

	draft.IsComplete = true
	p.logger.Info("segment complete",
		"job_id", jobID,
		"segment", draft.Plan.Index,
		"lines", len(draft.Lines),
		"score", draft.FactcheckScore,
		"rewrites", draft.RewriteCount,
		"verified", draft.VerificationPassed)
	return nil
}

// retrieveFacts fetches the chunk context for the plan's key points.
func (p *Pipeline) retrieveFacts(ctx context.Context, jobID, paperID string, plan podcast.SegmentPlan) ([]podcast.Chunk, bool, error) {
	query := plan.Title
	if len(plan.KeyPoints) > 0 {
		query += ": " + strings.Join(plan.KeyPoints, "; ")
	}
	return p.retriever.RetrieveFacts(ctx, jobID, paperID, query, p.cfg.RetrievalK)
}

// draft generates the segment dialogue. Contract failures fall back to a
// deterministic template derived from the plan; the draft is flagged
// degraded and still fact-checked.
func (p *Pipeline) draft(ctx context.Context, jobID string, st *style.Style, plan podcast.SegmentPlan, chunks []podcast.Chunk, draft *podcast.SegmentDraft) error {
	patterns, perr := p.retriever.RetrieveStyles(ctx, jobID, st.ID, "", plan.Title, 3)
	if perr != nil {
		// Style patterns are a nice-to-have; draft without them.
		patterns = nil
	}

	var lines []podcast.ScriptLine
	err := p.withRetries(ctx, "draft", func() error {
		var derr error
		lines, derr = p.reasoner.GenerateDraft(ctx, jobID, plan, chunks, patterns, st.Brief())
		if derr == nil && len(lines) < 2 {
			derr = podcast.WrapError(podcast.ErrContract,
				fmt.Errorf("%w: segment %d drafted %d lines, want at least 2",
					podcast.ErrMalformedContract, plan.Index, len(lines)))
		}
		return derr
	})
	if err != nil {
		if podcast.KindOf(err) != podcast.ErrContract {
			return err
		}
		p.logger.Warn("draft contract failed, using template fallback",
			"job_id", jobID, "segment", plan.Index, "error", err)
		lines = fallbackLines(plan)
		draft.DegradedDraft = true
	}
	draft.Lines = lines
	return nil
}

func (p *Pipeline) synthesize(ctx context.Context, jobID, styleID string, draft *podcast.SegmentDraft) error {
	return p.withRetries(ctx, "synthesize", func() error {
		return p.synth.SynthesizeSegment(ctx, jobID, styleID, draft)
	})
}

// withRetries retries retriable failures up to the per-segment cap.
// Non-retriable errors return immediately.
func (p *Pipeline) withRetries(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return podcast.WrapError(podcast.ErrCancelled, ctx.Err())
		}
		if err = fn(); err == nil {
			return nil
		}
		if !podcast.IsRetriable(err) {
			return err
		}
		p.logger.Warn("segment stage failed, retrying",
			"op", op, "attempt", attempt+1, "error", err)
	}
	return err
}

// applyVerdicts marks lines per the fact-check contract. When the verdict
// carries per-line judgments, unjudged lines make no factual claim and
// count as verified. When per-line judgments are absent entirely, every
// line is verified only if the segment accuracy clears the threshold.
func applyVerdicts(draft *podcast.SegmentDraft, fc *contract.FactcheckContract, threshold float64) {
	blanket := len(fc.LineVerdicts) > 0 || fc.AccuracyScore >= threshold
	judged := make(map[int]bool, len(fc.LineVerdicts))
	for _, v := range fc.LineVerdicts {
		judged[v.LineIndex] = true
		if v.LineIndex < 0 || v.LineIndex >= len(draft.Lines) {
			continue
		}
		draft.Lines[v.LineIndex].IsVerified = v.Verified
		draft.Lines[v.LineIndex].NeedsRewrite = !v.Verified
	}
	for i := range draft.Lines {
		if !judged[i] {
			draft.Lines[i].IsVerified = blanket
			draft.Lines[i].NeedsRewrite = !blanket
		}
	}
}

// fallbackLines builds a deterministic two-host script from the plan when
// drafting cannot produce a contract-valid script.
func fallbackLines(plan podcast.SegmentPlan) []podcast.ScriptLine {
	lines := []podcast.ScriptLine{
		{Speaker: podcast.SpeakerHost1, Text: fmt.Sprintf("Let's turn to %s.", plan.Title), Emotion: podcast.EmotionNeutral},
	}
	if plan.Description != "" {
		lines = append(lines, podcast.ScriptLine{
			Speaker: podcast.SpeakerHost2, Text: plan.Description, Emotion: podcast.EmotionNeutral,
		})
	}
	speaker := podcast.SpeakerHost2
	for _, kp := range plan.KeyPoints {
		speaker = otherSpeaker(speaker)
		lines = append(lines, podcast.ScriptLine{
			Speaker: speaker,
			Text:    fmt.Sprintf("One thing the paper highlights: %s.", strings.TrimSuffix(kp, ".")),
			Emotion: podcast.EmotionNeutral,
		})
	}
	if len(lines) < 2 {
		lines = append(lines, podcast.ScriptLine{
			Speaker: podcast.SpeakerHost2,
			Text:    "There's a lot packed into this part of the paper.",
			Emotion: podcast.EmotionNeutral,
		})
	}
	return lines
}

func otherSpeaker(sp podcast.Speaker) podcast.Speaker {
	if sp == podcast.SpeakerHost1 {
		return podcast.SpeakerHost2
	}
	return podcast.SpeakerHost1
}
