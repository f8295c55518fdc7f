// Package episode assembles completed segment drafts into the final
// episode artifact and its metadata record.
package episode

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/synth"
)

// Assembler stitches segment audio in outline order and derives the
// episode's quality metadata. Failed segments are skipped in the audio but
// still appear in the segment records.
type Assembler struct {
	synth    *synth.Gateway
	governor *budget.Governor
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewAssembler creates an episode assembler.
func NewAssembler(syn *synth.Gateway, governor *budget.Governor, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		synth:    syn,
		governor: governor,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Assemble builds the episode for a job whose segments have all finished.
// Ordering follows the outline index, never completion order. The episode
// carries one segment record per outline segment, including failed ones.
func (a *Assembler) Assemble(ctx context.Context, job *podcast.Job) (*podcast.Episode, error) {
	if job.Outline == nil {
		return nil, podcast.NewError(podcast.ErrInternal, "job %s has no outline to assemble", job.JobID)
	}
	if len(job.Segments) != len(job.Outline.Segments) {
		return nil, podcast.NewError(podcast.ErrInternal,
			"job %s has %d drafts for %d planned segments", job.JobID, len(job.Segments), len(job.Outline.Segments))
	}

	episodeID := a.newID()
	records := make([]podcast.SegmentRecord, 0, len(job.Segments))
	refs := make([]string, 0, len(job.Segments))

	var verifiedLines, spokenLines int
	verificationDegraded := false
	synthesisDegraded := false

	for i := range job.Segments {
		d := &job.Segments[i]
		rec := podcast.SegmentRecord{
			Index:              d.Plan.Index,
			Type:               d.Plan.Type,
			Title:              d.Plan.Title,
			LineCount:          len(d.Lines),
			FactcheckScore:     d.FactcheckScore,
			RewriteCount:       d.RewriteCount,
			VerificationPassed: d.VerificationPassed,
			DegradedDraft:      d.DegradedDraft,
			Structural:         d.Structural,
			AudioRef:           d.AudioRef,
			DurationMS:         d.DurationMS,
		}
		for _, line := range d.Lines {
			if line.SynthesisDegraded {
				rec.SynthesisDegraded = true
				synthesisDegraded = true
			}
			if !d.Structural {
				spokenLines++
				if line.IsVerified {
					verifiedLines++
				}
			}
		}
		if !d.Structural && (!d.VerificationPassed || d.DegradedDraft) {
			verificationDegraded = true
		}
		records = append(records, rec)

		if d.AudioRef != "" && !d.Failed {
			refs = append(refs, d.AudioRef)
		} else {
			a.logger.Warn("segment excluded from episode audio",
				"job_id", job.JobID, "segment", d.Plan.Index, "failed", d.Failed)
		}
	}

	audioRef, durationMS, err := a.synth.StitchEpisode(ctx, job.JobID, episodeID, refs)
	if err != nil {
		return nil, err
	}

	rate := 1.0
	if spokenLines > 0 {
		rate = float64(verifiedLines) / float64(spokenLines)
	}

	snap := a.governor.Snapshot(job.JobID)
	ep := &podcast.Episode{
		EpisodeID:            episodeID,
		PaperID:              job.PaperID,
		JobID:                job.JobID,
		StyleID:              job.StyleID,
		Outline:              *job.Outline,
		Segments:             records,
		AudioRef:             audioRef,
		VerificationRate:     rate,
		TotalDurationS:       float64(durationMS) / 1000.0,
		TotalCostUSD:         snap.CostUSD,
		ProcessingTimeS:      a.now().Sub(job.StartedAt).Seconds(),
		CreatedAt:            a.now(),
		VerificationDegraded: verificationDegraded,
		SynthesisDegraded:    synthesisDegraded,
	}

	a.logger.Info("episode assembled",
		"episode_id", episodeID,
		"job_id", job.JobID,
		"segments", len(records),
		"duration_s", ep.TotalDurationS,
		"verification_rate", rate,
		"cost_usd", ep.TotalCostUSD)
	return ep, nil
}
