package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
)

// Config holds synthesis and stitching tuning.
type Config struct {
	Format            string // artifact format (mp3)
	Speed             float64
	InterLineGapMS    int // silence between lines (250)
	InterSegmentGapMS int // silence between segments (800)
	LeadInMS          int // episode lead-in silence (500)
	LeadOutMS         int // episode lead-out silence (1200)
}

// Gateway is the synthesizer gateway: per-line TTS with retries and
// silence-placeholder degradation, per-segment stitching, and final episode
// assembly. A line that cannot be synthesized never fails the job; it is
// replaced with silence and flagged.
type Gateway struct {
	tts      providers.TTSProvider
	voices   *VoiceMap
	store    *Store
	stitcher Stitcher
	governor *budget.Governor
	limiter  *providers.RateLimiter
	logger   *slog.Logger
	cfg      Config
}

// NewGateway creates a synthesizer gateway.
func NewGateway(tts providers.TTSProvider, voices *VoiceMap, store *Store, stitcher Stitcher, governor *budget.Governor, logger *slog.Logger, cfg Config) *Gateway {
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.InterLineGapMS <= 0 {
		cfg.InterLineGapMS = 250
	}
	if cfg.InterSegmentGapMS <= 0 {
		cfg.InterSegmentGapMS = 800
	}
	if cfg.LeadInMS <= 0 {
		cfg.LeadInMS = 500
	}
	if cfg.LeadOutMS <= 0 {
		cfg.LeadOutMS = 1200
	}
	if logger == nil {
		logger = slog.Default()
	}
	rpm := int(tts.RequestsPerSecond() * 60)
	if rpm <= 0 {
		rpm = 60
	}
	return &Gateway{
		tts:      tts,
		voices:   voices,
		store:    store,
		stitcher: stitcher,
		governor: governor,
		limiter:  providers.NewRateLimiter(rpm),
		logger:   logger,
		cfg:      cfg,
	}
}

// Store returns the gateway's artifact store.
func (g *Gateway) Store() *Store {
	return g.store
}

// ListVoices reports the provider's available voices when it supports
// listing.
func (g *Gateway) ListVoices(ctx context.Context) ([]providers.Voice, error) {
	if lister, ok := g.tts.(providers.VoicesLister); ok {
		return lister.ListVoices(ctx)
	}
	return nil, nil
}

// SynthesizeLine produces the audio artifact for one line. Provider
// failures after retries degrade to a silence placeholder sized from the
// line's estimated spoken duration; the line is flagged, not failed.
// Budget and cancellation errors do fail.
func (g *Gateway) SynthesizeLine(ctx context.Context, jobID, styleID string, segmentIndex, lineIndex int, line *podcast.ScriptLine) (string, int, error) {
	chars := int64(len(line.Text))
	if err := g.governor.CheckPrecall(jobID, budget.OpSynthesis, 0, chars); err != nil {
		return "", 0, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", 0, podcast.WrapError(podcast.ErrCancelled, err)
	}

	voice := g.voices.Resolve(styleID, line.Speaker)
	itemKey := fmt.Sprintf("segment_%d_line_%d", segmentIndex, lineIndex)

	attempts := g.tts.MaxRetries()
	if attempts <= 0 {
		attempts = 1
	}

	var result *providers.TTSResult
	err := retry.Do(
		func() error {
			var genErr error
			result, genErr = g.tts.Generate(ctx, &providers.TTSRequest{
				Text:         line.Text,
				Voice:        voice,
				Format:       g.cfg.Format,
				Instructions: emotionInstructions(line.Emotion),
				RequestID:    itemKey,
			})
			return genErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(g.tts.RetryDelayBase()),
		retry.LastErrorOnly(true),
	)

	usage := budget.Usage{
		JobID:      jobID,
		Stage:      "generating_audio",
		ItemKey:    itemKey,
		Op:         budget.OpSynthesis,
		Provider:   g.tts.Name(),
		Characters: chars,
		Success:    err == nil,
	}
	if result != nil {
		usage.CostUSD = result.CostUSD
	}
	if err != nil {
		usage.ErrorType = "tts_error"
	}
	g.governor.RecordUsage(usage)

	ref := g.store.LineRef(jobID, segmentIndex, lineIndex, g.cfg.Format)

	if err != nil {
		if ctx.Err() != nil {
			return "", 0, podcast.WrapError(podcast.ErrCancelled, ctx.Err())
		}
		durationMS := estimateSpokenMS(line.Text)
		g.logger.Warn("line synthesis failed, substituting silence",
			"job_id", jobID, "item", itemKey, "duration_ms", durationMS, "error", err)
		path, pathErr := g.store.EnsureDir(ref)
		if pathErr != nil {
			return "", 0, podcast.WrapError(podcast.ErrInternal, pathErr)
		}
		if err := g.stitcher.Silence(ctx, path, durationMS); err != nil {
			return "", 0, podcast.WrapError(podcast.ErrInternal, err)
		}
		line.SynthesisDegraded = true
		return ref, durationMS, nil
	}

	if err := g.store.Write(ref, result.Audio); err != nil {
		return "", 0, podcast.WrapError(podcast.ErrInternal, err)
	}
	durationMS := result.DurationMS
	if durationMS <= 0 {
		durationMS = estimateSpokenMS(line.Text)
	}
	return ref, durationMS, nil
}

// SynthesizeSegment synthesizes every line of a draft and stitches them
// into the segment artifact, setting AudioRef and DurationMS on the draft.
func (g *Gateway) SynthesizeSegment(ctx context.Context, jobID, styleID string, draft *podcast.SegmentDraft) error {
	if len(draft.Lines) == 0 {
		return podcast.NewError(podcast.ErrBadInput, "segment %d has no lines to synthesize", draft.Plan.Index)
	}

	paths := make([]string, 0, len(draft.Lines))
	for i := range draft.Lines {
		ref, _, err := g.SynthesizeLine(ctx, jobID, styleID, draft.Plan.Index, i, &draft.Lines[i])
		if err != nil {
			return err
		}
		path, err := g.store.Resolve(ref)
		if err != nil {
			return podcast.WrapError(podcast.ErrInternal, err)
		}
		paths = append(paths, path)
	}

	segRef := g.store.SegmentRef(jobID, draft.Plan.Index, g.cfg.Format)
	segPath, err := g.store.Resolve(segRef)
	if err != nil {
		return podcast.WrapError(podcast.ErrInternal, err)
	}
	durationMS, err := g.stitcher.Concat(ctx, paths, segPath, g.cfg.InterLineGapMS)
	if err != nil {
		return podcast.WrapError(podcast.ErrInternal, err)
	}

	draft.AudioRef = segRef
	draft.DurationMS = durationMS
	return nil
}

// StitchEpisode concatenates segment artifacts in order into the final
// episode artifact, with lead-in and lead-out silence. Returns the episode
// audio ref and its duration.
func (g *Gateway) StitchEpisode(ctx context.Context, jobID, episodeID string, segmentRefs []string) (string, int, error) {
	if len(segmentRefs) == 0 {
		return "", 0, podcast.NewError(podcast.ErrBadInput, "job %s has no segment audio to stitch", jobID)
	}

	paths := make([]string, 0, len(segmentRefs)+2)

	leadInPath, err := g.store.EnsureDir(g.store.EpisodeRef(episodeID, "leadin."+g.cfg.Format))
	if err != nil {
		return "", 0, podcast.WrapError(podcast.ErrInternal, err)
	}
	if err := g.stitcher.Silence(ctx, leadInPath, g.cfg.LeadInMS); err != nil {
		return "", 0, podcast.WrapError(podcast.ErrInternal, err)
	}
	paths = append(paths, leadInPath)

	for _, ref := range segmentRefs {
		path, err := g.store.Resolve(ref)
		if err != nil {
			return "", 0, podcast.WrapError(podcast.ErrInternal, err)
		}
		paths = append(paths, path)
	}

	leadOutPath, err := g.store.EnsureDir(g.store.EpisodeRef(episodeID, "leadout."+g.cfg.Format))
	if err != nil {
		return "", 0, podcast.WrapError(podcast.ErrInternal, err)
	}
	if err := g.stitcher.Silence(ctx, leadOutPath, g.cfg.LeadOutMS); err != nil {
		return "", 0, podcast.WrapError(podcast.ErrInternal, err)
	}
	paths = append(paths, leadOutPath)

	episodeRef := g.store.EpisodeRef(episodeID, g.cfg.Format)
	episodePath, err := g.store.EnsureDir(episodeRef)
	if err != nil {
		return "", 0, podcast.WrapError(podcast.ErrInternal, err)
	}
	durationMS, err := g.stitcher.Concat(ctx, paths, episodePath, g.cfg.InterSegmentGapMS)
	if err != nil {
		return "", 0, podcast.WrapError(podcast.ErrInternal, err)
	}
	return episodeRef, durationMS, nil
}

// estimateSpokenMS sizes silence placeholders from a 150 wpm speaking rate.
func estimateSpokenMS(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	return words * 60 * 1000 / 150
}

func emotionInstructions(e podcast.Emotion) string {
	if e == "" || e == podcast.EmotionNeutral {
		return ""
	}
	return fmt.Sprintf("Speak in a %s tone.", e)
}
