// Package podcast defines the core data model shared across the pipeline:
// papers, outlines, script lines, segment drafts, episodes, and jobs.
package podcast

import (
	"time"
)

// Speaker identifies a voice role in the generated dialogue.
type Speaker string

const (
	SpeakerHost1    Speaker = "host1"
	SpeakerHost2    Speaker = "host2"
	SpeakerNarrator Speaker = "narrator"
)

// Valid reports whether the speaker is one of the declared roles.
func (s Speaker) Valid() bool {
	switch s {
	case SpeakerHost1, SpeakerHost2, SpeakerNarrator:
		return true
	}
	return false
}

// Emotion is a delivery hint attached to a script line.
type Emotion string

const (
	EmotionNeutral    Emotion = "neutral"
	EmotionExcited    Emotion = "excited"
	EmotionCurious    Emotion = "curious"
	EmotionSkeptical  Emotion = "skeptical"
	EmotionThoughtful Emotion = "thoughtful"
	EmotionAmused     Emotion = "amused"
)

// Valid reports whether the emotion belongs to the closed set.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionNeutral, EmotionExcited, EmotionCurious, EmotionSkeptical, EmotionThoughtful, EmotionAmused:
		return true
	}
	return false
}

// SegmentType classifies an outline segment.
type SegmentType string

const (
	SegmentIntro      SegmentType = "intro"
	SegmentCore       SegmentType = "core"
	SegmentDeepDive   SegmentType = "deep_dive"
	SegmentTakeaways  SegmentType = "takeaways"
	SegmentMethods    SegmentType = "methods"
	SegmentResults    SegmentType = "results"
	SegmentAdBreak    SegmentType = "ad_break"
	SegmentOutro      SegmentType = "outro"
	SegmentTransition SegmentType = "transition"
)

// Valid reports whether the segment type belongs to the closed set.
func (t SegmentType) Valid() bool {
	switch t {
	case SegmentIntro, SegmentCore, SegmentDeepDive, SegmentTakeaways,
		SegmentMethods, SegmentResults, SegmentAdBreak, SegmentOutro, SegmentTransition:
		return true
	}
	return false
}

// Structural reports whether segments of this type are inserted by the
// style engine rather than the outline. Structural segments bypass
// fact-checking.
func (t SegmentType) Structural() bool {
	switch t {
	case SegmentIntro, SegmentAdBreak, SegmentOutro, SegmentTransition:
		return true
	}
	return false
}

// Paper is an ingested research paper. Immutable after creation.
type Paper struct {
	PaperID   string    `json:"paper_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SourceRef string    `json:"source_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a windowed slice of a paper body with its embedding.
type Chunk struct {
	ChunkID   string    `json:"chunk_id"`
	PaperID   string    `json:"paper_id"`
	Ordinal   int       `json:"ordinal"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// StylePattern is an indexed example of podcast phrasing for a style section.
type StylePattern struct {
	StyleID   string    `json:"style_id"`
	Section   string    `json:"section"` // opening, transition, reaction, closing
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Citation links a script line back to a source chunk.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	Span    string `json:"span,omitempty"`
}

// ScriptLine is one spoken line of the episode script.
type ScriptLine struct {
	Speaker      Speaker    `json:"speaker"`
	Text         string     `json:"text"`
	Emotion      Emotion    `json:"emotion,omitempty"`
	Citations    []Citation `json:"citations,omitempty"`
	IsVerified   bool       `json:"is_verified"`
	NeedsRewrite bool       `json:"needs_rewrite,omitempty"`

	// Set by the style engine once the line has been arranged for delivery.
	Arranged bool `json:"arranged,omitempty"`

	// Set when per-line synthesis was substituted with a placeholder.
	SynthesisDegraded bool `json:"synthesis_degraded,omitempty"`
}

// SegmentPlan is one planned segment within an outline.
type SegmentPlan struct {
	Index                int         `json:"index"`
	Type                 SegmentType `json:"type"`
	Title                string      `json:"title"`
	Description          string      `json:"description,omitempty"`
	DurationTargetS      float64     `json:"duration_target_s"`
	KeyPoints            []string    `json:"key_points"`
	ConversationStarters []string    `json:"conversation_starters,omitempty"`
}

// Outline is the planned structure of an episode.
type Outline struct {
	EpisodeTitle    string        `json:"episode_title"`
	TargetDurationS float64       `json:"target_duration_s"`
	Segments        []SegmentPlan `json:"segments"`
}

// Outline size bounds enforced by the contract codec.
const (
	MinOutlineSegments = 3
	MaxOutlineSegments = 12
)

// MaxLineChars caps a single spoken line; longer lines fail contract
// validation and trigger the repair re-prompt.
const MaxLineChars = 600

// SegmentDraft is the evolving per-segment artifact: drafted lines, the
// fact-check verdict, rewrite bookkeeping, and the synthesized audio ref.
type SegmentDraft struct {
	Plan               SegmentPlan  `json:"plan"`
	Lines              []ScriptLine `json:"lines"`
	FactcheckScore     float64      `json:"factcheck_score"`
	FactcheckFeedback  string       `json:"factcheck_feedback,omitempty"`
	RewriteCount       int          `json:"rewrite_count"`
	IsComplete         bool         `json:"is_complete"`
	VerificationPassed bool         `json:"verification_passed"`
	DegradedDraft      bool         `json:"degraded_draft,omitempty"`
	DegradedContext    bool         `json:"degraded_context,omitempty"`
	AudioRef           string       `json:"audio_ref,omitempty"`
	DurationMS         int          `json:"duration_ms,omitempty"`
	Structural         bool         `json:"structural,omitempty"`
	Failed             bool         `json:"failed,omitempty"`
}

// VerifiedLineCount returns how many lines passed verification.
func (d *SegmentDraft) VerifiedLineCount() int {
	n := 0
	for _, l := range d.Lines {
		if l.IsVerified {
			n++
		}
	}
	return n
}

// NeedsRewrite reports whether any line in the draft is flagged for rewrite.
func (d *SegmentDraft) NeedsRewrite() bool {
	for _, l := range d.Lines {
		if l.NeedsRewrite {
			return true
		}
	}
	return false
}

// Episode is the final assembled artifact for a completed job.
type Episode struct {
	EpisodeID        string          `json:"episode_id"`
	PaperID          string          `json:"paper_id"`
	JobID            string          `json:"job_id"`
	StyleID          string          `json:"style_id"`
	Outline          Outline         `json:"outline"`
	Segments         []SegmentRecord `json:"segments"`
	AudioRef         string          `json:"audio_ref"`
	VerificationRate float64         `json:"verification_rate"`
	TotalDurationS   float64         `json:"total_duration_s"`
	TotalCostUSD     float64         `json:"total_cost_usd"`
	ProcessingTimeS  float64         `json:"processing_time_s"`
	CreatedAt        time.Time       `json:"created_at"`

	// Quality flags. Surfaced, never hidden.
	VerificationDegraded bool `json:"verification_degraded"`
	SynthesisDegraded    bool `json:"synthesis_degraded"`
}

// SegmentRecord is the immutable per-segment metadata in an episode.
type SegmentRecord struct {
	Index              int         `json:"index"`
	Type               SegmentType `json:"type"`
	Title              string      `json:"title"`
	LineCount          int         `json:"line_count"`
	FactcheckScore     float64     `json:"factcheck_score"`
	RewriteCount       int         `json:"rewrite_count"`
	VerificationPassed bool        `json:"verification_passed"`
	DegradedDraft      bool        `json:"degraded_draft,omitempty"`
	SynthesisDegraded  bool        `json:"synthesis_degraded,omitempty"`
	Structural         bool        `json:"structural,omitempty"`
	AudioRef           string      `json:"audio_ref,omitempty"`
	DurationMS         int         `json:"duration_ms"`
}

// BudgetSnapshot is a point-in-time view of a job's budget limits and usage.
type BudgetSnapshot struct {
	MaxCostUSD       float64       `json:"max_cost_usd"`
	AlertThreshold   float64       `json:"alert_threshold"`
	MaxTokens        int64         `json:"max_tokens_per_paper"`
	MaxProcessing    time.Duration `json:"max_processing_time"`
	CostUSD          float64       `json:"cost_usd"`
	TokensUsed       int64         `json:"tokens_used"`
	SynthCharacters  int64         `json:"synth_characters"`
	Elapsed          time.Duration `json:"elapsed"`
	AlertFired       bool          `json:"alert_fired"`
	ExhaustedReasons []string      `json:"exhausted_reasons,omitempty"`
}
