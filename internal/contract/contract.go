// Package contract defines the structured response types exchanged with
// reasoners and the codec that parses, repairs, and validates them.
package contract

import (
	"fmt"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// Kind identifies one of the structured response contracts.
type Kind string

const (
	KindOutline   Kind = "outline"
	KindSegment   Kind = "segment"
	KindFactcheck Kind = "factcheck"
	KindRewrite   Kind = "rewrite"
)

// OutlineContract is the structured episode plan returned by a reasoner.
type OutlineContract struct {
	EpisodeTitle string            `json:"episode_title"`
	Segments     []SegmentPlanSpec `json:"segments"`
}

// SegmentPlanSpec is one planned segment within an outline contract.
type SegmentPlanSpec struct {
	Type                 string   `json:"type"`
	Title                string   `json:"title"`
	Description          string   `json:"description,omitempty"`
	DurationTargetS      float64  `json:"duration_target_s"`
	KeyPoints            []string `json:"key_points"`
	ConversationStarters []string `json:"conversation_starters,omitempty"`
}

// SegmentContract is the drafted dialogue for one segment.
type SegmentContract struct {
	Lines []LineSpec `json:"lines"`
}

// LineSpec is one spoken line within a segment or rewrite contract.
type LineSpec struct {
	Speaker   string   `json:"speaker"`
	Text      string   `json:"text"`
	Emotion   string   `json:"emotion,omitempty"`
	Citations []string `json:"citations,omitempty"`
}

// FactcheckContract is the verdict on a drafted segment.
type FactcheckContract struct {
	AccuracyScore float64       `json:"accuracy_score"`
	LineVerdicts  []LineVerdict `json:"line_verdicts"`
	Feedback      string        `json:"feedback,omitempty"`
}

// LineVerdict is the fact-check verdict for one line.
type LineVerdict struct {
	LineIndex int    `json:"line_index"`
	Verified  bool   `json:"verified"`
	Issue     string `json:"issue,omitempty"`
}

// RewriteContract carries replacement text for flagged lines only.
// Lines not listed keep their original text.
type RewriteContract struct {
	Lines []RewriteLine `json:"lines"`
}

// RewriteLine is one rewritten line keyed by its original index.
type RewriteLine struct {
	LineIndex int      `json:"line_index"`
	Text      string   `json:"text"`
	Emotion   string   `json:"emotion,omitempty"`
	Citations []string `json:"citations,omitempty"`
}

// ToOutline converts the contract into the domain outline, validating
// segment count bounds and field semantics.
func (c *OutlineContract) ToOutline(targetDurationS float64) (*podcast.Outline, error) {
	if c.EpisodeTitle == "" {
		return nil, fmt.Errorf("outline missing episode_title")
	}
	if len(c.Segments) < podcast.MinOutlineSegments || len(c.Segments) > podcast.MaxOutlineSegments {
		return nil, fmt.Errorf("outline has %d segments, want %d-%d",
			len(c.Segments), podcast.MinOutlineSegments, podcast.MaxOutlineSegments)
	}

	out := &podcast.Outline{
		EpisodeTitle:    c.EpisodeTitle,
		TargetDurationS: targetDurationS,
		Segments:        make([]podcast.SegmentPlan, 0, len(c.Segments)),
	}
	for i, s := range c.Segments {
		st := podcast.SegmentType(s.Type)
		if !st.Valid() {
			return nil, fmt.Errorf("segment %d has unknown type %q", i, s.Type)
		}
		if s.Title == "" {
			return nil, fmt.Errorf("segment %d missing title", i)
		}
		if s.DurationTargetS <= 0 {
			return nil, fmt.Errorf("segment %d has non-positive duration target", i)
		}
		if len(s.KeyPoints) == 0 && !st.Structural() {
			return nil, fmt.Errorf("segment %d missing key_points", i)
		}
		out.Segments = append(out.Segments, podcast.SegmentPlan{
			Index:                i,
			Type:                 st,
			Title:                s.Title,
			Description:          s.Description,
			DurationTargetS:      s.DurationTargetS,
			KeyPoints:            s.KeyPoints,
			ConversationStarters: s.ConversationStarters,
		})
	}
	normalizeDurations(out)
	return out, nil
}

// normalizeDurations rescales segment duration targets so their sum lands
// within 20% of the episode target. Proportions between segments are kept.
func normalizeDurations(out *podcast.Outline) {
	if out.TargetDurationS <= 0 {
		return
	}
	var total float64
	for _, s := range out.Segments {
		total += s.DurationTargetS
	}
	if total <= 0 {
		return
	}
	ratio := total / out.TargetDurationS
	if ratio >= 0.8 && ratio <= 1.2 {
		return
	}
	scale := out.TargetDurationS / total
	for i := range out.Segments {
		out.Segments[i].DurationTargetS *= scale
	}
}

// ToLines converts the contract into domain script lines. Empty emotions
// default to neutral.
func (c *SegmentContract) ToLines() ([]podcast.ScriptLine, error) {
	if len(c.Lines) == 0 {
		return nil, fmt.Errorf("segment contract has no lines")
	}

	lines := make([]podcast.ScriptLine, 0, len(c.Lines))
	for i, l := range c.Lines {
		line, err := toScriptLine(i, l.Speaker, l.Text, l.Emotion, l.Citations)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Validate checks verdict semantics against the drafted line count.
func (c *FactcheckContract) Validate(lineCount int) error {
	if c.AccuracyScore < 0 || c.AccuracyScore > 1 {
		return fmt.Errorf("accuracy_score %.3f out of range [0,1]", c.AccuracyScore)
	}
	for _, v := range c.LineVerdicts {
		if v.LineIndex < 0 || v.LineIndex >= lineCount {
			return fmt.Errorf("line verdict index %d out of range [0,%d)", v.LineIndex, lineCount)
		}
	}
	return nil
}

// Validate checks rewrite semantics against the drafted line count.
func (c *RewriteContract) Validate(lineCount int) error {
	if len(c.Lines) == 0 {
		return fmt.Errorf("rewrite contract has no lines")
	}
	seen := make(map[int]bool, len(c.Lines))
	for _, l := range c.Lines {
		if l.LineIndex < 0 || l.LineIndex >= lineCount {
			return fmt.Errorf("rewrite line index %d out of range [0,%d)", l.LineIndex, lineCount)
		}
		if seen[l.LineIndex] {
			return fmt.Errorf("rewrite line index %d repeated", l.LineIndex)
		}
		seen[l.LineIndex] = true
		if l.Text == "" {
			return fmt.Errorf("rewrite line %d has empty text", l.LineIndex)
		}
		if len(l.Text) > podcast.MaxLineChars {
			return fmt.Errorf("rewrite line %d is %d chars, max %d", l.LineIndex, len(l.Text), podcast.MaxLineChars)
		}
		if l.Emotion != "" && !podcast.Emotion(l.Emotion).Valid() {
			return fmt.Errorf("rewrite line %d has unknown emotion %q", l.LineIndex, l.Emotion)
		}
	}
	return nil
}

func toScriptLine(index int, speaker, text, emotion string, citations []string) (podcast.ScriptLine, error) {
	sp := podcast.Speaker(speaker)
	if !sp.Valid() {
		return podcast.ScriptLine{}, fmt.Errorf("line %d has unknown speaker %q", index, speaker)
	}
	if text == "" {
		return podcast.ScriptLine{}, fmt.Errorf("line %d has empty text", index)
	}
	if len(text) > podcast.MaxLineChars {
		return podcast.ScriptLine{}, fmt.Errorf("line %d is %d chars, max %d", index, len(text), podcast.MaxLineChars)
	}
	em := podcast.Emotion(emotion)
	if emotion == "" {
		em = podcast.EmotionNeutral
	} else if !em.Valid() {
		return podcast.ScriptLine{}, fmt.Errorf("line %d has unknown emotion %q", index, emotion)
	}

	cits := make([]podcast.Citation, 0, len(citations))
	for _, c := range citations {
		if c == "" {
			continue
		}
		cits = append(cits, podcast.Citation{ChunkID: c})
	}

	return podcast.ScriptLine{
		Speaker:   sp,
		Text:      text,
		Emotion:   em,
		Citations: cits,
	}, nil
}
