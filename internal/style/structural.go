package style

import (
	"strings"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// Default durations for inserted structural segments, in seconds.
const (
	introDurationS   = 30
	adBreakDurationS = 15
	outroDurationS   = 30
)

// StructuralLines renders the style's template lines for a structural
// segment type. Lines alternate between the hosts, are pre-arranged, and
// carry a verified mark since they make no factual claims.
func StructuralLines(s *Style, segType podcast.SegmentType, topic string) []podcast.ScriptLine {
	var templates []string
	switch segType {
	case podcast.SegmentIntro:
		templates = s.Templates.Intro
	case podcast.SegmentAdBreak:
		templates = s.Templates.AdBreak
	case podcast.SegmentOutro:
		templates = s.Templates.Outro
	case podcast.SegmentTransition:
		templates = s.Templates.Transition
	default:
		return nil
	}

	speaker := podcast.SpeakerHost1
	lines := make([]podcast.ScriptLine, 0, len(templates))
	for _, tmpl := range templates {
		text := strings.ReplaceAll(tmpl, "{topic}", topic)
		lines = append(lines, podcast.ScriptLine{
			Speaker:    speaker,
			Text:       text,
			Emotion:    podcast.EmotionNeutral,
			IsVerified: true,
			Arranged:   true,
		})
		speaker = otherHost(speaker)
	}
	return lines
}

// StructuralDraft builds a completed draft for a structural segment plan.
// Structural segments bypass fact-checking; their score is fixed at 1.
func StructuralDraft(s *Style, plan podcast.SegmentPlan, topic string) podcast.SegmentDraft {
	return podcast.SegmentDraft{
		Plan:               plan,
		Lines:              StructuralLines(s, plan.Type, topic),
		FactcheckScore:     1.0,
		VerificationPassed: true,
		IsComplete:         true,
		Structural:         true,
	}
}

// EnsureStructural normalizes an outline so it opens with an intro, closes
// with an outro, and carries an ad break after the middle segment when the
// episode has at least four non-structural segments. Indices are
// recomputed dense.
func EnsureStructural(o *podcast.Outline) {
	segments := o.Segments

	if len(segments) == 0 || segments[0].Type != podcast.SegmentIntro {
		segments = append([]podcast.SegmentPlan{{
			Type:            podcast.SegmentIntro,
			Title:           "Intro",
			DurationTargetS: introDurationS,
		}}, segments...)
	}
	if segments[len(segments)-1].Type != podcast.SegmentOutro {
		segments = append(segments, podcast.SegmentPlan{
			Type:            podcast.SegmentOutro,
			Title:           "Outro",
			DurationTargetS: outroDurationS,
		})
	}

	core := 0
	hasAd := false
	for _, seg := range segments {
		if !seg.Type.Structural() {
			core++
		}
		if seg.Type == podcast.SegmentAdBreak {
			hasAd = true
		}
	}
	if core >= 4 && !hasAd {
		mid := len(segments) / 2
		ad := podcast.SegmentPlan{
			Type:            podcast.SegmentAdBreak,
			Title:           "Ad Break",
			DurationTargetS: adBreakDurationS,
		}
		segments = append(segments[:mid], append([]podcast.SegmentPlan{ad}, segments[mid:]...)...)
	}

	for i := range segments {
		segments[i].Index = i
	}
	o.Segments = segments
}
