package style

import (
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// EngineConfig holds arrangement tuning.
type EngineConfig struct {
	LongSplitWords int // split host lines longer than this (60)
	BreathWords    int // insert a breathing pause above this (20)
}

// Engine arranges drafted dialogue for a style: it assigns speakers,
// splits overlong lines, and applies speech enhancements. Arrangement is
// idempotent; lines already carrying the arranged mark pass through
// untouched.
type Engine struct {
	catalog *Catalog
	logger  *slog.Logger
	cfg     EngineConfig
}

// NewEngine creates a style engine over the catalog.
func NewEngine(catalog *Catalog, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.LongSplitWords <= 0 {
		cfg.LongSplitWords = 60
	}
	if cfg.BreathWords <= 0 {
		cfg.BreathWords = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{catalog: catalog, logger: logger, cfg: cfg}
}

// Catalog returns the engine's style catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// ArrangeSegment assigns speakers and enhances delivery for one segment's
// lines. Meaning is preserved; only speaker, emotion, and surface text
// change.
func (e *Engine) ArrangeSegment(lines []podcast.ScriptLine, styleID string) ([]podcast.ScriptLine, error) {
	s, err := e.catalog.Get(styleID)
	if err != nil {
		return nil, err
	}

	out := make([]podcast.ScriptLine, 0, len(lines)+2)
	last := podcast.SpeakerHost2 // so the first alternation lands on host1
	for _, line := range lines {
		if line.Arranged {
			out = append(out, line)
			if line.Speaker != podcast.SpeakerNarrator {
				last = line.Speaker
			}
			continue
		}
		if line.Speaker == podcast.SpeakerNarrator {
			line.Text = enhanceText(line.Text, s, e.cfg.BreathWords)
			line.Arranged = true
			out = append(out, line)
			continue
		}

		speaker := e.pickSpeaker(s, line.Text, last)

		if wordCount(line.Text) > e.cfg.LongSplitWords {
			first, second, split := splitAtSentence(line.Text)
			if split {
				other := otherHost(speaker)
				out = append(out,
					arrangedLine(line, speaker, enhanceText(first, s, e.cfg.BreathWords)),
					transitionLine(s, other, line.Text),
					arrangedLine(line, other, enhanceText(second, s, e.cfg.BreathWords)),
				)
				last = other
				continue
			}
		}

		line = arrangedLine(line, speaker, enhanceText(line.Text, s, e.cfg.BreathWords))
		out = append(out, line)
		last = speaker
	}
	return out, nil
}

// pickSpeaker applies the content-driven overrides, falling back to
// alternation.
func (e *Engine) pickSpeaker(s *Style, text string, last podcast.Speaker) podcast.Speaker {
	switch {
	case isQuestion(text):
		return s.HostFor(RoleQuestioner)
	case isCritical(text):
		return s.HostFor(RoleCritical)
	case isExplanation(text):
		return s.HostFor(RoleExplainer)
	default:
		return otherHost(last)
	}
}

func arrangedLine(base podcast.ScriptLine, speaker podcast.Speaker, text string) podcast.ScriptLine {
	base.Speaker = speaker
	base.Text = text
	base.Arranged = true
	if base.Emotion == podcast.EmotionNeutral || base.Emotion == "" {
		switch ClassifyEmotion(text) {
		case EmotionPositive:
			base.Emotion = podcast.EmotionExcited
		case EmotionNegative:
			base.Emotion = podcast.EmotionSkeptical
		default:
			base.Emotion = podcast.EmotionNeutral
		}
	}
	return base
}

// transitionLine builds the handoff inserted between the halves of a split
// line. It makes no factual claim and is counted as verified.
func transitionLine(s *Style, speaker podcast.Speaker, seed string) podcast.ScriptLine {
	text := "Go on."
	if n := len(s.Templates.Transition); n > 0 {
		text = s.Templates.Transition[int(hashText(seed)%uint32(n))]
	}
	return podcast.ScriptLine{
		Speaker:    speaker,
		Text:       text,
		Emotion:    podcast.EmotionNeutral,
		IsVerified: true,
		Arranged:   true,
	}
}

// splitAtSentence splits text at the sentence boundary nearest its word
// midpoint. Returns split=false when there is only one sentence.
func splitAtSentence(text string) (first, second string, split bool) {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return text, "", false
	}

	total := wordCount(text)
	acc := 0
	cut := 0
	for i, sent := range sentences {
		acc += wordCount(sent)
		if acc*2 >= total {
			cut = i + 1
			break
		}
	}
	if cut == 0 || cut >= len(sentences) {
		cut = len(sentences) - 1
	}
	first = strings.TrimSpace(strings.Join(sentences[:cut], " "))
	second = strings.TrimSpace(strings.Join(sentences[cut:], " "))
	if first == "" || second == "" {
		return text, "", false
	}
	return first, second, true
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			// Sentence ends at punctuation followed by a space.
			if i+1 < len(text) && text[i+1] == ' ' {
				out = append(out, strings.TrimSpace(text[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func otherHost(sp podcast.Speaker) podcast.Speaker {
	if sp == podcast.SpeakerHost1 {
		return podcast.SpeakerHost2
	}
	return podcast.SpeakerHost1
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func hashText(text string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	return h.Sum32()
}
