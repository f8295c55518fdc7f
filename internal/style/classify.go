package style

import "strings"

// ContentType classifies what a line is doing.
type ContentType string

const (
	ContentExciting      ContentType = "exciting"
	ContentTechnical     ContentType = "technical"
	ContentControversial ContentType = "controversial"
	ContentComplex       ContentType = "complex"
	ContentGeneral       ContentType = "general"
)

// ContentEmotion classifies the sentiment of a line.
type ContentEmotion string

const (
	EmotionPositive ContentEmotion = "positive"
	EmotionNegative ContentEmotion = "negative"
	EmotionNeutralC ContentEmotion = "neutral"
)

// Closed keyword lexicons. Classification picks the type with the most
// hits; ties and zero hits fall through to general/neutral.
var contentLexicon = map[ContentType][]string{
	ContentExciting: {
		"breakthrough", "remarkable", "surprising", "stunning", "first time",
		"unprecedented", "dramatic", "game-changing", "exciting", "wild",
	},
	ContentTechnical: {
		"algorithm", "architecture", "parameter", "gradient", "benchmark",
		"dataset", "training", "inference", "throughput", "latency",
		"equation", "matrix", "vector", "protocol",
	},
	ContentControversial: {
		"controversial", "disputed", "critics", "disagree", "debate",
		"questionable", "overclaim", "skeptical", "contradicts", "flawed",
	},
	ContentComplex: {
		"however", "nevertheless", "trade-off", "tradeoff", "nuance",
		"caveat", "depends on", "interaction", "confound", "assumption",
	},
}

var emotionLexicon = map[ContentEmotion][]string{
	EmotionPositive: {
		"improve", "better", "gain", "success", "outperform", "robust",
		"effective", "promising", "elegant", "impressive",
	},
	EmotionNegative: {
		"fail", "worse", "drop", "limitation", "weak", "problem",
		"degrade", "bias", "error", "collapse",
	},
}

// ClassifyType returns the content type of a line by lexicon hit count.
func ClassifyType(text string) ContentType {
	lower := strings.ToLower(text)
	best := ContentGeneral
	bestHits := 0
	// Fixed evaluation order keeps ties deterministic.
	for _, ct := range []ContentType{ContentExciting, ContentTechnical, ContentControversial, ContentComplex} {
		hits := 0
		for _, kw := range contentLexicon[ct] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = ct
			bestHits = hits
		}
	}
	return best
}

// ClassifyEmotion returns the sentiment of a line by lexicon hit count.
func ClassifyEmotion(text string) ContentEmotion {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, kw := range emotionLexicon[EmotionPositive] {
		if strings.Contains(lower, kw) {
			pos++
		}
	}
	for _, kw := range emotionLexicon[EmotionNegative] {
		if strings.Contains(lower, kw) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return EmotionPositive
	case neg > pos:
		return EmotionNegative
	default:
		return EmotionNeutralC
	}
}

// isQuestion reports whether a line reads as a question.
func isQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"what ", "why ", "how ", "when ", "who ", "where ", "does ", "is it ", "can "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// isExplanation reports whether a line reads as a strong explanation.
func isExplanation(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range []string{"because ", "basically ", "in other words", "the reason ", "think of it ", "so what's happening "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return strings.Contains(lower, "this means") || strings.Contains(lower, "which means")
}

// isCritical reports whether a line reads as critical analysis.
func isCritical(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"however", "the problem is", "i'm skeptical", "i am skeptical", "flaw", "limitation", "doesn't hold", "overstates"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
