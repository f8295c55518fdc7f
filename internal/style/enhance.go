package style

import "strings"

// Abbreviations that trip up TTS engines, expanded to their spoken form.
var abbreviations = map[string]string{
	"e.g.":   "for example",
	"i.e.":   "that is",
	"et al.": "and colleagues",
	"vs.":    "versus",
	"etc.":   "and so on",
	"w.r.t.": "with respect to",
	"Fig.":   "Figure",
	"Eq.":    "Equation",
	"approx.": "approximately",
}

// enhanceText applies the style's speech enhancements: abbreviation
// expansion, an occasional style filler, and a breathing pause for long
// lines. Deterministic for a given input so arrangement stays idempotent.
func enhanceText(text string, s *Style, breathWords int) string {
	out := expandAbbreviations(text)
	out = maybeAddFiller(out, s)
	if wordCount(out) > breathWords {
		out = insertBreathingPause(out)
	}
	return out
}

func expandAbbreviations(text string) string {
	for abbr, spoken := range abbreviations {
		text = strings.ReplaceAll(text, abbr, spoken)
	}
	return text
}

// maybeAddFiller prepends a style filler to a fraction of lines matching
// the style's interruption rate, keyed off the text hash so repeated runs
// agree.
func maybeAddFiller(text string, s *Style) string {
	if len(s.Fillers) == 0 || s.Flow.InterruptionRate <= 0 {
		return text
	}
	h := hashText(text)
	if float64(h%100)/100.0 >= s.Flow.InterruptionRate {
		return text
	}
	filler := s.Fillers[int(h)%len(s.Fillers)]
	if strings.HasPrefix(text, filler) {
		return text
	}
	return filler + " " + text
}

// insertBreathingPause adds an ellipsis at the comma nearest the line's
// word midpoint, or after the midpoint word when there is no comma. Lines
// already containing an ellipsis are left alone.
func insertBreathingPause(text string) string {
	if strings.Contains(text, "...") {
		return text
	}

	words := strings.Fields(text)
	mid := len(words) / 2

	// Prefer a comma near the midpoint.
	bestIdx := -1
	bestDist := len(words)
	for i, w := range words {
		if strings.HasSuffix(w, ",") {
			dist := i - mid
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				bestDist = dist
				bestIdx = i
			}
		}
	}

	if bestIdx >= 0 {
		words[bestIdx] = words[bestIdx] + " ..."
	} else {
		words[mid] = words[mid] + " ..."
	}
	return strings.Join(words, " ")
}
