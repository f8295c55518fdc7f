package reasoner

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// outlineSystemPrompt instructs the model to plan an episode from paper
// excerpts. The response must match the outline contract schema.
const outlineSystemPrompt = `You are a podcast episode planner. You will be given excerpts from a research paper and a show style brief, and you must plan a complete episode as a structured outline.

**YOUR TASK**: Produce an episode outline with 3-12 segments.

For each segment provide:
- type: one of "intro", "core", "deep_dive", "takeaways", "methods", "results", "ad_break", "outro", "transition"
- title: short segment title
- description: one or two sentences on what the segment covers
- duration_target_s: target duration in seconds (segment durations should sum close to the episode target)
- key_points: the specific claims from the paper this segment must cover (required for non-structural segments)
- conversation_starters: optional hooks the hosts can riff on

**KEY PRINCIPLES**:

1. Open with an "intro" segment and close with an "outro" segment.
2. Ground every key point in the provided excerpts. Do not invent findings.
3. Order segments so the episode builds: motivation, methods, results, takeaways.
4. Keep segment duration targets realistic for spoken dialogue (60-300 seconds each).

Respond with JSON only.`

// draftSystemPrompt instructs the model to write one segment of dialogue.
const draftSystemPrompt = `You are a podcast script writer. You will be given one planned segment, excerpts from the source paper, and examples of the show's voice. Write the segment as alternating dialogue.

**YOUR TASK**: Write the dialogue lines for this one segment.

For each line provide:
- speaker: "host1", "host2", or "narrator"
- text: the spoken line (keep each line under 600 characters)
- emotion: one of "neutral", "excited", "curious", "skeptical", "thoughtful", "amused"
- citations: the chunk ids (from the excerpts) that support any factual claim in the line

**KEY PRINCIPLES**:

1. Every factual claim must cite at least one chunk id from the excerpts.
2. Match the tone of the style examples. Do not copy them verbatim.
3. Cover every key point from the segment plan.
4. Banter and reactions need no citations; claims about the paper do.
5. Target the segment's duration: roughly 150 spoken words per minute.

Respond with JSON only.`

// factcheckSystemPrompt instructs the model to verify a drafted segment
// against the source excerpts.
const factcheckSystemPrompt = `You are a fact-checker for a research podcast. You will be given a drafted segment and the source paper excerpts its citations point at. Verify every line.

**YOUR TASK**: Judge each line against the excerpts and score the segment.

Provide:
- accuracy_score: fraction of factual lines fully supported by the excerpts, between 0 and 1
- line_verdicts: one verdict per line that makes a factual claim, with line_index (0-based), verified (true/false), and issue (required when verified is false, naming what is wrong)
- feedback: one or two sentences summarizing the problems, empty if none

**KEY PRINCIPLES**:

1. A line is verified only if the cited excerpts support its claim. A correct claim with a wrong citation is not verified.
2. Greetings, banter, and transitions make no factual claim; skip them in line_verdicts.
3. Numbers, names, and causal claims must match the excerpts exactly.
4. Be strict: when in doubt, mark the line unverified and say why.

Respond with JSON only.`

// rewriteSystemPrompt instructs the model to fix only the flagged lines.
const rewriteSystemPrompt = `You are a podcast script editor. You will be given a drafted segment, fact-check verdicts for lines that failed, and the source excerpts. Rewrite ONLY the flagged lines.

**YOUR TASK**: Return replacement text for each flagged line.

For each flagged line provide:
- line_index: the 0-based index of the line being replaced
- text: the corrected spoken line (keep the speaker's voice and the flow with neighboring lines)
- emotion: one of "neutral", "excited", "curious", "skeptical", "thoughtful", "amused"
- citations: chunk ids from the excerpts that support the corrected claim

**KEY PRINCIPLES**:

1. Include ONLY the flagged line indices. Never return lines that were not flagged.
2. Fix the issue the fact-checker named. If the excerpts cannot support the claim, soften or remove it.
3. Keep each line under 600 characters and natural to speak aloud.

Respond with JSON only.`

// formatChunks renders excerpts with their chunk ids so the model can cite
// them.
func formatChunks(chunks []podcast.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[chunk %s]\n%s\n\n", c.ChunkID, c.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLines(lines []podcast.ScriptLine) string {
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%d. [%s, %s] %s", i, l.Speaker, l.Emotion, l.Text)
		if len(l.Citations) > 0 {
			ids := make([]string, len(l.Citations))
			for j, c := range l.Citations {
				ids[j] = c.ChunkID
			}
			fmt.Fprintf(&b, " (cites: %s)", strings.Join(ids, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildOutlineUserPrompt assembles the outline request.
func BuildOutlineUserPrompt(paper *podcast.Paper, chunks []podcast.Chunk, styleBrief string, targetDurationS float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Paper\nTitle: %s\n\n", paper.Title)
	fmt.Fprintf(&b, "## Target duration\n%.0f seconds\n\n", targetDurationS)
	fmt.Fprintf(&b, "## Show style\n%s\n\n", styleBrief)
	fmt.Fprintf(&b, "## Paper excerpts\n%s\n", formatChunks(chunks))
	return b.String()
}

// BuildDraftUserPrompt assembles the segment drafting request.
func BuildDraftUserPrompt(plan podcast.SegmentPlan, chunks []podcast.Chunk, patterns []podcast.StylePattern, styleBrief string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Segment plan\nType: %s\nTitle: %s\n", plan.Type, plan.Title)
	if plan.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", plan.Description)
	}
	fmt.Fprintf(&b, "Duration target: %.0f seconds\n", plan.DurationTargetS)
	if len(plan.KeyPoints) > 0 {
		b.WriteString("Key points:\n")
		for _, kp := range plan.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
	}
	if len(plan.ConversationStarters) > 0 {
		b.WriteString("Conversation starters:\n")
		for _, cs := range plan.ConversationStarters {
			fmt.Fprintf(&b, "- %s\n", cs)
		}
	}

	fmt.Fprintf(&b, "\n## Show style\n%s\n", styleBrief)
	if len(patterns) > 0 {
		b.WriteString("\n## Voice examples\n")
		for _, p := range patterns {
			fmt.Fprintf(&b, "- %s\n", p.Text)
		}
	}

	fmt.Fprintf(&b, "\n## Paper excerpts\n%s\n", formatChunks(chunks))
	return b.String()
}

// BuildFactcheckUserPrompt assembles the verification request.
func BuildFactcheckUserPrompt(lines []podcast.ScriptLine, chunks []podcast.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Drafted lines\n%s\n\n", formatLines(lines))
	fmt.Fprintf(&b, "## Source excerpts\n%s\n", formatChunks(chunks))
	return b.String()
}

// BuildRewriteUserPrompt assembles the rewrite request. Only flagged
// verdicts are included so the model cannot touch passing lines.
func BuildRewriteUserPrompt(lines []podcast.ScriptLine, verdicts []flaggedLine, chunks []podcast.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Full segment (for context)\n%s\n\n", formatLines(lines))
	b.WriteString("## Flagged lines to rewrite\n")
	for _, v := range verdicts {
		fmt.Fprintf(&b, "- line %d: %s\n", v.Index, v.Issue)
	}
	fmt.Fprintf(&b, "\n## Source excerpts\n%s\n", formatChunks(chunks))
	return b.String()
}

// flaggedLine pairs a failing line index with the fact-checker's issue.
type flaggedLine struct {
	Index int
	Issue string
}
