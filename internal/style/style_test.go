package style

import (
	"reflect"
	"strings"
	"testing"

	"github.com/jackzampolin/papercast/internal/podcast"
)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	return c
}

func TestLoadCatalog(t *testing.T) {
	c := mustCatalog(t)

	want := []string{
		"classroom", "debate_format", "investigative", "journal_club",
		"layperson", "news_flash", "npr_calm", "tech_energetic", "tech_interview",
	}
	var got []string
	for _, s := range c.List() {
		got = append(got, s.ID)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("catalog styles = %v, want %v", got, want)
	}

	t.Run("debate agreement rate", func(t *testing.T) {
		s, err := c.Get("debate_format")
		if err != nil {
			t.Fatal(err)
		}
		if s.Flow.AgreementRate != 0.15 {
			t.Errorf("agreement_rate = %v, want 0.15", s.Flow.AgreementRate)
		}
		if s.Flow.OppositionRate() != 0.85 {
			t.Errorf("opposition rate = %v, want 0.85", s.Flow.OppositionRate())
		}
	})

	t.Run("unknown style is bad input", func(t *testing.T) {
		_, err := c.Get("freeform_jazz")
		if podcast.KindOf(err) != podcast.ErrBadInput {
			t.Errorf("expected bad_input, got %v", err)
		}
	})

	t.Run("patterns cover all sections", func(t *testing.T) {
		s, _ := c.Get("npr_calm")
		sections := map[string]bool{}
		for _, p := range s.StylePatterns() {
			sections[p.Section] = true
			if p.StyleID != "npr_calm" {
				t.Errorf("pattern carries wrong style id %q", p.StyleID)
			}
		}
		for _, want := range []string{"opening", "transition", "closing", "reaction"} {
			if !sections[want] {
				t.Errorf("missing %s patterns", want)
			}
		}
	})
}

func TestClassify(t *testing.T) {
	typeCases := []struct {
		text string
		want ContentType
	}{
		{"This is a stunning breakthrough, truly unprecedented.", ContentExciting},
		{"The algorithm uses gradient descent over the training dataset.", ContentTechnical},
		{"Critics disagree and call the claim questionable.", ContentControversial},
		{"However, there is a caveat and a trade-off.", ContentComplex},
		{"The sky was blue that morning.", ContentGeneral},
	}
	for _, tc := range typeCases {
		if got := ClassifyType(tc.text); got != tc.want {
			t.Errorf("ClassifyType(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}

	emotionCases := []struct {
		text string
		want ContentEmotion
	}{
		{"Results improve and outperform the baseline.", EmotionPositive},
		{"The approach fails under bias and error.", EmotionNegative},
		{"The paper has twelve pages.", EmotionNeutralC},
	}
	for _, tc := range emotionCases {
		if got := ClassifyEmotion(tc.text); got != tc.want {
			t.Errorf("ClassifyEmotion(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestEngine_ArrangeSegment(t *testing.T) {
	engine := NewEngine(mustCatalog(t), nil, EngineConfig{})

	t.Run("question goes to the questioner", func(t *testing.T) {
		lines := []podcast.ScriptLine{
			{Speaker: podcast.SpeakerHost2, Text: "What does attention even mean here?", Emotion: podcast.EmotionNeutral},
		}
		out, err := engine.ArrangeSegment(lines, "npr_calm")
		if err != nil {
			t.Fatalf("ArrangeSegment() error = %v", err)
		}
		if out[0].Speaker != podcast.SpeakerHost1 {
			t.Errorf("question assigned to %s, want host1", out[0].Speaker)
		}
		if !out[0].Arranged {
			t.Error("arranged mark not set")
		}
	})

	t.Run("critical line goes to the critical host", func(t *testing.T) {
		lines := []podcast.ScriptLine{
			{Speaker: podcast.SpeakerHost1, Text: "However, the evaluation has a serious limitation.", Emotion: podcast.EmotionNeutral},
		}
		out, err := engine.ArrangeSegment(lines, "debate_format")
		if err != nil {
			t.Fatal(err)
		}
		if out[0].Speaker != podcast.SpeakerHost2 {
			t.Errorf("critical line assigned to %s, want host2", out[0].Speaker)
		}
	})

	t.Run("narrator lines keep the narrator", func(t *testing.T) {
		lines := []podcast.ScriptLine{
			{Speaker: podcast.SpeakerNarrator, Text: "Previously, on the show.", Emotion: podcast.EmotionNeutral},
		}
		out, err := engine.ArrangeSegment(lines, "investigative")
		if err != nil {
			t.Fatal(err)
		}
		if out[0].Speaker != podcast.SpeakerNarrator {
			t.Errorf("narrator reassigned to %s", out[0].Speaker)
		}
	})

	t.Run("long line splits with a transition", func(t *testing.T) {
		long := strings.TrimSpace(strings.Repeat("alpha ", 34)) + " beta. " +
			strings.TrimSpace(strings.Repeat("gamma ", 34)) + " delta."
		lines := []podcast.ScriptLine{
			{Speaker: podcast.SpeakerHost1, Text: long, Emotion: podcast.EmotionNeutral},
		}
		out, err := engine.ArrangeSegment(lines, "npr_calm")
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 3 {
			t.Fatalf("expected split into 3 lines, got %d", len(out))
		}
		if out[0].Speaker == out[2].Speaker {
			t.Error("split halves assigned to the same host")
		}
		if out[1].Speaker != out[2].Speaker {
			t.Error("transition should belong to the second host")
		}
		if !out[1].IsVerified {
			t.Error("transition lines make no claims and must count verified")
		}
	})

	t.Run("arrangement is idempotent", func(t *testing.T) {
		lines := []podcast.ScriptLine{
			{Speaker: podcast.SpeakerHost1, Text: "Why does the model scale so well?", Emotion: podcast.EmotionNeutral},
			{Speaker: podcast.SpeakerHost2, Text: "Because attention replaces recurrence entirely.", Emotion: podcast.EmotionNeutral},
		}
		once, err := engine.ArrangeSegment(lines, "npr_calm")
		if err != nil {
			t.Fatal(err)
		}
		twice, err := engine.ArrangeSegment(once, "npr_calm")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("second arrangement changed lines:\nonce:  %+v\ntwice: %+v", once, twice)
		}
	})

	t.Run("unknown style rejected", func(t *testing.T) {
		_, err := engine.ArrangeSegment(nil, "freeform_jazz")
		if podcast.KindOf(err) != podcast.ErrBadInput {
			t.Errorf("expected bad_input, got %v", err)
		}
	})
}

func TestEnhanceText(t *testing.T) {
	c := mustCatalog(t)
	s, _ := c.Get("npr_calm")

	t.Run("abbreviations expand", func(t *testing.T) {
		out := enhanceText("Transformers, e.g. BERT, dominate.", s, 20)
		if !strings.Contains(out, "for example") || strings.Contains(out, "e.g.") {
			t.Errorf("abbreviation not expanded: %q", out)
		}
	})

	t.Run("long lines get a breathing pause", func(t *testing.T) {
		long := strings.TrimSpace(strings.Repeat("word ", 25))
		out := enhanceText(long, s, 20)
		if !strings.Contains(out, "...") {
			t.Errorf("expected breathing pause in %q", out)
		}
	})

	t.Run("pause not doubled", func(t *testing.T) {
		long := strings.TrimSpace(strings.Repeat("word ", 25))
		once := enhanceText(long, s, 20)
		twice := insertBreathingPause(once)
		if strings.Count(twice, "...") != strings.Count(once, "...") {
			t.Errorf("pause inserted twice: %q", twice)
		}
	})
}

func TestStructural(t *testing.T) {
	c := mustCatalog(t)
	s, _ := c.Get("npr_calm")

	t.Run("topic substitution", func(t *testing.T) {
		lines := StructuralLines(s, podcast.SegmentIntro, "attention mechanisms")
		if len(lines) == 0 {
			t.Fatal("no intro lines")
		}
		if !strings.Contains(lines[0].Text, "attention mechanisms") {
			t.Errorf("topic not substituted: %q", lines[0].Text)
		}
		for i, l := range lines {
			if !l.IsVerified || !l.Arranged {
				t.Errorf("line %d should be verified and arranged", i)
			}
		}
	})

	t.Run("structural draft bypasses fact-checking", func(t *testing.T) {
		plan := podcast.SegmentPlan{Index: 0, Type: podcast.SegmentIntro, Title: "Intro", DurationTargetS: 30}
		draft := StructuralDraft(s, plan, "the paper")
		if draft.FactcheckScore != 1.0 || !draft.VerificationPassed || !draft.Structural || !draft.IsComplete {
			t.Errorf("unexpected structural draft flags: %+v", draft)
		}
	})

	t.Run("ensure structural inserts intro, ad break, outro", func(t *testing.T) {
		o := &podcast.Outline{
			EpisodeTitle: "Ep",
			Segments: []podcast.SegmentPlan{
				{Type: podcast.SegmentCore, Title: "A", DurationTargetS: 120, KeyPoints: []string{"x"}},
				{Type: podcast.SegmentCore, Title: "B", DurationTargetS: 120, KeyPoints: []string{"x"}},
				{Type: podcast.SegmentCore, Title: "C", DurationTargetS: 120, KeyPoints: []string{"x"}},
				{Type: podcast.SegmentTakeaways, Title: "D", DurationTargetS: 120, KeyPoints: []string{"x"}},
			},
		}
		EnsureStructural(o)

		if o.Segments[0].Type != podcast.SegmentIntro {
			t.Errorf("first segment is %s, want intro", o.Segments[0].Type)
		}
		if o.Segments[len(o.Segments)-1].Type != podcast.SegmentOutro {
			t.Errorf("last segment is %s, want outro", o.Segments[len(o.Segments)-1].Type)
		}
		adCount := 0
		for i, seg := range o.Segments {
			if seg.Index != i {
				t.Errorf("segment %d has index %d", i, seg.Index)
			}
			if seg.Type == podcast.SegmentAdBreak {
				adCount++
			}
		}
		if adCount != 1 {
			t.Errorf("expected one ad break, got %d", adCount)
		}

		// Idempotent: running again adds nothing.
		before := len(o.Segments)
		EnsureStructural(o)
		if len(o.Segments) != before {
			t.Errorf("EnsureStructural grew the outline on re-run: %d -> %d", before, len(o.Segments))
		}
	})

	t.Run("small episodes get no ad break", func(t *testing.T) {
		o := &podcast.Outline{
			EpisodeTitle: "Ep",
			Segments: []podcast.SegmentPlan{
				{Type: podcast.SegmentIntro, Title: "In", DurationTargetS: 30},
				{Type: podcast.SegmentCore, Title: "A", DurationTargetS: 120, KeyPoints: []string{"x"}},
				{Type: podcast.SegmentCore, Title: "B", DurationTargetS: 120, KeyPoints: []string{"x"}},
				{Type: podcast.SegmentOutro, Title: "Out", DurationTargetS: 30},
			},
		}
		EnsureStructural(o)
		for _, seg := range o.Segments {
			if seg.Type == podcast.SegmentAdBreak {
				t.Error("ad break inserted for a short episode")
			}
		}
	})
}
