// Package reasoner wraps a chat provider behind episode planning, drafting,
// fact-checking, and rewriting operations. Every call goes through the
// budget governor and returns typed contracts parsed by the contract codec.
package reasoner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/contract"
	"github.com/jackzampolin/papercast/internal/podcast"
	"github.com/jackzampolin/papercast/internal/providers"
)

// Config holds reasoner call tuning.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	CallTimeout time.Duration // per-call deadline (60s)
	RateLimit   int           // requests per minute
}

// Gateway issues structured reasoning calls. Each operation makes at most
// two model calls: the original request and, when the response fails
// contract validation, a single repair re-prompt.
type Gateway struct {
	reasoner providers.Reasoner
	codec    *contract.Codec
	governor *budget.Governor
	limiter  *providers.RateLimiter
	logger   *slog.Logger
	cfg      Config
}

// NewGateway creates a reasoner gateway.
func NewGateway(reasoner providers.Reasoner, governor *budget.Governor, logger *slog.Logger, cfg Config) *Gateway {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 150
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		reasoner: reasoner,
		codec:    contract.NewCodec(),
		governor: governor,
		limiter:  providers.NewRateLimiter(cfg.RateLimit),
		logger:   logger,
		cfg:      cfg,
	}
}

// GenerateOutline plans the episode from paper excerpts.
func (g *Gateway) GenerateOutline(ctx context.Context, jobID string, paper *podcast.Paper, chunks []podcast.Chunk, styleBrief string, targetDurationS float64) (*podcast.Outline, error) {
	user := BuildOutlineUserPrompt(paper, chunks, styleBrief, targetDurationS)

	var out *podcast.Outline
	err := g.call(ctx, jobID, "planning", "outline", contract.KindOutline, outlineSystemPrompt, user,
		func(content string) error {
			oc, err := g.codec.DecodeOutline(content)
			if err != nil {
				return err
			}
			outline, err := oc.ToOutline(targetDurationS)
			if err != nil {
				return malformed(contract.KindOutline, err)
			}
			out = outline
			return nil
		})
	return out, err
}

// GenerateDraft writes dialogue lines for one planned segment.
func (g *Gateway) GenerateDraft(ctx context.Context, jobID string, plan podcast.SegmentPlan, chunks []podcast.Chunk, patterns []podcast.StylePattern, styleBrief string) ([]podcast.ScriptLine, error) {
	user := BuildDraftUserPrompt(plan, chunks, patterns, styleBrief)
	itemKey := fmt.Sprintf("segment_%d", plan.Index)

	var lines []podcast.ScriptLine
	err := g.call(ctx, jobID, "drafting", itemKey, contract.KindSegment, draftSystemPrompt, user,
		func(content string) error {
			sc, err := g.codec.DecodeSegment(content)
			if err != nil {
				return err
			}
			parsed, err := sc.ToLines()
			if err != nil {
				return malformed(contract.KindSegment, err)
			}
			lines = parsed
			return nil
		})
	return lines, err
}

// FactCheck verifies a drafted segment against the source excerpts.
func (g *Gateway) FactCheck(ctx context.Context, jobID string, segmentIndex int, lines []podcast.ScriptLine, chunks []podcast.Chunk) (*contract.FactcheckContract, error) {
	user := BuildFactcheckUserPrompt(lines, chunks)
	itemKey := fmt.Sprintf("segment_%d", segmentIndex)

	var fc *contract.FactcheckContract
	err := g.call(ctx, jobID, "fact_checking", itemKey, contract.KindFactcheck, factcheckSystemPrompt, user,
		func(content string) error {
			parsed, err := g.codec.DecodeFactcheck(content, len(lines))
			if err != nil {
				return err
			}
			fc = parsed
			return nil
		})
	return fc, err
}

// Rewrite replaces only the lines the fact-checker flagged. Lines without a
// failing verdict are returned unchanged. Replaced lines drop any verified
// mark so the next fact-check pass re-judges them.
func (g *Gateway) Rewrite(ctx context.Context, jobID string, segmentIndex int, lines []podcast.ScriptLine, verdict *contract.FactcheckContract, chunks []podcast.Chunk) ([]podcast.ScriptLine, error) {
	flagged := flaggedFromVerdict(verdict)
	if len(flagged) == 0 {
		return lines, nil
	}

	user := BuildRewriteUserPrompt(lines, flagged, chunks)
	itemKey := fmt.Sprintf("segment_%d", segmentIndex)

	allowed := make(map[int]bool, len(flagged))
	for _, f := range flagged {
		allowed[f.Index] = true
	}

	var rc *contract.RewriteContract
	err := g.call(ctx, jobID, "rewriting", itemKey, contract.KindRewrite, rewriteSystemPrompt, user,
		func(content string) error {
			parsed, err := g.codec.DecodeRewrite(content, len(lines))
			if err != nil {
				return err
			}
			for _, l := range parsed.Lines {
				if !allowed[l.LineIndex] {
					return malformed(contract.KindRewrite,
						fmt.Errorf("rewrite touched unflagged line %d", l.LineIndex))
				}
			}
			rc = parsed
			return nil
		})
	if err != nil {
		return nil, err
	}

	out := make([]podcast.ScriptLine, len(lines))
	copy(out, lines)
	for _, l := range rc.Lines {
		line := out[l.LineIndex]
		line.Text = l.Text
		if l.Emotion != "" {
			line.Emotion = podcast.Emotion(l.Emotion)
		}
		if len(l.Citations) > 0 {
			cits := make([]podcast.Citation, 0, len(l.Citations))
			for _, c := range l.Citations {
				if c != "" {
					cits = append(cits, podcast.Citation{ChunkID: c})
				}
			}
			line.Citations = cits
		}
		line.IsVerified = false
		line.NeedsRewrite = false
		out[l.LineIndex] = line
	}
	return out, nil
}

// call runs one contract-bound chat exchange: budget precall, rate limit,
// chat, usage recording, decode. A response that fails decoding earns one
// repair re-prompt carrying the schema, the bad output, and the issue.
func (g *Gateway) call(ctx context.Context, jobID, stage, itemKey string, kind contract.Kind, system, user string, decode func(content string) error) error {
	schema := contract.SchemaFor(kind)
	messages := []providers.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	content, err := g.chatOnce(ctx, jobID, stage, itemKey, schema, messages)
	if err != nil {
		return err
	}

	decodeErr := decode(content)
	if decodeErr == nil {
		return nil
	}
	if podcast.KindOf(decodeErr) != podcast.ErrContract {
		return decodeErr
	}

	g.logger.Warn("contract decode failed, re-prompting once",
		"job_id", jobID, "stage", stage, "item", itemKey, "error", decodeErr)

	messages = append(messages,
		providers.Message{Role: "assistant", Content: content},
		providers.Message{Role: "user", Content: contract.RepairPrompt(schema, content, decodeErr)},
	)
	content, err = g.chatOnce(ctx, jobID, stage, itemKey+"_repair", schema, messages)
	if err != nil {
		return err
	}
	return decode(content)
}

func (g *Gateway) chatOnce(ctx context.Context, jobID, stage, itemKey string, schema []byte, messages []providers.Message) (string, error) {
	var estTokens int64
	for _, m := range messages {
		estTokens += int64(len(m.Content) / 4)
	}
	estTokens += int64(g.cfg.MaxTokens)

	if err := g.governor.CheckPrecall(jobID, budget.OpReasoning, estTokens, 0); err != nil {
		return "", err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", podcast.WrapError(podcast.ErrCancelled, err)
	}

	result, chatErr := g.reasoner.Chat(ctx, &providers.ChatRequest{
		Messages:    messages,
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		Timeout:     g.cfg.CallTimeout,
		ResponseFormat: &providers.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: schema,
		},
	})

	usage := budget.Usage{
		JobID:    jobID,
		Stage:    stage,
		ItemKey:  itemKey,
		Op:       budget.OpReasoning,
		Provider: g.reasoner.Name(),
		Success:  chatErr == nil,
	}
	if result != nil {
		usage.Tokens = int64(result.TotalTokens)
		usage.CostUSD = result.CostUSD
		usage.Model = result.ModelUsed
		if chatErr != nil {
			usage.ErrorType = result.ErrorType
		}
	}
	g.governor.RecordUsage(usage)

	if chatErr != nil {
		if ctx.Err() != nil {
			return "", podcast.WrapError(podcast.ErrCancelled, ctx.Err())
		}
		if result != nil && result.RetryAfter > 0 {
			g.limiter.Record429(result.RetryAfter)
		}
		if providers.IsPermanentError(chatErr) {
			return "", podcast.WrapError(podcast.ErrUpstreamPermanent, chatErr)
		}
		return "", podcast.WrapError(podcast.ErrUpstreamTransient, chatErr)
	}
	return result.Content, nil
}

func flaggedFromVerdict(verdict *contract.FactcheckContract) []flaggedLine {
	if verdict == nil {
		return nil
	}
	var flagged []flaggedLine
	for _, v := range verdict.LineVerdicts {
		if v.Verified {
			continue
		}
		issue := v.Issue
		if issue == "" {
			issue = "claim not supported by the excerpts"
		}
		flagged = append(flagged, flaggedLine{Index: v.LineIndex, Issue: issue})
	}
	return flagged
}

func malformed(kind contract.Kind, err error) error {
	return podcast.WrapError(podcast.ErrContract,
		fmt.Errorf("%w: %s contract: %s", podcast.ErrMalformedContract, kind, err))
}
