// Package budget enforces per-job cost, token, and wall-clock limits and
// keeps append-only usage records for attribution.
package budget

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// OpClass classifies a billable upstream operation.
type OpClass string

const (
	OpReasoning OpClass = "reasoning"
	OpEmbedding OpClass = "embedding"
	OpSynthesis OpClass = "synthesis"
)

// Limits holds per-job budget limits and cost rates.
type Limits struct {
	MaxCostUSD        float64
	AlertThreshold    float64 // Fraction of MaxCostUSD that triggers an alert (0.8)
	MaxTokensPerPaper int64
	MaxProcessing     time.Duration

	// Token/char to cost rates per operation class.
	ReasoningCostPer1KTokens float64
	EmbeddingCostPer1KTokens float64
	SynthesisCostPer1KChars  float64
}

// Usage is one append-only usage record, attributed to a job and stage.
type Usage struct {
	JobID   string  `json:"job_id"`
	Stage   string  `json:"stage,omitempty"`
	ItemKey string  `json:"item_key,omitempty"` // e.g., "segment_3", "line_12"
	Op      OpClass `json:"op"`

	// Provider info
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Quantities
	Tokens     int64   `json:"tokens,omitempty"`
	Characters int64   `json:"characters,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`

	// Status
	Success   bool      `json:"success"`
	ErrorType string    `json:"error_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// jobLedger tracks running totals for one job.
type jobLedger struct {
	startedAt  time.Time
	costUSD    float64
	tokens     int64
	synthChars int64
	alertFired bool
	records    []Usage
}

// Governor enforces budget limits per job. Totals are monotonically
// increasing; failed calls still record the usage they consumed.
type Governor struct {
	mu      sync.Mutex
	limits  Limits
	ledgers map[string]*jobLedger
	logger  *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewGovernor creates a budget governor with the given limits.
func NewGovernor(limits Limits, logger *slog.Logger) *Governor {
	if limits.AlertThreshold <= 0 || limits.AlertThreshold > 1 {
		limits.AlertThreshold = 0.8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{
		limits:  limits,
		ledgers: make(map[string]*jobLedger),
		logger:  logger,
		now:     time.Now,
	}
}

// StartJob opens a ledger for a job. Idempotent.
func (g *Governor) StartJob(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ledgers[jobID]; !ok {
		g.ledgers[jobID] = &jobLedger{startedAt: g.now()}
	}
}

// CheckPrecall verifies the job has budget headroom before an upstream call.
// estTokens and estChars are the caller's estimate of what the call will
// consume. Returns a budget_exceeded error when any limit would be crossed.
func (g *Governor) CheckPrecall(jobID string, op OpClass, estTokens, estChars int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := g.ledger(jobID)

	var reasons []string

	if g.limits.MaxProcessing > 0 && g.now().Sub(l.startedAt) >= g.limits.MaxProcessing {
		reasons = append(reasons, fmt.Sprintf("processing time limit %s reached", g.limits.MaxProcessing))
	}

	if g.limits.MaxTokensPerPaper > 0 && l.tokens+estTokens > g.limits.MaxTokensPerPaper {
		reasons = append(reasons, fmt.Sprintf("token limit %d would be exceeded (used %d, call needs ~%d)",
			g.limits.MaxTokensPerPaper, l.tokens, estTokens))
	}

	if g.limits.MaxCostUSD > 0 {
		estCost := g.estimateCost(op, estTokens, estChars)
		if l.costUSD+estCost > g.limits.MaxCostUSD {
			reasons = append(reasons, fmt.Sprintf("cost limit $%.2f would be exceeded (spent $%.4f, call needs ~$%.4f)",
				g.limits.MaxCostUSD, l.costUSD, estCost))
		}
	}

	if len(reasons) > 0 {
		return podcast.NewError(podcast.ErrBudgetExceeded, "job %s: %s", jobID, strings.Join(reasons, "; "))
	}
	return nil
}

// RecordUsage appends a usage record and advances the job totals. Cost is
// taken from the record when set, otherwise derived from the rates.
func (g *Governor) RecordUsage(u Usage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := g.ledger(u.JobID)

	if u.CreatedAt.IsZero() {
		u.CreatedAt = g.now()
	}
	if u.CostUSD == 0 {
		u.CostUSD = g.estimateCost(u.Op, u.Tokens, u.Characters)
	}

	l.records = append(l.records, u)
	l.costUSD += u.CostUSD
	l.tokens += u.Tokens
	if u.Op == OpSynthesis {
		l.synthChars += u.Characters
	}

	if !l.alertFired && g.limits.MaxCostUSD > 0 &&
		l.costUSD >= g.limits.MaxCostUSD*g.limits.AlertThreshold {
		l.alertFired = true
		g.logger.Warn("job budget alert threshold crossed",
			"job_id", u.JobID,
			"cost_usd", l.costUSD,
			"max_cost_usd", g.limits.MaxCostUSD,
			"threshold", g.limits.AlertThreshold)
	}
}

// Snapshot returns the current budget view for a job.
func (g *Governor) Snapshot(jobID string) podcast.BudgetSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := g.ledger(jobID)

	snap := podcast.BudgetSnapshot{
		MaxCostUSD:      g.limits.MaxCostUSD,
		AlertThreshold:  g.limits.AlertThreshold,
		MaxTokens:       g.limits.MaxTokensPerPaper,
		MaxProcessing:   g.limits.MaxProcessing,
		CostUSD:         l.costUSD,
		TokensUsed:      l.tokens,
		SynthCharacters: l.synthChars,
		Elapsed:         g.now().Sub(l.startedAt),
		AlertFired:      l.alertFired,
	}

	if g.limits.MaxCostUSD > 0 && l.costUSD >= g.limits.MaxCostUSD {
		snap.ExhaustedReasons = append(snap.ExhaustedReasons, "cost")
	}
	if g.limits.MaxTokensPerPaper > 0 && l.tokens >= g.limits.MaxTokensPerPaper {
		snap.ExhaustedReasons = append(snap.ExhaustedReasons, "tokens")
	}
	if g.limits.MaxProcessing > 0 && snap.Elapsed >= g.limits.MaxProcessing {
		snap.ExhaustedReasons = append(snap.ExhaustedReasons, "time")
	}

	return snap
}

// Records returns a copy of the usage records for a job.
func (g *Governor) Records(jobID string) []Usage {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := g.ledger(jobID)
	out := make([]Usage, len(l.records))
	copy(out, l.records)
	return out
}

// CloseJob drops the ledger for a finished job.
func (g *Governor) CloseJob(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ledgers, jobID)
}

// ledger returns the ledger for jobID, creating one if needed.
// Must be called with the lock held.
func (g *Governor) ledger(jobID string) *jobLedger {
	l, ok := g.ledgers[jobID]
	if !ok {
		l = &jobLedger{startedAt: g.now()}
		g.ledgers[jobID] = l
	}
	return l
}

func (g *Governor) estimateCost(op OpClass, tokens, chars int64) float64 {
	switch op {
	case OpReasoning:
		return float64(tokens) / 1000.0 * g.limits.ReasoningCostPer1KTokens
	case OpEmbedding:
		return float64(tokens) / 1000.0 * g.limits.EmbeddingCostPer1KTokens
	case OpSynthesis:
		return float64(chars) / 1000.0 * g.limits.SynthesisCostPer1KChars
	default:
		return 0
	}
}
