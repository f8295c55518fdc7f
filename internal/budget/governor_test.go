package budget

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jackzampolin/papercast/internal/podcast"
)

func testLimits() Limits {
	return Limits{
		MaxCostUSD:               1.00,
		AlertThreshold:           0.8,
		MaxTokensPerPaper:        10_000,
		MaxProcessing:            time.Hour,
		ReasoningCostPer1KTokens: 0.01,
		EmbeddingCostPer1KTokens: 0.0001,
		SynthesisCostPer1KChars:  0.015,
	}
}

func TestGovernor_CheckPrecall(t *testing.T) {
	t.Run("allows within budget", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")

		if err := g.CheckPrecall("job-1", OpReasoning, 1000, 0); err != nil {
			t.Errorf("CheckPrecall() error = %v", err)
		}
	})

	t.Run("blocks on token limit", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")
		g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, Tokens: 9_500, Success: true})

		err := g.CheckPrecall("job-1", OpReasoning, 1000, 0)
		if err == nil {
			t.Fatal("expected budget error")
		}
		if podcast.KindOf(err) != podcast.ErrBudgetExceeded {
			t.Errorf("expected budget_exceeded kind, got %s", podcast.KindOf(err))
		}
	})

	t.Run("blocks on cost limit", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")
		g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, CostUSD: 0.99, Success: true})

		// Reasoning call estimated at 5000 tokens = $0.05, would cross $1.00.
		if err := g.CheckPrecall("job-1", OpReasoning, 5000, 0); err == nil {
			t.Error("expected budget error")
		}
	})

	t.Run("blocks on elapsed time", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")

		// Move the clock past the processing limit.
		g.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		if err := g.CheckPrecall("job-1", OpReasoning, 10, 0); err == nil {
			t.Error("expected budget error for elapsed time")
		}
	})
}

func TestGovernor_RecordUsage(t *testing.T) {
	t.Run("totals are monotonic", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")

		g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, Tokens: 100, Success: true})
		g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, Tokens: 200, Success: false, ErrorType: "http_error"})

		snap := g.Snapshot("job-1")
		if snap.TokensUsed != 300 {
			t.Errorf("expected 300 tokens (failed calls still count), got %d", snap.TokensUsed)
		}
	})

	t.Run("derives cost from rates when unset", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")

		g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, Tokens: 2000, Success: true})

		snap := g.Snapshot("job-1")
		want := 2000.0 / 1000.0 * 0.01
		if snap.CostUSD != want {
			t.Errorf("expected cost %v, got %v", want, snap.CostUSD)
		}
	})

	t.Run("synthesis tracked by characters", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")

		g.RecordUsage(Usage{JobID: "job-1", Op: OpSynthesis, Characters: 4000, Success: true})

		snap := g.Snapshot("job-1")
		if snap.SynthCharacters != 4000 {
			t.Errorf("expected 4000 synth chars, got %d", snap.SynthCharacters)
		}
		want := 4000.0 / 1000.0 * 0.015
		if snap.CostUSD != want {
			t.Errorf("expected cost %v, got %v", want, snap.CostUSD)
		}
	})

	t.Run("alert fires once at threshold", func(t *testing.T) {
		g := NewGovernor(testLimits(), slog.Default())
		g.StartJob("job-1")

		g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, CostUSD: 0.85, Success: true})

		snap := g.Snapshot("job-1")
		if !snap.AlertFired {
			t.Error("expected alert fired at 85% of budget")
		}
	})
}

func TestGovernor_Snapshot_ExhaustedReasons(t *testing.T) {
	g := NewGovernor(testLimits(), slog.Default())
	g.StartJob("job-1")
	g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, CostUSD: 1.50, Success: true})

	snap := g.Snapshot("job-1")
	if len(snap.ExhaustedReasons) == 0 {
		t.Fatal("expected exhausted reasons")
	}
	if snap.ExhaustedReasons[0] != "cost" {
		t.Errorf("expected cost exhausted, got %v", snap.ExhaustedReasons)
	}
}

func TestGovernor_Records(t *testing.T) {
	g := NewGovernor(testLimits(), slog.Default())
	g.StartJob("job-1")

	g.RecordUsage(Usage{JobID: "job-1", Stage: "drafting", ItemKey: "segment_0", Op: OpReasoning, Tokens: 50, Success: true})
	g.RecordUsage(Usage{JobID: "job-1", Stage: "fact_checking", ItemKey: "segment_0", Op: OpReasoning, Tokens: 40, Success: true})

	records := g.Records("job-1")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Stage != "drafting" || records[1].Stage != "fact_checking" {
		t.Errorf("records out of order: %+v", records)
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("expected created_at set")
	}
}

func TestGovernor_CloseJob(t *testing.T) {
	g := NewGovernor(testLimits(), slog.Default())
	g.StartJob("job-1")
	g.RecordUsage(Usage{JobID: "job-1", Op: OpReasoning, Tokens: 100, Success: true})
	g.CloseJob("job-1")

	// A fresh ledger is created on next access.
	snap := g.Snapshot("job-1")
	if snap.TokensUsed != 0 {
		t.Errorf("expected fresh ledger after close, got %d tokens", snap.TokensUsed)
	}
}
