// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/config"
	"github.com/jackzampolin/papercast/internal/jobstore"
	"github.com/jackzampolin/papercast/internal/orchestrator"
	"github.com/jackzampolin/papercast/internal/style"
	"github.com/jackzampolin/papercast/internal/synth"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store     *jobstore.Store
	Manager   *orchestrator.Manager
	Governor  *budget.Governor
	Styles    *style.Catalog
	Synth     *synth.Gateway
	ConfigMgr *config.Manager
	Logger    *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the job store from context.
func StoreFrom(ctx context.Context) *jobstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// ManagerFrom extracts the job manager from context.
func ManagerFrom(ctx context.Context) *orchestrator.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Manager
	}
	return nil
}

// GovernorFrom extracts the budget governor from context.
func GovernorFrom(ctx context.Context) *budget.Governor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Governor
	}
	return nil
}

// StylesFrom extracts the style catalog from context.
func StylesFrom(ctx context.Context) *style.Catalog {
	if s := ServicesFrom(ctx); s != nil {
		return s.Styles
	}
	return nil
}

// SynthFrom extracts the synthesis gateway from context.
func SynthFrom(ctx context.Context) *synth.Gateway {
	if s := ServicesFrom(ctx); s != nil {
		return s.Synth
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
