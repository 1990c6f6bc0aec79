// Package progress is the batteries-included entry point: it assembles a
// ProgressionService from a storage adapter, an event bus, a distribution
// strategy, and the condition evaluators, with sensible defaults for each.
package progress

import (
	"context"
	"log/slog"

	"progresskit/adapters/memory"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/realtime"
)

// Option configures the service builder.
type Option func(*builder)

type builder struct {
	storage  engine.Storage
	mode     engine.DispatchMode
	strategy engine.DistributionStrategy
	leaves   *engine.EvaluatorSet
	cfg      engine.XPConfig
	hub      *realtime.Hub
	logger   *slog.Logger
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(b *builder) { b.storage = s } }

// WithStrategy sets the XP distribution strategy.
func WithStrategy(s engine.DistributionStrategy) Option { return func(b *builder) { b.strategy = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(b *builder) { b.mode = m } }

// WithEvaluators swaps the leaf evaluator registry.
func WithEvaluators(set *engine.EvaluatorSet) Option { return func(b *builder) { b.leaves = set } }

// WithXPConfig sets base XP amounts per event source.
func WithXPConfig(cfg engine.XPConfig) Option { return func(b *builder) { b.cfg = cfg } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(b *builder) { b.hub = h } }

// WithLogger sets the structured logger shared by all components.
func WithLogger(l *slog.Logger) Option { return func(b *builder) { b.logger = l } }

// defaultBaseXP is used when no XP configuration is supplied.
const defaultBaseXP = 20

// New builds a configured ProgressionService. If not provided, defaults
// are used:
//   - storage: in-memory
//   - strategy: equal split
//   - evaluators: the built-in leaf registry
//   - dispatch: async
func New(opts ...Option) *engine.ProgressionService {
	b := &builder{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(b)
	}
	if b.storage == nil {
		b.storage = memory.New()
	}
	if b.leaves == nil {
		b.leaves = engine.DefaultEvaluators()
	}
	if b.cfg == nil {
		b.cfg = engine.BaseXPFunc(func(string) float64 { return defaultBaseXP })
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	bus := engine.NewEventBus(b.mode)
	eval := engine.NewConditionEvaluator(b.leaves, b.logger)
	calc := engine.NewXPCalculator(b.storage, bus, b.strategy, b.cfg, b.logger)
	awarder := engine.NewTitleAwarder(b.storage, bus, eval, b.logger)
	svc := engine.NewProgressionService(b.storage, bus, calc, awarder, b.logger)

	if b.hub != nil {
		// Bridge all primary events to realtime
		bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { b.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventTitleUnlocked, func(ctx context.Context, e core.Event) { b.hub.Broadcast(ctx, e) })
	}
	return svc
}
