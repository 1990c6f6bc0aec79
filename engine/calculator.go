package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"progresskit/core"
)

// XPResult is the outcome of processing one journal event.
type XPResult struct {
	TotalXP float64
	Awards  []core.XPAward
}

// XPCalculator turns one journal event into per-target XP awards: a
// distribution strategy partitions the configured base XP, each partition
// is scaled by the user's equipped-title multipliers, and the funded
// targets are persisted and announced.
type XPCalculator struct {
	store    Storage
	bus      *EventBus
	strategy DistributionStrategy
	mult     *MultiplierCalculator
	cfg      XPConfig
	logger   *slog.Logger
}

// NewXPCalculator wires a calculator. A nil strategy defaults to the equal
// split; a nil logger gets slog.Default.
func NewXPCalculator(store Storage, bus *EventBus, strategy DistributionStrategy, cfg XPConfig, logger *slog.Logger) *XPCalculator {
	if store == nil || bus == nil || cfg == nil {
		panic("NewXPCalculator requires non-nil store, bus, and config")
	}
	if strategy == nil {
		strategy = EqualSplit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &XPCalculator{
		store:    store,
		bus:      bus,
		strategy: strategy,
		mult:     NewMultiplierCalculator(store),
		cfg:      cfg,
		logger:   logger,
	}
}

// ProcessEvent distributes the configured base XP for a journal entry
// across its detected targets, applies combined title multipliers, persists
// the accumulated XP, and publishes one xp.awarded notification per
// resolved target (zero amounts included). Strategy output keys that do not
// resolve to a stored theme or skill are dropped rather than surfaced; a
// misbehaving strategy must not corrupt state.
func (c *XPCalculator) ProcessEvent(ctx context.Context, user core.UserID, entry core.JournalEntry, detected core.DetectedTargets) (XPResult, error) {
	baseXP := c.cfg.BaseXP(core.SourceJournal)
	shares := c.strategy.Distribute(entry, detected, baseXP)
	if len(shares) == 0 {
		return XPResult{}, nil
	}

	var result XPResult
	for key, share := range shares {
		kind, id, ok := core.ParseTargetKey(key)
		if !ok {
			c.logger.Debug("dropping unresolvable distribution key", "key", key)
			continue
		}
		target, err := c.store.GetTargetByID(ctx, user, kind, id)
		if errors.Is(err, core.ErrNotFound) {
			c.logger.Debug("dropping distribution for unknown target",
				"kind", kind, "id", id)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("resolve target %s: %w", key, err)
		}

		multiplier, err := c.mult.Combined(ctx, user, kind, target.Name)
		if err != nil {
			return result, fmt.Errorf("combined multiplier for %s: %w", key, err)
		}
		amount := share * multiplier

		updated, err := c.store.AddXP(ctx, user, kind, id, amount, core.SourceJournal)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return result, fmt.Errorf("add xp to %s: %w", key, err)
		}

		c.bus.Publish(ctx, core.NewXPAwarded(user, amount, core.SourceJournal, kind, id))
		result.TotalXP += amount
		result.Awards = append(result.Awards, core.XPAward{
			Kind:     kind,
			TargetID: id,
			Name:     updated.Name,
			Amount:   amount,
		})
	}
	return result, nil
}
