package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"progresskit/core"
)

// EffectApplies reports whether a title effect contributes to awards for
// the given target. Only xp_multiplier effects apply; scope "all" matches
// any target, otherwise the scope must equal the target kind and the
// effect target must be "all" or match the name case-insensitively.
func EffectApplies(effect core.TitleEffect, kind core.TargetKind, name string) bool {
	if effect.Type != core.EffectXPMultiplier {
		return false
	}
	if effect.Scope == core.ScopeAll {
		return true
	}
	if string(effect.Scope) != string(kind) {
		return false
	}
	return effect.Target == "all" || strings.EqualFold(effect.Target, name)
}

// MultiplierCalculator folds a user's equipped titles into one combined
// multiplicative bonus per target.
type MultiplierCalculator struct {
	store Storage
	now   func() time.Time
}

func NewMultiplierCalculator(store Storage) *MultiplierCalculator {
	return &MultiplierCalculator{store: store, now: time.Now}
}

// Combined returns the product of all applicable equipped-title
// multipliers, starting at 1.0. The fold is commutative, so grant order
// never matters. Lapsed grants and grants whose title record is missing
// contribute nothing.
func (m *MultiplierCalculator) Combined(ctx context.Context, user core.UserID, kind core.TargetKind, name string) (float64, error) {
	grants, err := m.store.ListEquippedGrants(ctx, user)
	if err != nil {
		return 0, err
	}
	combined := 1.0
	now := m.now()
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		title, err := m.store.GetTitle(ctx, g.TitleID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if EffectApplies(title.Effect, kind, name) {
			combined *= title.Effect.ValueOrDefault()
		}
	}
	return combined, nil
}
