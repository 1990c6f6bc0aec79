package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"progresskit/core"
)

// Sentinel values published when a granted title's record is unexpectedly
// missing.
const (
	unknownTitleName = "Unknown Title"
	unknownTitleRank = core.RankF
)

// TitleAwarder re-evaluates title definitions against a user's current
// state and grants newly qualified titles exactly once. The first title a
// user ever receives is auto-equipped; later grants default to unequipped.
type TitleAwarder struct {
	store  Storage
	bus    *EventBus
	eval   *ConditionEvaluator
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewTitleAwarder wires an awarder. A nil evaluator gets the default leaf
// set; a nil logger gets slog.Default.
func NewTitleAwarder(store Storage, bus *EventBus, eval *ConditionEvaluator, logger *slog.Logger) *TitleAwarder {
	if store == nil || bus == nil {
		panic("NewTitleAwarder requires non-nil store and bus")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if eval == nil {
		eval = NewConditionEvaluator(nil, logger)
	}
	return &TitleAwarder{
		store:  store,
		bus:    bus,
		eval:   eval,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CheckUnlocks evaluates every not-yet-owned title definition for the user
// and grants the ones whose unlock conditions hold. Title-unlock evaluation
// is best-effort: a definition whose condition fails to evaluate is logged
// and skipped, never aborting the rest of the batch. Returns the grants
// created during this call.
func (a *TitleAwarder) CheckUnlocks(ctx context.Context, user core.UserID) ([]core.UserTitleGrant, error) {
	titles, err := a.store.ListTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	grants, err := a.store.ListGrants(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}

	owned := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		owned[g.TitleID] = struct{}{}
	}
	ownedCount := len(owned)

	var created []core.UserTitleGrant
	for _, def := range titles {
		if _, has := owned[def.ID]; has {
			continue
		}
		if def.UnlockCondition.IsZero() {
			continue
		}
		unlocked, err := a.eval.Evaluate(ctx, a.store, user, def.UnlockCondition)
		if err != nil {
			a.logger.Warn("title unlock evaluation failed",
				"user", user, "title", def.ID, "error", err)
			continue
		}
		if !unlocked {
			continue
		}
		grant, err := a.award(ctx, user, def, ownedCount == 0, nil)
		if err != nil {
			return created, err
		}
		owned[def.ID] = struct{}{}
		ownedCount++
		created = append(created, grant)
	}
	return created, nil
}

// GrantOption overrides award defaults on the manual grant path.
type GrantOption func(*grantOptions)

type grantOptions struct {
	equipped *bool
}

// WithEquipped forces the equip state of the new grant instead of the
// first-title auto-equip rule.
func WithEquipped(equipped bool) GrantOption {
	return func(o *grantOptions) { o.equipped = &equipped }
}

// Grant awards a title directly, bypassing condition evaluation. Used for
// administrative and manual grants. Granting an already-owned title is a
// no-op that returns the existing grant. A missing title record still
// grants, with sentinel name and rank in the published notification.
func (a *TitleAwarder) Grant(ctx context.Context, user core.UserID, titleID string, opts ...GrantOption) (core.UserTitleGrant, error) {
	var o grantOptions
	for _, opt := range opts {
		opt(&o)
	}

	grants, err := a.store.ListGrants(ctx, user)
	if err != nil {
		return core.UserTitleGrant{}, fmt.Errorf("list grants: %w", err)
	}
	for _, g := range grants {
		if g.TitleID == titleID {
			return g, nil
		}
	}

	def, err := a.store.GetTitle(ctx, titleID)
	if errors.Is(err, core.ErrNotFound) {
		a.logger.Warn("granting title with no definition record", "title", titleID)
		def = core.TitleDefinition{ID: titleID, Name: unknownTitleName, Rank: unknownTitleRank}
	} else if err != nil {
		return core.UserTitleGrant{}, fmt.Errorf("get title: %w", err)
	}

	return a.award(ctx, user, def, len(grants) == 0, o.equipped)
}

// award creates and persists the grant and publishes the unlock
// notification. firstTitle controls the auto-equip default.
func (a *TitleAwarder) award(ctx context.Context, user core.UserID, def core.TitleDefinition, firstTitle bool, equipOverride *bool) (core.UserTitleGrant, error) {
	equipped := firstTitle
	if equipOverride != nil {
		equipped = *equipOverride
	}
	grant := core.UserTitleGrant{
		ID:         a.newID(),
		UserID:     user,
		TitleID:    def.ID,
		AcquiredAt: a.now().UTC(),
		Equipped:   equipped,
	}
	if err := a.store.CreateGrant(ctx, grant); err != nil {
		return core.UserTitleGrant{}, fmt.Errorf("create grant: %w", err)
	}

	name, rank := def.Name, def.Rank
	if name == "" {
		name, rank = unknownTitleName, unknownTitleRank
	}
	a.bus.Publish(ctx, core.NewTitleUnlocked(user, grant.ID, def.ID, name, rank))
	a.logger.Info("title granted",
		"user", user, "title", def.ID, "rank", rank, "equipped", equipped)
	return grant, nil
}
