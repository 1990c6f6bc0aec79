package engine

import (
	"context"
	"log/slog"

	"progresskit/core"
)

// ProgressionService wires storage, event bus, XP calculation, and title
// awarding into a cohesive API. One incoming journal event maps to one
// ProcessEntry call; the caller's session boundary makes it atomic.
type ProgressionService struct {
	store   Storage
	bus     *EventBus
	calc    *XPCalculator
	awarder *TitleAwarder
	logger  *slog.Logger
}

func NewProgressionService(store Storage, bus *EventBus, calc *XPCalculator, awarder *TitleAwarder, logger *slog.Logger) *ProgressionService {
	if store == nil || bus == nil || calc == nil || awarder == nil {
		panic("NewProgressionService requires non-nil store, bus, calculator, and awarder")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressionService{store: store, bus: bus, calc: calc, awarder: awarder, logger: logger}
}

// Subscribe convenience method.
func (s *ProgressionService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *ProgressionService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// ProcessEntry awards XP for a journal entry and then re-evaluates title
// unlocks against the user's new state. Title evaluation is best-effort
// and never fails the XP award; its errors are logged and an empty grant
// list returned.
func (s *ProgressionService) ProcessEntry(ctx context.Context, user core.UserID, entry core.JournalEntry, detected core.DetectedTargets) (XPResult, []core.UserTitleGrant, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return XPResult{}, nil, err
	}
	result, err := s.calc.ProcessEvent(ctx, normalized, entry, detected)
	if err != nil {
		return result, nil, err
	}
	grants, err := s.awarder.CheckUnlocks(ctx, normalized)
	if err != nil {
		s.logger.Warn("title unlock check failed", "user", normalized, "error", err)
		return result, nil, nil
	}
	return result, grants, nil
}

// CheckUnlocks re-evaluates all title definitions for the user.
func (s *ProgressionService) CheckUnlocks(ctx context.Context, user core.UserID) ([]core.UserTitleGrant, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	return s.awarder.CheckUnlocks(ctx, normalized)
}

// GrantTitle awards a title without condition evaluation (admin path).
func (s *ProgressionService) GrantTitle(ctx context.Context, user core.UserID, titleID string, opts ...GrantOption) (core.UserTitleGrant, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserTitleGrant{}, err
	}
	return s.awarder.Grant(ctx, normalized, titleID, opts...)
}

// SetEquipped toggles the equip state of an owned title.
func (s *ProgressionService) SetEquipped(ctx context.Context, user core.UserID, titleID string, equipped bool) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	return s.store.SetEquipped(ctx, normalized, titleID, equipped)
}

// Targets lists a user's themes or skills.
func (s *ProgressionService) Targets(ctx context.Context, user core.UserID, kind core.TargetKind) ([]core.ProgressionTarget, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	return s.store.ListTargets(ctx, normalized, kind)
}

// Grants lists a user's title grants.
func (s *ProgressionService) Grants(ctx context.Context, user core.UserID) ([]core.UserTitleGrant, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	return s.store.ListGrants(ctx, normalized)
}

func (s *ProgressionService) Close() { s.bus.Close() }
