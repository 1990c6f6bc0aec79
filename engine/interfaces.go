package engine

import (
	"context"

	"progresskit/core"
)

// StateReader is the read-only slice of persistence that condition
// evaluation consults. Storage satisfies it; tests can supply something
// smaller.
type StateReader interface {
	// GetTarget looks up a theme or skill by display name (exact match).
	GetTarget(ctx context.Context, user core.UserID, kind core.TargetKind, name string) (core.ProgressionTarget, error)
	// ListTargets lists all of a user's targets of one kind.
	ListTargets(ctx context.Context, user core.UserID, kind core.TargetKind) ([]core.ProgressionTarget, error)
	// ListEntries lists a user's journal entries with timestamps and content.
	ListEntries(ctx context.Context, user core.UserID) ([]core.JournalEntry, error)
	// CountQuests counts a user's quest records with the given status; an
	// empty status counts all quest records.
	CountQuests(ctx context.Context, user core.UserID, status core.QuestStatus) (int, error)
	// GetQuest looks up one quest record by id scoped to the user.
	GetQuest(ctx context.Context, user core.UserID, id string) (core.Quest, error)
}

// Storage abstracts persistence for progression state. Adapters provide
// single-statement reads and updates; the engine performs no multi-step
// transactions of its own.
type Storage interface {
	StateReader

	// GetTargetByID looks up a theme or skill by id.
	GetTargetByID(ctx context.Context, user core.UserID, kind core.TargetKind, id string) (core.ProgressionTarget, error)
	// AddXP adds amount to the target's accumulated XP and its per-source
	// breakdown, returning the updated target or core.ErrNotFound.
	AddXP(ctx context.Context, user core.UserID, kind core.TargetKind, id string, amount float64, source string) (core.ProgressionTarget, error)

	// ListTitles lists every title definition.
	ListTitles(ctx context.Context) ([]core.TitleDefinition, error)
	// GetTitle looks up one title definition.
	GetTitle(ctx context.Context, id string) (core.TitleDefinition, error)
	// ListGrants lists a user's title grants regardless of equip state.
	ListGrants(ctx context.Context, user core.UserID) ([]core.UserTitleGrant, error)
	// ListEquippedGrants lists only the grants with equipped=true.
	ListEquippedGrants(ctx context.Context, user core.UserID) ([]core.UserTitleGrant, error)
	// CreateGrant persists a new title grant.
	CreateGrant(ctx context.Context, grant core.UserTitleGrant) error
	// SetEquipped toggles the equip state of an owned title.
	SetEquipped(ctx context.Context, user core.UserID, titleID string, equipped bool) error
}

// XPConfig supplies the configured base XP for an event source.
type XPConfig interface {
	BaseXP(source string) float64
}

// BaseXPFunc adapts a plain function to XPConfig.
type BaseXPFunc func(source string) float64

func (f BaseXPFunc) BaseXP(source string) float64 { return f(source) }
