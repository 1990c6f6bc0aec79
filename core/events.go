package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventTitleUnlocked EventType = "title.unlocked"
	EventXPAwarded     EventType = "xp.awarded"
)

// Event represents an immutable domain event. Publication is
// fire-and-forget; subscribers get no delivery guarantee.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	UserID UserID `json:"user_id"`

	// title.unlocked fields
	GrantID   string    `json:"grant_id,omitempty"`
	TitleID   string    `json:"title_id,omitempty"`
	TitleName string    `json:"title_name,omitempty"`
	TitleRank TitleRank `json:"title_rank,omitempty"`

	// xp.awarded fields
	Amount     float64    `json:"amount,omitempty"`
	Source     string     `json:"source,omitempty"`
	TargetKind TargetKind `json:"target_type,omitempty"`
	TargetID   string     `json:"target_id,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTitleUnlocked builds the notification published when a user newly
// qualifies for (or is manually granted) a title.
func NewTitleUnlocked(user UserID, grantID, titleID, titleName string, rank TitleRank) Event {
	return Event{
		Type:      EventTitleUnlocked,
		Time:      time.Now().UTC(),
		UserID:    user,
		GrantID:   grantID,
		TitleID:   titleID,
		TitleName: titleName,
		TitleRank: rank,
	}
}

// NewXPAwarded builds the per-target notification published for each funded
// target of a processed journal event. Amount may be zero.
func NewXPAwarded(user UserID, amount float64, source string, kind TargetKind, targetID string) Event {
	return Event{
		Type:       EventXPAwarded,
		Time:       time.Now().UTC(),
		UserID:     user,
		Amount:     amount,
		Source:     source,
		TargetKind: kind,
		TargetID:   targetID,
	}
}
