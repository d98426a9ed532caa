package domain

import (
	"context"
	"time"
)

// Ledger is the persisted set of already-processed event identifiers.
// Existence of a record is the sole at-most-once guard for dispatch.
type Ledger interface {
	// IsHandled reports whether the event identifier has a ledger record.
	IsHandled(ctx context.Context, eventID string) (bool, error)

	// MarkHandled records the event identifier. The insert is atomic:
	// it returns false (without error) when a record already existed,
	// so concurrent duplicate deliveries cannot both claim the event.
	MarkHandled(ctx context.Context, eventID string) (bool, error)
}

// ChannelMapping redirects images produced in a source room to a target room.
// At most one mapping exists per source room.
type ChannelMapping struct {
	SourceRoomID string
	TargetRoomID string
	UpdatedAt    time.Time
}

// MappingStore persists administrator-managed channel mappings.
type MappingStore interface {
	// Mapping returns the mapping for the source room, or nil when none exists.
	Mapping(ctx context.Context, sourceRoomID string) (*ChannelMapping, error)

	// PutMapping creates or replaces the mapping for the source room.
	PutMapping(ctx context.Context, sourceRoomID, targetRoomID string) error

	// DeleteMapping removes the mapping, reporting whether one existed.
	DeleteMapping(ctx context.Context, sourceRoomID string) (bool, error)
}

// IndexedMessage is one message from the locally replicated room index.
type IndexedMessage struct {
	EventID  string
	RoomID   string
	Sender   string
	Body     string
	OriginTS int64 // origin server timestamp, milliseconds
}

// Index is the locally replicated room-metadata and message index,
// populated by the sync ingestion path. Read-only for the core.
type Index interface {
	// RoomIDForAlias returns the room ID recorded for the alias, checking
	// the canonical alias first and the alternative alias list second.
	// Returns "" when the alias is unknown.
	RoomIDForAlias(ctx context.Context, alias string) (string, error)

	// SearchMessages returns up to limit messages whose body contains the
	// query, newest first.
	SearchMessages(ctx context.Context, query string, limit int) ([]IndexedMessage, error)

	// SampleShouted returns a random sample of messages containing no
	// lowercase letters, excluding the given senders. senderFilter, when
	// non-empty, restricts results to senders containing that substring.
	SampleShouted(ctx context.Context, senderFilter string, exclude []string, limit int) ([]IndexedMessage, error)
}
