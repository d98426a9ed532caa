package domain

import "context"

// Command is a chat-triggered capability. Exactly one command owns each
// trigger string; the registry rejects duplicates at startup.
type Command interface {
	// Trigger returns the full leading token this command answers to,
	// including the marker character (e.g. "!search"). Compared
	// case-sensitively.
	Trigger() string

	// Execute runs the command. A returned error is isolated by the
	// dispatcher, logged, and reported to the originating room; its
	// message must be suitable for direct display in chat.
	Execute(ctx context.Context, inv *Invocation) error
}

// Invocation bundles the capabilities handed to a single command execution.
// It is owned exclusively by that execution and not retained afterwards.
type Invocation struct {
	Client   Client
	Mappings MappingStore
	Index    Index
	Resolver Resolver
	Images   ImageRouter

	RoomID   string // originating room
	SenderID string
	Args     string // argument text after the trigger, verbatim
	LinkHost string // base URL for message deep links, e.g. https://matrix.to
}

// Resolver turns a room alias or identifier into a canonical room ID.
type Resolver interface {
	Resolve(ctx context.Context, aliasOrID string) (string, error)
}

// ImageRouter delivers a produced image, honoring channel mappings.
type ImageRouter interface {
	Route(ctx context.Context, originRoom, filename string, data []byte) error
}
