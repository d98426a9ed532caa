package domain

import "context"

// Client is the transport surface commands and the core depend on.
// Implemented by the Matrix client; test doubles implement it in _test files.
type Client interface {
	// UserID returns the authenticated user's fully-qualified identifier.
	UserID() string

	// SendMessage posts a plain-text message and returns the event ID.
	SendMessage(ctx context.Context, roomID, text string) (string, error)

	// SendImage uploads the image bytes and posts them to the room,
	// returning the delivery event ID.
	SendImage(ctx context.Context, roomID, filename string, data []byte) (string, error)

	// JoinRoom joins a room by alias or ID and returns the canonical room ID.
	JoinRoom(ctx context.Context, aliasOrID string) (string, error)

	// JoinRoomByID joins a room the caller already knows the ID of.
	JoinRoomByID(ctx context.Context, roomID string) error

	// DirectoryLookup resolves an alias through the room directory.
	// Returns an error when the directory has no entry for the alias.
	DirectoryLookup(ctx context.Context, alias string) (string, error)

	// DownloadMedia fetches the bytes behind an mxc:// content URI.
	DownloadMedia(ctx context.Context, mxcURL string) ([]byte, error)
}
