package bot

import (
	"context"
	"log/slog"
	"strings"

	"matrixbot/internal/domain"
)

// resolverClient is the slice of the transport the resolver needs.
type resolverClient interface {
	JoinRoomByID(ctx context.Context, roomID string) error
	DirectoryLookup(ctx context.Context, alias string) (string, error)
	JoinRoom(ctx context.Context, aliasOrID string) (string, error)
}

// aliasIndex is the local lookup tier of the resolver.
type aliasIndex interface {
	RoomIDForAlias(ctx context.Context, alias string) (string, error)
}

// RoomResolver turns an alias or room ID into a canonical room ID through
// a strict tier order: passthrough, local index, directory query, join by
// alias. Free and read-only tiers come before paid and side-effecting
// ones. Tier failures advance the chain; only exhaustion is an error.
type RoomResolver struct {
	client resolverClient
	index  aliasIndex
	logger *slog.Logger
}

func NewRoomResolver(client resolverClient, index aliasIndex, logger *slog.Logger) *RoomResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomResolver{client: client, index: index, logger: logger}
}

func (r *RoomResolver) Resolve(ctx context.Context, input string) (string, error) {
	// Tier 1: already a canonical room ID. Joining is a best-effort side
	// effect; a failed join must not fail resolution.
	if strings.HasPrefix(input, "!") {
		if err := r.client.JoinRoomByID(ctx, input); err != nil {
			r.logger.Debug("best-effort join by id failed", "room", input, "err", err)
		}
		return input, nil
	}

	if strings.HasPrefix(input, "#") {
		// Tier 2: locally replicated alias index, no network.
		if id, err := r.index.RoomIDForAlias(ctx, input); err != nil {
			r.logger.Warn("local alias lookup failed", "alias", input, "err", err)
		} else if id != "" {
			r.logger.Debug("alias resolved locally", "alias", input, "room", id)
			return id, nil
		}

		// Tier 3: room directory.
		if id, err := r.client.DirectoryLookup(ctx, input); err != nil {
			r.logger.Debug("directory lookup failed", "alias", input, "err", err)
		} else if id != "" {
			return id, nil
		}
	}

	// Tier 4: join by alias; the join response carries the canonical ID.
	if id, err := r.client.JoinRoom(ctx, input); err != nil {
		r.logger.Debug("join fallback failed", "input", input, "err", err)
	} else if id != "" {
		return id, nil
	}

	return "", &domain.UnresolvedRoomError{Input: input}
}
