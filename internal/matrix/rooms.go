package matrix

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// JoinRoom joins by alias or room ID. The response carries the canonical
// room ID, which makes this usable as the final resolution fallback.
func (c *Client) JoinRoom(ctx context.Context, aliasOrID string) (string, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(aliasOrID)
	var resp struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, c.api, http.MethodPost, path, map[string]any{}, &resp); err != nil {
		return "", fmt.Errorf("join %s: %w", aliasOrID, err)
	}
	if resp.RoomID == "" {
		return "", fmt.Errorf("join %s: response missing room_id", aliasOrID)
	}
	return resp.RoomID, nil
}

// JoinRoomByID joins a room whose canonical ID is already known.
func (c *Client) JoinRoomByID(ctx context.Context, roomID string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/join", url.PathEscape(roomID))
	if err := c.do(ctx, c.api, http.MethodPost, path, map[string]any{}, nil); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	return nil
}

// DirectoryLookup resolves an alias through the public room directory.
func (c *Client) DirectoryLookup(ctx context.Context, alias string) (string, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias)
	var resp struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, c.api, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("directory lookup %s: %w", alias, err)
	}
	if resp.RoomID == "" {
		return "", fmt.Errorf("directory lookup %s: response missing room_id", alias)
	}
	return resp.RoomID, nil
}

// JoinedRooms lists the rooms the authenticated user is currently in.
func (c *Client) JoinedRooms(ctx context.Context) ([]string, error) {
	var resp struct {
		JoinedRooms []string `json:"joined_rooms"`
	}
	if err := c.do(ctx, c.api, http.MethodGet, "/_matrix/client/v3/joined_rooms", nil, &resp); err != nil {
		return nil, fmt.Errorf("joined rooms: %w", err)
	}
	return resp.JoinedRooms, nil
}

// PublicRoom is one entry from the public room directory.
type PublicRoom struct {
	RoomID   string `json:"room_id"`
	JoinRule string `json:"join_rule"`
	Name     string `json:"name"`
}

// PublicRooms fetches one page of the public room directory. since is the
// pagination token from the previous page ("" for the first page); the
// returned token is "" when there are no further pages.
func (c *Client) PublicRooms(ctx context.Context, since string) ([]PublicRoom, string, error) {
	body := map[string]any{}
	if since != "" {
		body["since"] = since
	}
	var resp struct {
		Chunk     []PublicRoom `json:"chunk"`
		NextBatch string       `json:"next_batch"`
	}
	if err := c.do(ctx, c.api, http.MethodPost, "/_matrix/client/v3/publicRooms", body, &resp); err != nil {
		return nil, "", fmt.Errorf("public rooms: %w", err)
	}
	return resp.Chunk, resp.NextBatch, nil
}
