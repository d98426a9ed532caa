package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// SendMessage posts a plain-text m.room.message and returns the event ID.
func (c *Client) SendMessage(ctx context.Context, roomID, text string) (string, error) {
	return c.sendEvent(ctx, roomID, map[string]any{
		"msgtype": "m.text",
		"body":    text,
	})
}

// SendImage uploads the image bytes to the media repository and posts an
// m.image message referencing them, returning the delivery event ID.
func (c *Client) SendImage(ctx context.Context, roomID, filename string, data []byte) (string, error) {
	contentURI, err := c.upload(ctx, filename, data)
	if err != nil {
		return "", fmt.Errorf("media upload: %w", err)
	}
	return c.sendEvent(ctx, roomID, map[string]any{
		"msgtype": "m.image",
		"body":    filename,
		"url":     contentURI,
		"info": map[string]any{
			"mimetype": "image/png",
			"size":     len(data),
		},
	})
}

// sendEvent PUTs one m.room.message event with a fresh transaction ID, so
// a retried request is idempotent on the server side.
func (c *Client) sendEvent(ctx context.Context, roomID string, content map[string]any) (string, error) {
	txnID := uuid.NewString()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID), txnID)

	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, c.api, http.MethodPut, path, content, &resp); err != nil {
		return "", fmt.Errorf("send to %s: %w", roomID, err)
	}
	return resp.EventID, nil
}

// upload stores raw bytes in the media repository and returns the mxc URI.
func (c *Client) upload(ctx context.Context, filename string, data []byte) (string, error) {
	u := c.homeserver + "/_matrix/media/v3/upload?filename=" + url.QueryEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "image/png")
	req.ContentLength = int64(len(data))

	resp, err := c.api.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload http %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		ContentURI string `json:"content_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ContentURI == "" {
		return "", fmt.Errorf("upload response missing content_uri")
	}
	return out.ContentURI, nil
}
