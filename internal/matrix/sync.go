package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"matrixbot/internal/domain"
)

const syncRetryDelay = 5 * time.Second

// RoomEvent is one raw event from the sync feed, state or timeline.
type RoomEvent struct {
	EventID        string          `json:"event_id"`
	Sender         string          `json:"sender"`
	Type           string          `json:"type"`
	OriginServerTS int64           `json:"origin_server_ts"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content"`
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]joinedRoom `json:"join"`
	} `json:"rooms"`
}

type joinedRoom struct {
	State struct {
		Events []RoomEvent `json:"events"`
	} `json:"state"`
	Timeline struct {
		Events []RoomEvent `json:"events"`
	} `json:"timeline"`
}

// MessageHandler receives each inbound text message.
type MessageHandler func(ev domain.Event)

// RawHandler receives every synced event (state and timeline) for ingestion.
type RawHandler func(roomID string, ev RoomEvent)

// Sync runs the long-poll sync loop until the context is cancelled.
// The first response only establishes the position in the feed: its
// timeline is ingested but not dispatched, so a restart does not replay
// old commands into the dispatcher (the ledger guards the rest).
func (c *Client) Sync(ctx context.Context, onMessage MessageHandler, onRaw RawHandler) error {
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		timeout := syncTimeout
		if first {
			timeout = 0
		}
		resp, err := c.syncOnce(ctx, c.nextBatch, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("sync request failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(syncRetryDelay):
			}
			continue
		}

		c.nextBatch = resp.NextBatch
		dispatchSync(resp, c.userID, first, onMessage, onRaw)
		first = false
	}
}

func (c *Client) syncOnce(ctx context.Context, since string, timeout time.Duration) (*syncResponse, error) {
	q := url.Values{}
	q.Set("timeout", fmt.Sprintf("%d", timeout.Milliseconds()))
	if since != "" {
		q.Set("since", since)
	}

	var resp syncResponse
	if err := c.do(ctx, c.sync, http.MethodGet, "/_matrix/client/v3/sync?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// dispatchSync fans a sync response out to the handlers. Own messages are
// ingested but never dispatched, so the bot cannot trigger itself.
func dispatchSync(resp *syncResponse, ownUserID string, initial bool, onMessage MessageHandler, onRaw RawHandler) {
	for roomID, room := range resp.Rooms.Join {
		for _, ev := range room.State.Events {
			if onRaw != nil {
				onRaw(roomID, ev)
			}
		}
		for _, ev := range room.Timeline.Events {
			if onRaw != nil {
				onRaw(roomID, ev)
			}
			if initial || onMessage == nil {
				continue
			}
			if ev.Type != "m.room.message" || ev.Sender == ownUserID {
				continue
			}
			var content struct {
				MsgType string `json:"msgtype"`
				Body    string `json:"body"`
			}
			if err := json.Unmarshal(ev.Content, &content); err != nil {
				continue
			}
			if content.MsgType != "m.text" {
				continue
			}
			onMessage(domain.Event{
				EventID:   ev.EventID,
				RoomID:    roomID,
				SenderID:  ev.Sender,
				Body:      content.Body,
				Timestamp: time.UnixMilli(ev.OriginServerTS),
			})
		}
	}
}
