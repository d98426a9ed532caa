package bus

import (
	"log/slog"
	"sync"
	"time"

	"matrixbot/internal/domain"
)

const publishTimeout = 10 * time.Second

// EventBus is a Go-channel based feed of inbound room events, decoupling
// the sync loop from the dispatcher.
type EventBus struct {
	inbound chan domain.Event
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates an EventBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		inbound: make(chan domain.Event, bufferSize),
		logger:  logger,
	}
}

// Publish enqueues an event. Blocks up to 10 seconds if the bus is full
// instead of dropping.
func (b *EventBus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "event", ev.EventID)
		return
	}

	select {
	case b.inbound <- ev:
	default:
		b.logger.Warn("inbound bus full, waiting...", "room", ev.RoomID, "event", ev.EventID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- ev:
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"room", ev.RoomID,
				"event", ev.EventID,
			)
		}
	}
}

func (b *EventBus) Subscribe() <-chan domain.Event {
	return b.inbound
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
