package domain

import "time"

// Event is a single inbound room message as delivered by the sync feed.
// Values are never mutated after construction.
type Event struct {
	EventID   string // protocol-unique event identifier
	RoomID    string // canonical room identifier the event arrived in
	SenderID  string // fully-qualified sender user identifier
	Body      string // raw text body
	Timestamp time.Time
}
