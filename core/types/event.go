package types

import "time"

// Event represents a typed event emitted once a ledger operation commits.
type Event struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Timestamp  int64             `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Time returns the commit timestamp as a time.Time in UTC.
func (e *Event) Time() time.Time {
	if e == nil {
		return time.Time{}
	}
	return time.Unix(e.Timestamp, 0).UTC()
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Height: e.Height, Timestamp: e.Timestamp, Attributes: attrs}
}
