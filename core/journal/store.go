// Package journal keeps an append-only record of the commands a device
// handled and the responses it sent.
package journal

import (
	"context"
	"time"
)

// Entry is one handled command.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	DeviceID  string         `json:"device_id"`
	RequestID string         `json:"request_id,omitempty"`
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Duplicate bool           `json:"duplicate,omitempty"`
}

// Query filters entries. Zero fields match everything.
type Query struct {
	Start     time.Time
	End       time.Time
	RequestID string
	Command   string
	// Limit keeps only the most recent entries when positive.
	Limit int
}

func (q Query) match(e Entry) bool {
	if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Timestamp.After(q.End) {
		return false
	}
	if q.RequestID != "" && e.RequestID != q.RequestID {
		return false
	}
	if q.Command != "" && e.Command != q.Command {
		return false
	}
	return true
}

func (q Query) limit(es []Entry) []Entry {
	if q.Limit > 0 && len(es) > q.Limit {
		return es[len(es)-q.Limit:]
	}
	return es
}

// Store persists entries and supports querying.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Append(context.Context, Entry) error           { return nil }
func (Nop) Query(context.Context, Query) ([]Entry, error) { return nil, nil }
func (Nop) Close() error                                  { return nil }
