// Package events publishes record change notifications so other processes
// can react to ledger writes.
package events

import "context"

// Publisher sends record change events.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, msg RecordChanged) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishRecordChanged(context.Context, RecordChanged) error { return nil }

func (NoopPublisher) Close() error { return nil }
