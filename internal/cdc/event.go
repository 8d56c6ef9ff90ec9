// Package cdc implements change data capture from the primary store: a
// dedicated LISTEN/NOTIFY subscription that buffers minimal-identifier
// change events per channel, and the batch pipeline that flushes them into
// the search index.
package cdc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridstonehq/workspace-search/internal/document"
)

// The three logical change channels, one per source kind.
const (
	ChannelEnrichment = "enrichment_records_changes"
	ChannelRecords    = "workspace_records_changes"
	ChannelScrape     = "scrape_results_changes"
)

// MaxPayloadBytes bounds a notification payload. Payloads carry only
// identifiers, never document content, so anything near this limit is
// malformed by construction.
const MaxPayloadBytes = 8000

// Channels returns the subscribed channels in a fixed order.
func Channels() []string {
	return []string{ChannelEnrichment, ChannelRecords, ChannelScrape}
}

// SourceKindFor maps a channel to its source kind.
func SourceKindFor(channel string) (document.SourceKind, bool) {
	switch channel {
	case ChannelEnrichment:
		return document.SourceEnrichment, true
	case ChannelRecords:
		return document.SourceRecord, true
	case ChannelScrape:
		return document.SourceScrape, true
	default:
		return "", false
	}
}

// Op is the change operation carried by a notification.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

func (o Op) valid() bool {
	return o == OpInsert || o == OpUpdate || o == OpDelete
}

// Event is one buffered change event. Events live only in process memory
// between notification and flush; each event becomes its own bulk action
// (per-record de-duplication within a flush window is deliberately not
// done, so a DELETE followed by a re-INSERT survives collapsing).
type Event struct {
	Channel     string
	RecordID    string
	WorkspaceID string
	Op          Op
	ReceivedAt  time.Time
}

// recordPayload is the notification shape of the enrichment and records
// channels. The payload contains only identifier fields.
type recordPayload struct {
	RecordID    string `json:"record_id"`
	WorkspaceID string `json:"workspace_id"`
	Op          Op     `json:"op"`
}

// scrapePayload is the notification shape of the scrape channel; the task
// id is the record identifier.
type scrapePayload struct {
	TaskID      string `json:"task_id"`
	WorkspaceID string `json:"workspace_id"`
	JobID       string `json:"job_id"`
	Op          Op     `json:"op"`
}

// ParsePayload validates a raw notification payload against its channel's
// shape: identifier fields only, valid UUIDs, a known op, and the size
// bound. The caller supplies the receive timestamp.
func ParsePayload(channel, payload string, receivedAt time.Time) (Event, error) {
	if payload == "" {
		return Event{}, fmt.Errorf("empty payload")
	}
	if len(payload) > MaxPayloadBytes {
		return Event{}, fmt.Errorf("payload exceeds %d bytes", MaxPayloadBytes)
	}

	var recordID, workspaceID string
	var op Op
	switch channel {
	case ChannelEnrichment, ChannelRecords:
		var p recordPayload
		if err := decodeStrict(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decoding payload: %w", err)
		}
		recordID, workspaceID, op = p.RecordID, p.WorkspaceID, p.Op
	case ChannelScrape:
		var p scrapePayload
		if err := decodeStrict(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decoding payload: %w", err)
		}
		if _, err := uuid.Parse(p.JobID); err != nil {
			return Event{}, fmt.Errorf("invalid job_id: %w", err)
		}
		recordID, workspaceID, op = p.TaskID, p.WorkspaceID, p.Op
	default:
		return Event{}, fmt.Errorf("unrecognized channel %q", channel)
	}

	if _, err := uuid.Parse(recordID); err != nil {
		return Event{}, fmt.Errorf("invalid record id: %w", err)
	}
	if _, err := uuid.Parse(workspaceID); err != nil {
		return Event{}, fmt.Errorf("invalid workspace_id: %w", err)
	}
	if !op.valid() {
		return Event{}, fmt.Errorf("invalid op %q", op)
	}

	return Event{
		Channel:     channel,
		RecordID:    recordID,
		WorkspaceID: workspaceID,
		Op:          op,
		ReceivedAt:  receivedAt,
	}, nil
}

// decodeStrict rejects payloads carrying fields beyond the documented
// identifiers.
func decodeStrict(payload string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Buffers holds the per-channel event buffers. The notification handler
// appends; the flush routine drains a channel atomically, so events
// arriving mid-flush accumulate in a fresh buffer.
type Buffers struct {
	mu      sync.Mutex
	byChann map[string][]Event
}

// NewBuffers creates empty buffers for the fixed channel set.
func NewBuffers() *Buffers {
	byChann := make(map[string][]Event, 3)
	for _, ch := range Channels() {
		byChann[ch] = nil
	}
	return &Buffers{byChann: byChann}
}

// Append adds an event to its channel's buffer and returns the new total
// across all channels.
func (b *Buffers) Append(e Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byChann[e.Channel] = append(b.byChann[e.Channel], e)
	return b.totalLocked()
}

// Drain removes and returns a channel's buffered events.
func (b *Buffers) Drain(channel string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.byChann[channel]
	b.byChann[channel] = nil
	return events
}

// Total returns the number of buffered events across all channels.
func (b *Buffers) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalLocked()
}

func (b *Buffers) totalLocked() int {
	total := 0
	for _, events := range b.byChann {
		total += len(events)
	}
	return total
}
