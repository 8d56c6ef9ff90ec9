package cdc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridstonehq/workspace-search/internal/document"
)

const (
	testRecordID    = "3b6f2c10-0000-4000-8000-000000000001"
	testWorkspaceID = "3b6f2c10-0000-4000-8000-0000000000ff"
	testJobID       = "3b6f2c10-0000-4000-8000-000000000099"
)

func TestParsePayloadRecordChannels(t *testing.T) {
	payload := `{"record_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"UPDATE"}`
	now := time.Now().UTC()

	for _, channel := range []string{ChannelEnrichment, ChannelRecords} {
		event, err := ParsePayload(channel, payload, now)
		require.NoError(t, err, "channel %s", channel)
		assert.Equal(t, channel, event.Channel)
		assert.Equal(t, testRecordID, event.RecordID)
		assert.Equal(t, testWorkspaceID, event.WorkspaceID)
		assert.Equal(t, OpUpdate, event.Op)
		assert.Equal(t, now, event.ReceivedAt)
	}
}

func TestParsePayloadScrapeChannel(t *testing.T) {
	payload := `{"task_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","job_id":"` + testJobID + `","op":"INSERT"}`

	event, err := ParsePayload(ChannelScrape, payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, testRecordID, event.RecordID, "scrape task id is the record id")
	assert.Equal(t, OpInsert, event.Op)
}

func TestParsePayloadRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"not json":          "nonsense",
		"bad record uuid":   `{"record_id":"abc","workspace_id":"` + testWorkspaceID + `","op":"INSERT"}`,
		"bad workspace":     `{"record_id":"` + testRecordID + `","workspace_id":"nope","op":"INSERT"}`,
		"unknown op":        `{"record_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"TRUNCATE"}`,
		"lowercase op":      `{"record_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"insert"}`,
		"extra fields":      `{"record_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"INSERT","name":"Jane"}`,
		"missing workspace": `{"record_id":"` + testRecordID + `","op":"INSERT"}`,
	}
	for name, payload := range cases {
		_, err := ParsePayload(ChannelEnrichment, payload, time.Now())
		assert.Error(t, err, "case %s", name)
	}
}

func TestParsePayloadRejectsOversizedPayload(t *testing.T) {
	payload := `{"record_id":"` + strings.Repeat("x", MaxPayloadBytes) + `"}`
	_, err := ParsePayload(ChannelEnrichment, payload, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestParsePayloadUnknownChannel(t *testing.T) {
	_, err := ParsePayload("other_changes", `{}`, time.Now())
	assert.Error(t, err)
}

func TestParsePayloadScrapeRequiresJobID(t *testing.T) {
	payload := `{"task_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"INSERT"}`
	_, err := ParsePayload(ChannelScrape, payload, time.Now())
	assert.Error(t, err)
}

func TestSourceKindFor(t *testing.T) {
	kind, ok := SourceKindFor(ChannelEnrichment)
	require.True(t, ok)
	assert.Equal(t, document.SourceEnrichment, kind)

	kind, ok = SourceKindFor(ChannelRecords)
	require.True(t, ok)
	assert.Equal(t, document.SourceRecord, kind)

	kind, ok = SourceKindFor(ChannelScrape)
	require.True(t, ok)
	assert.Equal(t, document.SourceScrape, kind)

	_, ok = SourceKindFor("bogus")
	assert.False(t, ok)
}

func TestBuffersAppendDrainTotal(t *testing.T) {
	b := NewBuffers()
	assert.Equal(t, 0, b.Total())

	total := b.Append(Event{Channel: ChannelEnrichment, RecordID: "r1"})
	assert.Equal(t, 1, total)
	total = b.Append(Event{Channel: ChannelScrape, RecordID: "r2"})
	assert.Equal(t, 2, total)

	drained := b.Drain(ChannelEnrichment)
	require.Len(t, drained, 1)
	assert.Equal(t, "r1", drained[0].RecordID)
	assert.Equal(t, 1, b.Total(), "draining one channel leaves the others")

	assert.Empty(t, b.Drain(ChannelEnrichment), "drain empties the channel")
}
