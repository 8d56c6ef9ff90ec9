package cdc

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlusher struct {
	triggered int
}

func (f *fakeFlusher) TriggerFlush() { f.triggered++ }

type fakeConn struct {
	channels []string
	notify   chan *pq.Notification
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{notify: make(chan *pq.Notification, 8)}
}

func (f *fakeConn) Listen(channel string) error {
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakeConn) NotificationChannel() <-chan *pq.Notification { return f.notify }

func (f *fakeConn) Ping() error { return nil }

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newTestListener(batchSize int) (*Listener, *Buffers, *fakeFlusher) {
	buffers := NewBuffers()
	flusher := &fakeFlusher{}
	l := NewListener(nil, buffers, flusher, batchSize, nil)
	return l, buffers, flusher
}

func TestHandleBuffersValidNotification(t *testing.T) {
	l, buffers, flusher := newTestListener(10)
	payload := `{"record_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"INSERT"}`

	l.Handle(ChannelEnrichment, payload)

	assert.Equal(t, 1, buffers.Total())
	assert.Equal(t, 0, flusher.triggered, "below the batch threshold")

	drained := buffers.Drain(ChannelEnrichment)
	require.Len(t, drained, 1)
	assert.Equal(t, testRecordID, drained[0].RecordID)
}

func TestHandleDropsUnknownChannel(t *testing.T) {
	l, buffers, _ := newTestListener(10)
	l.Handle("billing_changes", `{"record_id":"x"}`)
	assert.Equal(t, 0, buffers.Total())
}

func TestHandleDropsMalformedPayload(t *testing.T) {
	l, buffers, _ := newTestListener(10)
	l.Handle(ChannelEnrichment, `{not json`)
	l.Handle(ChannelEnrichment, `{"record_id":"not-a-uuid","workspace_id":"`+testWorkspaceID+`","op":"INSERT"}`)
	assert.Equal(t, 0, buffers.Total())
}

func TestHandleTriggersFlushAtBatchSize(t *testing.T) {
	l, buffers, flusher := newTestListener(3)
	payload := `{"record_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"INSERT"}`

	l.Handle(ChannelEnrichment, payload)
	l.Handle(ChannelRecords, payload)
	assert.Equal(t, 0, flusher.triggered)

	l.Handle(ChannelEnrichment, payload)
	assert.Equal(t, 1, flusher.triggered, "crossing the threshold requests a flush")
	assert.Equal(t, 3, buffers.Total(), "trigger does not drain; the pipeline does")
}

func TestStartConsumesNotificationsFromAllChannels(t *testing.T) {
	conn := newFakeConn()
	buffers := NewBuffers()
	l := NewListener(conn, buffers, &fakeFlusher{}, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	conn.notify <- &pq.Notification{
		Channel: ChannelEnrichment,
		Extra:   `{"record_id":"` + testRecordID + `","workspace_id":"` + testWorkspaceID + `","op":"INSERT"}`,
	}

	require.Eventually(t, func() bool { return buffers.Total() == 1 },
		time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, Channels(), conn.channels)

	cancel()
	require.NoError(t, <-done)
}

func TestStartLeavesConnectionOpenForCallerToClose(t *testing.T) {
	conn := newFakeConn()
	l := NewListener(conn, NewBuffers(), &fakeFlusher{}, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()
	cancel()
	require.NoError(t, <-done)

	// The connection survives Start so a final buffer drain can finish
	// before notifications stop; Close is the caller's last step.
	assert.False(t, conn.closed)
	require.NoError(t, l.Close())
	assert.True(t, conn.closed)
}
