package cdc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/gridstonehq/workspace-search/pkg/logger"
	"github.com/gridstonehq/workspace-search/pkg/metrics"
)

// pingInterval keeps the listener connection alive through idle periods.
const pingInterval = 90 * time.Second

// Flusher is the pipeline surface the listener needs: a non-blocking
// flush trigger fired when the buffer crosses the batch threshold.
type Flusher interface {
	TriggerFlush()
}

// NotificationConn is the slice of pq.Listener the listener consumes.
type NotificationConn interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener owns the dedicated notification connection. It parses and
// buffers incoming events; it never performs index writes itself.
type Listener struct {
	pql       NotificationConn
	buffers   *Buffers
	flusher   Flusher
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewListener wires a listener around an established pq.Listener. The
// pq.Listener handles reconnection itself; after a reconnect it re-delivers
// a nil notification, which we treat as a resubscribe signal.
func NewListener(pql NotificationConn, buffers *Buffers, flusher Flusher, batchSize int, m *metrics.Metrics) *Listener {
	return &Listener{
		pql:       pql,
		buffers:   buffers,
		flusher:   flusher,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger.WithComponent("cdc-listener"),
	}
}

// Start subscribes to all change channels and consumes notifications until
// the context is cancelled. It does not close the connection: the caller
// closes it with Close after the pipeline's final flush, so a late
// notification cannot race the drain. Notifications lost during a
// connection outage are not replayed; reindexing is the recovery path for
// gaps.
func (l *Listener) Start(ctx context.Context) error {
	for _, ch := range Channels() {
		if err := l.pql.Listen(ch); err != nil {
			return fmt.Errorf("listening on %s: %w", ch, err)
		}
	}
	l.logger.Info("listening for change notifications", "channels", Channels())

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	notify := l.pql.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-notify:
			if n == nil {
				// Reconnect marker from pq; subscriptions survive,
				// but events during the outage are gone.
				l.logger.Warn("listener connection re-established, events may have been missed")
				continue
			}
			l.Handle(n.Channel, n.Extra)
		case <-ping.C:
			if err := l.pql.Ping(); err != nil {
				l.logger.Error("listener ping failed", "error", err)
			}
		}
	}
}

// Close terminates the notification connection.
func (l *Listener) Close() error {
	return l.pql.Close()
}

// Handle parses one raw notification and buffers the resulting event.
// Malformed payloads and unknown channels are logged and dropped; a bad
// producer must not stall the pipeline.
func (l *Listener) Handle(channel, payload string) {
	if _, ok := SourceKindFor(channel); !ok {
		l.logger.Warn("dropping notification from unknown channel", "channel", channel)
		l.dropped("unknown_channel")
		return
	}
	event, err := ParsePayload(channel, payload, time.Now().UTC())
	if err != nil {
		l.logger.Warn("dropping malformed notification", "channel", channel, "error", err)
		l.dropped("malformed")
		return
	}

	total := l.buffers.Append(event)
	if l.metrics != nil {
		l.metrics.EventsBuffered.Set(float64(total))
	}
	if total >= l.batchSize {
		l.flusher.TriggerFlush()
	}
}

func (l *Listener) dropped(reason string) {
	if l.metrics != nil {
		l.metrics.EventsDroppedTotal.WithLabelValues(reason).Inc()
	}
}
