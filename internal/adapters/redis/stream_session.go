// Package redis implements the broker session on Redis Streams with a consumer group.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-reports/internal/core"
)

// Defaults for StreamDialerOptions.
const (
	DefaultStream       = "report-requests"
	DefaultGroup        = "report-workers"
	DefaultPingInterval = 5 * time.Second
	defaultReadBlock    = 2 * time.Second
	bodyField           = "body"
)

var (
	_ core.Dialer   = (*StreamDialer)(nil)
	_ core.Session  = (*StreamSession)(nil)
	_ core.Delivery = (*streamDelivery)(nil)
)

// StreamDialerOptions configures a StreamDialer.
type StreamDialerOptions struct {
	Client       redis.UniversalClient // required; not closed by sessions
	Stream       string
	Group        string
	Consumer     string
	PingInterval time.Duration
	Logger       *slog.Logger
}

// StreamDialer opens StreamSessions on a shared Redis client.
type StreamDialer struct {
	client       redis.UniversalClient
	stream       string
	group        string
	consumer     string
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewStreamDialer validates opts and returns a StreamDialer.
func NewStreamDialer(opts StreamDialerOptions) (*StreamDialer, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	d := &StreamDialer{
		client:       opts.Client,
		stream:       opts.Stream,
		group:        opts.Group,
		consumer:     opts.Consumer,
		pingInterval: opts.PingInterval,
		logger:       opts.Logger,
	}
	if d.stream == "" {
		d.stream = DefaultStream
	}
	if d.group == "" {
		d.group = DefaultGroup
	}
	if d.consumer == "" {
		d.consumer = defaultConsumerName()
	}
	if d.pingInterval <= 0 {
		d.pingInterval = DefaultPingInterval
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "redis_stream_session", "stream", d.stream, "group", d.group)
	return d, nil
}

// defaultConsumerName is stable across restarts on the same host, so a restarted worker
// finds the entries it read but never settled in its own pending list.
func defaultConsumerName() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "consumer"
	}
	return host
}

// Dial checks connectivity and ensures the stream and consumer group exist.
func (d *StreamDialer) Dial(ctx context.Context) (core.Session, error) {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	// "0" lets a new group pick up entries published before any worker started.
	err := d.client.XGroupCreateMkStream(ctx, d.stream, d.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("redis create consumer group: %w", err)
	}

	s := &StreamSession{
		client:   d.client,
		stream:   d.stream,
		group:    d.group,
		consumer: d.consumer,
		logger:   d.logger,
		notify:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	go s.watch(d.pingInterval)
	return s, nil
}

// StreamSession is a logical session on a stream; liveness is tracked with periodic pings.
type StreamSession struct {
	client   redis.UniversalClient
	stream   string
	group    string
	consumer string
	logger   *slog.Logger

	notify    chan error
	done      chan struct{}
	closeOnce sync.Once
}

// Publish appends body to the stream.
func (s *StreamSession) Publish(ctx context.Context, body []byte) error {
	if s.isClosed() {
		return errors.New("redis stream session closed")
	}
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{bodyField: body},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Consume reads one entry at a time and does not read the next until the current one is settled.
// Entries this consumer read earlier but never settled are redelivered first, then new entries
// are read.
func (s *StreamSession) Consume(ctx context.Context) (<-chan core.Delivery, error) {
	if s.isClosed() {
		return nil, errors.New("redis stream session closed")
	}

	out := make(chan core.Delivery)
	go func() {
		defer close(out)
		cursor := pendingCursor
		for ctx.Err() == nil && !s.isClosed() {
			msg, err := s.readOne(ctx, cursor)
			if err != nil {
				s.backoff(ctx, err)
				continue
			}
			if msg == nil {
				cursor = newCursor
				continue
			}
			if cursor == pendingCursor && msg.Values == nil {
				// Trimmed or deleted while pending; only the pending-list entry is left.
				if err := s.settle(msg.ID); err != nil {
					s.logger.Warn("redis drop trimmed pending entry", "id", msg.ID, "error", err)
				}
				continue
			}
			if cursor == pendingCursor {
				s.logger.Info("redelivering unsettled stream entry", "id", msg.ID, "consumer", s.consumer)
			}

			d := &streamDelivery{session: s, id: msg.ID, settled: make(chan struct{})}
			if raw, isStr := msg.Values[bodyField].(string); isStr {
				d.body = []byte(raw)
			}

			select {
			case out <- d:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}

			select {
			case <-d.settled:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
	return out, nil
}

// Cursors for XREADGROUP: pendingCursor replays this consumer's unsettled entries,
// newCursor reads entries never delivered to the group.
const (
	pendingCursor = "0"
	newCursor     = ">"
)

// readOne returns the next entry at cursor, or nil when there is none.
func (s *StreamSession) readOne(ctx context.Context, cursor string) (*redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, cursor},
		Count:    1,
		Block:    defaultReadBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, st := range streams {
		if len(st.Messages) > 0 {
			msg := st.Messages[0]
			return &msg, nil
		}
	}
	return nil, nil
}

func (s *StreamSession) backoff(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Warn("redis stream read failed", "error", err)
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	case <-s.done:
	}
}

// NotifyClose yields a reason when Redis stops answering pings, then closes.
func (s *StreamSession) NotifyClose() <-chan error { return s.notify }

// Close ends the session. The shared client stays open.
func (s *StreamSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *StreamSession) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *StreamSession) watch(interval time.Duration) {
	defer close(s.notify)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := s.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				s.notify <- fmt.Errorf("redis ping: %w", err)
				s.closeOnce.Do(func() { close(s.done) })
				return
			}
		}
	}
}

// settle removes the entry from the pending list and the stream. Nack drops it the same way
// since failed jobs are never requeued.
func (s *StreamSession) settle(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.XAck(ctx, s.stream, s.group, id)
	pipe.XDel(ctx, s.stream, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis settle %s: %w", id, err)
	}
	return nil
}

type streamDelivery struct {
	session *StreamSession
	id      string
	body    []byte
	once    sync.Once
	settled chan struct{}
}

func (d *streamDelivery) Body() []byte { return d.body }

func (d *streamDelivery) Ack() error { return d.finish() }

func (d *streamDelivery) Nack() error { return d.finish() }

func (d *streamDelivery) finish() error {
	err := d.session.settle(d.id)
	d.once.Do(func() { close(d.settled) })
	return err
}
