package jobrunner

import (
	"context"
	"errors"
	"sync"

	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/domain/model"
	"github.com/target/mmk-reports/internal/service"
)

// memQueue is an in-process broker session with prefetch one. It doubles as the
// SessionProvider handed to the runner and the report service.
type memQueue struct {
	messages chan []byte
	notify   chan error

	mu     sync.Mutex
	acked  []string
	nacked []string
}

func newMemQueue() *memQueue {
	return &memQueue{messages: make(chan []byte, 64), notify: make(chan error)}
}

func (q *memQueue) Session() (core.Session, error) { return q, nil }

func (q *memQueue) Publish(_ context.Context, body []byte) error {
	q.messages <- body
	return nil
}

func (q *memQueue) Consume(ctx context.Context) (<-chan core.Delivery, error) {
	out := make(chan core.Delivery)
	go func() {
		defer close(out)
		for {
			var body []byte
			select {
			case <-ctx.Done():
				return
			case body = <-q.messages:
			}

			d := &memDelivery{q: q, body: body, settled: make(chan struct{})}
			select {
			case <-ctx.Done():
				return
			case out <- d:
			}
			// Prefetch one: nothing else is handed out until this delivery settles.
			select {
			case <-ctx.Done():
				return
			case <-d.settled:
			}
		}
	}()
	return out, nil
}

func (q *memQueue) NotifyClose() <-chan error { return q.notify }

func (q *memQueue) Close() error { return nil }

func (q *memQueue) settled() (acked, nacked []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...), append([]string(nil), q.nacked...)
}

type memDelivery struct {
	q       *memQueue
	body    []byte
	once    sync.Once
	settled chan struct{}
}

func (d *memDelivery) Body() []byte { return d.body }

func (d *memDelivery) Ack() error { return d.settle(true) }

func (d *memDelivery) Nack() error { return d.settle(false) }

func (d *memDelivery) settle(ack bool) error {
	err := errors.New("delivery already settled")
	d.once.Do(func() {
		err = nil
		id := ""
		if msg, derr := model.DecodeQueueMessage(d.body); derr == nil {
			id = msg.JobID
		}
		d.q.mu.Lock()
		if ack {
			d.q.acked = append(d.q.acked, id)
		} else {
			d.q.nacked = append(d.q.nacked, id)
		}
		d.q.mu.Unlock()
		close(d.settled)
	})
	return err
}

type processorFunc func(ctx context.Context, jobID string, typ model.ReportType, params model.Parameters) (*service.ProcessResult, error)

func (f processorFunc) Process(
	ctx context.Context,
	jobID string,
	typ model.ReportType,
	params model.Parameters,
) (*service.ProcessResult, error) {
	return f(ctx, jobID, typ, params)
}
