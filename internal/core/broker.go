package core

import "context"

// Delivery is one message handed to the consumer. Exactly one of Ack or Nack must be called.
type Delivery interface {
	Body() []byte
	// Ack removes the message from the queue.
	Ack() error
	// Nack rejects the message without requeue; the broker drops it.
	Nack() error
}

// Session is a live broker connection bound to the report queue.
type Session interface {
	// Publish enqueues body as a persistent message.
	Publish(ctx context.Context, body []byte) error
	// Consume starts a consumer with a prefetch of one. The channel is closed when the
	// session ends or ctx is canceled.
	Consume(ctx context.Context) (<-chan Delivery, error)
	// NotifyClose yields the close reason (nil for an orderly close) once, then is closed.
	NotifyClose() <-chan error
	Close() error
}

// Dialer opens a broker session and declares the durable queue. Declaring is idempotent.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// SessionProvider hands out the current session, failing with a transient error when none is established.
type SessionProvider interface {
	Session() (Session, error)
}
