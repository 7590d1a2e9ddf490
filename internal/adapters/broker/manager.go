// Package broker keeps a single broker session alive for the report queue.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/mmk-reports/internal/core"
	apperrors "github.com/target/mmk-reports/internal/errors"
	"github.com/target/mmk-reports/internal/observability/metrics"
	"github.com/target/mmk-reports/internal/observability/statsd"
)

// Defaults applied when ManagerOptions leaves a field zero.
const (
	DefaultMaxRetries     = 10
	DefaultRetryInterval  = 5 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

var (
	// ErrSessionUnavailable is returned by Session while no connection is established.
	ErrSessionUnavailable = apperrors.TransientUnavailable(nil, "broker session not available")
	// ErrConnectInProgress is returned by Connect when another connection sequence is already running.
	ErrConnectInProgress = apperrors.TransientUnavailable(nil, "broker connection already in progress")
)

var _ core.SessionProvider = (*Manager)(nil)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Dialer         core.Dialer // required
	MaxRetries     int
	RetryInterval  time.Duration
	ReconnectDelay time.Duration
	Logger         *slog.Logger
	Metrics        statsd.Sink
}

// Manager owns the broker session. Connect retries with a fixed interval, only one
// connection sequence runs at a time, and a closed session triggers a reconnect after
// ReconnectDelay. Connect and Session are safe for concurrent use.
type Manager struct {
	dialer         core.Dialer
	maxRetries     int
	retryInterval  time.Duration
	reconnectDelay time.Duration
	logger         *slog.Logger
	metrics        statsd.Sink

	connecting atomic.Bool

	mu      sync.RWMutex
	session core.Session
	closed  bool

	wg sync.WaitGroup
}

// NewManager validates opts and returns a Manager with no session.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Dialer == nil {
		return nil, errors.New("broker dialer is required")
	}
	m := &Manager{
		dialer:         opts.Dialer,
		maxRetries:     opts.MaxRetries,
		retryInterval:  opts.RetryInterval,
		reconnectDelay: opts.ReconnectDelay,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxRetries
	}
	if m.retryInterval <= 0 {
		m.retryInterval = DefaultRetryInterval
	}
	if m.reconnectDelay <= 0 {
		m.reconnectDelay = DefaultReconnectDelay
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "broker_manager")
	return m, nil
}

// MustNewManager is like NewManager but panics on invalid options.
func MustNewManager(opts ManagerOptions) *Manager {
	m, err := NewManager(opts)
	if err != nil {
		panic(err)
	}
	return m
}

// Connect dials until a session is established or MaxRetries attempts have failed, waiting
// RetryInterval between attempts. A call made while another sequence is running returns
// ErrConnectInProgress immediately. ctx also bounds later automatic reconnects.
func (m *Manager) Connect(ctx context.Context) (core.Session, error) {
	if !m.connecting.CompareAndSwap(false, true) {
		return nil, ErrConnectInProgress
	}
	defer m.connecting.Store(false)

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrSessionUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		m.logger.InfoContext(ctx, "connecting to broker", "attempt", attempt, "max_attempts", m.maxRetries)

		sess, err := m.dialer.Dial(ctx)
		metrics.EmitBrokerConnect(m.metrics, attempt, err)
		if err == nil {
			if !m.install(ctx, sess) {
				_ = sess.Close()
				return nil, ErrSessionUnavailable
			}
			m.logger.InfoContext(ctx, "broker connected", "attempt", attempt)
			return sess, nil
		}

		lastErr = err
		m.logger.WarnContext(ctx, "broker connection attempt failed",
			"attempt", attempt, "max_attempts", m.maxRetries, "error", err)

		if attempt == m.maxRetries {
			break
		}
		if !sleep(ctx, m.retryInterval) {
			return nil, apperrors.TransientUnavailable(ctx.Err(), "broker connect canceled")
		}
	}

	m.logger.ErrorContext(ctx, "broker connection attempts exhausted", "attempts", m.maxRetries, "error", lastErr)
	return nil, apperrors.ConnectionExhausted(m.maxRetries, lastErr)
}

// Session returns the current session or ErrSessionUnavailable.
func (m *Manager) Session() (core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, ErrSessionUnavailable
	}
	return m.session, nil
}

// Connected reports whether a session is currently established.
func (m *Manager) Connected() bool {
	_, err := m.Session()
	return err == nil
}

// Close stops reconnecting, closes the current session and waits for background goroutines.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	var err error
	if sess != nil {
		err = sess.Close()
	}
	m.wg.Wait()
	return err
}

func (m *Manager) install(ctx context.Context, sess core.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.session = sess
	m.wg.Add(1)
	go m.watch(ctx, sess)
	return true
}

// watch waits for sess to close, clears it, and schedules a reconnect.
func (m *Manager) watch(ctx context.Context, sess core.Session) {
	defer m.wg.Done()

	var reason error
	select {
	case r, ok := <-sess.NotifyClose():
		if ok {
			reason = r
		}
	case <-ctx.Done():
		return
	}

	m.mu.Lock()
	if m.session == sess {
		m.session = nil
	}
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return
	}
	if reason != nil {
		m.logger.ErrorContext(ctx, "broker connection closed", "error", reason)
	} else {
		m.logger.WarnContext(ctx, "broker connection closed")
	}

	if !sleep(ctx, m.reconnectDelay) {
		return
	}
	m.logger.InfoContext(ctx, "reconnecting to broker", "delay", m.reconnectDelay)
	if _, err := m.Connect(ctx); err != nil && !errors.Is(err, ErrConnectInProgress) {
		m.logger.ErrorContext(ctx, "broker reconnect failed", "error", err)
	}
}

// sleep waits for d or ctx cancellation and reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
