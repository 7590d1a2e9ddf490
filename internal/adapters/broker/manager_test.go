package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports/internal/core"
	apperrors "github.com/target/mmk-reports/internal/errors"
	"github.com/target/mmk-reports/internal/mocks"
	"go.uber.org/mock/gomock"
)

// fakeSession is a Session whose close notification the test controls.
type fakeSession struct {
	name   string
	notify chan error
	once   sync.Once
}

func newFakeSession(name string) *fakeSession {
	return &fakeSession{name: name, notify: make(chan error, 1)}
}

func (s *fakeSession) Publish(context.Context, []byte) error { return nil }

func (s *fakeSession) Consume(context.Context) (<-chan core.Delivery, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeSession) NotifyClose() <-chan error { return s.notify }

func (s *fakeSession) Close() error {
	s.drop(nil)
	return nil
}

// drop simulates the broker closing the connection with reason.
func (s *fakeSession) drop(reason error) {
	s.once.Do(func() {
		if reason != nil {
			s.notify <- reason
		}
		close(s.notify)
	})
}

func newTestManager(t *testing.T, dialer core.Dialer, maxRetries int) *Manager {
	t.Helper()
	m, err := NewManager(ManagerOptions{
		Dialer:         dialer,
		MaxRetries:     maxRetries,
		RetryInterval:  time.Millisecond,
		ReconnectDelay: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewManager_Defaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, err := NewManager(ManagerOptions{Dialer: mocks.NewMockDialer(ctrl)})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, m.maxRetries)
	assert.Equal(t, DefaultRetryInterval, m.retryInterval)
	assert.Equal(t, DefaultReconnectDelay, m.reconnectDelay)

	_, err = NewManager(ManagerOptions{})
	require.Error(t, err)
	assert.Panics(t, func() { MustNewManager(ManagerOptions{}) })
}

func TestManager_SessionBeforeConnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newTestManager(t, mocks.NewMockDialer(ctrl), 3)

	_, err := m.Session()
	require.ErrorIs(t, err, ErrSessionUnavailable)
	assert.True(t, apperrors.IsTransientUnavailable(err))
	assert.False(t, m.Connected())
}

func TestManager_ConnectSucceedsAfterFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mocks.NewMockDialer(ctrl)
	sess := newFakeSession("s1")

	// Two failures then success: exactly three dials.
	gomock.InOrder(
		dialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("connection refused")).Times(2),
		dialer.EXPECT().Dial(gomock.Any()).Return(sess, nil).Times(1),
	)

	m := newTestManager(t, dialer, 10)
	got, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	current, err := m.Session()
	require.NoError(t, err)
	assert.Same(t, sess, current)
}

func TestManager_ConnectExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mocks.NewMockDialer(ctrl)
	lastErr := errors.New("connection refused")
	dialer.EXPECT().Dial(gomock.Any()).Return(nil, lastErr).Times(3)

	m := newTestManager(t, dialer, 3)
	_, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectionExhausted(err))
	require.ErrorIs(t, err, lastErr)
	assert.Contains(t, err.Error(), "after 3 attempts")

	_, err = m.Session()
	require.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestManager_ConnectIsSingleFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mocks.NewMockDialer(ctrl)
	sess := newFakeSession("s1")

	entered := make(chan struct{})
	release := make(chan struct{})
	dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(func(context.Context) (core.Session, error) {
		close(entered)
		<-release
		return sess, nil
	}).Times(1)

	m := newTestManager(t, dialer, 3)

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background())
		done <- err
	}()
	<-entered

	_, err := m.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectInProgress, "re-entrant connect returns immediately")

	close(release)
	require.NoError(t, <-done)
	assert.True(t, m.Connected())
}

func TestManager_ReconnectsAfterClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mocks.NewMockDialer(ctrl)
	first := newFakeSession("s1")
	second := newFakeSession("s2")

	gomock.InOrder(
		dialer.EXPECT().Dial(gomock.Any()).Return(first, nil),
		dialer.EXPECT().Dial(gomock.Any()).Return(second, nil),
	)

	m := newTestManager(t, dialer, 3)
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	first.drop(errors.New("connection reset by peer"))

	require.Eventually(t, func() bool {
		s, err := m.Session()
		return err == nil && s == core.Session(second)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_ConnectCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mocks.NewMockDialer(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(func(context.Context) (core.Session, error) {
		cancel()
		return nil, errors.New("refused")
	}).Times(1)

	m, err := NewManager(ManagerOptions{Dialer: dialer, MaxRetries: 5, RetryInterval: time.Hour})
	require.NoError(t, err)

	_, err = m.Connect(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransientUnavailable(err))
	require.ErrorIs(t, err, context.Canceled)
}

func TestManager_CloseStopsReconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mocks.NewMockDialer(ctrl)
	sess := newFakeSession("s1")
	dialer.EXPECT().Dial(gomock.Any()).Return(sess, nil).Times(1)

	m, err := NewManager(ManagerOptions{Dialer: dialer, RetryInterval: time.Millisecond, ReconnectDelay: time.Millisecond})
	require.NoError(t, err)

	_, err = m.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = m.Session()
	require.ErrorIs(t, err, ErrSessionUnavailable)
	_, err = m.Connect(context.Background())
	require.ErrorIs(t, err, ErrSessionUnavailable)
}
