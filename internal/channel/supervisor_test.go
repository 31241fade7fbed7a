package channel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/protocol"
	"github.com/xiaot623/livedesk/internal/testutil"
	"github.com/xiaot623/livedesk/pkg/logger"
)

var fastBackoff = BackoffOptions{
	InitialInterval: 10 * time.Millisecond,
	MaxInterval:     50 * time.Millisecond,
	Multiplier:      2,
	Jitter:          0.2,
}

func startSupervisor(t *testing.T, srv *testutil.ChatServer) (*Supervisor, *recorder, context.CancelFunc, <-chan error) {
	t.Helper()
	s := NewSupervisor(Options{URL: srv.URL(), OperatorID: "op-1", Credential: "secret"}, fastBackoff, logger.NewNop())
	rec := &recorder{}
	s.Subscribe(rec.event)
	s.OnLifecycle(rec.lifecycle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return s, rec, cancel, done
}

func TestSupervisorReconnectsAfterDrop(t *testing.T) {
	srv := testutil.NewChatServer()
	defer srv.Close()
	srv.SetActiveSessions("s1")

	s, rec, cancel, done := startSupervisor(t, srv)
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, s.Connected, waitFor, 10*time.Millisecond)
	srv.DropAll()

	require.Eventually(t, func() bool { return s.Generations() == 2 && s.Connected() }, waitFor, 10*time.Millisecond)

	// Each generation identifies and receives a fresh snapshot.
	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, waitFor, 10*time.Millisecond)
	assert.Len(t, srv.Identifies(), 2)
	for _, ev := range rec.Events() {
		assert.IsType(t, domain.PresenceSnapshot{}, ev)
	}
	assert.Contains(t, rec.States(), domain.LifecycleDisconnected)
}

func TestSupervisorRetriesUntilServerAccepts(t *testing.T) {
	srv := testutil.NewChatServer()
	defer srv.Close()
	srv.Refuse(true)

	s, rec, cancel, done := startSupervisor(t, srv)
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		n := 0
		for _, st := range rec.States() {
			if st == domain.LifecycleError {
				n++
			}
		}
		return n >= 2
	}, waitFor, 10*time.Millisecond)
	assert.False(t, s.Connected())
	assert.ErrorIs(t, s.Send(&protocol.TypingStart{SessionID: "s1", ChatID: "c1"}), ErrNotConnected)

	srv.Refuse(false)
	require.Eventually(t, s.Connected, waitFor, 10*time.Millisecond)
	assert.NoError(t, s.Send(&protocol.TypingStart{SessionID: "s1", ChatID: "c1"}))
	require.Eventually(t, func() bool { return len(srv.Commands()) == 1 }, waitFor, 10*time.Millisecond)
}

func TestSupervisorRunsConnectedHook(t *testing.T) {
	srv := testutil.NewChatServer()
	defer srv.Close()

	s := NewSupervisor(Options{URL: srv.URL()}, fastBackoff, logger.NewNop())
	var calls atomic.Int32
	s.OnConnected(func(ctx context.Context) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, 10*time.Millisecond)
	srv.DropAll()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("supervisor did not stop")
	}
	assert.False(t, s.Connected())
}

func TestSupervisorSingleLiveGeneration(t *testing.T) {
	srv := testutil.NewChatServer()
	defer srv.Close()

	s, _, cancel, done := startSupervisor(t, srv)
	defer func() {
		cancel()
		<-done
	}()

	for i := 0; i < 3; i++ {
		require.Eventually(t, s.Connected, waitFor, 10*time.Millisecond)
		srv.DropAll()
		require.Eventually(t, func() bool { return s.Generations() == int64(i+2) }, waitFor, 10*time.Millisecond)
	}
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, waitFor, 10*time.Millisecond)
}

func TestBackoffIsCapped(t *testing.T) {
	b := BackoffOptions{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     400 * time.Millisecond,
		Multiplier:      2,
		Jitter:          0.5,
	}.newBackOff()

	for i := 0; i < 20; i++ {
		d := b.NextBackOff()
		assert.Greater(t, d, time.Duration(0))
		// Randomization applies on top of the capped interval.
		assert.LessOrEqual(t, d, 600*time.Millisecond)
	}
}
