package server

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func startHub(t *testing.T, s Session) (*Hub, *routerFixture) {
	t.Helper()
	f := newRouterFixture(t, s)
	hub := NewHub(f.router, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, f
}

func TestHubSerialisesConcurrentCallers(t *testing.T) {
	t.Parallel()
	hub, f := startHub(t, Session{Params: testParams(), Seed: 3, AutoStart: true})
	ctx := context.Background()

	var g errgroup.Group
	for i := range 4 {
		g.Go(func() error {
			reply, err := hub.Call(ctx, fmt.Sprintf("ask_init/device-%d", i))
			if err != nil {
				return err
			}
			if len(reply) == 0 {
				return errors.New("empty reply")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	st, err := hub.Status(ctx)
	require.NoError(t, err)
	for _, slot := range st.Slots {
		assert.True(t, slot.Initialized)
		assert.NotEmpty(t, slot.Device)
	}
	assert.Equal(t, 4, f.router.ids.Assigned())
}

func TestHubRecoversFromPanics(t *testing.T) {
	t.Parallel()
	hub, _ := startHub(t, testSession())
	ctx := context.Background()

	err := hub.Do(ctx, func(context.Context, *Router) error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// Still serving.
	reply, err := hub.Call(ctx, "ask_init/f0")
	require.NoError(t, err)
	assert.Contains(t, reply, "reply/reply_init/0/0/firm/")
}

func TestHubSignalsGameEnd(t *testing.T) {
	t.Parallel()
	hub, _ := startHub(t, testSession())
	ctx := context.Background()

	select {
	case <-hub.Ended():
		t.Fatal("game ended before it started")
	default:
	}

	require.NoError(t, hub.Do(ctx, func(ctx context.Context, r *Router) error { return r.RequestStop(ctx) }))
	select {
	case <-hub.Ended():
	case <-time.After(time.Second):
		t.Fatal("hub did not report the end of the game")
	}
}

func TestHubRejectsCallsAfterStop(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, testSession())
	hub := NewHub(f.router, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- hub.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	_, err := hub.Call(context.Background(), "ask_init/f0")
	assert.ErrorIs(t, err, ErrHubStopped)
}
