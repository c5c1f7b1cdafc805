package bot

import (
	"context"
	"errors"
	"io"
	rand "math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/game"
	"github.com/lox/hotelling/internal/server"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func testConfig(device string) Config {
	return Config{
		Device:       device,
		Positions:    3,
		Prices:       5,
		PollInterval: time.Millisecond,
		MaxRetry:     time.Second,
	}
}

// scriptedCaller answers calls from a fixed list of replies keyed by method.
type scriptedCaller struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   []string
	fail    int
}

func (c *scriptedCaller) Call(_ context.Context, line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, line)
	if c.fail > 0 {
		c.fail--
		return "", errors.New("connection refused")
	}
	method, _, _ := strings.Cut(line, "/")
	queue := c.replies[method]
	if len(queue) == 0 {
		return "error/game_ended", nil
	}
	c.replies[method] = queue[1:]
	return queue[0], nil
}

func TestPlayerRetriesWaitAndStopsOnGameEnd(t *testing.T) {
	t.Parallel()
	caller := &scriptedCaller{
		fail: 2,
		replies: map[string][]string{
			"ask_init": {
				"error/wait_init/ask_init/c0",
				"reply/reply_init/2/0/customer/1/1/10/0",
			},
			"ask_end_of_init": {"error/wait_init/ask_end_of_init/2/0", "reply/reply_end_of_init/0"},
			"ask_customer_firm_choices": {
				"error/wait/ask_customer_firm_choices/2/0",
				"reply/reply_customer_firm_choices/0/0/2/4/3",
			},
			"ask_customer_choice_recording": {"reply/reply_customer_choice_recording/0/8"},
			"ask_end_of_turn":               {"error/wait/ask_end_of_turn/2/0", "reply/reply_end_of_turn/1/1"},
		},
	}

	p := NewPlayer(testConfig("c0"), caller, GreedyPolicy{}, quartz.NewReal(), testLogger())
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, p.Turn())
	assert.Equal(t, 8, p.cumulative)

	// Two transport failures on the first init, then the scripted exchange.
	assert.Equal(t, []string{
		"ask_init/c0", "ask_init/c0", "ask_init/c0", "ask_init/c0",
		"ask_end_of_init/2/0", "ask_end_of_init/2/0",
		"ask_customer_firm_choices/2/0", "ask_customer_firm_choices/2/0",
		"ask_customer_choice_recording/2/0/1/1",
		"ask_end_of_turn/2/0", "ask_end_of_turn/2/0",
	}, caller.calls)
}

func TestPlayerFailsOnUnexpectedError(t *testing.T) {
	t.Parallel()
	caller := &scriptedCaller{replies: map[string][]string{
		"ask_init": {"error/session_full"},
	}}
	p := NewPlayer(testConfig("late"), caller, GreedyPolicy{}, quartz.NewReal(), testLogger())
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_full")
}

func TestPlayerEndsCleanlyWhenGameAlreadyOver(t *testing.T) {
	t.Parallel()
	caller := &scriptedCaller{replies: map[string][]string{}}
	p := NewPlayer(testConfig("f0"), caller, GreedyPolicy{}, quartz.NewReal(), testLogger())
	require.NoError(t, p.Run(context.Background()))
}

func TestPlayerGivesUpOnDeadServer(t *testing.T) {
	t.Parallel()
	caller := &scriptedCaller{fail: 1 << 30}
	cfg := testConfig("f0")
	cfg.MaxRetry = 20 * time.Millisecond
	p := NewPlayer(cfg, caller, GreedyPolicy{}, quartz.NewReal(), testLogger())
	require.ErrorContains(t, p.Run(context.Background()), "connection refused")
}

func TestPlayerStopsWithContext(t *testing.T) {
	t.Parallel()
	caller := &scriptedCaller{replies: map[string][]string{
		"ask_init": slicesRepeat("error/wait_init/ask_init/f0", 1000),
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p := NewPlayer(testConfig("f0"), caller, GreedyPolicy{}, quartz.NewReal(), testLogger())
	require.ErrorIs(t, p.Run(ctx), context.DeadlineExceeded)
}

func randFor(i int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(i), 9))
}

func slicesRepeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestFleetPlaysFullSession(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	params := game.Params{Firms: 2, Customers: 2, Positions: 3, Prices: 5, ExplorationCost: 1, UtilityConsumption: 10}
	router, err := server.NewRouter(ctx, server.Session{Params: params, Seed: 11, ShuffleRoles: true, AutoStart: true},
		backup.NewMemoryStore(), quartz.NewReal(), testLogger())
	require.NoError(t, err)
	hub := server.NewHub(router, testLogger())

	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(hubCtx)
	}()
	defer func() {
		stopHub()
		<-hubDone
	}()

	var players []*Player
	for i, dev := range []string{"a", "b", "c", "d"} {
		cfg := testConfig(dev)
		var policy Policy = GreedyPolicy{}
		if i%2 == 1 {
			policy = NewRandomPolicy(randFor(i))
		}
		players = append(players, NewPlayer(cfg, hub, policy, quartz.NewReal(), testLogger()))
	}

	fleet := make(chan error, 1)
	go func() { fleet <- RunFleet(ctx, players) }()

	require.Eventually(t, func() bool {
		st, err := hub.Status(ctx)
		return err == nil && st.Snapshot.Turn() >= 3
	}, 20*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Do(ctx, func(ctx context.Context, r *server.Router) error {
		return r.RequestStop(ctx)
	}))
	require.NoError(t, <-fleet)

	select {
	case <-hub.Ended():
	case <-time.After(5 * time.Second):
		t.Fatal("hub never reported the end of the game")
	}

	st, err := hub.Status(ctx)
	require.NoError(t, err)
	snap := st.Snapshot
	require.GreaterOrEqual(t, snap.Turn(), 4)
	last := snap.History[len(snap.History)-1]
	assert.True(t, last.GameEnding)
	for _, p := range players {
		assert.Equal(t, snap.Turn(), p.Turn())
	}

	// Both firms saw the same customers split between them.
	for _, h := range snap.History {
		served := 0
		for _, f := range h.CustomerFirmChoices {
			if f != game.NoFirm {
				served++
			}
		}
		assert.Equal(t, served, h.FirmClients[0]+h.FirmClients[1])
	}
}

func TestHTTPCaller(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ask_init/boom" {
			http.Error(w, "hub stopped", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "reply/echo"+r.URL.Path)
	}))
	defer srv.Close()

	c := NewHTTPCaller(srv.URL+"/", time.Second)
	reply, err := c.Call(context.Background(), "ask_init/tablet")
	require.NoError(t, err)
	assert.Equal(t, "reply/echo/ask_init/tablet", reply)

	_, err = c.Call(context.Background(), "ask_init/boom")
	require.ErrorContains(t, err, "503")
}
