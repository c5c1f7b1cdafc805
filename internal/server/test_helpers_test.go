package server

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/game"
)

// testLogger creates a logger that discards output for tests
func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// testParams is the smallest interesting session: two firms and two
// customers on a line of three positions.
func testParams() game.Params {
	return game.Params{Firms: 2, Customers: 2, Positions: 3, Prices: 5, ExplorationCost: 1, UtilityConsumption: 10}
}

// testSession keeps roles unshuffled: slots 0 and 1 are firms, 2 and 3 customers.
func testSession() Session {
	return Session{Params: testParams(), Seed: 7, AutoStart: true}
}

type routerFixture struct {
	router *Router
	store  *backup.MemoryStore
	clock  *quartz.Mock
}

func newRouterFixture(t *testing.T, s Session) *routerFixture {
	t.Helper()
	store := backup.NewMemoryStore()
	clock := quartz.NewMock(t)
	r, err := NewRouter(context.Background(), s, store, clock, testLogger())
	require.NoError(t, err)
	return &routerFixture{router: r, store: store, clock: clock}
}

func (f *routerFixture) call(line string) string {
	return f.router.Handle(context.Background(), line)
}

// initAll registers devices f0, f1, c0 and c1 in slot order.
func (f *routerFixture) initAll(t *testing.T) {
	t.Helper()
	for _, dev := range []string{"f0", "f1", "c0", "c1"} {
		require.Contains(t, f.call("ask_init/"+dev), "reply/reply_init/")
	}
}
