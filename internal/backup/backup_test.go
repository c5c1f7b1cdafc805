package backup

import (
	"context"
	rand "math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/hotelling/internal/game"
	"github.com/lox/hotelling/internal/identity"
	"github.com/lox/hotelling/internal/turn"
)

func testSnapshot(t *testing.T, session string, turns int) *Snapshot {
	t.Helper()
	p := game.Params{Firms: 2, Customers: 2, Positions: 5, Prices: 4, ExplorationCost: 1, UtilityConsumption: 10}
	store := game.NewStore(p, rand.New(rand.NewPCG(1, 2)))
	for range turns {
		store.Settle(false)
	}

	ids := identity.New(p.Roles(nil))
	_, _, err := ids.Resolve("tablet-1")
	require.NoError(t, err)

	return &Snapshot{
		SessionID:   session,
		SavedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Params:      p,
		Identity:    ids.Snapshot(),
		Initialized: make([]bool, p.Agents()),
		Ready:       true,
		Phase:       turn.AwaitingActiveMove,
		Current:     store.Current,
		History:     store.History,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := FileName(t.TempDir(), time.Date(2026, 3, 1, 10, 4, 5, 0, time.UTC))
	assert.Equal(t, "xp_26-03-01_10-04-05.json", filepath.Base(path))

	s := NewFileStore(path)
	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, s.Save(ctx, testSnapshot(t, "a", 1)))
	want := testSnapshot(t, "a", 3)
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.Equal(t, 3, got.Turn())
	assert.Equal(t, want.Phase, got.Phase)
	assert.Equal(t, want.Current, got.Current)
	assert.Equal(t, want.Identity, got.Identity)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "xp.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshot)
}

func TestSQLiteStoreKeepsEverySave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := OpenSQLite(path, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	for turns := range 3 {
		require.NoError(t, s.Save(ctx, testSnapshot(t, "first", turns)))
	}
	require.NoError(t, s.Save(ctx, testSnapshot(t, "second", 1)))

	latest, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", latest.SessionID)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "second", sessions[0].SessionID)
	assert.Equal(t, "first", sessions[1].SessionID)
	assert.Equal(t, 3, sessions[1].Saves)
	assert.Equal(t, 2, sessions[1].Turn)
}

func TestSQLiteStoreLoadsRequestedSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	w, err := OpenSQLite(path, "")
	require.NoError(t, err)
	require.NoError(t, w.Save(ctx, testSnapshot(t, "first", 4)))
	require.NoError(t, w.Save(ctx, testSnapshot(t, "second", 1)))
	require.NoError(t, w.Close())

	r, err := OpenSQLite(path, "first")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	got, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", got.SessionID)
	assert.Equal(t, 4, got.Turn())

	missing, err := OpenSQLite(path, "nope")
	require.NoError(t, err)
	t.Cleanup(func() { _ = missing.Close() })
	_, err = missing.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestMemoryStoreDoesNotAlias(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	snap := testSnapshot(t, "a", 0)
	require.NoError(t, s.Save(ctx, snap))
	snap.Current.FirmPrices[0] = 99

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, 99, got.Current.FirmPrices[0])
	assert.Equal(t, 1, s.Saves())
}

func TestSnapshotValidate(t *testing.T) {
	t.Parallel()

	snap := testSnapshot(t, "a", 0)
	require.NoError(t, snap.Validate())

	snap.Initialized = snap.Initialized[:1]
	assert.Error(t, snap.Validate())
}
