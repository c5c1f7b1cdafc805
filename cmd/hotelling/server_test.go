package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/server"
)

func TestServerOverrides(t *testing.T) {
	t.Parallel()

	cfg := server.DefaultConfig()
	cmd := &ServerCmd{Addr: "0.0.0.0:9090", LogLevel: "debug"}
	require.NoError(t, cmd.applyOverrides(cfg))
	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
	assert.Equal(t, "debug", cfg.Server.LogLevel)

	require.Error(t, (&ServerCmd{Addr: "nohost"}).applyOverrides(cfg))
	require.Error(t, (&ServerCmd{Addr: "host:http"}).applyOverrides(cfg))
}

func TestOpenSavePicksStoreByExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := openSave(dir+"/xp_26-01-01_00-00-00.json", "")
	require.NoError(t, err)
	assert.IsType(t, &backup.FileStore{}, s)

	s, err = openSave(dir+"/lab.db", "")
	require.NoError(t, err)
	assert.IsType(t, &backup.SQLiteStore{}, s)
	require.NoError(t, s.Close())
}

func TestAdhocDevices(t *testing.T) {
	t.Parallel()
	devs := adhocDevices([]string{"t1", "t2"}, "random")
	require.Len(t, devs, 2)
	assert.Equal(t, "t2", devs[1].ID)
	assert.Equal(t, "random", devs[1].Policy)
}
