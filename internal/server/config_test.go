package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/game"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hotelling.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.Equal(t, game.DefaultParams(), cfg.Params())
	assert.Equal(t, 5*time.Second, cfg.ShutdownGrace())
	assert.Equal(t, BackupFile, cfg.Backup.Kind)

	s := cfg.Session()
	assert.True(t, s.ShuffleRoles)
	assert.True(t, s.AutoStart)
	assert.Empty(t, s.Roster)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server {
  address = "0.0.0.0"
  port    = 9000
}

game {
  n_customers      = 4
  n_prices         = 6
  exploration_cost = 0
  seed             = 99
  shuffle_roles    = false
  auto_start       = false
}

backup {
  kind = "sqlite"
  path = "lab.db"
}

bot {
  policy        = "random"
  poll_interval = "50ms"
}

device "tablet-01" {
  role = "firm"
}

device "robot-01" {
  role = "customer"
  bot  = true
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Address())
	p := cfg.Params()
	assert.Equal(t, 2, p.Firms)
	assert.Equal(t, 4, p.Customers)
	assert.Equal(t, 5, p.Positions)
	assert.Equal(t, 6, p.Prices)
	assert.Equal(t, 0, p.ExplorationCost)
	assert.Equal(t, 20, p.UtilityConsumption)

	s := cfg.Session()
	assert.Equal(t, int64(99), s.Seed)
	assert.False(t, s.ShuffleRoles)
	assert.False(t, s.AutoStart)
	assert.Equal(t, []RosterEntry{
		{Device: "tablet-01", Role: game.RoleFirm},
		{Device: "robot-01", Role: game.RoleCustomer},
	}, s.Roster)

	bots := cfg.BotDevices()
	require.Len(t, bots, 1)
	assert.Equal(t, "robot-01", bots[0].ID)
	assert.Equal(t, "random", bots[0].Policy)

	poll, err := cfg.Bot.PollDuration()
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, poll)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad grace", func(c *Config) { c.Server.ShutdownGrace = "soon" }},
		{"three firms", func(c *Config) { c.Game.Firms = 3 }},
		{"unknown backup", func(c *Config) { c.Backup.Kind = "tape" }},
		{"bad poll interval", func(c *Config) { c.Bot.PollInterval = "0s" }},
		{"unknown role", func(c *Config) { c.Devices = []DeviceConfig{{ID: "a", Role: "auditor"}} }},
		{"duplicate device", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "a", Role: "firm"}, {ID: "a", Role: "firm"}}
		}},
		{"too many firms", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "a", Role: "firm"}, {ID: "b", Role: "firm"}, {ID: "c", Role: "firm"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigRejectsBadHCL(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(writeConfig(t, `server { port = "eighty" `))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `device "x" {}`))
	assert.Error(t, err, "role is required")
}

func TestOpenBackup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.Backup.Dir = dir
	store, err := cfg.OpenBackup(at, "")
	require.NoError(t, err)
	fs, ok := store.(*backup.FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "xp_26-05-04_03-02-01.json"), fs.Path())

	cfg.Backup.Kind = BackupSQLite
	cfg.Backup.Path = filepath.Join(dir, "lab.db")
	store, err = cfg.OpenBackup(at, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.IsType(t, &backup.SQLiteStore{}, store)

	cfg.Backup.Kind = BackupNone
	store, err = cfg.OpenBackup(at, "")
	require.NoError(t, err)
	assert.Equal(t, backup.Discard{}, store)
}
