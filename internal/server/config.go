package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/game"
)

// Backup kinds.
const (
	BackupFile   = "file"
	BackupSQLite = "sqlite"
	BackupNone   = "none"
)

// Config represents the complete server configuration
type Config struct {
	Server  *ServerSettings `hcl:"server,block"`
	Game    *GameSettings   `hcl:"game,block"`
	Backup  *BackupSettings `hcl:"backup,block"`
	Bot     *BotSettings    `hcl:"bot,block"`
	Devices []DeviceConfig  `hcl:"device,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address       string `hcl:"address,optional"`
	Port          int    `hcl:"port,optional"`
	LogLevel      string `hcl:"log_level,optional"`
	LogFile       string `hcl:"log_file,optional"`
	ShutdownGrace string `hcl:"shutdown_grace,optional"`
}

// GameSettings are the economic parameters and session options.
type GameSettings struct {
	Firms              int   `hcl:"n_firms,optional"`
	Customers          int   `hcl:"n_customers,optional"`
	Positions          int   `hcl:"n_positions,optional"`
	Prices             int   `hcl:"n_prices,optional"`
	ExplorationCost    *int  `hcl:"exploration_cost,optional"`
	UtilityConsumption int   `hcl:"utility_consumption,optional"`
	Seed               int64 `hcl:"seed,optional"`
	ShuffleRoles       *bool `hcl:"shuffle_roles,optional"`
	AutoStart          *bool `hcl:"auto_start,optional"`
}

// BackupSettings selects where snapshots go.
type BackupSettings struct {
	Kind string `hcl:"kind,optional"`
	// Dir holds one JSON file per session for the file store.
	Dir string `hcl:"dir,optional"`
	// Path is the database file for the sqlite store.
	Path string `hcl:"path,optional"`
}

// BotSettings configure in-process and standalone bots.
type BotSettings struct {
	Policy       string `hcl:"policy,optional"`
	Script       string `hcl:"script,optional"`
	PollInterval string `hcl:"poll_interval,optional"`
	MaxRetry     string `hcl:"max_retry,optional"`
}

// DeviceConfig pre-assigns a device to a role. Devices with bot set are
// played by the server itself.
type DeviceConfig struct {
	ID     string `hcl:"id,label"`
	Role   string `hcl:"role"`
	Bot    bool   `hcl:"bot,optional"`
	Policy string `hcl:"policy,optional"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Game == nil {
		c.Game = &GameSettings{}
	}
	if c.Backup == nil {
		c.Backup = &BackupSettings{}
	}
	if c.Bot == nil {
		c.Bot = &BotSettings{}
	}

	s := c.Server
	if s.Address == "" {
		s.Address = "localhost"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.ShutdownGrace == "" {
		s.ShutdownGrace = "5s"
	}

	def := game.DefaultParams()
	g := c.Game
	if g.Firms == 0 {
		g.Firms = def.Firms
	}
	if g.Customers == 0 {
		g.Customers = def.Customers
	}
	if g.Positions == 0 {
		g.Positions = g.Customers + 1
	}
	if g.Prices == 0 {
		g.Prices = def.Prices
	}
	if g.ExplorationCost == nil {
		ec := def.ExplorationCost
		g.ExplorationCost = &ec
	}
	if g.UtilityConsumption == 0 {
		g.UtilityConsumption = def.UtilityConsumption
	}
	if g.ShuffleRoles == nil {
		shuffle := true
		g.ShuffleRoles = &shuffle
	}
	if g.AutoStart == nil {
		auto := true
		g.AutoStart = &auto
	}

	b := c.Backup
	if b.Kind == "" {
		b.Kind = BackupFile
	}
	if b.Dir == "" {
		b.Dir = "saves"
	}
	if b.Path == "" {
		b.Path = "hotelling.db"
	}

	if c.Bot.Policy == "" {
		c.Bot.Policy = "greedy"
	}
	if c.Bot.PollInterval == "" {
		c.Bot.PollInterval = "250ms"
	}
	if c.Bot.MaxRetry == "" {
		c.Bot.MaxRetry = "30s"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownGrace); err != nil {
		return fmt.Errorf("server: shutdown_grace: %w", err)
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("game: %w", err)
	}

	switch c.Backup.Kind {
	case BackupFile, BackupSQLite, BackupNone:
	default:
		return fmt.Errorf("backup: unknown kind %q", c.Backup.Kind)
	}

	if _, err := c.Bot.PollDuration(); err != nil {
		return err
	}
	if _, err := c.Bot.MaxRetryDuration(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Devices))
	counts := map[game.Role]int{}
	for _, d := range c.Devices {
		if seen[d.ID] {
			return fmt.Errorf("device %s: declared twice", d.ID)
		}
		seen[d.ID] = true
		role, err := game.ParseRole(d.Role)
		if err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		counts[role]++
	}
	p := c.Params()
	if counts[game.RoleFirm] > p.Firms || counts[game.RoleCustomer] > p.Customers {
		return fmt.Errorf("roster lists %d firms and %d customers for %d and %d slots",
			counts[game.RoleFirm], counts[game.RoleCustomer], p.Firms, p.Customers)
	}
	return nil
}

// Address returns the full listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// ShutdownGrace is how long the server keeps answering after the game ended.
func (c *Config) ShutdownGrace() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownGrace)
	return d
}

// Params returns the game parameters.
func (c *Config) Params() game.Params {
	g := c.Game
	return game.Params{
		Firms:              g.Firms,
		Customers:          g.Customers,
		Positions:          g.Positions,
		Prices:             g.Prices,
		ExplorationCost:    *g.ExplorationCost,
		UtilityConsumption: g.UtilityConsumption,
	}
}

// Session returns the description of a new game. Validate first.
func (c *Config) Session() Session {
	s := Session{
		Params:       c.Params(),
		Seed:         c.Game.Seed,
		ShuffleRoles: *c.Game.ShuffleRoles,
		AutoStart:    *c.Game.AutoStart,
	}
	for _, d := range c.Devices {
		role, _ := game.ParseRole(d.Role)
		s.Roster = append(s.Roster, RosterEntry{Device: d.ID, Role: role})
	}
	return s
}

// BotDevices returns the roster devices the server plays itself.
func (c *Config) BotDevices() []DeviceConfig {
	var out []DeviceConfig
	for _, d := range c.Devices {
		if d.Bot {
			if d.Policy == "" {
				d.Policy = c.Bot.Policy
			}
			out = append(out, d)
		}
	}
	return out
}

// OpenBackup opens the configured store. File stores write one file per
// session, named after startedAt; sessionID selects the session the sqlite
// store loads.
func (c *Config) OpenBackup(startedAt time.Time, sessionID string) (backup.Store, error) {
	switch c.Backup.Kind {
	case BackupSQLite:
		store, err := backup.OpenSQLite(c.Backup.Path, sessionID)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackupNone:
		return backup.Discard{}, nil
	default:
		return backup.NewFileStore(backup.FileName(c.Backup.Dir, startedAt)), nil
	}
}

// PollDuration parses poll_interval.
func (b *BotSettings) PollDuration() (time.Duration, error) {
	d, err := time.ParseDuration(b.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("bot: poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("bot: poll_interval must be positive")
	}
	return d, nil
}

// MaxRetryDuration parses max_retry, the longest a bot keeps retrying a
// failing transport.
func (b *BotSettings) MaxRetryDuration() (time.Duration, error) {
	d, err := time.ParseDuration(b.MaxRetry)
	if err != nil {
		return 0, fmt.Errorf("bot: max_retry: %w", err)
	}
	return d, nil
}
