package main

import (
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/lox/hotelling/cmd/hotelling/shared"
	"github.com/lox/hotelling/internal/bot"
	"github.com/lox/hotelling/internal/server"
)

// BotCmd plays devices against a remote server over HTTP polling.
type BotCmd struct {
	Devices  []string      `arg:"" name:"device" help:"Device identifiers to play"`
	Server   string        `default:"http://localhost:8080" help:"Server base URL"`
	Config   string        `short:"c" default:"hotelling.hcl" help:"HCL file with the game and bot settings"`
	Policy   string        `help:"Policy (random, greedy, lua); overrides config"`
	Script   string        `help:"Lua policy script; overrides config"`
	Seed     int64         `help:"Seed for random policies (0 draws one)"`
	Timeout  time.Duration `default:"10s" help:"HTTP request timeout"`
	LogLevel string        `short:"l" default:"info" help:"Log level (debug|info|warn|error)"`
}

func (c *BotCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Policy != "" {
		cfg.Bot.Policy = c.Policy
	}
	if c.Script != "" {
		cfg.Bot.Script = c.Script
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := shared.SetupLogger(c.LogLevel, "")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := shared.SetupSignalHandler(logger)

	caller := bot.NewHTTPCaller(c.Server, c.Timeout)
	bots, err := buildFleet(adhocDevices(c.Devices, cfg.Bot.Policy), cfg, caller, c.Seed, quartz.NewReal(), logger)
	if err != nil {
		return err
	}
	defer bots.Close()

	logger.Info("Starting bots", "server", c.Server, "devices", len(c.Devices), "policy", cfg.Bot.Policy)
	return bot.RunFleet(ctx, bots.players)
}
