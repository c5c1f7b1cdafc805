package main

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/hotelling/internal/bot"
	"github.com/lox/hotelling/internal/randutil"
	"github.com/lox/hotelling/internal/server"
)

// fleet is a set of players plus the policies that need releasing.
type fleet struct {
	players []*bot.Player
	closers []func()
}

func (f *fleet) Close() {
	for _, c := range f.closers {
		c()
	}
}

// buildFleet creates one player per device. Every player gets its own
// policy instance and random stream.
func buildFleet(devices []server.DeviceConfig, cfg *server.Config, caller bot.Caller, seed int64, clock quartz.Clock, logger *log.Logger) (*fleet, error) {
	poll, err := cfg.Bot.PollDuration()
	if err != nil {
		return nil, err
	}
	maxRetry, err := cfg.Bot.MaxRetryDuration()
	if err != nil {
		return nil, err
	}

	rng, seed := randutil.New(seed)
	logger.Debug("Bot seed", "seed", seed)

	params := cfg.Params()
	f := &fleet{}
	for _, d := range devices {
		policy, err := bot.NewPolicy(d.Policy, rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())), cfg.Bot.Script)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		if lp, ok := policy.(*bot.LuaPolicy); ok {
			f.closers = append(f.closers, lp.Close)
		}

		f.players = append(f.players, bot.NewPlayer(bot.Config{
			Device:       d.ID,
			Positions:    params.Positions,
			Prices:       params.Prices,
			PollInterval: poll,
			MaxRetry:     maxRetry,
		}, caller, policy, clock, logger))
	}
	return f, nil
}

// adhocDevices describes devices named on the command line.
func adhocDevices(ids []string, policy string) []server.DeviceConfig {
	out := make([]server.DeviceConfig, len(ids))
	for i, id := range ids {
		out[i] = server.DeviceConfig{ID: id, Policy: policy, Bot: true}
	}
	return out
}
