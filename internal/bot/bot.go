// Package bot plays sessions over the wire protocol: a Player drives one
// device through every turn and asks a Policy for its moves.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/hotelling/internal/game"
	"github.com/lox/hotelling/internal/protocol"
)

// ErrGameEnded is returned by ask once the server reports the end of the game.
var ErrGameEnded = errors.New("bot: game ended")

// Caller carries one request line to the server and returns the reply line.
// The server's Hub satisfies it for in-process bots.
type Caller interface {
	Call(ctx context.Context, line string) (string, error)
}

// HTTPCaller talks to the polling gateway.
type HTTPCaller struct {
	base   string
	client *http.Client
}

// NewHTTPCaller returns a caller for the server at baseURL, e.g.
// "http://localhost:8080".
func NewHTTPCaller(baseURL string, timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{
		base:   strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCaller) Call(ctx context.Context, line string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+line, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// Config tunes a Player.
type Config struct {
	Device string
	// Positions and Prices bound the moves of a firm.
	Positions int
	Prices    int
	// PollInterval is the pause before re-issuing a call the server asked
	// to wait on.
	PollInterval time.Duration
	// MaxRetry bounds how long transport failures are retried.
	MaxRetry time.Duration
}

// Player drives one device through a session.
type Player struct {
	cfg    Config
	caller Caller
	policy Policy
	clock  quartz.Clock
	logger *log.Logger

	slot   int
	turn   int
	role   game.Role
	status game.Status

	position, price int
	cumulative      int

	opponentKnown                    bool
	opponentPosition, opponentPrice int

	customerPosition   int
	explorationCost    int
	utilityConsumption int
}

// NewPlayer returns a player for cfg.Device.
func NewPlayer(cfg Config, caller Caller, policy Policy, clock quartz.Clock, logger *log.Logger) *Player {
	return &Player{
		cfg:    cfg,
		caller: caller,
		policy: policy,
		clock:  clock,
		logger: logger.WithPrefix("bot").With("device", cfg.Device),
	}
}

// Turn is the next turn the player will play.
func (p *Player) Turn() int { return p.turn }

// Run plays until the game ends or ctx is cancelled. A game that ends is not
// an error.
func (p *Player) Run(ctx context.Context) error {
	err := p.run(ctx)
	if errors.Is(err, ErrGameEnded) {
		p.logger.Info("Game over", "turns", p.turn, "role", p.role, "cumulative", p.cumulative)
		return nil
	}
	return err
}

func (p *Player) run(ctx context.Context) error {
	if err := p.init(ctx); err != nil {
		return err
	}
	if _, err := p.ask(ctx, protocol.MethodEndOfInit, p.slot, p.turn); err != nil {
		return err
	}

	for {
		var err error
		if p.role == game.RoleFirm {
			err = p.playFirm(ctx)
		} else {
			err = p.playCustomer(ctx)
		}
		if err != nil {
			return err
		}

		rep, err := p.ask(ctx, protocol.MethodEndOfTurn, p.slot, p.turn)
		if err != nil {
			return err
		}
		vals, err := rep.Ints()
		if err != nil || len(vals) != 2 {
			return fmt.Errorf("bad end of turn reply %v: %w", rep.Values, err)
		}
		p.turn = vals[0]
		p.status = p.status.Swap()
		if vals[1] == 1 {
			return ErrGameEnded
		}
	}
}

func (p *Player) init(ctx context.Context) error {
	rep, err := p.ask(ctx, protocol.MethodInit, p.cfg.Device)
	if err != nil {
		return err
	}
	if len(rep.Values) != 7 {
		return fmt.Errorf("bad init reply %v", rep.Values)
	}
	role, err := rep.Str(2)
	if err != nil {
		return err
	}
	if p.role, err = game.ParseRole(role); err != nil {
		return err
	}

	if p.slot, err = rep.Int(0); err != nil {
		return err
	}
	if p.turn, err = rep.Int(1); err != nil {
		return err
	}

	first := 3
	if p.role == game.RoleFirm {
		status, _ := rep.Str(3)
		if p.status, err = game.ParseStatus(status); err != nil {
			return err
		}
		first = 4
	}
	var vals []int
	for i := first; i < len(rep.Values); i++ {
		n, err := rep.Int(i)
		if err != nil {
			return err
		}
		vals = append(vals, n)
	}
	if p.role == game.RoleFirm {
		p.position, p.price, p.cumulative = vals[0], vals[1], vals[2]
	} else {
		p.customerPosition, p.explorationCost, p.utilityConsumption, p.cumulative = vals[0], vals[1], vals[2], vals[3]
	}

	p.logger = p.logger.With("slot", p.slot, "role", p.role)
	p.logger.Info("Joined session", "turn", p.turn)
	return nil
}

func (p *Player) playFirm(ctx context.Context) error {
	if p.status == game.StatusActive {
		position, price, err := p.policy.FirmMove(FirmView{
			Turn:             p.turn,
			Position:         p.position,
			Price:            p.price,
			OpponentKnown:    p.opponentKnown,
			OpponentPosition: p.opponentPosition,
			OpponentPrice:    p.opponentPrice,
			Positions:        p.cfg.Positions,
			Prices:           p.cfg.Prices,
		})
		if err != nil {
			return fmt.Errorf("firm move: %w", err)
		}
		if _, err := p.ask(ctx, protocol.MethodFirmActiveChoice, p.slot, p.turn, position, price); err != nil {
			return err
		}
		p.position, p.price = position, price
	}

	rep, err := p.ask(ctx, protocol.MethodFirmOpponentChoice, p.slot, p.turn)
	if err != nil {
		return err
	}
	opp, err := rep.Ints()
	if err != nil || len(opp) != 3 {
		return fmt.Errorf("bad opponent reply %v: %w", rep.Values, err)
	}
	p.opponentPosition, p.opponentPrice, p.opponentKnown = opp[1], opp[2], true

	rep, err = p.ask(ctx, protocol.MethodFirmNClients, p.slot, p.turn)
	if err != nil {
		return err
	}
	res, err := rep.Ints()
	if err != nil || len(res) != 5 {
		return fmt.Errorf("bad result reply %v: %w", rep.Values, err)
	}
	p.cumulative = res[3]
	p.logger.Debug("Turn result", "turn", p.turn, "status", p.status, "clients", res[1], "profit", res[2], "cumulative", res[3])
	return nil
}

func (p *Player) playCustomer(ctx context.Context) error {
	rep, err := p.ask(ctx, protocol.MethodCustomerFirmChoices, p.slot, p.turn)
	if err != nil {
		return err
	}
	offer, err := rep.Ints()
	if err != nil || len(offer) != 5 {
		return fmt.Errorf("bad offer reply %v: %w", rep.Values, err)
	}

	view, firm, err := p.policy.CustomerChoice(CustomerView{
		Turn:               p.turn,
		Position:           p.customerPosition,
		ExplorationCost:    p.explorationCost,
		UtilityConsumption: p.utilityConsumption,
		FirmPositions:      offer[1:3],
		FirmPrices:         offer[3:5],
		Positions:          p.cfg.Positions,
	})
	if err != nil {
		return fmt.Errorf("customer choice: %w", err)
	}

	rep, err = p.ask(ctx, protocol.MethodCustomerChoice, p.slot, p.turn, view, firm)
	if err != nil {
		return err
	}
	utility, err := rep.Int(1)
	if err != nil {
		return err
	}
	p.cumulative += utility
	p.logger.Debug("Turn result", "turn", p.turn, "extra_view", view, "firm", firm, "utility", utility)
	return nil
}

// ask sends a request and waits out closed gates until it gets a reply.
func (p *Player) ask(ctx context.Context, method string, args ...any) (protocol.Reply, error) {
	req := protocol.NewRequest(method, args...)
	for {
		line, err := p.call(ctx, req.String())
		if err != nil {
			return protocol.Reply{}, err
		}

		rep, err := protocol.ParseReply(line)
		if err == nil {
			if want := protocol.ReplyName(method); rep.Method != want {
				return protocol.Reply{}, fmt.Errorf("%s: got reply %s", method, rep.Method)
			}
			return rep, nil
		}

		var perr *protocol.Error
		if errors.As(err, &perr) {
			switch {
			case perr.Retriable():
				if err := p.sleep(ctx); err != nil {
					return protocol.Reply{}, err
				}
				continue
			case perr.Kind == protocol.KindGameEnded:
				return protocol.Reply{}, ErrGameEnded
			}
		}
		return protocol.Reply{}, fmt.Errorf("%s: %w", req, err)
	}
}

// call retries transport failures with exponential backoff.
func (p *Player) call(ctx context.Context, line string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.PollInterval

	return backoff.Retry(ctx, func() (string, error) {
		return p.caller.Call(ctx, line)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(p.cfg.MaxRetry),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("Server unreachable, retrying", "error", err, "next", next)
		}),
	)
}

func (p *Player) sleep(ctx context.Context) error {
	timer := p.clock.NewTimer(p.cfg.PollInterval, "bot", "poll")
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunFleet runs players until all of them finished. The first failure
// cancels the others.
func RunFleet(ctx context.Context, players []*Player) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, pl := range players {
		g.Go(func() error {
			if err := pl.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", pl.cfg.Device, err)
			}
			return nil
		})
	}
	return g.Wait()
}
