package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/hotelling/internal/protocol"
)

// ErrHubStopped is returned to callers once the hub stopped serving.
var ErrHubStopped = errors.New("server: hub stopped")

// Hub serialises every access to a Router through a single goroutine.
// Transports hand it request lines and block until the reply is ready.
type Hub struct {
	router *Router
	inbox  chan envelope
	logger *log.Logger

	stopped   chan struct{}
	ended     chan struct{}
	endedOnce sync.Once
}

type envelope struct {
	ctx   context.Context
	line  string
	fn    func(context.Context, *Router) error
	reply chan result
}

type result struct {
	line string
	err  error
}

// NewHub wraps router. Call Run before sending requests.
func NewHub(router *Router, logger *log.Logger) *Hub {
	return &Hub{
		router:  router,
		inbox:   make(chan envelope),
		logger:  logger.WithPrefix("hub"),
		stopped: make(chan struct{}),
		ended:   make(chan struct{}),
	}
}

// Run serves requests until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	h.logger.Info("Hub running", "session", h.router.SessionID(), "turn", h.router.Turn(), "phase", h.router.Phase())
	h.checkEnded()

	for {
		select {
		case env := <-h.inbox:
			env.reply <- h.serve(env)
			h.checkEnded()
		case <-ctx.Done():
			h.logger.Info("Hub stopping", "turn", h.router.Turn(), "phase", h.router.Phase())
			return nil
		}
	}
}

func (h *Hub) serve(env envelope) (res result) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("Handler panicked", "line", env.line, "panic", p)
			if env.fn != nil {
				res = result{err: fmt.Errorf("operation panicked: %v", p)}
				return
			}
			res = result{line: protocol.Malformed("internal error handling %q", env.line).Line()}
		}
	}()

	if env.fn != nil {
		return result{err: env.fn(env.ctx, h.router)}
	}
	return result{line: h.router.Handle(env.ctx, env.line)}
}

func (h *Hub) checkEnded() {
	if h.router.Ended() {
		h.endedOnce.Do(func() {
			h.logger.Info("Game over", "turns", h.router.Turn())
			close(h.ended)
		})
	}
}

// Call sends one request line and returns the reply line.
func (h *Hub) Call(ctx context.Context, line string) (string, error) {
	res, err := h.send(ctx, envelope{ctx: ctx, line: line})
	if err != nil {
		return "", err
	}
	return res.line, nil
}

// Do runs fn on the hub goroutine with exclusive access to the router.
func (h *Hub) Do(ctx context.Context, fn func(context.Context, *Router) error) error {
	res, err := h.send(ctx, envelope{ctx: ctx, fn: fn})
	if err != nil {
		return err
	}
	return res.err
}

func (h *Hub) send(ctx context.Context, env envelope) (result, error) {
	env.reply = make(chan result, 1)
	select {
	case h.inbox <- env:
	case <-h.stopped:
		return result{}, ErrHubStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	// The hub always answers an accepted envelope.
	return <-env.reply, nil
}

// Ended is closed once the game is over.
func (h *Hub) Ended() <-chan struct{} { return h.ended }

// Status returns the operator view of the session.
func (h *Hub) Status(ctx context.Context) (Status, error) {
	var st Status
	err := h.Do(ctx, func(_ context.Context, r *Router) error {
		st = r.Status()
		return nil
	})
	return st, err
}
