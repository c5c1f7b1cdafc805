package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/game"
	"github.com/lox/hotelling/internal/identity"
	"github.com/lox/hotelling/internal/protocol"
	"github.com/lox/hotelling/internal/randutil"
	"github.com/lox/hotelling/internal/turn"
)

// Session describes a new game.
type Session struct {
	Params       game.Params
	Seed         int64
	ShuffleRoles bool
	AutoStart    bool
	Roster       []RosterEntry
}

// RosterEntry binds a known device to a role before the game starts.
type RosterEntry struct {
	Device string
	Role   game.Role
}

// Router owns every piece of session state and answers request lines. It is
// not safe for concurrent use: the Hub is its only caller.
type Router struct {
	sessionID   string
	params      game.Params
	store       *game.Store
	ids         *identity.Mapper
	machine     *turn.Machine
	initialized []bool
	ready       bool

	backup   backup.Store
	clock    quartz.Clock
	lastSeen []time.Time
	routes   map[string]route
	logger   *log.Logger

	dirty bool
}

// call is a decoded request addressed to a known slot.
type call struct {
	req    protocol.Request
	slot   int
	role   game.Role
	roleID int
	turn   int
}

type route struct {
	// args is the arity after the method, slot and turn included.
	args int
	// role restricts callers; zero admits every role.
	role game.Role
	// gate is the phase the machine must have reached for a live call.
	gate   turn.Phase
	live   func(c call) ([]any, error)
	replay func(c call, h game.Turn) ([]any, error)
}

// NewRouter creates a session and saves its initial snapshot.
func NewRouter(ctx context.Context, s Session, store backup.Store, clock quartz.Clock, logger *log.Logger) (*Router, error) {
	if err := s.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game parameters: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	rng, seed := randutil.New(s.Seed)
	roles := s.Params.Roles(nil)
	if s.ShuffleRoles {
		roles = s.Params.Roles(rng)
	}

	ids := identity.New(roles)
	for _, entry := range s.Roster {
		slot, err := ids.Preassign(entry.Device, entry.Role)
		if err != nil {
			return nil, fmt.Errorf("roster device %q: %w", entry.Device, err)
		}
		logger.Debug("Roster device assigned", "device", entry.Device, "role", entry.Role, "slot", slot)
	}

	r := &Router{
		sessionID:   id.String(),
		params:      s.Params,
		store:       game.NewStore(s.Params, rng),
		ids:         ids,
		machine:     turn.New(logger),
		initialized: make([]bool, s.Params.Agents()),
		ready:       s.AutoStart,
		backup:      store,
		clock:       clock,
		lastSeen:    make([]time.Time, s.Params.Agents()),
		logger:      logger.WithPrefix("router"),
	}
	r.routes = r.buildRoutes()

	r.logger.Info("Session created",
		"session", r.sessionID,
		"seed", seed,
		"firms", s.Params.Firms,
		"customers", s.Params.Customers,
		"auto_start", s.AutoStart)

	if err := r.Save(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// RestoreRouter resumes a session from snap. Later saves go to store.
func RestoreRouter(snap *backup.Snapshot, store backup.Store, clock quartz.Clock, logger *log.Logger) (*Router, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	ids, err := identity.Restore(snap.Identity)
	if err != nil {
		return nil, fmt.Errorf("restore identities: %w", err)
	}
	st, err := game.RestoreStore(snap.Params, snap.Current, snap.History)
	if err != nil {
		return nil, fmt.Errorf("restore turns: %w", err)
	}

	r := &Router{
		sessionID:   snap.SessionID,
		params:      snap.Params,
		store:       st,
		ids:         ids,
		machine:     turn.Restore(snap.Phase, snap.StopRequested, snap.Current.GameEnding, logger),
		initialized: append([]bool(nil), snap.Initialized...),
		ready:       snap.Ready,
		backup:      store,
		clock:       clock,
		lastSeen:    make([]time.Time, snap.Params.Agents()),
		logger:      logger.WithPrefix("router"),
	}
	r.routes = r.buildRoutes()

	r.logger.Info("Session restored",
		"session", r.sessionID,
		"turn", st.Number(),
		"phase", r.machine.Phase(),
		"devices", ids.Assigned())
	return r, nil
}

func (r *Router) buildRoutes() map[string]route {
	return map[string]route{
		protocol.MethodEndOfInit: {
			args: 2, gate: turn.AwaitingActiveMove,
			live: r.endOfInit, replay: r.replayEndOfInit,
		},
		protocol.MethodFirmActiveChoice: {
			args: 4, role: game.RoleFirm, gate: turn.AwaitingActiveMove,
			live: r.firmActiveChoice, replay: r.replayFirmActiveChoice,
		},
		protocol.MethodFirmOpponentChoice: {
			args: 2, role: game.RoleFirm, gate: turn.ActiveMoved,
			live: r.firmOpponentChoice, replay: r.replayFirmOpponentChoice,
		},
		protocol.MethodFirmNClients: {
			args: 2, role: game.RoleFirm, gate: turn.AllReacted,
			live: r.firmNClients, replay: r.replayFirmNClients,
		},
		protocol.MethodCustomerFirmChoices: {
			args: 2, role: game.RoleCustomer, gate: turn.ActiveMoved,
			live: r.customerFirmChoices, replay: r.replayCustomerFirmChoices,
		},
		protocol.MethodCustomerChoice: {
			args: 4, role: game.RoleCustomer, gate: turn.ActiveMoved,
			live: r.customerChoice, replay: r.replayCustomerChoice,
		},
		protocol.MethodEndOfTurn: {
			args: 2, gate: turn.AwaitingActiveMove,
			live: r.endOfTurn, replay: r.replayEndOfTurn,
		},
	}
}

// SessionID identifies the session across restarts.
func (r *Router) SessionID() string { return r.sessionID }

// Phase returns the turn machine's phase.
func (r *Router) Phase() turn.Phase { return r.machine.Phase() }

// Turn returns the number of the turn in progress.
func (r *Router) Turn() int { return r.store.Number() }

// Ended reports whether the game is over.
func (r *Router) Ended() bool { return r.machine.Ended() }

// Handle answers one request line. Protocol failures are encoded in the
// returned line; state changes are saved before it returns. A change that
// could not be saved is answered with a wait so that the client's retry
// saves it again.
func (r *Router) Handle(ctx context.Context, line string) string {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		r.logger.Warn("Malformed request", "line", line, "error", err)
		return protocol.Malformed("%v", err).Line()
	}

	values, err := r.dispatch(req)
	// The save must not depend on the caller still listening.
	if serr := r.flush(context.WithoutCancel(ctx)); serr != nil {
		return protocol.Wait(req).Line()
	}

	if err != nil {
		return r.errorLine(req, err)
	}
	r.logger.Debug("Request served", "request", req, "values", values)
	return protocol.FormatReply(req.Method, values...)
}

func (r *Router) errorLine(req protocol.Request, err error) string {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		perr = protocol.Malformed("%v", err)
	}
	switch perr.Kind {
	case protocol.KindNotReady:
		r.logger.Debug("Gate closed", "request", req, "reason", perr.Reason)
	case protocol.KindGameEnded:
		r.logger.Debug("Request after game end", "request", req)
	default:
		r.logger.Warn("Request rejected", "request", req, "error", perr)
	}
	return perr.Line()
}

func (r *Router) dispatch(req protocol.Request) ([]any, error) {
	if req.Method == protocol.MethodInit {
		return r.initDevice(req)
	}

	rt, ok := r.routes[req.Method]
	if !ok {
		return nil, protocol.Malformed("unknown method %q", req.Method)
	}
	if len(req.Args) != rt.args {
		return nil, protocol.Malformed("%s takes %d arguments, got %d", req.Method, rt.args, len(req.Args))
	}
	for i := range req.Args {
		if _, err := req.Int(i); err != nil {
			return nil, protocol.Malformed("%v", err)
		}
	}

	c, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	if rt.role != 0 && c.role != rt.role {
		return nil, protocol.WrongRole("%s is not allowed for a %s", req.Method, c.role)
	}

	now := r.store.Number()
	switch {
	case c.turn > now:
		return nil, protocol.TimeIsSuperior(c.turn, now)
	case c.turn < 0:
		return nil, protocol.Malformed("negative turn %d", c.turn)
	case r.machine.Ended():
		// Only the closing turn can still be replayed, so that clients
		// learn the game ended.
		if c.turn != now-1 {
			return nil, protocol.GameEnded()
		}
		h, _ := r.store.At(c.turn)
		return rt.replay(c, h)
	case c.turn < now:
		h, _ := r.store.At(c.turn)
		return rt.replay(c, h)
	}

	if !r.machine.Open(rt.gate) {
		return nil, r.wait(req)
	}
	values, err := rt.live(c)
	if err != nil {
		return nil, err
	}
	r.evaluate()
	return values, nil
}

// resolve checks the slot of a numeric request and records that it was seen.
func (r *Router) resolve(req protocol.Request) (call, error) {
	slot, _ := req.Int(0)
	t, _ := req.Int(1)
	if _, ok := r.ids.Device(slot); !ok {
		return call{}, protocol.UnknownSlot(slot)
	}
	role, _ := r.ids.Role(slot)
	r.lastSeen[slot] = r.clock.Now()
	return call{req: req, slot: slot, role: role, roleID: r.ids.RoleID(slot), turn: t}, nil
}

func (r *Router) wait(req protocol.Request) error {
	if r.machine.Phase() == turn.AwaitingInit {
		return protocol.WaitInit(req)
	}
	return protocol.Wait(req)
}

func (r *Router) initDevice(req protocol.Request) ([]any, error) {
	if len(req.Args) != 1 {
		return nil, protocol.Malformed("%s takes 1 argument, got %d", req.Method, len(req.Args))
	}
	if r.machine.Ended() {
		return nil, protocol.GameEnded()
	}

	device, _ := req.Str(0)
	slot, created, err := r.ids.Resolve(device)
	if errors.Is(err, identity.ErrCapacity) {
		return nil, protocol.SessionFull(device)
	}
	if err != nil {
		return nil, err
	}
	if created {
		r.logger.Info("Device joined", "device", device, "slot", slot, "assigned", r.ids.Assigned(), "capacity", r.ids.Capacity())
		r.dirty = true
	}
	if !r.initialized[slot] {
		r.initialized[slot] = true
		r.dirty = true
	}
	r.lastSeen[slot] = r.clock.Now()
	r.evaluate()

	role, _ := r.ids.Role(slot)
	id := r.ids.RoleID(slot)
	cur := r.store.Current
	if role == game.RoleFirm {
		return []any{slot, r.store.Number(), role,
			cur.FirmStatuses[id], cur.FirmPositions[id], cur.FirmPrices[id], cur.FirmCumulativeProfits[id]}, nil
	}
	return []any{slot, r.store.Number(), role,
		r.params.CustomerPosition(id), r.params.ExplorationCost, r.params.UtilityConsumption,
		cur.CustomerCumulativeUtilities[id]}, nil
}

func (r *Router) endOfInit(c call) ([]any, error) {
	return []any{c.turn}, nil
}

func (r *Router) replayEndOfInit(c call, _ game.Turn) ([]any, error) {
	return []any{c.turn}, nil
}

func (r *Router) firmActiveChoice(c call) ([]any, error) {
	cur := &r.store.Current
	if cur.FirmStatuses[c.roleID] != game.StatusActive {
		return nil, protocol.WrongRole("firm %d is passive in turn %d", c.roleID, c.turn)
	}
	position, _ := c.req.Int(2)
	price, _ := c.req.Int(3)
	if !r.params.ValidPosition(position) {
		return nil, protocol.Malformed("position %d outside [0, %d)", position, r.params.Positions)
	}
	if !r.params.ValidPrice(price) {
		return nil, protocol.Malformed("price %d outside [1, %d]", price, r.params.Prices)
	}

	if cur.Reports.ActiveMoved {
		return []any{c.turn}, nil
	}
	cur.FirmPositions[c.roleID] = position
	cur.FirmPrices[c.roleID] = price
	cur.Reports.ActiveMoved = true
	r.dirty = true
	r.logger.Info("Active firm moved", "turn", c.turn, "firm", c.roleID, "position", position, "price", price)
	return []any{c.turn}, nil
}

func (r *Router) replayFirmActiveChoice(c call, h game.Turn) ([]any, error) {
	if h.FirmStatuses[c.roleID] != game.StatusActive {
		return nil, protocol.WrongRole("firm %d was passive in turn %d", c.roleID, c.turn)
	}
	return []any{c.turn}, nil
}

func (r *Router) firmOpponentChoice(c call) ([]any, error) {
	return r.replayFirmOpponentChoice(c, r.store.Current)
}

func (r *Router) replayFirmOpponentChoice(c call, h game.Turn) ([]any, error) {
	opp := h.Opponent(c.roleID)
	return []any{c.turn, h.FirmPositions[opp], h.FirmPrices[opp]}, nil
}

func (r *Router) firmNClients(c call) ([]any, error) {
	cur := &r.store.Current
	if !cur.Reports.FirmResults[c.roleID] {
		cur.Reports.FirmResults[c.roleID] = true
		r.dirty = true
	}
	return []any{c.turn,
		cur.FirmClients[c.roleID], cur.FirmProfits[c.roleID], cur.FirmCumulativeProfits[c.roleID],
		cur.GameEnding}, nil
}

func (r *Router) replayFirmNClients(c call, h game.Turn) ([]any, error) {
	return []any{c.turn,
		h.FirmClients[c.roleID], h.FirmProfits[c.roleID], h.FirmCumulativeProfits[c.roleID],
		h.GameEnding}, nil
}

func (r *Router) customerFirmChoices(c call) ([]any, error) {
	return r.replayCustomerFirmChoices(c, r.store.Current)
}

func (r *Router) replayCustomerFirmChoices(c call, h game.Turn) ([]any, error) {
	return []any{c.turn, h.FirmPositions[0], h.FirmPositions[1], h.FirmPrices[0], h.FirmPrices[1]}, nil
}

func (r *Router) customerChoice(c call) ([]any, error) {
	extraView, _ := c.req.Int(2)
	firm, _ := c.req.Int(3)
	if extraView < 0 || extraView >= r.params.Positions {
		return nil, protocol.Malformed("extra view %d outside [0, %d)", extraView, r.params.Positions)
	}
	if firm != game.NoFirm && (firm < 0 || firm >= r.params.Firms) {
		return nil, protocol.Malformed("firm %d is neither -1 nor a firm index", firm)
	}

	cur := &r.store.Current
	if cur.Reports.CustomerReplied[c.roleID] {
		return []any{c.turn, cur.CustomerUtilities[c.roleID]}, nil
	}
	utility := game.Utility(r.params, *cur, extraView, firm)
	cur.CustomerExtraViews[c.roleID] = extraView
	cur.CustomerFirmChoices[c.roleID] = firm
	cur.CustomerUtilities[c.roleID] = utility
	cur.CustomerCumulativeUtilities[c.roleID] += utility
	cur.Reports.CustomerReplied[c.roleID] = true
	r.dirty = true
	return []any{c.turn, utility}, nil
}

func (r *Router) replayCustomerChoice(c call, h game.Turn) ([]any, error) {
	return []any{c.turn, h.CustomerUtilities[c.roleID]}, nil
}

// endOfTurn is never answered live: the turn a client addresses settles
// only after every client is done with it.
func (r *Router) endOfTurn(c call) ([]any, error) {
	return nil, r.wait(c.req)
}

func (r *Router) replayEndOfTurn(c call, h game.Turn) ([]any, error) {
	return []any{c.turn + 1, h.GameEnding}, nil
}

// evaluate advances the machine as far as the facts allow. Firm results are
// computed once on entering AllReacted so that both firms read the same
// numbers.
func (r *Router) evaluate() {
	for _, tr := range r.machine.Evaluate(facts{r}, r.store) {
		r.dirty = true
		switch tr.To {
		case turn.AllReacted:
			r.computeResults()
		case turn.TurnSettled:
			r.logger.Info("Turn settled", "turn", r.store.Number()-1)
		case turn.GameEnded:
			r.logger.Info("Game ended", "turns", r.store.Number())
		case turn.AwaitingActiveMove:
			if tr.From == turn.AwaitingInit {
				r.logger.Info("All devices initialised, first turn open")
			}
		}
	}
}

func (r *Router) computeResults() {
	cur := &r.store.Current
	for f := range r.params.Firms {
		cur.FirmClients[f] = game.Clients(*cur, f)
		cur.FirmProfits[f] = game.Profit(*cur, f)
		cur.FirmCumulativeProfits[f] += cur.FirmProfits[f]
	}
	cur.GameEnding = r.machine.Closing()
	r.logger.Debug("Firm results computed", "turn", r.store.Number(), "clients", cur.FirmClients, "profits", cur.FirmProfits)
}

// Start sets the ready flag so the first turn can open once every device
// has initialised.
func (r *Router) Start(ctx context.Context) error {
	if r.ready {
		return nil
	}
	r.ready = true
	r.dirty = true
	r.logger.Info("Session started by operator")
	r.evaluate()
	return r.flush(context.WithoutCancel(ctx))
}

// RequestStop ends the game once the running turn settles.
func (r *Router) RequestStop(ctx context.Context) error {
	if r.machine.StopRequested() {
		return nil
	}
	r.machine.RequestStop()
	r.dirty = true
	r.evaluate()
	return r.flush(context.WithoutCancel(ctx))
}

func (r *Router) flush(ctx context.Context) error {
	if !r.dirty {
		return nil
	}
	return r.Save(ctx)
}

// Save writes a snapshot to the backup store.
func (r *Router) Save(ctx context.Context) error {
	if err := r.backup.Save(ctx, r.Snapshot()); err != nil {
		r.logger.Error("Failed to save session", "session", r.sessionID, "error", err)
		return fmt.Errorf("save session: %w", err)
	}
	r.dirty = false
	return nil
}

// Snapshot returns a deep copy of the session state.
func (r *Router) Snapshot() *backup.Snapshot {
	history := make([]game.Turn, len(r.store.History))
	for i, h := range r.store.History {
		history[i] = h.Clone()
	}
	return &backup.Snapshot{
		SessionID:     r.sessionID,
		SavedAt:       r.clock.Now(),
		Params:        r.params,
		Identity:      r.ids.Snapshot(),
		Initialized:   append([]bool(nil), r.initialized...),
		Ready:         r.ready,
		Phase:         r.machine.Phase(),
		StopRequested: r.machine.StopRequested(),
		Current:       r.store.Current.Clone(),
		History:       history,
	}
}

// SlotStatus is what the operator sees of one slot.
type SlotStatus struct {
	Slot        int        `json:"slot"`
	Device      string     `json:"device,omitempty"`
	Role        game.Role  `json:"role"`
	RoleID      int        `json:"role_id"`
	Initialized bool       `json:"initialized"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// Status is the read-only view served to operators.
type Status struct {
	Snapshot *backup.Snapshot `json:"snapshot"`
	Slots    []SlotStatus     `json:"slots"`
}

// Status returns a copy of the session state with per-slot activity.
func (r *Router) Status() Status {
	roles := r.ids.Roles()
	slots := make([]SlotStatus, len(roles))
	for slot, role := range roles {
		device, _ := r.ids.Device(slot)
		s := SlotStatus{
			Slot:        slot,
			Device:      device,
			Role:        role,
			RoleID:      r.ids.RoleID(slot),
			Initialized: r.initialized[slot],
		}
		if seen := r.lastSeen[slot]; !seen.IsZero() {
			s.LastSeen = &seen
		}
		slots[slot] = s
	}
	return Status{Snapshot: r.Snapshot(), Slots: slots}
}

// facts exposes the router's aggregate counts to the turn machine.
type facts struct{ r *Router }

func (f facts) InitDone() bool {
	if !f.r.ready {
		return false
	}
	for _, ok := range f.r.initialized {
		if !ok {
			return false
		}
	}
	return true
}

func (f facts) ActiveMoved() bool        { return f.r.store.Current.Reports.ActiveMoved }
func (f facts) CustomersReplied() int    { return f.r.store.Current.CustomersReplied() }
func (f facts) Customers() int           { return f.r.params.Customers }
func (f facts) FirmResultsFetched() bool { return f.r.store.Current.FirmResultsFetched() }
