package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/interaction"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/rules"
	"github.com/cellwars/cellwars-server/internal/game/targeting"
	"github.com/cellwars/cellwars-server/internal/game/watchers"
	"github.com/cellwars/cellwars-server/internal/repository"
)

// Status represents the lifecycle state of a match
type Status int

const (
	StatusWaitingToStart Status = iota
	StatusOngoing
	StatusEnded
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusWaitingToStart:
		return "WAITING_TO_START"
	case StatusOngoing:
		return "ONGOING"
	case StatusEnded:
		return "ENDED"
	case StatusAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusAborted
}

const persistTimeout = 10 * time.Second

var sides = [2]board.Player{board.PlayerOne, board.PlayerTwo}

// Deps are what a match reports to. Every field is optional.
type Deps struct {
	Logger   *zap.Logger
	Store    repository.ClosureStore
	Notifier Notifier
	Replays  *game.ReplayRecorder
	// OnCleanup runs once the cleanup delay after the end has passed.
	OnCleanup func(matchID string)
	// OnLeft runs when a user's exit grace expired and their seat is given up.
	OnLeft func(matchID, userID string)
}

// inactivity is one side's three countdowns. They run only on that side's turns.
type inactivity struct {
	warning *Countdown
	final   *Countdown
	forfeit *Countdown
}

func (t *inactivity) each(fn func(*Countdown)) {
	fn(t.warning)
	fn(t.final)
	fn(t.forfeit)
}

func (t *inactivity) reset()  { t.each((*Countdown).Start) }
func (t *inactivity) pause()  { t.each((*Countdown).Pause) }
func (t *inactivity) resume() { t.each((*Countdown).Resume) }
func (t *inactivity) stop()   { t.each((*Countdown).Stop) }

// Match is one running game between two users. A single mutex guards
// everything; requests, countdowns and the turn loop all take it.
type Match struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	logger   *zap.Logger
	settings Settings
	deps     Deps

	users     map[board.Player]string
	status    Status
	started   bool
	ready     map[board.Player]bool
	connected map[board.Player]bool

	state      *game.State
	bus        *rules.EventBus
	registry   *rules.WatcherRegistry
	actionLog  *watchers.ActionLogWatcher
	casualties *watchers.CasualtyWatcher
	pipeline   *game.Pipeline
	machines   map[board.Player]*interaction.Machine

	readiness  *Countdown
	inactivity map[board.Player]*inactivity
	exits      map[board.Player]*Countdown
	endTurn    chan int
	stop       chan struct{}
	done       chan struct{}
	closure    *repository.Closure
}

// New creates a match waiting for both users to get ready. Nothing runs until Open.
func New(id, userOne, userTwo string, settings Settings, deps Deps) *Match {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	seed := settings.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger := deps.Logger.With(zap.String("match_id", id))

	bus := rules.NewEventBus()
	registry, actionLog, casualties := watchers.Standard()
	registry.Attach(bus)
	pipeline := game.NewPipeline(logger, targeting.NewRegistry(nil), bus, settings.SpawnCost)

	m := &Match{
		ID:         id,
		CreatedAt:  time.Now(),
		logger:     logger,
		settings:   settings,
		deps:       deps,
		users:      map[board.Player]string{board.PlayerOne: userOne, board.PlayerTwo: userTwo},
		status:     StatusWaitingToStart,
		ready:      make(map[board.Player]bool),
		connected:  make(map[board.Player]bool),
		state:      game.NewState(id, settings.Limits, settings.Inventory, seed),
		bus:        bus,
		registry:   registry,
		actionLog:  actionLog,
		casualties: casualties,
		pipeline:   pipeline,
		machines:   make(map[board.Player]*interaction.Machine),
		inactivity: make(map[board.Player]*inactivity),
		exits:      make(map[board.Player]*Countdown),
		endTurn:    make(chan int, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	m.readiness = NewCountdown(&m.mu, settings.ReadinessWindow, m.readinessExpired)
	for _, p := range sides {
		m.machines[p] = interaction.NewMachine(p, pipeline, logger)
		m.inactivity[p] = &inactivity{
			warning: NewCountdown(&m.mu, settings.InactivityWarning, func() { m.warn(p, WarningFirst) }),
			final:   NewCountdown(&m.mu, settings.InactivityFinal, func() { m.warn(p, WarningFinal) }),
			forfeit: NewCountdown(&m.mu, settings.InactivityForfeit, func() { m.forfeit(p) }),
		}
		m.exits[p] = NewCountdown(&m.mu, settings.ExitGrace, func() { m.exitExpired(p) })
	}
	return m
}

// Open starts the readiness window.
func (m *Match) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusWaitingToStart || m.readiness.Running() {
		return
	}
	m.readiness.Start()
	m.logger.Info("match opened",
		zap.String("player_one", m.users[board.PlayerOne]),
		zap.String("player_two", m.users[board.PlayerTwo]),
		zap.Duration("readiness_window", m.settings.ReadinessWindow),
	)
}

// Status returns the current lifecycle state.
func (m *Match) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Turn returns the current turn number and active side.
func (m *Match) Turn() (int, board.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Turn.TurnNumber(), m.state.Turn.ActivePlayer()
}

// Users returns the user ids of player one and player two.
func (m *Match) Users() (string, string) {
	return m.users[board.PlayerOne], m.users[board.PlayerTwo]
}

// PlayerOf returns the side userID plays, or PlayerNone.
func (m *Match) PlayerOf(userID string) board.Player {
	for _, p := range sides {
		if m.users[p] == userID {
			return p
		}
	}
	return board.PlayerNone
}

// Closure returns the closure record once the match is over.
func (m *Match) Closure() (repository.Closure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closure == nil {
		return repository.Closure{}, false
	}
	return *m.closure, true
}

// Done is closed after the closure record has been handed to the store.
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// Inspect runs fn with the match state under the match lock. fn must not
// keep references to the state.
func (m *Match) Inspect(fn func(s *game.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

// side resolves userID and checks the match is in want. Lifecycle violations
// are logged here and never reach the client.
func (m *Match) side(userID string, want Status) (board.Player, error) {
	p := m.PlayerOf(userID)
	if p == board.PlayerNone {
		return p, apperrors.New(apperrors.CodeUnknownPlayer, "user is not part of this match")
	}
	if m.status != want {
		err := apperrors.New(apperrors.CodeLifecycleViolation, fmt.Sprintf("match is %s, not %s", m.status, want))
		m.logger.Warn("operation ignored",
			zap.String("user", userID),
			zap.Error(err),
		)
		return p, err
	}
	return p, nil
}

// Ready marks userID ready. The match starts once both sides are.
func (m *Match) Ready(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.side(userID, StatusWaitingToStart)
	if err != nil {
		return err
	}
	if m.ready[p] {
		return nil
	}
	m.ready[p] = true
	m.logger.Info("player ready", zap.String("player", p.String()))

	if m.ready[board.PlayerOne] && m.ready[board.PlayerTwo] {
		m.start()
	}
	return nil
}

// SelectCell handles a click on pos by userID.
func (m *Match) SelectCell(userID string, pos board.Coord) (interaction.Result, error) {
	return m.interact(userID, "select_cell", func(mc *interaction.Machine) interaction.Result {
		return mc.SelectCell(m.state, pos)
	})
}

// ToggleSpawn toggles userID's spawn mode.
func (m *Match) ToggleSpawn(userID string) (interaction.Result, error) {
	return m.interact(userID, "toggle_spawn", func(mc *interaction.Machine) interaction.Result {
		return mc.ToggleSpawn(m.state)
	})
}

// SelectSpell arms or disarms spell for userID.
func (m *Match) SelectSpell(userID string, spell rules.SpellID) (interaction.Result, error) {
	return m.interact(userID, "select_spell", func(mc *interaction.Machine) interaction.Result {
		return mc.SelectSpell(m.state, spell)
	})
}

func (m *Match) interact(userID, op string, input func(*interaction.Machine) interaction.Result) (interaction.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.side(userID, StatusOngoing)
	if err != nil {
		return interaction.Result{}, err
	}

	res := input(m.machines[p])
	switch res.Kind {
	case interaction.ResultProcessed:
		m.processed(p, res)
	case interaction.ResultHint:
		n := m.message(KindHint, p, m.state.Snapshot(""))
		n.Board = res.Board
		m.notify(p, n)
	case interaction.ResultError:
		m.logger.Debug("input rejected",
			zap.String("op", op),
			zap.String("player", p.String()),
			zap.Error(res.Err),
		)
		n := m.message(KindError, p, nil)
		n.Err = res.Err
		m.notify(p, n)
	}
	return res, nil
}

// processed reports an applied action to both sides and checks for a winner.
func (m *Match) processed(actor board.Player, res interaction.Result) {
	m.inactivity[actor].reset()

	snap := m.record(res.Outcome.Action.Key())
	m.notifyBoth(KindProcessed, snap, func(n *Notification) {
		n.Action = actionLabel(res.Outcome.Action, n.You)
		n.Deaths = len(res.Outcome.Deaths)
		if n.You == actor {
			n.Board = res.Board
		}
	})

	switch defeated := m.state.Defeated(); len(defeated) {
	case 0:
	case 1:
		m.finish(StatusEnded, repository.ReasonVictory, defeated[0])
	default:
		m.finish(StatusEnded, repository.ReasonDraw, board.PlayerNone)
	}
}

// EndTurn asks the turn loop to end the current turn early. Unlike the
// selection inputs, a rejection is returned rather than notified.
func (m *Match) EndTurn(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.side(userID, StatusOngoing)
	if err != nil {
		return err
	}
	if !m.state.Turn.IsActive(p) {
		return apperrors.New(apperrors.CodeIllegalSelection, "not your turn")
	}

	// senders hold the lock, so after the drain the send cannot block
	select {
	case <-m.endTurn:
	default:
	}
	select {
	case m.endTurn <- m.state.Turn.TurnNumber():
	default:
	}
	return nil
}

// Concede ends the match with userID as loser.
func (m *Match) Concede(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.side(userID, StatusOngoing)
	if err != nil {
		return err
	}
	m.finish(StatusEnded, repository.ReasonConcede, p)
	return nil
}

// Connect attaches userID, cancelling a running exit grace, and sends them
// the current state.
func (m *Match) Connect(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.PlayerOf(userID)
	if p == board.PlayerNone {
		return apperrors.New(apperrors.CodeUnknownPlayer, "user is not part of this match")
	}
	if m.status.Terminal() {
		err := apperrors.New(apperrors.CodeLifecycleViolation, "match is "+m.status.String())
		m.logger.Warn("connect ignored", zap.String("user", userID), zap.Error(err))
		return err
	}

	m.connected[p] = true
	if m.exits[p].Running() {
		m.exits[p].Stop()
		m.logger.Info("player reconnected", zap.String("player", p.String()))
	}
	m.notify(p, m.message(KindState, p, m.state.Snapshot("")))
	return nil
}

// Disconnect detaches userID. During play this starts their exit grace.
func (m *Match) Disconnect(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.PlayerOf(userID)
	if p == board.PlayerNone {
		return apperrors.New(apperrors.CodeUnknownPlayer, "user is not part of this match")
	}
	if m.status.Terminal() {
		return nil
	}
	m.connected[p] = false
	if m.status == StatusOngoing {
		m.exits[p].Start()
		m.logger.Info("player disconnected", zap.String("player", p.String()),
			zap.Duration("grace", m.settings.ExitGrace))
	}
	return nil
}

// start moves a ready match to ONGOING. Lock held.
func (m *Match) start() {
	m.readiness.Stop()
	m.status = StatusOngoing
	m.started = true

	first := m.state.Turn.ActivePlayer()
	m.state.Pool(first).Set(resources.Mana, turnMana(m.state.Turn.TurnNumber(), m.settings.Limits.MaxMana))
	m.publishTurnStarted()
	m.inactivity[first].resume()
	for _, p := range sides {
		if !m.connected[p] {
			m.exits[p].Start()
		}
	}

	if m.deps.Replays != nil {
		m.deps.Replays.Begin(m.ID)
	}
	snap := m.record("start")
	m.notifyBoth(KindStarted, snap, nil)

	go m.runTurns()
	m.logger.Info("match started", zap.String("active", first.String()))
}

// runTurns swaps turns until the match stops.
func (m *Match) runTurns() {
	for {
		m.mu.Lock()
		turn := m.state.Turn.TurnNumber()
		m.mu.Unlock()

		if !m.awaitTurnEnd(turn) {
			return
		}

		m.mu.Lock()
		if m.status != StatusOngoing {
			m.mu.Unlock()
			return
		}
		if m.state.Turn.TurnNumber() == turn {
			m.swapTurn()
		}
		m.mu.Unlock()
	}
}

// awaitTurnEnd waits until turn times out or is ended by its side. It
// returns false once the match stops.
func (m *Match) awaitTurnEnd(turn int) bool {
	timer := time.NewTimer(m.settings.TurnDuration)
	defer timer.Stop()

	for {
		select {
		case <-m.stop:
			return false
		case <-timer.C:
			return true
		case n := <-m.endTurn:
			if n == turn {
				return true
			}
		}
	}
}

// swapTurn hands the turn to the other side. Lock held.
func (m *Match) swapTurn() {
	prev := m.state.Turn.ActivePlayer()
	turn, next := m.state.Turn.Advance()

	pool := m.state.Pool(next)
	pool.Set(resources.Mana, turnMana(turn, m.settings.Limits.MaxMana))
	for _, cell := range m.state.Board.CellsOwnedBy(next) {
		if cell.Core == board.CoreSpawned {
			m.state.Board.ClearCore(cell.Pos)
		}
	}
	for _, cell := range m.state.Board.CellsOwnedBy(prev) {
		if cell.Modifiers.Has(board.ModAccelerated) {
			m.state.Board.ClearModifier(cell.Pos, board.ModAccelerated)
		}
	}

	m.registry.ResetWatchersByScope(rules.WatcherScopeTurn)
	m.publishTurnStarted()
	for _, mc := range m.machines {
		mc.Reset()
	}
	m.inactivity[prev].pause()
	m.inactivity[next].resume()

	m.logger.Debug("turn started",
		zap.Int("turn", turn),
		zap.String("active", next.String()),
		zap.Int("mana", pool.Mana()),
	)

	if m.settings.FatigueTurn > 0 && turn >= m.settings.FatigueTurn {
		pool.Damage(1)
		m.logger.Info("fatigue damage", zap.Int("turn", turn), zap.String("player", next.String()),
			zap.Int("hp", pool.HP()))
		if pool.Dead() {
			m.record("fatigue")
			m.finish(StatusEnded, repository.ReasonFatigue, next)
			return
		}
	}

	snap := m.record("turn")
	m.notifyBoth(KindTurn, snap, nil)
}

func (m *Match) publishTurnStarted() {
	ev := rules.NewEvent(rules.EventTurnStarted, m.ID, m.state.Turn.ActivePlayer(), board.Coord{})
	ev.Turn = m.state.Turn.TurnNumber()
	m.bus.Publish(ev)
}

func (m *Match) readinessExpired() {
	if m.status != StatusWaitingToStart {
		return
	}
	loser := board.PlayerNone
	switch {
	case m.ready[board.PlayerOne] && !m.ready[board.PlayerTwo]:
		loser = board.PlayerTwo
	case m.ready[board.PlayerTwo] && !m.ready[board.PlayerOne]:
		loser = board.PlayerOne
	}
	m.logger.Info("readiness window elapsed", zap.String("penalized", loser.String()))
	m.finish(StatusAborted, repository.ReasonNeverJoined, loser)
}

func (m *Match) warn(p board.Player, level string) {
	if m.status != StatusOngoing {
		return
	}
	m.logger.Info("inactivity warning", zap.String("player", p.String()), zap.String("level", level))
	n := m.message(KindWarning, p, nil)
	n.Warning = level
	m.notify(p, n)
}

func (m *Match) forfeit(p board.Player) {
	if m.status != StatusOngoing {
		return
	}
	m.logger.Info("inactivity forfeit", zap.String("player", p.String()))
	m.finish(StatusEnded, repository.ReasonInactive, p)
}

func (m *Match) exitExpired(p board.Player) {
	if m.status != StatusOngoing {
		return
	}
	user := m.users[p]
	m.connected[p] = false
	m.logger.Info("exit grace expired", zap.String("player", p.String()))
	m.finish(StatusEnded, repository.ReasonLeft, p)
	if m.deps.OnLeft != nil {
		go m.deps.OnLeft(m.ID, user)
	}
}

// finish is the single end transition. Later calls do nothing. Lock held.
func (m *Match) finish(status Status, reason string, loser board.Player) {
	if m.status.Terminal() {
		return
	}
	m.status = status

	m.readiness.Stop()
	for _, p := range sides {
		m.inactivity[p].stop()
		m.exits[p].Stop()
	}
	close(m.stop)

	closure := m.buildClosure(reason, loser)
	m.closure = &closure

	ev := rules.NewEvent(rules.EventMatchEnded, m.ID, loser, board.Coord{})
	ev.Turn = m.state.Turn.TurnNumber()
	ev.Metadata["reason"] = reason
	m.bus.Publish(ev)

	m.notifyBoth(KindEnded, m.record("end:"+reason), func(n *Notification) {
		n.Closure = &closure
	})

	m.logger.Info("match ended",
		zap.String("status", status.String()),
		zap.String("reason", reason),
		zap.String("winner", closure.WinnerID),
		zap.String("loser", closure.LoserID),
		zap.Int("turns", closure.TotalTurns),
	)
	go m.persist(closure)
}

func (m *Match) buildClosure(reason string, loser board.Player) repository.Closure {
	c := repository.Closure{
		MatchID:   m.ID,
		PlayerOne: m.users[board.PlayerOne],
		PlayerTwo: m.users[board.PlayerTwo],
		Reason:    reason,
		EndedAt:   time.Now().UTC(),
		Stats: map[string]int{
			"actions":           m.actionLog.TotalActions(),
			"cells_lost_p1":     m.casualties.Lost(board.PlayerOne),
			"cells_lost_p2":     m.casualties.Lost(board.PlayerTwo),
			"master_damage_p1":  m.casualties.MasterDamage(board.PlayerOne),
			"master_damage_p2":  m.casualties.MasterDamage(board.PlayerTwo),
			"mines_exploded":    m.casualties.MinesExploded(),
			"inventory_left_p1": sumCharges(m.state.Pool(board.PlayerOne)),
			"inventory_left_p2": sumCharges(m.state.Pool(board.PlayerTwo)),
		},
	}
	if m.started {
		c.TotalTurns = m.state.Turn.TurnNumber()
	}
	if loser.Valid() {
		c.LoserID = m.users[loser]
		c.WinnerID = m.users[loser.Opponent()]
	}
	for _, t := range m.actionLog.Log() {
		c.ActionLog = append(c.ActionLog, repository.TurnEntry{
			Turn:    t.Turn,
			Player:  m.users[t.Player],
			Actions: append([]string{}, t.Actions...),
		})
	}
	return c
}

func sumCharges(pool *resources.Pool) int {
	total := 0
	for _, n := range pool.Inventory() {
		total += n
	}
	return total
}

// persist stores the closure and the replay, then schedules cleanup. It runs
// without the match lock.
func (m *Match) persist(c repository.Closure) {
	defer close(m.done)

	if m.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := m.deps.Store.SaveClosure(ctx, c); err != nil {
			m.logger.Error("failed to save closure", zap.Error(err))
		}
		cancel()
	}
	if m.deps.Replays != nil {
		if _, err := m.deps.Replays.Finish(m.ID); err != nil {
			m.logger.Error("failed to save replay", zap.Error(err))
		}
	}
	if m.deps.OnCleanup != nil {
		time.AfterFunc(m.settings.CleanupDelay, func() { m.deps.OnCleanup(m.ID) })
	}
}

// record snapshots the state into the replay, if one is running.
func (m *Match) record(action string) *game.Snapshot {
	snap := m.state.Snapshot(action)
	if m.deps.Replays != nil {
		m.deps.Replays.Record(m.ID, snap)
	}
	return snap
}

func (m *Match) message(kind Kind, p board.Player, snap *game.Snapshot) Notification {
	n := Notification{
		Kind:    kind,
		MatchID: m.ID,
		Status:  m.status,
		Turn:    m.state.Turn.TurnNumber(),
		Active:  m.state.Turn.ActivePlayer(),
		You:     p,
	}
	if snap != nil {
		n.Board = m.state.Board.ViewFor(p)
		n.Players = snap.Players
	}
	return n
}

// notifyBoth sends one notification per side built from the same snapshot.
// It is only called with the lock that made the change still held.
func (m *Match) notifyBoth(kind Kind, snap *game.Snapshot, fill func(*Notification)) {
	checksum := ""
	if sum, err := snap.PublicChecksum(); err != nil {
		m.logger.Error("failed to compute checksum", zap.Error(err))
	} else {
		checksum = sum.Hash
	}
	for _, p := range sides {
		n := m.message(kind, p, snap)
		n.Checksum = checksum
		if fill != nil {
			fill(&n)
		}
		m.notify(p, n)
	}
}

// actionLabel names a for viewer. A concealed spell cast by the other side
// loses its target.
func actionLabel(a rules.Action, viewer board.Player) string {
	if cast, ok := a.(rules.SpellCast); ok && cast.Player != viewer && targeting.Concealed(cast.Spell) {
		return fmt.Sprintf("%s:%s:%s", rules.ActionSpellCast, cast.Player, cast.Spell)
	}
	return a.Key()
}

func (m *Match) notify(p board.Player, n Notification) {
	m.deps.Notifier.Notify(m.users[p], n)
}
