package game

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/rules"
	"github.com/cellwars/cellwars-server/internal/game/targeting"
)

// Death records a cell destroyed while an action resolved.
type Death struct {
	CellID string
	Owner  board.Player
	Pos    board.Coord
	// Cause is the id of the action application or callback that killed the cell.
	Cause string
}

// Outcome is the result of one successfully applied action, including every
// callback it set off.
type Outcome struct {
	// ID identifies this application; first-level callbacks name it as parent.
	ID           string
	Action       rules.Action
	Deaths       []Death
	Callbacks    []rules.Callback
	Events       []rules.Event
	MasterDamage map[board.Player]int
}

// Pipeline applies actions to a match state in fixed stages: pre-hooks,
// mutation, callback registration, then a drain of the callback queue where
// every callback runs the same stages.
type Pipeline struct {
	logger    *zap.Logger
	spells    *targeting.Registry
	validator *targeting.TargetValidator
	bus       *rules.EventBus
	spawnCost resources.Cost
	preHooks  []PreHook
}

// NewPipeline creates a pipeline that publishes to bus. bus may be nil.
func NewPipeline(logger *zap.Logger, spells *targeting.Registry, bus *rules.EventBus, spawnCost resources.Cost) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:    logger,
		spells:    spells,
		validator: targeting.NewTargetValidator(spells),
		bus:       bus,
		spawnCost: spawnCost,
		preHooks:  DefaultPreHooks(),
	}
}

// Spells returns the spell registry the pipeline casts from.
func (p *Pipeline) Spells() *targeting.Registry {
	return p.spells
}

// SpawnCost returns what a spawn charges.
func (p *Pipeline) SpawnCost() resources.Cost {
	return p.spawnCost
}

// Apply runs action against s. Expected rejections (unaffordable, unknown
// spell, bad target) are returned before anything changes. Any failure after
// that, including a panic, restores s to how it was before the call and is
// reported as an internal processing failure.
func (p *Pipeline) Apply(s *State, action rules.Action) (out *Outcome, err error) {
	if err := p.precheck(s, action); err != nil {
		return nil, err
	}

	bm := s.bookmark()
	r := &run{
		p:     p,
		s:     s,
		queue: rules.NewCallbackQueue(),
		out: &Outcome{
			ID:           uuid.NewString(),
			Action:       action,
			MasterDamage: make(map[board.Player]int),
		},
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err == nil {
			return
		}
		s.restore(bm)
		p.logger.Error("action failed, state restored",
			zap.String("match_id", s.MatchID),
			zap.String("action", action.Key()),
			zap.Int("turn", s.Turn.TurnNumber()),
			zap.Error(err),
		)
		out = nil
		err = apperrors.Wrap(apperrors.CodeInternalProcessingFailure, "apply "+string(action.Kind()), err)
	}()

	if err = r.applyAction(action, true); err != nil {
		return nil, err
	}
	if err = r.queue.Drain(r.applyCallback); err != nil {
		return nil, err
	}

	s.Turn.Record(action, r.cellID)
	p.publish(s, r.out)

	p.logger.Debug("action applied",
		zap.String("match_id", s.MatchID),
		zap.String("action", action.Key()),
		zap.Int("turn", s.Turn.TurnNumber()),
		zap.Int("deaths", len(r.out.Deaths)),
		zap.Int("callbacks", len(r.out.Callbacks)),
	)
	return r.out, nil
}

func (p *Pipeline) precheck(s *State, action rules.Action) error {
	if action == nil {
		return apperrors.New(apperrors.CodeInvalidAction, "no action")
	}
	pool := s.Pool(action.Actor())
	if pool == nil {
		return apperrors.New(apperrors.CodeInvalidAction, "unknown player "+action.Actor().String())
	}

	switch a := action.(type) {
	case rules.Movement, rules.Attack:
		return nil
	case rules.Spawn:
		return affordable(pool, p.spawnCost, "spawn")
	case rules.SpellCast:
		spell, err := p.spells.Lookup(a.Spell)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidAction, "cast", err)
		}
		if pool.Charges(string(a.Spell)) <= 0 {
			return apperrors.WithMetadata(apperrors.CodeInsufficientResource, "no charges left",
				map[string]string{"resource": "charges", "spell": string(a.Spell)})
		}
		if err := affordable(pool, spell.Cost(), string(a.Spell)); err != nil {
			return err
		}
		if err := p.validator.ValidateTarget(a.Spell, s.Board, a.Player, a.Dest); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidAction, "cast", err)
		}
		return nil
	default:
		return apperrors.New(apperrors.CodeInvalidAction, fmt.Sprintf("unknown action %T", action))
	}
}

func affordable(pool *resources.Pool, cost resources.Cost, what string) error {
	switch {
	case pool.Mana() < cost.Mana:
		return apperrors.WithMetadata(apperrors.CodeInsufficientResource, what+": not enough mana",
			map[string]string{"resource": "mana"})
	case pool.Stamina() < cost.Stamina:
		return apperrors.WithMetadata(apperrors.CodeInsufficientResource, what+": not enough stamina",
			map[string]string{"resource": "stamina"})
	}
	return nil
}

func (p *Pipeline) publish(s *State, out *Outcome) {
	if p.bus == nil {
		return
	}
	for _, ev := range out.Events {
		p.bus.Publish(ev)
	}
	ev := rules.NewEvent(rules.EventActionApplied, out.ID, out.Action.Actor(), out.Action.Target())
	ev.Turn = s.Turn.TurnNumber()
	ev.ActionKey = out.Action.Key()
	ev.Amount = len(out.Deaths)
	ev.Metadata["kind"] = string(out.Action.Kind())
	p.bus.Publish(ev)
}

// run is the working set of one Apply call. It also serves as the spell
// context, so nested spawns join the same callback queue.
type run struct {
	p      *Pipeline
	s      *State
	out    *Outcome
	queue  *rules.CallbackQueue
	fresh  []rules.Event
	cellID string
}

var _ targeting.Context = (*run)(nil)

func (r *run) Board() *board.Board { return r.s.Board }
func (r *run) Rand() *rand.Rand    { return r.s.Rand() }

// Spawn is the cost-free nested spawn used by spells. It skips the pre-hooks
// but goes through mutation and callback registration like any spawn.
func (r *run) Spawn(p board.Player, at board.Coord) error {
	return r.applyAction(rules.Spawn{Player: p, Dest: at}, false)
}

func (r *run) applyAction(action rules.Action, topLevel bool) error {
	if topLevel {
		for _, hook := range r.p.preHooks {
			hook(r.s, action)
		}
	}

	var err error
	switch a := action.(type) {
	case rules.Movement:
		err = r.move(a)
	case rules.Attack:
		err = r.attack(a)
	case rules.Spawn:
		err = r.spawn(a, topLevel)
	case rules.SpellCast:
		err = r.cast(a)
	default:
		err = fmt.Errorf("unknown action %T", action)
	}
	if err != nil {
		return err
	}
	r.register()
	return nil
}

func (r *run) applyCallback(cb rules.Callback) error {
	var err error
	switch c := cb.(type) {
	case rules.MineExplosion:
		err = r.explode(c)
	default:
		err = fmt.Errorf("unknown callback %T", cb)
	}
	if err != nil {
		return fmt.Errorf("%s at %s: %w", cb.CallbackKind(), cb.Trigger(), err)
	}
	r.register()
	return nil
}

// register hands the events of the last mutation to the triggers and queues
// whatever callbacks they produce, in discovery order.
func (r *run) register() {
	events := r.fresh
	r.fresh = nil
	for _, ev := range events {
		r.out.Events = append(r.out.Events, ev)
		for _, cb := range r.s.Triggers.Handle(ev) {
			if r.queue.Push(cb) {
				r.out.Callbacks = append(r.out.Callbacks, cb)
			}
		}
	}
}

func (r *run) emit(t rules.EventType, source string, p board.Player, pos board.Coord, cellID string) *rules.Event {
	ev := rules.NewEvent(t, source, p, pos)
	ev.CellID = cellID
	ev.Turn = r.s.Turn.TurnNumber()
	r.fresh = append(r.fresh, ev)
	return &r.fresh[len(r.fresh)-1]
}

func (r *run) move(a rules.Movement) error {
	b := r.s.Board
	src := b.Get(a.Origin)
	if src == nil || !src.OwnedBy(a.Player) {
		return fmt.Errorf("no %s cell at %s", a.Player, a.Origin)
	}
	r.cellID = src.ID
	if err := b.Move(a.Origin, a.Dest); err != nil {
		return err
	}
	r.emit(rules.EventCellLanded, r.out.ID, a.Player, a.Dest, r.cellID)
	return nil
}

// attack resolves one strike. A shielded target only loses its shield.
// Otherwise the target takes a hit and, unless the strike came from range,
// so does the attacker.
func (r *run) attack(a rules.Attack) error {
	b := r.s.Board
	src, dst := b.Get(a.Origin), b.Get(a.Dest)
	if src == nil || !src.OwnedBy(a.Player) {
		return fmt.Errorf("no %s cell at %s", a.Player, a.Origin)
	}
	if dst == nil || !dst.OwnedBy(a.Player.Opponent()) {
		return fmt.Errorf("no enemy cell at %s", a.Dest)
	}
	r.cellID = src.ID

	res, err := r.hit(a.Dest, r.out.ID)
	if err != nil {
		return err
	}
	if res == board.DamageShieldPopped || a.Ranged() {
		return nil
	}
	_, err = r.hit(a.Origin, r.out.ID)
	return err
}

// hit deals one point of damage at pos and books the consequence.
func (r *run) hit(pos board.Coord, source string) (board.DamageResult, error) {
	cell := r.s.Board.Get(pos)
	if cell == nil {
		return board.DamageNone, board.ErrOutOfBounds
	}
	before := *cell
	res, err := r.s.Board.Damage(pos)
	if err != nil {
		return res, err
	}
	switch res {
	case board.DamageShieldPopped:
		r.emit(rules.EventShieldPopped, source, before.Owner, pos, before.ID)
	case board.DamageMasterHit:
		pool := r.s.Pool(before.Owner)
		if pool == nil {
			return res, fmt.Errorf("no resources for %s", before.Owner)
		}
		pool.Damage(rules.AttackDamage)
		r.out.MasterDamage[before.Owner] += rules.AttackDamage
		ev := r.emit(rules.EventMasterDamaged, source, before.Owner, pos, before.ID)
		ev.Amount = pool.HP()
	case board.DamageKilled:
		r.out.Deaths = append(r.out.Deaths, Death{CellID: before.ID, Owner: before.Owner, Pos: pos, Cause: source})
		r.emit(rules.EventCellDied, source, before.Owner, pos, before.ID)
	case board.DamageNone:
	}
	return res, nil
}

func (r *run) spawn(a rules.Spawn, charge bool) error {
	b := r.s.Board
	if cell := b.Get(a.Dest); cell == nil || !cell.Empty() {
		return fmt.Errorf("cannot spawn on %s", a.Dest)
	}
	if charge && !r.s.Pool(a.Player).Spend(r.p.spawnCost) {
		return fmt.Errorf("spawn cost %s not covered", r.p.spawnCost)
	}
	if err := b.Claim(a.Dest, a.Player, board.CoreSpawned); err != nil {
		return err
	}
	r.emit(rules.EventCellLanded, r.out.ID, a.Player, a.Dest, b.Get(a.Dest).ID)
	return nil
}

func (r *run) cast(a rules.SpellCast) error {
	spell, err := r.p.spells.Lookup(a.Spell)
	if err != nil {
		return err
	}
	pool := r.s.Pool(a.Player)
	if !pool.Spend(spell.Cost()) {
		return fmt.Errorf("%s cost %s not covered", a.Spell, spell.Cost())
	}
	if !pool.ConsumeCharge(string(a.Spell)) {
		return fmt.Errorf("no %s charges left", a.Spell)
	}
	ev := r.emit(rules.EventSpellCast, r.out.ID, a.Player, a.Dest, "")
	ev.Metadata["spell"] = string(a.Spell)
	// events from nested spawns must follow the cast
	r.register()
	return spell.Invoke(a.Dest, r, a.Player)
}

// explode detonates a mine: the mine is cleared, the centre and its eight
// neighbours take a hit, and each neighbour is announced as blasted so mines
// there join the chain. A mine already gone makes this a no-op.
func (r *run) explode(m rules.MineExplosion) error {
	b := r.s.Board
	cell := b.Get(m.Center)
	if cell == nil || !cell.HasMine() {
		return nil
	}
	b.ClearMine(m.Center)
	r.emit(rules.EventMineExploded, m.ID(), m.Placer, m.Center, "")

	if _, err := r.hit(m.Center, m.ID()); err != nil {
		return err
	}
	neighbours := b.Neighbours(m.Center)
	for _, pos := range neighbours {
		if _, err := r.hit(pos, m.ID()); err != nil {
			return err
		}
	}
	for _, pos := range neighbours {
		r.emit(rules.EventBlast, m.ID(), board.PlayerNone, pos, "")
	}
	return nil
}
