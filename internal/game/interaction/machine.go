package interaction

import (
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/rules"
)

// Phase is where a player is in the multi-step selection flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOwnCellSelected
	PhaseSpawnPending
	PhaseSpellSelected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseOwnCellSelected:
		return "OWN_CELL_SELECTED"
	case PhaseSpawnPending:
		return "SPAWN_PENDING"
	case PhaseSpellSelected:
		return "SPELL_SELECTED"
	default:
		return fmt.Sprintf("PHASE_%d", int(p))
	}
}

// ResultKind tells the transport how to present a Result.
type ResultKind int

const (
	// ResultHint carries a board with the current selection highlighted.
	ResultHint ResultKind = iota
	// ResultProcessed reports an applied action. Board holds the follow-up hints.
	ResultProcessed
	// ResultError carries a rejection for the selecting player only.
	ResultError
)

// Result is the reply to one input.
type Result struct {
	Kind ResultKind
	// Board is a transient view for the player: foreign mines stripped, hints set.
	Board   *board.Board
	Outcome *game.Outcome
	Err     error
}

// Machine drives one player's selections. It holds the legal set it last
// offered and validates the next click against that set without recomputing
// it. Like the state it reads, a Machine is guarded by the owning match.
type Machine struct {
	player   board.Player
	pipeline *game.Pipeline
	logger   *zap.Logger

	phase    Phase
	selected board.Coord
	spell    rules.SpellID
	legal    rules.ActionSet
}

// NewMachine creates an idle machine for player.
func NewMachine(player board.Player, pipeline *game.Pipeline, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		player:   player,
		pipeline: pipeline,
		logger:   logger.With(zap.String("player", player.String())),
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Selected returns the selected cell while a cell is selected.
func (m *Machine) Selected() (board.Coord, bool) {
	return m.selected, m.phase == PhaseOwnCellSelected
}

// Legal returns the set the machine will validate the next click against.
func (m *Machine) Legal() rules.ActionSet {
	return m.legal
}

// Reset drops any selection. Called on every turn swap.
func (m *Machine) Reset() {
	m.phase = PhaseIdle
	m.selected = board.Coord{}
	m.spell = ""
	m.legal = rules.ActionSet{}
}

// SelectCell handles a click on pos.
func (m *Machine) SelectCell(s *game.State, pos board.Coord) Result {
	if err := m.checkTurn(s); err != nil {
		return errorResult(err)
	}
	cell := s.Board.Get(pos)
	if cell == nil {
		return errorResult(apperrors.New(apperrors.CodeIllegalSelection, "no such cell "+pos.String()))
	}

	switch m.phase {
	case PhaseIdle:
		if !cell.OwnedBy(m.player) {
			return errorResult(apperrors.New(apperrors.CodeIllegalSelection, "select one of your cells"))
		}
		m.selectOwn(s, pos)
		return m.hint(s)

	case PhaseOwnCellSelected:
		switch {
		case pos == m.selected:
			m.Reset()
			return m.hint(s)
		case cell.OwnedBy(m.player):
			return errorResult(apperrors.New(apperrors.CodeIllegalSelection, "a cell is already selected"))
		case cell.OwnedBy(m.player.Opponent()):
			return m.attempt(s, rules.ActionAttack, pos)
		default:
			return m.attempt(s, rules.ActionMovement, pos)
		}

	case PhaseSpawnPending:
		if !cell.Empty() {
			return errorResult(apperrors.New(apperrors.CodeIllegalSelection, "spawn needs an empty cell"))
		}
		return m.attempt(s, rules.ActionSpawn, pos)

	case PhaseSpellSelected:
		return m.attempt(s, rules.ActionSpellCast, pos)

	default:
		return errorResult(apperrors.New(apperrors.CodeIllegalSelection, "unknown phase "+m.phase.String()))
	}
}

// ToggleSpawn enters spawn mode, or leaves it when already there.
func (m *Machine) ToggleSpawn(s *game.State) Result {
	if err := m.checkTurn(s); err != nil {
		return errorResult(err)
	}
	if m.phase == PhaseSpawnPending {
		m.Reset()
		return m.hint(s)
	}
	m.enterSpawn(s)
	return m.hint(s)
}

// SelectSpell arms spell id. Selecting the armed spell again disarms it.
func (m *Machine) SelectSpell(s *game.State, id rules.SpellID) Result {
	if err := m.checkTurn(s); err != nil {
		return errorResult(err)
	}
	if m.phase == PhaseSpellSelected && m.spell == id {
		m.Reset()
		return m.hint(s)
	}

	spell, err := m.pipeline.Spells().Lookup(id)
	if err != nil {
		return errorResult(apperrors.Wrap(apperrors.CodeInvalidAction, "select spell", err))
	}
	pool := s.Pool(m.player)
	if pool.Charges(string(id)) <= 0 {
		return errorResult(apperrors.WithMetadata(apperrors.CodeInsufficientResource, "no charges left",
			map[string]string{"resource": "charges", "spell": string(id)}))
	}
	if err := checkCost(pool.Mana(), pool.Stamina(), spell.Cost().Mana, spell.Cost().Stamina); err != nil {
		return errorResult(err)
	}

	var casts []rules.Action
	for _, target := range spell.PossibleTargets(s.Board, m.player) {
		casts = append(casts, rules.SpellCast{Player: m.player, Spell: id, Dest: target, Price: spell.Cost()})
	}
	m.Reset()
	m.phase = PhaseSpellSelected
	m.spell = id
	m.legal = rules.NewActionSet(casts...)
	return m.hint(s)
}

func (m *Machine) checkTurn(s *game.State) error {
	if !s.Turn.IsActive(m.player) {
		return apperrors.New(apperrors.CodeIllegalSelection, "not your turn")
	}
	return nil
}

// selectOwn selects pos and offers its actions, staying idle when it has none.
func (m *Machine) selectOwn(s *game.State, pos board.Coord) {
	legal := rules.LegalActions(m.player, pos, s.Board, s.Turn)
	m.Reset()
	if legal.Empty() {
		return
	}
	m.phase = PhaseOwnCellSelected
	m.selected = pos
	m.legal = legal
}

func (m *Machine) enterSpawn(s *game.State) {
	m.Reset()
	m.phase = PhaseSpawnPending
	m.legal = rules.SpawnActions(m.player, s.Board, m.pipeline.SpawnCost())
}

// attempt validates a click against the offered set, then the player's
// resources, and only then applies it.
func (m *Machine) attempt(s *game.State, kind rules.ActionKind, pos board.Coord) Result {
	action, ok := m.legal.Find(kind, pos)
	if !ok {
		return errorResult(apperrors.WithMetadata(apperrors.CodeInvalidAction, "invalid action",
			map[string]string{"kind": string(kind), "target": pos.String()}))
	}
	pool := s.Pool(m.player)
	cost := action.Cost()
	if err := checkCost(pool.Mana(), pool.Stamina(), cost.Mana, cost.Stamina); err != nil {
		return errorResult(err)
	}

	out, err := m.pipeline.Apply(s, action)
	if err != nil {
		// the offered set may no longer match the board
		m.Reset()
		return errorResult(err)
	}

	m.followUp(s, action)
	m.logger.Debug("selection applied",
		zap.String("action", action.Key()),
		zap.String("next_phase", m.phase.String()),
	)
	return Result{Kind: ResultProcessed, Board: m.hintBoard(s), Outcome: out}
}

// followUp picks the phase after a successful action. An accelerated cell
// with moves left stays selected, and spawn mode stays on while another spawn
// is possible. Everything else, or a recompute that comes up empty, goes idle.
func (m *Machine) followUp(s *game.State, action rules.Action) {
	switch a := action.(type) {
	case rules.Movement:
		cell := s.Board.Get(a.Dest)
		if cell != nil && cell.OwnedBy(m.player) && cell.Modifiers.Has(board.ModAccelerated) && s.Turn.CanMove(cell) {
			m.selectOwn(s, a.Dest)
			return
		}
	case rules.Spawn:
		if s.Pool(m.player).CanAfford(m.pipeline.SpawnCost()) {
			m.enterSpawn(s)
			if !m.legal.Empty() {
				return
			}
		}
	case rules.Attack, rules.SpellCast:
	}
	m.Reset()
}

func (m *Machine) hint(s *game.State) Result {
	return Result{Kind: ResultHint, Board: m.hintBoard(s)}
}

// hintBoard renders the current selection onto a transient view of s.
func (m *Machine) hintBoard(s *game.State) *board.Board {
	view := s.Board.CloneAsTransient().ViewFor(m.player)
	if m.phase == PhaseOwnCellSelected {
		_ = view.SetHint(m.selected, board.HintSelected)
	}
	for _, a := range m.legal.Actions() {
		_ = view.SetHint(a.Target(), hintFor(a.Kind()))
	}
	return view
}

func hintFor(kind rules.ActionKind) board.Hint {
	switch kind {
	case rules.ActionMovement:
		return board.HintMovable
	case rules.ActionAttack:
		return board.HintAttackable
	case rules.ActionSpawn:
		return board.HintSpawnable
	case rules.ActionSpellCast:
		return board.HintTargetable
	default:
		return board.HintNone
	}
}

func checkCost(mana, stamina, needMana, needStamina int) error {
	switch {
	case mana < needMana:
		return apperrors.WithMetadata(apperrors.CodeInsufficientResource, "insufficient mana",
			map[string]string{"resource": "mana"})
	case stamina < needStamina:
		return apperrors.WithMetadata(apperrors.CodeInsufficientResource, "insufficient stamina",
			map[string]string{"resource": "stamina"})
	}
	return nil
}

func errorResult(err error) Result {
	return Result{Kind: ResultError, Err: err}
}
