package rules

import (
	"github.com/cellwars/cellwars-server/internal/game/board"
)

// TurnManager tracks the active side, the turn number and what each cell has
// already done this turn. It is not safe for concurrent use.
type TurnManager struct {
	turnNumber int
	active     board.Player
	moves      map[string]int
	attacked   map[string]struct{}
	spellsCast []SpellID
	actions    int
}

// NewTurnManager creates a tracker at turn 1 with first to act.
func NewTurnManager(first board.Player) *TurnManager {
	if !first.Valid() {
		first = board.PlayerOne
	}
	return &TurnManager{
		turnNumber: 1,
		active:     first,
		moves:      make(map[string]int),
		attacked:   make(map[string]struct{}),
	}
}

// TurnNumber returns the current turn number (1-based).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// ActivePlayer returns the side whose turn it is.
func (tm *TurnManager) ActivePlayer() board.Player {
	return tm.active
}

// IsActive reports whether p holds the turn.
func (tm *TurnManager) IsActive(p board.Player) bool {
	return tm.active == p
}

// MoveAllowance is how many steps a cell may take per turn.
func MoveAllowance(cell *board.Cell) int {
	if cell.Modifiers.Has(board.ModAccelerated) {
		return 2
	}
	return 1
}

// MovesUsed returns how many times the cell with id moved this turn.
func (tm *TurnManager) MovesUsed(cellID string) int {
	return tm.moves[cellID]
}

// CanMove reports whether cell has move allowance left.
func (tm *TurnManager) CanMove(cell *board.Cell) bool {
	return tm.moves[cell.ID] < MoveAllowance(cell)
}

// HasAttacked reports whether the cell with id already attacked this turn.
func (tm *TurnManager) HasAttacked(cellID string) bool {
	_, ok := tm.attacked[cellID]
	return ok
}

// SpellsCast returns the spells cast this turn in order.
func (tm *TurnManager) SpellsCast() []SpellID {
	out := make([]SpellID, len(tm.spellsCast))
	copy(out, tm.spellsCast)
	return out
}

// ActionsThisTurn returns how many actions were recorded this turn.
func (tm *TurnManager) ActionsThisTurn() int {
	return tm.actions
}

// Record notes a successfully applied action. cellID is the identity of the
// acting cell after the action resolved; it is ignored for spawns and spells.
func (tm *TurnManager) Record(action Action, cellID string) {
	tm.actions++
	switch a := action.(type) {
	case Movement:
		if cellID != "" {
			tm.moves[cellID]++
		}
	case Attack:
		if cellID != "" {
			tm.attacked[cellID] = struct{}{}
		}
	case SpellCast:
		tm.spellsCast = append(tm.spellsCast, a.Spell)
	case Spawn:
	}
}

// Advance ends the current turn: the number goes up by one, the side flips
// and every per-turn record is cleared. It returns the new turn and side.
func (tm *TurnManager) Advance() (int, board.Player) {
	tm.turnNumber++
	tm.active = tm.active.Opponent()
	tm.moves = make(map[string]int)
	tm.attacked = make(map[string]struct{})
	tm.spellsCast = nil
	tm.actions = 0
	return tm.turnNumber, tm.active
}

// Copy returns an independent copy of the tracker.
func (tm *TurnManager) Copy() *TurnManager {
	cp := &TurnManager{
		turnNumber: tm.turnNumber,
		active:     tm.active,
		moves:      make(map[string]int, len(tm.moves)),
		attacked:   make(map[string]struct{}, len(tm.attacked)),
		spellsCast: append([]SpellID(nil), tm.spellsCast...),
		actions:    tm.actions,
	}
	for id, n := range tm.moves {
		cp.moves[id] = n
	}
	for id := range tm.attacked {
		cp.attacked[id] = struct{}{}
	}
	return cp
}
