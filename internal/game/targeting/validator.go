package targeting

import (
	"fmt"

	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/rules"
)

// TargetValidator checks that a chosen target is one a spell currently offers.
type TargetValidator struct {
	registry *Registry
}

// NewTargetValidator creates a validator over registry.
func NewTargetValidator(registry *Registry) *TargetValidator {
	return &TargetValidator{registry: registry}
}

// ValidateTarget returns an error unless target is among the possible targets
// of spell for p on b.
func (tv *TargetValidator) ValidateTarget(spellID rules.SpellID, b *board.Board, p board.Player, target board.Coord) error {
	if tv == nil || tv.registry == nil {
		return fmt.Errorf("target validator not initialized")
	}
	spell, err := tv.registry.Lookup(spellID)
	if err != nil {
		return err
	}
	if !target.InBounds() {
		return fmt.Errorf("target %s: %w", target, board.ErrOutOfBounds)
	}
	for _, c := range spell.PossibleTargets(b, p) {
		if c == target {
			return nil
		}
	}
	return fmt.Errorf("%s cannot target %s", spellID, target)
}

// HighlightTargets marks the possible targets of a spell on a transient copy of b.
func (tv *TargetValidator) HighlightTargets(spellID rules.SpellID, b *board.Board, p board.Player) (*board.Board, error) {
	spell, err := tv.registry.Lookup(spellID)
	if err != nil {
		return nil, err
	}
	return Highlight(b, spell.PossibleTargets(b, p), board.HintTargetable), nil
}
