package game

import (
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/rules"
)

// PreHook runs before an action mutates the board. Hooks run unconditionally
// and in order.
type PreHook func(s *State, a rules.Action)

// DefaultPreHooks are the hooks every top-level action goes through.
func DefaultPreHooks() []PreHook {
	return []PreHook{StaminaHook, ManaBubbleHook}
}

// StaminaHook grants the acting player one stamina.
func StaminaHook(s *State, a rules.Action) {
	if pool := s.Pool(a.Actor()); pool != nil {
		pool.Add(resources.Stamina, 1)
	}
}

// ManaBubbleHook grants one mana when the action targets a mana bubble.
func ManaBubbleHook(s *State, a rules.Action) {
	cell := s.Board.Get(a.Target())
	if cell == nil || cell.Core != board.CoreManaBubble {
		return
	}
	if pool := s.Pool(a.Actor()); pool != nil {
		pool.Add(resources.Mana, 1)
	}
}
