package rules

import (
	"fmt"

	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
)

// ActionKind tags the variants of Action.
type ActionKind string

const (
	ActionMovement  ActionKind = "MOVEMENT"
	ActionAttack    ActionKind = "ATTACK"
	ActionSpawn     ActionKind = "SPAWN"
	ActionSpellCast ActionKind = "SPELL_CAST"
)

// SpellID names a spell.
type SpellID string

// Action is an immutable intent. The set of implementations is closed:
// Movement, Attack, Spawn and SpellCast.
type Action interface {
	Kind() ActionKind
	Actor() board.Player
	// Target is the cell the action lands on.
	Target() board.Coord
	// Cost is charged at apply time.
	Cost() resources.Cost
	// Key identifies the action inside a legal set.
	Key() string
	isAction()
}

// Movement moves the cell at Origin to Target.
type Movement struct {
	Player board.Player
	Origin board.Coord
	Dest   board.Coord
	// CellID is the identity of the moving cell at the time the action was offered.
	CellID string
}

func (m Movement) Kind() ActionKind { return ActionMovement }
func (m Movement) Actor() board.Player { return m.Player }
func (m Movement) Target() board.Coord { return m.Dest }
func (m Movement) Cost() resources.Cost { return resources.Cost{} }
func (m Movement) isAction() {}
func (m Movement) Key() string {
	return fmt.Sprintf("%s:%s:%s>%s", ActionMovement, m.Player, m.Origin, m.Dest)
}

// Attack strikes the cell at Dest from Origin.
type Attack struct {
	Player board.Player
	Origin board.Coord
	Dest   board.Coord
	CellID string
}

func (a Attack) Kind() ActionKind { return ActionAttack }
func (a Attack) Actor() board.Player { return a.Player }
func (a Attack) Target() board.Coord { return a.Dest }
func (a Attack) Cost() resources.Cost { return resources.Cost{} }
func (a Attack) isAction() {}
func (a Attack) Key() string {
	return fmt.Sprintf("%s:%s:%s>%s", ActionAttack, a.Player, a.Origin, a.Dest)
}

// Ranged reports whether the target is out of melee reach.
func (a Attack) Ranged() bool {
	return !board.Adjacent(a.Origin, a.Dest)
}

// Spawn claims an empty cell.
type Spawn struct {
	Player board.Player
	Dest   board.Coord
	Price  resources.Cost
}

func (s Spawn) Kind() ActionKind { return ActionSpawn }
func (s Spawn) Actor() board.Player { return s.Player }
func (s Spawn) Target() board.Coord { return s.Dest }
func (s Spawn) Cost() resources.Cost { return s.Price }
func (s Spawn) isAction() {}
func (s Spawn) Key() string {
	return fmt.Sprintf("%s:%s:%s", ActionSpawn, s.Player, s.Dest)
}

// SpellCast invokes a spell on a target cell.
type SpellCast struct {
	Player board.Player
	Spell  SpellID
	Dest   board.Coord
	Price  resources.Cost
}

func (s SpellCast) Kind() ActionKind { return ActionSpellCast }
func (s SpellCast) Actor() board.Player { return s.Player }
func (s SpellCast) Target() board.Coord { return s.Dest }
func (s SpellCast) Cost() resources.Cost { return s.Price }
func (s SpellCast) isAction() {}
func (s SpellCast) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s", ActionSpellCast, s.Player, s.Spell, s.Dest)
}

// Origin returns the source cell of an action, if it has one.
func Origin(a Action) (board.Coord, bool) {
	switch v := a.(type) {
	case Movement:
		return v.Origin, true
	case Attack:
		return v.Origin, true
	case Spawn, SpellCast:
		return board.Coord{}, false
	default:
		panic(fmt.Sprintf("rules: unknown action %T", a))
	}
}

// ActionSet is an ordered, duplicate-free list of actions.
type ActionSet struct {
	actions []Action
	index   map[string]int
}

// NewActionSet builds a set from actions, dropping duplicates and keeping order.
func NewActionSet(actions ...Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s.add(a)
	}
	return s
}

func (s *ActionSet) add(a Action) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	key := a.Key()
	if _, ok := s.index[key]; ok {
		return
	}
	s.index[key] = len(s.actions)
	s.actions = append(s.actions, a)
}

// Len returns the number of actions.
func (s ActionSet) Len() int {
	return len(s.actions)
}

// Empty reports whether the set holds nothing.
func (s ActionSet) Empty() bool {
	return len(s.actions) == 0
}

// Actions returns a copy of the actions in order.
func (s ActionSet) Actions() []Action {
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Contains reports whether an action with the same key is in the set.
func (s ActionSet) Contains(a Action) bool {
	if a == nil {
		return false
	}
	_, ok := s.index[a.Key()]
	return ok
}

// Find returns the offered action targeting c, preferring the given kind.
func (s ActionSet) Find(kind ActionKind, c board.Coord) (Action, bool) {
	for _, a := range s.actions {
		if a.Kind() == kind && a.Target() == c {
			return a, true
		}
	}
	return nil, false
}

// Keys returns the keys of the set in order.
func (s ActionSet) Keys() []string {
	out := make([]string, len(s.actions))
	for i, a := range s.actions {
		out[i] = a.Key()
	}
	return out
}

// Merge returns a set holding s followed by other.
func (s ActionSet) Merge(other ActionSet) ActionSet {
	out := NewActionSet(s.actions...)
	for _, a := range other.actions {
		out.add(a)
	}
	return out
}

// CallbackKind tags the variants of Callback.
type CallbackKind string

const (
	CallbackMineExplosion CallbackKind = "MINE_EXPLOSION"
)

// Callback is a conditional secondary effect queued after an action or another
// callback resolves. The set of implementations is closed.
type Callback interface {
	CallbackKind() CallbackKind
	// ID identifies this callback; further callbacks it causes name it as parent.
	ID() string
	// Parent is the id of the action or callback that caused this one.
	Parent() string
	// Trigger is the position whose condition fired.
	Trigger() board.Coord
	isCallback()
}

// MineExplosion detonates the mine at Center.
type MineExplosion struct {
	CallbackID string
	ParentID   string
	Center     board.Coord
	// Placer is whoever armed the mine.
	Placer board.Player
}

func (m MineExplosion) CallbackKind() CallbackKind { return CallbackMineExplosion }
func (m MineExplosion) ID() string { return m.CallbackID }
func (m MineExplosion) Parent() string { return m.ParentID }
func (m MineExplosion) Trigger() board.Coord { return m.Center }
func (m MineExplosion) isCallback() {}

// CallbackKey identifies a callback for queue deduplication.
func CallbackKey(cb Callback) string {
	return fmt.Sprintf("%s:%s:%s", cb.CallbackKind(), cb.Parent(), cb.Trigger())
}
