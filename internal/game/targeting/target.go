package targeting

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/rules"
)

// Spell ids. They are part of the client contract.
const (
	SpellDiagonal  rules.SpellID = "diagonal"
	SpellSquare    rules.SpellID = "square"
	SpellIsolation rules.SpellID = "isolation"
	SpellAreaSpawn rules.SpellID = "area_spawn"
	SpellMine      rules.SpellID = "mine"
)

// Concealed reports whether casting id places something only the caster may
// see. The opponent learns that it was cast but not where.
func Concealed(id rules.SpellID) bool {
	return id == SpellMine
}

// Context is what a spell may touch while it resolves. The application
// pipeline implements it on top of the authoritative match state.
type Context interface {
	// Board returns the authoritative board.
	Board() *board.Board
	// Spawn claims at for p through the regular spawn path, free of charge, so
	// landing triggers fire as for any spawn.
	Spawn(p board.Player, at board.Coord) error
	// Rand is the match's random source.
	Rand() *rand.Rand
}

// Spell is one castable effect.
type Spell interface {
	rules.SpellTargets
	// Invoke applies the spell on target for p.
	Invoke(target board.Coord, ctx Context, p board.Player) error
}

// DefaultCosts are the standard spell prices.
func DefaultCosts() map[rules.SpellID]resources.Cost {
	return map[rules.SpellID]resources.Cost{
		SpellDiagonal:  {Mana: 3},
		SpellSquare:    {Mana: 4},
		SpellIsolation: {Mana: 2},
		SpellAreaSpawn: {Mana: 4, Stamina: 2},
		SpellMine:      {Mana: 2},
	}
}

// DefaultInventory is how many casts of each spell a player starts with.
func DefaultInventory() map[string]int {
	return map[string]int{
		string(SpellDiagonal):  2,
		string(SpellSquare):    2,
		string(SpellIsolation): 2,
		string(SpellAreaSpawn): 1,
		string(SpellMine):      3,
	}
}

// Registry maps spell ids to implementations.
type Registry struct {
	spells map[rules.SpellID]Spell
}

// NewRegistry builds the five standard spells. Prices missing from costs use
// the defaults.
func NewRegistry(costs map[rules.SpellID]resources.Cost) *Registry {
	merged := DefaultCosts()
	for id, c := range costs {
		merged[id] = c
	}
	r := &Registry{spells: make(map[rules.SpellID]Spell)}
	r.Register(&Diagonal{cost: merged[SpellDiagonal]})
	r.Register(&Square{cost: merged[SpellSquare]})
	r.Register(&Isolation{cost: merged[SpellIsolation]})
	r.Register(&AreaSpawn{cost: merged[SpellAreaSpawn]})
	r.Register(&Mine{cost: merged[SpellMine]})
	return r
}

// Register adds or replaces a spell.
func (r *Registry) Register(s Spell) {
	r.spells[s.ID()] = s
}

// Get returns the spell with id.
func (r *Registry) Get(id rules.SpellID) (Spell, bool) {
	s, ok := r.spells[id]
	return s, ok
}

// Lookup is Get with an error for unknown ids.
func (r *Registry) Lookup(id rules.SpellID) (Spell, error) {
	s, ok := r.spells[id]
	if !ok {
		return nil, fmt.Errorf("unknown spell %q", id)
	}
	return s, nil
}

// All returns the spells sorted by id.
func (r *Registry) All() []Spell {
	out := make([]Spell, 0, len(r.spells))
	for _, s := range r.spells {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Targets returns the spells as seen by the rule engine.
func (r *Registry) Targets() []rules.SpellTargets {
	all := r.All()
	out := make([]rules.SpellTargets, len(all))
	for i, s := range all {
		out[i] = s
	}
	return out
}

// Highlight returns a transient copy of b with hint set on every position in
// cells. b is never modified.
func Highlight(b *board.Board, cells []board.Coord, hint board.Hint) *board.Board {
	tr := b.CloneAsTransient()
	for _, c := range cells {
		// out-of-bounds coordinates are skipped
		_ = tr.SetHint(c, hint)
	}
	return tr
}

func sortCoords(cs []board.Coord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Row != cs[j].Row {
			return cs[i].Row < cs[j].Row
		}
		return cs[i].Col < cs[j].Col
	})
}
