package rules

import (
	"sort"

	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
)

// DefaultSpawnCost is what a spawn charges unless configured otherwise.
var DefaultSpawnCost = resources.Cost{Mana: 1}

// SpellTargets is the part of a spell the rule engine needs to offer casts.
type SpellTargets interface {
	ID() SpellID
	Cost() resources.Cost
	// PossibleTargets lists the positions p may cast on, in row-major order.
	// It must not modify b.
	PossibleTargets(b *board.Board, p board.Player) []board.Coord
}

// LegalActions computes what the cell at source may do for player this turn.
// The result depends only on its inputs and is ordered deterministically:
// movements by direction N, E, S, W (nearest first), then attacks.
func LegalActions(player board.Player, source board.Coord, b *board.Board, turn *TurnManager) ActionSet {
	cell := b.Get(source)
	if cell == nil || !cell.OwnedBy(player) || cell.Core == board.CoreSpawned {
		return ActionSet{}
	}

	var out []Action
	if turn.CanMove(cell) {
		for _, dest := range movementTargets(b, cell) {
			out = append(out, Movement{Player: player, Origin: source, Dest: dest, CellID: cell.ID})
		}
	}
	if !turn.HasAttacked(cell.ID) {
		for _, dest := range attackTargets(b, cell) {
			out = append(out, Attack{Player: player, Origin: source, Dest: dest, CellID: cell.ID})
		}
	}
	return NewActionSet(out...)
}

func movementTargets(b *board.Board, cell *board.Cell) []board.Coord {
	var out []board.Coord
	for _, d := range board.OrthogonalDirections() {
		next := cell.Pos.Add(d[0], d[1])
		for {
			c := b.Get(next)
			if c == nil || !c.Empty() {
				break
			}
			out = append(out, next)
			if !cell.Master {
				break
			}
			next = next.Add(d[0], d[1])
		}
	}
	return out
}

func attackTargets(b *board.Board, cell *board.Cell) []board.Coord {
	enemy := cell.Owner.Opponent()
	if cell.Modifiers.Has(board.ModArcher) {
		var out []board.Coord
		for _, c := range b.CellsOwnedBy(enemy) {
			out = append(out, c.Pos)
		}
		return out
	}
	var out []board.Coord
	for _, n := range b.Neighbours(cell.Pos) {
		if b.Get(n).OwnedBy(enemy) {
			out = append(out, n)
		}
	}
	return out
}

// SpawnActions offers one spawn per empty cell 8-adjacent to any cell player
// owns, in row-major order. Affordability is checked when the spawn is applied.
func SpawnActions(player board.Player, b *board.Board, cost resources.Cost) ActionSet {
	var out []Action
	b.Each(func(c *board.Cell) {
		if !c.Empty() {
			return
		}
		for _, n := range b.Neighbours(c.Pos) {
			if b.Get(n).OwnedBy(player) {
				out = append(out, Spawn{Player: player, Dest: c.Pos, Price: cost})
				return
			}
		}
	})
	return NewActionSet(out...)
}

// SpellActions offers a cast per target of every spell player can afford and
// still holds a charge of. Spells are visited in id order.
func SpellActions(player board.Player, b *board.Board, pool *resources.Pool, spells []SpellTargets) ActionSet {
	sorted := append([]SpellTargets(nil), spells...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	var out []Action
	for _, spell := range sorted {
		if pool.Charges(string(spell.ID())) <= 0 || !pool.CanAfford(spell.Cost()) {
			continue
		}
		for _, target := range spell.PossibleTargets(b, player) {
			out = append(out, SpellCast{Player: player, Spell: spell.ID(), Dest: target, Price: spell.Cost()})
		}
	}
	return NewActionSet(out...)
}

// AllLegalActions aggregates every action player may take right now: the
// actions of each owned cell in row-major order, then spawns, then spells.
// It is the entry point for automated deciders.
func AllLegalActions(
	player board.Player,
	b *board.Board,
	turn *TurnManager,
	pool *resources.Pool,
	spells []SpellTargets,
	spawnCost resources.Cost,
) ActionSet {
	var out ActionSet
	for _, cell := range b.CellsOwnedBy(player) {
		out = out.Merge(LegalActions(player, cell.Pos, b, turn))
	}
	out = out.Merge(SpawnActions(player, b, spawnCost))
	if pool != nil {
		out = out.Merge(SpellActions(player, b, pool, spells))
	}
	return out
}

// LethalOpportunity reports whether player's cells can take the enemy master
// down this turn: the number of own cells with a legal attack on it, at one
// damage each, covers enemyHP.
func LethalOpportunity(player board.Player, b *board.Board, turn *TurnManager, enemyHP int) bool {
	master := b.Master(player.Opponent())
	if master == nil {
		return false
	}
	attackers := 0
	for _, cell := range b.CellsOwnedBy(player) {
		set := LegalActions(player, cell.Pos, b, turn)
		if _, ok := set.Find(ActionAttack, master.Pos); ok {
			attackers++
		}
	}
	return attackers*AttackDamage >= enemyHP
}

// AttackDamage is the hp a master loses to one hit.
const AttackDamage = 1
