package targeting

import (
	"fmt"

	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/rules"
)

// Diagonal accelerates every cell of a diagonal formation.
type Diagonal struct {
	cost resources.Cost
}

func (s *Diagonal) ID() rules.SpellID    { return SpellDiagonal }
func (s *Diagonal) Cost() resources.Cost { return s.cost }

// PossibleTargets lists every cell that belongs to a diagonal formation.
func (s *Diagonal) PossibleTargets(b *board.Board, p board.Player) []board.Coord {
	return members(DiagonalFormations(b, p))
}

// Invoke accelerates the formation containing target.
func (s *Diagonal) Invoke(target board.Coord, ctx Context, p board.Player) error {
	b := ctx.Board()
	f, ok := FormationAt(DiagonalFormations(b, p), target)
	if !ok {
		return fmt.Errorf("no diagonal formation at %s", target)
	}
	for _, pos := range f {
		if err := b.SetModifier(pos, board.ModAccelerated); err != nil {
			return err
		}
	}
	return nil
}

// Square shields every cell of a square formation.
type Square struct {
	cost resources.Cost
}

func (s *Square) ID() rules.SpellID    { return SpellSquare }
func (s *Square) Cost() resources.Cost { return s.cost }

// PossibleTargets lists every cell that belongs to a square formation.
func (s *Square) PossibleTargets(b *board.Board, p board.Player) []board.Coord {
	return members(SquareFormations(b, p))
}

// Invoke shields the square containing target.
func (s *Square) Invoke(target board.Coord, ctx Context, p board.Player) error {
	b := ctx.Board()
	f, ok := FormationAt(SquareFormations(b, p), target)
	if !ok {
		return fmt.Errorf("no square formation at %s", target)
	}
	for _, pos := range f {
		if err := b.SetModifier(pos, board.ModShielded); err != nil {
			return err
		}
	}
	return nil
}

// Isolation turns a lone cell into an archer.
type Isolation struct {
	cost resources.Cost
}

func (s *Isolation) ID() rules.SpellID    { return SpellIsolation }
func (s *Isolation) Cost() resources.Cost { return s.cost }

// PossibleTargets lists p's non-master cells without an owned neighbour.
func (s *Isolation) PossibleTargets(b *board.Board, p board.Player) []board.Coord {
	var out []board.Coord
	for _, cell := range b.CellsOwnedBy(p) {
		if isolated(b, p, cell) {
			out = append(out, cell.Pos)
		}
	}
	return out
}

func isolated(b *board.Board, p board.Player, cell *board.Cell) bool {
	if cell.Master || !cell.OwnedBy(p) {
		return false
	}
	for _, n := range b.Neighbours(cell.Pos) {
		if b.Get(n).OwnedBy(p) {
			return false
		}
	}
	return true
}

// Invoke grants the archer modifier.
func (s *Isolation) Invoke(target board.Coord, ctx Context, p board.Player) error {
	b := ctx.Board()
	cell := b.Get(target)
	if cell == nil || !isolated(b, p, cell) {
		return fmt.Errorf("cell %s is not isolated", target)
	}
	return b.SetModifier(target, board.ModArcher)
}

// AreaSpawn drops friendly cells around an enemy cell.
type AreaSpawn struct {
	cost resources.Cost
}

func (s *AreaSpawn) ID() rules.SpellID    { return SpellAreaSpawn }
func (s *AreaSpawn) Cost() resources.Cost { return s.cost }

// PossibleTargets lists opponent cells with at least one empty neighbour.
func (s *AreaSpawn) PossibleTargets(b *board.Board, p board.Player) []board.Coord {
	var out []board.Coord
	for _, cell := range b.CellsOwnedBy(p.Opponent()) {
		if len(emptyNeighbours(b, cell.Pos)) > 0 {
			out = append(out, cell.Pos)
		}
	}
	return out
}

// SpawnCount is how many cells an area spawn on target produces.
func (s *AreaSpawn) SpawnCount(target board.Coord, p board.Player) int {
	if board.HomeHalf(p.Opponent(), target) {
		return 3
	}
	return 2
}

// Invoke spawns into random empty neighbours of target through ctx.Spawn.
// Mines set off by these spawns explode only after Invoke returns, so the
// candidates stay empty for the whole loop.
func (s *AreaSpawn) Invoke(target board.Coord, ctx Context, p board.Player) error {
	b := ctx.Board()
	cell := b.Get(target)
	if cell == nil || !cell.OwnedBy(p.Opponent()) {
		return fmt.Errorf("cell %s is not an opponent cell", target)
	}
	candidates := emptyNeighbours(b, target)
	if len(candidates) == 0 {
		return fmt.Errorf("no room around %s", target)
	}
	ctx.Rand().Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	want := s.SpawnCount(target, p)
	spawned := 0
	for _, pos := range candidates {
		if spawned == want {
			break
		}
		if err := ctx.Spawn(p, pos); err != nil {
			return fmt.Errorf("area spawn at %s: %w", pos, err)
		}
		spawned++
	}
	return nil
}

func emptyNeighbours(b *board.Board, c board.Coord) []board.Coord {
	var out []board.Coord
	for _, n := range b.Neighbours(c) {
		if b.Get(n).Empty() {
			out = append(out, n)
		}
	}
	return out
}

// Mine arms a hidden trap on an empty cell.
type Mine struct {
	cost resources.Cost
}

func (s *Mine) ID() rules.SpellID    { return SpellMine }
func (s *Mine) Cost() resources.Cost { return s.cost }

// PossibleTargets lists empty cells that do not hold a mine p can already see.
func (s *Mine) PossibleTargets(b *board.Board, p board.Player) []board.Coord {
	var out []board.Coord
	b.Each(func(c *board.Cell) {
		if c.Empty() && !c.Hidden.VisibleTo(p) {
			out = append(out, c.Pos)
		}
	})
	return out
}

// Invoke places the mine. A cell that already holds the opponent's mine keeps
// it and both sides see it from now on.
func (s *Mine) Invoke(target board.Coord, ctx Context, p board.Player) error {
	b := ctx.Board()
	cell := b.Get(target)
	if cell == nil || !cell.Empty() {
		return fmt.Errorf("cell %s is not empty", target)
	}
	return b.PlaceMine(target, p)
}
