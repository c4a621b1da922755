package targeting

import (
	"github.com/cellwars/cellwars-server/internal/game/board"
)

// Formation is a group of owned cells a buff spell applies to as a whole.
type Formation []board.Coord

// Contains reports whether c belongs to the formation.
func (f Formation) Contains(c board.Coord) bool {
	for _, x := range f {
		if x == c {
			return true
		}
	}
	return false
}

// claims tracks which cells already belong to a formation during one
// discovery pass. A fresh tracker is made for every pass.
type claims map[board.Coord]struct{}

func (c claims) has(pos board.Coord) bool {
	_, ok := c[pos]
	return ok
}

func (c claims) take(f Formation) {
	for _, pos := range f {
		c[pos] = struct{}{}
	}
}

var diagonalAxes = [2][2]int{{1, 1}, {1, -1}}

// DiagonalFormations finds the diagonal runs of p's cells. Each owned cell is
// visited in row-major order; for each axis the maximal run through it is
// taken, cells already claimed by an earlier run are cut out, and every
// remaining contiguous piece of length two or more becomes a formation.
// Earlier claims win over length: a cell whose run was partly taken belongs
// to the longest unclaimed piece of that run, not to the whole run.
func DiagonalFormations(b *board.Board, p board.Player) []Formation {
	taken := claims{}
	var out []Formation
	for _, cell := range b.CellsOwnedBy(p) {
		if taken.has(cell.Pos) {
			continue
		}
		for _, axis := range diagonalAxes {
			run := maximalRun(b, p, cell.Pos, axis)
			for _, piece := range unclaimedPieces(run, taken) {
				taken.take(piece)
				out = append(out, piece)
			}
			if taken.has(cell.Pos) {
				break
			}
		}
	}
	return out
}

func maximalRun(b *board.Board, p board.Player, from board.Coord, axis [2]int) []board.Coord {
	start := from
	for {
		prev := start.Add(-axis[0], -axis[1])
		if c := b.Get(prev); c == nil || !c.OwnedBy(p) {
			break
		}
		start = prev
	}
	var run []board.Coord
	for pos := start; ; pos = pos.Add(axis[0], axis[1]) {
		c := b.Get(pos)
		if c == nil || !c.OwnedBy(p) {
			break
		}
		run = append(run, pos)
	}
	return run
}

func unclaimedPieces(run []board.Coord, taken claims) []Formation {
	var (
		out   []Formation
		piece Formation
	)
	flush := func() {
		if len(piece) >= 2 {
			out = append(out, piece)
		}
		piece = nil
	}
	for _, pos := range run {
		if taken.has(pos) {
			flush()
			continue
		}
		piece = append(piece, pos)
	}
	flush()
	return out
}

// SquareFormations finds p's squares. Each unclaimed owned cell, in row-major
// order, is the top-left corner of the largest k×k (k >= 2) square of owned,
// unclaimed cells anchored there.
func SquareFormations(b *board.Board, p board.Player) []Formation {
	taken := claims{}
	var out []Formation
	for _, cell := range b.CellsOwnedBy(p) {
		if taken.has(cell.Pos) {
			continue
		}
		k := 1
		for squareFits(b, p, cell.Pos, k+1, taken) {
			k++
		}
		if k < 2 {
			continue
		}
		var f Formation
		for dr := 0; dr < k; dr++ {
			for dc := 0; dc < k; dc++ {
				f = append(f, cell.Pos.Add(dr, dc))
			}
		}
		taken.take(f)
		out = append(out, f)
	}
	return out
}

func squareFits(b *board.Board, p board.Player, corner board.Coord, k int, taken claims) bool {
	for dr := 0; dr < k; dr++ {
		for dc := 0; dc < k; dc++ {
			pos := corner.Add(dr, dc)
			c := b.Get(pos)
			if c == nil || !c.OwnedBy(p) || taken.has(pos) {
				return false
			}
		}
	}
	return true
}

// FormationAt returns the formation among fs that contains c.
func FormationAt(fs []Formation, c board.Coord) (Formation, bool) {
	for _, f := range fs {
		if f.Contains(c) {
			return f, true
		}
	}
	return nil, false
}

func members(fs []Formation) []board.Coord {
	var out []board.Coord
	for _, f := range fs {
		out = append(out, f...)
	}
	sortCoords(out)
	return out
}
