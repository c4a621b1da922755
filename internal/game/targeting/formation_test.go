package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellwars/cellwars-server/internal/game/board"
)

func at(r, c int) board.Coord { return board.Coord{Row: r, Col: c} }

func own(t *testing.T, b *board.Board, p board.Player, cells ...board.Coord) {
	t.Helper()
	for _, c := range cells {
		require.NoError(t, b.Claim(c, p, board.CoreNone))
	}
}

func TestDiagonalFormationsMaximalRun(t *testing.T) {
	b := board.Empty()
	own(t, b, board.PlayerOne, at(1, 1), at(2, 2), at(3, 3), at(4, 4))

	fs := DiagonalFormations(b, board.PlayerOne)

	require.Len(t, fs, 1)
	assert.Equal(t, Formation{at(1, 1), at(2, 2), at(3, 3), at(4, 4)}, fs[0])
	for _, c := range fs[0] {
		f, ok := FormationAt(fs, c)
		require.True(t, ok)
		assert.Len(t, f, 4, "queried cell %s belongs to the maximal diagonal", c)
	}
}

func TestDiagonalFormationsCellsClaimedOnce(t *testing.T) {
	b := board.Empty()
	// an X: both diagonals cross at (3,3)
	own(t, b, board.PlayerOne,
		at(1, 1), at(2, 2), at(3, 3), at(4, 4), at(5, 5),
		at(1, 5), at(2, 4), at(4, 2), at(5, 1),
	)

	fs := DiagonalFormations(b, board.PlayerOne)

	seen := map[board.Coord]int{}
	for _, f := range fs {
		assert.GreaterOrEqual(t, len(f), 2)
		for _, c := range f {
			seen[c]++
		}
	}
	for c, n := range seen {
		assert.Equal(t, 1, n, "cell %s claimed %d times", c, n)
	}
	f, ok := FormationAt(fs, at(3, 3))
	require.True(t, ok)
	assert.Len(t, f, 5, "first discovered diagonal keeps the crossing")
	assert.Len(t, seen, 9)
}

func TestDiagonalFormationsEarlierClaimCutsLongerRun(t *testing.T) {
	b := board.Empty()
	own(t, b, board.PlayerOne,
		at(0, 4), at(1, 3), at(2, 2),
		at(3, 3), at(4, 4), at(5, 5),
	)

	fs := DiagonalFormations(b, board.PlayerOne)

	require.Len(t, fs, 2)
	assert.Equal(t, Formation{at(0, 4), at(1, 3), at(2, 2)}, fs[0])
	f, ok := FormationAt(fs, at(3, 3))
	require.True(t, ok)
	assert.Equal(t, Formation{at(3, 3), at(4, 4), at(5, 5)}, f, "(2,2) stays with the diagonal found first")
}

func TestDiagonalFormationsIgnoreSingletonsAndEnemies(t *testing.T) {
	b := board.Empty()
	own(t, b, board.PlayerOne, at(0, 0), at(5, 5))
	own(t, b, board.PlayerTwo, at(1, 1), at(6, 6))

	assert.Empty(t, DiagonalFormations(b, board.PlayerOne))
	assert.Len(t, DiagonalFormations(b, board.PlayerTwo), 0)
}

func TestSquareFormationsGreedyLargest(t *testing.T) {
	b := board.Empty()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			own(t, b, board.PlayerOne, at(r, c))
		}
	}
	own(t, b, board.PlayerOne, at(3, 0), at(3, 1), at(4, 0), at(4, 1))

	fs := SquareFormations(b, board.PlayerOne)

	require.Len(t, fs, 2)
	assert.Len(t, fs[0], 9)
	assert.Equal(t, Formation{at(3, 0), at(3, 1), at(4, 0), at(4, 1)}, fs[1])
}

func TestSquareFormationsRequireTwoByTwo(t *testing.T) {
	b := board.Empty()
	own(t, b, board.PlayerOne, at(0, 0), at(0, 1), at(1, 0))

	assert.Empty(t, SquareFormations(b, board.PlayerOne))
}

func TestDiscoveryDoesNotTouchBoard(t *testing.T) {
	b := board.Empty()
	own(t, b, board.PlayerOne, at(0, 0), at(1, 1), at(0, 1), at(1, 0))
	before := b.Clone()

	DiagonalFormations(b, board.PlayerOne)
	SquareFormations(b, board.PlayerOne)
	// a second pass starts from a clean claim set
	assert.Equal(t, DiagonalFormations(b, board.PlayerOne), DiagonalFormations(b, board.PlayerOne))

	assert.Equal(t, before, b.Clone())
}
