package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/rules"
	"github.com/cellwars/cellwars-server/internal/game/targeting"
)

func at(r, c int) board.Coord { return board.Coord{Row: r, Col: c} }

type fixture struct {
	state    *State
	pipeline *Pipeline
	events   []rules.Event
}

// newFixture stages an empty board; withMasters keeps the starting masters.
func newFixture(t *testing.T, withMasters bool) *fixture {
	t.Helper()
	f := &fixture{
		state: NewState("match-1", resources.DefaultLimits(), targeting.DefaultInventory(), 42),
	}
	if !withMasters {
		f.state.Board = board.Empty()
	}
	bus := rules.NewEventBus()
	bus.Subscribe(func(e rules.Event) { f.events = append(f.events, e) })
	f.pipeline = NewPipeline(zaptest.NewLogger(t), targeting.NewRegistry(nil), bus, rules.DefaultSpawnCost)
	return f
}

func (f *fixture) own(t *testing.T, p board.Player, cells ...board.Coord) {
	t.Helper()
	for _, c := range cells {
		require.NoError(t, f.state.Board.Claim(c, p, board.CoreNone))
	}
}

func (f *fixture) master(t *testing.T, p board.Player, c board.Coord) {
	t.Helper()
	f.own(t, p, c)
	f.state.Board.Get(c).Master = true
}

func (f *fixture) count(typ rules.EventType) int {
	n := 0
	for _, e := range f.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestApplyMovementCarriesIdentity(t *testing.T) {
	f := newFixture(t, true)
	origin := board.MasterStart[board.PlayerOne]
	id := f.state.Board.Get(origin).ID

	out, err := f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: origin, Dest: at(7, 5)})
	require.NoError(t, err)

	assert.True(t, f.state.Board.Get(origin).Empty())
	dest := f.state.Board.Get(at(7, 5))
	assert.Equal(t, id, dest.ID)
	assert.True(t, dest.Master)
	assert.Equal(t, 1, f.state.Turn.MovesUsed(id))
	assert.Empty(t, out.Deaths)
	assert.Equal(t, 1, f.count(rules.EventActionApplied))
}

func TestApplyAttackTable(t *testing.T) {
	t.Run("unit vs unit", func(t *testing.T) {
		f := newFixture(t, false)
		f.own(t, board.PlayerOne, at(6, 3))
		f.own(t, board.PlayerTwo, at(5, 3))

		out, err := f.pipeline.Apply(f.state, rules.Attack{Player: board.PlayerOne, Origin: at(6, 3), Dest: at(5, 3)})
		require.NoError(t, err)
		assert.Len(t, out.Deaths, 2)
		assert.True(t, f.state.Board.Get(at(6, 3)).Empty())
		assert.True(t, f.state.Board.Get(at(5, 3)).Empty())
	})

	t.Run("unit vs master", func(t *testing.T) {
		f := newFixture(t, true)
		f.own(t, board.PlayerOne, at(1, 5))

		out, err := f.pipeline.Apply(f.state, rules.Attack{Player: board.PlayerOne, Origin: at(1, 5), Dest: at(0, 5)})
		require.NoError(t, err)
		require.Len(t, out.Deaths, 1)
		assert.Equal(t, at(1, 5), out.Deaths[0].Pos)
		assert.Equal(t, 4, f.state.Pool(board.PlayerTwo).HP())
		assert.Equal(t, 1, out.MasterDamage[board.PlayerTwo])
		assert.True(t, f.state.Board.Get(at(0, 5)).Master)
	})

	t.Run("master vs unit", func(t *testing.T) {
		f := newFixture(t, true)
		f.own(t, board.PlayerTwo, at(9, 5))

		out, err := f.pipeline.Apply(f.state, rules.Attack{Player: board.PlayerOne, Origin: at(10, 5), Dest: at(9, 5)})
		require.NoError(t, err)
		assert.Len(t, out.Deaths, 1)
		assert.Equal(t, 4, f.state.Pool(board.PlayerOne).HP())
	})

	t.Run("master vs master", func(t *testing.T) {
		f := newFixture(t, false)
		f.master(t, board.PlayerOne, at(4, 3))
		f.master(t, board.PlayerTwo, at(3, 3))

		out, err := f.pipeline.Apply(f.state, rules.Attack{Player: board.PlayerOne, Origin: at(4, 3), Dest: at(3, 3)})
		require.NoError(t, err)
		assert.Empty(t, out.Deaths)
		assert.Equal(t, 4, f.state.Pool(board.PlayerOne).HP())
		assert.Equal(t, 4, f.state.Pool(board.PlayerTwo).HP())
		assert.Equal(t, 2, f.count(rules.EventMasterDamaged))
	})

	t.Run("shielded target", func(t *testing.T) {
		f := newFixture(t, false)
		f.own(t, board.PlayerOne, at(6, 3))
		f.own(t, board.PlayerTwo, at(5, 3))
		require.NoError(t, f.state.Board.SetModifier(at(5, 3), board.ModShielded))

		out, err := f.pipeline.Apply(f.state, rules.Attack{Player: board.PlayerOne, Origin: at(6, 3), Dest: at(5, 3)})
		require.NoError(t, err)
		assert.Empty(t, out.Deaths)
		assert.False(t, f.state.Board.Get(at(5, 3)).Modifiers.Has(board.ModShielded))
		assert.True(t, f.state.Board.Get(at(6, 3)).OwnedBy(board.PlayerOne))
		assert.Equal(t, 1, f.count(rules.EventShieldPopped))
	})

	t.Run("ranged archer", func(t *testing.T) {
		f := newFixture(t, false)
		f.own(t, board.PlayerOne, at(8, 0))
		require.NoError(t, f.state.Board.SetModifier(at(8, 0), board.ModArcher))
		f.own(t, board.PlayerTwo, at(2, 9))

		out, err := f.pipeline.Apply(f.state, rules.Attack{Player: board.PlayerOne, Origin: at(8, 0), Dest: at(2, 9)})
		require.NoError(t, err)
		require.Len(t, out.Deaths, 1)
		assert.Equal(t, board.PlayerTwo, out.Deaths[0].Owner)
		assert.True(t, f.state.Board.Get(at(8, 0)).OwnedBy(board.PlayerOne))
	})
}

func TestApplyRunsPreHooks(t *testing.T) {
	f := newFixture(t, false)
	f.own(t, board.PlayerOne, at(6, 5))

	_, err := f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: at(6, 5), Dest: at(5, 5)})
	require.NoError(t, err)

	pool := f.state.Pool(board.PlayerOne)
	assert.Equal(t, 1, pool.Stamina())
	assert.Equal(t, 1, pool.Mana(), "landing on a mana bubble")
	assert.Equal(t, board.CoreNone, f.state.Board.Get(at(5, 5)).Core)
}

func TestApplySpawnChargesCost(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.pipeline.Apply(f.state, rules.Spawn{Player: board.PlayerOne, Dest: at(9, 5)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientResource))
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "mana", appErr.Metadata["resource"])
	assert.Equal(t, 0, f.state.Pool(board.PlayerOne).Stamina(), "rejected before the hooks")

	f.state.Pool(board.PlayerOne).Set(resources.Mana, 2)
	_, err = f.pipeline.Apply(f.state, rules.Spawn{Player: board.PlayerOne, Dest: at(9, 5)})
	require.NoError(t, err)
	assert.Equal(t, 1, f.state.Pool(board.PlayerOne).Mana())
	assert.Equal(t, board.CoreSpawned, f.state.Board.Get(at(9, 5)).Core)
}

func TestApplyMineExplodesOnce(t *testing.T) {
	f := newFixture(t, false)
	f.own(t, board.PlayerOne, at(6, 3), at(6, 4))
	f.own(t, board.PlayerTwo, at(4, 3))
	require.NoError(t, f.state.Board.PlaceMine(at(5, 3), board.PlayerTwo))

	out, err := f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: at(6, 3), Dest: at(5, 3)})
	require.NoError(t, err)

	require.Len(t, out.Callbacks, 1)
	cb := out.Callbacks[0]
	assert.Equal(t, rules.CallbackMineExplosion, cb.CallbackKind())
	assert.Equal(t, out.ID, cb.Parent())
	assert.Equal(t, at(5, 3), cb.Trigger())

	// the mover, the enemy above and the friend diagonally behind
	assert.Len(t, out.Deaths, 3)
	for _, d := range out.Deaths {
		assert.Equal(t, cb.ID(), d.Cause)
	}
	assert.False(t, f.state.Board.Get(at(5, 3)).HasMine())
	assert.Equal(t, 1, f.count(rules.EventMineExploded))

	f.own(t, board.PlayerOne, at(6, 3))
	out, err = f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: at(6, 3), Dest: at(5, 3)})
	require.NoError(t, err)
	assert.Empty(t, out.Callbacks)
}

func TestApplyMineChainReaction(t *testing.T) {
	f := newFixture(t, false)
	f.own(t, board.PlayerOne, at(6, 3))
	f.own(t, board.PlayerTwo, at(3, 5))
	require.NoError(t, f.state.Board.PlaceMine(at(5, 3), board.PlayerTwo))
	require.NoError(t, f.state.Board.PlaceMine(at(4, 4), board.PlayerOne))

	out, err := f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: at(6, 3), Dest: at(5, 3)})
	require.NoError(t, err)

	require.Len(t, out.Callbacks, 2)
	assert.Equal(t, out.Callbacks[0].ID(), out.Callbacks[1].Parent())
	assert.Equal(t, at(4, 4), out.Callbacks[1].Trigger())
	assert.Len(t, out.Deaths, 2)
	assert.True(t, f.state.Board.Get(at(3, 5)).Empty(), "reached only by the second blast")
	assert.Equal(t, 2, f.count(rules.EventMineExploded))
}

func TestApplyMineHitsMaster(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.state.Board.PlaceMine(at(9, 5), board.PlayerTwo))

	out, err := f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: at(10, 5), Dest: at(9, 5)})
	require.NoError(t, err)
	assert.Equal(t, 1, out.MasterDamage[board.PlayerOne])
	assert.Equal(t, 4, f.state.Pool(board.PlayerOne).HP())
	assert.True(t, f.state.Board.Get(at(9, 5)).Master)
}

func TestApplyAreaSpawnSetsOffMines(t *testing.T) {
	f := newFixture(t, false)
	f.own(t, board.PlayerTwo, at(0, 0))
	for _, c := range []board.Coord{at(0, 1), at(1, 1), at(1, 0)} {
		require.NoError(t, f.state.Board.PlaceMine(c, board.PlayerTwo))
	}
	pool := f.state.Pool(board.PlayerOne)
	pool.Set(resources.Mana, 4)
	pool.Set(resources.Stamina, 2)

	out, err := f.pipeline.Apply(f.state, rules.SpellCast{Player: board.PlayerOne, Spell: targeting.SpellAreaSpawn, Dest: at(0, 0)})
	require.NoError(t, err)

	// three spawns on the enemy half, then the first blast takes everything
	assert.Len(t, out.Deaths, 4)
	assert.Equal(t, 3, f.count(rules.EventMineExploded))
	assert.Equal(t, 3, f.count(rules.EventCellLanded))
	assert.Equal(t, 1, f.count(rules.EventSpellCast))
	for _, c := range []board.Coord{at(0, 0), at(0, 1), at(1, 1), at(1, 0)} {
		assert.True(t, f.state.Board.Get(c).Empty())
		assert.False(t, f.state.Board.Get(c).HasMine())
	}
	assert.Equal(t, 0, pool.Mana())
	assert.Equal(t, 1, pool.Stamina())
	assert.Equal(t, 0, pool.Charges(string(targeting.SpellAreaSpawn)))
	assert.Equal(t, []rules.SpellID{targeting.SpellAreaSpawn}, f.state.Turn.SpellsCast())
}

func TestApplyRejectsSpellsUpFront(t *testing.T) {
	f := newFixture(t, true)
	pool := f.state.Pool(board.PlayerOne)
	pool.Set(resources.Mana, 10)

	_, err := f.pipeline.Apply(f.state, rules.SpellCast{Player: board.PlayerOne, Spell: "fireball", Dest: at(5, 5)})
	assert.Equal(t, apperrors.CodeInvalidAction, apperrors.GetCode(err))

	_, err = f.pipeline.Apply(f.state, rules.SpellCast{Player: board.PlayerOne, Spell: targeting.SpellMine, Dest: at(0, 5)})
	assert.Equal(t, apperrors.CodeInvalidAction, apperrors.GetCode(err))

	pool.Set(resources.Mana, 1)
	_, err = f.pipeline.Apply(f.state, rules.SpellCast{Player: board.PlayerOne, Spell: targeting.SpellMine, Dest: at(5, 5)})
	assert.Equal(t, apperrors.CodeInsufficientResource, apperrors.GetCode(err))

	_, err = f.pipeline.Apply(f.state, nil)
	assert.Equal(t, apperrors.CodeInvalidAction, apperrors.GetCode(err))
	assert.Empty(t, f.events)
}

func TestApplyFailureRestoresState(t *testing.T) {
	f := newFixture(t, true)
	before, err := f.state.Snapshot("").ComputeChecksum()
	require.NoError(t, err)

	// nothing of P1 stands at (5,0)
	_, err = f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: at(5, 0), Dest: at(4, 0)})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInternalProcessingFailure, apperrors.GetCode(err))
	assert.Equal(t, "invalid action", apperrors.UserMessage(err))

	ok, err := f.state.Snapshot("").VerifyChecksum(before)
	require.NoError(t, err)
	assert.True(t, ok, "stamina from the pre-hook is rolled back too")
	assert.Equal(t, 0, f.state.Turn.ActionsThisTurn())
	assert.Empty(t, f.events)
}

func TestApplyPanicRestoresState(t *testing.T) {
	f := newFixture(t, true)
	f.state.Triggers.Register(rules.CallbackTrigger{
		EventType: rules.EventCellLanded,
		Build:     func(rules.Event) rules.Callback { panic("boom") },
	})

	_, err := f.pipeline.Apply(f.state, rules.Movement{Player: board.PlayerOne, Origin: at(10, 5), Dest: at(9, 5)})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInternalProcessingFailure, apperrors.GetCode(err))
	assert.True(t, f.state.Board.Get(at(10, 5)).Master)
	assert.True(t, f.state.Board.Get(at(9, 5)).Empty())
	assert.Equal(t, 0, f.state.Pool(board.PlayerOne).Stamina())
}

func TestStateCloneIsIndependent(t *testing.T) {
	f := newFixture(t, true)
	cp := f.state.Clone()

	_, err := f.pipeline.Apply(cp, rules.Movement{Player: board.PlayerOne, Origin: at(10, 5), Dest: at(9, 5)})
	require.NoError(t, err)
	assert.True(t, f.state.Board.Get(at(10, 5)).Master)
	assert.Equal(t, 0, f.state.Pool(board.PlayerOne).Stamina())
	assert.Equal(t, 0, f.state.Turn.ActionsThisTurn())
}
