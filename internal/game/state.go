package game

import (
	"fmt"
	"math/rand"

	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/rules"
)

// State is the authoritative state of one match: the board, both players'
// resources, the turn tracker and the match's random source. It is not safe
// for concurrent use; the owning match serializes access.
type State struct {
	MatchID  string
	Board    *board.Board
	Pools    map[board.Player]*resources.Pool
	Turn     *rules.TurnManager
	Triggers *rules.TriggerManager
	rng      *rand.Rand
}

// NewState builds the starting state. inventory is copied into each pool.
func NewState(matchID string, limits resources.Limits, inventory map[string]int, seed int64) *State {
	s := &State{
		MatchID: matchID,
		Board:   board.New(),
		Pools: map[board.Player]*resources.Pool{
			board.PlayerOne: resources.NewPool(limits, inventory),
			board.PlayerTwo: resources.NewPool(limits, inventory),
		},
		Turn:     rules.NewTurnManager(board.PlayerOne),
		Triggers: rules.NewTriggerManager(),
		rng:      rand.New(rand.NewSource(seed)),
	}
	for _, t := range rules.MineTriggers(s.cell) {
		s.Triggers.Register(t)
	}
	return s
}

// cell resolves positions on whatever board is current, so triggers keep
// working after a restore swaps the board.
func (s *State) cell(c board.Coord) *board.Cell {
	return s.Board.Get(c)
}

// Pool returns p's resources.
func (s *State) Pool(p board.Player) *resources.Pool {
	return s.Pools[p]
}

// Rand returns the match's random source.
func (s *State) Rand() *rand.Rand {
	return s.rng
}

// Defeated reports which sides have no hp left.
func (s *State) Defeated() []board.Player {
	var out []board.Player
	for _, p := range []board.Player{board.PlayerOne, board.PlayerTwo} {
		if pool := s.Pools[p]; pool != nil && pool.Dead() {
			out = append(out, p)
		}
	}
	return out
}

// bookmark is a deep copy of everything an action may change.
type bookmark struct {
	board *board.Board
	pools map[board.Player]*resources.Pool
	turn  *rules.TurnManager
}

func (s *State) bookmark() bookmark {
	bm := bookmark{
		board: s.Board.Clone(),
		pools: make(map[board.Player]*resources.Pool, len(s.Pools)),
		turn:  s.Turn.Copy(),
	}
	for p, pool := range s.Pools {
		bm.pools[p] = pool.Copy()
	}
	return bm
}

func (s *State) restore(bm bookmark) {
	s.Board = bm.board
	s.Pools = bm.pools
	s.Turn = bm.turn
}

// Clone returns an independent copy of the state for what-if evaluation.
// The copy gets its own triggers and a random source seeded from this one.
func (s *State) Clone() *State {
	bm := s.bookmark()
	cp := &State{
		MatchID:  s.MatchID,
		Board:    bm.board,
		Pools:    bm.pools,
		Turn:     bm.turn,
		Triggers: rules.NewTriggerManager(),
		rng:      rand.New(rand.NewSource(s.rng.Int63())),
	}
	for _, t := range rules.MineTriggers(cp.cell) {
		cp.Triggers.Register(t)
	}
	return cp
}

func (s *State) String() string {
	return fmt.Sprintf("match=%s turn=%d active=%s", s.MatchID, s.Turn.TurnNumber(), s.Turn.ActivePlayer())
}
