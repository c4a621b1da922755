package board

import "fmt"

// Player identifies a side. PlayerNone marks an unowned cell.
type Player int

const (
	PlayerNone Player = iota
	PlayerOne
	PlayerTwo
)

var playerNames = map[Player]string{
	PlayerNone: "NONE",
	PlayerOne:  "P1",
	PlayerTwo:  "P2",
}

func (p Player) String() string {
	if name, ok := playerNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PLAYER_%d", int(p))
}

// Opponent returns the other side. The opponent of PlayerNone is PlayerNone.
func (p Player) Opponent() Player {
	switch p {
	case PlayerOne:
		return PlayerTwo
	case PlayerTwo:
		return PlayerOne
	default:
		return PlayerNone
	}
}

// Valid reports whether p is one of the two sides.
func (p Player) Valid() bool {
	return p == PlayerOne || p == PlayerTwo
}

// Coord is a (row, col) position on the board.
type Coord struct {
	Row int
	Col int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Add offsets c by the given delta.
func (c Coord) Add(dr, dc int) Coord {
	return Coord{Row: c.Row + dr, Col: c.Col + dc}
}

// InBounds reports whether c lies on the board.
func (c Coord) InBounds() bool {
	return c.Row >= 0 && c.Row < Size && c.Col >= 0 && c.Col < Size
}

// Adjacent reports whether a and b touch, diagonals included.
func Adjacent(a, b Coord) bool {
	if a == b {
		return false
	}
	dr, dc := a.Row-b.Row, a.Col-b.Col
	return dr >= -1 && dr <= 1 && dc >= -1 && dc <= 1
}

// CoreState is the mutually exclusive status of a cell.
type CoreState int

const (
	CoreNone CoreState = iota
	CoreSpawned
	CoreManaBubble
)

var coreNames = map[CoreState]string{
	CoreNone:       "NONE",
	CoreSpawned:    "SPAWNED",
	CoreManaBubble: "MANA_BUBBLE",
}

func (s CoreState) String() string {
	if name, ok := coreNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CORE_%d", int(s))
}

// Modifier is a combinable buff flag.
type Modifier uint8

const (
	ModShielded Modifier = 1 << iota
	ModAccelerated
	ModArcher

	// ModNone is the empty modifier set.
	ModNone Modifier = 0
)

// Has reports whether every flag of m2 is set in m.
func (m Modifier) Has(m2 Modifier) bool {
	return m2 != 0 && m&m2 == m2
}

func (m Modifier) String() string {
	if m == ModNone {
		return "NONE"
	}
	out := ""
	for _, f := range []struct {
		flag Modifier
		name string
	}{
		{ModShielded, "SHIELDED"},
		{ModAccelerated, "ACCELERATED"},
		{ModArcher, "ARCHER"},
	} {
		if m.Has(f.flag) {
			if out != "" {
				out += "|"
			}
			out += f.name
		}
	}
	return out
}

// HiddenKind is the kind of hidden object sitting on a position.
type HiddenKind int

const (
	HiddenNone HiddenKind = iota
	HiddenMine
)

// HiddenState is a hidden object plus the set of players allowed to see it.
// Visibility only ever widens.
type HiddenState struct {
	Kind    HiddenKind
	Owner   Player
	visible uint8
}

// VisibleTo reports whether p can see the hidden state.
func (h HiddenState) VisibleTo(p Player) bool {
	if h.Kind == HiddenNone || !p.Valid() {
		return false
	}
	return h.visible&(1<<uint(p)) != 0
}

// Widen makes the hidden state visible to p in addition to whoever already sees it.
func (h *HiddenState) Widen(p Player) {
	if p.Valid() {
		h.visible |= 1 << uint(p)
	}
}

// VisibleToBoth reports whether both sides can see the hidden state.
func (h HiddenState) VisibleToBoth() bool {
	return h.VisibleTo(PlayerOne) && h.VisibleTo(PlayerTwo)
}

// Hint is a transient UI decoration. It is never authoritative.
type Hint int

const (
	HintNone Hint = iota
	HintSelected
	HintMovable
	HintAttackable
	HintSpawnable
	HintTargetable
)

var hintNames = map[Hint]string{
	HintNone:       "NONE",
	HintSelected:   "SELECTED",
	HintMovable:    "MOVABLE",
	HintAttackable: "ATTACKABLE",
	HintSpawnable:  "SPAWNABLE",
	HintTargetable: "TARGETABLE",
}

func (h Hint) String() string {
	if name, ok := hintNames[h]; ok {
		return name
	}
	return fmt.Sprintf("HINT_%d", int(h))
}

// Cell is the state of one grid square.
type Cell struct {
	ID        string
	Pos       Coord
	Owner     Player
	Master    bool
	Core      CoreState
	Modifiers Modifier
	Hidden    HiddenState
	Hint      Hint
}

// Empty reports whether nobody owns the cell.
func (c *Cell) Empty() bool {
	return c.Owner == PlayerNone
}

// OwnedBy reports whether p owns the cell.
func (c *Cell) OwnedBy(p Player) bool {
	return p.Valid() && c.Owner == p
}

// HasMine reports whether a mine sits on the cell.
func (c *Cell) HasMine() bool {
	return c.Hidden.Kind == HiddenMine
}
