package board

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Size is the fixed edge length of the board.
const Size = 11

// Fixed positions. These are part of the client contract and must not change.
var (
	MasterStart = map[Player]Coord{
		PlayerOne: {Row: 10, Col: 5},
		PlayerTwo: {Row: 0, Col: 5},
	}

	ManaBubbles = []Coord{
		{Row: 2, Col: 2}, {Row: 2, Col: 8},
		{Row: 5, Col: 1}, {Row: 5, Col: 5}, {Row: 5, Col: 9},
		{Row: 8, Col: 2}, {Row: 8, Col: 8},
	}
)

// neighbourOffsets lists the 8 directions clockwise from north.
var neighbourOffsets = [8][2]int{
	{-1, 0}, {-1, 1}, {0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1},
}

var orthogonalOffsets = [4][2]int{
	{-1, 0}, {0, 1}, {1, 0}, {0, -1},
}

// OrthogonalDirections returns the four orthogonal unit steps (N, E, S, W).
func OrthogonalDirections() [4][2]int {
	return orthogonalOffsets
}

var (
	// ErrOutOfBounds is returned for coordinates outside the grid.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrAuthoritative is returned when a hint is set on an authoritative board.
	ErrAuthoritative = errors.New("hints can only be set on a transient board")
)

// DamageResult describes what a single point of damage did to a cell.
type DamageResult int

const (
	DamageNone DamageResult = iota
	DamageShieldPopped
	DamageMasterHit
	DamageKilled
)

// IsManaBubble reports whether c is one of the fixed mana bubble positions.
func IsManaBubble(c Coord) bool {
	for _, b := range ManaBubbles {
		if b == c {
			return true
		}
	}
	return false
}

// DefaultCore is the core state an unowned cell at c carries.
func DefaultCore(c Coord) CoreState {
	if IsManaBubble(c) {
		return CoreManaBubble
	}
	return CoreNone
}

// HomeHalf reports whether c lies on p's home half.
func HomeHalf(p Player, c Coord) bool {
	switch p {
	case PlayerOne:
		return c.Row > Size/2
	case PlayerTwo:
		return c.Row < Size/2
	default:
		return false
	}
}

// Board is the 11x11 grid. A transient board is a throwaway copy that may
// carry UI hints; the authoritative board never does.
type Board struct {
	cells     [Size][Size]Cell
	transient bool
}

// New builds the starting board with both masters in place.
func New() *Board {
	b := &Board{}
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			pos := Coord{Row: r, Col: c}
			b.cells[r][c] = Cell{Pos: pos, Core: DefaultCore(pos)}
		}
	}
	for p, pos := range MasterStart {
		cell := b.at(pos)
		cell.ID = uuid.NewString()
		cell.Owner = p
		cell.Master = true
		cell.Core = CoreNone
	}
	return b
}

// Empty returns a board with no masters, used to stage positions in tests and tools.
func Empty() *Board {
	b := &Board{}
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			pos := Coord{Row: r, Col: c}
			b.cells[r][c] = Cell{Pos: pos, Core: DefaultCore(pos)}
		}
	}
	return b
}

func (b *Board) at(c Coord) *Cell {
	return &b.cells[c.Row][c.Col]
}

// Get returns the cell at c, or nil when c is off the board.
func (b *Board) Get(c Coord) *Cell {
	if !c.InBounds() {
		return nil
	}
	return b.at(c)
}

// Transient reports whether b is a transient copy.
func (b *Board) Transient() bool {
	return b.transient
}

// Neighbours returns the in-bounds positions around c in clockwise order from north.
func (b *Board) Neighbours(c Coord) []Coord {
	out := make([]Coord, 0, 8)
	for _, d := range neighbourOffsets {
		n := c.Add(d[0], d[1])
		if n.InBounds() {
			out = append(out, n)
		}
	}
	return out
}

// Orthogonal returns the in-bounds orthogonal neighbours of c (N, E, S, W).
func (b *Board) Orthogonal(c Coord) []Coord {
	out := make([]Coord, 0, 4)
	for _, d := range orthogonalOffsets {
		n := c.Add(d[0], d[1])
		if n.InBounds() {
			out = append(out, n)
		}
	}
	return out
}

// CellsOwnedBy returns p's cells in row-major order.
func (b *Board) CellsOwnedBy(p Player) []*Cell {
	var out []*Cell
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b.cells[r][c].OwnedBy(p) {
				out = append(out, &b.cells[r][c])
			}
		}
	}
	return out
}

// Master returns p's master cell, or nil if p has none on the board.
func (b *Board) Master(p Player) *Cell {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cell := &b.cells[r][c]
			if cell.Master && cell.OwnedBy(p) {
				return cell
			}
		}
	}
	return nil
}

// Each calls fn for every cell in row-major order.
func (b *Board) Each(fn func(*Cell)) {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			fn(&b.cells[r][c])
		}
	}
}

// Clone returns an authoritative deep copy with every hint cleared.
func (b *Board) Clone() *Board {
	cp := &Board{cells: b.cells}
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cp.cells[r][c].Hint = HintNone
		}
	}
	return cp
}

// CloneAsTransient returns a deep copy that accepts hints. Nothing done to the
// copy is visible on b.
func (b *Board) CloneAsTransient() *Board {
	cp := b.Clone()
	cp.transient = true
	return cp
}

// SetHint decorates a cell of a transient board.
func (b *Board) SetHint(c Coord, h Hint) error {
	if !b.transient {
		return ErrAuthoritative
	}
	if !c.InBounds() {
		return ErrOutOfBounds
	}
	b.at(c).Hint = h
	return nil
}

// Hinted returns the decorated cells of a transient board in row-major order.
func (b *Board) Hinted() []Cell {
	var out []Cell
	b.Each(func(c *Cell) {
		if c.Hint != HintNone {
			out = append(out, *c)
		}
	})
	return out
}

// Claim gives an empty cell to p with a fresh identity.
func (b *Board) Claim(c Coord, p Player, core CoreState) error {
	cell := b.Get(c)
	if cell == nil {
		return ErrOutOfBounds
	}
	if !cell.Empty() {
		return fmt.Errorf("cell %s already owned by %s", c, cell.Owner)
	}
	if !p.Valid() {
		return fmt.Errorf("cannot claim %s for %s", c, p)
	}
	cell.ID = uuid.NewString()
	cell.Owner = p
	cell.Master = false
	cell.Core = core
	cell.Modifiers = ModNone
	cell.Hint = HintNone
	return nil
}

// Kill returns the cell to its unowned default. Hidden objects stay put.
func (b *Board) Kill(c Coord) error {
	cell := b.Get(c)
	if cell == nil {
		return ErrOutOfBounds
	}
	vacate(cell)
	return nil
}

func vacate(cell *Cell) {
	cell.ID = ""
	cell.Owner = PlayerNone
	cell.Master = false
	cell.Core = DefaultCore(cell.Pos)
	cell.Modifiers = ModNone
	cell.Hint = HintNone
}

// Damage applies one point of damage. A shield absorbs it, a master reports a
// hit for the caller to charge against hp, anything else dies.
func (b *Board) Damage(c Coord) (DamageResult, error) {
	cell := b.Get(c)
	if cell == nil {
		return DamageNone, ErrOutOfBounds
	}
	switch {
	case cell.Empty():
		return DamageNone, nil
	case cell.Modifiers.Has(ModShielded):
		cell.Modifiers &^= ModShielded
		return DamageShieldPopped, nil
	case cell.Master:
		return DamageMasterHit, nil
	default:
		vacate(cell)
		return DamageKilled, nil
	}
}

// Move relocates the occupant of from onto the empty cell to. Identity, master
// flag and modifiers travel; core decoration does not.
func (b *Board) Move(from, to Coord) error {
	src, dst := b.Get(from), b.Get(to)
	if src == nil || dst == nil {
		return ErrOutOfBounds
	}
	if src.Empty() {
		return fmt.Errorf("no cell to move at %s", from)
	}
	if !dst.Empty() {
		return fmt.Errorf("destination %s is occupied", to)
	}
	dst.ID = src.ID
	dst.Owner = src.Owner
	dst.Master = src.Master
	dst.Modifiers = src.Modifiers
	dst.Core = CoreNone
	dst.Hint = HintNone
	vacate(src)
	return nil
}

// ClearCore resets an owned cell's core state.
func (b *Board) ClearCore(c Coord) {
	if cell := b.Get(c); cell != nil && !cell.Empty() {
		cell.Core = CoreNone
	}
}

// SetModifier adds m to an owned cell.
func (b *Board) SetModifier(c Coord, m Modifier) error {
	cell := b.Get(c)
	if cell == nil {
		return ErrOutOfBounds
	}
	if cell.Empty() {
		return fmt.Errorf("cannot modify unowned cell %s", c)
	}
	cell.Modifiers |= m
	return nil
}

// ClearModifier removes m from a cell.
func (b *Board) ClearModifier(c Coord, m Modifier) {
	if cell := b.Get(c); cell != nil {
		cell.Modifiers &^= m
	}
}

// PlaceMine arms a mine at c visible to p. An existing mine keeps its owner and
// becomes visible to p as well.
func (b *Board) PlaceMine(c Coord, p Player) error {
	cell := b.Get(c)
	if cell == nil {
		return ErrOutOfBounds
	}
	if cell.Hidden.Kind == HiddenMine {
		cell.Hidden.Widen(p)
		return nil
	}
	cell.Hidden = HiddenState{Kind: HiddenMine, Owner: p}
	cell.Hidden.Widen(p)
	return nil
}

// ClearMine disarms the mine at c.
func (b *Board) ClearMine(c Coord) {
	if cell := b.Get(c); cell != nil {
		cell.Hidden = HiddenState{}
	}
}

// ViewFor returns a copy where hidden objects p cannot see are stripped.
func (b *Board) ViewFor(p Player) *Board {
	cp := b.Clone()
	cp.transient = b.transient
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if !cp.cells[r][c].Hidden.VisibleTo(p) {
				cp.cells[r][c].Hidden = HiddenState{}
			}
		}
	}
	// keep hints of a transient source
	if b.transient {
		for r := 0; r < Size; r++ {
			for c := 0; c < Size; c++ {
				cp.cells[r][c].Hint = b.cells[r][c].Hint
			}
		}
	}
	return cp
}
