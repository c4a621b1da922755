package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/cellwars/cellwars-server/internal/game/board"
)

// CellSnapshot is the serializable form of a non-default cell.
type CellSnapshot struct {
	ID        string
	Row       int
	Col       int
	Owner     board.Player
	Master    bool
	Core      board.CoreState
	Modifiers board.Modifier
	Mine      bool
	MineOwner board.Player
	// MineSeenBy lists the sides that can see the mine.
	MineSeenBy []board.Player
}

// PlayerSnapshot is the serializable form of one side's resources.
type PlayerSnapshot struct {
	Player  board.Player
	HP      int
	Mana    int
	Stamina int
	Spells  map[string]int
}

// Snapshot is a point-in-time copy of a match state used for replays and
// checksums. Only cells that differ from an empty starting grid are kept.
type Snapshot struct {
	MatchID   string
	Turn      int
	Active    board.Player
	Action    string
	Cells     []CellSnapshot
	Players   []PlayerSnapshot
	Timestamp time.Time
}

// SerializationChecksum is a deterministic digest of a snapshot.
type SerializationChecksum struct {
	Hash      string // SHA-256 hash of deterministic serialization
	Timestamp string // ISO timestamp of the snapshot
	Version   int    // Serialization version
}

// Snapshot captures s. action names what was just applied, if anything.
func (s *State) Snapshot(action string) *Snapshot {
	snap := &Snapshot{
		MatchID:   s.MatchID,
		Turn:      s.Turn.TurnNumber(),
		Active:    s.Turn.ActivePlayer(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	s.Board.Each(func(c *board.Cell) {
		if c.Empty() && !c.HasMine() {
			return
		}
		cs := CellSnapshot{
			ID:        c.ID,
			Row:       c.Pos.Row,
			Col:       c.Pos.Col,
			Owner:     c.Owner,
			Master:    c.Master,
			Core:      c.Core,
			Modifiers: c.Modifiers,
		}
		if c.HasMine() {
			cs.Mine = true
			cs.MineOwner = c.Hidden.Owner
			for _, p := range []board.Player{board.PlayerOne, board.PlayerTwo} {
				if c.Hidden.VisibleTo(p) {
					cs.MineSeenBy = append(cs.MineSeenBy, p)
				}
			}
		}
		snap.Cells = append(snap.Cells, cs)
	})
	for _, p := range []board.Player{board.PlayerOne, board.PlayerTwo} {
		pool := s.Pool(p)
		if pool == nil {
			continue
		}
		snap.Players = append(snap.Players, PlayerSnapshot{
			Player:  p,
			HP:      pool.HP(),
			Mana:    pool.Mana(),
			Stamina: pool.Stamina(),
			Spells:  pool.Inventory(),
		})
	}
	return snap
}

// Board rebuilds the board a snapshot describes.
func (snap *Snapshot) Board() (*board.Board, error) {
	b := board.Empty()
	for _, cs := range snap.Cells {
		pos := board.Coord{Row: cs.Row, Col: cs.Col}
		cell := b.Get(pos)
		if cell == nil {
			return nil, fmt.Errorf("snapshot cell %s: %w", pos, board.ErrOutOfBounds)
		}
		if cs.Owner.Valid() {
			if err := b.Claim(pos, cs.Owner, cs.Core); err != nil {
				return nil, err
			}
			cell.ID = cs.ID
			cell.Master = cs.Master
			cell.Modifiers = cs.Modifiers
		}
		if cs.Mine {
			if err := b.PlaceMine(pos, cs.MineOwner); err != nil {
				return nil, err
			}
			for _, p := range cs.MineSeenBy {
				cell.Hidden.Widen(p)
			}
		}
	}
	return b, nil
}

// ComputeChecksum generates a deterministic checksum of the snapshot. Time
// and the action label do not take part, so two sides holding the same
// position always agree.
func (snap *Snapshot) ComputeChecksum() (*SerializationChecksum, error) {
	return snap.checksum(true)
}

// PublicChecksum is ComputeChecksum without hidden state. Mines, their owners
// and who has seen them do not take part, so it is safe to hand to both sides.
func (snap *Snapshot) PublicChecksum() (*SerializationChecksum, error) {
	return snap.checksum(false)
}

func (snap *Snapshot) checksum(hidden bool) (*SerializationChecksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(snap.buildDeterministicRepresentation(hidden))); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &SerializationChecksum{
		Hash:      hex.EncodeToString(hash.Sum(nil)),
		Timestamp: snap.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		Version:   1,
	}, nil
}

func (snap *Snapshot) buildDeterministicRepresentation(hidden bool) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "MATCH:%s|%d|%s\n", snap.MatchID, snap.Turn, snap.Active)

	cells := append([]CellSnapshot(nil), snap.Cells...)
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	for _, c := range cells {
		if !hidden {
			// a mine on an otherwise empty cell is the only reason it was kept
			if !c.Owner.Valid() {
				continue
			}
			fmt.Fprintf(&buf, "CELL:%d,%d|%s|%s|%t|%s|%s\n",
				c.Row, c.Col, c.ID, c.Owner, c.Master, c.Core, c.Modifiers)
			continue
		}
		fmt.Fprintf(&buf, "CELL:%d,%d|%s|%s|%t|%s|%s|%t|%s|%v\n",
			c.Row, c.Col, c.ID, c.Owner, c.Master, c.Core, c.Modifiers, c.Mine, c.MineOwner, c.MineSeenBy)
	}

	players := append([]PlayerSnapshot(nil), snap.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].Player < players[j].Player })
	for _, p := range players {
		fmt.Fprintf(&buf, "PLAYER:%s|%d|%d|%d\n", p.Player, p.HP, p.Mana, p.Stamina)
		ids := make([]string, 0, len(p.Spells))
		for id := range p.Spells {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&buf, "  SPELL:%s=%d\n", id, p.Spells[id])
		}
	}
	return buf.String()
}

// VerifyChecksum reports whether the snapshot still matches expected.
func (snap *Snapshot) VerifyChecksum(expected *SerializationChecksum) (bool, error) {
	computed, err := snap.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Hash == expected.Hash, nil
}

// SerializeToBytes encodes the snapshot with gob.
func (snap *Snapshot) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a snapshot written by SerializeToBytes.
func DeserializeFromBytes(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
