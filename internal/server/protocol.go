package server

import (
	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/match"
	"github.com/cellwars/cellwars-server/internal/repository"
)

// Request types a client may send.
const (
	RequestReady       = "ready"
	RequestSelectCell  = "select_cell"
	RequestToggleSpawn = "toggle_spawn"
	RequestSelectSpell = "select_spell"
	RequestEndTurn     = "end_turn"
	RequestConcede     = "concede"
	RequestPing        = "ping"
)

// Outbound envelope types that are not match notifications.
const (
	TypePong  = "pong"
	TypeError = "error"
)

// Request is one inbound websocket message.
type Request struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Row   int    `json:"row,omitempty"`
	Col   int    `json:"col,omitempty"`
	Spell string `json:"spell,omitempty"`
}

// Envelope is one outbound websocket message. Type carries the notification
// kind for match traffic.
type Envelope struct {
	Type     string       `json:"type"`
	ID       string       `json:"id,omitempty"`
	MatchID  string       `json:"match_id,omitempty"`
	Status   string       `json:"status,omitempty"`
	Turn     int          `json:"turn,omitempty"`
	Active   string       `json:"active,omitempty"`
	You      string       `json:"you,omitempty"`
	Board    []CellView   `json:"board,omitempty"`
	Players  []PlayerView `json:"players,omitempty"`
	Checksum string       `json:"checksum,omitempty"`
	Action   string       `json:"action,omitempty"`
	Deaths   int          `json:"deaths,omitempty"`
	Warning  string       `json:"warning,omitempty"`
	Error    *ErrorView   `json:"error,omitempty"`
	Closure  *ClosureView `json:"closure,omitempty"`
}

// CellView is a cell that differs from an empty board.
type CellView struct {
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Owner     string `json:"owner,omitempty"`
	Master    bool   `json:"master,omitempty"`
	Core      string `json:"core,omitempty"`
	Modifiers string `json:"modifiers,omitempty"`
	Mine      bool   `json:"mine,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// PlayerView is a side's resource pool.
type PlayerView struct {
	Player  string         `json:"player"`
	HP      int            `json:"hp"`
	Mana    int            `json:"mana"`
	Stamina int            `json:"stamina"`
	Spells  map[string]int `json:"spells,omitempty"`
}

// ErrorView is the client facing part of an error.
type ErrorView struct {
	Code     string `json:"code"`
	GRPCCode string `json:"grpc_code"`
	Message  string `json:"message"`
}

// ClosureView summarizes how a match ended.
type ClosureView struct {
	MatchID    string         `json:"match_id"`
	PlayerOne  string         `json:"player_one"`
	PlayerTwo  string         `json:"player_two"`
	Reason     string         `json:"reason"`
	WinnerID   string         `json:"winner_id,omitempty"`
	LoserID    string         `json:"loser_id,omitempty"`
	TotalTurns int            `json:"total_turns"`
	Stats      map[string]int `json:"stats,omitempty"`
	EndedAt    int64          `json:"ended_at"`
}

func encodeNotification(n match.Notification) Envelope {
	env := Envelope{
		Type:     string(n.Kind),
		MatchID:  n.MatchID,
		Status:   n.Status.String(),
		Turn:     n.Turn,
		Checksum: n.Checksum,
		Action:   n.Action,
		Deaths:   n.Deaths,
		Warning:  n.Warning,
	}
	if n.Active.Valid() {
		env.Active = n.Active.String()
	}
	if n.You.Valid() {
		env.You = n.You.String()
	}
	if n.Board != nil {
		env.Board = encodeBoard(n.Board)
	}
	for _, p := range n.Players {
		env.Players = append(env.Players, PlayerView{
			Player:  p.Player.String(),
			HP:      p.HP,
			Mana:    p.Mana,
			Stamina: p.Stamina,
			Spells:  p.Spells,
		})
	}
	if n.Err != nil {
		env.Error = encodeError(n.Err)
	}
	if n.Closure != nil {
		cv := encodeClosure(*n.Closure)
		env.Closure = &cv
	}
	return env
}

func encodeBoard(b *board.Board) []CellView {
	var out []CellView
	b.Each(func(c *board.Cell) {
		mine := c.HasMine()
		if c.Empty() && c.Core == board.DefaultCore(c.Pos) && c.Modifiers == board.ModNone &&
			!mine && c.Hint == board.HintNone {
			return
		}
		v := CellView{Row: c.Pos.Row, Col: c.Pos.Col, Master: c.Master, Mine: mine}
		if !c.Empty() {
			v.Owner = c.Owner.String()
		}
		if c.Core != board.CoreNone {
			v.Core = c.Core.String()
		}
		if c.Modifiers != board.ModNone {
			v.Modifiers = c.Modifiers.String()
		}
		if c.Hint != board.HintNone {
			v.Hint = c.Hint.String()
		}
		out = append(out, v)
	})
	return out
}

// encodeError hides internal failures behind the generic invalid action code.
func encodeError(err error) *ErrorView {
	code := apperrors.GetCode(err)
	switch code {
	case apperrors.CodeInternalProcessingFailure, apperrors.CodeUnknown:
		code = apperrors.CodeInvalidAction
	}
	return &ErrorView{
		Code:     string(code),
		GRPCCode: code.GRPCCode().String(),
		Message:  apperrors.UserMessage(err),
	}
}

func encodeClosure(c repository.Closure) ClosureView {
	return ClosureView{
		MatchID:    c.MatchID,
		PlayerOne:  c.PlayerOne,
		PlayerTwo:  c.PlayerTwo,
		Reason:     c.Reason,
		WinnerID:   c.WinnerID,
		LoserID:    c.LoserID,
		TotalTurns: c.TotalTurns,
		Stats:      c.Stats,
		EndedAt:    c.EndedAt.UnixMilli(),
	}
}
