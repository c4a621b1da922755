package match

import (
	"github.com/cellwars/cellwars-server/internal/game"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/repository"
)

// Kind says what a Notification reports.
type Kind string

const (
	KindState     Kind = "state"
	KindStarted   Kind = "started"
	KindHint      Kind = "hint"
	KindProcessed Kind = "processed"
	KindError     Kind = "error"
	KindTurn      Kind = "turn"
	KindWarning   Kind = "inactivity_warning"
	KindEnded     Kind = "ended"
)

// Inactivity warning levels.
const (
	WarningFirst = "first"
	WarningFinal = "final"
)

// Notification is one message for one player. Board is already the
// recipient's view, with foreign mines stripped.
type Notification struct {
	Kind    Kind
	MatchID string
	Status  Status
	Turn    int
	Active  board.Player
	You     board.Player
	Board   *board.Board
	Players []game.PlayerSnapshot
	// Checksum is shared by both halves of a paired notification. It covers
	// the public position only.
	Checksum string
	// Action labels what was applied, as the recipient may know it.
	Action  string
	Deaths  int
	Err     error
	Warning string
	Closure *repository.Closure
}

// Notifier delivers notifications to connected users. Notify is called with
// the match lock held and must not block.
type Notifier interface {
	Notify(userID string, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(userID string, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(userID string, n Notification) {
	f(userID, n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Notification) {}
