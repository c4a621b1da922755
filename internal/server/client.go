package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cellwars/cellwars-server/internal/config"
	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/rules"
	"github.com/cellwars/cellwars-server/internal/match"
)

// Client is one user's websocket connection to a match.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	match  *match.Match
	userID string
	cfg    config.WebSocketConfig
	logger *zap.Logger

	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, m *match.Match, userID string, cfg config.WebSocketConfig, logger *zap.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		match:  m,
		userID: userID,
		cfg:    cfg,
		logger: logger.With(zap.String("user", userID), zap.String("match_id", m.ID)),
		send:   make(chan Envelope, cfg.SendQueue),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks. A client that cannot keep up is dropped.
func (c *Client) enqueue(env Envelope) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- env:
	default:
		c.logger.Warn("send queue full, dropping client")
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) pongWait() time.Duration {
	return c.cfg.PingInterval * 10 / 9
}

// readPump decodes requests until the connection fails.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply("", apperrors.Wrap(apperrors.CodeMalformedInput, "request is not valid JSON", err))
			continue
		}
		c.dispatch(req)
	}
}

// writePump drains the send queue and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// dispatch runs req against the match. Outcomes reach the client as
// notifications; only rejected requests are answered directly.
func (c *Client) dispatch(req Request) {
	var err error
	switch req.Type {
	case RequestReady:
		err = c.match.Ready(c.userID)
	case RequestSelectCell:
		_, err = c.match.SelectCell(c.userID, board.Coord{Row: req.Row, Col: req.Col})
	case RequestToggleSpawn:
		_, err = c.match.ToggleSpawn(c.userID)
	case RequestSelectSpell:
		_, err = c.match.SelectSpell(c.userID, rules.SpellID(req.Spell))
	case RequestEndTurn:
		err = c.match.EndTurn(c.userID)
	case RequestConcede:
		err = c.match.Concede(c.userID)
	case RequestPing:
		c.enqueue(Envelope{Type: TypePong, ID: req.ID})
		return
	default:
		err = apperrors.WithMetadata(apperrors.CodeMalformedInput, "unknown request type",
			map[string]string{"type": req.Type})
	}
	if err != nil {
		c.reply(req.ID, err)
	}
}

func (c *Client) reply(id string, err error) {
	code := apperrors.GetCode(err)
	if !code.Surfaced() {
		c.logger.Debug("request dropped", zap.Error(err))
		return
	}
	c.logger.Debug("request rejected", zap.String("code", string(code)), zap.Error(err))
	c.enqueue(Envelope{Type: TypeError, ID: id, MatchID: c.match.ID, Error: encodeError(err)})
}
