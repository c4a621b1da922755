// Package server exposes matches to players over HTTP and websockets.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/cellwars/cellwars-server/internal/config"
	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/match"
	"github.com/cellwars/cellwars-server/internal/repository"
)

const defaultClosureLimit = 20

// Server wires the match manager to HTTP handlers.
type Server struct {
	cfg      config.WebSocketConfig
	manager  *match.Manager
	hub      *Hub
	store    repository.ClosureStore
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a server. hub must be the notifier the manager was built with.
func New(cfg config.WebSocketConfig, manager *match.Manager, hub *Hub, store repository.ClosureStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		manager: manager,
		hub:     hub,
		store:   store,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Routes returns the HTTP handler of the server.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /matches", s.handleCreateMatch)
	mux.HandleFunc("GET /matches/{id}", s.handleGetMatch)
	mux.HandleFunc("GET /matches/{id}/closure", s.handleGetClosure)
	mux.HandleFunc("GET /matches/{id}/replay", s.handleGetReplay)
	mux.HandleFunc("GET /users/{id}/closures", s.handleListClosures)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

type createMatchRequest struct {
	PlayerOne string `json:"player_one"`
	PlayerTwo string `json:"player_two"`
}

type matchResponse struct {
	MatchID   string `json:"match_id"`
	PlayerOne string `json:"player_one"`
	PlayerTwo string `json:"player_two"`
	Status    string `json:"status"`
	Turn      int    `json:"turn"`
	Active    string `json:"active,omitempty"`
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.Wrap(apperrors.CodeMalformedInput, "body is not valid JSON", err))
		return
	}

	m, err := s.manager.CreateMatch(req.PlayerOne, req.PlayerTwo)
	switch {
	case err == nil:
	case errors.Is(err, match.ErrCapacity):
		writeJSON(w, http.StatusServiceUnavailable, ErrorView{
			Code:     "CAPACITY",
			GRPCCode: codes.Unavailable.String(),
			Message:  err.Error(),
		})
		return
	case errors.Is(err, match.ErrUserBusy):
		writeJSON(w, http.StatusConflict, ErrorView{
			Code:     "USER_BUSY",
			GRPCCode: codes.AlreadyExists.String(),
			Message:  err.Error(),
		})
		return
	case apperrors.GetCode(err) == apperrors.CodeMalformedInput:
		writeError(w, http.StatusBadRequest, err)
		return
	default:
		s.logger.Error("failed to create match", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, describe(m))
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager.GetMatch(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, apperrors.New(apperrors.CodeMatchNotFound, "match not found"))
		return
	}
	writeJSON(w, http.StatusOK, describe(m))
}

func (s *Server) handleGetClosure(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetClosure(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, apperrors.New(apperrors.CodeMatchNotFound, "no closure for match"))
		return
	}
	if err != nil {
		s.logger.Error("failed to load closure", zap.String("match_id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeClosure(c))
}

type replayFrame struct {
	Turn     int    `json:"turn"`
	Active   string `json:"active"`
	Action   string `json:"action"`
	Checksum string `json:"checksum"`
}

// handleGetReplay lists the frames of a finished match's replay.
func (s *Server) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	recorder := s.manager.Replays()
	if recorder == nil {
		writeError(w, http.StatusNotFound, apperrors.New(apperrors.CodeMatchNotFound, "replays are disabled"))
		return
	}
	replay, err := recorder.Load(r.PathValue("id"))
	if err != nil {
		s.logger.Debug("replay not loaded", zap.String("match_id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusNotFound, apperrors.New(apperrors.CodeMatchNotFound, "no replay for match"))
		return
	}

	frames := make([]replayFrame, 0, replay.Len())
	for i := 0; i < replay.Len(); i++ {
		snap := replay.At(i)
		sum, err := snap.ComputeChecksum()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		frames = append(frames, replayFrame{
			Turn:     snap.Turn,
			Active:   snap.Active.String(),
			Action:   snap.Action,
			Checksum: sum.Hash,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"match_id": replay.MatchID, "frames": frames})
}

func (s *Server) handleListClosures(w http.ResponseWriter, r *http.Request) {
	limit := defaultClosureLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, apperrors.New(apperrors.CodeMalformedInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	closures, err := s.store.ListClosuresForUser(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.logger.Error("failed to list closures", zap.String("user", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]ClosureView, 0, len(closures))
	for _, c := range closures {
		out = append(out, encodeClosure(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWebSocket attaches a user to their match for the life of the
// connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	matchID, userID := r.URL.Query().Get("match"), r.URL.Query().Get("user")
	m, ok := s.manager.GetMatch(matchID)
	if !ok {
		writeError(w, http.StatusNotFound, apperrors.New(apperrors.CodeMatchNotFound, "match not found"))
		return
	}
	if m.PlayerOf(userID) == board.PlayerNone {
		writeError(w, http.StatusForbidden, apperrors.New(apperrors.CodeUnknownPlayer, "user is not part of this match"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(s.hub, conn, m, userID, s.cfg, s.logger)
	s.hub.register(c)
	go c.writePump()

	if err := m.Connect(userID); err != nil {
		c.reply("", err)
	}
	c.readPump()

	if s.hub.unregister(c) {
		if err := m.Disconnect(userID); err != nil {
			s.logger.Debug("disconnect ignored", zap.String("user", userID), zap.Error(err))
		}
	}
}

func describe(m *match.Match) matchResponse {
	one, two := m.Users()
	turn, active := m.Turn()
	resp := matchResponse{
		MatchID:   m.ID,
		PlayerOne: one,
		PlayerTwo: two,
		Status:    m.Status().String(),
		Turn:      turn,
	}
	if active.Valid() {
		resp.Active = active.String()
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, encodeError(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
