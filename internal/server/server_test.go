package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cellwars/cellwars-server/internal/config"
	"github.com/cellwars/cellwars-server/internal/match"
	"github.com/cellwars/cellwars-server/internal/repository"
)

const wait = 2 * time.Second

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Address:         "127.0.0.1:0",
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  4096,
		WriteTimeout:    time.Second,
		PingInterval:    30 * time.Second,
		SendQueue:       64,
	}
}

func testSettings() match.Settings {
	s := match.DefaultSettings()
	s.ReadinessWindow = time.Minute
	s.TurnDuration = time.Minute
	s.InactivityWarning = 20 * time.Second
	s.InactivityFinal = 40 * time.Second
	s.InactivityForfeit = time.Minute
	s.ExitGrace = time.Minute
	s.CleanupDelay = time.Minute
	s.FatigueTurn = 0
	s.Seed = 7
	return s
}

type fixture struct {
	ts      *httptest.Server
	manager *match.Manager
	hub     *Hub
	store   *repository.MemoryStore
}

func newFixture(t *testing.T, settings match.Settings, maxMatches int) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{hub: NewHub(logger), store: repository.NewMemoryStore()}
	f.manager = match.NewManager(logger, settings, f.store, f.hub, match.ManagerOptions{MaxMatches: maxMatches})
	f.ts = httptest.NewServer(New(testWSConfig(), f.manager, f.hub, f.store, logger).Routes())
	t.Cleanup(func() {
		f.hub.CloseAll()
		f.ts.Close()
	})
	return f
}

func (f *fixture) post(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+"/matches", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) createMatch(t *testing.T, one, two string) string {
	t.Helper()
	resp := f.post(t, `{"player_one":"`+one+`","player_two":"`+two+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out matchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.MatchID)
	assert.Equal(t, match.StatusWaitingToStart.String(), out.Status)
	return out.MatchID
}

func (f *fixture) dial(matchID, userID string) (*websocket.Conn, *http.Response, error) {
	q := url.Values{"match": {matchID}, "user": {userID}}
	u := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws?" + q.Encode()
	return websocket.DefaultDialer.Dial(u, nil)
}

func (f *fixture) connect(t *testing.T, matchID, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := f.dial(matchID, userID)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, req Request) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
}

// next reads envelopes until one of type typ arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	for {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", typ)
		if env.Type == typ {
			return env
		}
	}
}

func (f *fixture) getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestWebSocketMatchFlow(t *testing.T) {
	f := newFixture(t, testSettings(), 0)
	id := f.createMatch(t, "alice", "bob")

	alice := f.connect(t, id, "alice")
	bob := f.connect(t, id, "bob")
	assert.Equal(t, "P1", next(t, alice, string(match.KindState)).You)
	assert.Equal(t, "P2", next(t, bob, string(match.KindState)).You)

	send(t, alice, Request{Type: RequestReady})
	send(t, bob, Request{Type: RequestReady})
	a, b := next(t, alice, string(match.KindStarted)), next(t, bob, string(match.KindStarted))
	assert.Equal(t, a.Checksum, b.Checksum)
	assert.Equal(t, "P1", a.Active)
	assert.Equal(t, 1, a.Turn)

	send(t, alice, Request{Type: RequestToggleSpawn})
	hint := next(t, alice, string(match.KindHint))
	var spawnable int
	for _, c := range hint.Board {
		if c.Hint == "SPAWNABLE" {
			spawnable++
		}
	}
	assert.Positive(t, spawnable)

	send(t, alice, Request{Type: RequestSelectCell, Row: 9, Col: 5})
	a, b = next(t, alice, string(match.KindProcessed)), next(t, bob, string(match.KindProcessed))
	assert.Equal(t, a.Checksum, b.Checksum)
	assert.NotEmpty(t, a.Action)

	send(t, bob, Request{Type: RequestEndTurn, ID: "req-1"})
	rejected := next(t, bob, TypeError)
	assert.Equal(t, "req-1", rejected.ID)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, "ILLEGAL_SELECTION", rejected.Error.Code)
	assert.Equal(t, "InvalidArgument", rejected.Error.GRPCCode)

	send(t, alice, Request{Type: RequestConcede})
	for _, conn := range []*websocket.Conn{alice, bob} {
		ended := next(t, conn, string(match.KindEnded))
		require.NotNil(t, ended.Closure)
		assert.Equal(t, repository.ReasonConcede, ended.Closure.Reason)
		assert.Equal(t, "bob", ended.Closure.WinnerID)
		assert.Equal(t, "alice", ended.Closure.LoserID)
	}

	require.Eventually(t, func() bool {
		return f.getJSON(t, "/matches/"+id+"/closure", nil) == http.StatusOK
	}, wait, 10*time.Millisecond)

	var closures []ClosureView
	require.Equal(t, http.StatusOK, f.getJSON(t, "/users/alice/closures?limit=5", &closures))
	require.Len(t, closures, 1)
	assert.Equal(t, id, closures[0].MatchID)
}

func TestLifecycleViolationsAreSilent(t *testing.T) {
	f := newFixture(t, testSettings(), 0)
	id := f.createMatch(t, "alice", "bob")
	alice := f.connect(t, id, "alice")
	next(t, alice, string(match.KindState))

	send(t, alice, Request{Type: RequestSelectCell, Row: 10, Col: 5})
	send(t, alice, Request{Type: RequestPing, ID: "p"})

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(wait)))
	var env Envelope
	require.NoError(t, alice.ReadJSON(&env))
	assert.Equal(t, TypePong, env.Type, "nothing is sent for the ignored selection")
	assert.Equal(t, "p", env.ID)
}

func TestMalformedRequests(t *testing.T) {
	f := newFixture(t, testSettings(), 0)
	id := f.createMatch(t, "alice", "bob")
	alice := f.connect(t, id, "alice")
	next(t, alice, string(match.KindState))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := next(t, alice, TypeError)
	assert.Equal(t, "MALFORMED_INPUT", env.Error.Code)

	send(t, alice, Request{Type: "dance", ID: "7"})
	env = next(t, alice, TypeError)
	assert.Equal(t, "7", env.ID)
	assert.Equal(t, "MALFORMED_INPUT", env.Error.Code)
}

func TestWebSocketRejectsStrangers(t *testing.T) {
	f := newFixture(t, testSettings(), 0)
	id := f.createMatch(t, "alice", "bob")

	_, resp, err := f.dial("missing", "alice")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = f.dial(id, "mallory")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateMatchErrors(t *testing.T) {
	f := newFixture(t, testSettings(), 2)

	assert.Equal(t, http.StatusBadRequest, f.post(t, `{`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.post(t, `{"player_one":"alice","player_two":"alice"}`).StatusCode)

	f.createMatch(t, "alice", "bob")
	assert.Equal(t, http.StatusConflict, f.post(t, `{"player_one":"bob","player_two":"carol"}`).StatusCode)
	f.createMatch(t, "carol", "dave")
	assert.Equal(t, http.StatusServiceUnavailable, f.post(t, `{"player_one":"erin","player_two":"frank"}`).StatusCode)
}

func TestGetMatchAndClosure(t *testing.T) {
	f := newFixture(t, testSettings(), 0)
	id := f.createMatch(t, "alice", "bob")

	var got matchResponse
	require.Equal(t, http.StatusOK, f.getJSON(t, "/matches/"+id, &got))
	assert.Equal(t, "alice", got.PlayerOne)
	assert.Equal(t, "bob", got.PlayerTwo)

	assert.Equal(t, http.StatusNotFound, f.getJSON(t, "/matches/nope", nil))
	assert.Equal(t, http.StatusNotFound, f.getJSON(t, "/matches/"+id+"/closure", nil))
	assert.Equal(t, http.StatusBadRequest, f.getJSON(t, "/users/alice/closures?limit=zero", nil))
}

func TestDisconnectStartsExitGrace(t *testing.T) {
	s := testSettings()
	s.ExitGrace = 50 * time.Millisecond
	f := newFixture(t, s, 0)
	id := f.createMatch(t, "alice", "bob")

	alice := f.connect(t, id, "alice")
	bob := f.connect(t, id, "bob")
	send(t, alice, Request{Type: RequestReady})
	send(t, bob, Request{Type: RequestReady})
	next(t, alice, string(match.KindStarted))
	next(t, bob, string(match.KindStarted))

	require.NoError(t, bob.Close())

	ended := next(t, alice, string(match.KindEnded))
	require.NotNil(t, ended.Closure)
	assert.Equal(t, repository.ReasonLeft, ended.Closure.Reason)
	assert.Equal(t, "bob", ended.Closure.LoserID)
}

func TestReconnectReplacesClient(t *testing.T) {
	f := newFixture(t, testSettings(), 0)
	id := f.createMatch(t, "alice", "bob")

	first := f.connect(t, id, "alice")
	next(t, first, string(match.KindState))
	second := f.connect(t, id, "alice")
	next(t, second, string(match.KindState))

	require.NoError(t, first.SetReadDeadline(time.Now().Add(wait)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, f.hub.Connected("alice"))

	send(t, second, Request{Type: RequestPing, ID: "still-here"})
	assert.Equal(t, "still-here", next(t, second, TypePong).ID)
}

func TestReplayEndpoint(t *testing.T) {
	logger := zaptest.NewLogger(t)
	hub := NewHub(logger)
	store := repository.NewMemoryStore()
	manager := match.NewManager(logger, testSettings(), store, hub, match.ManagerOptions{ReplayDir: t.TempDir()})
	ts := httptest.NewServer(New(testWSConfig(), manager, hub, store, logger).Routes())
	t.Cleanup(ts.Close)

	m, err := manager.CreateMatch("alice", "bob")
	require.NoError(t, err)
	require.NoError(t, m.Ready("alice"))
	require.NoError(t, m.Ready("bob"))
	require.NoError(t, m.Concede("bob"))
	<-m.Done()

	resp, err := http.Get(ts.URL + "/matches/" + m.ID + "/replay")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		MatchID string        `json:"match_id"`
		Frames  []replayFrame `json:"frames"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, m.ID, out.MatchID)
	require.Len(t, out.Frames, 2)
	assert.Equal(t, "start", out.Frames[0].Action)
	assert.NotEmpty(t, out.Frames[1].Checksum)

	f := newFixture(t, testSettings(), 0)
	assert.Equal(t, http.StatusNotFound, f.getJSON(t, "/matches/"+m.ID+"/replay", nil), "replays are off by default")
}

