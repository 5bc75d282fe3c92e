package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/identity"
	"github.com/park285/cheese-chess-arena/internal/notify"
	"github.com/park285/cheese-chess-arena/internal/presence"
	"github.com/park285/cheese-chess-arena/internal/session"
	"github.com/park285/cheese-chess-arena/internal/store"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	alice = domain.Identity{ID: "u-alice", Name: "Alice"}
	bob   = domain.Identity{ID: "u-bob", Name: "Bob"}
	carol = domain.Identity{ID: "u-carol", Name: "Carol"}
)

type harness struct {
	ts     *httptest.Server
	ident  *identity.Provider
	coord  *session.Coordinator
	hub    *notify.Hub
	tokens map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ident, err := identity.NewProvider(identity.Config{Secret: []byte("0123456789abcdef0123")})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	coord := session.New(session.Options{Store: store.NewMemory()})
	hub := notify.NewHub(coord, nil, time.Second)
	tracker := presence.NewTracker(nil)
	tracker.OnChange(hub.LobbyChanged)
	coord.AttachNotifier(hub)
	coord.AttachRoster(tracker)

	srv := New(Options{
		Coordinator:  coord,
		Solo:         session.NewSolo(coord, time.Hour),
		Hub:          hub,
		Presence:     tracker,
		Identity:     ident,
		PingInterval: time.Second,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		coord.Wait()
	})

	h := &harness{ts: ts, ident: ident, coord: coord, hub: hub, tokens: map[string]string{}}
	for _, id := range []domain.Identity{alice, bob, carol} {
		tok, err := ident.Issue(id)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		h.tokens[id.ID] = tok
	}
	return h
}

type response struct {
	Success bool                  `json:"success"`
	Data    json.RawMessage       `json:"data"`
	Error   *chessdto.DomainError `json:"error"`
}

func (h *harness) do(t *testing.T, who domain.Identity, method, path string, body any) (int, response) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rdr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if tok := h.tokens[who.ID]; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	var out response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return res.StatusCode, out
}

func (h *harness) startGame(t *testing.T) string {
	t.Helper()
	status, res := h.do(t, alice, http.MethodPost, "/api/challenges", chessdto.ChallengeRequest{ChallengedID: bob.ID})
	if status != http.StatusOK {
		t.Fatalf("challenge: %d %+v", status, res.Error)
	}
	var created chessdto.ChallengeResponse
	mustData(t, res, &created)
	if !created.Created {
		t.Fatal("expected a new challenge")
	}

	status, res = h.do(t, bob, http.MethodPost, "/api/challenges/"+created.Challenge.ID+"/accept", nil)
	if status != http.StatusOK {
		t.Fatalf("accept: %d %+v", status, res.Error)
	}
	var accepted chessdto.ChallengeResponse
	mustData(t, res, &accepted)
	if accepted.Game == nil || accepted.Game.ViewerSide != "black" || accepted.Game.Game.White.ID != alice.ID {
		t.Fatalf("unexpected game view: %+v", accepted.Game)
	}
	return accepted.Game.Game.ID
}

func (h *harness) move(t *testing.T, who domain.Identity, gameID, from, to string) (int, response) {
	t.Helper()
	return h.do(t, who, http.MethodPost, "/api/games/"+gameID+"/move", chessdto.MoveRequest{FromSquare: from, ToSquare: to})
}

func mustData(t *testing.T, res response, v any) {
	t.Helper()
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if err := json.Unmarshal(res.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestHealthAndAuth(t *testing.T) {
	h := newHarness(t)

	status, res := h.do(t, domain.Identity{}, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK || !res.Success {
		t.Fatalf("healthz: %d", status)
	}

	status, res = h.do(t, domain.Identity{}, http.MethodGet, "/api/me", nil)
	if status != http.StatusUnauthorized || res.Error == nil || res.Error.Kind != "unauthenticated" {
		t.Fatalf("expected 401, got %d %+v", status, res.Error)
	}

	status, res = h.do(t, alice, http.MethodGet, "/api/me", nil)
	var me chessdto.Player
	mustData(t, res, &me)
	if status != http.StatusOK || me.ID != alice.ID || me.Name != "Alice" {
		t.Fatalf("me: %d %+v", status, me)
	}
}

func TestFullGameOverHTTP(t *testing.T) {
	h := newHarness(t)
	gameID := h.startGame(t)

	for _, mv := range []struct {
		who      domain.Identity
		from, to string
	}{
		{alice, "f2", "f3"},
		{bob, "e7", "e5"},
		{alice, "g2", "g4"},
		{bob, "d8", "h4"},
	} {
		status, res := h.move(t, mv.who, gameID, mv.from, mv.to)
		if status != http.StatusOK {
			t.Fatalf("move %s%s: %d %+v", mv.from, mv.to, status, res.Error)
		}
	}

	status, res := h.do(t, alice, http.MethodGet, "/api/games/"+gameID, nil)
	var view chessdto.GameView
	mustData(t, res, &view)
	if status != http.StatusOK || view.Game.Outcome != "black_wins" || view.Game.WinnerID != bob.ID || view.Game.MoveCount != 4 {
		t.Fatalf("unexpected final view: %+v", view.Game)
	}
	if view.Board.Result != "Black wins by checkmate!" {
		t.Fatalf("result text = %q", view.Board.Result)
	}

	status, res = h.move(t, alice, gameID, "e2", "e4")
	if status != http.StatusConflict || res.Error.Kind != "game_not_active" {
		t.Fatalf("expected game_not_active, got %d %+v", status, res.Error)
	}

	status, res = h.do(t, alice, http.MethodGet, "/api/games/history", nil)
	var history []chessdto.GameSummary
	mustData(t, res, &history)
	if status != http.StatusOK || len(history) != 1 || history[0].ID != gameID {
		t.Fatalf("history: %d %+v", status, history)
	}

	status, res = h.do(t, alice, http.MethodGet, "/api/games/active", nil)
	if status != http.StatusOK || string(res.Data) != "" && string(res.Data) != "null" {
		t.Fatalf("expected no active game, got %d %s", status, res.Data)
	}
}

func TestMoveErrorsMapToStatus(t *testing.T) {
	h := newHarness(t)
	gameID := h.startGame(t)

	cases := []struct {
		name     string
		who      domain.Identity
		game     string
		from, to string
		status   int
		kind     string
	}{
		{"unknown game", alice, "missing", "e2", "e4", http.StatusNotFound, "not_found"},
		{"outsider", carol, gameID, "e2", "e4", http.StatusForbidden, "forbidden"},
		{"wrong turn", bob, gameID, "e7", "e5", http.StatusConflict, "turn_order"},
		{"illegal", alice, gameID, "e2", "e5", http.StatusUnprocessableEntity, "illegal_move"},
		{"bad square", alice, gameID, "z9", "e4", http.StatusUnprocessableEntity, "illegal_move"},
	}
	for _, tc := range cases {
		status, res := h.move(t, tc.who, tc.game, tc.from, tc.to)
		if status != tc.status || res.Error == nil || res.Error.Kind != tc.kind {
			t.Fatalf("%s: got %d %+v", tc.name, status, res.Error)
		}
	}
}

func TestChallengeEndpoints(t *testing.T) {
	h := newHarness(t)

	status, res := h.do(t, alice, http.MethodPost, "/api/challenges", chessdto.ChallengeRequest{ChallengedID: alice.ID})
	if status != http.StatusBadRequest || res.Error.Kind != "self_challenge" {
		t.Fatalf("self challenge: %d %+v", status, res.Error)
	}

	status, _ = h.do(t, alice, http.MethodPost, "/api/challenges", chessdto.ChallengeRequest{ChallengedID: bob.ID})
	if status != http.StatusOK {
		t.Fatalf("challenge: %d", status)
	}
	status, res = h.do(t, alice, http.MethodPost, "/api/challenges", chessdto.ChallengeRequest{ChallengedID: bob.ID})
	var again chessdto.ChallengeResponse
	mustData(t, res, &again)
	if again.Created {
		t.Fatal("re-challenge must return the pending challenge")
	}

	status, res = h.do(t, bob, http.MethodGet, "/api/challenges/pending", nil)
	var pending []chessdto.ChallengeRecord
	mustData(t, res, &pending)
	if status != http.StatusOK || len(pending) != 1 || pending[0].Challenger.ID != alice.ID {
		t.Fatalf("pending: %+v", pending)
	}

	status, res = h.do(t, carol, http.MethodPost, "/api/challenges/"+pending[0].ID+"/accept", nil)
	if status != http.StatusNotFound {
		t.Fatalf("outsider accept: %d %+v", status, res.Error)
	}

	status, res = h.do(t, bob, http.MethodPost, "/api/challenges/"+pending[0].ID+"/decline", nil)
	var declined chessdto.ChallengeResponse
	mustData(t, res, &declined)
	if declined.Challenge.Status != "declined" {
		t.Fatalf("decline: %d %+v", status, declined)
	}

	status, _ = h.do(t, bob, http.MethodPost, "/api/challenges/"+pending[0].ID+"/accept", nil)
	if status != http.StatusNotFound {
		t.Fatalf("accept after decline: %d", status)
	}

	status, _ = h.do(t, alice, http.MethodPost, "/api/challenges", map[string]string{"bogus": "x"})
	if status != http.StatusBadRequest {
		t.Fatalf("bad body: %d", status)
	}
}

func TestBoardPNGAndPGN(t *testing.T) {
	h := newHarness(t)
	gameID := h.startGame(t)
	if status, res := h.move(t, alice, gameID, "e2", "e4"); status != http.StatusOK {
		t.Fatalf("move: %d %+v", status, res.Error)
	}

	req, _ := http.NewRequest(http.MethodGet, h.ts.URL+"/api/games/"+gameID+"/board.png", nil)
	req.Header.Set("Authorization", "Bearer "+h.tokens[bob.ID])
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "image/png" || !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatalf("unexpected png response: %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}

	req, _ = http.NewRequest(http.MethodGet, h.ts.URL+"/api/games/"+gameID+"/pgn", nil)
	req.Header.Set("Authorization", "Bearer "+h.tokens[alice.ID])
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("pgn: %v", err)
	}
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "1. e4 *") {
		t.Fatalf("unexpected pgn: %d %s", res.StatusCode, body)
	}

	status, r2 := h.do(t, bob, http.MethodGet, "/api/games/"+gameID+"/board", nil)
	var snap chessdto.BoardSnapshot
	mustData(t, r2, &snap)
	if status != http.StatusOK || snap.Perspective != "black" || !snap.IsViewerTurn || snap.Rows[0][0].Label != "h1" {
		t.Fatalf("unexpected board: %+v", snap)
	}
}

func TestResignEndpoint(t *testing.T) {
	h := newHarness(t)
	gameID := h.startGame(t)

	status, res := h.do(t, bob, http.MethodPost, "/api/games/"+gameID+"/resign", nil)
	var view chessdto.GameView
	mustData(t, res, &view)
	if status != http.StatusOK || view.Game.Status != "resigned" || view.Game.WinnerID != alice.ID {
		t.Fatalf("resign: %d %+v", status, view.Game)
	}
	status, res = h.do(t, alice, http.MethodPost, "/api/games/"+gameID+"/resign", nil)
	if status != http.StatusConflict || res.Error.Kind != "game_not_active" {
		t.Fatalf("second resign: %d %+v", status, res.Error)
	}
}

func TestSoloEndpoints(t *testing.T) {
	h := newHarness(t)

	status, res := h.do(t, alice, http.MethodPost, "/api/solo", chessdto.SoloRequest{FromSquare: "e2", ToSquare: "e4"})
	var state chessdto.SoloState
	mustData(t, res, &state)
	if status != http.StatusOK || state.MoveCount != 1 || state.Board.Squares["e4"] != "P" {
		t.Fatalf("solo move: %d %+v", status, state)
	}

	status, res = h.do(t, alice, http.MethodGet, "/api/solo", nil)
	mustData(t, res, &state)
	if state.Board.Squares["e4"] != "P" || state.Board.Turn != "black" {
		t.Fatalf("solo state not kept: %+v", state.Board)
	}

	status, res = h.do(t, alice, http.MethodPost, "/api/solo", chessdto.SoloRequest{FromSquare: "e4", ToSquare: "e6"})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("illegal solo move: %d", status)
	}

	status, res = h.do(t, alice, http.MethodPost, "/api/solo", chessdto.SoloRequest{Reset: true})
	mustData(t, res, &state)
	if state.MoveCount != 0 || state.Board.Squares["e2"] != "P" {
		t.Fatalf("reset: %+v", state)
	}
}

func dial(t *testing.T, h *harness, who domain.Identity, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + path + "?token=" + h.tokens[who.ID]
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestLobbySocketPushesPerViewerSnapshots(t *testing.T) {
	h := newHarness(t)
	conn := dial(t, h, alice, "/ws/lobby")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var snap chessdto.LobbySnapshot
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Type != "lobby" || snap.Viewer.ID != alice.ID {
		t.Fatalf("unexpected lobby snapshot: %+v", snap)
	}

	// bob connecting shows up in alice's available list
	dial(t, h, bob, "/ws/lobby")
	for {
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(snap.AvailablePlayers) == 1 && snap.AvailablePlayers[0].ID == bob.ID {
			break
		}
	}
}

func TestGameSocketStreamsMoves(t *testing.T) {
	h := newHarness(t)
	gameID := h.startGame(t)

	status, _ := h.do(t, carol, http.MethodGet, "/ws/game/"+gameID, nil)
	if status != http.StatusForbidden {
		t.Fatalf("outsider stream: %d", status)
	}

	conn := dial(t, h, bob, "/ws/game/"+gameID)
	if status, res := h.move(t, alice, gameID, "e2", "e4"); status != http.StatusOK {
		t.Fatalf("move: %d %+v", status, res.Error)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var view chessdto.GameView
		if err := wsjson.Read(ctx, conn, &view); err != nil {
			t.Fatalf("read: %v", err)
		}
		if view.Type != "game" || view.ViewerSide != "black" {
			t.Fatalf("unexpected view: %+v", view)
		}
		if view.Game.MoveCount == 1 {
			if !view.Board.IsViewerTurn || view.Board.LastMove == nil || view.Board.LastMove.ToSquare != "e4" {
				t.Fatalf("unexpected board: %+v", view.Board)
			}
			return
		}
	}
}
