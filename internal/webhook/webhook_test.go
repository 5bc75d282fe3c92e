package webhook

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type fakeEndpoint struct {
	mu       sync.Mutex
	statuses []int
	events   []Event
	auth     []string
}

func (f *fakeEndpoint) handle(ctx *fasthttp.RequestCtx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ev Event
	if err := json.Unmarshal(ctx.PostBody(), &ev); err == nil {
		f.events = append(f.events, ev)
	}
	f.auth = append(f.auth, string(ctx.Request.Header.Peek("Authorization")))
	status := fasthttp.StatusOK
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		f.statuses = f.statuses[1:]
	}
	ctx.SetStatusCode(status)
}

func startEndpoint(t *testing.T, f *fakeEndpoint) fasthttp.DialFunc {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: f.handle}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return func(string) (net.Conn, error) { return ln.Dial() }
}

func finishedGame() *domain.Game {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Game{
		ID:         "g-9",
		White:      domain.Identity{ID: "u-a", Name: "Alice"},
		Black:      domain.Identity{ID: "u-b", Name: "Bob"},
		BoardState: domain.StartFEN,
		Turn:       domain.White,
		Status:     domain.StatusResigned,
		Outcome:    domain.OutcomeWhiteResigned,
		WinnerID:   "u-b",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSaveResultPostsEvent(t *testing.T) {
	f := &fakeEndpoint{}
	c := New("http://results.test/hook", WithDialer(startEndpoint(t, f)), WithBearerToken("s3cret"))

	if err := c.SaveResult(context.Background(), finishedGame()); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.events))
	}
	ev := f.events[0]
	if ev.Type != EventGameFinished || ev.Result != "0-1" || ev.Termination != "resignation" || ev.Game.ID != "g-9" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if f.auth[0] != "Bearer s3cret" {
		t.Fatalf("authorization = %q", f.auth[0])
	}
}

func TestSaveResultRetriesServerErrors(t *testing.T) {
	f := &fakeEndpoint{statuses: []int{503, 502}}
	c := New("http://results.test/hook", WithDialer(startEndpoint(t, f)), WithRetry(3))

	if err := c.SaveResult(context.Background(), finishedGame()); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(f.events))
	}
}

func TestSaveResultDoesNotRetryClientErrors(t *testing.T) {
	f := &fakeEndpoint{statuses: []int{400}}
	c := New("http://results.test/hook", WithDialer(startEndpoint(t, f)), WithRetry(3))

	if err := c.SaveResult(context.Background(), finishedGame()); err == nil {
		t.Fatal("expected error")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(f.events))
	}
}

func TestSaveResultSkipsActiveGames(t *testing.T) {
	f := &fakeEndpoint{}
	c := New("http://results.test/hook", WithDialer(startEndpoint(t, f)))
	g := finishedGame()
	g.Status = domain.StatusActive
	if err := c.SaveResult(context.Background(), g); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) != 0 {
		t.Fatalf("expected no request, got %d", len(f.events))
	}
}
