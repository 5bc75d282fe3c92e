package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/session"
	"github.com/park285/cheese-chess-arena/internal/store"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
)

var (
	alice = domain.Identity{ID: "u1", Name: "alice"}
	bob   = domain.Identity{ID: "u2", Name: "bob"}
	eve   = domain.Identity{ID: "u9", Name: "eve"}
)

type roster []domain.Identity

func (r roster) Connected() []domain.Identity { return r }

func newTestHub(t *testing.T) (*Hub, *session.Coordinator) {
	t.Helper()
	c := session.New(session.Options{Store: store.NewMemory()})
	c.AttachRoster(roster{alice, bob, eve})
	h := NewHub(c, nil, time.Second)
	c.AttachNotifier(h)
	t.Cleanup(h.Close)
	return h, c
}

func chanSink(buf int) (Sink, chan any) {
	ch := make(chan any, buf)
	return SinkFunc(func(_ context.Context, v any) error {
		ch <- v
		return nil
	}), ch
}

func next(t *testing.T, ch chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot pushed")
	}
	return nil
}

// drain waits for the pump to go quiet and returns the last snapshot seen.
func drain(t *testing.T, ch chan any) any {
	t.Helper()
	last := next(t, ch)
	for {
		select {
		case v := <-ch:
			last = v
		case <-time.After(100 * time.Millisecond):
			return last
		}
	}
}

func TestLobbySnapshotsArePerRecipient(t *testing.T) {
	h, c := newTestHub(t)
	ctx := context.Background()

	aliceSink, aliceCh := chanSink(16)
	bobSink, bobCh := chanSink(16)
	if _, err := h.SubscribeLobby(alice, aliceSink); err != nil {
		t.Fatalf("SubscribeLobby alice: %v", err)
	}
	if _, err := h.SubscribeLobby(bob, bobSink); err != nil {
		t.Fatalf("SubscribeLobby bob: %v", err)
	}
	initial := next(t, aliceCh).(*chessdto.LobbySnapshot)
	if initial.Viewer.ID != alice.ID {
		t.Fatalf("initial snapshot for %s", initial.Viewer.ID)
	}
	for _, p := range initial.AvailablePlayers {
		if p.ID == alice.ID {
			t.Fatalf("viewer listed as available to themselves")
		}
	}
	next(t, bobCh)

	if _, _, err := c.CreateChallenge(ctx, alice, bob); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	bobView := drain(t, bobCh).(*chessdto.LobbySnapshot)
	if bobView.Viewer.ID != bob.ID || len(bobView.PendingChallenges) != 1 {
		t.Fatalf("bob lobby after challenge: %+v", bobView)
	}
	aliceView := drain(t, aliceCh).(*chessdto.LobbySnapshot)
	if len(aliceView.PendingChallenges) != 0 {
		t.Fatalf("challenger sees own challenge as pending: %+v", aliceView.PendingChallenges)
	}
}

func TestGameGroupRefusesOutsiders(t *testing.T) {
	h, c := newTestHub(t)
	ctx := context.Background()
	ch, _, err := c.CreateChallenge(ctx, alice, bob)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	g, _, err := c.AcceptChallenge(ctx, bob, ch.ID)
	if err != nil {
		t.Fatalf("AcceptChallenge: %v", err)
	}

	sink, _ := chanSink(1)
	if _, err := h.SubscribeGame(ctx, g.ID, eve, sink); !errors.Is(err, session.ErrForbidden) {
		t.Fatalf("outsider subscribe err=%v", err)
	}
	if _, err := h.SubscribeGame(ctx, "missing", alice, sink); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("missing game subscribe err=%v", err)
	}
	if h.Count(g.ID) != 0 {
		t.Fatalf("refused subscriber was added")
	}

	whiteSink, whiteCh := chanSink(16)
	blackSink, blackCh := chanSink(16)
	if _, err := h.SubscribeGame(ctx, g.ID, alice, whiteSink); err != nil {
		t.Fatalf("SubscribeGame alice: %v", err)
	}
	if _, err := h.SubscribeGame(ctx, g.ID, bob, blackSink); err != nil {
		t.Fatalf("SubscribeGame bob: %v", err)
	}
	next(t, whiteCh)
	next(t, blackCh)

	if _, err := c.ProposeMove(ctx, g.ID, alice, "e2", "e4", ""); err != nil {
		t.Fatalf("ProposeMove: %v", err)
	}
	wv := drain(t, whiteCh).(*chessdto.GameView)
	bv := drain(t, blackCh).(*chessdto.GameView)
	if wv.Game.MoveCount != 1 || bv.Game.MoveCount != 1 {
		t.Fatalf("stale snapshots: white=%d black=%d", wv.Game.MoveCount, bv.Game.MoveCount)
	}
	if wv.Board.Perspective != "white" || bv.Board.Perspective != "black" {
		t.Fatalf("perspectives: %s %s", wv.Board.Perspective, bv.Board.Perspective)
	}
	if wv.Board.IsViewerTurn || !bv.Board.IsViewerTurn {
		t.Fatalf("turn flags: white=%v black=%v", wv.Board.IsViewerTurn, bv.Board.IsViewerTurn)
	}
}

func TestFailedPushDropsOnlyThatSubscriber(t *testing.T) {
	h, _ := newTestHub(t)

	broken := SinkFunc(func(context.Context, any) error { return errors.New("connection reset") })
	bad, err := h.SubscribeLobby(alice, broken)
	if err != nil {
		t.Fatalf("SubscribeLobby: %v", err)
	}
	goodSink, goodCh := chanSink(16)
	good, err := h.SubscribeLobby(bob, goodSink)
	if err != nil {
		t.Fatalf("SubscribeLobby: %v", err)
	}

	select {
	case <-bad.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("failing subscriber was not removed")
	}
	next(t, goodCh)
	h.LobbyChanged()
	next(t, goodCh)
	if h.Count("") != 1 {
		t.Fatalf("lobby members=%d want 1", h.Count(""))
	}

	good.Close()
	good.Close()
	if h.Count("") != 0 {
		t.Fatalf("closed subscriber still counted")
	}
}

func TestClosedHubRefusesSubscribers(t *testing.T) {
	h, _ := newTestHub(t)
	h.Close()
	sink, _ := chanSink(1)
	if _, err := h.SubscribeLobby(alice, sink); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after close err=%v", err)
	}
}
