package presence

import (
	"testing"

	"github.com/park285/cheese-chess-arena/internal/domain"
)

func TestTrackerRefCounts(t *testing.T) {
	tr := NewTracker(nil)
	changes := 0
	tr.OnChange(func() { changes++ })

	alice := domain.Identity{ID: "u1", Name: "alice"}
	r1 := tr.Connect(alice)
	r2 := tr.Connect(alice)
	if changes != 1 || !tr.Online("u1") {
		t.Fatalf("changes=%d online=%v after two connections", changes, tr.Online("u1"))
	}
	r1()
	r1()
	if !tr.Online("u1") || changes != 1 {
		t.Fatalf("second connection should keep alice online")
	}
	r2()
	if tr.Online("u1") || changes != 2 {
		t.Fatalf("online=%v changes=%d after last release", tr.Online("u1"), changes)
	}

	tr.Connect(domain.Identity{})
	if len(tr.Connected()) != 0 || changes != 2 {
		t.Fatalf("anonymous connection was tracked")
	}
}

func TestConnectedOrderedByName(t *testing.T) {
	tr := NewTracker(nil)
	tr.Connect(domain.Identity{ID: "u2", Name: "bob"})
	tr.Connect(domain.Identity{ID: "u1", Name: "alice"})
	got := tr.Connected()
	if len(got) != 2 || got[0].Name != "alice" || got[1].Name != "bob" {
		t.Fatalf("Connected()=%+v", got)
	}
}
