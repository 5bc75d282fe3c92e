package chessbuilder

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-chess-arena/internal/config"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/store"
)

func testConfig(t *testing.T, vars map[string]string) *config.AppConfig {
	t.Helper()
	vars["AUTH_SECRET"] = "0123456789abcdef0123"
	cfg, err := config.LoadFrom(vars)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestNewInMemory(t *testing.T) {
	deps, err := New(context.Background(), testConfig(t, map[string]string{}), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer deps.Close()

	if _, ok := deps.Store.(*store.Memory); !ok {
		t.Fatalf("expected memory store, got %T", deps.Store)
	}
	if deps.Archive != nil || deps.Webhook != nil {
		t.Fatal("optional sinks must stay nil")
	}
	release := deps.Presence.Connect(domain.Identity{ID: "u-a", Name: "Alice"})
	defer release()
	players, err := deps.Coordinator.AvailablePlayers(context.Background(), domain.Identity{ID: "u-b", Name: "Bob"})
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(players) != 1 || players[0].ID != "u-a" {
		t.Fatalf("presence not wired as roster: %+v", players)
	}
}

func TestNewWithRedisAndArchive(t *testing.T) {
	mr := miniredis.RunT(t)
	deps, err := New(context.Background(), testConfig(t, map[string]string{
		"REDIS_URL":          "redis://" + mr.Addr() + "/0",
		"DATABASE_URL":       "sqlite::memory:",
		"RESULT_WEBHOOK_URL": "http://127.0.0.1:1/hook",
	}), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer deps.Close()

	if _, ok := deps.Store.(*store.Redis); !ok {
		t.Fatalf("expected redis store, got %T", deps.Store)
	}
	if deps.Archive == nil || deps.Webhook == nil {
		t.Fatal("expected archive and webhook sinks")
	}
}

func TestNewRejectsBadRedis(t *testing.T) {
	if _, err := New(context.Background(), testConfig(t, map[string]string{"REDIS_URL": "http://nope"}), nil); err == nil {
		t.Fatal("expected error")
	}
}
