// Package archive keeps finished games in SQL (PostgreSQL through lib/pq or SQLite through
// modernc.org/sqlite) together with their PGN.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("archive: game not found")

type dialect int

const (
	postgres dialect = iota
	sqlite
)

type Archive struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

// Open connects to databaseURL. postgres:// and postgresql:// URLs use lib/pq; sqlite:<path>
// (or sqlite::memory:) uses the pure Go SQLite driver.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Archive, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		d = postgres
		db, err = sql.Open("postgres", databaseURL)
		if err == nil {
			db.SetMaxOpenConns(16)
			db.SetMaxIdleConns(8)
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	case strings.HasPrefix(databaseURL, "sqlite:"):
		d = sqlite
		path := strings.TrimPrefix(databaseURL, "sqlite:")
		dsn := path
		if path != ":memory:" {
			dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// one writer at a time; also keeps :memory: on a single connection
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme")
	}
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive db: %w", err)
	}
	return &Archive{db: db, dialect: d, logger: logger}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS chess_games (
	game_id TEXT PRIMARY KEY,
	white_id TEXT NOT NULL,
	white_name TEXT NOT NULL,
	black_id TEXT NOT NULL,
	black_name TEXT NOT NULL,
	status TEXT NOT NULL,
	outcome TEXT NOT NULL,
	winner_id TEXT NOT NULL DEFAULT '',
	termination TEXT NOT NULL,
	result TEXT NOT NULL,
	moves_uci TEXT NOT NULL,
	moves_san TEXT NOT NULL,
	pgn TEXT NOT NULL,
	move_count INTEGER NOT NULL,
	started_at_ms BIGINT NOT NULL,
	ended_at_ms BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS chess_moves (
	game_id TEXT NOT NULL REFERENCES chess_games(game_id) ON DELETE CASCADE,
	ply INTEGER NOT NULL,
	player_id TEXT NOT NULL,
	from_square TEXT NOT NULL,
	to_square TEXT NOT NULL,
	piece TEXT NOT NULL,
	san TEXT NOT NULL,
	uci TEXT NOT NULL,
	played_at_ms BIGINT NOT NULL,
	UNIQUE(game_id, ply)
);

CREATE INDEX IF NOT EXISTS idx_chess_games_white ON chess_games(white_id);
CREATE INDEX IF NOT EXISTS idx_chess_games_black ON chess_games(black_id);
`

// Migrate creates the archive tables if they do not exist.
func (a *Archive) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// q adapts a $N query to the driver. Parameters must appear in order, once each.
func (a *Archive) q(query string) string {
	if a.dialect == sqlite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

// SaveResult upserts a finished game and its move list. Active games are ignored.
func (a *Archive) SaveResult(ctx context.Context, g *domain.Game) error {
	if a == nil || a.db == nil || g == nil || g.Active() {
		return nil
	}
	sans := make([]string, 0, len(g.Moves))
	ucis := make([]string, 0, len(g.Moves))
	for _, m := range g.Moves {
		sans = append(sans, m.Notation)
		ucis = append(ucis, m.UCI)
	}
	movesUCIRaw, err := json.Marshal(ucis)
	if err != nil {
		return err
	}
	movesSANRaw, err := json.Marshal(sans)
	if err != nil {
		return err
	}
	result := PGNResult(g)
	termination := Termination(g)
	pgn := BuildPGN(g)
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, a.q(`INSERT INTO chess_games (
		game_id, white_id, white_name, black_id, black_name,
		status, outcome, winner_id, termination, result,
		moves_uci, moves_san, pgn, move_count,
		started_at_ms, ended_at_ms, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
	) ON CONFLICT (game_id) DO UPDATE SET
		status=EXCLUDED.status,
		outcome=EXCLUDED.outcome,
		winner_id=EXCLUDED.winner_id,
		termination=EXCLUDED.termination,
		result=EXCLUDED.result,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		move_count=EXCLUDED.move_count,
		ended_at_ms=EXCLUDED.ended_at_ms,
		duration_ms=EXCLUDED.duration_ms`),
		g.ID, g.White.ID, g.White.Name, g.Black.ID, g.Black.Name,
		string(g.Status), string(g.Outcome), g.WinnerID, termination, result,
		string(movesUCIRaw), string(movesSANRaw), pgn, g.MoveCount,
		g.CreatedAt.UTC().UnixMilli(), g.UpdatedAt.UTC().UnixMilli(), duration,
	)
	if err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}
	if _, err := tx.ExecContext(ctx, a.q(`DELETE FROM chess_moves WHERE game_id = $1`), g.ID); err != nil {
		return fmt.Errorf("clear moves: %w", err)
	}
	for _, m := range g.Moves {
		_, err := tx.ExecContext(ctx, a.q(`INSERT INTO chess_moves (
			game_id, ply, player_id, from_square, to_square, piece, san, uci, played_at_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`),
			g.ID, m.Ply, m.PlayerID, m.From, m.To, m.Piece, m.Notation, m.UCI, m.Timestamp.UTC().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert move %d: %w", m.Ply, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.logger.Info("archive_result_persist",
		zap.String("game_id", g.ID),
		zap.String("outcome", string(g.Outcome)),
		zap.String("termination", termination),
	)
	return nil
}

// Record is an archived game row.
type Record struct {
	GameID      string
	WhiteID     string
	BlackID     string
	Outcome     string
	WinnerID    string
	Termination string
	Result      string
	MovesSAN    []string
	PGN         string
	MoveCount   int
	EndedAt     time.Time
}

// Load returns the archived row of gameID.
func (a *Archive) Load(ctx context.Context, gameID string) (*Record, error) {
	var (
		r       Record
		sanRaw  string
		endedMs int64
	)
	err := a.db.QueryRowContext(ctx, a.q(`SELECT game_id, white_id, black_id, outcome, winner_id,
		termination, result, moves_san, pgn, move_count, ended_at_ms
		FROM chess_games WHERE game_id = $1`), gameID).Scan(
		&r.GameID, &r.WhiteID, &r.BlackID, &r.Outcome, &r.WinnerID,
		&r.Termination, &r.Result, &sanRaw, &r.PGN, &r.MoveCount, &endedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sanRaw), &r.MovesSAN); err != nil {
		return nil, fmt.Errorf("decode moves: %w", err)
	}
	r.EndedAt = time.UnixMilli(endedMs).UTC()
	return &r, nil
}

// LoadPGN returns the stored PGN text of gameID.
func (a *Archive) LoadPGN(ctx context.Context, gameID string) (string, error) {
	r, err := a.Load(ctx, gameID)
	if err != nil {
		return "", err
	}
	return r.PGN, nil
}

// MoveCount returns how many move rows are archived for gameID.
func (a *Archive) MoveCount(ctx context.Context, gameID string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, a.q(`SELECT COUNT(*) FROM chess_moves WHERE game_id = $1`), gameID).Scan(&n)
	return n, err
}
