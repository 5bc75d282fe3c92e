package session

import (
	"context"
	"sort"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/rules"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"go.uber.org/zap"
)

const (
	SnapshotGame  = "game"
	SnapshotLobby = "lobby"
)

// BoardSnapshot returns the board of a game oriented for viewer.
func (c *Coordinator) BoardSnapshot(ctx context.Context, gameID string, viewer domain.Identity) (*chessdto.BoardSnapshot, error) {
	g, err := c.Game(ctx, gameID, viewer)
	if err != nil {
		return nil, err
	}
	snap, err := c.boardFor(g, g.SideOf(viewer.ID))
	if err != nil {
		return nil, c.storeError(err, "board_snapshot", zap.String("game_id", g.ID))
	}
	return snap, nil
}

// GameView is the full per-participant game state pushed on the game stream.
func (c *Coordinator) GameView(ctx context.Context, gameID string, viewer domain.Identity) (*chessdto.GameView, error) {
	g, err := c.Game(ctx, gameID, viewer)
	if err != nil {
		return nil, err
	}
	return c.ViewOf(g, viewer)
}

// ViewOf renders g for viewer, who must be a participant.
func (c *Coordinator) ViewOf(g *domain.Game, viewer domain.Identity) (*chessdto.GameView, error) {
	side := g.SideOf(viewer.ID)
	if side == "" {
		return nil, c.fail(KindForbidden, "error.forbidden", nil, nil)
	}
	board, err := c.boardFor(g, side)
	if err != nil {
		return nil, c.storeError(err, "game_view", zap.String("game_id", g.ID))
	}
	return &chessdto.GameView{
		Type:       SnapshotGame,
		Game:       GameRecord(g),
		Board:      *board,
		ViewerSide: string(side),
		Opponent:   player(g.Opponent(viewer.ID)),
	}, nil
}

func (c *Coordinator) boardFor(g *domain.Game, side domain.Color) (*chessdto.BoardSnapshot, error) {
	board, err := rules.ParseBoard(g.BoardState)
	if err != nil {
		return nil, err
	}
	perspective := side
	if perspective == "" {
		perspective = domain.White
	}
	snap := Snapshot(board, perspective)
	snap.GameID = g.ID
	snap.IsViewerTurn = g.Active() && side != "" && g.Turn == side
	snap.Terminal = !g.Active()
	if !g.Active() {
		snap.Termination = string(board.Termination())
		if g.Status == domain.StatusResigned {
			snap.Termination = string(domain.StatusResigned)
		}
		snap.Result = c.ResultText(g)
	}
	if n := len(g.Moves); n > 0 {
		last := MoveRecord(g.Moves[n-1])
		snap.LastMove = &last
	}
	return &snap, nil
}

// Snapshot orients a bare board. Terminal fields reflect the position only.
func Snapshot(board *rules.Board, perspective domain.Color) chessdto.BoardSnapshot {
	grid := board.DisplayGrid(perspective)
	rows := make([][]chessdto.Square, len(grid.Rows))
	for r, row := range grid.Rows {
		rows[r] = make([]chessdto.Square, len(row))
		for f, cell := range row {
			rows[r][f] = chessdto.Square{Label: cell.Label, Piece: cell.Piece, Glyph: cell.Glyph, Light: cell.Light}
		}
	}
	term := board.Termination()
	return chessdto.BoardSnapshot{
		Perspective: string(grid.Perspective),
		Rows:        rows,
		Squares:     grid.Squares(),
		FEN:         board.FEN(),
		Turn:        string(board.Turn()),
		Terminal:    term != rules.NotTerminal,
		Termination: string(term),
	}
}

// ResultText describes how a finished game ended, or "" while it is running.
func (c *Coordinator) ResultText(g *domain.Game) string {
	switch g.Status {
	case domain.StatusResigned:
		loser := domain.White
		if g.Outcome == domain.OutcomeBlackResigned {
			loser = domain.Black
		}
		return c.msgs.Text("result.resigned", map[string]string{
			"Loser":  displayName(g.Player(loser)),
			"Winner": displayName(g.Player(loser.Opposite())),
		})
	case domain.StatusCompleted:
		switch g.Outcome {
		case domain.OutcomeWhiteWins:
			return c.msgs.Text("result.checkmate", map[string]string{"Winner": c.sideName(domain.White)})
		case domain.OutcomeBlackWins:
			return c.msgs.Text("result.checkmate", map[string]string{"Winner": c.sideName(domain.Black)})
		}
		board, err := rules.ParseBoard(g.BoardState)
		if err == nil {
			return c.PositionResult(board)
		}
		return c.msgs.Text("result.draw", nil)
	}
	return ""
}

func (c *Coordinator) sideName(side domain.Color) string {
	if side == domain.Black {
		return c.msgs.Text("side.black", nil)
	}
	return c.msgs.Text("side.white", nil)
}

// PositionResult describes a terminal position, or "" when the game goes on.
func (c *Coordinator) PositionResult(board *rules.Board) string {
	switch board.Termination() {
	case rules.Checkmate:
		// the side to move is the one mated
		winner := c.sideName(board.Turn().Opposite())
		return c.msgs.Text("result.checkmate", map[string]string{"Winner": winner})
	case rules.Stalemate:
		return c.msgs.Text("result.stalemate", nil)
	case rules.InsufficientMaterial:
		return c.msgs.Text("result.insufficient_material", nil)
	}
	return ""
}

// AvailablePlayers lists connected players other than viewer who are not in a game.
func (c *Coordinator) AvailablePlayers(ctx context.Context, viewer domain.Identity) ([]domain.Identity, error) {
	c.mu.RLock()
	r := c.roster
	c.mu.RUnlock()
	if r == nil {
		return nil, nil
	}
	var out []domain.Identity
	for _, id := range r.Connected() {
		if id.ID == "" || id.ID == viewer.ID {
			continue
		}
		busy, err := c.busy(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		if !busy {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LobbyView is the per-viewer lobby state: who can be challenged, who challenged the viewer and
// how the viewer's last games ended.
func (c *Coordinator) LobbyView(ctx context.Context, viewer domain.Identity) (*chessdto.LobbySnapshot, error) {
	avail, err := c.AvailablePlayers(ctx, viewer)
	if err != nil {
		return nil, err
	}
	pending, err := c.PendingChallenges(ctx, viewer)
	if err != nil {
		return nil, err
	}
	recent, err := c.History(ctx, viewer, c.historyLimit)
	if err != nil {
		return nil, err
	}
	activeID, err := c.store.ActiveGameID(ctx, viewer.ID)
	if err != nil {
		return nil, c.storeError(err, "lobby_view", zap.String("user_id", viewer.ID))
	}

	snap := &chessdto.LobbySnapshot{
		Type:              SnapshotLobby,
		Viewer:            player(viewer),
		ActiveGameID:      activeID,
		AvailablePlayers:  make([]chessdto.Player, 0, len(avail)),
		PendingChallenges: make([]chessdto.ChallengeRecord, 0, len(pending)),
		RecentGames:       make([]chessdto.GameSummary, 0, len(recent)),
	}
	for _, p := range avail {
		snap.AvailablePlayers = append(snap.AvailablePlayers, player(p))
	}
	for _, ch := range pending {
		snap.PendingChallenges = append(snap.PendingChallenges, ChallengeRecord(ch))
	}
	for _, g := range recent {
		snap.RecentGames = append(snap.RecentGames, c.Summary(g))
	}
	return snap, nil
}

func player(id domain.Identity) chessdto.Player { return chessdto.Player{ID: id.ID, Name: id.Name} }

func MoveRecord(m domain.Move) chessdto.MoveRecord {
	return chessdto.MoveRecord{
		Ply:        m.Ply,
		PlayerID:   m.PlayerID,
		FromSquare: m.From,
		ToSquare:   m.To,
		Piece:      m.Piece,
		Notation:   m.Notation,
		UCI:        m.UCI,
		Timestamp:  m.Timestamp,
	}
}

func GameRecord(g *domain.Game) chessdto.GameRecord {
	moves := make([]chessdto.MoveRecord, 0, len(g.Moves))
	for _, m := range g.Moves {
		moves = append(moves, MoveRecord(m))
	}
	return chessdto.GameRecord{
		ID:        g.ID,
		White:     player(g.White),
		Black:     player(g.Black),
		Status:    string(g.Status),
		Outcome:   string(g.Outcome),
		WinnerID:  g.WinnerID,
		Turn:      string(g.Turn),
		MoveCount: g.MoveCount,
		Moves:     moves,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func (c *Coordinator) Summary(g *domain.Game) chessdto.GameSummary {
	return chessdto.GameSummary{
		ID:        g.ID,
		White:     player(g.White),
		Black:     player(g.Black),
		Status:    string(g.Status),
		Outcome:   string(g.Outcome),
		WinnerID:  g.WinnerID,
		Result:    c.ResultText(g),
		MoveCount: g.MoveCount,
		UpdatedAt: g.UpdatedAt,
	}
}

func ChallengeRecord(ch *domain.Challenge) chessdto.ChallengeRecord {
	return chessdto.ChallengeRecord{
		ID:         ch.ID,
		Challenger: player(ch.Challenger),
		Challenged: player(ch.Challenged),
		Status:     string(ch.Status),
		GameID:     ch.GameID,
		CreatedAt:  ch.CreatedAt,
	}
}
