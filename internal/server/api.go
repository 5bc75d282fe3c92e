package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/park285/cheese-chess-arena/internal/archive"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/render"
	"github.com/park285/cheese-chess-arena/internal/rules"
	"github.com/park285/cheese-chess-arena/internal/session"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"go.uber.org/zap"
)

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.ok(w, map[string]string{"status": "ok"})
}

func (s *Server) serveMe(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor domain.Identity) {
	s.ok(w, chessdto.Player{ID: actor.ID, Name: actor.Name})
}

func (s *Server) serveAvailable(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor domain.Identity) {
	players, err := s.coord.AvailablePlayers(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]chessdto.Player, 0, len(players))
	for _, p := range players {
		out = append(out, chessdto.Player{ID: p.ID, Name: p.Name})
	}
	s.ok(w, out)
}

func (s *Server) serveLobby(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor domain.Identity) {
	view, err := s.coord.LobbyView(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, view)
}

func (s *Server) serveCreateChallenge(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor domain.Identity) {
	var req chessdto.ChallengeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid challenge request")
		return
	}
	target := strings.TrimSpace(req.ChallengedID)
	if target == "" {
		s.badRequest(w, "challenged_id is required")
		return
	}
	ch, created, err := s.coord.CreateChallenge(r.Context(), actor, domain.Identity{ID: target})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, chessdto.ChallengeResponse{Challenge: session.ChallengeRecord(ch), Created: created})
}

// serveChallenges answers GET /api/challenges/pending. Any other id is not found.
func (s *Server) serveChallenges(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	if p.ByName("id") != "pending" {
		s.fail(w, r, &session.Error{Kind: session.KindNotFound, Message: s.msgs.Text("error.challenge_not_found", nil)})
		return
	}
	pending, err := s.coord.PendingChallenges(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]chessdto.ChallengeRecord, 0, len(pending))
	for _, ch := range pending {
		out = append(out, session.ChallengeRecord(ch))
	}
	s.ok(w, out)
}

func (s *Server) serveAcceptChallenge(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	g, ch, err := s.coord.AcceptChallenge(r.Context(), actor, p.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.coord.ViewOf(g, actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, chessdto.ChallengeResponse{Challenge: session.ChallengeRecord(ch), Game: view})
}

func (s *Server) serveDeclineChallenge(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	ch, err := s.coord.DeclineChallenge(r.Context(), actor, p.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, chessdto.ChallengeResponse{Challenge: session.ChallengeRecord(ch)})
}

// serveGame also answers /api/games/active and /api/games/history, which share the :id segment.
func (s *Server) serveGame(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	switch p.ByName("id") {
	case "active":
		s.serveActiveGame(w, r, actor)
		return
	case "history":
		s.serveHistory(w, r, actor)
		return
	}
	view, err := s.coord.GameView(r.Context(), p.ByName("id"), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, view)
}

func (s *Server) serveActiveGame(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	g, err := s.coord.ActiveGame(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if g == nil {
		s.ok(w, nil)
		return
	}
	view, err := s.coord.ViewOf(g, actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, view)
}

func (s *Server) serveHistory(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	games, err := s.coord.History(r.Context(), actor, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]chessdto.GameSummary, 0, len(games))
	for _, g := range games {
		out = append(out, s.coord.Summary(g))
	}
	s.ok(w, out)
}

func (s *Server) serveBoard(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	snap, err := s.coord.BoardSnapshot(r.Context(), p.ByName("id"), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, snap)
}

func (s *Server) serveBoardPNG(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	g, err := s.coord.Game(r.Context(), p.ByName("id"), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	board, err := rules.ParseBoard(g.BoardState)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := render.Options{
		Perspective: g.SideOf(actor.ID),
		Title:       nameOr(g.White) + " vs " + nameOr(g.Black),
		Status:      s.statusLine(g, actor),
	}
	if n := len(g.Moves); n > 0 {
		opts.LastFrom, opts.LastTo = g.Moves[n-1].From, g.Moves[n-1].To
	}
	img, err := render.PNG(r.Context(), board, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (s *Server) statusLine(g *domain.Game, actor domain.Identity) string {
	if !g.Active() {
		return s.coord.ResultText(g)
	}
	if g.Turn == g.SideOf(actor.ID) {
		return s.msgs.Text("turn.yours", nil)
	}
	return s.msgs.Text("turn.waiting", map[string]string{"Name": nameOr(g.Opponent(actor.ID))})
}

func (s *Server) servePGN(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	g, err := s.coord.Game(r.Context(), p.ByName("id"), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pgn := ""
	if s.archive != nil && !g.Active() {
		stored, err := s.archive.LoadPGN(r.Context(), g.ID)
		switch {
		case err == nil:
			pgn = stored
		case errors.Is(err, archive.ErrNotFound):
		default:
			s.logger.Warn("archive_pgn_load_error", zap.String("game_id", g.ID), zap.Error(err))
		}
	}
	if pgn == "" {
		pgn = archive.BuildPGN(g)
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+g.ID+`.pgn"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pgn))
}

func (s *Server) serveMove(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	var req chessdto.MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid move request")
		return
	}
	res, err := s.coord.ProposeMove(r.Context(), p.ByName("id"), actor, req.FromSquare, req.ToSquare, req.Promotion)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.coord.ViewOf(res.Game, actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, chessdto.MoveResponse{Move: session.MoveRecord(res.Move), Game: view})
}

func (s *Server) serveResign(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	g, err := s.coord.Resign(r.Context(), p.ByName("id"), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.coord.ViewOf(g, actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, view)
}

func (s *Server) serveSoloState(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor domain.Identity) {
	state, err := s.solo.State(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, state)
}

func (s *Server) serveSoloMove(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor domain.Identity) {
	var req chessdto.SoloRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid solo request")
		return
	}
	var (
		state *chessdto.SoloState
		err   error
	)
	if req.Reset {
		state, err = s.solo.Reset(r.Context(), actor)
	} else {
		state, err = s.solo.Move(r.Context(), actor, req.FromSquare, req.ToSquare, req.Promotion)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, state)
}

func nameOr(id domain.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.ID
}
