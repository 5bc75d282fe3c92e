// Package server exposes the coordinator over HTTP JSON endpoints and WebSocket push streams.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/park285/cheese-chess-arena/internal/archive"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/identity"
	"github.com/park285/cheese-chess-arena/internal/msgcat"
	"github.com/park285/cheese-chess-arena/internal/notify"
	"github.com/park285/cheese-chess-arena/internal/presence"
	"github.com/park285/cheese-chess-arena/internal/session"
	"go.uber.org/zap"
)

const timeout = 10 * time.Second

type Options struct {
	Coordinator *session.Coordinator
	Solo        *session.Solo
	Hub         *notify.Hub
	Presence    *presence.Tracker
	Identity    *identity.Provider
	// Archive serves stored PGN; nil builds PGN from the live store.
	Archive *archive.Archive
	Logger  *zap.Logger
	// AllowedOrigins are extra WebSocket origin patterns besides the request host.
	AllowedOrigins []string
	PingInterval   time.Duration
}

type Server struct {
	coord    *session.Coordinator
	solo     *session.Solo
	hub      *notify.Hub
	presence *presence.Tracker
	ident    *identity.Provider
	archive  *archive.Archive
	msgs     *msgcat.Catalog
	logger   *zap.Logger

	origins      []string
	pingInterval time.Duration
	router       *httprouter.Router
}

func New(opts Options) *Server {
	s := &Server{
		coord:        opts.Coordinator,
		solo:         opts.Solo,
		hub:          opts.Hub,
		presence:     opts.Presence,
		ident:        opts.Identity,
		archive:      opts.Archive,
		msgs:         opts.Coordinator.Catalog(),
		logger:       opts.Logger,
		origins:      opts.AllowedOrigins,
		pingInterval: opts.PingInterval,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *httprouter.Router {
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.Error("http_panic", zap.String("path", r.URL.Path), zap.Any("panic", v))
		s.fail(w, r, errors.New("panic"))
	}

	mux.GET("/healthz", s.serveHealth)

	mux.GET("/api/me", s.authed(s.serveMe))
	mux.GET("/api/players/available", s.authed(s.serveAvailable))
	mux.GET("/api/lobby", s.authed(s.serveLobby))

	mux.POST("/api/challenges", s.authed(s.serveCreateChallenge))
	mux.GET("/api/challenges/:id", s.authed(s.serveChallenges))
	mux.POST("/api/challenges/:id/accept", s.authed(s.serveAcceptChallenge))
	mux.POST("/api/challenges/:id/decline", s.authed(s.serveDeclineChallenge))

	mux.GET("/api/games/:id", s.authed(s.serveGame))
	mux.GET("/api/games/:id/board", s.authed(s.serveBoard))
	mux.GET("/api/games/:id/board.png", s.authed(s.serveBoardPNG))
	mux.GET("/api/games/:id/pgn", s.authed(s.servePGN))
	mux.POST("/api/games/:id/move", s.authed(s.serveMove))
	mux.POST("/api/games/:id/resign", s.authed(s.serveResign))

	mux.GET("/api/solo", s.authed(s.serveSoloState))
	mux.POST("/api/solo", s.authed(s.serveSoloMove))

	mux.GET("/ws/lobby", s.authed(s.serveLobbySocket))
	mux.GET("/ws/game/:id", s.authed(s.serveGameSocket))
	return mux
}

type authedHandle func(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity)

// authed resolves the acting identity and rejects anonymous requests.
func (s *Server) authed(h authedHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		actor := s.ident.CurrentActor(r)
		if !identity.IsAuthenticated(actor) {
			s.fail(w, r, &session.Error{Kind: session.KindUnauthenticated, Message: s.msgs.Text("error.unauthenticated", nil)})
			return
		}
		h(w, r, p, actor)
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: timeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("server_listen", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.logger.Info("server_stopped")
	return err
}
