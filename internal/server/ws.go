package server

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/notify"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func (s *Server) serveLobbySocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params, actor domain.Identity) {
	conn, err := s.accept(w, r)
	if err != nil {
		return
	}
	s.stream(r.Context(), conn, actor, "lobby", func(sink notify.Sink) (*notify.Subscription, error) {
		return s.hub.SubscribeLobby(actor, sink)
	})
}

func (s *Server) serveGameSocket(w http.ResponseWriter, r *http.Request, p httprouter.Params, actor domain.Identity) {
	gameID := p.ByName("id")
	// refuse outsiders with a plain HTTP error before upgrading
	if _, err := s.coord.GameView(r.Context(), gameID, actor); err != nil {
		s.fail(w, r, err)
		return
	}
	conn, err := s.accept(w, r)
	if err != nil {
		return
	}
	s.stream(r.Context(), conn, actor, "game:"+gameID, func(sink notify.Sink) (*notify.Subscription, error) {
		return s.hub.SubscribeGame(r.Context(), gameID, actor, sink)
	})
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_error", zap.String("path", r.URL.Path), zap.Error(err))
		return nil, err
	}
	return conn, nil
}

// stream keeps one push connection open until the client leaves, the hub drops it or pings fail.
func (s *Server) stream(ctx context.Context, conn *websocket.Conn, actor domain.Identity, group string, subscribe func(notify.Sink) (*notify.Subscription, error)) {
	defer conn.CloseNow()

	// client messages are ignored; CloseRead still answers pings and notices the close frame
	ctx = conn.CloseRead(ctx)

	sink := notify.SinkFunc(func(ctx context.Context, v any) error {
		return wsjson.Write(ctx, conn, v)
	})
	sub, err := subscribe(sink)
	if err != nil {
		s.logger.Warn("ws_subscribe_error", zap.String("group", group), zap.String("user_id", actor.ID), zap.Error(err))
		_ = conn.Close(websocket.StatusPolicyViolation, "subscribe failed")
		return
	}
	defer sub.Close()

	release := s.presence.Connect(actor)
	defer release()

	s.logger.Info("ws_open", zap.String("group", group), zap.String("user_id", actor.ID), zap.String("subscription_id", sub.ID))
	defer s.logger.Info("ws_close", zap.String("group", group), zap.String("user_id", actor.ID), zap.String("subscription_id", sub.ID))

	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			_ = conn.Close(websocket.StatusGoingAway, "push failed")
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				consecutivePingFailures++
				if consecutivePingFailures >= 2 {
					_ = conn.Close(websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			consecutivePingFailures = 0
		}
	}
}
