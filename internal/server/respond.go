package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/park285/cheese-chess-arena/internal/session"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

type envelope struct {
	Success bool                  `json:"success"`
	Data    any                   `json:"data,omitempty"`
	Error   *chessdto.DomainError `json:"error,omitempty"`
}

func statusFor(kind session.Kind) int {
	switch kind {
	case session.KindNotFound:
		return http.StatusNotFound
	case session.KindForbidden:
		return http.StatusForbidden
	case session.KindGameNotActive, session.KindTurnOrder, session.KindPlayerBusy, session.KindChallengeState:
		return http.StatusConflict
	case session.KindIllegalMove:
		return http.StatusUnprocessableEntity
	case session.KindSelfChallenge:
		return http.StatusBadRequest
	case session.KindUnauthenticated:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// fail writes err as a domain error. Unexpected errors are logged and shown as internal.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := session.KindOf(err)
	msg := session.MessageOf(err)
	if kind == session.KindInternal {
		s.logger.Error("http_internal_error", zap.String("path", r.URL.Path), zap.Error(err))
		msg = s.msgs.Text("error.internal", nil)
	}
	writeJSON(w, statusFor(kind), envelope{Error: &chessdto.DomainError{Kind: string(kind), Message: msg}})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, envelope{Error: &chessdto.DomainError{Kind: "bad_request", Message: msg}})
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}
