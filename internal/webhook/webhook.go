// Package webhook posts finished game results to an external HTTP endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-chess-arena/internal/archive"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/session"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const EventGameFinished = "game_finished"

// Event is the JSON body sent for every finished game.
type Event struct {
	Type        string              `json:"type"`
	Game        chessdto.GameRecord `json:"game"`
	Result      string              `json:"result"`
	Termination string              `json:"termination"`
	PGN         string              `json:"pgn"`
	SentAt      time.Time           `json:"sent_at"`
}

type Client struct {
	url    string
	token  string
	http   *fasthttp.Client
	logger *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithBearerToken sets the Authorization header sent on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialer replaces the transport dialer; tests use it with an in-memory listener.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaveResult posts the result of g. Active games are skipped.
func (c *Client) SaveResult(ctx context.Context, g *domain.Game) error {
	if c == nil || c.url == "" || g == nil || g.Active() {
		return nil
	}
	ev := Event{
		Type:        EventGameFinished,
		Game:        session.GameRecord(g),
		Result:      archive.PGNResult(g),
		Termination: archive.Termination(g),
		PGN:         archive.BuildPGN(g),
		SentAt:      time.Now().UTC(),
	}
	if err := c.post(ctx, ev); err != nil {
		c.logger.Warn("webhook_post_failed", zap.String("game_id", g.ID), zap.Error(err))
		return err
	}
	c.logger.Info("webhook_posted", zap.String("game_id", g.ID), zap.String("result", ev.Result))
	return nil
}

func (c *Client) post(ctx context.Context, in any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.url)
	req.Header.SetContentType("application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = fmt.Errorf("webhook error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			return nil
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
