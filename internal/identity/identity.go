// Package identity resolves the acting user of a request. Users present an HS256 token minted by
// Issue; behind a trusted proxy the X-User-Id / X-User-Name headers may be used instead.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/park285/cheese-chess-arena/internal/domain"
)

const (
	CookieName  = "chess_token"
	QueryParam  = "token"
	HeaderID    = "X-User-Id"
	HeaderName  = "X-User-Name"
	tokenIssuer = "cheese-chess-arena"
)

var ErrInvalidToken = errors.New("identity: invalid token")

type Config struct {
	Secret       []byte
	TrustHeaders bool
	TokenTTL     time.Duration
	Now          func() time.Time
}

// Provider implements CurrentActor for HTTP requests.
type Provider struct {
	secret       []byte
	trustHeaders bool
	ttl          time.Duration
	now          func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

func NewProvider(cfg Config) (*Provider, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("auth secret must be at least 16 bytes")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{secret: cfg.Secret, trustHeaders: cfg.TrustHeaders, ttl: cfg.TokenTTL, now: cfg.Now}, nil
}

// Issue mints a token for id.
func (p *Provider) Issue(id domain.Identity) (string, error) {
	if id.Anonymous() {
		return "", fmt.Errorf("cannot issue a token for an anonymous identity")
	}
	now := p.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		Name: id.Name,
	})
	return tok.SignedString(p.secret)
}

// Verify parses a token and returns the identity it names.
func (p *Provider) Verify(raw string) (domain.Identity, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &parsed, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.Identity{ID: parsed.Subject, Name: parsed.Name}, nil
}

// CurrentActor returns the request's user, or the anonymous identity when none is present or the
// token does not verify.
func (p *Provider) CurrentActor(r *http.Request) domain.Identity {
	if raw := tokenFrom(r); raw != "" {
		if id, err := p.Verify(raw); err == nil {
			return id
		}
	}
	if p.trustHeaders {
		if uid := strings.TrimSpace(r.Header.Get(HeaderID)); uid != "" {
			name := strings.TrimSpace(r.Header.Get(HeaderName))
			if name == "" {
				name = uid
			}
			return domain.Identity{ID: uid, Name: name}
		}
	}
	return domain.Identity{}
}

// IsAuthenticated reports whether id names a user.
func IsAuthenticated(id domain.Identity) bool { return !id.Anonymous() }

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	if q := r.URL.Query().Get(QueryParam); q != "" {
		return q
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
