// Package token issues and validates the bearer security token (DAT)
// attached to every protocol message.
//
// It intentionally avoids policy decisions; whether an authenticated peer
// may access an artifact is the policy package's concern.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var ErrInvalid = errors.New("token: invalid security token")

// Provider hands out the connector's current outbound token, refreshing it
// when the active one is near expiry. Safe for concurrent use.
type Provider interface {
	Current(ctx context.Context) (string, error)
}

// Validator checks an inbound token. Safe for concurrent use.
type Validator interface {
	Validate(raw string) error
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(raw string) error

func (f FuncValidator) Validate(raw string) error {
	return f(raw)
}

// Service issues HS256 tokens under a shared dataspace secret and validates
// peer tokens signed with the same secret. The signing scheme is pluggable
// at the dataspace level; the connector only sees opaque values.
type Service struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.Mutex
	current string
	expiry  time.Time
}

// refreshMargin is how long before expiry a cached token stops being reused.
const refreshMargin = 30 * time.Second

// NewService constructs a token service for one connector identity.
func NewService(secret []byte, issuer, audience string, ttl time.Duration, log zerolog.Logger) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: secret required")
	}
	if issuer == "" {
		return nil, errors.New("token: issuer required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
		log:      log.With().Str("component", "token").Logger(),
	}, nil
}

// Current returns the active token, minting a fresh one when the cached
// token is expired or inside the refresh margin.
func (s *Service) Current(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.current != "" && now.Before(s.expiry.Add(-refreshMargin)) {
		return s.current, nil
	}

	expiry := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": s.issuer,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(expiry),
	}
	if s.audience != "" {
		claims["aud"] = s.audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	s.current = signed
	s.expiry = expiry
	s.log.Debug().Time("expiry", expiry).Msg("minted security token")
	return signed, nil
}

// Validate checks signature, expiry, and (when configured) audience of an
// inbound token. Issuer is deliberately not pinned: any party in the
// dataspace may send, and identity claims are checked against the message
// header by higher layers.
func (s *Service) Validate(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalid)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	parser := jwt.NewParser(opts...)
	_, err := parser.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
