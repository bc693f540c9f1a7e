package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// clockSkew tolerates small differences between our clock and the provider's.
const clockSkew = 5 * time.Second

// SessionClaims are the claims of a Clerk session token.
type SessionClaims struct {
	AuthorizedParty string `json:"azp,omitempty"`
	SessionID       string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// ProfileSource resolves a user id to its profile.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// profileCache is satisfied by *ProfileCache.
type profileCache interface {
	Get(ctx context.Context, userID string) (*Profile, bool, error)
	Set(ctx context.Context, p *Profile) error
}

// Service verifies bearer tokens and resolves identities.
type Service struct {
	key      *rsa.PublicKey
	parties  []string
	profiles ProfileSource
	cache    profileCache
}

// NewService creates a Service. jwtKeyPEM is the provider's PEM-encoded RSA public key;
// when it is empty every token is rejected. authorizedParties, when non-empty, restricts
// the azp claim to those origins.
func NewService(jwtKeyPEM string, authorizedParties []string, profiles ProfileSource, cache *ProfileCache) (*Service, error) {
	s := &Service{parties: authorizedParties, profiles: profiles}
	if cache != nil {
		s.cache = cache
	}

	if jwtKeyPEM = strings.TrimSpace(jwtKeyPEM); jwtKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(jwtKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		s.key = key
	}
	return s, nil
}

// Authenticate verifies token and returns the caller's identity.
// Every failure wraps ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if s.key == nil {
		return nil, fmt.Errorf("%w: identity provider key not configured", ErrUnauthorized)
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	if len(s.parties) > 0 && claims.AuthorizedParty != "" && !slices.Contains(s.parties, claims.AuthorizedParty) {
		return nil, fmt.Errorf("%w: unexpected authorized party %q", ErrUnauthorized, claims.AuthorizedParty)
	}

	p, err := s.profile(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve profile: %w", ErrUnauthorized, err)
	}

	return &Identity{
		UserID:    p.UserID,
		SessionID: claims.SessionID,
		Email:     p.Email,
		Role:      p.Role,
	}, nil
}

func (s *Service) profile(ctx context.Context, userID string) (*Profile, error) {
	logger := log.Ctx(ctx).With().Str("component", "auth").Str("user_id", userID).Logger()

	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			logger.Warn().Err(err).Msg("profile cache read failed")
		}
		if ok {
			return p, nil
		}
	}

	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.UserID == "" {
		return nil, errors.New("provider returned an empty user id")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			logger.Warn().Err(err).Msg("profile cache write failed")
		}
	}
	return p, nil
}
