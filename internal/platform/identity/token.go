package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/remitwise/obligations/internal/platform/errors"
)

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Issuer    string `env:"REMITWISE_IDENTITY_ISSUER"`
	Audience  string `env:"REMITWISE_IDENTITY_AUDIENCE"`
	PublicKey string `env:"REMITWISE_IDENTITY_PUBLIC_KEY"`
}

// TokenConfig defines how principal tokens are verified.
type TokenConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// principalClaims is the internal claims type used for JWT parsing.
type principalClaims struct {
	jwt.RegisteredClaims
}

// LoadTokenConfigFromEnv reads principal token verification configuration.
func LoadTokenConfigFromEnv(now func() time.Time) (TokenConfig, error) {
	var raw tokenEnv
	if err := env.Parse(&raw); err != nil {
		return TokenConfig{}, fmt.Errorf("parse identity env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return TokenConfig{}, fmt.Errorf("REMITWISE_IDENTITY_ISSUER is required")
	}
	if audience == "" {
		return TokenConfig{}, fmt.Errorf("REMITWISE_IDENTITY_AUDIENCE is required")
	}
	if publicKey == "" {
		return TokenConfig{}, fmt.Errorf("REMITWISE_IDENTITY_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return TokenConfig{}, fmt.Errorf("decode identity public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return TokenConfig{}, fmt.Errorf("identity public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return TokenConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// TokenAuthorizer authorizes principals by verifying a bearer token
// carried on the context. The token subject must match the principal.
type TokenAuthorizer struct {
	cfg TokenConfig
}

// NewTokenAuthorizer builds a TokenAuthorizer from verification config.
func NewTokenAuthorizer(cfg TokenConfig) (*TokenAuthorizer, error) {
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return nil, errors.New("token authorizer is not configured")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenAuthorizer{cfg: cfg}, nil
}

// Authorize implements Authorizer.
func (a *TokenAuthorizer) Authorize(ctx context.Context, principal string) error {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return apperrors.New(apperrors.CodeUnauthorized, "bearer token is required")
	}

	var parsed principalClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return a.cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != a.cfg.Issuer {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, a.cfg.Audience) {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ExpiresAt == nil {
		return apperrors.New(apperrors.CodeUnauthorized, "token exp is required")
	}

	now := a.cfg.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return apperrors.New(apperrors.CodeUnauthorized, "token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return apperrors.New(apperrors.CodeUnauthorized, "token not active yet")
	}

	if strings.TrimSpace(parsed.Subject) == "" || parsed.Subject != principal {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"token subject mismatch",
			map[string]string{"Field": "subject"},
		)
	}
	return nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeUnauthorized, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeUnauthorized, "token alg is invalid")
	}
	return apperrors.New(apperrors.CodeUnauthorized, "token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
