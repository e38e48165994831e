// Package auth verifies the bearer tokens that guard the distributor API: admin
// tokens for event registration and status changes, and caller tokens that bind
// allocation claims and splits to the address named in the token subject.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

// AdminAudience is the audience every admin token must carry.
const AdminAudience = "merkle-distributor-admin"

// CallerAudience is the audience of caller tokens. Their subject is the caller's
// hex address.
const CallerAudience = "merkle-distributor-caller"

// hmacKeyID is the key id of locally issued HS256 tokens.
const hmacKeyID = "distributor-admin"

var (
	ErrInvalidToken       = errors.New("invalid admin token")
	ErrInvalidCallerToken = errors.New("invalid caller token")
)

// AdminClaims are the claims extracted from a verified admin token.
type AdminClaims struct {
	Subject string
	Issuer  string
}

// Verifier checks admin bearer tokens.
type Verifier interface {
	VerifyAdminToken(ctx context.Context, token string) (*AdminClaims, error)
}

// TokenVerifier validates JWTs against a key set. The key set is either a single
// shared HS256 secret or a remote JWKS kept fresh by a background cache.
type TokenVerifier struct {
	keySet jwk.Set
	issuer string
	logger *zap.Logger
}

// CallerVerifier resolves a caller bearer token to the address it was issued to.
type CallerVerifier interface {
	VerifyCallerToken(ctx context.Context, token string) (common.Address, error)
}

var (
	_ Verifier       = (*TokenVerifier)(nil)
	_ CallerVerifier = (*TokenVerifier)(nil)
)

// NewHMACVerifier accepts tokens signed with secret. An empty issuer disables the
// issuer check.
func NewHMACVerifier(secret []byte, issuer string, logger *zap.Logger) (*TokenVerifier, error) {
	key, err := hmacKey(secret)
	if err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to build key set: %w", err)
	}
	return &TokenVerifier{keySet: set, issuer: issuer, logger: logger}, nil
}

// NewJWKSVerifier accepts tokens signed by any key published at jwksURL.
func NewJWKSVerifier(ctx context.Context, jwksURL string, refreshInterval time.Duration, issuer string, logger *zap.Logger) (*TokenVerifier, error) {
	set, err := NewJWKCache(ctx, jwksURL, refreshInterval)
	if err != nil {
		return nil, err
	}
	logger.Sugar().Infow("Admin JWKS cache registered", "jwks_url", jwksURL, "refresh_interval", refreshInterval)
	return &TokenVerifier{keySet: set, issuer: issuer, logger: logger}, nil
}

// NewJWKCache registers jwkUrl with a refreshing cache, fetches it once and returns
// the cached set.
func NewJWKCache(ctx context.Context, jwkUrl string, refreshInterval time.Duration) (jwk.Set, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	err = cache.Register(ctx, jwkUrl, jwk.WithConstantInterval(refreshInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	// fetch once on application startup
	_, err = cache.Refresh(ctx, jwkUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch on startup: %w", err)
	}

	return cache.CachedSet(jwkUrl)
}

func (v *TokenVerifier) VerifyAdminToken(ctx context.Context, tokenString string) (*AdminClaims, error) {
	token, err := v.parse(ctx, tokenString, AdminAudience)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		v.logger.Sugar().Debugw("Admin token rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &AdminClaims{}
	if sub, ok := token.Subject(); ok {
		claims.Subject = sub
	}
	if iss, ok := token.Issuer(); ok {
		claims.Issuer = iss
	}
	return claims, nil
}

// VerifyCallerToken returns the address in the subject of a valid caller token.
func (v *TokenVerifier) VerifyCallerToken(ctx context.Context, tokenString string) (common.Address, error) {
	token, err := v.parse(ctx, tokenString, CallerAudience)
	if err != nil {
		if ctx.Err() != nil {
			return common.Address{}, err
		}
		v.logger.Sugar().Debugw("Caller token rejected", "error", err)
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidCallerToken, err)
	}

	sub, _ := token.Subject()
	if !common.IsHexAddress(sub) {
		return common.Address{}, fmt.Errorf("%w: subject %q is not an address", ErrInvalidCallerToken, sub)
	}
	caller := common.HexToAddress(sub)
	if caller == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address subject", ErrInvalidCallerToken)
	}
	return caller, nil
}

func (v *TokenVerifier) parse(ctx context.Context, tokenString, audience string) (jwt.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tokenString == "" {
		return nil, errors.New("empty token")
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(v.keySet),
		jwt.WithValidate(true),
		jwt.WithAudience(audience),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	return jwt.Parse([]byte(tokenString), opts...)
}

// NewHMACToken issues an admin token signed with secret, valid for ttl.
func NewHMACToken(secret []byte, subject, issuer string, ttl time.Duration) (string, error) {
	return signHMACToken(secret, subject, issuer, AdminAudience, ttl)
}

// NewCallerToken issues a caller token for the given address, signed with secret.
func NewCallerToken(secret []byte, caller common.Address, issuer string, ttl time.Duration) (string, error) {
	if caller == (common.Address{}) {
		return "", errors.New("caller address must not be zero")
	}
	return signHMACToken(secret, caller.Hex(), issuer, CallerAudience, ttl)
}

func signHMACToken(secret []byte, subject, issuer, audience string, ttl time.Duration) (string, error) {
	key, err := hmacKey(secret)
	if err != nil {
		return "", err
	}

	now := time.Now()
	builder := jwt.NewBuilder().
		Subject(subject).
		Audience([]string{audience}).
		IssuedAt(now).
		Expiration(now.Add(ttl))
	if issuer != "" {
		builder = builder.Issuer(issuer)
	}
	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

func hmacKey(secret []byte) (jwk.Key, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("admin secret must be at least 32 bytes, got %d", len(secret))
	}
	key, err := jwk.Import(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to import admin secret: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, hmacKeyID); err != nil {
		return nil, fmt.Errorf("failed to set key id: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.HS256()); err != nil {
		return nil, fmt.Errorf("failed to set key algorithm: %w", err)
	}
	return key, nil
}
