package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestHMACRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, err := NewHMACVerifier(testSecret, "ops", zap.NewNop())
	require.NoError(t, err)

	token, err := NewHMACToken(testSecret, "alice", "ops", time.Hour)
	require.NoError(t, err)

	claims, err := v.VerifyAdminToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
	require.Equal(t, "ops", claims.Issuer)
}

func TestHMACRejections(t *testing.T) {
	ctx := context.Background()
	v, err := NewHMACVerifier(testSecret, "ops", zap.NewNop())
	require.NoError(t, err)

	otherSecret := []byte("fedcba9876543210fedcba9876543210")
	wrongKey, err := NewHMACToken(otherSecret, "alice", "ops", time.Hour)
	require.NoError(t, err)
	expired, err := NewHMACToken(testSecret, "alice", "ops", -time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := NewHMACToken(testSecret, "alice", "someone-else", time.Hour)
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"Garbage", "not-a-jwt"},
		{"Wrong key", wrongKey},
		{"Expired", expired},
		{"Wrong issuer", wrongIssuer},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.VerifyAdminToken(ctx, tc.token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestCallerToken(t *testing.T) {
	ctx := context.Background()
	v, err := NewHMACVerifier(testSecret, "ops", zap.NewNop())
	require.NoError(t, err)
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	token, err := NewCallerToken(testSecret, alice, "ops", time.Hour)
	require.NoError(t, err)

	caller, err := v.VerifyCallerToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, alice, caller)

	// audiences keep the two token kinds apart
	_, err = v.VerifyAdminToken(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)
	adminToken, err := NewHMACToken(testSecret, alice.Hex(), "ops", time.Hour)
	require.NoError(t, err)
	_, err = v.VerifyCallerToken(ctx, adminToken)
	require.ErrorIs(t, err, ErrInvalidCallerToken)

	_, err = NewCallerToken(testSecret, common.Address{}, "ops", time.Hour)
	require.Error(t, err)
}

func TestCallerTokenRejections(t *testing.T) {
	ctx := context.Background()
	v, err := NewHMACVerifier(testSecret, "", zap.NewNop())
	require.NoError(t, err)
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	otherSecret := []byte("fedcba9876543210fedcba9876543210")
	wrongKey, err := NewCallerToken(otherSecret, alice, "", time.Hour)
	require.NoError(t, err)
	expired, err := NewCallerToken(testSecret, alice, "", -time.Hour)
	require.NoError(t, err)
	notAnAddress, err := signHMACToken(testSecret, "alice", "", CallerAudience, time.Hour)
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"Wrong key", wrongKey},
		{"Expired", expired},
		{"Subject not an address", notAnAddress},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.VerifyCallerToken(ctx, tc.token)
			require.ErrorIs(t, err, ErrInvalidCallerToken)
		})
	}
}

func TestShortSecretRejected(t *testing.T) {
	_, err := NewHMACVerifier([]byte("short"), "", zap.NewNop())
	require.Error(t, err)

	_, err = NewHMACToken([]byte("short"), "alice", "", time.Hour)
	require.Error(t, err)
}

func TestKeySetVerifier(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicKey, err := jwk.Import(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, publicKey.Set(jwk.KeyIDKey, "ops-key"))
	require.NoError(t, publicKey.Set(jwk.AlgorithmKey, jwa.RS256()))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(publicKey))

	v := &TokenVerifier{keySet: set, logger: zap.NewNop()}

	sign := func(audience string) string {
		token, err := jwt.NewBuilder().
			Subject("deployer").
			Audience([]string{audience}).
			Expiration(time.Now().Add(time.Hour)).
			Build()
		require.NoError(t, err)

		signingKey, err := jwk.Import(privateKey)
		require.NoError(t, err)
		require.NoError(t, signingKey.Set(jwk.KeyIDKey, "ops-key"))
		require.NoError(t, signingKey.Set(jwk.AlgorithmKey, jwa.RS256()))

		signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), signingKey))
		require.NoError(t, err)
		return string(signed)
	}

	claims, err := v.VerifyAdminToken(context.Background(), sign(AdminAudience))
	require.NoError(t, err)
	require.Equal(t, "deployer", claims.Subject)

	_, err = v.VerifyAdminToken(context.Background(), sign("some-other-service"))
	require.ErrorIs(t, err, ErrInvalidToken)
}
