package auth

import (
	"testing"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateSigner() *StateSigner {
	return NewStateSigner(config.JWTConfig{
		Secret:      "admin-secret-key-at-least-32-chars",
		StateSecret: "state-secret-key-at-least-32-chars",
		Issuer:      "marketsync",
	})
}

func TestStateSigner_RoundTrip(t *testing.T) {
	signer := newTestStateSigner()
	state := appintegration.OAuthState{
		TenantID:    uuid.New(),
		Marketplace: integration.MarketplaceMercadoLibre,
		RedirectURI: "https://sync.example.com/api/v1/integration/oauth/MERCADOLIBRE/callback",
	}

	token, err := signer.Sign(state)
	require.NoError(t, err)

	got, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, state, *got)
}

func TestStateSigner_DefaultsToTenMinutes(t *testing.T) {
	signer := newTestStateSigner()
	assert.Equal(t, 10*time.Minute, signer.ttl)
}

func TestStateSigner_Expired(t *testing.T) {
	signer := newTestStateSigner()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer.clock = func() time.Time { return issued }

	token, err := signer.Sign(appintegration.OAuthState{TenantID: uuid.New(), Marketplace: integration.MarketplaceMercadoLibre})
	require.NoError(t, err)

	signer.clock = func() time.Time { return issued.Add(11 * time.Minute) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestStateSigner_Tampered(t *testing.T) {
	signer := newTestStateSigner()
	token, err := signer.Sign(appintegration.OAuthState{TenantID: uuid.New(), Marketplace: integration.MarketplaceMercadoLibre})
	require.NoError(t, err)

	_, err = signer.Verify(token[:len(token)-2] + "xx")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateSigner_RejectsAdminToken(t *testing.T) {
	admin := NewJWTService(config.JWTConfig{Secret: "state-secret-key-at-least-32-chars", Issuer: "marketsync"})
	token, err := admin.GenerateAccessToken(GenerateTokenInput{TenantID: uuid.New(), UserID: uuid.New(), TTL: time.Minute})
	require.NoError(t, err)

	_, err = newTestStateSigner().Verify(token)
	assert.ErrorIs(t, err, ErrInvalidState)
}
