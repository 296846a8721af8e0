package auth

import (
	"errors"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const stateAudience = "oauth-state"

// ErrInvalidState is returned for a state token that fails verification
var ErrInvalidState = errors.New("invalid oauth state")

type stateClaims struct {
	jwt.RegisteredClaims
	TenantID    string `json:"tid"`
	Marketplace string `json:"mkt"`
	RedirectURI string `json:"ruri"`
}

// StateSigner issues short-lived HS256 tokens used as the OAuth state parameter
type StateSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// NewStateSigner creates a state signer from the JWT configuration
func NewStateSigner(cfg config.JWTConfig) *StateSigner {
	ttl := cfg.StateExpiration
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	secret := cfg.StateSecret
	if secret == "" {
		secret = cfg.Secret
	}
	return &StateSigner{
		secret: []byte(secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		clock:  time.Now,
	}
}

// Sign encodes state into a signed token
func (s *StateSigner) Sign(state appintegration.OAuthState) (string, error) {
	now := s.clock()
	claims := &stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID:    state.TenantID.String(),
		Marketplace: state.Marketplace.String(),
		RedirectURI: state.RedirectURI,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the signature, expiry and audience and decodes the state
func (s *StateSigner) Verify(token string) (*appintegration.OAuthState, error) {
	parsed, err := jwt.ParseWithClaims(token, &stateClaims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidState
	}

	claims, ok := parsed.Claims.(*stateClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidState
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, ErrInvalidState
	}
	marketplace, err := integration.ParseMarketplaceCode(claims.Marketplace)
	if err != nil {
		return nil, ErrInvalidState
	}
	return &appintegration.OAuthState{
		TenantID:    tenantID,
		Marketplace: marketplace,
		RedirectURI: claims.RedirectURI,
	}, nil
}

var _ appintegration.StateSigner = (*StateSigner)(nil)
