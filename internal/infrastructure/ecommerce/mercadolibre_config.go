package ecommerce

import (
	"errors"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/infrastructure/config"
)

// MercadoLibreConfig holds configuration for the Mercado Libre API integration
type MercadoLibreConfig struct {
	// ClientID is the application ID from the Mercado Libre developer portal
	ClientID string
	// ClientSecret is the application secret
	ClientSecret string
	// APIBaseURL is the REST API root
	APIBaseURL string
	// AuthURL is the OAuth2 consent page of the seller's site
	AuthURL string
	// TokenURL is the OAuth2 token endpoint
	TokenURL string
	// SiteID selects the country site (MLA, MLB, MLM, ...)
	SiteID string

	RequestTimeout time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxAttempts    int
	RatePerSecond  float64
	RateBurst      int
	PictureMaxSide int
}

const (
	// MercadoLibreAPIURL is the production API endpoint
	MercadoLibreAPIURL = "https://api.mercadolibre.com"
	// MercadoLibreAuthURL is the default consent page
	MercadoLibreAuthURL = "https://auth.mercadolibre.com/authorization"
	// MercadoLibreTokenURL is the production token endpoint
	MercadoLibreTokenURL = "https://api.mercadolibre.com/oauth/token"
)

// Errors for Mercado Libre configuration
var (
	ErrMercadoLibreMissingClientID     = errors.New("mercadolibre: client id is required")
	ErrMercadoLibreMissingClientSecret = errors.New("mercadolibre: client secret is required")
)

// siteCurrencies maps a site to the currency its listings are priced in
var siteCurrencies = map[string]string{
	"MLA": "ARS",
	"MLB": "BRL",
	"MLM": "MXN",
	"MLC": "CLP",
	"MCO": "COP",
	"MLU": "UYU",
	"MPE": "PEN",
}

// NewMercadoLibreConfig builds adapter configuration from the application config
func NewMercadoLibreConfig(cfg config.MercadoLibreConfig) *MercadoLibreConfig {
	return &MercadoLibreConfig{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		APIBaseURL:     cfg.APIBaseURL,
		AuthURL:        cfg.AuthURL,
		TokenURL:       cfg.TokenURL,
		SiteID:         cfg.SiteID,
		RequestTimeout: cfg.RequestTimeout,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		MaxAttempts:    cfg.MaxAttempts,
		RatePerSecond:  cfg.RatePerSecond,
		RateBurst:      cfg.RateBurst,
		PictureMaxSide: cfg.PictureMaxSide,
	}
}

// Validate validates the configuration and fills in defaults
func (c *MercadoLibreConfig) Validate() error {
	if c.ClientID == "" {
		return ErrMercadoLibreMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrMercadoLibreMissingClientSecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = MercadoLibreAPIURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.AuthURL == "" {
		c.AuthURL = MercadoLibreAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = MercadoLibreTokenURL
	}
	if c.SiteID == "" {
		c.SiteID = "MLA"
	}
	c.SiteID = strings.ToUpper(c.SiteID)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 500 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = 10 * c.BackoffInitial
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.PictureMaxSide <= 0 {
		c.PictureMaxSide = 1200
	}
	return nil
}

// CurrencyID returns the listing currency of the configured site
func (c *MercadoLibreConfig) CurrencyID() string {
	if currency, ok := siteCurrencies[c.SiteID]; ok {
		return currency
	}
	return "USD"
}
