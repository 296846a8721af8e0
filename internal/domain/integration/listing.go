package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingStatus is the marketplace-side state of a listing
type ListingStatus string

const (
	ListingStatusPending ListingStatus = "PENDING"
	ListingStatusActive  ListingStatus = "ACTIVE"
	ListingStatusPaused  ListingStatus = "PAUSED"
	ListingStatusClosed  ListingStatus = "CLOSED"
	ListingStatusError   ListingStatus = "ERROR"
)

// IsValid checks if the listing status is valid
func (s ListingStatus) IsValid() bool {
	switch s {
	case ListingStatusPending, ListingStatusActive, ListingStatusPaused, ListingStatusClosed, ListingStatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s ListingStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Listing Entity
// ---------------------------------------------------------------------------

// Listing maps an internal product or variant to its marketplace listing.
// A (product, variant) pair has at most one listing per marketplace.
type Listing struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ProductID         uuid.UUID
	VariantID         *uuid.UUID
	Marketplace       MarketplaceCode
	ExternalListingID string
	Status            ListingStatus
	Quantity          int64
	Price             decimal.Decimal
	Permalink         string
	LastSyncedAt      *time.Time
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewListing creates a listing for a successful publish
func NewListing(tenantID, productID uuid.UUID, variantID *uuid.UUID, marketplace MarketplaceCode, remote *RemoteListing) (*Listing, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if productID == uuid.Nil {
		return nil, ErrInvalidProductID
	}
	if !marketplace.IsValid() {
		return nil, ErrInvalidMarketplace
	}
	if remote == nil || remote.ExternalID == "" {
		return nil, ErrInvalidListingID
	}

	status := remote.Status
	if !status.IsValid() {
		status = ListingStatusActive
	}

	now := time.Now()
	return &Listing{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ProductID:         productID,
		VariantID:         variantID,
		Marketplace:       marketplace,
		ExternalListingID: remote.ExternalID,
		Status:            status,
		Permalink:         remote.Permalink,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// RecordQuantity caches a successfully pushed quantity
func (l *Listing) RecordQuantity(quantity int64, now time.Time) {
	l.Quantity = quantity
	l.markSynced(now)
}

// RecordPrice caches a successfully pushed price
func (l *Listing) RecordPrice(price decimal.Decimal, now time.Time) {
	l.Price = price
	l.markSynced(now)
}

// ApplyRemoteStatus records the status the marketplace reported
func (l *Listing) ApplyRemoteStatus(remote *RemoteListing) bool {
	if remote == nil || !remote.Status.IsValid() || remote.Status == l.Status {
		return false
	}
	l.Status = remote.Status
	if remote.Permalink != "" {
		l.Permalink = remote.Permalink
	}
	l.UpdatedAt = time.Now()
	return true
}

// MarkError records a failure reported for the listing
func (l *Listing) MarkError(message string) {
	l.Status = ListingStatusError
	l.ErrorMessage = message
	l.UpdatedAt = time.Now()
}

func (l *Listing) markSynced(now time.Time) {
	l.LastSyncedAt = &now
	l.ErrorMessage = ""
	if l.Status == ListingStatusError || l.Status == ListingStatusPending {
		l.Status = ListingStatusActive
	}
	l.UpdatedAt = now
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// ListingFilter filters listing queries
type ListingFilter struct {
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
	ProductID   *uuid.UUID
	Status      ListingStatus
	Page        int
	PageSize    int
}

// ListingRepository persists listings
type ListingRepository interface {
	FindByKey(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID, marketplace MarketplaceCode) (*Listing, error)
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode, externalListingID string) (*Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]Listing, int64, error)
	// Create fails with ErrListingAlreadyExists when the key is taken
	Create(ctx context.Context, listing *Listing) error
	Update(ctx context.Context, listing *Listing) error
}
