package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/lock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// maxListingPictures bounds the pictures uploaded per new listing
	maxListingPictures = 6
	// publishLockTTL bounds how long one worker owns the first publish of a listing
	publishLockTTL = 2 * time.Minute
)

// ListingService keeps the registry of published listings
type ListingService struct {
	repo     integration.ListingRepository
	adapters integration.AdapterRegistry
	pictures integration.PictureSource
	locker   lock.Locker
	logger   *zap.Logger
}

// NewListingService creates a new ListingService. pictures may be nil.
func NewListingService(
	repo integration.ListingRepository,
	adapters integration.AdapterRegistry,
	pictures integration.PictureSource,
	logger *zap.Logger,
) *ListingService {
	return &ListingService{
		repo:     repo,
		adapters: adapters,
		pictures: pictures,
		locker:   lock.NewLocalLocker(),
		logger:   logger,
	}
}

// UsePublishLock shares the lock that serializes first publishes across replicas
func (s *ListingService) UsePublishLock(l lock.Locker) {
	if l != nil {
		s.locker = l
	}
}

// EnsureListing returns the listing of a product on a marketplace, publishing
// it with the given quantity first if it does not exist. created reports
// whether this call published it. Only one caller publishes a given listing;
// the others get ErrListingPublishInProgress and retry later.
func (s *ListingService) EnsureListing(
	ctx context.Context,
	accessToken string,
	marketplace integration.MarketplaceCode,
	tenantID uuid.UUID,
	variantID *uuid.UUID,
	product *integration.ProductInfo,
	quantity int64,
) (*integration.Listing, bool, error) {
	existing, err := s.repo.FindByKey(ctx, tenantID, product.ID, variantID, marketplace)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, integration.ErrListingNotFound) {
		return nil, false, err
	}

	var (
		listing *integration.Listing
		created bool
	)
	held, err := lock.RunExclusive(ctx, s.locker, publishKey(marketplace, tenantID, product.ID, variantID), publishLockTTL,
		func(ctx context.Context) error {
			// a publish that finished while we were unlocked already stored it
			existing, err := s.repo.FindByKey(ctx, tenantID, product.ID, variantID, marketplace)
			if err == nil {
				listing = existing
				return nil
			}
			if !errors.Is(err, integration.ErrListingNotFound) {
				return err
			}
			listing, created, err = s.publish(ctx, accessToken, marketplace, tenantID, variantID, product, quantity)
			return err
		})
	if err != nil {
		return nil, false, err
	}
	if !held {
		return nil, false, integration.ErrListingPublishInProgress
	}
	return listing, created, nil
}

func publishKey(marketplace integration.MarketplaceCode, tenantID, productID uuid.UUID, variantID *uuid.UUID) string {
	variant := "-"
	if variantID != nil {
		variant = variantID.String()
	}
	return fmt.Sprintf("listing-publish:%s:%s:%s:%s", marketplace, tenantID, productID, variant)
}

// publish creates the remote listing and registers it
func (s *ListingService) publish(
	ctx context.Context,
	accessToken string,
	marketplace integration.MarketplaceCode,
	tenantID uuid.UUID,
	variantID *uuid.UUID,
	product *integration.ProductInfo,
	quantity int64,
) (*integration.Listing, bool, error) {
	adapter, err := s.adapters.Get(marketplace)
	if err != nil {
		return nil, false, err
	}

	pictureIDs, err := s.uploadPictures(ctx, adapter, accessToken, product)
	if err != nil {
		return nil, false, err
	}

	remote, err := adapter.CreateListing(ctx, accessToken, integration.ListingDraft{
		Title:      product.Name,
		SKU:        product.SKU,
		Price:      product.Price,
		Quantity:   quantity,
		PictureIDs: pictureIDs,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create listing: %w", err)
	}

	listing, err := integration.NewListing(tenantID, product.ID, variantID, marketplace, remote)
	if err != nil {
		return nil, false, err
	}
	listing.Quantity = quantity
	listing.Price = product.Price

	if err := s.repo.Create(ctx, listing); err != nil {
		if errors.Is(err, integration.ErrListingAlreadyExists) {
			existing, findErr := s.repo.FindByKey(ctx, tenantID, product.ID, variantID, marketplace)
			if findErr != nil {
				return nil, false, findErr
			}
			s.logger.Warn("listing published concurrently; keeping the stored one",
				zap.String("tenant_id", tenantID.String()),
				zap.String("product_id", product.ID.String()),
				zap.String("external_listing_id", remote.ExternalID),
			)
			return existing, false, nil
		}
		return nil, false, err
	}

	s.logger.Info("listing published",
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("marketplace", marketplace.String()),
		zap.String("external_listing_id", listing.ExternalListingID),
		zap.Int64("quantity", quantity),
	)
	return listing, true, nil
}

// uploadPictures pushes product pictures to the marketplace. Missing or
// rejected pictures are skipped; credential errors abort.
func (s *ListingService) uploadPictures(
	ctx context.Context,
	adapter integration.MarketplaceAdapter,
	accessToken string,
	product *integration.ProductInfo,
) ([]string, error) {
	if s.pictures == nil || len(product.PictureKeys) == 0 {
		return nil, nil
	}

	keys := product.PictureKeys
	if len(keys) > maxListingPictures {
		keys = keys[:maxListingPictures]
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		data, err := s.pictures.Load(ctx, key)
		if err != nil {
			s.logger.Warn("skipping product picture", zap.String("key", key), zap.Error(err))
			continue
		}
		id, err := adapter.UploadPicture(ctx, accessToken, data)
		if err != nil {
			if integration.IsAuthError(err) {
				return nil, err
			}
			s.logger.Warn("picture upload failed", zap.String("key", key), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Save persists listing changes made after a push
func (s *ListingService) Save(ctx context.Context, listing *integration.Listing) error {
	return s.repo.Update(ctx, listing)
}

// ResolveProduct maps a marketplace listing ID back to the internal product
func (s *ListingService) ResolveProduct(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalListingID string) (*integration.Listing, error) {
	return s.repo.FindByExternalID(ctx, tenantID, marketplace, externalListingID)
}

// ListListings returns a page of listings
func (s *ListingService) ListListings(ctx context.Context, tenantID uuid.UUID, q ListQuery) (*PageResult[ListingResponse], error) {
	marketplace, err := parseOptionalMarketplace(q.Marketplace)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(q.Page, q.PageSize)

	listings, total, err := s.repo.List(ctx, integration.ListingFilter{
		TenantID:    tenantID,
		Marketplace: marketplace,
		ProductID:   q.ProductID,
		Status:      integration.ListingStatus(q.Status),
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		return nil, err
	}

	out := make([]ListingResponse, len(listings))
	for i := range listings {
		out[i] = ToListingResponse(&listings[i])
	}
	return newPageResult(out, total, page, pageSize), nil
}
