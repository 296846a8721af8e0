package integration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCallTimeout bounds every collaborator and marketplace call of a sync attempt
const DefaultCallTimeout = 15 * time.Second

// outcomeTimeout bounds the bookkeeping writes after an attempt
const outcomeTimeout = 10 * time.Second

// TokenProvider hands out valid access tokens and records connection health
type TokenProvider interface {
	GetValidToken(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (string, error)
	MarkAuthFailure(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, reason string) error
	RecordSync(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) error
}

// MarginProvider resolves the effective safety margin of a product
type MarginProvider interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, productID uuid.UUID, categoryID *uuid.UUID) (int, error)
}

// ListingProvider publishes and persists listings
type ListingProvider interface {
	EnsureListing(ctx context.Context, accessToken string, marketplace integration.MarketplaceCode, tenantID uuid.UUID, variantID *uuid.UUID, product *integration.ProductInfo, quantity int64) (*integration.Listing, bool, error)
	Save(ctx context.Context, listing *integration.Listing) error
}

// OutcomeRecorder persists the outcome of a claimed item and its audit entry
type OutcomeRecorder interface {
	MarkSuccess(ctx context.Context, item *integration.SyncQueueItem) error
	MarkFailure(ctx context.Context, item *integration.SyncQueueItem, cause error) error
	AppendLog(ctx context.Context, entry *integration.SyncLogEntry) error
}

// SyncProcessorDeps groups the collaborators of the sync pipeline
type SyncProcessorDeps struct {
	Tokens    TokenProvider
	Margins   MarginProvider
	Listings  ListingProvider
	Outcomes  OutcomeRecorder
	Inventory integration.InventoryReader
	Catalog   integration.CatalogReader
	Adapters  integration.AdapterRegistry
	Metrics   MetricsRecorder
}

// SyncProcessor runs the reconciliation pipeline for one claimed queue item
type SyncProcessor struct {
	deps        SyncProcessorDeps
	callTimeout time.Duration
	logger      *zap.Logger
	clock       func() time.Time
}

// NewSyncProcessor creates a new SyncProcessor
func NewSyncProcessor(deps SyncProcessorDeps, callTimeout time.Duration, logger *zap.Logger) *SyncProcessor {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	deps.Metrics = metricsOrNoop(deps.Metrics)
	return &SyncProcessor{
		deps:        deps,
		callTimeout: callTimeout,
		logger:      logger,
		clock:       time.Now,
	}
}

// attempt carries the values observed during one pipeline run
type attempt struct {
	oldValue string
	newValue string
}

// Process reconciles one claimed item. Every attempt ends with the item's
// outcome recorded and exactly one log entry appended; the returned error
// only reports a failure to persist that bookkeeping.
func (p *SyncProcessor) Process(ctx context.Context, item *integration.SyncQueueItem) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "SyncProcessor", "Process",
		telemetry.WithAttribute("queue_item_id", item.ID.String()),
		telemetry.WithAttribute("marketplace", item.Marketplace.String()),
		telemetry.WithAttribute("sync_type", item.SyncType.String()),
	)
	defer span.End()
	ctx = integration.WithAccount(ctx, item.TenantID, item.Marketplace)

	start := p.clock()
	var at attempt
	cause := p.runSafely(ctx, item, &at)
	if cause != nil {
		telemetry.RecordError(span, cause)
	}
	return p.finish(ctx, item, at, cause, start)
}

func (p *SyncProcessor) runSafely(ctx context.Context, item *integration.SyncQueueItem, at *attempt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync pipeline panic: %v", r)
		}
	}()
	return p.run(ctx, item, at)
}

func (p *SyncProcessor) run(ctx context.Context, item *integration.SyncQueueItem, at *attempt) error {
	var token string
	if err := p.call(ctx, func(ctx context.Context) (err error) {
		token, err = p.deps.Tokens.GetValidToken(ctx, item.TenantID, item.Marketplace)
		return err
	}); err != nil {
		return err
	}

	adapter, err := p.deps.Adapters.Get(item.Marketplace)
	if err != nil {
		return err
	}

	var product *integration.ProductInfo
	if err := p.call(ctx, func(ctx context.Context) (err error) {
		product, err = p.deps.Catalog.GetProduct(ctx, item.TenantID, item.ProductID)
		return err
	}); err != nil {
		return fmt.Errorf("get product: %w", err)
	}

	quantity, err := p.publishedQuantity(ctx, item, product)
	if err != nil {
		return err
	}

	var (
		listing *integration.Listing
		created bool
	)
	if err := p.call(ctx, func(ctx context.Context) (err error) {
		listing, created, err = p.deps.Listings.EnsureListing(ctx, token, item.Marketplace, item.TenantID, item.VariantID, product, quantity)
		return err
	}); err != nil {
		return err
	}

	var remote *integration.RemoteListing
	switch item.SyncType {
	case integration.SyncTypeStock:
		at.oldValue = strconv.FormatInt(listing.Quantity, 10)
		at.newValue = strconv.FormatInt(quantity, 10)
		if created {
			at.oldValue = ""
			break
		}
		if err := p.call(ctx, func(ctx context.Context) (err error) {
			remote, err = adapter.UpdateQuantity(ctx, token, listing.ExternalListingID, quantity)
			return err
		}); err != nil {
			return fmt.Errorf("update quantity: %w", err)
		}
		listing.RecordQuantity(quantity, p.clock())

	case integration.SyncTypePrice:
		at.oldValue = listing.Price.String()
		at.newValue = product.Price.String()
		if created {
			at.oldValue = ""
			break
		}
		if err := p.call(ctx, func(ctx context.Context) (err error) {
			remote, err = adapter.UpdatePrice(ctx, token, listing.ExternalListingID, product.Price)
			return err
		}); err != nil {
			return fmt.Errorf("update price: %w", err)
		}
		listing.RecordPrice(product.Price, p.clock())

	default:
		return integration.ErrInvalidSyncType
	}

	if !created {
		listing.ApplyRemoteStatus(remote)
		if err := p.deps.Listings.Save(ctx, listing); err != nil {
			return fmt.Errorf("save listing: %w", err)
		}
	}

	if err := p.deps.Tokens.RecordSync(ctx, item.TenantID, item.Marketplace); err != nil {
		p.logger.Warn("failed to record connection sync time",
			zap.String("tenant_id", item.TenantID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// publishedQuantity reads sellable stock and applies the safety margin
func (p *SyncProcessor) publishedQuantity(ctx context.Context, item *integration.SyncQueueItem, product *integration.ProductInfo) (int64, error) {
	var margin int
	if err := p.call(ctx, func(ctx context.Context) (err error) {
		margin, err = p.deps.Margins.Resolve(ctx, item.TenantID, item.Marketplace, item.ProductID, product.CategoryID)
		return err
	}); err != nil {
		return 0, fmt.Errorf("resolve margin: %w", err)
	}

	var qty int64
	if err := p.call(ctx, func(ctx context.Context) error {
		available, err := p.deps.Inventory.GetSellableQuantity(ctx, item.TenantID, item.ProductID, item.VariantID)
		if err != nil {
			return err
		}
		qty = integration.PublishedQuantity(available, margin)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("get sellable quantity: %w", err)
	}
	return qty, nil
}

// call runs fn under the per-call timeout
func (p *SyncProcessor) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return fn(ctx)
}

// finish records the outcome of an attempt, the connection health and the
// audit entry. It runs detached from ctx cancellation so shutdown cannot
// leave an attempt unrecorded.
func (p *SyncProcessor) finish(ctx context.Context, item *integration.SyncQueueItem, at attempt, cause error, start time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeTimeout)
	defer cancel()

	log := p.logger.With(
		zap.String("tenant_id", item.TenantID.String()),
		zap.String("queue_item_id", item.ID.String()),
		zap.String("product_id", item.ProductID.String()),
		zap.String("marketplace", item.Marketplace.String()),
		zap.String("sync_type", item.SyncType.String()),
	)

	var (
		status  integration.SyncStatus
		errMsg  string
		outcome string
		saveErr error
	)
	if cause == nil {
		status, outcome = integration.SyncStatusSuccess, OutcomeSuccess
		saveErr = p.deps.Outcomes.MarkSuccess(ctx, item)
		log.Debug("sync succeeded", zap.String("new_value", at.newValue))
	} else {
		errMsg = cause.Error()
		if integration.IsAuthError(cause) && !errors.Is(cause, integration.ErrConnectionNotUsable) {
			if err := p.deps.Tokens.MarkAuthFailure(ctx, item.TenantID, item.Marketplace, errMsg); err != nil {
				log.Error("failed to mark connection error", zap.Error(err))
			}
		}

		saveErr = p.deps.Outcomes.MarkFailure(ctx, item, cause)
		if item.Status == integration.SyncStatusPending {
			status, outcome = integration.SyncStatusError, OutcomeRetry
		} else {
			status, outcome = integration.SyncStatusFailed, OutcomeFailed
		}
		log.Warn("sync attempt failed",
			zap.String("error_kind", integration.ClassifyError(cause).String()),
			zap.Int("retry_count", item.RetryCount),
			zap.String("status", item.Status.String()),
			zap.Error(cause),
		)
	}

	if saveErr != nil {
		log.Error("failed to save sync outcome", zap.Error(saveErr))
	}

	entry := integration.NewSyncLogEntry(item, status, at.oldValue, at.newValue, errMsg, p.clock())
	if err := p.deps.Outcomes.AppendLog(ctx, entry); err != nil {
		log.Error("failed to append sync log", zap.Error(err))
		saveErr = errors.Join(saveErr, err)
	}

	p.deps.Metrics.RecordSyncAttempt(ctx, item.Marketplace.String(), item.SyncType.String(), outcome, p.clock().Sub(start))
	return saveErr
}
