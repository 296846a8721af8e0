package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the retry budget of a queue item
const DefaultMaxRetries = 3

// maxErrorLength bounds persisted error messages
const maxErrorLength = 1000

// ---------------------------------------------------------------------------
// Sync Type / Priority / Status
// ---------------------------------------------------------------------------

// SyncType is the reconciliation operation of a queue item
type SyncType string

const (
	SyncTypeStock SyncType = "STOCK"
	SyncTypePrice SyncType = "PRICE"
)

// IsValid checks if the sync type is valid
func (t SyncType) IsValid() bool {
	return t == SyncTypeStock || t == SyncTypePrice
}

// String returns the string representation
func (t SyncType) String() string {
	return string(t)
}

// SyncPriority orders claims; higher is claimed first
type SyncPriority int

const (
	SyncPriorityNormal SyncPriority = 0
	SyncPriorityHigh   SyncPriority = 1
)

// IsValid checks if the priority is valid
func (p SyncPriority) IsValid() bool {
	return p == SyncPriorityNormal || p == SyncPriorityHigh
}

// SyncStatus is the state of a queue item or the outcome of a sync attempt.
// Queue items move PENDING -> PROCESSING -> SUCCESS | PENDING | FAILED;
// ERROR only appears on log entries of retryable attempts.
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "PENDING"
	SyncStatusProcessing SyncStatus = "PROCESSING"
	SyncStatusSuccess    SyncStatus = "SUCCESS"
	SyncStatusError      SyncStatus = "ERROR"
	SyncStatusFailed     SyncStatus = "FAILED"
)

// IsValid checks if the status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusProcessing, SyncStatusSuccess, SyncStatusError, SyncStatusFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status participates in deduplication
func (s SyncStatus) IsActive() bool {
	return s == SyncStatusPending || s == SyncStatusProcessing
}

// IsTerminal reports whether the status is final
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusFailed
}

// String returns the string representation
func (s SyncStatus) String() string {
	return string(s)
}

// ActiveSyncStatuses are the statuses covered by the dedup guarantee
func ActiveSyncStatuses() []SyncStatus {
	return []SyncStatus{SyncStatusPending, SyncStatusProcessing}
}

// ---------------------------------------------------------------------------
// Sync Key
// ---------------------------------------------------------------------------

// SyncKey is the deduplication key of the queue
type SyncKey struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	Marketplace MarketplaceCode
	SyncType    SyncType
}

// Validate checks the key fields
func (k SyncKey) Validate() error {
	if k.TenantID == uuid.Nil {
		return ErrInvalidTenantID
	}
	if k.ProductID == uuid.Nil {
		return ErrInvalidProductID
	}
	if !k.Marketplace.IsValid() {
		return ErrInvalidMarketplace
	}
	if !k.SyncType.IsValid() {
		return ErrInvalidSyncType
	}
	return nil
}

// String returns a stable representation of the key
func (k SyncKey) String() string {
	variant := "-"
	if k.VariantID != nil {
		variant = k.VariantID.String()
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.TenantID, k.ProductID, variant, k.Marketplace, k.SyncType)
}

// ---------------------------------------------------------------------------
// SyncQueueItem Entity
// ---------------------------------------------------------------------------

// SyncQueueItem is one unit of reconciliation work
type SyncQueueItem struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ProductID     uuid.UUID
	VariantID     *uuid.UUID
	Marketplace   MarketplaceCode
	SyncType      SyncType
	Priority      SyncPriority
	Status        SyncStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextAttemptAt time.Time
	ClaimedAt     *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSyncQueueItem creates a PENDING item for a key
func NewSyncQueueItem(key SyncKey, priority SyncPriority) (*SyncQueueItem, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !priority.IsValid() {
		return nil, ErrInvalidSyncPriority
	}

	now := time.Now()
	return &SyncQueueItem{
		ID:            uuid.New(),
		TenantID:      key.TenantID,
		ProductID:     key.ProductID,
		VariantID:     key.VariantID,
		Marketplace:   key.Marketplace,
		SyncType:      key.SyncType,
		Priority:      priority,
		Status:        SyncStatusPending,
		MaxRetries:    DefaultMaxRetries,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Key returns the dedup key of the item
func (i *SyncQueueItem) Key() SyncKey {
	return SyncKey{
		TenantID:    i.TenantID,
		ProductID:   i.ProductID,
		VariantID:   i.VariantID,
		Marketplace: i.Marketplace,
		SyncType:    i.SyncType,
	}
}

// MarkSuccess completes a claimed item
func (i *SyncQueueItem) MarkSuccess(now time.Time) error {
	if i.Status != SyncStatusProcessing {
		return ErrQueueItemNotClaimed
	}
	i.Status = SyncStatusSuccess
	i.LastError = ""
	i.ProcessedAt = &now
	i.UpdatedAt = now
	return nil
}

// MarkFailure records a retryable failure. The item returns to PENDING,
// claimable after delay, until RetryCount reaches MaxRetries and it is FAILED.
func (i *SyncQueueItem) MarkFailure(errMsg string, now time.Time, delay time.Duration) error {
	if i.Status != SyncStatusProcessing {
		return ErrQueueItemNotClaimed
	}
	i.RetryCount++
	i.LastError = truncateError(errMsg)
	i.UpdatedAt = now
	i.ClaimedAt = nil

	if i.IsExhausted() {
		i.Status = SyncStatusFailed
		i.ProcessedAt = &now
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	i.Status = SyncStatusPending
	i.NextAttemptAt = now.Add(delay)
	return nil
}

// MarkPermanentFailure fails a claimed item without further retries
func (i *SyncQueueItem) MarkPermanentFailure(errMsg string, now time.Time) error {
	if i.Status != SyncStatusProcessing {
		return ErrQueueItemNotClaimed
	}
	i.RetryCount++
	i.LastError = truncateError(errMsg)
	i.Status = SyncStatusFailed
	i.ProcessedAt = &now
	i.ClaimedAt = nil
	i.UpdatedAt = now
	return nil
}

// IsExhausted reports whether the retry budget is spent
func (i *SyncQueueItem) IsExhausted() bool {
	limit := i.MaxRetries
	if limit <= 0 {
		limit = DefaultMaxRetries
	}
	return i.RetryCount >= limit
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// SyncQueueFilter filters queue listings
type SyncQueueFilter struct {
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
	ProductID   *uuid.UUID
	Status      SyncStatus
	SyncType    SyncType
	Page        int
	PageSize    int
}

// SyncQueueRepository is the storage of the reconciliation queue.
// It enforces at most one PENDING or PROCESSING item per SyncKey.
type SyncQueueRepository interface {
	// Enqueue inserts a PENDING item unless an active item exists for its key.
	// An existing PENDING item is promoted when the new priority is higher.
	// Returns the stored item and whether it was newly created.
	Enqueue(ctx context.Context, item *SyncQueueItem) (*SyncQueueItem, bool, error)

	// ClaimBatch atomically moves up to limit claimable PENDING items to
	// PROCESSING, ordered by priority DESC, created_at ASC.
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]SyncQueueItem, error)

	// SaveOutcome persists a success or failure transition of the item claimed
	// at claimedAt. It fails with ErrQueueItemNotClaimed if the item is no longer
	// PROCESSING under that claim, e.g. after a reset and a later re-claim.
	SaveOutcome(ctx context.Context, item *SyncQueueItem, claimedAt time.Time) error

	// ResetStale returns items PROCESSING since before claimedBefore to PENDING
	ResetStale(ctx context.Context, claimedBefore time.Time) (int64, error)

	// PurgeTerminal deletes SUCCESS and FAILED items processed before the cutoff
	PurgeTerminal(ctx context.Context, processedBefore time.Time) (int64, error)

	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*SyncQueueItem, error)
	List(ctx context.Context, filter SyncQueueFilter) ([]SyncQueueItem, int64, error)
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[SyncStatus]int64, error)
}
