package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/erp/marketsync/internal/domain/shared"
)

// Domain errors for the integration context
var (
	ErrInvalidTenantID    = errors.New("integration: invalid tenant ID")
	ErrInvalidProductID   = errors.New("integration: invalid product ID")
	ErrInvalidMarketplace = errors.New("integration: unsupported marketplace")
	ErrAdapterNotFound    = errors.New("integration: no adapter registered for marketplace")

	// Connection errors
	ErrConnectionNotFound          = errors.New("integration: connection not found")
	ErrConnectionNotUsable         = errors.New("integration: connection is not connected")
	ErrInvalidConnectionTransition = errors.New("integration: invalid connection status transition")
	ErrMissingRefreshToken         = errors.New("integration: connection has no refresh token")
	ErrTokenRevoked                = errors.New("integration: token revoked by marketplace")
	ErrMissingExternalUserID       = errors.New("integration: marketplace user ID is required")

	// Safety margin errors
	ErrRuleNotFound        = errors.New("integration: safety margin rule not found")
	ErrRuleAlreadyExists   = errors.New("integration: safety margin rule already exists for scope")
	ErrMarginOutOfRange    = errors.New("integration: margin percentage must be between 0 and 100")
	ErrRuleScopeMismatch   = errors.New("integration: rule scope does not match its priority")
	ErrInvalidRulePriority = errors.New("integration: invalid rule priority")

	// Listing errors
	ErrListingNotFound      = errors.New("integration: listing not found")
	ErrListingAlreadyExists = errors.New("integration: listing already exists")
	ErrInvalidListingID     = errors.New("integration: external listing ID is required")

	// Queue errors
	ErrQueueItemNotFound    = errors.New("integration: sync queue item not found")
	ErrInvalidSyncType      = errors.New("integration: invalid sync type")
	ErrInvalidSyncPriority  = errors.New("integration: invalid sync priority")
	ErrQueueItemNotClaimed  = errors.New("integration: sync queue item is not processing")
	ErrQueueItemNotFailed   = errors.New("integration: sync queue item is not failed")
	ErrInvalidClaimBatchCap = errors.New("integration: claim batch limit must be positive")

	// Order import errors
	ErrMarketplaceOrderNotFound = errors.New("integration: marketplace order not found")
	ErrMarketplaceOrderExists   = errors.New("integration: marketplace order already imported")
	ErrInvalidNotification      = errors.New("integration: malformed marketplace notification")
	ErrInvalidExternalOrderID   = errors.New("integration: external order ID is required")
	ErrOrderImportInProgress    = errors.New("integration: order import already in progress")

	// ErrListingPublishInProgress is transient: another worker is publishing the same listing
	ErrListingPublishInProgress = errors.New("integration: listing publish already in progress")
)

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// ErrorKind classifies a failure for retry purposes
type ErrorKind int

const (
	// ErrorKindNone means no error
	ErrorKindNone ErrorKind = iota
	// ErrorKindTransient failures are retried through the queue retry counter
	ErrorKindTransient
	// ErrorKindPermanent failures fail the queue item immediately
	ErrorKindPermanent
	// ErrorKindValidation failures are rejected at the boundary
	ErrorKindValidation
)

// String returns the string representation
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindTransient:
		return "transient"
	case ErrorKindPermanent:
		return "permanent"
	case ErrorKindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// MarketplaceError is an error response from a marketplace API
type MarketplaceError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

// NewMarketplaceError builds a MarketplaceError classified by HTTP status
func NewMarketplaceError(statusCode int, code, message string) *MarketplaceError {
	return &MarketplaceError{
		Kind:       KindForStatus(statusCode),
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// Error implements the error interface
func (e *MarketplaceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("marketplace error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("marketplace error %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the underlying error
func (e *MarketplaceError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the marketplace rejected the credentials
func (e *MarketplaceError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// KindForStatus maps an HTTP status code to an error kind.
// Timeouts, throttling and server errors are transient; every other 4xx is permanent.
func KindForStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 0:
		return ErrorKindTransient
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return ErrorKindTransient
	case statusCode >= 500:
		return ErrorKindTransient
	case statusCode >= 400:
		return ErrorKindPermanent
	default:
		return ErrorKindNone
	}
}

// ClassifyError returns the kind of a failure
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorKindTransient
	}

	var mErr *MarketplaceError
	if errors.As(err, &mErr) {
		return mErr.Kind
	}

	if IsAuthError(err) ||
		errors.Is(err, ErrConnectionNotFound) ||
		errors.Is(err, ErrMissingRefreshToken) ||
		errors.Is(err, ErrAdapterNotFound) ||
		errors.Is(err, ErrInvalidSyncType) ||
		errors.Is(err, ErrInvalidListingID) ||
		errors.Is(err, ErrInvalidMarketplace) {
		return ErrorKindPermanent
	}

	var dErr *shared.DomainError
	if errors.As(err, &dErr) {
		return ErrorKindValidation
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorKindTransient
	}

	return ErrorKindTransient
}

// IsAuthError reports whether an error means the tenant's authorization is unusable.
// Such failures move the connection to ERROR until the tenant reconnects.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrConnectionNotUsable) || errors.Is(err, ErrTokenRevoked) {
		return true
	}
	var mErr *MarketplaceError
	if errors.As(err, &mErr) {
		return mErr.IsAuth()
	}
	return false
}

// IsRetryable reports whether a failure should go back to the queue
func IsRetryable(err error) bool {
	return ClassifyError(err) == ErrorKindTransient
}
