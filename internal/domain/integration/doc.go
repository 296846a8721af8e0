// Package integration contains the marketplace integration bounded context.
// It keeps a tenant's published marketplace listings consistent with internal
// stock and imports marketplace orders back into the ERP.
//
// Key concepts:
//   - Connection: the OAuth2 authorization a tenant granted on a marketplace
//   - SafetyMarginRule: percentage of sellable stock exposed on a marketplace
//   - Listing: the marketplace-side identity of a product or variant
//   - SyncQueueItem: a deduplicated unit of stock or price reconciliation work
//   - SyncLogEntry: immutable audit record of one reconciliation attempt
//   - MarketplaceOrder: the import record of an external order
//
// Design Pattern: Ports & Adapters
//   - Ports (MarketplaceAdapter, repositories, ERP collaborators) are defined here
//   - Adapters (HTTP clients, GORM repositories) live in the infrastructure layer
package integration
