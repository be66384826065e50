// Package integration contains the marketplace synchronization bounded context.
// This context keeps the internal catalog and order book in agreement with external
// marketplaces such as Playauto (and the channels it proxies) and Naver Commerce.
//
// Key concepts:
//   - MarketplaceAdapter: Port interface for one marketplace's order and inventory API
//   - AccessToken: Issuer-assigned credential cached per marketplace
//   - ListingSKU: Internal stock record with per-marketplace external SKU mappings
//   - ExternalOrder / Order: Wire order snapshot and the canonical internal order
//   - SyncRun / Watermark: One reconciliation or ingestion run and its resume position
//   - StatusMappingTable: Exhaustive external-to-canonical status lookup
//   - QuarantineRecord: A record held back for manual review instead of being guessed
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
