// Package models holds the GORM row types for the sync tables and their
// conversions to and from the integration domain types. Domain types carry no
// ORM tags.
//
//   - base.go: columns shared by versioned tables
//   - inventory.go: listing SKUs, marketplace SKU mappings, inventory history
//   - order.go: canonical orders and external order mappings
//   - sync.go: sync runs, sync state (watermarks), quarantine records, access tokens
package models
