package integration

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// MarketplaceID identifies one configured marketplace/channel instance
// ---------------------------------------------------------------------------

// MarketplaceID identifies one configured marketplace/channel instance
type MarketplaceID string

// IsValid returns true when the id is a non-empty lowercase slug
func (m MarketplaceID) IsValid() bool {
	if m == "" || len(m) > 64 {
		return false
	}
	for _, r := range string(m) {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// String returns the string representation of MarketplaceID
func (m MarketplaceID) String() string {
	return string(m)
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider is the marketplace API family an adapter speaks
type Provider string

const (
	// ProviderPlayauto is the Playauto aggregator (proxies Naver, Coupang and others)
	ProviderPlayauto Provider = "PLAYAUTO"
	// ProviderNaver is the Naver Commerce API (smartstore)
	ProviderNaver Provider = "NAVER"
)

// IsValid returns true if the provider is supported
func (p Provider) IsValid() bool {
	switch p {
	case ProviderPlayauto, ProviderNaver:
		return true
	default:
		return false
	}
}

// String returns the string representation of Provider
func (p Provider) String() string {
	return string(p)
}

// ParseProvider parses a provider name case-insensitively
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// ---------------------------------------------------------------------------
// RunKind
// ---------------------------------------------------------------------------

// RunKind is the type of work a sync run performs
type RunKind string

const (
	RunKindInventory RunKind = "inventory"
	RunKindOrders    RunKind = "orders"
)

// AllRunKinds lists every run kind
var AllRunKinds = []RunKind{RunKindInventory, RunKindOrders}

// IsValid returns true if the run kind is valid
func (k RunKind) IsValid() bool {
	return k == RunKindInventory || k == RunKindOrders
}

// String returns the string representation of RunKind
func (k RunKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// SyncDirection
// ---------------------------------------------------------------------------

// SyncDirection decides which side is authoritative for stock quantities
type SyncDirection string

const (
	// SyncDirectionPush pushes internal quantities outward; external values are informational
	SyncDirectionPush SyncDirection = "push"
	// SyncDirectionPull treats the marketplace as the system of record for stock
	SyncDirectionPull SyncDirection = "pull"
)

// IsValid returns true if the direction is valid
func (d SyncDirection) IsValid() bool {
	return d == SyncDirectionPush || d == SyncDirectionPull
}

// ---------------------------------------------------------------------------
// MarketplaceAdapter port
// ---------------------------------------------------------------------------

// OrderPage is one page of external orders, ordered by Position ascending
type OrderPage struct {
	Orders []ExternalOrder
}

// OrderIterator is a lazy, restartable sequence of order pages.
// Next returns ErrIteratorDone once the sequence is exhausted.
type OrderIterator interface {
	Next(ctx context.Context) (*OrderPage, error)
}

// PushResult is the marketplace's per-item answer to an inventory push
type PushResult struct {
	ExternalSKU string
	Quantity    int
	Success     bool
	Err         error
}

// OrderQuery narrows an order fetch beyond the watermark
type OrderQuery struct {
	Since     Watermark
	ShopCodes []string
	Statuses  []string
}

// MarketplaceAdapter translates between the internal model and one marketplace's wire format.
// Every error returned is tagged with the error taxonomy (see Classify).
type MarketplaceAdapter interface {
	// Marketplace returns the configured marketplace id this instance serves
	Marketplace() MarketplaceID

	// Provider returns the API family
	Provider() Provider

	// FetchOrders starts a lazy iteration of orders changed after query.Since.
	// Records at or before Since may be yielded again; records after it are never skipped.
	FetchOrders(ctx context.Context, query OrderQuery) (OrderIterator, error)

	// FetchInventory returns the marketplace-visible quantity per external SKU
	FetchInventory(ctx context.Context) (map[string]int, error)

	// PushInventory sends quantities per external SKU and reports per-item results
	PushInventory(ctx context.Context, quantities map[string]int) ([]PushResult, error)

	// StatusVocabulary lists every external status code the marketplace can emit
	StatusVocabulary() []string
}

// TokenIssuer exchanges stored client credentials for an access token
type TokenIssuer interface {
	ExchangeToken(ctx context.Context) (*AccessToken, error)
}

// TokenSource supplies a valid token to adapters
type TokenSource interface {
	GetToken(ctx context.Context, marketplace MarketplaceID) (*AccessToken, error)
	Invalidate(ctx context.Context, marketplace MarketplaceID) error
}

// ---------------------------------------------------------------------------
// AdapterRegistry
// ---------------------------------------------------------------------------

// AdapterRegistry resolves adapters by marketplace id
type AdapterRegistry interface {
	Register(adapter MarketplaceAdapter)
	Get(marketplace MarketplaceID) (MarketplaceAdapter, error)
	List() []MarketplaceAdapter
}

// InMemoryAdapterRegistry is the default AdapterRegistry
type InMemoryAdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[MarketplaceID]MarketplaceAdapter
}

// NewAdapterRegistry creates an empty registry
func NewAdapterRegistry() *InMemoryAdapterRegistry {
	return &InMemoryAdapterRegistry{adapters: make(map[MarketplaceID]MarketplaceAdapter)}
}

// Register adds or replaces the adapter for its marketplace id
func (r *InMemoryAdapterRegistry) Register(adapter MarketplaceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Marketplace()] = adapter
}

// Get returns the adapter for a marketplace id
func (r *InMemoryAdapterRegistry) Get(marketplace MarketplaceID) (MarketplaceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[marketplace]
	if !ok {
		return nil, ErrMarketplaceNotRegistered
	}
	return adapter, nil
}

// List returns the registered adapters sorted by marketplace id
func (r *InMemoryAdapterRegistry) List() []MarketplaceAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MarketplaceAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Marketplace() < out[j].Marketplace() })
	return out
}

var _ AdapterRegistry = (*InMemoryAdapterRegistry)(nil)
