package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/marketsync/backend/internal/domain/integration"
)

const testMarketplace integration.MarketplaceID = "mock"

// ---------------------------------------------------------------------------
// Token issuer / store
// ---------------------------------------------------------------------------

// MockTokenIssuer is a mock implementation of TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) ExchangeToken(ctx context.Context) (*integration.AccessToken, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.AccessToken), args.Error(1)
}

type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[integration.MarketplaceID]integration.AccessToken
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[integration.MarketplaceID]integration.AccessToken)}
}

func (s *memoryTokenStore) Get(_ context.Context, marketplace integration.MarketplaceID) (*integration.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[marketplace]
	if !ok {
		return nil, integration.ErrTokenNotFound
	}
	return &t, nil
}

func (s *memoryTokenStore) Replace(_ context.Context, token *integration.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Marketplace] = *token
	return nil
}

func (s *memoryTokenStore) Delete(_ context.Context, marketplace integration.MarketplaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, marketplace)
	return nil
}

// ---------------------------------------------------------------------------
// Event publisher
// ---------------------------------------------------------------------------

// MockSyncEventPublisher is a mock implementation of SyncEventPublisher
type MockSyncEventPublisher struct {
	mock.Mock
}

func (m *MockSyncEventPublisher) PublishRunCompleted(ctx context.Context, run *integration.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockSyncEventPublisher) PublishRunEscalated(ctx context.Context, run *integration.SyncRun, reason string) error {
	args := m.Called(ctx, run, reason)
	return args.Error(0)
}

func (m *MockSyncEventPublisher) PublishRecordQuarantined(ctx context.Context, record *integration.QuarantineRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// ---------------------------------------------------------------------------
// Adapter
// ---------------------------------------------------------------------------

type fakeAdapter struct {
	mu         sync.Mutex
	id         integration.MarketplaceID
	inventory  map[string]int
	rejectSKUs map[string]bool
	pushErr    error
	pushes     []map[string]int

	pages    [][]integration.ExternalOrder
	pageErrs map[int]error
	onPage   func(index int)
	queries  []integration.OrderQuery
	served   int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		id:         testMarketplace,
		inventory:  make(map[string]int),
		rejectSKUs: make(map[string]bool),
		pageErrs:   make(map[int]error),
	}
}

func (a *fakeAdapter) Marketplace() integration.MarketplaceID { return a.id }
func (a *fakeAdapter) Provider() integration.Provider         { return integration.ProviderPlayauto }
func (a *fakeAdapter) StatusVocabulary() []string            { return []string{"PAY_DONE", "SHIPPED", "CANCELLED"} }

func (a *fakeAdapter) FetchOrders(_ context.Context, query integration.OrderQuery) (integration.OrderIterator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, query)
	return &fakeIterator{adapter: a}, nil
}

func (a *fakeAdapter) FetchInventory(_ context.Context) (map[string]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.inventory))
	for k, v := range a.inventory {
		out[k] = v
	}
	return out, nil
}

func (a *fakeAdapter) PushInventory(_ context.Context, quantities map[string]int) ([]integration.PushResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sent := make(map[string]int, len(quantities))
	for k, v := range quantities {
		sent[k] = v
	}
	a.pushes = append(a.pushes, sent)
	if a.pushErr != nil {
		return nil, a.pushErr
	}

	keys := make([]string, 0, len(quantities))
	for k := range quantities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]integration.PushResult, 0, len(keys))
	for _, k := range keys {
		if a.rejectSKUs[k] {
			results = append(results, integration.PushResult{ExternalSKU: k, Quantity: quantities[k], Success: false})
			continue
		}
		a.inventory[k] = quantities[k]
		results = append(results, integration.PushResult{ExternalSKU: k, Quantity: quantities[k], Success: true})
	}
	return results, nil
}

func (a *fakeAdapter) pushCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pushes)
}

type fakeIterator struct {
	adapter *fakeAdapter
	index   int
}

func (it *fakeIterator) Next(_ context.Context) (*integration.OrderPage, error) {
	a := it.adapter
	a.mu.Lock()
	if it.index >= len(a.pages) {
		a.mu.Unlock()
		return nil, integration.ErrIteratorDone
	}
	if err, ok := a.pageErrs[it.index]; ok {
		a.mu.Unlock()
		return nil, err
	}
	orders := make([]integration.ExternalOrder, len(a.pages[it.index]))
	copy(orders, a.pages[it.index])
	index := it.index
	it.index++
	a.served++
	hook := a.onPage
	a.mu.Unlock()

	if hook != nil {
		hook(index)
	}
	return &integration.OrderPage{Orders: orders}, nil
}

func newRegistry(adapter integration.MarketplaceAdapter) *integration.InMemoryAdapterRegistry {
	registry := integration.NewAdapterRegistry()
	registry.Register(adapter)
	return registry
}

// ---------------------------------------------------------------------------
// SKU repository
// ---------------------------------------------------------------------------

type fakeSKURepo struct {
	mu      sync.Mutex
	skus    map[uuid.UUID]*integration.ListingSKU
	history []integration.InventoryHistory

	// beforeSynced runs once, before the next CompareAndSetSynced takes effect
	beforeSynced func()
}

func newFakeSKURepo() *fakeSKURepo {
	return &fakeSKURepo{skus: make(map[uuid.UUID]*integration.ListingSKU)}
}

func (r *fakeSKURepo) add(code, externalSKU string, quantity, lastSynced int) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	sku := &integration.ListingSKU{
		ID:          id,
		Code:        code,
		ProductName: code,
		Quantity:    quantity,
		SafetyStock: integration.DefaultSafetyStock,
		Version:     1,
	}
	if externalSKU != "" {
		sku.Mapping = &integration.SKUMapping{
			ID:                 uuid.New(),
			SKUID:              id,
			Marketplace:        testMarketplace,
			ExternalSKU:        externalSKU,
			LastSyncedQuantity: lastSynced,
		}
	}
	r.skus[id] = sku
	return id
}

func cloneSKU(s *integration.ListingSKU) *integration.ListingSKU {
	out := *s
	if s.Mapping != nil {
		m := *s.Mapping
		out.Mapping = &m
	}
	return &out
}

func (r *fakeSKURepo) get(id uuid.UUID) *integration.ListingSKU {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSKU(r.skus[id])
}

func (r *fakeSKURepo) ListMapped(_ context.Context, marketplace integration.MarketplaceID) ([]integration.ListingSKU, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]integration.ListingSKU, 0)
	for _, s := range r.skus {
		if s.IsMapped() && s.Mapping.Marketplace == marketplace {
			out = append(out, *cloneSKU(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *fakeSKURepo) FindMapped(_ context.Context, marketplace integration.MarketplaceID, externalSKU string) (*integration.ListingSKU, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.skus {
		if s.IsMapped() && s.Mapping.Marketplace == marketplace && s.Mapping.ExternalSKU == externalSKU {
			return cloneSKU(s), nil
		}
	}
	return nil, integration.ErrSKUNotFound
}

func (r *fakeSKURepo) FindByID(_ context.Context, id uuid.UUID) (*integration.ListingSKU, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skus[id]
	if !ok {
		return nil, integration.ErrSKUNotFound
	}
	return cloneSKU(s), nil
}

func (r *fakeSKURepo) CompareAndSetQuantity(_ context.Context, id uuid.UUID, expectedVersion, quantity int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skus[id]
	if !ok {
		return 0, integration.ErrSKUNotFound
	}
	if s.Version != expectedVersion {
		return 0, &integration.ConflictError{Entity: "sku", ID: id.String()}
	}
	s.Quantity = quantity
	s.Version++
	return s.Version, nil
}

func (r *fakeSKURepo) CompareAndSetSynced(_ context.Context, skuID uuid.UUID, _ integration.MarketplaceID, expectedVersion, syncedQuantity int, at time.Time) error {
	r.mu.Lock()
	hook := r.beforeSynced
	r.beforeSynced = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skus[skuID]
	if !ok {
		return integration.ErrSKUNotFound
	}
	if s.Version != expectedVersion {
		return &integration.ConflictError{Entity: "sku", ID: skuID.String()}
	}
	s.Mapping.LastSyncedQuantity = syncedQuantity
	s.Mapping.LastSyncedAt = &at
	return nil
}

func (r *fakeSKURepo) PullQuantity(_ context.Context, skuID uuid.UUID, _ integration.MarketplaceID, expectedVersion, quantity int, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skus[skuID]
	if !ok {
		return 0, integration.ErrSKUNotFound
	}
	if s.Version != expectedVersion {
		return 0, &integration.ConflictError{Entity: "sku", ID: skuID.String()}
	}
	s.Quantity = quantity
	s.Version++
	s.Mapping.LastSyncedQuantity = quantity
	s.Mapping.LastSyncedAt = &at
	return s.Version, nil
}

func (r *fakeSKURepo) AppendHistory(_ context.Context, entry integration.InventoryHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, entry)
	return nil
}

// ---------------------------------------------------------------------------
// Order repository
// ---------------------------------------------------------------------------

type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*integration.Order
	mappings map[string]integration.ExternalOrderMapping

	createErrs      map[string]error
	updateConflicts int
	creates         int
	updates         int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:     make(map[uuid.UUID]*integration.Order),
		mappings:   make(map[string]integration.ExternalOrderMapping),
		createErrs: make(map[string]error),
	}
}

func mappingKey(marketplace integration.MarketplaceID, externalOrderID string) string {
	return string(marketplace) + "|" + externalOrderID
}

func cloneOrder(o *integration.Order) *integration.Order {
	out := *o
	out.Items = append([]integration.LineItem(nil), o.Items...)
	out.History = append([]integration.StatusTransition(nil), o.History...)
	return &out
}

func (r *fakeOrderRepo) FindMapping(_ context.Context, marketplace integration.MarketplaceID, externalOrderID string) (*integration.ExternalOrderMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[mappingKey(marketplace, externalOrderID)]
	if !ok {
		return nil, integration.ErrMappingNotFound
	}
	return &m, nil
}

func (r *fakeOrderRepo) CreateWithMapping(_ context.Context, order *integration.Order, mapping *integration.ExternalOrderMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.createErrs[mapping.ExternalOrderID]; ok {
		return err
	}
	key := mappingKey(mapping.Marketplace, mapping.ExternalOrderID)
	if _, exists := r.mappings[key]; exists {
		return &integration.ConflictError{Entity: "order mapping", ID: key}
	}
	r.orders[order.ID] = cloneOrder(order)
	r.mappings[key] = *mapping
	r.creates++
	return nil
}

func (r *fakeOrderRepo) UpdateWithMapping(_ context.Context, order *integration.Order, mapping *integration.ExternalOrderMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return integration.ErrOrderNotFound
	}
	if r.updateConflicts > 0 {
		r.updateConflicts--
		return &integration.ConflictError{Entity: "order", ID: order.ID.String()}
	}
	if stored.Version != order.Version {
		return &integration.ConflictError{Entity: "order", ID: order.ID.String()}
	}
	order.IncrementVersion()
	r.orders[order.ID] = cloneOrder(order)
	if mapping != nil {
		r.mappings[mappingKey(mapping.Marketplace, mapping.ExternalOrderID)] = *mapping
	}
	r.updates++
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, integration.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeOrderRepo) List(_ context.Context, filter integration.OrderFilter) ([]integration.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]integration.Order, 0)
	for _, o := range r.orders {
		if filter.Marketplace != "" && o.Marketplace != filter.Marketplace {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) byExternalID(externalOrderID string) *integration.Order {
	r.mu.Lock()
	m, ok := r.mappings[mappingKey(testMarketplace, externalOrderID)]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	o, _ := r.FindByID(context.Background(), m.OrderID)
	return o
}

// ---------------------------------------------------------------------------
// Quarantine / sync state
// ---------------------------------------------------------------------------

type fakeQuarantineRepo struct {
	mu      sync.Mutex
	records []integration.QuarantineRecord
}

func (r *fakeQuarantineRepo) Create(_ context.Context, record *integration.QuarantineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *record)
	return nil
}

func (r *fakeQuarantineRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.QuarantineRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == id {
			rec := r.records[i]
			return &rec, nil
		}
	}
	return nil, integration.ErrQuarantineNotFound
}

func (r *fakeQuarantineRepo) Update(_ context.Context, record *integration.QuarantineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == record.ID {
			r.records[i] = *record
			return nil
		}
	}
	return integration.ErrQuarantineNotFound
}

func (r *fakeQuarantineRepo) List(_ context.Context, _ integration.QuarantineFilter) ([]integration.QuarantineRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]integration.QuarantineRecord(nil), r.records...)
	return out, int64(len(out)), nil
}

type fakeStateRepo struct {
	mu       sync.Mutex
	marks    map[string]integration.Watermark
	advances []integration.Watermark
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{marks: make(map[string]integration.Watermark)}
}

func (r *fakeStateRepo) GetWatermark(_ context.Context, marketplace integration.MarketplaceID, kind integration.RunKind) (integration.Watermark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marks[string(marketplace)+"|"+string(kind)], nil
}

func (r *fakeStateRepo) AdvanceWatermark(_ context.Context, marketplace integration.MarketplaceID, kind integration.RunKind, w integration.Watermark) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(marketplace) + "|" + string(kind)
	r.marks[key] = r.marks[key].Max(w)
	r.advances = append(r.advances, w)
	return nil
}
