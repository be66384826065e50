package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
)

// naverWindow is the widest lastChangedFrom..lastChangedTo span the API accepts
const naverWindow = 24 * time.Hour

const naverTimeLayout = "2006-01-02T15:04:05.000-07:00"

// NaverAdapter implements MarketplaceAdapter and TokenIssuer for the Naver Commerce API
type NaverAdapter struct {
	config     *NaverConfig
	httpClient *http.Client
	tokens     integration.TokenSource
	now        func() time.Time

	// origins maps an external SKU to its origin product number; filled by FetchInventory
	mu      sync.RWMutex
	origins map[string]string
}

// NewNaverAdapter creates a new Naver adapter with the given configuration
func NewNaverAdapter(config *NaverConfig, tokens integration.TokenSource) (*NaverAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &NaverAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		tokens:  tokens,
		now:     time.Now,
		origins: make(map[string]string),
	}, nil
}

// Marketplace returns the marketplace id this adapter serves
func (a *NaverAdapter) Marketplace() integration.MarketplaceID {
	return a.config.Marketplace
}

// Provider returns NAVER
func (a *NaverAdapter) Provider() integration.Provider {
	return integration.ProviderNaver
}

// StatusVocabulary returns every productOrderStatus the API can emit
func (a *NaverAdapter) StatusVocabulary() []string {
	out := make([]string, len(NaverStatusVocabulary))
	copy(out, NaverStatusVocabulary)
	return out
}

// ---------------------------------------------------------------------------
// Token exchange
// ---------------------------------------------------------------------------

// ExchangeToken requests a client credentials token with a signed timestamp
func (a *NaverAdapter) ExchangeToken(ctx context.Context) (*integration.AccessToken, error) {
	now := a.now()
	timestamp := now.UnixMilli()
	sign, err := a.config.Sign(timestamp)
	if err != nil {
		return nil, &integration.AuthError{Marketplace: a.config.Marketplace, Err: err}
	}

	form := url.Values{}
	form.Set("client_id", a.config.ClientID)
	form.Set("timestamp", strconv.FormatInt(timestamp, 10))
	form.Set("client_secret_sign", sign)
	form.Set("grant_type", "client_credentials")
	form.Set("type", "SELF")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIBaseURL+"/external/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("naver: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := execute(a.httpClient, req, "naver auth")
	if err != nil {
		// A bad signature comes back as 400
		var permanent *integration.PermanentError
		if errors.Is(err, errUnauthorized) || errors.As(err, &permanent) {
			return nil, &integration.AuthError{Marketplace: a.config.Marketplace, Err: err}
		}
		return nil, err
	}

	var resp NaverTokenResponse
	if err := decodeJSON(body, &resp, "naver auth"); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &integration.AuthError{
			Marketplace: a.config.Marketplace,
			Err:         errors.New("naver: token response carried no access_token"),
		}
	}
	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &integration.AccessToken{
		Marketplace: a.config.Marketplace,
		Value:       resp.AccessToken,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// FetchOrders walks last-changed-statuses in 24 hour windows from query.Since
// and loads the details of every changed product order.
func (a *NaverAdapter) FetchOrders(_ context.Context, query integration.OrderQuery) (integration.OrderIterator, error) {
	end := a.now()
	from := query.Since.At
	if from.IsZero() {
		from = end.Add(-7 * 24 * time.Hour)
	}
	statuses := make(map[string]bool, len(query.Statuses))
	for _, s := range query.Statuses {
		statuses[s] = true
	}
	return &naverOrderIterator{
		adapter:  a,
		since:    query.Since,
		statuses: statuses,
		from:     from,
		end:      end,
		done:     from.After(end),
	}, nil
}

type naverOrderIterator struct {
	adapter  *NaverAdapter
	since    integration.Watermark
	statuses map[string]bool

	from time.Time
	end  time.Time
	more *NaverMore
	done bool
}

// Next returns the next non-empty page of changed orders
func (it *naverOrderIterator) Next(ctx context.Context) (*integration.OrderPage, error) {
	for !it.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changes, err := it.fetchChanges(ctx)
		if err != nil {
			return nil, err
		}
		if len(changes) == 0 {
			continue
		}
		orders, err := it.adapter.loadDetails(ctx, changes)
		if err != nil {
			return nil, err
		}
		if len(orders) > 0 {
			return &integration.OrderPage{Orders: orders}, nil
		}
	}
	return nil, integration.ErrIteratorDone
}

// fetchChanges reads one page of status changes and moves the window forward
func (it *naverOrderIterator) fetchChanges(ctx context.Context) ([]NaverLastChangeStatus, error) {
	a := it.adapter
	windowTo := it.from.Add(naverWindow - time.Millisecond)
	if windowTo.After(it.end) {
		windowTo = it.end
	}

	params := url.Values{}
	params.Set("lastChangedFrom", it.from.In(kst).Format(naverTimeLayout))
	params.Set("lastChangedTo", windowTo.In(kst).Format(naverTimeLayout))
	params.Set("limitCount", strconv.Itoa(a.config.ChangeLimit))
	if it.more != nil {
		params.Set("lastChangedFrom", it.more.MoreFrom)
		params.Set("moreSequence", it.more.MoreSequence)
	}

	body, err := a.call(ctx, http.MethodGet,
		"/external/v1/pay-order/seller/product-orders/last-changed-statuses?"+params.Encode(), nil, "naver fetch order changes")
	if err != nil {
		return nil, err
	}
	var resp NaverLastChangedResponse
	if err := decodeJSON(body, &resp, "naver fetch order changes"); err != nil {
		return nil, err
	}

	if resp.Data.More != nil && resp.Data.More.MoreSequence != "" {
		it.more = resp.Data.More
	} else {
		it.more = nil
		it.from = windowTo.Add(time.Millisecond)
		it.done = it.from.After(it.end)
	}

	latest := make(map[string]NaverLastChangeStatus)
	for _, c := range resp.Data.LastChangeStatuses {
		if len(it.statuses) > 0 && !it.statuses[c.ProductOrderStatus] {
			continue
		}
		changedAt := parseNaverTime(c.LastChangedDate)
		position := integration.Watermark{At: changedAt, Key: c.ProductOrderID}
		if !changedAt.IsZero() && !it.since.IsZero() && !position.After(it.since) {
			continue
		}
		if prev, ok := latest[c.ProductOrderID]; ok && !changedAt.After(parseNaverTime(prev.LastChangedDate)) {
			continue
		}
		latest[c.ProductOrderID] = c
	}

	changes := make([]NaverLastChangeStatus, 0, len(latest))
	for _, c := range latest {
		changes = append(changes, c)
	}
	return changes, nil
}

// loadDetails queries product order details and converts them, ordered by position
func (a *NaverAdapter) loadDetails(ctx context.Context, changes []NaverLastChangeStatus) ([]integration.ExternalOrder, error) {
	ids := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.ProductOrderID != "" {
			ids = append(ids, c.ProductOrderID)
		}
	}
	sort.Strings(ids)

	details := make(map[string]json.RawMessage, len(ids))
	for start := 0; start < len(ids); start += naverMaxQueryIDs {
		end := start + naverMaxQueryIDs
		if end > len(ids) {
			end = len(ids)
		}
		body, err := a.call(ctx, http.MethodPost, "/external/v1/pay-order/seller/product-orders/query",
			NaverProductOrderQueryRequest{ProductOrderIDs: ids[start:end]}, "naver query product orders")
		if err != nil {
			return nil, err
		}
		var resp NaverProductOrderQueryResponse
		if err := decodeJSON(body, &resp, "naver query product orders"); err != nil {
			return nil, err
		}
		for _, raw := range resp.Data {
			var probe struct {
				ProductOrder struct {
					ProductOrderID string `json:"productOrderId"`
				} `json:"productOrder"`
			}
			if err := json.Unmarshal(raw, &probe); err == nil && probe.ProductOrder.ProductOrderID != "" {
				details[probe.ProductOrder.ProductOrderID] = raw
			}
		}
	}

	orders := make([]integration.ExternalOrder, 0, len(changes))
	for _, c := range changes {
		orders = append(orders, a.convertOrder(c, details[c.ProductOrderID]))
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[j].Position().After(orders[i].Position())
	})
	return orders, nil
}

// convertOrder maps a status change plus its detail record. A missing or broken
// detail leaves the line items empty and the change record as the raw payload.
func (a *NaverAdapter) convertOrder(change NaverLastChangeStatus, raw json.RawMessage) integration.ExternalOrder {
	order := integration.ExternalOrder{
		Marketplace:     a.config.Marketplace,
		ExternalOrderID: change.ProductOrderID,
		StatusCode:      change.ProductOrderStatus,
		ChangedAt:       parseNaverTime(change.LastChangedDate),
		OrderedAt:       parseNaverTime(change.PaymentDate),
	}

	var detail NaverProductOrderDetail
	if len(raw) == 0 || json.Unmarshal(raw, &detail) != nil {
		order.RawPayload, _ = json.Marshal(change)
		return order
	}
	order.RawPayload = append([]byte(nil), raw...)

	po := detail.ProductOrder
	if po.ProductOrderStatus != "" {
		order.StatusCode = po.ProductOrderStatus
	}
	order.BuyerRef = detail.Order.OrdererID
	if order.BuyerRef == "" {
		order.BuyerRef = detail.Order.OrdererName
	}
	if t := parseNaverTime(detail.Order.OrderDate); !t.IsZero() {
		order.OrderedAt = t
	}
	order.TotalAmount = po.TotalPaymentAmount.Decimal()

	sku := po.OptionManageCode
	if sku == "" {
		sku = po.SellerProductCode
	}
	if sku == "" {
		sku = po.ProductID.String()
	}
	name := po.ProductName
	if po.ProductOption != "" {
		name += " / " + po.ProductOption
	}
	order.Items = []integration.LineItem{{
		ExternalSKU: sku,
		ProductName: name,
		Quantity:    po.Quantity.Int(),
		UnitPrice:   po.UnitPrice.Decimal(),
	}}
	return order
}

// ---------------------------------------------------------------------------
// Inventory Operations
// ---------------------------------------------------------------------------

// FetchInventory returns the stock quantity per seller management code. Channel
// products without one are keyed by their origin product number.
func (a *NaverAdapter) FetchInventory(ctx context.Context) (map[string]int, error) {
	stock := make(map[string]int)
	origins := make(map[string]string)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := a.call(ctx, http.MethodPost, "/external/v1/products/search",
			NaverProductSearchRequest{Page: page, Size: a.config.ProductPageSize}, "naver fetch inventory")
		if err != nil {
			return nil, err
		}
		var resp NaverProductSearchResponse
		if err := decodeJSON(body, &resp, "naver fetch inventory"); err != nil {
			return nil, err
		}

		for _, item := range resp.Contents {
			for _, cp := range item.ChannelProducts {
				origin := item.OriginProductNo.String()
				if origin == "" {
					origin = cp.OriginProductNo.String()
				}
				sku := strings.TrimSpace(cp.SellerManagementCode)
				if sku == "" {
					sku = origin
				}
				if sku == "" {
					continue
				}
				stock[sku] = cp.StockQuantity.Int()
				origins[sku] = origin
			}
		}

		if len(resp.Contents) == 0 || page >= resp.TotalPages {
			break
		}
	}

	a.mu.Lock()
	a.origins = origins
	a.mu.Unlock()
	return stock, nil
}

// PushInventory sets the stock quantity of each SKU's origin product.
// Auth, transient and cancellation errors abort the push.
func (a *NaverAdapter) PushInventory(ctx context.Context, quantities map[string]int) ([]integration.PushResult, error) {
	skus := make([]string, 0, len(quantities))
	for sku := range quantities {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	if a.missingOrigins(skus) {
		if _, err := a.FetchInventory(ctx); err != nil {
			return nil, err
		}
	}

	results := make([]integration.PushResult, 0, len(skus))
	for _, sku := range skus {
		res := integration.PushResult{ExternalSKU: sku, Quantity: quantities[sku]}

		a.mu.RLock()
		origin := a.origins[sku]
		a.mu.RUnlock()
		if origin == "" {
			res.Err = &integration.PermanentError{Op: "naver push inventory", Err: fmt.Errorf("no origin product for sku %q", sku)}
			results = append(results, res)
			continue
		}

		_, err := a.call(ctx, http.MethodPut, "/external/v2/products/origin-products/"+url.PathEscape(origin),
			NaverStockUpdateRequest{OriginProduct: NaverStockUpdate{StockQuantity: quantities[sku]}}, "naver push inventory")
		if err != nil {
			switch integration.Classify(err) {
			case integration.ErrorClassAuth, integration.ErrorClassTransient, integration.ErrorClassCancelled:
				return nil, err
			}
			res.Err = err
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *NaverAdapter) missingOrigins(skus []string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, sku := range skus {
		if _, ok := a.origins[sku]; !ok {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Helper Methods
// ---------------------------------------------------------------------------

// call sends an authenticated request; payload is JSON encoded when not nil
func (a *NaverAdapter) call(ctx context.Context, method, path string, payload any, op string) ([]byte, error) {
	var raw []byte
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("naver: failed to encode request: %w", err)
		}
	}
	return withTokenRetry(ctx, a.tokens, a.config.Marketplace, func(token string) ([]byte, error) {
		var body io.Reader
		if raw != nil {
			body = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("naver: failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if raw != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return execute(a.httpClient, req, op)
	})
}

// parseNaverTime parses the API's ISO-8601 timestamps, returning UTC
func parseNaverTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return parseLocalTime(value)
}

// Ensure NaverAdapter implements the ports
var (
	_ integration.MarketplaceAdapter = (*NaverAdapter)(nil)
	_ integration.TokenIssuer        = (*NaverAdapter)(nil)
)
