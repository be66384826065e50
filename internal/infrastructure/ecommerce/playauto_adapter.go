package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/integration"
)

// PlayautoAdapter implements MarketplaceAdapter and TokenIssuer for the Playauto open API.
// Playauto aggregates several storefronts, so one adapter instance may see orders
// from many shops (shop_cd).
type PlayautoAdapter struct {
	config     *PlayautoConfig
	httpClient *http.Client
	tokens     integration.TokenSource
	now        func() time.Time
}

// NewPlayautoAdapter creates a new Playauto adapter with the given configuration
func NewPlayautoAdapter(config *PlayautoConfig, tokens integration.TokenSource) (*PlayautoAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &PlayautoAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		tokens: tokens,
		now:    time.Now,
	}, nil
}

// Marketplace returns the marketplace id this adapter serves
func (a *PlayautoAdapter) Marketplace() integration.MarketplaceID {
	return a.config.Marketplace
}

// Provider returns PLAYAUTO
func (a *PlayautoAdapter) Provider() integration.Provider {
	return integration.ProviderPlayauto
}

// StatusVocabulary returns every status Playauto can emit
func (a *PlayautoAdapter) StatusVocabulary() []string {
	out := make([]string, len(PlayautoStatusVocabulary))
	copy(out, PlayautoStatusVocabulary)
	return out
}

// ---------------------------------------------------------------------------
// Token exchange
// ---------------------------------------------------------------------------

// ExchangeToken logs in with the account credentials and returns a fresh token
func (a *PlayautoAdapter) ExchangeToken(ctx context.Context) (*integration.AccessToken, error) {
	raw, err := json.Marshal(PlayautoAuthRequest{Email: a.config.Email, Password: a.config.Password})
	if err != nil {
		return nil, fmt.Errorf("playauto: failed to encode auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.APIBaseURL+"/api/auth", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("playauto: failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", a.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := execute(a.httpClient, req, "playauto auth")
	if err != nil {
		var permanent *integration.PermanentError
		if errors.Is(err, errUnauthorized) || errors.As(err, &permanent) {
			return nil, &integration.AuthError{Marketplace: a.config.Marketplace, Err: err}
		}
		return nil, err
	}

	var resp PlayautoAuthResponse
	if err := decodeJSON(body, &resp, "playauto auth"); err != nil {
		return nil, err
	}
	token, ok := resp.First()
	if !ok {
		return nil, &integration.AuthError{
			Marketplace: a.config.Marketplace,
			Err:         errors.New("playauto: auth response carried no token"),
		}
	}

	now := a.now()
	return &integration.AccessToken{
		Marketplace: a.config.Marketplace,
		Value:       token.Token,
		IssuedAt:    now,
		ExpiresAt:   now.Add(a.config.TokenTTL),
	}, nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// FetchOrders returns an iterator over orders changed after query.Since.
// Playauto only filters by calendar day, so the whole window is read on the first
// Next call and re-paged in change order.
func (a *PlayautoAdapter) FetchOrders(_ context.Context, query integration.OrderQuery) (integration.OrderIterator, error) {
	since := query.Since.At
	if since.IsZero() {
		since = a.now().Add(-7 * 24 * time.Hour)
	}
	return &playautoOrderIterator{
		adapter: a,
		query:   query,
		sdate:   since.In(kst).Format("2006-01-02"),
		edate:   a.now().In(kst).Format("2006-01-02"),
	}, nil
}

type playautoOrderIterator struct {
	adapter *PlayautoAdapter
	query   integration.OrderQuery
	sdate   string
	edate   string

	loaded bool
	orders []integration.ExternalOrder
	offset int
}

// Next returns the next page of orders in position order
func (it *playautoOrderIterator) Next(ctx context.Context) (*integration.OrderPage, error) {
	if !it.loaded {
		orders, err := it.load(ctx)
		if err != nil {
			return nil, err
		}
		it.orders = orders
		it.loaded = true
	}
	if it.offset >= len(it.orders) {
		return nil, integration.ErrIteratorDone
	}
	end := it.offset + it.adapter.config.PageSize
	if end > len(it.orders) {
		end = len(it.orders)
	}
	page := &integration.OrderPage{Orders: it.orders[it.offset:end]}
	it.offset = end
	return page, nil
}

func (it *playautoOrderIterator) load(ctx context.Context) ([]integration.ExternalOrder, error) {
	a := it.adapter
	shops := it.query.ShopCodes
	if len(shops) == 0 {
		shops = []string{""}
	}

	latest := make(map[string]integration.ExternalOrder)
	var broken []integration.ExternalOrder

	for _, shop := range shops {
		for start := 0; ; start += a.config.PageSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			req := PlayautoOrdersRequest{
				Start:    start,
				Length:   a.config.PageSize,
				DateType: a.config.DateType,
				SDate:    it.sdate,
				EDate:    it.edate,
				OrderBy:  a.config.DateType + " asc",
				ShopCd:   shop,
				Status:   it.query.Statuses,
			}
			body, err := a.call(ctx, http.MethodPost, "/api/orders", req, "playauto fetch orders")
			if err != nil {
				return nil, err
			}
			var resp PlayautoOrdersResponse
			if err := decodeJSON(body, &resp, "playauto fetch orders"); err != nil {
				return nil, err
			}

			products := make(map[string][]PlayautoOrderProduct)
			for _, p := range resp.ResultsProd {
				products[p.Uniq.String()] = append(products[p.Uniq.String()], p)
			}
			for _, raw := range resp.Results {
				order := a.convertOrder(raw, products)
				if order.ExternalOrderID == "" {
					broken = append(broken, order)
					continue
				}
				if prev, ok := latest[order.ExternalOrderID]; ok && !order.Position().After(prev.Position()) {
					continue
				}
				latest[order.ExternalOrderID] = order
			}

			if len(resp.Results) < a.config.PageSize {
				break
			}
		}
	}

	orders := make([]integration.ExternalOrder, 0, len(latest)+len(broken))
	orders = append(orders, broken...)
	for _, o := range latest {
		if !it.query.Since.IsZero() && !o.Position().After(it.query.Since) {
			continue
		}
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[j].Position().After(orders[i].Position())
	})
	return orders, nil
}

// convertOrder maps a raw order row. Rows that do not decode come back with only
// RawPayload set so the synchronizer quarantines them.
func (a *PlayautoAdapter) convertOrder(raw json.RawMessage, products map[string][]PlayautoOrderProduct) integration.ExternalOrder {
	order := integration.ExternalOrder{
		Marketplace: a.config.Marketplace,
		RawPayload:  append([]byte(nil), raw...),
	}
	var row PlayautoOrder
	if err := json.Unmarshal(raw, &row); err != nil {
		return order
	}

	order.ExternalOrderID = row.Uniq.String()
	order.StatusCode = integration.NormalizeStatusCode(row.OrdStatus)
	order.ShopCode = row.ShopCd
	order.BuyerRef = row.OrderID
	if order.BuyerRef == "" {
		order.BuyerRef = row.OrderName
	}
	order.TotalAmount = row.PayAmt.Decimal()
	order.OrderedAt = parseLocalTime(row.OrdTime)
	if order.OrderedAt.IsZero() {
		order.OrderedAt = parseLocalTime(row.WDate)
	}
	for _, ts := range []string{row.WDate, row.OrdTime, row.PayTime, row.OrdConfirmTime, row.OutTime, row.ClaimTime, row.ClaimComTime} {
		if t := parseLocalTime(ts); t.After(order.ChangedAt) {
			order.ChangedAt = t
		}
	}

	for _, p := range products[order.ExternalOrderID] {
		name := p.ProdName
		if name == "" {
			name = p.OrdOptName
		}
		order.Items = append(order.Items, integration.LineItem{
			ExternalSKU: p.SkuCd,
			ProductName: name,
			Quantity:    p.OptSaleCnt.Int(),
			UnitPrice:   p.SalePrice.Decimal(),
		})
	}
	if len(order.Items) == 0 && (row.ShopSkuCd != "" || row.ShopSaleName != "") {
		quantity := row.SaleCnt.Int()
		unit := order.TotalAmount
		if quantity > 1 {
			unit = unit.DivRound(decimal.NewFromInt(int64(quantity)), 2)
		}
		order.Items = append(order.Items, integration.LineItem{
			ExternalSKU: row.ShopSkuCd,
			ProductName: row.ShopSaleName,
			Quantity:    quantity,
			UnitPrice:   unit,
		})
	}
	return order
}

// ---------------------------------------------------------------------------
// Inventory Operations
// ---------------------------------------------------------------------------

// FetchInventory returns the real stock count per SKU code
func (a *PlayautoAdapter) FetchInventory(ctx context.Context) (map[string]int, error) {
	stock := make(map[string]int)
	edate := a.now().In(kst).Format("2006-01-02")

	for start := 0; ; start += a.config.PageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req := PlayautoStockConditionRequest{
			Start:    start,
			Limit:    a.config.PageSize,
			DateType: "wdate",
			SDate:    "2020-01-01",
			EDate:    edate,
		}
		body, err := a.call(ctx, http.MethodPost, "/api/stock/condition", req, "playauto fetch inventory")
		if err != nil {
			return nil, err
		}
		var resp PlayautoStockConditionResponse
		if err := decodeJSON(body, &resp, "playauto fetch inventory"); err != nil {
			return nil, err
		}
		for _, item := range resp.Results {
			sku := strings.TrimSpace(item.SkuCd)
			if sku == "" {
				continue
			}
			stock[sku] = item.StockCntReal.Int()
		}

		total := resp.RecordsTotal.Int()
		if len(resp.Results) < a.config.PageSize || (total > 0 && start+len(resp.Results) >= total) {
			break
		}
	}
	return stock, nil
}

// PushInventory sets absolute stock counts, chunked per request.
// Auth, transient and cancellation errors abort the push; any other failure of a
// chunk is reported per item.
func (a *PlayautoAdapter) PushInventory(ctx context.Context, quantities map[string]int) ([]integration.PushResult, error) {
	skus := make([]string, 0, len(quantities))
	for sku := range quantities {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	results := make([]integration.PushResult, 0, len(skus))
	for start := 0; start < len(skus); start += a.config.PushChunkSize {
		end := start + a.config.PushChunkSize
		if end > len(skus) {
			end = len(skus)
		}
		chunk := skus[start:end]

		req := PlayautoStockEditRequest{Datas: make([]PlayautoStockEditItem, 0, len(chunk))}
		for _, sku := range chunk {
			req.Datas = append(req.Datas, PlayautoStockEditItem{SkuCd: sku, StockCnt: quantities[sku]})
		}

		body, err := a.call(ctx, http.MethodPut, "/api/stock/edit", req, "playauto push inventory")
		var resp PlayautoStockEditResponse
		if err == nil {
			err = decodeJSON(body, &resp, "playauto push inventory")
		}
		if err != nil {
			switch integration.Classify(err) {
			case integration.ErrorClassAuth, integration.ErrorClassTransient, integration.ErrorClassCancelled:
				return nil, err
			}
			for _, sku := range chunk {
				results = append(results, integration.PushResult{ExternalSKU: sku, Quantity: quantities[sku], Err: err})
			}
			continue
		}

		bySKU := make(map[string]PlayautoStockEditResult, len(resp.Results))
		for _, r := range resp.Results {
			bySKU[r.SkuCd] = r
		}
		for _, sku := range chunk {
			res := integration.PushResult{ExternalSKU: sku, Quantity: quantities[sku]}
			r, ok := bySKU[sku]
			switch {
			case !ok:
				res.Err = errors.New("playauto: no result for sku")
			case r.IsSuccess():
				res.Success = true
			default:
				res.Err = fmt.Errorf("playauto: stock edit rejected: %s", r.Msg)
			}
			results = append(results, res)
		}
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Helper Methods
// ---------------------------------------------------------------------------

// call sends an authenticated JSON request
func (a *PlayautoAdapter) call(ctx context.Context, method, path string, payload any, op string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("playauto: failed to encode request: %w", err)
	}
	return withTokenRetry(ctx, a.tokens, a.config.Marketplace, func(token string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL+path, bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("playauto: failed to create request: %w", err)
		}
		req.Header.Set("x-api-key", a.config.APIKey)
		req.Header.Set("Authorization", "Token "+token)
		req.Header.Set("Content-Type", "application/json")
		return execute(a.httpClient, req, op)
	})
}

// Ensure PlayautoAdapter implements the ports
var (
	_ integration.MarketplaceAdapter = (*PlayautoAdapter)(nil)
	_ integration.TokenIssuer        = (*PlayautoAdapter)(nil)
)
