package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one ordered product line
type LineItem struct {
	ExternalSKU string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal returns quantity times unit price
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ExternalOrder is an order snapshot as a marketplace reports it
type ExternalOrder struct {
	Marketplace     MarketplaceID
	ExternalOrderID string
	StatusCode      string
	BuyerRef        string
	ShopCode        string
	TotalAmount     decimal.Decimal
	OrderedAt       time.Time
	ChangedAt       time.Time
	Items           []LineItem
	RawPayload      []byte
}

// Position is the watermark just past this record
func (o *ExternalOrder) Position() Watermark {
	return Watermark{At: o.ChangedAt.UTC(), Key: o.ExternalOrderID}
}

// Validate rejects payloads the synchronizer cannot ingest
func (o *ExternalOrder) Validate() error {
	var problems []string
	if strings.TrimSpace(o.ExternalOrderID) == "" {
		problems = append(problems, "missing external order id")
	}
	if strings.TrimSpace(o.StatusCode) == "" {
		problems = append(problems, "missing status code")
	}
	if o.ChangedAt.IsZero() {
		problems = append(problems, "missing change timestamp")
	}
	for i, item := range o.Items {
		if item.Quantity < 0 {
			problems = append(problems, fmt.Sprintf("item %d has negative quantity", i))
		}
		if item.UnitPrice.IsNegative() {
			problems = append(problems, fmt.Sprintf("item %d has negative price", i))
		}
	}
	if len(problems) > 0 {
		return NewValidationError(QuarantineReasonMalformedPayload,
			fmt.Sprintf("order %q: %s", o.ExternalOrderID, strings.Join(problems, "; ")))
	}
	return nil
}

type checksumItem struct {
	SKU   string `json:"sku"`
	Name  string `json:"name"`
	Qty   int    `json:"qty"`
	Price string `json:"price"`
}

type checksumBody struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Buyer  string         `json:"buyer"`
	Shop   string         `json:"shop"`
	Total  string         `json:"total"`
	Items  []checksumItem `json:"items"`
}

// Checksum fingerprints the fields that matter for ingestion.
// Transport-level noise in RawPayload does not change it.
func (o *ExternalOrder) Checksum() string {
	body := checksumBody{
		ID:     o.ExternalOrderID,
		Status: o.StatusCode,
		Buyer:  o.BuyerRef,
		Shop:   o.ShopCode,
		Total:  o.TotalAmount.String(),
		Items:  make([]checksumItem, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		body.Items = append(body.Items, checksumItem{
			SKU: item.ExternalSKU, Name: item.ProductName, Qty: item.Quantity, Price: item.UnitPrice.String(),
		})
	}
	sort.Slice(body.Items, func(i, j int) bool {
		if body.Items[i].SKU != body.Items[j].SKU {
			return body.Items[i].SKU < body.Items[j].SKU
		}
		return body.Items[i].Name < body.Items[j].Name
	})
	raw, _ := json.Marshal(body)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// SameLineItems compares line items ignoring order
func SameLineItems(a, b []LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(l LineItem) string {
		return fmt.Sprintf("%s|%s|%d|%s", l.ExternalSKU, l.ProductName, l.Quantity, l.UnitPrice.String())
	}
	counts := make(map[string]int, len(a))
	for _, l := range a {
		counts[key(l)]++
	}
	for _, l := range b {
		k := key(l)
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}
