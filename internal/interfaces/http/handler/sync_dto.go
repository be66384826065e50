package handler

import (
	"strings"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

// ===================== Sync runs =====================

// TriggerRunRequest is the optional body of a manual trigger
// @Description Manual sync trigger options
type TriggerRunRequest struct {
	Reconciliation bool `json:"reconciliation" example:"false"`
}

// TriggerRunResponse reports whether the trigger started a run
// @Description Result of a manual sync trigger
type TriggerRunResponse struct {
	Started        bool   `json:"started" example:"true"`
	RunID          string `json:"run_id,omitempty" example:"550e8400-e29b-41d4-a716-446655440000"`
	IdempotencyKey string `json:"idempotency_key,omitempty" example:"naver:orders:20260301T100000Z"`
	Reason         string `json:"reason,omitempty" example:"already running"`
}

// ListRunsQuery holds the run log filters
type ListRunsQuery struct {
	Marketplace string `form:"marketplace" binding:"omitempty,max=64"`
	Kind        string `form:"kind" binding:"omitempty,oneof=inventory orders"`
	Outcome     string `form:"outcome" binding:"omitempty,oneof=running succeeded partial failed"`
	OrderBy     string `form:"order_by" binding:"omitempty,oneof=started_at finished_at processed failed quarantined"`
	OrderDir    string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	dto.PageQuery
}

// RunReportResponse is the per-record tally of a run
type RunReportResponse struct {
	Processed   int                       `json:"processed" example:"120"`
	Succeeded   int                       `json:"succeeded" example:"115"`
	Unchanged   int                       `json:"unchanged" example:"3"`
	Skipped     int                       `json:"skipped" example:"0"`
	Quarantined int                       `json:"quarantined" example:"1"`
	Failed      int                       `json:"failed" example:"1"`
	Drifted     int                       `json:"drifted" example:"0"`
	Errors      []integration.RecordError `json:"errors,omitempty"`
}

// SyncRunResponse represents a sync run in API responses
// @Description One execution of a reconciler or synchronizer
type SyncRunResponse struct {
	ID                 string            `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Marketplace        string            `json:"marketplace" example:"naver"`
	Kind               string            `json:"kind" example:"orders" enums:"inventory,orders"`
	IdempotencyKey     string            `json:"idempotency_key"`
	Trigger            string            `json:"trigger" example:"schedule" enums:"schedule,manual,retry"`
	Attempt            int               `json:"attempt" example:"1"`
	Reconciliation     bool              `json:"reconciliation"`
	Outcome            string            `json:"outcome" example:"succeeded" enums:"running,succeeded,partial,failed"`
	StartWatermark     string            `json:"start_watermark,omitempty"`
	Watermark          string            `json:"watermark,omitempty"`
	ErrorClass         string            `json:"error_class,omitempty"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	NeedsAttention     bool              `json:"needs_attention"`
	ManualIntervention bool              `json:"manual_intervention"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         *time.Time        `json:"finished_at,omitempty"`
	DurationMs         int64             `json:"duration_ms,omitempty"`
	Report             RunReportResponse `json:"report"`
}

func toSyncRunResponse(run *integration.SyncRun) SyncRunResponse {
	resp := SyncRunResponse{
		ID:                 run.ID.String(),
		Marketplace:        run.Marketplace.String(),
		Kind:               run.Kind.String(),
		IdempotencyKey:     run.IdempotencyKey,
		Trigger:            string(run.Trigger),
		Attempt:            run.Attempt,
		Reconciliation:     run.Reconciliation,
		Outcome:            string(run.Outcome),
		StartWatermark:     run.StartWatermark.Cursor(),
		Watermark:          run.Watermark.Cursor(),
		ErrorClass:         string(run.ErrorClass),
		ErrorMessage:       run.ErrorMessage,
		NeedsAttention:     run.NeedsAttention,
		ManualIntervention: run.ManualIntervention,
		StartedAt:          run.StartedAt,
		FinishedAt:         run.FinishedAt,
		Report: RunReportResponse{
			Processed:   run.Report.Processed,
			Succeeded:   run.Report.Succeeded,
			Unchanged:   run.Report.Unchanged,
			Skipped:     run.Report.Skipped,
			Quarantined: run.Report.Quarantined,
			Failed:      run.Report.Failed,
			Drifted:     run.Report.Drifted,
			Errors:      run.Report.Errors,
		},
	}
	if run.FinishedAt != nil {
		resp.DurationMs = run.Duration().Milliseconds()
	}
	return resp
}

// ===================== Quarantine =====================

// ListQuarantineQuery holds the review queue filters
type ListQuarantineQuery struct {
	Marketplace string `form:"marketplace" binding:"omitempty,max=64"`
	Status      string `form:"status" binding:"omitempty,oneof=open resolved"`
	Reason      string `form:"reason" binding:"omitempty,oneof=UNMAPPED_STATUS MALFORMED_PAYLOAD TERMINAL_LINE_ITEM_CHANGE"`
	dto.PageQuery
}

// QuarantineResponse represents a quarantined record
// @Description A record held back for operator review
type QuarantineResponse struct {
	ID          string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Marketplace string     `json:"marketplace" example:"naver"`
	Kind        string     `json:"kind" example:"orders"`
	RunID       string     `json:"run_id"`
	ExternalRef string     `json:"external_ref" example:"2026030112345"`
	Reason      string     `json:"reason" example:"UNMAPPED_STATUS"`
	Detail      string     `json:"detail"`
	Archived    bool       `json:"archived"`
	Status      string     `json:"status" example:"open" enums:"open,resolved"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func toQuarantineResponse(record *integration.QuarantineRecord) QuarantineResponse {
	return QuarantineResponse{
		ID:          record.ID.String(),
		Marketplace: record.Marketplace.String(),
		Kind:        record.Kind.String(),
		RunID:       record.RunID.String(),
		ExternalRef: record.ExternalRef,
		Reason:      string(record.Reason),
		Detail:      record.Detail,
		Archived:    record.ArchiveKey != "",
		Status:      string(record.Status),
		ResolvedBy:  record.ResolvedBy,
		CreatedAt:   record.CreatedAt,
		ResolvedAt:  record.ResolvedAt,
	}
}

// ===================== Orders =====================

// ListOrdersQuery holds the order search filters. Status takes a comma separated list.
type ListOrdersQuery struct {
	Marketplace string `form:"marketplace" binding:"omitempty,max=64"`
	ShopCode    string `form:"shop_code" binding:"omitempty,max=64"`
	Status      string `form:"status"`
	Days        int    `form:"days" binding:"omitempty,min=1,max=365"`
	OrderBy     string `form:"order_by" binding:"omitempty,oneof=ordered_at updated_at total_amount status marketplace"`
	OrderDir    string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	dto.PageQuery
}

// Statuses splits and validates the status filter
func (q ListOrdersQuery) Statuses() ([]integration.CanonicalStatus, error) {
	if strings.TrimSpace(q.Status) == "" {
		return nil, nil
	}
	var statuses []integration.CanonicalStatus
	for _, part := range strings.Split(q.Status, ",") {
		status := integration.CanonicalStatus(strings.ToUpper(strings.TrimSpace(part)))
		if !status.IsValid() {
			return nil, integration.ErrInvalidStatus
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// LineItemResponse is one order line
type LineItemResponse struct {
	ExternalSKU string `json:"external_sku" example:"NV-1001"`
	ProductName string `json:"product_name" example:"무선 이어폰"`
	Quantity    int    `json:"quantity" example:"2"`
	UnitPrice   string `json:"unit_price" example:"29900"`
	Subtotal    string `json:"subtotal" example:"59800"`
}

// StatusTransitionResponse is one entry of the order history
type StatusTransitionResponse struct {
	From         string    `json:"from,omitempty"`
	To           string    `json:"to"`
	Source       string    `json:"source" enums:"internal,external-sync"`
	ExternalCode string    `json:"external_code,omitempty"`
	At           time.Time `json:"at"`
}

// OrderResponse represents a canonical order
// @Description Canonical order ingested from a marketplace
type OrderResponse struct {
	ID          string                     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Marketplace string                     `json:"marketplace" example:"naver"`
	BuyerRef    string                     `json:"buyer_ref"`
	ShopCode    string                     `json:"shop_code,omitempty"`
	Status      string                     `json:"status" example:"PAID"`
	Badge       integration.Badge          `json:"badge"`
	TotalAmount string                     `json:"total_amount" example:"59800"`
	OrderedAt   time.Time                  `json:"ordered_at"`
	Items       []LineItemResponse         `json:"items"`
	History     []StatusTransitionResponse `json:"history,omitempty"`
	Version     int                        `json:"version"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

func toOrderResponse(order *integration.Order, badges *integration.BadgeTable, withHistory bool) OrderResponse {
	resp := OrderResponse{
		ID:          order.ID.String(),
		Marketplace: order.Marketplace.String(),
		BuyerRef:    order.BuyerRef,
		ShopCode:    order.ShopCode,
		Status:      order.Status.String(),
		Badge:       badges.OrderBadge(order.Status),
		TotalAmount: order.TotalAmount.String(),
		OrderedAt:   order.OrderedAt,
		Items:       make([]LineItemResponse, 0, len(order.Items)),
		Version:     order.Version,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, LineItemResponse{
			ExternalSKU: item.ExternalSKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			Subtotal:    item.Subtotal().String(),
		})
	}
	if withHistory {
		for _, h := range order.History {
			resp.History = append(resp.History, StatusTransitionResponse{
				From:         string(h.From),
				To:           string(h.To),
				Source:       string(h.Source),
				ExternalCode: h.ExternalCode,
				At:           h.At,
			})
		}
	}
	return resp
}

// ===================== Stock =====================

// Stock mutation types
const (
	StockMutationSale   = "sale"
	StockMutationReturn = "return"
	StockMutationAdjust = "adjust"
)

// StockMutationRequest is a local stock change
// @Description Sale, return or manual adjustment of a SKU
type StockMutationRequest struct {
	Type     string `json:"type" binding:"required,oneof=sale return adjust" example:"sale"`
	Quantity *int   `json:"quantity" binding:"required,min=0" example:"2"`
}

// SKUStockResponse represents a SKU after a stock change
// @Description Internal SKU stock with its inventory badge
type SKUStockResponse struct {
	ID          string            `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Code        string            `json:"code" example:"SKU-1001"`
	ProductName string            `json:"product_name"`
	Quantity    int               `json:"quantity" example:"42"`
	SafetyStock int               `json:"safety_stock" example:"10"`
	Level       string            `json:"level" enums:"in_stock,low_stock,out_of_stock"`
	Badge       integration.Badge `json:"badge"`
	Version     int               `json:"version"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toSKUStockResponse(sku *integration.ListingSKU, badges *integration.BadgeTable) SKUStockResponse {
	return SKUStockResponse{
		ID:          sku.ID.String(),
		Code:        sku.Code,
		ProductName: sku.ProductName,
		Quantity:    sku.Quantity,
		SafetyStock: sku.SafetyStock,
		Level:       string(integration.ClassifyStock(sku.Quantity, sku.SafetyStock)),
		Badge:       badges.InventoryBadge(sku.Quantity, sku.SafetyStock),
		Version:     sku.Version,
		UpdatedAt:   sku.UpdatedAt,
	}
}

// ===================== Status mappings =====================

// StatusMappingResponse is one external code with its canonical status and badge
type StatusMappingResponse struct {
	Marketplace  string            `json:"marketplace" example:"naver"`
	ExternalCode string            `json:"external_code" example:"PAYED"`
	Canonical    string            `json:"canonical" example:"PAID"`
	Badge        integration.Badge `json:"badge"`
}
