package ecommerce

import "encoding/json"

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// NaverTokenResponse is the body returned by /external/v1/oauth2/token
type NaverTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// NaverErrorResponse is the error envelope of the commerce API
type NaverErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	TraceID   string `json:"traceId"`
	Timestamp string `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// NaverLastChangedResponse is one page of product order status changes
type NaverLastChangedResponse struct {
	Timestamp string `json:"timestamp"`
	TraceID   string `json:"traceId"`
	Data      struct {
		LastChangeStatuses []NaverLastChangeStatus `json:"lastChangeStatuses"`
		Count              int                     `json:"count"`
		More               *NaverMore              `json:"more"`
	} `json:"data"`
}

// NaverLastChangeStatus is one status change of a product order
type NaverLastChangeStatus struct {
	OrderID            string `json:"orderId"`
	ProductOrderID     string `json:"productOrderId"`
	LastChangedType    string `json:"lastChangedType"`
	LastChangedDate    string `json:"lastChangedDate"`
	PaymentDate        string `json:"paymentDate"`
	ProductOrderStatus string `json:"productOrderStatus"`
	ClaimType          string `json:"claimType"`
	ClaimStatus        string `json:"claimStatus"`
}

// NaverMore is present when the change window has further pages
type NaverMore struct {
	MoreFrom     string `json:"moreFrom"`
	MoreSequence string `json:"moreSequence"`
}

// NaverProductOrderQueryRequest is the body of product-orders/query
type NaverProductOrderQueryRequest struct {
	ProductOrderIDs []string `json:"productOrderIds"`
}

// NaverProductOrderQueryResponse carries product order details.
// Items are kept raw so a broken one does not hide the others.
type NaverProductOrderQueryResponse struct {
	Timestamp string            `json:"timestamp"`
	TraceID   string            `json:"traceId"`
	Data      []json.RawMessage `json:"data"`
}

// NaverProductOrderDetail is one product order with its parent order
type NaverProductOrderDetail struct {
	Order        NaverOrderInfo        `json:"order"`
	ProductOrder NaverProductOrderInfo `json:"productOrder"`
}

// NaverOrderInfo is the parent order part of a detail record
type NaverOrderInfo struct {
	OrderID     string `json:"orderId"`
	OrderDate   string `json:"orderDate"`
	PaymentDate string `json:"paymentDate"`
	OrdererID   string `json:"ordererId"`
	OrdererName string `json:"ordererName"`
}

// NaverProductOrderInfo is the product order part of a detail record
type NaverProductOrderInfo struct {
	ProductOrderID     string     `json:"productOrderId"`
	ProductOrderStatus string     `json:"productOrderStatus"`
	ProductID          flexString `json:"productId"`
	ProductName        string     `json:"productName"`
	ProductOption      string     `json:"productOption"`
	SellerProductCode  string     `json:"sellerProductCode"`
	OptionManageCode   string     `json:"optionManageCode"`
	Quantity           flexString `json:"quantity"`
	UnitPrice          flexString `json:"unitPrice"`
	TotalPaymentAmount flexString `json:"totalPaymentAmount"`
	PlaceOrderDate     string     `json:"placeOrderDate"`
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// NaverProductSearchRequest is the body of POST /external/v1/products/search
type NaverProductSearchRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// NaverProductSearchResponse is one page of origin products
type NaverProductSearchResponse struct {
	Contents      []NaverProductSearchItem `json:"contents"`
	Page          int                      `json:"page"`
	Size          int                      `json:"size"`
	TotalElements int                      `json:"totalElements"`
	TotalPages    int                      `json:"totalPages"`
}

// NaverProductSearchItem is an origin product with its channel products
type NaverProductSearchItem struct {
	OriginProductNo flexString            `json:"originProductNo"`
	ChannelProducts []NaverChannelProduct `json:"channelProducts"`
}

// NaverChannelProduct is a listing of an origin product on one channel
type NaverChannelProduct struct {
	OriginProductNo      flexString `json:"originProductNo"`
	ChannelProductNo     flexString `json:"channelProductNo"`
	Name                 string     `json:"name"`
	SellerManagementCode string     `json:"sellerManagementCode"`
	StatusType           string     `json:"statusType"`
	StockQuantity        flexString `json:"stockQuantity"`
}

// NaverStockUpdateRequest is the body of PUT /external/v2/products/origin-products/{no}
type NaverStockUpdateRequest struct {
	OriginProduct NaverStockUpdate `json:"originProduct"`
}

// NaverStockUpdate carries the new stock quantity
type NaverStockUpdate struct {
	StockQuantity int `json:"stockQuantity"`
}

// NaverStatusVocabulary lists every productOrderStatus the API emits
var NaverStatusVocabulary = []string{
	"PAYMENT_WAITING",
	"PAYED",
	"DELIVERING",
	"DELIVERED",
	"PURCHASE_DECIDED",
	"EXCHANGED",
	"CANCELED",
	"RETURNED",
	"CANCELED_BY_NOPAYMENT",
}
