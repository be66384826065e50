package ecommerce

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// PlayautoAuthRequest is the body of POST /api/auth
type PlayautoAuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PlayautoAuthToken is one entry of the auth response
type PlayautoAuthToken struct {
	Token string     `json:"token"`
	SolNo flexString `json:"sol_no"`
}

// PlayautoAuthResponse accepts both the array and the object form the API returns
type PlayautoAuthResponse struct {
	Tokens []PlayautoAuthToken
}

// UnmarshalJSON implements json.Unmarshaler
func (r *PlayautoAuthResponse) UnmarshalJSON(data []byte) error {
	var list []PlayautoAuthToken
	if err := json.Unmarshal(data, &list); err == nil {
		r.Tokens = list
		return nil
	}
	var single PlayautoAuthToken
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("playauto: unexpected auth response: %w", err)
	}
	r.Tokens = []PlayautoAuthToken{single}
	return nil
}

// First returns the first issued token, if any
func (r *PlayautoAuthResponse) First() (PlayautoAuthToken, bool) {
	for _, t := range r.Tokens {
		if t.Token != "" {
			return t, true
		}
	}
	return PlayautoAuthToken{}, false
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// PlayautoOrdersRequest is the body of POST /api/orders
type PlayautoOrdersRequest struct {
	Start      int      `json:"start"`
	Length     int      `json:"length"`
	DateType   string   `json:"date_type"`
	SDate      string   `json:"sdate"`
	EDate      string   `json:"edate"`
	SearchKey  string   `json:"search_key"`
	SearchWord string   `json:"search_word"`
	OrderBy    string   `json:"orderby"`
	ShopCd     string   `json:"shop_cd,omitempty"`
	Status     []string `json:"status,omitempty"`
}

// PlayautoOrdersResponse is one page of orders; products are joined on uniq
type PlayautoOrdersResponse struct {
	Results      []json.RawMessage      `json:"results"`
	ResultsProd  []PlayautoOrderProduct `json:"results_prod"`
	RecordsTotal flexString             `json:"recordsTotal"`
}

// PlayautoOrder is the subset of an order row the sync engine reads
type PlayautoOrder struct {
	Uniq           flexString `json:"uniq"`
	OrdStatus      string     `json:"ord_status"`
	ShopCd         string     `json:"shop_cd"`
	ShopName       string     `json:"shop_name"`
	ShopOrdNo      string     `json:"shop_ord_no"`
	ShopSkuCd      string     `json:"shop_sku_cd"`
	ShopSaleName   string     `json:"shop_sale_name"`
	SaleCnt        flexString `json:"sale_cnt"`
	OrderName      string     `json:"order_name"`
	OrderID        string     `json:"order_id"`
	PayAmt         flexString `json:"pay_amt"`
	WDate          string     `json:"wdate"`
	OrdTime        string     `json:"ord_time"`
	PayTime        string     `json:"pay_time"`
	OrdConfirmTime string     `json:"ord_confirm_time"`
	OutTime        string     `json:"out_time"`
	ClaimTime      string     `json:"claim_time"`
	ClaimComTime   string     `json:"claim_com_time"`
}

// PlayautoOrderProduct is one product line of an order
type PlayautoOrderProduct struct {
	Uniq       flexString `json:"uniq"`
	SkuCd      string     `json:"sku_cd"`
	ProdName   string     `json:"prod_name"`
	OrdOptName string     `json:"ord_opt_name"`
	OptSaleCnt flexString `json:"opt_sale_cnt"`
	SalePrice  flexString `json:"sale_price"`
}

// ---------------------------------------------------------------------------
// Stock
// ---------------------------------------------------------------------------

// PlayautoStockConditionRequest is the body of POST /api/stock/condition
type PlayautoStockConditionRequest struct {
	Start      int    `json:"start"`
	Limit      int    `json:"limit"`
	SearchKey  string `json:"search_key"`
	SearchWord string `json:"search_word"`
	DateType   string `json:"date_type"`
	SDate      string `json:"sdate"`
	EDate      string `json:"edate"`
}

// PlayautoStockConditionResponse is one page of stock rows
type PlayautoStockConditionResponse struct {
	Results      []PlayautoStockItem `json:"results"`
	RecordsTotal flexString          `json:"recordsTotal"`
}

// PlayautoStockItem is one SKU's stock as Playauto reports it
type PlayautoStockItem struct {
	SkuCd        string     `json:"sku_cd"`
	ProdName     string     `json:"prod_name"`
	StockCntReal flexString `json:"stock_cnt_real"`
	StockCntSafe flexString `json:"stock_cnt_safe"`
}

// PlayautoStockEditRequest is the body of PUT /api/stock/edit
type PlayautoStockEditRequest struct {
	Datas []PlayautoStockEditItem `json:"datas"`
}

// PlayautoStockEditItem sets one SKU's stock
type PlayautoStockEditItem struct {
	SkuCd    string `json:"sku_cd"`
	StockCnt int    `json:"stock_cnt"`
}

// PlayautoStockEditResponse carries one result per submitted SKU
type PlayautoStockEditResponse struct {
	Results []PlayautoStockEditResult `json:"results"`
}

// PlayautoStockEditResult is the outcome for one SKU
type PlayautoStockEditResult struct {
	SkuCd  string `json:"sku_cd"`
	Result string `json:"result"`
	Msg    string `json:"msg"`
}

// IsSuccess reports whether Playauto accepted the edit
func (r PlayautoStockEditResult) IsSuccess() bool {
	switch r.Result {
	case "success", "성공", "OK", "ok":
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Status vocabulary
// ---------------------------------------------------------------------------

// PlayautoStatusVocabulary lists every order status Playauto can emit
var PlayautoStatusVocabulary = []string{
	"신규주문", "결제완료", "입금완료", "입금전",
	"상품준비중", "배송대기", "배송보류", "배송중", "배송완료", "수취확인",
	"취소", "취소완료", "환불", "환불완료",
	"반품", "반품완료", "교환", "교환완료",
}
