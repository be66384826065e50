package integration

// BadgeTone is the colour family a dashboard badge is rendered with
type BadgeTone string

const (
	BadgeToneBlue   BadgeTone = "blue"
	BadgeToneYellow BadgeTone = "yellow"
	BadgeToneOrange BadgeTone = "orange"
	BadgeToneGreen  BadgeTone = "green"
	BadgeToneRed    BadgeTone = "red"
	BadgeTonePurple BadgeTone = "purple"
	BadgeToneGray   BadgeTone = "gray"
)

// Badge is the unified presentation of one status value
type Badge struct {
	Label string    `json:"label"`
	Tone  BadgeTone `json:"tone"`
}

// BadgeTable is the presentation status table shared with the dashboard
type BadgeTable struct {
	Order        map[CanonicalStatus]Badge `json:"order"`
	Warranty     map[string]Badge          `json:"warranty"`
	Inventory    map[StockLevel]Badge      `json:"inventory"`
	Channel      map[string]Badge          `json:"channel"`
	AfterService map[string]Badge          `json:"after_service"`
	Active       map[string]Badge          `json:"active"`
}

var defaultBadgeTable = BadgeTable{
	Order: map[CanonicalStatus]Badge{
		StatusPendingPayment:    {Label: "입금전", Tone: BadgeToneGray},
		StatusPaid:              {Label: "결제완료", Tone: BadgeToneBlue},
		StatusPreparing:         {Label: "상품준비", Tone: BadgeToneYellow},
		StatusOnHold:            {Label: "배송보류", Tone: BadgeToneYellow},
		StatusShipping:          {Label: "배송중", Tone: BadgeToneOrange},
		StatusDelivered:         {Label: "배송완료", Tone: BadgeToneGreen},
		StatusConfirmed:         {Label: "수취확인", Tone: BadgeToneGreen},
		StatusCancelRequested:   {Label: "취소", Tone: BadgeToneRed},
		StatusCancelled:         {Label: "취소", Tone: BadgeToneRed},
		StatusReturnRequested:   {Label: "반품", Tone: BadgeToneRed},
		StatusReturned:          {Label: "반품", Tone: BadgeToneRed},
		StatusExchangeRequested: {Label: "교환", Tone: BadgeTonePurple},
		StatusExchanged:         {Label: "교환완료", Tone: BadgeTonePurple},
		StatusRefundRequested:   {Label: "환불", Tone: BadgeToneRed},
		StatusRefunded:          {Label: "환불", Tone: BadgeToneRed},
	},
	Warranty: map[string]Badge{
		"pending":  {Label: "대기", Tone: BadgeToneGray},
		"approved": {Label: "승인", Tone: BadgeToneGreen},
		"rejected": {Label: "거절", Tone: BadgeToneRed},
		"expired":  {Label: "만료", Tone: BadgeToneYellow},
	},
	Inventory: map[StockLevel]Badge{
		StockLevelInStock:    {Label: "재고있음", Tone: BadgeToneGreen},
		StockLevelLowStock:   {Label: "재고부족", Tone: BadgeToneYellow},
		StockLevelOutOfStock: {Label: "품절", Tone: BadgeToneRed},
	},
	Channel: map[string]Badge{
		"cafe24":   {Label: "Cafe24", Tone: BadgeToneBlue},
		"naver":    {Label: "네이버", Tone: BadgeToneGreen},
		"coupang":  {Label: "쿠팡", Tone: BadgeToneOrange},
		"playauto": {Label: "플레이오토", Tone: BadgeTonePurple},
	},
	AfterService: map[string]Badge{
		"received":    {Label: "접수", Tone: BadgeToneBlue},
		"in_progress": {Label: "처리중", Tone: BadgeToneYellow},
		"completed":   {Label: "완료", Tone: BadgeToneGreen},
		"cancelled":   {Label: "취소", Tone: BadgeToneGray},
	},
	Active: map[string]Badge{
		"active":   {Label: "활성", Tone: BadgeToneGreen},
		"inactive": {Label: "비활성", Tone: BadgeToneGray},
	},
}

// DefaultBadgeTable returns the shared badge table. Callers must not mutate it.
func DefaultBadgeTable() *BadgeTable {
	return &defaultBadgeTable
}

// OrderBadge returns the badge for a canonical status, falling back to a gray badge
func (t *BadgeTable) OrderBadge(status CanonicalStatus) Badge {
	if b, ok := t.Order[status]; ok {
		return b
	}
	return Badge{Label: string(status), Tone: BadgeToneGray}
}

// InventoryBadge returns the badge for a quantity against its safety stock
func (t *BadgeTable) InventoryBadge(quantity, safetyStock int) Badge {
	return t.Inventory[ClassifyStock(quantity, safetyStock)]
}

// ExternalOrderBadge renders a raw marketplace status through the mapping table,
// so the dashboard never keeps its own copy of the vocabulary.
func (t *BadgeTable) ExternalOrderBadge(table *StatusMappingTable, marketplace MarketplaceID, code string) Badge {
	status, err := table.Resolve(marketplace, code)
	if err != nil {
		return Badge{Label: NormalizeStatusCode(code), Tone: BadgeToneGray}
	}
	return t.OrderBadge(status)
}
