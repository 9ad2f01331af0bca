package enums

type OrderType string

const (
	OrderTypeContact OrderType = "contact"
	OrderTypeVip     OrderType = "vip"
	OrderTypeAd      OrderType = "ad"
)
