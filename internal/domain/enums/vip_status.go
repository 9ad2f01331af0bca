package enums

type VipStatus string

const (
	VipStatusActive  VipStatus = "active"
	VipStatusExpired VipStatus = "expired"
)
