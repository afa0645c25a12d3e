package models

import (
	"time"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

const (
	PaymentMethodCOD    = "cash_on_delivery"
	PaymentMethodOnline = "online"
)

const (
	TxnStatusPending = "PENDING"
	TxnStatusSuccess = "SUCCESS"
	TxnStatusFailed  = "FAILED"
)

const (
	DiscountTypePercent = "percent"
	DiscountTypeFlat    = "flat"
)

type User struct {
	ID        string `gorm:"primaryKey;type:uuid"     json:"id"`
	Email     string `gorm:"unique;not null"          json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `gorm:"default:false"            json:"is_admin"`
}

type Address struct {
	ID           uint   `gorm:"primaryKey"            json:"id"`
	UserID       string `gorm:"index;not null"        json:"user_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `gorm:"not null"              json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	Country      string `json:"country"`
}

type ProductVariant struct {
	ID               uint    `gorm:"primaryKey"       json:"id"`
	SKU              string  `gorm:"unique;not null"  json:"sku"`
	Name             string  `gorm:"not null"         json:"name"`
	Size             string  `json:"size"`
	Price            float64 `gorm:"not null"         json:"price"`
	IsDiscountActive bool    `gorm:"default:false"    json:"is_discount_active"`
	DiscountPrice    float64 `json:"discount_price"`
}

type CartItem struct {
	ID               uint   `gorm:"primaryKey"                 json:"id"`
	UserID           string `gorm:"index;not null"             json:"user_id"`
	ProductVariantID uint   `gorm:"not null"                   json:"product_variant_id"`
	Quantity         uint   `gorm:"default:1;check:quantity>0" json:"quantity"`
}

type Coupon struct {
	ID                uint      `gorm:"primaryKey"       json:"id"`
	Code              string    `gorm:"unique;not null"  json:"code"`
	DiscountType      string    `gorm:"not null"         json:"discount_type"`
	DiscountValue     float64   `gorm:"not null"         json:"discount_value"`
	MaxDiscount       *float64  `json:"max_discount"`
	MinPurchaseAmount float64   `gorm:"default:0"        json:"min_purchase_amount"`
	ValidFrom         time.Time `gorm:"not null"         json:"valid_from"`
	ValidTo           time.Time `gorm:"not null"         json:"valid_to"`
	IsActive          bool      `gorm:"default:true"     json:"is_active"`
	UsageLimit        uint      `gorm:"default:1"        json:"usage_limit"`
	UsedCount         uint      `gorm:"default:0"        json:"used_count"`
}

// CouponUsage guarantees at most one redemption of a coupon per user via the
// composite unique index.
type CouponUsage struct {
	ID       uint      `gorm:"primaryKey"                           json:"id"`
	UserID   string    `gorm:"uniqueIndex:idx_user_coupon;not null" json:"user_id"`
	CouponID uint      `gorm:"uniqueIndex:idx_user_coupon;not null" json:"coupon_id"`
	OrderID  string    `json:"order_id"`
	UsedAt   time.Time `gorm:"autoCreateTime"                       json:"used_at"`
}

type Order struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string  `gorm:"index;not null"       json:"user_id"`
	AddressID      uint    `gorm:"not null"             json:"address_id"`
	TotalPrice     float64 `gorm:"not null"             json:"total_price"`
	DiscountAmount float64 `gorm:"default:0"            json:"discount_amount"`
	PaymentMethod  string  `gorm:"not null"             json:"payment_method"`
	Status         string  `gorm:"not null"             json:"status"`
	CouponID       *uint   `json:"coupon_id"`

	DeliveryPartner      string     `json:"delivery_partner,omitempty"`
	TrackingNumber       string     `json:"tracking_number,omitempty"`
	TrackingURL          string     `json:"tracking_url,omitempty"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time `json:"actual_delivery_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// OrderItem records the unit price actually charged at order time. It is never
// recalculated from live catalog prices.
type OrderItem struct {
	ID               uint    `gorm:"primaryKey"     json:"id"`
	OrderID          string  `gorm:"index;not null" json:"order_id"`
	ProductVariantID uint    `gorm:"not null"       json:"product_variant_id"`
	Quantity         uint    `gorm:"not null"       json:"quantity"`
	Price            float64 `gorm:"not null"       json:"price"`
}

// Transaction tracks one online payment attempt. MerchantOrderID is the sole
// correlation key shared with the gateway; rows are never deleted.
type Transaction struct {
	ID              uint    `gorm:"primaryKey"               json:"id"`
	OrderID         string  `gorm:"index;not null"           json:"order_id"`
	MerchantOrderID string  `gorm:"uniqueIndex;not null"     json:"merchant_order_id"`
	Amount          float64 `gorm:"not null"                 json:"amount"`
	Status          string  `gorm:"not null;default:PENDING" json:"status"`
	GatewayTxnID    string  `json:"gateway_txn_id"`
	ResponsePayload string  `gorm:"type:text"                json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Notification struct {
	ID        uint      `gorm:"primaryKey"     json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Title     string    `gorm:"not null"       json:"title"`
	Message   string    `gorm:"not null"       json:"message"`
	IsRead    bool      `gorm:"default:false"  json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
