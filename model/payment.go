package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentOrderStatus string

const (
	PaymentOrderCreated PaymentOrderStatus = "created"
	PaymentOrderPaid    PaymentOrderStatus = "paid"
	PaymentOrderExpired PaymentOrderStatus = "expired"
)

// PaymentOrder is the checkout intent behind a gateway order. It is not a
// ledger row: it only remembers which student ordered which course, and at
// what price, so confirmation and webhooks can be matched back to it.
type PaymentOrder struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	OrderID     string             `gorm:"type:varchar(100);not null;uniqueIndex" json:"order_id"`
	Receipt     string             `gorm:"type:varchar(100);not null" json:"receipt"`
	StudentID   uint               `gorm:"not null;index" json:"student_id"`
	CourseID    uint               `gorm:"not null;index" json:"course_id"`
	CoursePrice int64              `gorm:"not null" json:"course_price"`
	Amount      int64              `gorm:"not null" json:"amount"`
	Currency    string             `gorm:"type:varchar(10);not null;default:'INR'" json:"currency"`
	Status      PaymentOrderStatus `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	Notes       datatypes.JSONMap  `json:"notes,omitempty"`
	PaidAt      *time.Time         `json:"paid_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TableName specifies the table name for PaymentOrder
func (PaymentOrder) TableName() string {
	return "payment_orders"
}
