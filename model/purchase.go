package model

import "time"

type PurchaseStatus string

const (
	PurchaseStatusPurchased     PurchaseStatus = "purchased"
	PurchaseStatusRefunded      PurchaseStatus = "refunded"
	PurchaseStatusNonRefundable PurchaseStatus = "non-refundable"
)

// Purchase is one ledger row: a student's acquisition of one course.
// All money columns are minor units. The row carries a snapshot of the
// catalog at purchase time and is never re-priced afterwards.
//
// RefundCharges is non-nil only when Status is refunded.
// RefundPendingSince marks an in-flight gateway refund; while it is set no
// other refund attempt or lazy expiry may touch the row.
type Purchase struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	CourseID             uint           `gorm:"not null;index" json:"course_id"`
	CourseTitle          string         `gorm:"type:varchar(255);not null" json:"course_title"`
	InstructorID         uint           `gorm:"not null;index" json:"instructor_id"`
	PurchasedByID        uint           `gorm:"not null;index" json:"purchased_by_id"`
	UserRole             Role           `gorm:"type:varchar(20);not null" json:"user_role"`
	OrderID              string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"order_id"`
	PaymentID            *string        `gorm:"type:varchar(100);uniqueIndex" json:"payment_id,omitempty"`
	Currency             string         `gorm:"type:varchar(10);not null;default:'INR'" json:"currency"`
	Amount               int64          `gorm:"not null" json:"amount"`
	CoursePrice          int64          `gorm:"not null" json:"course_price"`
	TaxCharges           int64          `gorm:"not null" json:"tax_charges"`
	PlatformFee          int64          `gorm:"not null" json:"platform_fee"`
	RevenueForInstructor int64          `gorm:"not null" json:"revenue_for_instructor"`
	RevenueForAdmin      int64          `gorm:"not null" json:"revenue_for_admin"`
	RefundCharges        *int64         `json:"refund_charges,omitempty"`
	RefundID             *string        `gorm:"type:varchar(100)" json:"refund_id,omitempty"`
	Status               PurchaseStatus `gorm:"type:varchar(20);not null;default:'purchased';index" json:"status"`
	PurchasedAt          time.Time      `gorm:"not null;index" json:"purchased_at"`
	RefundableUntil      *time.Time     `json:"refundable_until,omitempty"`
	RefundPendingSince   *time.Time     `json:"refund_pending_since,omitempty"`
	RefundedAt           *time.Time     `json:"refunded_at,omitempty"`
	Source               string         `gorm:"type:varchar(20);not null;default:'checkout'" json:"source"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// TableName specifies the table name for Purchase
func (Purchase) TableName() string {
	return "purchases"
}

// IsTerminal is true for refunded and non-refundable rows
func (p *Purchase) IsTerminal() bool {
	return p.Status == PurchaseStatusRefunded || p.Status == PurchaseStatusNonRefundable
}

// GrantsAccess reports whether the purchase still entitles the student to the course
func (p *Purchase) GrantsAccess() bool {
	return p.Status == PurchaseStatusPurchased || p.Status == PurchaseStatusNonRefundable
}
