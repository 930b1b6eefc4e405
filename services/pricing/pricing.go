// Package pricing holds the marketplace money rules: how a course price is
// split between tax, platform and instructor, and what a refund is worth.
// All amounts are integer minor units; rates are basis points.
package pricing

import "errors"

const (
	// TaxRateBps is added on top of the sticker price.
	TaxRateBps int64 = 1000
	// PlatformFeeRateBps is withheld from the course price.
	PlatformFeeRateBps int64 = 1000
	// RefundChargeRateBps is retained from the refundable base on refund.
	RefundChargeRateBps int64 = 1000

	bpsDenominator int64 = 10000
)

var ErrInvalidPrice = errors.New("course price must be positive")

// Split is the allocation of one course price.
type Split struct {
	CoursePrice          int64 `json:"course_price"`
	TaxCharges           int64 `json:"tax_charges"`
	PlatformFee          int64 `json:"platform_fee"`
	RevenueForInstructor int64 `json:"revenue_for_instructor"`
	RevenueForAdmin      int64 `json:"revenue_for_admin"`
	TotalPayable         int64 `json:"total_payable"`
}

// ApplyRate returns amount*bps/10000 rounded half-up to the nearest minor unit.
// Negative amounts round symmetrically.
func ApplyRate(amount, bps int64) int64 {
	if amount < 0 {
		return -ApplyRate(-amount, bps)
	}
	return (amount*bps + bpsDenominator/2) / bpsDenominator
}

// SplitPrice computes the revenue split for a course price. The instructor
// share absorbs rounding residue so instructor + admin == price exactly.
func SplitPrice(price int64) (Split, error) {
	if price <= 0 {
		return Split{}, ErrInvalidPrice
	}

	tax := ApplyRate(price, TaxRateBps)
	fee := ApplyRate(price, PlatformFeeRateBps)

	return Split{
		CoursePrice:          price,
		TaxCharges:           tax,
		PlatformFee:          fee,
		RevenueForInstructor: price - tax - fee,
		RevenueForAdmin:      tax + fee,
		TotalPayable:         price + tax,
	}, nil
}
