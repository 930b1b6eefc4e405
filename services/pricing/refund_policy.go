package pricing

import "time"

// RefundWindow is how long after purchase a student may self-serve a refund.
const RefundWindow = 5 * time.Minute

// RefundDecision is the outcome of evaluating a refund request.
type RefundDecision struct {
	Eligible         bool      `json:"eligible"`
	Deadline         time.Time `json:"deadline"`
	RefundableAmount int64     `json:"refundable_amount"`
	RefundCharge     int64     `json:"refund_charge"`
	PayoutAmount     int64     `json:"payout_amount"`
}

// RefundTerms is the slice of a purchase the policy needs.
type RefundTerms struct {
	PurchasedAt     time.Time
	RefundableUntil *time.Time
	Amount          int64
	TaxCharges      int64
}

// EvaluateRefund applies the fixed window (inclusive at the boundary) unless
// the purchase carries an explicit RefundableUntil. Tax is never refunded:
// the refundable base is the amount charged minus tax, i.e. the course price.
func EvaluateRefund(terms RefundTerms, now time.Time) RefundDecision {
	deadline := terms.PurchasedAt.Add(RefundWindow)
	if terms.RefundableUntil != nil && !terms.RefundableUntil.IsZero() {
		deadline = *terms.RefundableUntil
	}

	refundable := terms.Amount - terms.TaxCharges
	if refundable < 0 {
		refundable = 0
	}
	charge := ApplyRate(refundable, RefundChargeRateBps)

	return RefundDecision{
		Eligible:         !now.After(deadline),
		Deadline:         deadline,
		RefundableAmount: refundable,
		RefundCharge:     charge,
		PayoutAmount:     refundable - charge,
	}
}

// RetainedCharge is what the platform keeps when the gateway reports a
// refund of refunded out of a refundable base. It never goes negative.
func RetainedCharge(refundable, refunded int64) int64 {
	if refunded <= 0 {
		return ApplyRate(refundable, RefundChargeRateBps)
	}
	if refunded >= refundable {
		return 0
	}
	return refundable - refunded
}
