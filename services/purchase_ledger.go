package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/course-marketplace/database/dberrors"
	"github.com/sahilchouksey/course-marketplace/model"
	"gorm.io/gorm"
)

// PurchaseLedger owns reads and writes of the purchases table. Every status
// change is a conditional UPDATE guarded by the expected current status, so
// concurrent callers cannot both win a transition.
type PurchaseLedger struct {
	db *gorm.DB
}

// NewPurchaseLedger creates a new purchase ledger
func NewPurchaseLedger(db *gorm.DB) *PurchaseLedger {
	return &PurchaseLedger{db: db}
}

// Record inserts p. If a row with the same order id (or payment id) already
// exists, the existing row is returned with created=false.
func (l *PurchaseLedger) Record(ctx context.Context, p *model.Purchase) (*model.Purchase, bool, error) {
	err := l.db.WithContext(ctx).Create(p).Error
	if err == nil {
		return p, true, nil
	}
	if !dberrors.IsDuplicateKey(err) {
		return nil, false, fmt.Errorf("insert purchase %s: %w", p.OrderID, err)
	}

	existing, findErr := l.FindByOrderID(ctx, p.OrderID)
	if errors.Is(findErr, gorm.ErrRecordNotFound) && p.PaymentID != nil {
		existing, findErr = l.FindByPaymentID(ctx, *p.PaymentID)
	}
	if findErr != nil {
		return nil, false, fmt.Errorf("load purchase after duplicate insert %s: %w", p.OrderID, findErr)
	}
	return existing, false, nil
}

func (l *PurchaseLedger) FindByID(ctx context.Context, id uint) (*model.Purchase, error) {
	var p model.Purchase
	if err := l.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *PurchaseLedger) FindByOrderID(ctx context.Context, orderID string) (*model.Purchase, error) {
	var p model.Purchase
	if err := l.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *PurchaseLedger) FindByPaymentID(ctx context.Context, paymentID string) (*model.Purchase, error) {
	var p model.Purchase
	if err := l.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByStudent returns one page of a student's purchases, newest first
func (l *PurchaseLedger) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Purchase, int64, error) {
	query := l.db.WithContext(ctx).Model(&model.Purchase{}).Where("purchased_by_id = ?", studentID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var purchases []model.Purchase
	err := query.Order("purchased_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&purchases).Error
	if err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}

// ListByCourse returns a page of a course's purchases in every status
func (l *PurchaseLedger) ListByCourse(ctx context.Context, courseID uint, page, limit int) ([]model.Purchase, int64, error) {
	query := l.db.WithContext(ctx).Model(&model.Purchase{}).Where("course_id = ?", courseID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	purchases := []model.Purchase{}
	err := query.Order("purchased_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&purchases).Error
	if err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}

// HasAccess reports whether the student holds a purchase of the course that was not refunded
func (l *PurchaseLedger) HasAccess(ctx context.Context, studentID, courseID uint) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("purchased_by_id = ? AND course_id = ? AND status IN ?", studentID, courseID,
			[]model.PurchaseStatus{model.PurchaseStatusPurchased, model.PurchaseStatusNonRefundable}).
		Count(&count).Error
	return count > 0, err
}

// ClaimRefund marks a purchased row as having a refund in flight. Only one
// caller can hold the claim; the others get false.
func (l *PurchaseLedger) ClaimRefund(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := l.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ? AND status = ? AND refund_pending_since IS NULL", id, model.PurchaseStatusPurchased).
		Update("refund_pending_since", now)
	return res.RowsAffected == 1, res.Error
}

// ReleaseRefundClaim drops an in-flight claim after a definitive gateway failure
func (l *PurchaseLedger) ReleaseRefundClaim(ctx context.Context, id uint) error {
	return l.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ? AND status = ?", id, model.PurchaseStatusPurchased).
		Update("refund_pending_since", nil).Error
}

// ReleaseRefundClaimByPayment is ReleaseRefundClaim keyed by gateway payment id
func (l *PurchaseLedger) ReleaseRefundClaimByPayment(ctx context.Context, paymentID string) (bool, error) {
	res := l.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("payment_id = ? AND status = ? AND refund_pending_since IS NOT NULL", paymentID, model.PurchaseStatusPurchased).
		Update("refund_pending_since", nil)
	return res.RowsAffected == 1, res.Error
}

// CompleteRefund moves a purchased row to refunded and records what was retained
func (l *PurchaseLedger) CompleteRefund(ctx context.Context, id uint, charge int64, refundID string, now time.Time) (bool, error) {
	res := l.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ? AND status = ?", id, model.PurchaseStatusPurchased).
		Updates(refundedColumns(charge, refundID, now))
	return res.RowsAffected == 1, res.Error
}

// MarkRefundedByPayment applies a gateway-reported refund. The refund window
// does not apply: the gateway is authoritative for refunds it has issued.
func (l *PurchaseLedger) MarkRefundedByPayment(ctx context.Context, paymentID string, charge int64, refundID string, now time.Time) (bool, error) {
	res := l.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("payment_id = ? AND status = ?", paymentID, model.PurchaseStatusPurchased).
		Updates(refundedColumns(charge, refundID, now))
	return res.RowsAffected == 1, res.Error
}

// MarkNonRefundable records a lapsed refund window. Rows with a refund in
// flight are left alone.
func (l *PurchaseLedger) MarkNonRefundable(ctx context.Context, id uint) (bool, error) {
	res := l.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ? AND status = ? AND refund_pending_since IS NULL", id, model.PurchaseStatusPurchased).
		Update("status", model.PurchaseStatusNonRefundable)
	return res.RowsAffected == 1, res.Error
}

func refundedColumns(charge int64, refundID string, now time.Time) map[string]interface{} {
	cols := map[string]interface{}{
		"status":               model.PurchaseStatusRefunded,
		"refund_charges":       charge,
		"refunded_at":          now,
		"refund_pending_since": nil,
	}
	if refundID != "" {
		cols["refund_id"] = refundID
	}
	return cols
}
