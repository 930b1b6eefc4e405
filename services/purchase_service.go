package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services/events"
	"github.com/sahilchouksey/course-marketplace/services/pricing"
	"github.com/sahilchouksey/course-marketplace/services/razorpay"
	"github.com/sahilchouksey/course-marketplace/utils/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceCheckout = "checkout"
	SourceWebhook  = "webhook"
)

// PaymentConfig is the gateway account the workflow charges through
type PaymentConfig struct {
	KeyID     string
	KeySecret string
	Currency  string
}

// PurchaseService runs the purchase lifecycle: order creation, payment
// confirmation, refunds, and the student-facing reads over the ledger.
type PurchaseService struct {
	db      *gorm.DB
	ledger  *PurchaseLedger
	catalog Catalog
	gateway razorpay.Gateway
	events  events.Publisher
	cfg     PaymentConfig
	log     *slog.Logger
	now     func() time.Time
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(db *gorm.DB, catalog Catalog, gateway razorpay.Gateway, publisher events.Publisher, cfg PaymentConfig, log *slog.Logger) *PurchaseService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &PurchaseService{
		db:      db,
		ledger:  NewPurchaseLedger(db),
		catalog: catalog,
		gateway: gateway,
		events:  publisher,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (s *PurchaseService) SetClock(now func() time.Time) {
	s.now = now
}

// Ledger exposes the underlying ledger to sibling services
func (s *PurchaseService) Ledger() *PurchaseLedger {
	return s.ledger
}

type CreateOrderInput struct {
	CourseID uint
	Amount   int64
}

type OrderResult struct {
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	CourseID    uint   `json:"course_id"`
	CourseTitle string `json:"course_title"`
	KeyID       string `json:"key_id"`
}

type ConfirmInput struct {
	OrderID   string
	PaymentID string
	Signature string
	CourseID  uint
}

type PurchaseResult struct {
	Purchase        *model.Purchase `json:"purchase"`
	AlreadyRecorded bool            `json:"already_recorded"`
}

type RefundResult struct {
	Purchase       *model.Purchase `json:"purchase"`
	RefundID       string          `json:"refund_id"`
	RefundedAmount int64           `json:"refunded_amount"`
	RefundCharge   int64           `json:"refund_charge"`
}

// CreateOrder opens a gateway order for the course's server-side total. The
// client amount must match it exactly. No ledger row is written.
func (s *PurchaseService) CreateOrder(ctx context.Context, caller Identity, in CreateOrderInput) (*OrderResult, error) {
	if err := caller.require(model.RoleStudent); err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, newError(KindInvalidAmount, "amount must be a positive number of minor units", nil)
	}
	if in.CourseID == 0 {
		return nil, newError(KindInvalidRequest, "course id is required", nil)
	}

	course, err := s.catalog.GetCoursePrice(ctx, in.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.Published {
		return nil, newError(KindCourseNotFound, "course is not available for purchase", nil)
	}

	split, err := pricing.SplitPrice(course.Price)
	if err != nil {
		return nil, newError(KindInvalidPrice, "course has no valid price", err)
	}
	if in.Amount != split.TotalPayable {
		return nil, newError(KindInvalidAmount,
			fmt.Sprintf("amount %d does not match course total %d", in.Amount, split.TotalPayable), nil)
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	notes := map[string]string{
		"courseId":  strconv.FormatUint(uint64(course.CourseID), 10),
		"studentId": strconv.FormatUint(uint64(caller.UserID), 10),
	}

	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   split.TotalPayable,
		Currency: s.cfg.Currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		s.log.Error("gateway order creation failed",
			slog.Uint64("course_id", uint64(course.CourseID)),
			slog.Uint64("student_id", uint64(caller.UserID)),
			slog.Any("error", err),
		)
		return nil, newError(KindGatewayError, "could not create payment order", err)
	}

	intent := &model.PaymentOrder{
		OrderID:     order.ID,
		Receipt:     receipt,
		StudentID:   caller.UserID,
		CourseID:    course.CourseID,
		CoursePrice: split.CoursePrice,
		Amount:      split.TotalPayable,
		Currency:    s.cfg.Currency,
		Status:      model.PaymentOrderCreated,
		Notes:       datatypes.JSONMap{"courseId": notes["courseId"], "studentId": notes["studentId"]},
	}
	if err := s.db.WithContext(ctx).Create(intent).Error; err != nil {
		// The gateway order still exists and carries the notes, so a capture
		// webhook can attribute it even without this row.
		s.log.Error("failed to store payment order", slog.String("order_id", order.ID), slog.Any("error", err))
		return nil, newError(KindPersistenceError, "could not store payment order", err)
	}

	s.log.Info("payment order created",
		slog.String("order_id", order.ID),
		slog.Uint64("course_id", uint64(course.CourseID)),
		slog.Uint64("student_id", uint64(caller.UserID)),
		slog.Int64("amount", split.TotalPayable),
	)

	return &OrderResult{
		OrderID:     order.ID,
		Amount:      split.TotalPayable,
		Currency:    s.cfg.Currency,
		Receipt:     receipt,
		CourseID:    course.CourseID,
		CourseTitle: course.Title,
		KeyID:       s.cfg.KeyID,
	}, nil
}

// ConfirmPurchase records a checkout the gateway has signed. Repeating it for
// the same order returns the existing row with AlreadyRecorded set.
func (s *PurchaseService) ConfirmPurchase(ctx context.Context, caller Identity, in ConfirmInput) (*PurchaseResult, error) {
	if err := caller.require(model.RoleStudent); err != nil {
		return nil, err
	}
	if !razorpay.VerifyPaymentSignature(s.cfg.KeySecret, in.OrderID, in.PaymentID, in.Signature) {
		s.log.Warn("payment signature rejected",
			slog.String("order_id", in.OrderID),
			slog.Uint64("student_id", uint64(caller.UserID)),
		)
		return nil, newError(KindPaymentNotVerified, "payment signature is invalid", nil)
	}

	existing, err := s.ledger.FindByOrderID(ctx, in.OrderID)
	switch {
	case err == nil:
		if existing.PurchasedByID != caller.UserID {
			return nil, newError(KindUnauthorized, "order belongs to another student", nil)
		}
		metrics.PurchasesDeduplicated.WithLabelValues(SourceCheckout).Inc()
		return &PurchaseResult{Purchase: existing, AlreadyRecorded: true}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, newError(KindPersistenceError, "failed to look up order", err)
	}

	intent, err := s.findPaymentOrder(ctx, in.OrderID)
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to look up payment order", err)
	}

	courseID := in.CourseID
	if intent != nil {
		if intent.StudentID != caller.UserID {
			return nil, newError(KindUnauthorized, "order belongs to another student", nil)
		}
		if courseID != 0 && courseID != intent.CourseID {
			return nil, newError(KindPaymentNotVerified, "order was not created for this course", nil)
		}
		courseID = intent.CourseID
	}
	if courseID == 0 {
		return nil, newError(KindInvalidRequest, "course id is required", nil)
	}

	return s.recordPurchase(ctx, recordParams{
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		CourseID:  courseID,
		StudentID: caller.UserID,
		Intent:    intent,
		Source:    SourceCheckout,
	})
}

type recordParams struct {
	OrderID   string
	PaymentID string
	CourseID  uint
	StudentID uint
	Intent    *model.PaymentOrder
	Source    string
}

// recordPurchase snapshots the catalog and inserts the ledger row. The unique
// index on order_id decides races between checkout and webhook; the loser
// gets the winner's row back.
func (s *PurchaseService) recordPurchase(ctx context.Context, params recordParams) (*PurchaseResult, error) {
	course, err := s.catalog.GetCoursePrice(ctx, params.CourseID)
	if err != nil {
		return nil, err
	}

	price := course.Price
	if params.Intent != nil && params.Intent.CoursePrice > 0 {
		price = params.Intent.CoursePrice
	}
	split, err := pricing.SplitPrice(price)
	if err != nil {
		return nil, newError(KindInvalidPrice, "course has no valid price", err)
	}

	currency := s.cfg.Currency
	if params.Intent != nil && params.Intent.Currency != "" {
		currency = params.Intent.Currency
	}

	now := s.now()
	purchase := &model.Purchase{
		CourseID:             course.CourseID,
		CourseTitle:          course.Title,
		InstructorID:         course.InstructorID,
		PurchasedByID:        params.StudentID,
		UserRole:             model.RoleStudent,
		OrderID:              params.OrderID,
		Currency:             currency,
		Amount:               split.TotalPayable,
		CoursePrice:          split.CoursePrice,
		TaxCharges:           split.TaxCharges,
		PlatformFee:          split.PlatformFee,
		RevenueForInstructor: split.RevenueForInstructor,
		RevenueForAdmin:      split.RevenueForAdmin,
		Status:               model.PurchaseStatusPurchased,
		PurchasedAt:          now,
		Source:               params.Source,
	}
	if params.PaymentID != "" {
		paymentID := params.PaymentID
		purchase.PaymentID = &paymentID
	}

	stored, created, err := s.ledger.Record(ctx, purchase)
	if err != nil {
		s.log.Error("failed to record purchase", slog.String("order_id", params.OrderID), slog.Any("error", err))
		return nil, newError(KindPersistenceError, "failed to record purchase", err)
	}

	if !created {
		metrics.PurchasesDeduplicated.WithLabelValues(params.Source).Inc()
		s.log.Info("purchase already recorded",
			slog.String("order_id", params.OrderID),
			slog.String("source", params.Source),
			slog.Uint64("purchase_id", uint64(stored.ID)),
		)
		return &PurchaseResult{Purchase: stored, AlreadyRecorded: true}, nil
	}

	metrics.PurchasesRecorded.WithLabelValues(params.Source).Inc()
	s.markOrderPaid(ctx, params.OrderID, now)
	s.publish(ctx, events.PurchaseRecorded, stored)

	s.log.Info("purchase recorded",
		slog.Uint64("purchase_id", uint64(stored.ID)),
		slog.String("order_id", stored.OrderID),
		slog.String("source", params.Source),
		slog.Int64("amount", stored.Amount),
	)
	return &PurchaseResult{Purchase: stored}, nil
}

// RequestRefund refunds a purchase inside its refund window. Outside the
// window the purchase is marked non-refundable and RefundWindowExpired is
// returned with StateChanged set.
func (s *PurchaseService) RequestRefund(ctx context.Context, caller Identity, purchaseID uint) (*RefundResult, error) {
	if err := caller.require(model.RoleStudent); err != nil {
		return nil, err
	}

	purchase, err := s.ledger.FindByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, newError(KindPersistenceError, "failed to load purchase", err)
	}
	if purchase.PurchasedByID != caller.UserID {
		return nil, newError(KindUnauthorized, "purchase belongs to another student", nil)
	}

	if err := refundRejection(purchase); err != nil {
		return nil, err
	}

	now := s.now()
	decision := pricing.EvaluateRefund(pricing.RefundTerms{
		PurchasedAt:     purchase.PurchasedAt,
		RefundableUntil: purchase.RefundableUntil,
		Amount:          purchase.Amount,
		TaxCharges:      purchase.TaxCharges,
	}, now)

	if !decision.Eligible {
		return nil, s.expire(ctx, purchase)
	}

	claimed, err := s.ledger.ClaimRefund(ctx, purchase.ID, now)
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to claim refund", err)
	}
	if !claimed {
		metrics.Refunds.WithLabelValues("conflict").Inc()
		return nil, s.currentRejection(ctx, purchase.ID)
	}

	if purchase.PaymentID == nil || *purchase.PaymentID == "" {
		if releaseErr := s.ledger.ReleaseRefundClaim(ctx, purchase.ID); releaseErr != nil {
			s.log.Error("failed to release refund claim", slog.Uint64("purchase_id", uint64(purchase.ID)), slog.Any("error", releaseErr))
		}
		return nil, newError(KindRefundFailed, "purchase has no captured payment to refund", nil)
	}

	// The refund is not abandoned if the client goes away mid-call.
	refund, err := s.gateway.Refund(context.WithoutCancel(ctx), razorpay.RefundRequest{
		PaymentID: *purchase.PaymentID,
		Amount:    decision.PayoutAmount,
		Notes: map[string]string{
			"purchaseId": strconv.FormatUint(uint64(purchase.ID), 10),
			"orderId":    purchase.OrderID,
			"reason":     "student requested refund within window",
		},
	})
	if err != nil {
		return nil, s.refundFailed(ctx, purchase, err)
	}

	completed, err := s.ledger.CompleteRefund(ctx, purchase.ID, decision.RefundCharge, refund.ID, s.now())
	if err != nil {
		// Money has moved; the claim stays so the refund webhook can finish the row.
		s.log.Error("refund issued but ledger update failed",
			slog.Uint64("purchase_id", uint64(purchase.ID)),
			slog.String("refund_id", refund.ID),
			slog.Any("error", err),
		)
		return nil, newError(KindPersistenceError, "refund issued but could not be recorded", err)
	}

	updated, err := s.ledger.FindByID(ctx, purchase.ID)
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to reload purchase", err)
	}
	if completed {
		metrics.Refunds.WithLabelValues("refunded").Inc()
		s.publish(ctx, events.PurchaseRefunded, updated)
	}

	s.log.Info("purchase refunded",
		slog.Uint64("purchase_id", uint64(purchase.ID)),
		slog.String("refund_id", refund.ID),
		slog.Int64("refunded", decision.PayoutAmount),
		slog.Int64("charge", decision.RefundCharge),
	)

	return &RefundResult{
		Purchase:       updated,
		RefundID:       refund.ID,
		RefundedAmount: decision.PayoutAmount,
		RefundCharge:   decision.RefundCharge,
	}, nil
}

func (s *PurchaseService) expire(ctx context.Context, purchase *model.Purchase) error {
	changed, err := s.ledger.MarkNonRefundable(ctx, purchase.ID)
	if err != nil {
		return newError(KindPersistenceError, "failed to record expired refund window", err)
	}
	if !changed {
		return s.currentRejection(ctx, purchase.ID)
	}

	metrics.Refunds.WithLabelValues("window_expired").Inc()
	purchase.Status = model.PurchaseStatusNonRefundable
	s.publish(ctx, events.PurchaseNonRefundable, purchase)

	s.log.Info("refund window expired, purchase marked non-refundable",
		slog.Uint64("purchase_id", uint64(purchase.ID)),
		slog.Time("purchased_at", purchase.PurchasedAt),
	)
	return &ServiceError{
		Kind:         KindRefundWindowExpired,
		Message:      "refund window has expired; the purchase is now non-refundable",
		StateChanged: true,
	}
}

func (s *PurchaseService) refundFailed(ctx context.Context, purchase *model.Purchase, err error) error {
	if errors.Is(err, razorpay.ErrGatewayTimeout) {
		metrics.Refunds.WithLabelValues("pending").Inc()
		s.log.Error("refund outcome unknown, waiting for gateway webhook",
			slog.Uint64("purchase_id", uint64(purchase.ID)),
			slog.Any("error", err),
		)
		return newError(KindRefundFailed, "refund outcome is pending reconciliation with the payment gateway", err)
	}

	metrics.Refunds.WithLabelValues("failed").Inc()
	if releaseErr := s.ledger.ReleaseRefundClaim(ctx, purchase.ID); releaseErr != nil {
		s.log.Error("failed to release refund claim", slog.Uint64("purchase_id", uint64(purchase.ID)), slog.Any("error", releaseErr))
	}

	reason := err.Error()
	var gwErr *razorpay.GatewayError
	if errors.As(err, &gwErr) {
		reason = gwErr.Reason
	}
	s.log.Warn("gateway refund failed", slog.Uint64("purchase_id", uint64(purchase.ID)), slog.String("reason", reason))
	return newError(KindRefundFailed, "refund failed: "+reason, err)
}

// refundRejection returns the error for a purchase that cannot be refunded at all
func refundRejection(p *model.Purchase) error {
	switch {
	case p.Status == model.PurchaseStatusRefunded:
		return newError(KindAlreadyRefunded, "purchase has already been refunded", nil)
	case p.Status == model.PurchaseStatusNonRefundable:
		return newError(KindAlreadyRefunded, "purchase is non-refundable; the refund window has expired", nil)
	case p.RefundPendingSince != nil:
		return newError(KindAlreadyRefunded, "a refund for this purchase is already in progress", nil)
	}
	return nil
}

// currentRejection re-reads a purchase after losing a conditional update
func (s *PurchaseService) currentRejection(ctx context.Context, id uint) error {
	current, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return newError(KindPersistenceError, "failed to reload purchase", err)
	}
	if rejection := refundRejection(current); rejection != nil {
		return rejection
	}
	return newError(KindAlreadyRefunded, "purchase changed while the refund was being processed", nil)
}

// GetByOrderID returns the purchase for an order to its owner or an admin
func (s *PurchaseService) GetByOrderID(ctx context.Context, caller Identity, orderID string) (*model.Purchase, error) {
	if err := caller.require(model.RoleStudent, model.RoleAdmin); err != nil {
		return nil, err
	}

	purchase, err := s.ledger.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, newError(KindPersistenceError, "failed to load purchase", err)
	}
	if caller.Role == model.RoleStudent && purchase.PurchasedByID != caller.UserID {
		return nil, ErrPurchaseNotFound
	}
	return purchase, nil
}

// PurchaseHistory returns a page of the caller's purchases
func (s *PurchaseService) PurchaseHistory(ctx context.Context, caller Identity, page, limit int) ([]model.Purchase, int64, error) {
	if err := caller.require(model.RoleStudent); err != nil {
		return nil, 0, err
	}
	purchases, total, err := s.ledger.ListByStudent(ctx, caller.UserID, page, limit)
	if err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to load purchase history", err)
	}
	return purchases, total, nil
}

// HasAccess reports whether the caller holds the course
func (s *PurchaseService) HasAccess(ctx context.Context, caller Identity, courseID uint) (bool, error) {
	if err := caller.require(model.RoleStudent); err != nil {
		return false, err
	}
	ok, err := s.ledger.HasAccess(ctx, caller.UserID, courseID)
	if err != nil {
		return false, newError(KindPersistenceError, "failed to check course access", err)
	}
	return ok, nil
}

func (s *PurchaseService) findPaymentOrder(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	var intent model.PaymentOrder
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (s *PurchaseService) markOrderPaid(ctx context.Context, orderID string, at time.Time) {
	err := s.db.WithContext(ctx).Model(&model.PaymentOrder{}).
		Where("order_id = ? AND status <> ?", orderID, model.PaymentOrderPaid).
		Updates(map[string]interface{}{"status": model.PaymentOrderPaid, "paid_at": at}).Error
	if err != nil {
		s.log.Warn("failed to mark payment order paid", slog.String("order_id", orderID), slog.Any("error", err))
	}
}

func (s *PurchaseService) publish(ctx context.Context, t events.Type, p *model.Purchase) {
	if err := s.events.Publish(ctx, events.FromPurchase(t, p, s.now())); err != nil {
		s.log.Warn("failed to publish purchase event",
			slog.String("type", string(t)),
			slog.Uint64("purchase_id", uint64(p.ID)),
			slog.Any("error", err),
		)
	}
}
