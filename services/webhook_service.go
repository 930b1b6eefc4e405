package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahilchouksey/course-marketplace/database/dberrors"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services/events"
	"github.com/sahilchouksey/course-marketplace/services/pricing"
	"github.com/sahilchouksey/course-marketplace/services/razorpay"
	"github.com/sahilchouksey/course-marketplace/utils/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const webhookProvider = "razorpay"

// WebhookResult describes what a delivery did. Skipped deliveries are still
// acknowledged; Note says why nothing changed.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Applied   bool   `json:"applied"`
	Note      string `json:"note,omitempty"`
}

// WebhookService reconciles gateway callbacks with the ledger. It shares the
// ledger and recording path with PurchaseService so a capture webhook and a
// checkout confirmation for the same order produce exactly one row.
type WebhookService struct {
	db        *gorm.DB
	purchases *PurchaseService
	secret    string
	log       *slog.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(db *gorm.DB, purchases *PurchaseService, webhookSecret string, log *slog.Logger) *WebhookService {
	return &WebhookService{
		db:        db,
		purchases: purchases,
		secret:    webhookSecret,
		log:       log,
	}
}

// Reconcile verifies, deduplicates and applies one webhook delivery.
// eventID is the gateway's delivery id header and may be empty.
func (s *WebhookService) Reconcile(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	if !razorpay.VerifyWebhookSignature(s.secret, body, signature) {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		s.log.Warn("webhook signature rejected", slog.String("event_id", eventID))
		return nil, newError(KindPaymentNotVerified, "webhook signature is invalid", nil)
	}

	evt, err := razorpay.ParseWebhookEvent(body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return nil, newError(KindInvalidRequest, "webhook payload is malformed", err)
	}
	if eventID == "" {
		eventID = evt.DedupKey()
	}

	result := &WebhookResult{EventID: eventID, EventType: evt.Event}

	row, fresh, err := s.store(ctx, eventID, evt.Event, body)
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to store webhook event", err)
	}
	if !fresh && row.ProcessedAt != nil {
		metrics.WebhookEvents.WithLabelValues(evt.Event, "duplicate").Inc()
		s.log.Info("duplicate webhook delivery", slog.String("event_id", eventID), slog.String("event", evt.Event))
		result.Duplicate = true
		return result, nil
	}

	applied, note, err := s.dispatch(ctx, evt)
	if err != nil {
		// Left unprocessed so the gateway's retry runs it again.
		metrics.WebhookEvents.WithLabelValues(evt.Event, "error").Inc()
		s.finish(ctx, row, err.Error(), false)
		s.log.Error("webhook processing failed",
			slog.String("event_id", eventID),
			slog.String("event", evt.Event),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.finish(ctx, row, note, true)

	outcome := "applied"
	if !applied {
		outcome = "skipped"
	}
	metrics.WebhookEvents.WithLabelValues(evt.Event, outcome).Inc()
	s.log.Info("webhook processed",
		slog.String("event_id", eventID),
		slog.String("event", evt.Event),
		slog.String("outcome", outcome),
		slog.String("note", note),
	)

	result.Applied = applied
	result.Note = note
	return result, nil
}

// store inserts the delivery record. fresh is false when the event was seen before.
func (s *WebhookService) store(ctx context.Context, eventID, eventType string, body []byte) (*model.WebhookEvent, bool, error) {
	row := &model.WebhookEvent{
		Provider:  webhookProvider,
		EventID:   eventID,
		EventType: eventType,
		Payload:   datatypes.JSON(body),
	}
	err := s.db.WithContext(ctx).Create(row).Error
	if err == nil {
		return row, true, nil
	}
	if !dberrors.IsDuplicateKey(err) {
		return nil, false, err
	}

	var existing model.WebhookEvent
	err = s.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", webhookProvider, eventID).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *WebhookService) finish(ctx context.Context, row *model.WebhookEvent, note string, processed bool) {
	updates := map[string]interface{}{"processing_error": note}
	if processed {
		updates["processed_at"] = s.purchases.now()
	}
	if err := s.db.WithContext(ctx).Model(row).Updates(updates).Error; err != nil {
		s.log.Warn("failed to update webhook event", slog.Uint64("id", uint64(row.ID)), slog.Any("error", err))
	}
}

func (s *WebhookService) dispatch(ctx context.Context, evt *razorpay.WebhookEvent) (bool, string, error) {
	switch evt.Event {
	case razorpay.EventPaymentCaptured:
		return s.paymentCaptured(ctx, evt)
	case razorpay.EventPaymentRefunded:
		pay := evt.Payment()
		if pay == nil {
			return false, "payload has no payment entity", nil
		}
		refundID := ""
		if r := evt.Refund(); r != nil {
			refundID = r.ID
		}
		return s.refunded(ctx, pay.ID, pay.AmountRefunded, refundID)
	case razorpay.EventRefundProcessed:
		r := evt.Refund()
		if r == nil {
			return false, "payload has no refund entity", nil
		}
		return s.refunded(ctx, r.PaymentID, r.Amount, r.ID)
	case razorpay.EventRefundFailed:
		r := evt.Refund()
		if r == nil {
			return false, "payload has no refund entity", nil
		}
		return s.refundFailed(ctx, r)
	default:
		return false, "event type not handled", nil
	}
}

func (s *WebhookService) paymentCaptured(ctx context.Context, evt *razorpay.WebhookEvent) (bool, string, error) {
	pay := evt.Payment()
	if pay == nil || pay.OrderID == "" {
		return false, "payment is not linked to an order", nil
	}

	intent, err := s.purchases.findPaymentOrder(ctx, pay.OrderID)
	if err != nil {
		return false, "", newError(KindPersistenceError, "failed to look up payment order", err)
	}

	var courseID, studentID uint
	if intent != nil {
		courseID, studentID = intent.CourseID, intent.StudentID
	} else {
		var okCourse, okStudent bool
		courseID, okCourse = pay.Notes.Uint("courseId")
		studentID, okStudent = pay.Notes.Uint("studentId")
		if !okCourse || !okStudent {
			s.log.Warn("captured payment cannot be attributed",
				slog.String("order_id", pay.OrderID),
				slog.String("payment_id", pay.ID),
			)
			return false, "payment has no order intent and no course/student notes", nil
		}
	}

	res, err := s.purchases.recordPurchase(ctx, recordParams{
		OrderID:   pay.OrderID,
		PaymentID: pay.ID,
		CourseID:  courseID,
		StudentID: studentID,
		Intent:    intent,
		Source:    SourceWebhook,
	})
	if err != nil {
		switch KindOf(err) {
		case KindCourseNotFound, KindInvalidPrice:
			return false, err.Error(), nil
		}
		return false, "", err
	}
	if res.AlreadyRecorded {
		return false, "purchase already recorded", nil
	}
	return true, "", nil
}

// refunded applies a refund the gateway has issued, whoever initiated it.
func (s *WebhookService) refunded(ctx context.Context, paymentID string, amountRefunded int64, refundID string) (bool, string, error) {
	if paymentID == "" {
		return false, "refund is not linked to a payment", nil
	}

	purchase, err := s.purchases.ledger.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, "no purchase for payment " + paymentID, nil
		}
		return false, "", newError(KindPersistenceError, "failed to load purchase", err)
	}

	switch purchase.Status {
	case model.PurchaseStatusRefunded:
		return false, "purchase already refunded", nil
	case model.PurchaseStatusNonRefundable:
		s.log.Warn("gateway reported a refund for a non-refundable purchase",
			slog.Uint64("purchase_id", uint64(purchase.ID)),
			slog.String("payment_id", paymentID),
			slog.String("refund_id", refundID),
			slog.Int64("amount", amountRefunded),
		)
		return false, "refund reported for non-refundable purchase; status left unchanged", nil
	}

	charge := pricing.RetainedCharge(purchase.Amount-purchase.TaxCharges, amountRefunded)
	changed, err := s.purchases.ledger.MarkRefundedByPayment(ctx, paymentID, charge, refundID, s.purchases.now())
	if err != nil {
		return false, "", newError(KindPersistenceError, "failed to mark purchase refunded", err)
	}
	if !changed {
		return false, "purchase changed concurrently", nil
	}

	metrics.Refunds.WithLabelValues("refunded_by_webhook").Inc()
	if updated, err := s.purchases.ledger.FindByID(ctx, purchase.ID); err == nil {
		s.purchases.publish(ctx, events.PurchaseRefunded, updated)
	}
	return true, "", nil
}

func (s *WebhookService) refundFailed(ctx context.Context, r *razorpay.RefundEntity) (bool, string, error) {
	released, err := s.purchases.ledger.ReleaseRefundClaimByPayment(ctx, r.PaymentID)
	if err != nil {
		return false, "", newError(KindPersistenceError, "failed to release refund claim", err)
	}
	if !released {
		return false, fmt.Sprintf("no pending refund for payment %s", r.PaymentID), nil
	}
	metrics.Refunds.WithLabelValues("failed_by_webhook").Inc()
	return true, "", nil
}

// PendingRefunds lists purchases whose refund outcome is still unknown,
// oldest first. Used by operators to chase stuck refunds.
func (s *WebhookService) PendingRefunds(ctx context.Context, olderThan time.Duration) ([]model.Purchase, error) {
	cutoff := s.purchases.now().Add(-olderThan)
	var purchases []model.Purchase
	err := s.db.WithContext(ctx).
		Where("status = ? AND refund_pending_since IS NOT NULL AND refund_pending_since <= ?", model.PurchaseStatusPurchased, cutoff).
		Order("refund_pending_since ASC").
		Find(&purchases).Error
	return purchases, err
}
