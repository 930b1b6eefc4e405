// Package events publishes purchase lifecycle notifications for downstream
// consumers such as enrollment, email and analytics. Publication is best
// effort: the ledger is the source of truth, not the event stream.
package events

import (
	"context"
	"time"

	"github.com/sahilchouksey/course-marketplace/model"
)

type Type string

const (
	PurchaseRecorded      Type = "purchase.recorded"
	PurchaseRefunded      Type = "purchase.refunded"
	PurchaseNonRefundable Type = "purchase.non_refundable"
)

type Event struct {
	Type          Type                 `json:"type"`
	PurchaseID    uint                 `json:"purchase_id"`
	OrderID       string               `json:"order_id"`
	CourseID      uint                 `json:"course_id"`
	StudentID     uint                 `json:"student_id"`
	InstructorID  uint                 `json:"instructor_id"`
	Amount        int64                `json:"amount"`
	RefundCharges int64                `json:"refund_charges,omitempty"`
	Status        model.PurchaseStatus `json:"status"`
	Source        string               `json:"source"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// FromPurchase builds an event of type t describing p
func FromPurchase(t Type, p *model.Purchase, at time.Time) Event {
	evt := Event{
		Type:         t,
		PurchaseID:   p.ID,
		OrderID:      p.OrderID,
		CourseID:     p.CourseID,
		StudentID:    p.PurchasedByID,
		InstructorID: p.InstructorID,
		Amount:       p.Amount,
		Status:       p.Status,
		Source:       p.Source,
		OccurredAt:   at.UTC(),
	}
	if p.RefundCharges != nil {
		evt.RefundCharges = *p.RefundCharges
	}
	return evt
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
