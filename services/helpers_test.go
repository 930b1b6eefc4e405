package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sahilchouksey/course-marketplace/database/dbtest"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services/events"
	"github.com/sahilchouksey/course-marketplace/services/pricing"
	"github.com/sahilchouksey/course-marketplace/services/razorpay"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testKeySecret     = "rzp_test_secret"
	testWebhookSecret = "whsec_test"
)

var (
	student      = Identity{UserID: 100, Role: model.RoleStudent}
	otherStudent = Identity{UserID: 101, Role: model.RoleStudent}
	instructor   = Identity{UserID: 200, Role: model.RoleInstructor}
	admin        = Identity{UserID: 300, Role: model.RoleAdmin}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clock is a settable time source
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeGateway records calls and hands out sequential ids
type fakeGateway struct {
	mu          sync.Mutex
	orders      []razorpay.OrderRequest
	refunds     []razorpay.RefundRequest
	orderSeq    int64
	refundSeq   int64
	refundCalls atomic.Int64
	orderErr    error
	refundErr   error
	refundDelay time.Duration
}

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.orderSeq++
	g.orders = append(g.orders, req)
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_test%d", g.orderSeq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, req razorpay.RefundRequest) (*razorpay.Refund, error) {
	g.refundCalls.Add(1)
	if g.refundDelay > 0 {
		time.Sleep(g.refundDelay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refundSeq++
	g.refunds = append(g.refunds, req)
	return &razorpay.Refund{
		ID:        fmt.Sprintf("rfnd_test%d", g.refundSeq),
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Status:    "processed",
	}, nil
}

// recordingPublisher keeps published events in memory
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	clock     *clock
	gateway   *fakeGateway
	publisher *recordingPublisher
	catalog   *CatalogService
	purchases *PurchaseService
	webhooks  *WebhookService
	revenue   *RevenueService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	clk := newClock(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{}
	pub := &recordingPublisher{}
	log := discardLogger()

	catalog := NewCatalogService(db, log)
	purchases := NewPurchaseService(db, catalog, gw, pub, PaymentConfig{
		KeyID:     "rzp_test_key",
		KeySecret: testKeySecret,
		Currency:  "INR",
	}, log)
	purchases.SetClock(clk.Now)

	revenue := NewRevenueService(db, nil, 0, log)
	revenue.now = clk.Now

	return &fixture{
		db:        db,
		clock:     clk,
		gateway:   gw,
		publisher: pub,
		catalog:   catalog,
		purchases: purchases,
		webhooks:  NewWebhookService(db, purchases, testWebhookSecret, log),
		revenue:   revenue,
	}
}

// publishedCourse inserts a published course owned by instructorID
func (f *fixture) publishedCourse(t *testing.T, instructorID uint, title string, price int64) *model.Course {
	t.Helper()
	course := &model.Course{
		InstructorID: instructorID,
		Title:        title,
		Description:  title + " description",
		Category:     "programming",
		Price:        price,
		Status:       model.CourseStatusPublished,
	}
	require.NoError(t, f.db.Create(course).Error)
	return course
}

// checkout runs CreateOrder and ConfirmPurchase with a valid signature
func (f *fixture) checkout(t *testing.T, caller Identity, course *model.Course, paymentID string) *PurchaseResult {
	t.Helper()
	split, err := pricing.SplitPrice(course.Price)
	require.NoError(t, err)
	order, err := f.purchases.CreateOrder(context.Background(), caller, CreateOrderInput{
		CourseID: course.ID,
		Amount:   split.TotalPayable,
	})
	require.NoError(t, err)

	res, err := f.purchases.ConfirmPurchase(context.Background(), caller, ConfirmInput{
		OrderID:   order.OrderID,
		PaymentID: paymentID,
		Signature: razorpay.Sign(testKeySecret, []byte(order.OrderID+"|"+paymentID)),
		CourseID:  course.ID,
	})
	require.NoError(t, err)
	return res
}
