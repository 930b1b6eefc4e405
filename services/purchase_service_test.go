package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services/events"
	"github.com/sahilchouksey/course-marketplace/services/razorpay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countPurchases(t *testing.T, f *fixture, orderID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Purchase{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)

	order, err := f.purchases.CreateOrder(context.Background(), student, CreateOrderInput{CourseID: course.ID, Amount: 1100})
	require.NoError(t, err)

	assert.Equal(t, int64(1100), order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "rzp_test_key", order.KeyID)
	assert.Regexp(t, `^rcpt_[0-9a-f]{32}$`, order.Receipt)

	require.Len(t, f.gateway.orders, 1)
	assert.Equal(t, int64(1100), f.gateway.orders[0].Amount)
	assert.Equal(t, "100", f.gateway.orders[0].Notes["studentId"])

	var intent model.PaymentOrder
	require.NoError(t, f.db.Where("order_id = ?", order.OrderID).First(&intent).Error)
	assert.Equal(t, student.UserID, intent.StudentID)
	assert.Equal(t, int64(1000), intent.CoursePrice)
	assert.Equal(t, model.PaymentOrderCreated, intent.Status)

	var ledgerRows int64
	require.NoError(t, f.db.Model(&model.Purchase{}).Count(&ledgerRows).Error)
	assert.Zero(t, ledgerRows, "creating an order must not write the ledger")
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	pending := &model.Course{InstructorID: instructor.UserID, Title: "Draft", Price: 500, Status: model.CourseStatusPending}
	require.NoError(t, f.db.Create(pending).Error)

	tests := []struct {
		name   string
		caller Identity
		input  CreateOrderInput
		kind   Kind
	}{
		{"zero amount", student, CreateOrderInput{CourseID: course.ID, Amount: 0}, KindInvalidAmount},
		{"negative amount", student, CreateOrderInput{CourseID: course.ID, Amount: -1100}, KindInvalidAmount},
		{"client price differs from catalog", student, CreateOrderInput{CourseID: course.ID, Amount: 1}, KindInvalidAmount},
		{"sticker price without tax", student, CreateOrderInput{CourseID: course.ID, Amount: 1000}, KindInvalidAmount},
		{"unknown course", student, CreateOrderInput{CourseID: 9999, Amount: 1100}, KindCourseNotFound},
		{"unpublished course", student, CreateOrderInput{CourseID: pending.ID, Amount: 550}, KindCourseNotFound},
		{"instructor cannot buy", instructor, CreateOrderInput{CourseID: course.ID, Amount: 1100}, KindUnauthorized},
		{"anonymous caller", Identity{}, CreateOrderInput{CourseID: course.ID, Amount: 1100}, KindUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.purchases.CreateOrder(context.Background(), tt.caller, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
	assert.Empty(t, f.gateway.orders)
}

func TestCreateOrder_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	f.gateway.orderErr = &razorpay.GatewayError{Op: "order.create", Reason: "bad key"}

	_, err := f.purchases.CreateOrder(context.Background(), student, CreateOrderInput{CourseID: course.ID, Amount: 1100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGateway))

	var intents int64
	require.NoError(t, f.db.Model(&model.PaymentOrder{}).Count(&intents).Error)
	assert.Zero(t, intents)
}

func TestConfirmPurchase_RecordsSplit(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)

	res := f.checkout(t, student, course, "pay_1")
	p := res.Purchase

	assert.False(t, res.AlreadyRecorded)
	assert.Equal(t, model.PurchaseStatusPurchased, p.Status)
	assert.Equal(t, int64(1100), p.Amount)
	assert.Equal(t, int64(100), p.TaxCharges)
	assert.Equal(t, int64(100), p.PlatformFee)
	assert.Equal(t, int64(800), p.RevenueForInstructor)
	assert.Equal(t, int64(200), p.RevenueForAdmin)
	assert.Equal(t, "Go Concurrency", p.CourseTitle)
	assert.Equal(t, instructor.UserID, p.InstructorID)
	assert.Equal(t, student.UserID, p.PurchasedByID)
	assert.Equal(t, model.RoleStudent, p.UserRole)
	assert.Equal(t, SourceCheckout, p.Source)
	assert.Nil(t, p.RefundCharges)
	assert.True(t, p.PurchasedAt.Equal(f.clock.Now()))

	var intent model.PaymentOrder
	require.NoError(t, f.db.Where("order_id = ?", p.OrderID).First(&intent).Error)
	assert.Equal(t, model.PaymentOrderPaid, intent.Status)

	assert.Equal(t, []events.Type{events.PurchaseRecorded}, f.publisher.types())
}

func TestConfirmPurchase_Idempotent(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	first := f.checkout(t, student, course, "pay_1")

	in := ConfirmInput{
		OrderID:   first.Purchase.OrderID,
		PaymentID: "pay_1",
		Signature: razorpay.Sign(testKeySecret, []byte(first.Purchase.OrderID+"|pay_1")),
		CourseID:  course.ID,
	}
	second, err := f.purchases.ConfirmPurchase(context.Background(), student, in)
	require.NoError(t, err)

	assert.True(t, second.AlreadyRecorded)
	assert.Equal(t, first.Purchase.ID, second.Purchase.ID)
	assert.Equal(t, int64(1), countPurchases(t, f, first.Purchase.OrderID))
	assert.Len(t, f.publisher.types(), 1)
}

func TestConfirmPurchase_ConcurrentConfirmsWriteOneRow(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	order, err := f.purchases.CreateOrder(context.Background(), student, CreateOrderInput{CourseID: course.ID, Amount: 1100})
	require.NoError(t, err)

	in := ConfirmInput{
		OrderID:   order.OrderID,
		PaymentID: "pay_race",
		Signature: razorpay.Sign(testKeySecret, []byte(order.OrderID+"|pay_race")),
		CourseID:  course.ID,
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*PurchaseResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.purchases.ConfirmPurchase(context.Background(), student, in)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if !results[i].AlreadyRecorded {
			created++
		}
		assert.Equal(t, results[0].Purchase.ID, results[i].Purchase.ID)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, int64(1), countPurchases(t, f, order.OrderID))
}

func TestConfirmPurchase_TamperedSignature(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	order, err := f.purchases.CreateOrder(context.Background(), student, CreateOrderInput{CourseID: course.ID, Amount: 1100})
	require.NoError(t, err)

	valid := razorpay.Sign(testKeySecret, []byte(order.OrderID+"|pay_1"))
	flipped := "a"
	if valid[0] == 'a' {
		flipped = "b"
	}
	signatures := map[string]string{
		"empty":         "",
		"wrong secret":  razorpay.Sign("other", []byte(order.OrderID+"|pay_1")),
		"other payment": razorpay.Sign(testKeySecret, []byte(order.OrderID+"|pay_2")),
		"flipped char":  flipped + valid[1:],
		"truncated":     valid[:len(valid)-2],
	}

	for name, sig := range signatures {
		t.Run(name, func(t *testing.T) {
			_, err := f.purchases.ConfirmPurchase(context.Background(), student, ConfirmInput{
				OrderID: order.OrderID, PaymentID: "pay_1", Signature: sig, CourseID: course.ID,
			})
			require.Error(t, err)
			assert.Equal(t, KindPaymentNotVerified, KindOf(err))
		})
	}
	assert.Zero(t, countPurchases(t, f, order.OrderID))
}

func TestConfirmPurchase_IntentMismatch(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	other := f.publishedCourse(t, instructor.UserID, "Rust Basics", 2000)
	order, err := f.purchases.CreateOrder(context.Background(), student, CreateOrderInput{CourseID: course.ID, Amount: 1100})
	require.NoError(t, err)
	sig := razorpay.Sign(testKeySecret, []byte(order.OrderID+"|pay_1"))

	_, err = f.purchases.ConfirmPurchase(context.Background(), otherStudent, ConfirmInput{
		OrderID: order.OrderID, PaymentID: "pay_1", Signature: sig, CourseID: course.ID,
	})
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = f.purchases.ConfirmPurchase(context.Background(), student, ConfirmInput{
		OrderID: order.OrderID, PaymentID: "pay_1", Signature: sig, CourseID: other.ID,
	})
	assert.Equal(t, KindPaymentNotVerified, KindOf(err))

	assert.Zero(t, countPurchases(t, f, order.OrderID))
}

func TestConfirmPurchase_PriceSnapshot(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	order, err := f.purchases.CreateOrder(context.Background(), student, CreateOrderInput{CourseID: course.ID, Amount: 1100})
	require.NoError(t, err)

	// Price changes between order creation and confirmation.
	newPrice := int64(5000)
	_, err = f.catalog.UpdateCourse(context.Background(), instructor, course.ID, CourseUpdate{Price: &newPrice})
	require.NoError(t, err)

	res, err := f.purchases.ConfirmPurchase(context.Background(), student, ConfirmInput{
		OrderID:   order.OrderID,
		PaymentID: "pay_1",
		Signature: razorpay.Sign(testKeySecret, []byte(order.OrderID+"|pay_1")),
		CourseID:  course.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Purchase.CoursePrice)
	assert.Equal(t, int64(1100), res.Purchase.Amount)

	// Later catalog edits never touch the stored row.
	renamed := "Advanced Go"
	_, err = f.catalog.UpdateCourse(context.Background(), instructor, course.ID, CourseUpdate{Title: &renamed})
	require.NoError(t, err)
	stored, err := f.purchases.Ledger().FindByID(context.Background(), res.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Concurrency", stored.CourseTitle)
	assert.Equal(t, int64(1100), stored.Amount)
}

func TestConfirmPurchase_CourseDeleted(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	order, err := f.purchases.CreateOrder(context.Background(), student, CreateOrderInput{CourseID: course.ID, Amount: 1100})
	require.NoError(t, err)
	require.NoError(t, f.db.Delete(&model.Course{}, course.ID).Error)

	_, err = f.purchases.ConfirmPurchase(context.Background(), student, ConfirmInput{
		OrderID:   order.OrderID,
		PaymentID: "pay_1",
		Signature: razorpay.Sign(testKeySecret, []byte(order.OrderID+"|pay_1")),
		CourseID:  course.ID,
	})
	assert.Equal(t, KindCourseNotFound, KindOf(err))
	assert.Zero(t, countPurchases(t, f, order.OrderID))
}

func TestRequestRefund_WithinWindow(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase

	f.clock.Advance(4 * time.Minute)
	res, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, model.PurchaseStatusRefunded, res.Purchase.Status)
	require.NotNil(t, res.Purchase.RefundCharges)
	assert.Equal(t, int64(100), *res.Purchase.RefundCharges)
	assert.Equal(t, int64(900), res.RefundedAmount)
	assert.Nil(t, res.Purchase.RefundPendingSince)
	require.NotNil(t, res.Purchase.RefundID)
	assert.Equal(t, res.RefundID, *res.Purchase.RefundID)

	require.Len(t, f.gateway.refunds, 1)
	assert.Equal(t, "pay_1", f.gateway.refunds[0].PaymentID)
	assert.Equal(t, int64(900), f.gateway.refunds[0].Amount)

	assert.Equal(t, []events.Type{events.PurchaseRecorded, events.PurchaseRefunded}, f.publisher.types())
}

func TestRequestRefund_WindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		ok      bool
	}{
		{"one second before deadline", 5*time.Minute - time.Second, true},
		{"exactly at deadline", 5 * time.Minute, true},
		{"one second after deadline", 5*time.Minute + time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
			purchase := f.checkout(t, student, course, "pay_1").Purchase

			f.clock.Advance(tt.elapsed)
			_, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)

			stored, findErr := f.purchases.Ledger().FindByID(context.Background(), purchase.ID)
			require.NoError(t, findErr)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, model.PurchaseStatusRefunded, stored.Status)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindRefundWindowExpired, KindOf(err))
			assert.Equal(t, model.PurchaseStatusNonRefundable, stored.Status)
			assert.Zero(t, f.gateway.refundCalls.Load())
		})
	}
}

func TestRequestRefund_ExpiredThenRetried(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase

	f.clock.Advance(10 * time.Minute)
	_, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.Error(t, err)

	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindRefundWindowExpired, se.Kind)
	assert.True(t, se.StateChanged)

	_, err = f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.Error(t, err)
	assert.Equal(t, KindAlreadyRefunded, KindOf(err))
	require.True(t, errors.As(err, &se))
	assert.False(t, se.StateChanged)

	assert.Zero(t, f.gateway.refundCalls.Load())
	assert.Contains(t, f.publisher.types(), events.PurchaseNonRefundable)

	access, err := f.purchases.HasAccess(context.Background(), student, course.ID)
	require.NoError(t, err)
	assert.True(t, access, "a non-refundable purchase keeps its access")
}

func TestRequestRefund_AlreadyRefunded(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase

	_, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.NoError(t, err)

	// Even after the window, a refunded purchase never becomes non-refundable.
	f.clock.Advance(time.Hour)
	_, err = f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	assert.Equal(t, KindAlreadyRefunded, KindOf(err))

	stored, err := f.purchases.Ledger().FindByID(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusRefunded, stored.Status)
	assert.Equal(t, int64(1), f.gateway.refundCalls.Load())
}

func TestRequestRefund_Ownership(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase

	_, err := f.purchases.RequestRefund(context.Background(), otherStudent, purchase.ID)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = f.purchases.RequestRefund(context.Background(), admin, purchase.ID)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = f.purchases.RequestRefund(context.Background(), student, 424242)
	assert.Equal(t, KindPurchaseNotFound, KindOf(err))

	assert.Zero(t, f.gateway.refundCalls.Load())
}

func TestRequestRefund_ConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase
	f.gateway.refundDelay = 50 * time.Millisecond

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.purchases.RequestRefund(context.Background(), student, purchase.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case KindOf(err) == KindAlreadyRefunded:
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(1), f.gateway.refundCalls.Load())

	stored, err := f.purchases.Ledger().FindByID(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusRefunded, stored.Status)
}

func TestRequestRefund_GatewayFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase
	f.gateway.refundErr = &razorpay.GatewayError{Op: "refund", Reason: "insufficient balance"}

	_, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.Error(t, err)
	assert.Equal(t, KindRefundFailed, KindOf(err))
	assert.Contains(t, err.Error(), "insufficient balance")

	stored, err := f.purchases.Ledger().FindByID(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusPurchased, stored.Status)
	assert.Nil(t, stored.RefundPendingSince)
	assert.Nil(t, stored.RefundCharges)

	// A retry after the gateway recovers goes through.
	f.gateway.refundErr = nil
	res, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusRefunded, res.Purchase.Status)
}

func TestRequestRefund_GatewayTimeoutAwaitsWebhook(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase
	f.gateway.refundErr = razorpay.ErrGatewayTimeout

	_, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.Error(t, err)
	assert.Equal(t, KindRefundFailed, KindOf(err))
	assert.Contains(t, err.Error(), "pending reconciliation")

	stored, err := f.purchases.Ledger().FindByID(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusPurchased, stored.Status)
	require.NotNil(t, stored.RefundPendingSince)

	// The claim blocks both another refund and lazy expiry.
	f.gateway.refundErr = nil
	_, err = f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	assert.Equal(t, KindAlreadyRefunded, KindOf(err))
	f.clock.Advance(time.Hour)
	_, err = f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	assert.Equal(t, KindAlreadyRefunded, KindOf(err))
	assert.Equal(t, int64(1), f.gateway.refundCalls.Load())

	pending, err := f.webhooks.PendingRefunds(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, purchase.ID, pending[0].ID)
}

func TestRequestRefund_TransportFailureKeepsClaim(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase
	// shape of a transport timeout surfaced by the gateway client
	f.gateway.refundErr = fmt.Errorf("%w: refund: Post \"https://api.razorpay.com/v1/payments/pay_1/refund\": Client.Timeout exceeded", razorpay.ErrGatewayTimeout)

	_, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
	require.Error(t, err)
	assert.Equal(t, KindRefundFailed, KindOf(err))
	assert.Contains(t, err.Error(), "pending reconciliation")

	stored, err := f.purchases.Ledger().FindByID(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.RefundPendingSince)
}

func TestRequestRefund_NoCapturedPaymentReleasesClaim(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	purchase := f.checkout(t, student, course, "pay_1").Purchase
	require.NoError(t, f.db.Model(&model.Purchase{}).Where("id = ?", purchase.ID).Update("payment_id", nil).Error)

	for i := 0; i < 2; i++ {
		_, err := f.purchases.RequestRefund(context.Background(), student, purchase.ID)
		require.Error(t, err)
		assert.Equal(t, KindRefundFailed, KindOf(err))
	}

	stored, err := f.purchases.Ledger().FindByID(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RefundPendingSince)
	assert.Equal(t, model.PurchaseStatusPurchased, stored.Status)
	assert.Zero(t, f.gateway.refundCalls.Load())
}

func TestPurchaseReads(t *testing.T) {
	f := newFixture(t)
	goCourse := f.publishedCourse(t, instructor.UserID, "Go Concurrency", 1000)
	rustCourse := f.publishedCourse(t, instructor.UserID, "Rust Basics", 2000)

	first := f.checkout(t, student, goCourse, "pay_1").Purchase
	f.clock.Advance(time.Minute)
	f.checkout(t, student, rustCourse, "pay_2")
	f.checkout(t, otherStudent, goCourse, "pay_3")

	history, total, err := f.purchases.PurchaseHistory(context.Background(), student, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, history, 2)
	assert.Equal(t, "Rust Basics", history[0].CourseTitle, "newest first")

	got, err := f.purchases.GetByOrderID(context.Background(), student, first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = f.purchases.GetByOrderID(context.Background(), otherStudent, first.OrderID)
	assert.Equal(t, KindPurchaseNotFound, KindOf(err))

	got, err = f.purchases.GetByOrderID(context.Background(), admin, first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	ok, err := f.purchases.HasAccess(context.Background(), student, rustCourse.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.purchases.RequestRefund(context.Background(), student, first.ID)
	require.NoError(t, err)
	ok, err = f.purchases.HasAccess(context.Background(), student, goCourse.ID)
	require.NoError(t, err)
	assert.False(t, ok, "refunded purchase no longer grants access")
}
