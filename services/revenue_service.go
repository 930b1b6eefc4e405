package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/utils/cache"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Period is the bucket size of a revenue time series
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

const (
	defaultTopCourses   = 5
	adminSummaryTimeout = 30 * time.Second
)

// ParsePeriod accepts day, week, month or year. Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", newError(KindInvalidRequest, fmt.Sprintf("unknown period %q", s), nil)
	}
}

// bucketStart truncates t (in UTC) to the start of its period. Weeks start on Monday.
func (p Period) bucketStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodDay:
		return day
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func (p Period) label(start time.Time) string {
	switch p {
	case PeriodDay:
		return start.Format("2006-01-02")
	case PeriodWeek:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case PeriodYear:
		return start.Format("2006")
	default:
		return start.Format("2006-01")
	}
}

// ReportCache holds computed dashboard views between requests
type ReportCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type RevenueTotals struct {
	Purchases     int64 `json:"purchases"`
	Refunded      int64 `json:"refunded"`
	NonRefundable int64 `json:"non_refundable"`
	GrossRevenue  int64 `json:"gross_revenue"`
	RefundCharges int64 `json:"refund_charges"`
	NetRevenue    int64 `json:"net_revenue"`
}

type CourseRevenue struct {
	CourseID    uint   `json:"course_id"`
	CourseTitle string `json:"course_title"`
	RevenueTotals
}

type RevenueBucket struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	RevenueTotals
}

type InstructorRevenueReport struct {
	InstructorID uint            `json:"instructor_id"`
	Period       Period          `json:"period"`
	Totals       RevenueTotals   `json:"totals"`
	ByCourse     []CourseRevenue `json:"by_course"`
	Series       []RevenueBucket `json:"series"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

type TopCourse struct {
	CourseID     uint   `json:"course_id"`
	CourseTitle  string `json:"course_title"`
	InstructorID uint   `json:"instructor_id"`
	Purchases    int64  `json:"purchases"`
	Sales        int64  `json:"sales"`
}

// CoursePurchaseSummary splits a course's sales into kept and refunded purchases.
// Amounts are what students were charged, tax included.
type CoursePurchaseSummary struct {
	CourseID              uint   `json:"course_id"`
	CourseTitle           string `json:"course_title"`
	InstructorID          uint   `json:"instructor_id"`
	TotalPurchases        int64  `json:"total_purchases"`
	PurchasedCount        int64  `json:"purchased_count"`
	RefundedCount         int64  `json:"refunded_count"`
	PurchasedAmount       int64  `json:"purchased_amount"`
	RefundedAmount        int64  `json:"refunded_amount"`
	RefundChargesRetained int64  `json:"refund_charges_retained"`
}

type AdminRevenueSummary struct {
	TotalPurchases        int64       `json:"total_purchases"`
	RefundedPurchases     int64       `json:"refunded_purchases"`
	TotalSales            int64       `json:"total_sales"`
	InstructorEarnings    int64       `json:"instructor_earnings"`
	AdminRevenue          int64       `json:"admin_revenue"`
	TaxCollected          int64       `json:"tax_collected"`
	RefundChargesRetained int64       `json:"refund_charges_retained"`
	RefundedAmount        int64       `json:"refunded_amount"`
	PlatformEarnings      int64       `json:"platform_earnings"`
	TopCourses            []TopCourse `json:"top_courses"`
	GeneratedAt           time.Time   `json:"generated_at"`
}

// RevenueService answers the instructor and admin dashboards. It only ever
// reads the ledger and sees whatever is committed at query time.
type RevenueService struct {
	db       *gorm.DB
	ledger   *PurchaseLedger
	cache    ReportCache
	cacheTTL time.Duration
	group    singleflight.Group
	log      *slog.Logger
	now      func() time.Time
}

// NewRevenueService creates a new revenue service. reportCache may be nil.
func NewRevenueService(db *gorm.DB, reportCache ReportCache, cacheTTL time.Duration, log *slog.Logger) *RevenueService {
	return &RevenueService{
		db:       db,
		ledger:   NewPurchaseLedger(db),
		cache:    reportCache,
		cacheTTL: cacheTTL,
		log:      log,
		now:      time.Now,
	}
}

type totalsRow struct {
	CourseID      uint
	CourseTitle   string
	Purchases     int64
	Refunded      int64
	NonRefundable int64
	GrossRevenue  int64
	RefundCharges int64
}

func (r totalsRow) totals() RevenueTotals {
	return RevenueTotals{
		Purchases:     r.Purchases,
		Refunded:      r.Refunded,
		NonRefundable: r.NonRefundable,
		GrossRevenue:  r.GrossRevenue,
		RefundCharges: r.RefundCharges,
		NetRevenue:    r.GrossRevenue - r.RefundCharges,
	}
}

func instructorTotalsSelect() string {
	return `COUNT(*) AS purchases,
		COALESCE(SUM(CASE WHEN status = @refunded THEN 1 ELSE 0 END), 0) AS refunded,
		COALESCE(SUM(CASE WHEN status = @nonRefundable THEN 1 ELSE 0 END), 0) AS non_refundable,
		COALESCE(SUM(revenue_for_instructor), 0) AS gross_revenue,
		COALESCE(SUM(CASE WHEN status = @refunded THEN refund_charges ELSE 0 END), 0) AS refund_charges`
}

func statusArgs() map[string]interface{} {
	return map[string]interface{}{
		"refunded":      model.PurchaseStatusRefunded,
		"nonRefundable": model.PurchaseStatusNonRefundable,
	}
}

// InstructorRevenue reports the caller's earnings: Σ revenueForInstructor over
// their courses' purchases, less refund charges on refunded ones.
func (s *RevenueService) InstructorRevenue(ctx context.Context, caller Identity, periodParam string) (*InstructorRevenueReport, error) {
	if err := caller.require(model.RoleInstructor); err != nil {
		return nil, err
	}
	period, err := ParsePeriod(periodParam)
	if err != nil {
		return nil, err
	}

	scoped := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.Purchase{}).Where("instructor_id = ?", caller.UserID)
	}

	var totals totalsRow
	if err := scoped().Select(instructorTotalsSelect(), statusArgs()).Scan(&totals).Error; err != nil {
		return nil, newError(KindPersistenceError, "failed to aggregate revenue", err)
	}

	var courseRows []totalsRow
	err = scoped().
		Select("course_id, MAX(course_title) AS course_title, "+instructorTotalsSelect(), statusArgs()).
		Group("course_id").
		Order("gross_revenue DESC, course_id ASC").
		Scan(&courseRows).Error
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to aggregate revenue by course", err)
	}

	var entries []revenueEntry
	err = scoped().
		Select("purchased_at, status, revenue_for_instructor, refund_charges").
		Order("purchased_at ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to load revenue entries", err)
	}

	report := &InstructorRevenueReport{
		InstructorID: caller.UserID,
		Period:       period,
		Totals:       totals.totals(),
		ByCourse:     make([]CourseRevenue, 0, len(courseRows)),
		Series:       bucketRevenue(period, entries),
		GeneratedAt:  s.now().UTC(),
	}
	for _, row := range courseRows {
		report.ByCourse = append(report.ByCourse, CourseRevenue{
			CourseID:      row.CourseID,
			CourseTitle:   row.CourseTitle,
			RevenueTotals: row.totals(),
		})
	}
	return report, nil
}

type revenueEntry struct {
	PurchasedAt          time.Time
	Status               model.PurchaseStatus
	RevenueForInstructor int64
	RefundCharges        *int64
}

func bucketRevenue(period Period, entries []revenueEntry) []RevenueBucket {
	byStart := make(map[time.Time]*RevenueBucket)
	for _, e := range entries {
		start := period.bucketStart(e.PurchasedAt)
		b, ok := byStart[start]
		if !ok {
			b = &RevenueBucket{Label: period.label(start), Start: start}
			byStart[start] = b
		}
		b.Purchases++
		b.GrossRevenue += e.RevenueForInstructor
		switch e.Status {
		case model.PurchaseStatusRefunded:
			b.Refunded++
			if e.RefundCharges != nil {
				b.RefundCharges += *e.RefundCharges
			}
		case model.PurchaseStatusNonRefundable:
			b.NonRefundable++
		}
		b.NetRevenue = b.GrossRevenue - b.RefundCharges
	}

	series := make([]RevenueBucket, 0, len(byStart))
	for _, b := range byStart {
		series = append(series, *b)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Start.Before(series[j].Start) })
	return series
}

func adminSummaryKey(topN int) string {
	return fmt.Sprintf("revenue:admin:top:%d", topN)
}

// AdminSummary reports platform-wide totals and the best-selling courses.
// Results are cached for the configured TTL; concurrent misses share one query.
func (s *RevenueService) AdminSummary(ctx context.Context, caller Identity, topN int) (*AdminRevenueSummary, error) {
	if err := caller.require(model.RoleAdmin); err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = defaultTopCourses
	}
	if topN > 50 {
		topN = 50
	}

	key := adminSummaryKey(topN)
	if s.cache != nil {
		var cached AdminRevenueSummary
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			s.log.Warn("revenue cache read failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Shared by every waiter, so it must not die with the first caller.
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), adminSummaryTimeout)
		defer cancel()

		summary, err := s.computeAdminSummary(shared, topN)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && s.cacheTTL > 0 {
			if err := s.cache.SetJSON(shared, key, summary, s.cacheTTL); err != nil {
				s.log.Warn("revenue cache write failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AdminRevenueSummary), nil
}

func (s *RevenueService) computeAdminSummary(ctx context.Context, topN int) (*AdminRevenueSummary, error) {
	var row struct {
		TotalPurchases        int64
		RefundedPurchases     int64
		TotalSales            int64
		InstructorEarnings    int64
		AdminRevenue          int64
		TaxCollected          int64
		RefundChargesRetained int64
		RefundedAmount        int64
	}
	err := s.db.WithContext(ctx).Model(&model.Purchase{}).Select(`
		COALESCE(SUM(CASE WHEN status <> @refunded THEN 1 ELSE 0 END), 0) AS total_purchases,
		COALESCE(SUM(CASE WHEN status = @refunded THEN 1 ELSE 0 END), 0) AS refunded_purchases,
		COALESCE(SUM(CASE WHEN status <> @refunded THEN amount - tax_charges ELSE 0 END), 0) AS total_sales,
		COALESCE(SUM(CASE WHEN status <> @refunded THEN revenue_for_instructor ELSE 0 END), 0) AS instructor_earnings,
		COALESCE(SUM(CASE WHEN status <> @refunded THEN revenue_for_admin ELSE 0 END), 0) AS admin_revenue,
		COALESCE(SUM(tax_charges), 0) AS tax_collected,
		COALESCE(SUM(CASE WHEN status = @refunded THEN refund_charges ELSE 0 END), 0) AS refund_charges_retained,
		COALESCE(SUM(CASE WHEN status = @refunded THEN amount - tax_charges - COALESCE(refund_charges, 0) ELSE 0 END), 0) AS refunded_amount`,
		statusArgs()).
		Scan(&row).Error
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to aggregate platform revenue", err)
	}

	var top []TopCourse
	err = s.db.WithContext(ctx).Model(&model.Purchase{}).
		Select(`course_id, MAX(course_title) AS course_title, MAX(instructor_id) AS instructor_id,
			COUNT(*) AS purchases, COALESCE(SUM(amount - tax_charges), 0) AS sales`).
		Where("status <> ?", model.PurchaseStatusRefunded).
		Group("course_id").
		Order("purchases DESC, sales DESC, course_id ASC").
		Limit(topN).
		Scan(&top).Error
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to rank courses", err)
	}
	if top == nil {
		top = []TopCourse{}
	}

	return &AdminRevenueSummary{
		TotalPurchases:        row.TotalPurchases,
		RefundedPurchases:     row.RefundedPurchases,
		TotalSales:            row.TotalSales,
		InstructorEarnings:    row.InstructorEarnings,
		AdminRevenue:          row.AdminRevenue,
		TaxCollected:          row.TaxCollected,
		RefundChargesRetained: row.RefundChargesRetained,
		RefundedAmount:        row.RefundedAmount,
		PlatformEarnings:      row.AdminRevenue + row.RefundChargesRetained,
		TopCourses:            top,
		GeneratedAt:           s.now().UTC(),
	}, nil
}

// CourseSummary reports kept and refunded purchases for every course with
// at least one sale, busiest courses first.
func (s *RevenueService) CourseSummary(ctx context.Context, caller Identity, page, limit int) ([]CoursePurchaseSummary, int64, error) {
	if err := caller.require(model.RoleAdmin); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Purchase{}).Distinct("course_id").Count(&total).Error; err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to count courses", err)
	}

	rows := []CoursePurchaseSummary{}
	err := s.db.WithContext(ctx).Model(&model.Purchase{}).
		Select(`course_id, MAX(course_title) AS course_title, MAX(instructor_id) AS instructor_id,
			COUNT(*) AS total_purchases,
			COALESCE(SUM(CASE WHEN status <> @refunded THEN 1 ELSE 0 END), 0) AS purchased_count,
			COALESCE(SUM(CASE WHEN status = @refunded THEN 1 ELSE 0 END), 0) AS refunded_count,
			COALESCE(SUM(CASE WHEN status <> @refunded THEN amount ELSE 0 END), 0) AS purchased_amount,
			COALESCE(SUM(CASE WHEN status = @refunded THEN amount ELSE 0 END), 0) AS refunded_amount,
			COALESCE(SUM(CASE WHEN status = @refunded THEN refund_charges ELSE 0 END), 0) AS refund_charges_retained`,
			statusArgs()).
		Group("course_id").
		Order("total_purchases DESC, course_id ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to summarise purchases by course", err)
	}
	return rows, total, nil
}

// PurchasesByCourse lists every ledger row of a course, newest first
func (s *RevenueService) PurchasesByCourse(ctx context.Context, caller Identity, courseID uint, page, limit int) ([]model.Purchase, int64, error) {
	if err := caller.require(model.RoleAdmin); err != nil {
		return nil, 0, err
	}

	purchases, total, err := s.ledger.ListByCourse(ctx, courseID, page, limit)
	if err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to load course purchases", err)
	}
	if total > 0 {
		return purchases, total, nil
	}

	// Deleted courses keep their sales history.
	var courses int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&model.Course{}).Where("id = ?", courseID).Count(&courses).Error; err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to look up course", err)
	}
	if courses == 0 {
		return nil, 0, ErrCourseNotFound
	}
	return []model.Purchase{}, 0, nil
}
