package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"strconv"
	"time"

	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services/digitalocean"
	"gorm.io/gorm"
)

const (
	exportPrefix    = "exports/revenue"
	exportBatchSize = 500
	exportURLExpiry = 15 * time.Minute
)

// ReportUploader stores an export and hands back a temporary download link
type ReportUploader interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
	GetPresignedURL(key string, expiration time.Duration) (string, error)
}

type ExportResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}

var ledgerCSVHeader = []string{
	"purchase_id", "order_id", "payment_id", "course_id", "course_title", "instructor_id",
	"student_id", "status", "source", "currency", "amount", "course_price", "tax_charges",
	"platform_fee", "revenue_for_instructor", "revenue_for_admin", "refund_charges",
	"purchased_at", "refunded_at",
}

// ReportExporter writes the whole ledger as CSV to object storage
type ReportExporter struct {
	db       *gorm.DB
	uploader ReportUploader
	log      *slog.Logger
	now      func() time.Time
}

// NewReportExporter creates a new exporter. uploader may be nil, in which
// case exports report Unavailable.
func NewReportExporter(db *gorm.DB, uploader ReportUploader, log *slog.Logger) *ReportExporter {
	return &ReportExporter{db: db, uploader: uploader, log: log, now: time.Now}
}

// ExportLedger is the admin CSV export
func (e *ReportExporter) ExportLedger(ctx context.Context, caller Identity) (*ExportResult, error) {
	if err := caller.require(model.RoleAdmin); err != nil {
		return nil, err
	}
	if e.uploader == nil {
		return nil, newError(KindUnavailable, "report storage is not configured", nil)
	}

	data, rows, err := e.renderLedger(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	key := digitalocean.GenerateKey(exportPrefix, "ledger.csv", now)
	if _, err := e.uploader.UploadBytes(ctx, key, data, "text/csv"); err != nil {
		e.log.Error("failed to upload ledger export", slog.String("key", key), slog.Any("error", err))
		return nil, newError(KindUnavailable, "failed to store export", err)
	}

	url, err := e.uploader.GetPresignedURL(key, exportURLExpiry)
	if err != nil {
		return nil, newError(KindUnavailable, "failed to sign export url", err)
	}

	e.log.Info("ledger exported",
		slog.String("key", key),
		slog.Int("rows", rows),
		slog.Uint64("admin_id", uint64(caller.UserID)),
	)
	return &ExportResult{Key: key, URL: url, Rows: rows, ExpiresAt: now.Add(exportURLExpiry).UTC()}, nil
}

func (e *ReportExporter) renderLedger(ctx context.Context) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ledgerCSVHeader); err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to write export", err)
	}

	rows := 0
	var batch []model.Purchase
	err := e.db.WithContext(ctx).Model(&model.Purchase{}).Order("id ASC").
		FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := w.Write(ledgerCSVRecord(&batch[i])); err != nil {
					return err
				}
				rows++
			}
			return nil
		}).Error
	if err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to read ledger", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to write export", err)
	}
	return buf.Bytes(), rows, nil
}

func ledgerCSVRecord(p *model.Purchase) []string {
	paymentID := ""
	if p.PaymentID != nil {
		paymentID = *p.PaymentID
	}
	refundCharges := ""
	if p.RefundCharges != nil {
		refundCharges = strconv.FormatInt(*p.RefundCharges, 10)
	}
	refundedAt := ""
	if p.RefundedAt != nil {
		refundedAt = p.RefundedAt.UTC().Format(time.RFC3339)
	}

	return []string{
		strconv.FormatUint(uint64(p.ID), 10),
		p.OrderID,
		paymentID,
		strconv.FormatUint(uint64(p.CourseID), 10),
		p.CourseTitle,
		strconv.FormatUint(uint64(p.InstructorID), 10),
		strconv.FormatUint(uint64(p.PurchasedByID), 10),
		string(p.Status),
		p.Source,
		p.Currency,
		strconv.FormatInt(p.Amount, 10),
		strconv.FormatInt(p.CoursePrice, 10),
		strconv.FormatInt(p.TaxCharges, 10),
		strconv.FormatInt(p.PlatformFee, 10),
		strconv.FormatInt(p.RevenueForInstructor, 10),
		strconv.FormatInt(p.RevenueForAdmin, 10),
		refundCharges,
		p.PurchasedAt.UTC().Format(time.RFC3339),
		refundedAt,
	}
}
