package cron

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sahilchouksey/course-marketplace/model"
)

// ExpireStalePaymentOrders marks checkout intents that were never paid as expired.
// A late capture webhook still records the purchase from the order's notes.
func (m *CronManager) ExpireStalePaymentOrders(ctx context.Context) (int64, string, error) {
	cutoff := m.now().Add(-m.opts.OrderTTL)

	res := m.db.WithContext(ctx).Model(&model.PaymentOrder{}).
		Where("status = ? AND created_at < ?", model.PaymentOrderCreated, cutoff).
		Update("status", model.PaymentOrderExpired)
	if res.Error != nil {
		return 0, "", fmt.Errorf("failed to expire payment orders: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return 0, "No stale payment orders", nil
	}
	return res.RowsAffected, fmt.Sprintf("Expired %d payment orders older than %s", res.RowsAffected, m.opts.OrderTTL), nil
}

// PruneWebhookEvents deletes processed webhook deliveries past the retention window.
// Unprocessed rows are kept for investigation.
func (m *CronManager) PruneWebhookEvents(ctx context.Context) (int64, string, error) {
	cutoff := m.now().Add(-m.opts.WebhookRetention)

	res := m.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&model.WebhookEvent{})
	if res.Error != nil {
		return 0, "", fmt.Errorf("failed to prune webhook events: %w", res.Error)
	}
	return res.RowsAffected, fmt.Sprintf("Deleted %d webhook events", res.RowsAffected), nil
}

// ReportStuckRefunds logs refunds still waiting on the gateway. It never
// resolves them; only a gateway webhook may.
func (m *CronManager) ReportStuckRefunds(ctx context.Context) (int64, string, error) {
	stuck, err := m.refunds.PendingRefunds(ctx, m.opts.StuckRefundAfter)
	if err != nil {
		return 0, "", fmt.Errorf("failed to query pending refunds: %w", err)
	}

	for _, p := range stuck {
		m.log.Warn("[CRON] refund awaiting gateway confirmation",
			slog.Uint64("purchase_id", uint64(p.ID)),
			slog.String("order_id", p.OrderID),
			slog.Time("pending_since", *p.RefundPendingSince),
		)
	}
	return int64(len(stuck)), fmt.Sprintf("%d refunds pending longer than %s", len(stuck), m.opts.StuckRefundAfter), nil
}

// PruneReportExports removes revenue exports past their retention
func (m *CronManager) PruneReportExports(ctx context.Context) (int64, string, error) {
	objects, err := m.exports.ListFiles(ctx, m.opts.ExportPrefix)
	if err != nil {
		return 0, "", err
	}

	cutoff := m.now().Add(-m.opts.ExportRetention)
	var deleted, failed int64
	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := m.exports.DeleteFile(ctx, obj.Key); err != nil {
			m.log.Warn("[CRON] failed to delete export", slog.String("key", obj.Key), slog.Any("error", err))
			failed++
			continue
		}
		deleted++
	}
	return deleted, fmt.Sprintf("Deleted %d exports, failed %d", deleted, failed), nil
}
