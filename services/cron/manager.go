package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services/digitalocean"
	"gorm.io/gorm"
)

// RefundMonitor finds refunds whose gateway outcome never arrived
type RefundMonitor interface {
	PendingRefunds(ctx context.Context, olderThan time.Duration) ([]model.Purchase, error)
}

// ExportStore is the object storage holding revenue exports
type ExportStore interface {
	ListFiles(ctx context.Context, prefix string) ([]digitalocean.ObjectInfo, error)
	DeleteFile(ctx context.Context, key string) error
}

// Options tunes the housekeeping windows
type Options struct {
	OrderTTL         time.Duration
	WebhookRetention time.Duration
	StuckRefundAfter time.Duration
	ExportRetention  time.Duration
	ExportPrefix     string
}

func DefaultOptions() Options {
	return Options{
		OrderTTL:         24 * time.Hour,
		WebhookRetention: 90 * 24 * time.Hour,
		StuckRefundAfter: 30 * time.Minute,
		ExportRetention:  7 * 24 * time.Hour,
		ExportPrefix:     "exports/revenue",
	}
}

// CronManager manages all scheduled cron jobs. No job changes purchase
// status; expiry of the refund window is recorded lazily by refund requests.
type CronManager struct {
	cron    *cron.Cron
	db      *gorm.DB
	refunds RefundMonitor
	exports ExportStore
	opts    Options
	log     *slog.Logger
	now     func() time.Time
}

// NewCronManager creates a new cron manager. refunds and exports may be nil.
func NewCronManager(db *gorm.DB, refunds RefundMonitor, exports ExportStore, opts Options, log *slog.Logger) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:    c,
		db:      db,
		refunds: refunds,
		exports: exports,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	m.log.Info("starting cron jobs")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	m.log.Info("cron jobs started", slog.Int("jobs", len(m.cron.Entries())))
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (m *CronManager) Stop() {
	m.log.Info("stopping cron jobs")
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info("cron jobs stopped")
}

type job struct {
	name     string
	schedule string
	timeout  time.Duration
	run      func(ctx context.Context) (int64, string, error)
}

func (m *CronManager) jobs() []job {
	jobs := []job{
		// Every 30 minutes
		{name: "expire_payment_orders", schedule: "0 */30 * * * *", timeout: 5 * time.Minute, run: m.ExpireStalePaymentOrders},
		// Daily at 3 AM
		{name: "prune_webhook_events", schedule: "0 0 3 * * *", timeout: 10 * time.Minute, run: m.PruneWebhookEvents},
	}
	if m.refunds != nil {
		// Every 15 minutes
		jobs = append(jobs, job{name: "report_stuck_refunds", schedule: "0 */15 * * * *", timeout: time.Minute, run: m.ReportStuckRefunds})
	}
	if m.exports != nil {
		// Daily at 4 AM
		jobs = append(jobs, job{name: "prune_report_exports", schedule: "0 0 4 * * *", timeout: 10 * time.Minute, run: m.PruneReportExports})
	}
	return jobs
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	for _, j := range m.jobs() {
		j := j
		if _, err := m.cron.AddFunc(j.schedule, func() { m.runJob(j) }); err != nil {
			return err
		}
	}
	return nil
}

// runJob executes one job and records it in cron_job_logs
func (m *CronManager) runJob(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	entry := m.logJobStart(ctx, j.name)
	affected, message, err := j.run(ctx)
	if err != nil {
		m.logJobError(ctx, entry, err)
		return
	}
	m.logJobComplete(ctx, entry, affected, message)
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(ctx context.Context, jobName string) *model.CronJobLog {
	m.log.Info("[CRON] starting job", slog.String("job", jobName))

	entry := &model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronJobRunning,
		StartedAt: m.now(),
	}
	if err := m.db.WithContext(ctx).Create(entry).Error; err != nil {
		m.log.Warn("[CRON] failed to record job start", slog.String("job", jobName), slog.Any("error", err))
	}
	return entry
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(ctx context.Context, entry *model.CronJobLog, affected int64, message string) {
	m.log.Info("[CRON] completed job",
		slog.String("job", entry.JobName),
		slog.Int64("affected", affected),
		slog.String("message", message),
	)
	m.finish(ctx, entry, map[string]interface{}{
		"status":   model.CronJobCompleted,
		"affected": affected,
		"message":  message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(ctx context.Context, entry *model.CronJobLog, err error) {
	m.log.Error("[CRON] job failed", slog.String("job", entry.JobName), slog.Any("error", err))
	m.finish(ctx, entry, map[string]interface{}{
		"status":    model.CronJobFailed,
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finish(ctx context.Context, entry *model.CronJobLog, updates map[string]interface{}) {
	if entry.ID == 0 {
		return
	}
	completed := m.now()
	updates["completed_at"] = completed
	updates["duration_ms"] = completed.Sub(entry.StartedAt).Milliseconds()
	// The job context may already be spent.
	if err := m.db.WithContext(context.WithoutCancel(ctx)).Model(entry).Updates(updates).Error; err != nil {
		m.log.Warn("[CRON] failed to record job result", slog.String("job", entry.JobName), slog.Any("error", err))
	}
}
