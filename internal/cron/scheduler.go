package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vpnshop/internal/config"
	"vpnshop/internal/models"
	"vpnshop/internal/settings"
)

const reminderBatchSize = 100

type OrderStore interface {
	FindExpiringUnreminded(ctx context.Context, now, before time.Time, limit int) ([]models.Order, error)
	MarkReminded(ctx context.Context, id uint, at time.Time) error
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

type PlanFinder interface {
	FindByID(ctx context.Context, id uint) (*models.Plan, error)
}

type NotificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

// Reminder sends the expiry message to a user's chat.
type Reminder interface {
	Remind(ctx context.Context, user *models.User, order *models.Order, planName string) error
}

// InboundSyncer refreshes the cached inbound of the default panel.
type InboundSyncer interface {
	SyncInbound(ctx context.Context, snap settings.Snapshot) (bool, error)
}

// Repos bundles the stores needed by cron jobs.
type Repos struct {
	Orders        OrderStore
	Users         UserFinder
	Plans         PlanFinder
	Notifications NotificationWriter
	Settings      SettingsSource
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.JobsConfig
	repos    Repos
	reminder Reminder
	inbounds InboundSyncer
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a new cron scheduler.
func New(cfg config.JobsConfig, repos Repos, reminder Reminder, inbounds InboundSyncer, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cfg:      cfg,
		repos:    repos,
		reminder: reminder,
		inbounds: inbounds,
		now:      time.Now,
		logger:   logger,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	jobs := []struct {
		spec string
		name string
		run  func(context.Context)
	}{
		// Expiry reminders - every 30 minutes
		{"0 */30 * * * *", "expiry reminders", s.sendExpiryReminders},
		// Stale pending orders - every hour
		{"0 0 * * * *", "expire pending orders", s.expirePendingOrders},
		// Inbound cache refresh - every 15 minutes
		{"0 */15 * * * *", "sync inbound", s.syncInbound},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			s.logger.Debug("Running: " + job.name)
			s.run(job.name, job.run)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run(name string, fn func(context.Context)) {
	defer s.recoverFromPanic(name)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	fn(ctx)
}

// ── Expiry reminders ──────────────────────────────────────────────────

func (s *Scheduler) sendExpiryReminders(ctx context.Context) {
	if s.cfg.ReminderDays <= 0 {
		return
	}
	now := s.now()
	orders, err := s.repos.Orders.FindExpiringUnreminded(ctx, now, now.AddDate(0, 0, s.cfg.ReminderDays), reminderBatchSize)
	if err != nil {
		s.logger.Error("Failed to load expiring orders", zap.Error(err))
		return
	}

	sent := 0
	for i := range orders {
		order := &orders[i]
		user, err := s.repos.Users.FindByID(ctx, order.UserID)
		if err != nil {
			s.logger.Warn("Reminder skipped: user lookup failed", zap.Uint("order_id", order.ID), zap.Error(err))
			continue
		}
		planName := ""
		if order.PlanID != nil {
			if plan, err := s.repos.Plans.FindByID(ctx, *order.PlanID); err == nil {
				planName = plan.Name
			}
		}

		if err := s.reminder.Remind(ctx, user, order, planName); err != nil {
			s.logger.Warn("Reminder delivery failed", zap.Uint("order_id", order.ID), zap.Error(err))
			continue
		}
		_ = s.repos.Notifications.Create(ctx, &models.Notification{
			UserID:  user.ID,
			Type:    models.NotificationExpiryReminder,
			Title:   "یادآوری تمدید",
			Message: fmt.Sprintf("سرویس %s در تاریخ %s منقضی می‌شود.", order.PanelUsername, order.ExpiresAt.Format(time.DateOnly)),
		})
		if err := s.repos.Orders.MarkReminded(ctx, order.ID, now); err != nil {
			s.logger.Error("Failed to mark order reminded", zap.Uint("order_id", order.ID), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info("Expiry reminders sent", zap.Int("count", sent))
	}
}

// ── Stale pending orders ──────────────────────────────────────────────

func (s *Scheduler) expirePendingOrders(ctx context.Context) {
	if s.cfg.PendingOrderTTL <= 0 {
		return
	}
	n, err := s.repos.Orders.ExpireStalePending(ctx, s.now().Add(-s.cfg.PendingOrderTTL))
	if err != nil {
		s.logger.Error("Failed to expire pending orders", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Expired stale pending orders", zap.Int64("count", n))
	}
}

// ── Inbound cache ─────────────────────────────────────────────────────

func (s *Scheduler) syncInbound(ctx context.Context) {
	if s.inbounds == nil {
		return
	}
	snap, err := s.repos.Settings.Snapshot(ctx)
	if err != nil {
		s.logger.Error("Failed to load settings", zap.Error(err))
		return
	}
	synced, err := s.inbounds.SyncInbound(ctx, snap)
	if err != nil {
		s.logger.Warn("Inbound sync failed", zap.Error(err))
		return
	}
	if synced {
		s.logger.Debug("Inbound cache refreshed")
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
