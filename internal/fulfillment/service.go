package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnshop/internal/metrics"
	"vpnshop/internal/models"
	"vpnshop/internal/pkg/guard"
	"vpnshop/internal/pkg/utils"
	"vpnshop/internal/provisioning"
	"vpnshop/internal/repository"
)

// Provisioner runs the panel side of an order.
type Provisioner interface {
	Run(ctx context.Context, req provisioning.Request) (*provisioning.Result, error)
}

// Trigger describes who asked for a fulfillment.
type Trigger struct {
	Source        string
	PaymentMethod string // empty keeps the order's method
}

// Service is the single entry point that turns a pending order into a paid one.
type Service struct {
	db            *gorm.DB
	orders        *repository.OrderRepository
	users         *repository.UserRepository
	plans         *repository.PlanRepository
	servers       *repository.ServerRepository
	settings      *repository.SettingRepository
	transactions  *repository.TransactionRepository
	notifications *repository.NotificationRepository

	provisioner Provisioner
	guard       guard.Guard
	events      EventSink
	metrics     *metrics.Provisioning
	logger      *zap.Logger
}

// NewService creates a fulfillment service. events and m may be nil.
func NewService(db *gorm.DB, provisioner Provisioner, g guard.Guard, events EventSink, m *metrics.Provisioning, logger *zap.Logger) *Service {
	return &Service{
		db:            db,
		orders:        repository.NewOrderRepository(db),
		users:         repository.NewUserRepository(db),
		plans:         repository.NewPlanRepository(db),
		servers:       repository.NewServerRepository(db),
		settings:      repository.NewSettingRepository(db),
		transactions:  repository.NewTransactionRepository(db),
		notifications: repository.NewNotificationRepository(db),
		provisioner:   provisioner,
		guard:         g,
		events:        events,
		metrics:       m,
		logger:        logger,
	}
}

func (s *Service) lock(ctx context.Context, orderID uint) (func(), error) {
	release, err := s.guard.Acquire(ctx, fmt.Sprintf("order:%d", orderID))
	if errors.Is(err, guard.ErrHeld) {
		return nil, ErrInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	return release, nil
}

func (s *Service) loadOrder(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", id, err)
	}
	return order, nil
}

// Fulfill provisions a pending plan order and commits it. A provisioning
// failure is reported in the outcome, not as an error, and writes nothing
// locally. Errors are reserved for rejected preconditions and storage faults.
func (s *Service) Fulfill(ctx context.Context, orderID uint, trigger Trigger) (*Outcome, error) {
	release, err := s.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrNotPending
	}
	if order.IsWalletTopUp() {
		return nil, ErrNoPlan
	}

	plan, err := s.plans.FindByID(ctx, *order.PlanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoPlan
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %d: %w", *order.PlanID, err)
	}

	var original *models.Order
	if order.IsRenewal() {
		original, err = s.orders.FindByID(ctx, *order.RenewsOrderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load original order %d: %w", *order.RenewsOrderID, err)
		}
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	source := trigger.Source
	if source == "" {
		source = order.Source
	}
	log := s.logger.With(zap.Uint("order_id", order.ID), zap.String("source", source))

	res, runErr := s.provisioner.Run(ctx, provisioning.Request{Order: order, Original: original, Plan: plan, Settings: snap})
	if runErr != nil {
		kind := provisioning.KindOf(runErr)
		log.Warn("fulfillment failed", zap.String("kind", string(kind)), zap.Error(runErr))
		out := &Outcome{OrderID: order.ID, ErrorKind: string(kind), ErrorMessage: runErr.Error()}
		s.publish(ctx, Event{
			Type:         EventOrderFailed,
			OrderID:      order.ID,
			UserID:       order.UserID,
			Source:       source,
			Renewal:      order.IsRenewal(),
			PlanName:     plan.Name,
			Amount:       order.Amount,
			ErrorKind:    out.ErrorKind,
			ErrorMessage: out.ErrorMessage,
		})
		return out, nil
	}

	mutated := provisioning.Mutated(order, original)
	expiresAt := res.ExpiresAt

	err = s.db.Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		ok, err := orders.MarkPaidIfPending(ctx, order.ID, trigger.PaymentMethod)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		if err := orders.ApplyFulfillment(ctx, mutated.ID, repository.FulfillmentFields{
			ConfigDetails: res.Config,
			ExpiresAt:     expiresAt,
			PanelUsername: res.Username,
			PanelClientID: res.ClientID,
			PanelSubID:    res.SubID,
		}); err != nil {
			return err
		}

		if sid := res.ServerID(); sid != nil {
			if err := orders.SetServer(ctx, order.ID, *sid); err != nil {
				return err
			}
			if original != nil {
				if err := orders.SetServerIfEmpty(ctx, original.ID, *sid); err != nil {
					return err
				}
			}
			if res.Created {
				if err := s.servers.WithTx(tx).IncrementUsers(ctx, *sid); err != nil {
					return err
				}
			}
		}

		orderRef := order.ID
		if err := s.transactions.WithTx(tx).Create(ctx, &models.Transaction{
			UserID:      order.UserID,
			OrderID:     &orderRef,
			Amount:      order.Amount,
			Type:        models.TransactionTypePurchase,
			Status:      models.TransactionStatusCompleted,
			Description: purchaseDescription(plan, res.Renewal),
		}); err != nil {
			return err
		}

		if res.Renewal {
			if err := s.users.WithTx(tx).SetShowRenewalNotification(ctx, order.UserID, true); err != nil {
				return err
			}
		}
		return s.notifications.WithTx(tx).Create(ctx, serviceNotification(order.UserID, plan, res))
	})
	if errors.Is(err, ErrNotPending) {
		log.Warn("order was settled concurrently; remote changes kept", zap.String("username", res.Username))
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("commit order %d: %w", order.ID, err)
	}

	s.metrics.IncCommit(source)
	log.Info("order fulfilled",
		zap.Uint("mutated_order_id", mutated.ID),
		zap.String("username", res.Username),
		zap.Bool("renewal", res.Renewal),
		zap.Strings("warnings", res.Warnings),
	)

	ev := Event{
		Type:         EventOrderPaid,
		OrderID:      order.ID,
		UserID:       order.UserID,
		Source:       source,
		Success:      true,
		Config:       res.Config,
		ExpiresAt:    &expiresAt,
		ClientID:     res.ClientID,
		SubID:        res.SubID,
		Username:     res.Username,
		Renewal:      res.Renewal,
		PlanName:     plan.Name,
		VolumeGB:     plan.VolumeGB,
		DurationDays: plan.DurationDays,
		Amount:       order.Amount,
		Warnings:     res.Warnings,
	}
	if res.Server != nil {
		ev.ServerName = res.Server.Name
		if res.Server.Location != nil {
			ev.LocationName = res.Server.Location.Name
		}
	}
	s.publish(ctx, ev)

	return &Outcome{
		Success:        true,
		OrderID:        order.ID,
		MutatedOrderID: mutated.ID,
		Config:         res.Config,
		ExpiresAt:      &expiresAt,
		ClientID:       res.ClientID,
		SubID:          res.SubID,
		Username:       res.Username,
		Renewal:        res.Renewal,
		Warnings:       res.Warnings,
	}, nil
}

// CreditWallet settles a pending top-up order. It never provisions.
func (s *Service) CreditWallet(ctx context.Context, orderID uint, source string) (*Outcome, error) {
	release, err := s.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrNotPending
	}
	if !order.IsWalletTopUp() {
		return nil, ErrNotTopUp
	}
	if source == "" {
		source = order.Source
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.orders.WithTx(tx).MarkPaidIfPending(ctx, order.ID, "")
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		if err := s.users.WithTx(tx).Credit(ctx, order.UserID, order.Amount); err != nil {
			return err
		}
		orderRef := order.ID
		if err := s.transactions.WithTx(tx).Create(ctx, &models.Transaction{
			UserID:      order.UserID,
			OrderID:     &orderRef,
			Amount:      order.Amount,
			Type:        models.TransactionTypeDeposit,
			Status:      models.TransactionStatusCompleted,
			Description: "شارژ کیف پول",
		}); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).Create(ctx, &models.Notification{
			UserID:  order.UserID,
			Type:    models.NotificationWalletCharged,
			Title:   "شارژ کیف پول",
			Message: fmt.Sprintf("مبلغ %s تومان به کیف پول شما اضافه شد.", utils.FormatNumber(order.Amount)),
			Link:    "/wallet",
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			return nil, err
		}
		return nil, fmt.Errorf("credit wallet for order %d: %w", order.ID, err)
	}
	s.metrics.IncCommit(source)

	out := &Outcome{Success: true, OrderID: order.ID}
	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("reload user after credit", zap.Uint("user_id", order.UserID), zap.Error(err))
	} else {
		balance := user.Balance
		out.Balance = &balance
	}

	ev := Event{Type: EventWalletCharged, OrderID: order.ID, UserID: order.UserID, Source: source, Success: true, Amount: order.Amount}
	if out.Balance != nil {
		ev.Balance = *out.Balance
	}
	s.publish(ctx, ev)
	s.logger.Info("wallet charged", zap.Uint("order_id", order.ID), zap.Int64("amount", order.Amount))
	return out, nil
}

// Approve is the admin action: top-ups are credited, plan orders fulfilled.
func (s *Service) Approve(ctx context.Context, orderID uint) (*Outcome, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsWalletTopUp() {
		return s.CreditWallet(ctx, orderID, "")
	}
	return s.Fulfill(ctx, orderID, Trigger{Source: order.Source})
}

// PayWithWallet debits the user's balance and fulfills the order. When
// fulfillment does not succeed the debit is refunded.
func (s *Service) PayWithWallet(ctx context.Context, orderID, userID uint, source string) (*Outcome, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrNotPending
	}
	if order.IsWalletTopUp() {
		return nil, ErrNoPlan
	}

	amount := order.Amount
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.users.WithTx(tx).Debit(ctx, userID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		return s.notifications.WithTx(tx).Create(ctx, &models.Notification{
			UserID:  userID,
			Type:    models.NotificationWalletDeducted,
			Title:   "کسر از کیف پول",
			Message: fmt.Sprintf("مبلغ %s تومان بابت سفارش #%d از کیف پول شما کسر شد.", utils.FormatNumber(amount), order.ID),
			Link:    "/wallet",
		})
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("debit wallet for order %d: %w", order.ID, err)
	}

	out, err := s.Fulfill(ctx, orderID, Trigger{Source: source, PaymentMethod: models.PaymentMethodWallet})
	if err == nil && out.Success {
		return out, nil
	}

	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	default:
		reason = out.ErrorMessage
	}
	if rerr := s.refund(ctx, order, reason); rerr != nil {
		s.logger.Error("wallet refund failed",
			zap.Uint("order_id", order.ID),
			zap.Uint("user_id", userID),
			zap.Int64("amount", amount),
			zap.Error(rerr),
		)
		if err == nil {
			err = fmt.Errorf("refund order %d: %w", order.ID, rerr)
		}
	}
	return out, err
}

func (s *Service) refund(ctx context.Context, order *models.Order, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).Credit(ctx, order.UserID, order.Amount); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).Create(ctx, &models.Notification{
			UserID:  order.UserID,
			Type:    models.NotificationPaymentFailed,
			Title:   "پرداخت ناموفق",
			Message: fmt.Sprintf("فعال‌سازی سفارش #%d انجام نشد و مبلغ %s تومان به کیف پول شما بازگشت. %s", order.ID, utils.FormatNumber(order.Amount), reason),
			Link:    "/orders",
		})
	})
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, e)
}

func purchaseDescription(plan *models.Plan, renewal bool) string {
	if renewal {
		return "تمدید " + plan.Name
	}
	return "خرید " + plan.Name
}

func serviceNotification(userID uint, plan *models.Plan, res *provisioning.Result) *models.Notification {
	n := &models.Notification{UserID: userID, Link: "/orders"}
	expires := res.ExpiresAt.Format(time.DateOnly)
	if res.Renewal {
		n.Type = models.NotificationRenew
		n.Title = "تمدید سرویس"
		n.Message = fmt.Sprintf("سرویس %s تا %s تمدید شد.", plan.Name, expires)
	} else {
		n.Type = models.NotificationActivate
		n.Title = "فعال‌سازی سرویس"
		n.Message = fmt.Sprintf("سرویس %s فعال شد و تا %s اعتبار دارد.", plan.Name, expires)
	}
	return n
}
