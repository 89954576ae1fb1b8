package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"vpnshop/internal/models"
	"vpnshop/internal/pkg/utils"
)

// MinWalletCharge is the smallest accepted top-up, in tomans.
const MinWalletCharge int64 = 10000

// CreateOrder opens a pending purchase of planID, optionally pinned to a server.
func (s *Service) CreateOrder(ctx context.Context, userID, planID uint, serverID *uint, source, paymentMethod string) (*models.Order, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %d: %w", planID, err)
	}
	if !plan.IsActive {
		return nil, ErrPlanUnavailable
	}

	if serverID != nil {
		server, err := s.servers.FindByID(ctx, *serverID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServerUnavailable
		}
		if err != nil {
			return nil, fmt.Errorf("load server %d: %w", *serverID, err)
		}
		if !server.IsActive || !server.HasCapacity() {
			return nil, ErrServerUnavailable
		}
	}

	pid := plan.ID
	order := &models.Order{
		UserID:        userID,
		PlanID:        &pid,
		ServerID:      serverID,
		Amount:        plan.Price,
		PaymentMethod: paymentMethod,
		Source:        sourceOrWeb(source),
		Status:        models.OrderStatusPending,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).Create(ctx, &models.Notification{
			UserID:  userID,
			Type:    models.NotificationNewOrderCreated,
			Title:   "سفارش جدید",
			Message: fmt.Sprintf("سفارش #%d برای %s به مبلغ %s تومان ثبت شد.", order.ID, plan.Name, utils.FormatNumber(plan.Price)),
			Link:    "/orders",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

const maxRenewalHops = 8

// RenewOrder opens a pending renewal of a paid order at the plan's list price.
func (s *Service) RenewOrder(ctx context.Context, userID, originalID uint, source, paymentMethod string) (*models.Order, error) {
	original, err := s.loadOrder(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original.UserID != userID {
		return nil, ErrForbidden
	}
	if original.Status != models.OrderStatusPaid {
		return nil, ErrNotPending
	}
	// Renewal records are audit rows; renew the service they extended.
	for hops := 0; original.IsRenewal(); hops++ {
		if hops == maxRenewalHops {
			return nil, ErrNotFound
		}
		if original, err = s.loadOrder(ctx, *original.RenewsOrderID); err != nil {
			return nil, err
		}
		if original.UserID != userID || original.Status != models.OrderStatusPaid {
			return nil, ErrNotFound
		}
	}
	if original.IsWalletTopUp() {
		return nil, ErrNoPlan
	}
	plan, err := s.plans.FindByID(ctx, *original.PlanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %d: %w", *original.PlanID, err)
	}

	pid := plan.ID
	renews := original.ID
	order := &models.Order{
		UserID:        userID,
		PlanID:        &pid,
		ServerID:      original.ServerID,
		RenewsOrderID: &renews,
		Amount:        plan.Price,
		PaymentMethod: paymentMethod,
		Source:        sourceOrWeb(source),
		Status:        models.OrderStatusPending,
		PanelUsername: original.PanelUsername,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).Create(ctx, &models.Notification{
			UserID:  userID,
			Type:    models.NotificationRenewalOrderCreated,
			Title:   "سفارش تمدید",
			Message: fmt.Sprintf("سفارش تمدید #%d برای سرویس #%d ثبت شد.", order.ID, original.ID),
			Link:    "/orders",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create renewal order: %w", err)
	}
	return order, nil
}

// ChargeWallet opens a pending top-up order of amount.
func (s *Service) ChargeWallet(ctx context.Context, userID uint, amount int64, source, paymentMethod string) (*models.Order, error) {
	if amount < MinWalletCharge {
		return nil, ErrAmountTooLow
	}
	order := &models.Order{
		UserID:        userID,
		Amount:        amount,
		PaymentMethod: paymentMethod,
		Source:        sourceOrWeb(source),
		Status:        models.OrderStatusPending,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).Create(ctx, &models.Notification{
			UserID:  userID,
			Type:    models.NotificationWalletChargePending,
			Title:   "درخواست شارژ کیف پول",
			Message: fmt.Sprintf("درخواست شارژ %s تومان ثبت شد و پس از تأیید پرداخت اعمال می‌شود.", utils.FormatNumber(amount)),
			Link:    "/wallet",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create top-up order: %w", err)
	}
	return order, nil
}

func sourceOrWeb(source string) string {
	if source == "" {
		return models.OrderSourceWeb
	}
	return source
}
