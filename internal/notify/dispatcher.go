// Package notify delivers fulfillment events to Telegram chats.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"vpnshop/internal/fulfillment"
	"vpnshop/internal/models"
	"vpnshop/internal/pkg/telegram"
	"vpnshop/internal/pkg/utils"
)

// Sender is the subset of the Bot API the dispatcher needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string, replyMarkup interface{}) error
	SendWithFallback(ctx context.Context, chatID, text, fallback string, replyMarkup interface{}) error
}

// UserFinder resolves a user's chat.
type UserFinder interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

// Dispatcher turns outcome events into chat messages.
type Dispatcher struct {
	sender      Sender
	users       UserFinder
	adminChatID string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewDispatcher(sender Sender, users UserFinder, adminChatID string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		users:       users,
		adminChatID: adminChatID,
		timeout:     10 * time.Second,
		logger:      logger,
	}
}

// Publish implements fulfillment.EventSink. Delivery failures are logged only.
func (d *Dispatcher) Publish(ctx context.Context, e fulfillment.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var err error
	switch e.Type {
	case fulfillment.EventOrderPaid:
		err = d.orderPaid(ctx, e)
	case fulfillment.EventOrderFailed:
		err = d.orderFailed(ctx, e)
	case fulfillment.EventWalletCharged:
		err = d.walletCharged(ctx, e)
	default:
		return
	}
	if err != nil {
		d.logger.Warn("telegram delivery failed",
			zap.String("event", string(e.Type)),
			zap.Uint("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}

// Remind tells the owner of order that the service expires soon.
func (d *Dispatcher) Remind(ctx context.Context, user *models.User, order *models.Order, planName string) error {
	if user.TelegramChatID == "" || order.ExpiresAt == nil {
		return nil
	}
	left := int(time.Until(*order.ExpiresAt).Hours() / 24)
	if left < 0 {
		left = 0
	}
	date := order.ExpiresAt.Format(time.DateOnly)
	text := fmt.Sprintf("⏰ *یادآوری تمدید*\n\nسرویس %s \\(`%s`\\) تا %d روز دیگر در تاریخ %s منقضی می‌شود\\.",
		utils.EscapeMarkdownV2(planName), utils.EscapeMarkdownV2(order.PanelUsername), left, utils.EscapeMarkdownV2(date))
	plain := fmt.Sprintf("⏰ یادآوری تمدید\n\nسرویس %s (%s) تا %d روز دیگر در تاریخ %s منقضی می‌شود.",
		planName, order.PanelUsername, left, date)
	kb := &telegram.InlineKeyboard{Rows: [][]telegram.InlineButton{{
		{Text: "🔄 تمدید سرویس", CallbackData: telegram.CallbackData("renew", strconv.FormatUint(uint64(order.ID), 10))},
	}}}
	return d.sender.SendWithFallback(ctx, user.TelegramChatID, text, plain, kb)
}

func (d *Dispatcher) chatOf(ctx context.Context, userID uint) (string, error) {
	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("find user %d: %w", userID, err)
	}
	return user.TelegramChatID, nil
}

func (d *Dispatcher) orderPaid(ctx context.Context, e fulfillment.Event) error {
	chatID, err := d.chatOf(ctx, e.UserID)
	if err != nil || chatID == "" {
		return err
	}
	text, plain := paidMessage(e)
	kb := &telegram.InlineKeyboard{Rows: [][]telegram.InlineButton{
		{{Text: "📋 سرویس‌های من", CallbackData: telegram.CallbackData("my_services")}},
		{{Text: "🏠 منوی اصلی", CallbackData: telegram.CallbackData("main_menu")}},
	}}
	return d.sender.SendWithFallback(ctx, chatID, text, plain, kb)
}

func (d *Dispatcher) orderFailed(ctx context.Context, e fulfillment.Event) error {
	if d.adminChatID == "" {
		return nil
	}
	text := fmt.Sprintf("❌ خطا در فعال‌سازی سفارش #%d\n\nکاربر: %d\nپلن: %s\nمبلغ: %s تومان\nمنبع: %s\nنوع خطا: %s\n\n%s",
		e.OrderID, e.UserID, e.PlanName, utils.FormatNumber(e.Amount), e.Source, e.ErrorKind, e.ErrorMessage)
	kb := &telegram.InlineKeyboard{Rows: [][]telegram.InlineButton{{
		{Text: "🔁 تلاش مجدد", CallbackData: telegram.CallbackData("approve", strconv.FormatUint(uint64(e.OrderID), 10))},
	}}}
	return d.sender.SendMessage(ctx, d.adminChatID, text, telegram.ModePlain, kb)
}

func (d *Dispatcher) walletCharged(ctx context.Context, e fulfillment.Event) error {
	chatID, err := d.chatOf(ctx, e.UserID)
	if err != nil || chatID == "" {
		return err
	}
	amount := utils.FormatNumber(e.Amount)
	balance := utils.FormatNumber(e.Balance)
	text := fmt.Sprintf("✅ مبلغ *%s* تومان به کیف پول شما اضافه شد\\.\n💰 موجودی: *%s* تومان",
		utils.EscapeMarkdownV2(amount), utils.EscapeMarkdownV2(balance))
	plain := fmt.Sprintf("✅ مبلغ %s تومان به کیف پول شما اضافه شد.\n💰 موجودی: %s تومان", amount, balance)
	return d.sender.SendWithFallback(ctx, chatID, text, plain, nil)
}

func paidMessage(e fulfillment.Event) (string, string) {
	title := "✅ سرویس شما فعال شد"
	if e.Renewal {
		title = "🔄 سرویس شما تمدید شد"
	}
	expires := ""
	if e.ExpiresAt != nil {
		expires = e.ExpiresAt.Format(time.DateOnly)
	}

	type row struct{ label, value string }
	rows := []row{{"📦 پلن", e.PlanName}}
	if e.LocationName != "" {
		rows = append(rows, row{"🌍 لوکیشن", e.LocationName})
	}
	if e.ServerName != "" {
		rows = append(rows, row{"🖥 سرور", e.ServerName})
	}
	rows = append(rows,
		row{"📊 حجم", fmt.Sprintf("%d گیگابایت", e.VolumeGB)},
		row{"⏳ مدت", fmt.Sprintf("%d روز", e.DurationDays)},
		row{"📅 انقضا", expires},
	)

	var md, plain strings.Builder
	md.WriteString("*" + utils.EscapeMarkdownV2(title) + "*\n\n")
	plain.WriteString(title + "\n\n")
	for _, r := range rows {
		md.WriteString(r.label + ": " + utils.EscapeMarkdownV2(r.value) + "\n")
		plain.WriteString(r.label + ": " + r.value + "\n")
	}
	md.WriteString("👤 نام کاربری: `" + utils.EscapeMarkdownV2(e.Username) + "`\n")
	plain.WriteString("👤 نام کاربری: " + e.Username + "\n")

	md.WriteString("\n🔗 لینک اتصال:\n`" + utils.EscapeMarkdownV2(e.Config) + "`")
	plain.WriteString("\n🔗 لینک اتصال:\n" + e.Config)

	for _, w := range e.Warnings {
		md.WriteString("\n\n⚠️ " + utils.EscapeMarkdownV2(w))
		plain.WriteString("\n\n⚠️ " + w)
	}
	return md.String(), plain.String()
}
