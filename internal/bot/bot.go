package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"vpnshop/internal/config"
	"vpnshop/internal/fulfillment"
	"vpnshop/internal/models"
	"vpnshop/internal/pkg/utils"
)

// OrderService is what the bot needs from fulfillment.
type OrderService interface {
	CreateOrder(ctx context.Context, userID, planID uint, serverID *uint, source, paymentMethod string) (*models.Order, error)
	RenewOrder(ctx context.Context, userID, originalID uint, source, paymentMethod string) (*models.Order, error)
	Approve(ctx context.Context, orderID uint) (*fulfillment.Outcome, error)
	PayWithWallet(ctx context.Context, orderID, userID uint, source string) (*fulfillment.Outcome, error)
}

type UserStore interface {
	FindByTelegramChatID(ctx context.Context, chatID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type PlanLister interface {
	FindActive(ctx context.Context) ([]models.Plan, error)
}

type OrderLister interface {
	FindByUser(ctx context.Context, userID uint, limit, page int) ([]models.Order, int64, error)
}

// Deps bundles the collaborators of the bot handlers.
type Deps struct {
	Orders  OrderService
	Users   UserStore
	Plans   PlanLister
	History OrderLister
}

// Bot wraps the telebot instance and handlers.
type Bot struct {
	tb         *tele.Bot
	webhook    *tele.Webhook
	useWebhook bool
	cfg        config.BotConfig
	deps       Deps
	keyboard   *KeyboardBuilder
	logger     *zap.Logger
}

type reply struct {
	text   string
	markup *tele.ReplyMarkup
}

const genericFailure = "❌ خطایی رخ داد. لطفاً دوباره تلاش کنید."

// New creates and configures a new Bot instance.
func New(cfg config.BotConfig, deps Deps, logger *zap.Logger) (*Bot, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.UpdateMode))
	if mode == "" {
		mode = "auto"
	}

	useWebhook := true
	switch mode {
	case "polling":
		useWebhook = false
	case "webhook":
		useWebhook = true
	default: // auto
		useWebhook = strings.TrimSpace(cfg.WebhookURL) != ""
	}

	var poller tele.Poller
	var webhook *tele.Webhook
	if useWebhook {
		if strings.TrimSpace(cfg.WebhookURL) == "" {
			return nil, fmt.Errorf("BOT_WEBHOOK_URL is required when BOT_UPDATE_MODE=webhook")
		}
		webhook = &tele.Webhook{
			Listen:   "", // Empty: we mount on Echo instead of telebot's own server
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
		poller = webhook
	} else {
		poller = &tele.LongPoller{Timeout: 10 * time.Second}
	}

	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: poller,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	b := newBot(cfg, deps, logger)
	b.tb = tb
	b.webhook = webhook
	b.useWebhook = useWebhook
	b.registerHandlers()

	return b, nil
}

func newBot(cfg config.BotConfig, deps Deps, logger *zap.Logger) *Bot {
	return &Bot{cfg: cfg, deps: deps, keyboard: NewKeyboardBuilder(), logger: logger}
}

// WebhookHandler returns the webhook handler for mounting on Echo.
// Returns nil when running in long-polling mode.
func (b *Bot) WebhookHandler() http.Handler {
	if !b.useWebhook {
		return nil
	}
	return b.webhook
}

// Start begins polling/webhook processing.
func (b *Bot) Start() {
	if b.useWebhook {
		b.logger.Info("Starting Telegram bot", zap.String("mode", "webhook"), zap.String("webhook_url", b.cfg.WebhookURL))
	} else {
		// Long polling requires webhook to be removed first.
		if err := b.tb.RemoveWebhook(true); err != nil {
			b.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
		}
		b.logger.Info("Starting Telegram bot", zap.String("mode", "polling"))
	}
	b.tb.Start()
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/approve", b.handleApproveCommand)
	b.tb.Handle(&btnMainMenu, b.callback(func(ctx context.Context, u *models.User, _ string) reply { return b.mainMenu(u) }))
	b.tb.Handle(&btnBuy, b.callback(b.plans))
	b.tb.Handle(&btnPlan, b.callback(b.orderPlan))
	b.tb.Handle(&btnPay, b.callback(b.payOrder))
	b.tb.Handle(&btnMyServices, b.callback(b.services))
	b.tb.Handle(&btnRenew, b.callback(b.renew))
	b.tb.Handle(&btnWallet, b.callback(func(ctx context.Context, u *models.User, _ string) reply { return b.wallet(u) }))
	b.tb.Handle(&btnApprove, b.handleApproveCallback)
}

func send(c tele.Context, r reply) error {
	if r.markup != nil {
		return c.Send(r.text, r.markup)
	}
	return c.Send(r.text)
}

// callback wraps a button handler with the user lookup.
func (b *Bot) callback(fn func(ctx context.Context, user *models.User, payload string) reply) tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = c.Respond()
		ctx := context.Background()
		user, err := b.ensureUser(ctx, c.Sender())
		if err != nil {
			b.logger.Error("Failed to load user", zap.Int64("chat_id", c.Sender().ID), zap.Error(err))
			return c.Send(genericFailure)
		}
		return send(c, fn(ctx, user, c.Callback().Data))
	}
}

// ensureUser returns the user behind a chat, registering it on first contact.
func (b *Bot) ensureUser(ctx context.Context, sender *tele.User) (*models.User, error) {
	chatID := strconv.FormatInt(sender.ID, 10)
	user, err := b.deps.Users.FindByTelegramChatID(ctx, chatID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user = &models.User{
		Name:           strings.TrimSpace(sender.FirstName + " " + sender.LastName),
		TelegramChatID: chatID,
	}
	if err := b.deps.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ── /start ────────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	user, err := b.ensureUser(context.Background(), c.Sender())
	if err != nil {
		b.logger.Error("Failed to create user", zap.Int64("chat_id", c.Sender().ID), zap.Error(err))
		return c.Send(genericFailure)
	}
	return send(c, b.mainMenu(user))
}

func (b *Bot) mainMenu(user *models.User) reply {
	name := user.Name
	if name == "" {
		name = "کاربر"
	}
	return reply{
		text:   fmt.Sprintf("👋 %s عزیز، خوش آمدید.\nاز منوی زیر استفاده کنید:", name),
		markup: b.keyboard.MainMenu(),
	}
}

func (b *Bot) wallet(user *models.User) reply {
	return reply{
		text:   fmt.Sprintf("💰 موجودی کیف پول شما: %s تومان", utils.FormatNumber(user.Balance)),
		markup: b.keyboard.MainMenu(),
	}
}

// ── Purchase flow ─────────────────────────────────────────────────────

func (b *Bot) plans(ctx context.Context, _ *models.User, _ string) reply {
	plans, err := b.deps.Plans.FindActive(ctx)
	if err != nil {
		b.logger.Error("Failed to list plans", zap.Error(err))
		return reply{text: genericFailure}
	}
	if len(plans) == 0 {
		return reply{text: "در حال حاضر پلنی برای فروش موجود نیست.", markup: b.keyboard.MainMenu()}
	}
	return reply{text: "🛒 پلن مورد نظر را انتخاب کنید:", markup: b.keyboard.Plans(plans)}
}

func (b *Bot) orderPlan(ctx context.Context, user *models.User, payload string) reply {
	planID, ok := parseID(payload)
	if !ok {
		return reply{text: genericFailure}
	}
	order, err := b.deps.Orders.CreateOrder(ctx, user.ID, planID, nil, models.OrderSourceTelegram, models.PaymentMethodWallet)
	if err != nil {
		return b.rejection("create_order", err)
	}
	return reply{
		text: fmt.Sprintf("🧾 سفارش #%d ثبت شد.\nمبلغ: %s تومان\nموجودی کیف پول: %s تومان",
			order.ID, utils.FormatNumber(order.Amount), utils.FormatNumber(user.Balance)),
		markup: b.keyboard.PayOrder(order.ID),
	}
}

func (b *Bot) renew(ctx context.Context, user *models.User, payload string) reply {
	originalID, ok := parseID(payload)
	if !ok {
		return reply{text: genericFailure}
	}
	order, err := b.deps.Orders.RenewOrder(ctx, user.ID, originalID, models.OrderSourceTelegram, models.PaymentMethodWallet)
	if err != nil {
		return b.rejection("renew_order", err)
	}
	return reply{
		text:   fmt.Sprintf("🔄 سفارش تمدید #%d ثبت شد.\nمبلغ: %s تومان", order.ID, utils.FormatNumber(order.Amount)),
		markup: b.keyboard.PayOrder(order.ID),
	}
}

// payOrder is the chat-bot wallet payment. The service details arrive as a
// separate message from the notifier; failures get a generic reply.
func (b *Bot) payOrder(ctx context.Context, user *models.User, payload string) reply {
	orderID, ok := parseID(payload)
	if !ok {
		return reply{text: genericFailure}
	}
	out, err := b.deps.Orders.PayWithWallet(ctx, orderID, user.ID, models.OrderSourceTelegram)
	if errors.Is(err, fulfillment.ErrInsufficientBalance) {
		return reply{
			text:   fmt.Sprintf("❌ موجودی کیف پول کافی نیست.\nموجودی: %s تومان", utils.FormatNumber(user.Balance)),
			markup: b.keyboard.MainMenu(),
		}
	}
	if err != nil {
		return b.rejection("pay_wallet", err)
	}
	if !out.Success {
		b.logger.Warn("wallet payment did not activate",
			zap.Uint("order_id", orderID),
			zap.String("kind", out.ErrorKind),
			zap.String("error", out.ErrorMessage),
		)
		return reply{text: "❌ فعال‌سازی سرویس انجام نشد و مبلغ به کیف پول شما بازگشت. لطفاً بعداً دوباره تلاش کنید.", markup: b.keyboard.MainMenu()}
	}
	return reply{text: "✅ پرداخت انجام شد. مشخصات سرویس برای شما ارسال شد."}
}

func (b *Bot) services(ctx context.Context, user *models.User, _ string) reply {
	orders, _, err := b.deps.History.FindByUser(ctx, user.ID, 20, 1)
	if err != nil {
		b.logger.Error("Failed to list orders", zap.Uint("user_id", user.ID), zap.Error(err))
		return reply{text: genericFailure}
	}

	var lines []string
	var active []models.Order
	for _, o := range orders {
		if o.Status != models.OrderStatusPaid || o.IsWalletTopUp() || o.IsRenewal() || o.ConfigDetails == "" {
			continue
		}
		active = append(active, o)
		expires := "-"
		if o.ExpiresAt != nil {
			expires = o.ExpiresAt.Format(time.DateOnly)
		}
		lines = append(lines, fmt.Sprintf("🔹 %s | انقضا: %s\n%s", o.PanelUsername, expires, o.ConfigDetails))
	}
	if len(active) == 0 {
		return reply{text: "شما هنوز سرویس فعالی ندارید.", markup: b.keyboard.MainMenu()}
	}
	return reply{text: "📋 سرویس‌های شما:\n\n" + strings.Join(lines, "\n\n"), markup: b.keyboard.Services(active)}
}

func (b *Bot) rejection(action string, err error) reply {
	switch {
	case errors.Is(err, fulfillment.ErrNotFound), errors.Is(err, fulfillment.ErrForbidden):
		return reply{text: "سفارش یافت نشد."}
	case errors.Is(err, fulfillment.ErrNotPending):
		return reply{text: "این سفارش قبلاً پردازش شده است."}
	case errors.Is(err, fulfillment.ErrInProgress):
		return reply{text: "⏳ سفارش در حال پردازش است."}
	case errors.Is(err, fulfillment.ErrPlanUnavailable):
		return reply{text: "این پلن در حال حاضر موجود نیست."}
	case errors.Is(err, fulfillment.ErrServerUnavailable):
		return reply{text: "ظرفیت سرور تکمیل است."}
	}
	b.logger.Error("bot action failed", zap.String("action", action), zap.Error(err))
	return reply{text: genericFailure}
}

func parseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(utils.ConvertPersianToEnglish(s)), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
