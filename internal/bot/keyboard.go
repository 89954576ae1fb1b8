package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/models"
	"vpnshop/internal/pkg/utils"
)

// Callback buttons. Handlers are registered on the unique name and receive
// the payload in c.Callback().Data.
var (
	btnMainMenu   = tele.Btn{Unique: "main_menu"}
	btnBuy        = tele.Btn{Unique: "buy_service"}
	btnMyServices = tele.Btn{Unique: "my_services"}
	btnWallet     = tele.Btn{Unique: "wallet"}
	btnPlan       = tele.Btn{Unique: "plan"}
	btnPay        = tele.Btn{Unique: "pay"}
	btnRenew      = tele.Btn{Unique: "renew"}
	btnApprove    = tele.Btn{Unique: "approve"}
)

// KeyboardBuilder constructs the inline keyboards of the bot.
type KeyboardBuilder struct{}

func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

func idPayload(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// MainMenu is the entry keyboard.
func (kb *KeyboardBuilder) MainMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("🛒 خرید سرویس", btnBuy.Unique), menu.Data("📋 سرویس‌های من", btnMyServices.Unique)),
		menu.Row(menu.Data("💰 کیف پول", btnWallet.Unique)),
	)
	return menu
}

// Plans lists active plans, one per row.
func (kb *KeyboardBuilder) Plans(plans []models.Plan) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(plans)+1)
	for _, p := range plans {
		label := fmt.Sprintf("%s | %d گیگ | %s | %s تومان", p.Name, p.VolumeGB, p.DurationLabel(), utils.FormatNumber(p.Price))
		rows = append(rows, menu.Row(menu.Data(label, btnPlan.Unique, idPayload(p.ID))))
	}
	rows = append(rows, menu.Row(menu.Data("🏠 منوی اصلی", btnMainMenu.Unique)))
	menu.Inline(rows...)
	return menu
}

// PayOrder offers wallet payment for a pending order.
func (kb *KeyboardBuilder) PayOrder(orderID uint) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("💳 پرداخت از کیف پول", btnPay.Unique, idPayload(orderID))),
		menu.Row(menu.Data("🏠 منوی اصلی", btnMainMenu.Unique)),
	)
	return menu
}

// Services lists paid services with a renew button each.
func (kb *KeyboardBuilder) Services(orders []models.Order) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(orders)+1)
	for _, o := range orders {
		rows = append(rows, menu.Row(menu.Data("🔄 تمدید "+o.PanelUsername, btnRenew.Unique, idPayload(o.ID))))
	}
	rows = append(rows, menu.Row(menu.Data("🏠 منوی اصلی", btnMainMenu.Unique)))
	menu.Inline(rows...)
	return menu
}
