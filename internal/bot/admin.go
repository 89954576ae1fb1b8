package bot

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

func (b *Bot) isAdmin(sender *tele.User) bool {
	return b.cfg.AdminID != "" && sender != nil && strconv.FormatInt(sender.ID, 10) == b.cfg.AdminID
}

// handleApproveCommand handles "/approve <order id>".
func (b *Bot) handleApproveCommand(c tele.Context) error {
	if !b.isAdmin(c.Sender()) {
		return nil
	}
	return send(c, b.approve(context.Background(), c.Message().Payload))
}

func (b *Bot) handleApproveCallback(c tele.Context) error {
	if !b.isAdmin(c.Sender()) {
		return c.Respond(&tele.CallbackResponse{Text: "دسترسی ندارید"})
	}
	_ = c.Respond()
	return send(c, b.approve(context.Background(), c.Callback().Data))
}

// approve activates an order paid outside the wallet. The admin sees the raw
// provisioning error when activation fails.
func (b *Bot) approve(ctx context.Context, payload string) reply {
	orderID, ok := parseID(payload)
	if !ok {
		return reply{text: "Usage: /approve <order_id>"}
	}
	out, err := b.deps.Orders.Approve(ctx, orderID)
	if err != nil {
		r := b.rejection("approve", err)
		if r.text == genericFailure {
			r.text = "❌ " + err.Error()
		}
		return r
	}
	if !out.Success {
		b.logger.Warn("admin approval did not activate", zap.Uint("order_id", orderID), zap.String("kind", out.ErrorKind))
		return reply{text: fmt.Sprintf("❌ سفارش #%d فعال نشد:\n%s", orderID, out.ErrorMessage)}
	}
	return reply{text: fmt.Sprintf("✅ سفارش #%d تأیید و فعال شد.", orderID)}
}
