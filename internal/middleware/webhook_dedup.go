package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"vpnshop/internal/pkg/guard"
)

// TelegramUpdateDedup answers repeated webhook deliveries of the same
// update_id with 200 and skips the handler.
func TelegramUpdateDedup(g guard.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g == nil {
				return next(c)
			}
			dup, err := guard.SeenUpdate(c.Request().Context(), g, updateID(c.Request()))
			if err == nil && dup {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

// updateID peeks at the body and restores it for the handler. Unreadable
// or malformed bodies yield 0.
func updateID(req *http.Request) int64 {
	if req.Body == nil {
		return 0
	}
	raw, err := io.ReadAll(req.Body)
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return 0
	}
	var u struct {
		ID int64 `json:"update_id"`
	}
	if json.Unmarshal(raw, &u) != nil {
		return 0
	}
	return u.ID
}
