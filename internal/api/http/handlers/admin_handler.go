package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/routing-engine/internal/classify"
)

// AdminHandler exposes manual breaker controls for operators.
type AdminHandler struct {
	breaker *classify.Breaker
}

// NewAdminHandler constructs handler.
func NewAdminHandler(breaker *classify.Breaker) *AdminHandler {
	return &AdminHandler{breaker: breaker}
}

// BreakerStats GET /admin/breaker.
func (h *AdminHandler) BreakerStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.breaker.Stats()})
}

// ForceOpen POST /admin/breaker/open. A forced-open breaker does not
// auto-recover; it stays open until an explicit close or reset.
func (h *AdminHandler) ForceOpen(c *fiber.Ctx) error {
	h.breaker.ForceOpen()
	return c.JSON(fiber.Map{"data": h.breaker.Stats()})
}

// ForceClose POST /admin/breaker/close.
func (h *AdminHandler) ForceClose(c *fiber.Ctx) error {
	h.breaker.ForceClose()
	return c.JSON(fiber.Map{"data": h.breaker.Stats()})
}

// Reset POST /admin/breaker/reset.
func (h *AdminHandler) Reset(c *fiber.Ctx) error {
	h.breaker.Reset()
	return c.JSON(fiber.Map{"data": h.breaker.Stats()})
}
