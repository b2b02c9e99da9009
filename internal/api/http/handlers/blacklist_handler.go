package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// BlacklistHandler manages users barred from opening tickets.
type BlacklistHandler struct {
	service *service.TicketService
}

// NewBlacklistHandler constructs handler.
func NewBlacklistHandler(ticketService *service.TicketService) *BlacklistHandler {
	return &BlacklistHandler{service: ticketService}
}

// Add POST /blacklist.
func (h *BlacklistHandler) Add(c *fiber.Ctx) error {
	var req dto.BlacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.BlacklistUser(c.UserContext(), req.UserID, req.Until); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Remove DELETE /blacklist/:userID.
func (h *BlacklistHandler) Remove(c *fiber.Ctx) error {
	if err := h.service.UnblacklistUser(c.UserContext(), c.Params("userID")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
