package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hebes/smscrm/internal/domain"
)

// ListMessages lists messages, newest first.
// GET /v1/messages?customer=&sender_phone_number_id=&conversation_id=&limit=
func (h *Handler) ListMessages(c echo.Context) error {
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}
	filter := domain.MessageFilter{
		CustomerPhone:       c.QueryParam("customer"),
		ConversationKey:     c.QueryParam("conversation_id"),
		SenderPhoneNumberID: c.QueryParam("sender_phone_number_id"),
		Limit:               limit,
	}

	messages, err := h.service.ListMessages(c.Request().Context(), filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": len(messages) == limit, // Approximate
	})
}

// SendMessage sends an outbound SMS.
// POST /v1/messages/send
func (h *Handler) SendMessage(c echo.Context) error {
	var req domain.SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.To == "" || req.Message == "" || req.SenderPhoneNumberID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "to, message and sender_phone_number_id are required"})
	}

	resp, err := h.service.SendMessage(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
