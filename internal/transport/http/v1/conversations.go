package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hebes/smscrm/internal/domain"
)

// ResolveConversation finds or creates the conversation for a customer and
// sender phone.
// POST /v1/conversations/resolve
func (h *Handler) ResolveConversation(c echo.Context) error {
	var req domain.ResolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.CustomerPhone == "" || req.SenderPhoneNumberID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "customer_phone and sender_phone_number_id are required"})
	}

	res, err := h.service.ResolveConversation(c.Request().Context(), req.CustomerPhone, req.SenderPhoneNumberID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListConversations returns the derived conversation list.
// GET /v1/conversations?senderPhone=
func (h *Handler) ListConversations(c echo.Context) error {
	convs, err := h.service.ListConversations(c.Request().Context(), c.QueryParam("senderPhone"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": convs,
	})
}

// GetConversationMessages returns one conversation's messages, oldest first.
// GET /v1/conversations/:key/messages
func (h *Handler) GetConversationMessages(c echo.Context) error {
	messages, err := h.service.ConversationMessages(c.Request().Context(), c.Param("key"))
	if err != nil {
		return errorResponse(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// DeleteConversation deletes a conversation's messages and remote conversation.
// DELETE /v1/conversations/:key
func (h *Handler) DeleteConversation(c echo.Context) error {
	res, err := h.service.DeleteConversation(c.Request().Context(), c.Param("key"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
