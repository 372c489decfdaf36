// Package v1 provides the JSON API handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hebes/smscrm/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversation API
	e.POST("/v1/conversations/resolve", h.ResolveConversation)
	e.GET("/v1/conversations", h.ListConversations)
	e.GET("/v1/conversations/:key/messages", h.GetConversationMessages)
	e.DELETE("/v1/conversations/:key", h.DeleteConversation)

	// Message API
	e.GET("/v1/messages", h.ListMessages)
	e.POST("/v1/messages/send", h.SendMessage)

	// Directory API
	e.GET("/v1/contacts", h.ListContacts)
	e.POST("/v1/contacts", h.CreateContact)
	e.GET("/v1/contacts/phone/:phone", h.GetContactByPhone)
	e.GET("/v1/sender-phone-numbers", h.ListSenderPhoneNumbers)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// StatusFor maps a service error code to an HTTP status.
func StatusFor(code service.ErrorCode) int {
	switch code {
	case service.ErrorInvalidInput:
		return http.StatusBadRequest
	case service.ErrorNotFound:
		return http.StatusNotFound
	case service.ErrorConfiguration:
		return http.StatusUnprocessableEntity
	case service.ErrorConflict, service.ErrorInconsistency:
		return http.StatusConflict
	case service.ErrorTransient:
		return http.StatusServiceUnavailable
	case service.ErrorBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(c echo.Context, err error) error {
	e, ok := service.AsError(err)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	body := map[string]interface{}{
		"error": e.Reason,
		"code":  string(e.Code),
	}
	if e.ProviderCode != 0 {
		body["provider_code"] = e.ProviderCode
	}
	if e.Retryable() {
		body["retryable"] = true
	}
	return c.JSON(StatusFor(e.Code), body)
}
