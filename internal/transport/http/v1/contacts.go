package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hebes/smscrm/internal/domain"
)

// ListContacts lists contacts by name.
// GET /v1/contacts
func (h *Handler) ListContacts(c echo.Context) error {
	contacts, err := h.service.ListContacts(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"contacts": contacts,
	})
}

// CreateContact adds a contact.
// POST /v1/contacts
func (h *Handler) CreateContact(c echo.Context) error {
	var req domain.CreateContactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	contact, err := h.service.CreateContact(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, contact)
}

// GetContactByPhone looks a contact up by any form of its phone.
// GET /v1/contacts/phone/:phone
func (h *Handler) GetContactByPhone(c echo.Context) error {
	contact, err := h.service.GetContactByPhone(c.Request().Context(), c.Param("phone"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, contact)
}

// ListSenderPhoneNumbers lists sender phones. ?active=true keeps active ones.
// GET /v1/sender-phone-numbers
func (h *Handler) ListSenderPhoneNumbers(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	phones, err := h.service.ListSenderPhoneNumbers(c.Request().Context(), activeOnly)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if phones == nil {
		phones = []domain.SenderPhoneNumber{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sender_phone_numbers": phones,
	})
}
