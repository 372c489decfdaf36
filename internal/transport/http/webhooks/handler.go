// Package webhooks receives provider callbacks for inbound messages and
// delivery status.
package webhooks

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/service"
)

const (
	InboundPath = "/webhooks/twilio/inbound"
	StatusPath  = service.StatusCallbackPath
)

// emptyTwiML acknowledges an inbound message without replying.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Handler handles provider webhooks.
type Handler struct {
	service *service.Service
	config  *config.Config
}

// NewHandler creates a webhook handler.
func NewHandler(svc *service.Service, cfg *config.Config) *Handler {
	return &Handler{service: svc, config: cfg}
}

// RegisterRoutes registers the webhook routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST(InboundPath, h.Inbound)
	e.POST(StatusPath, h.Status)
}

// Inbound records an inbound SMS.
// POST /webhooks/twilio/inbound
func (h *Handler) Inbound(c echo.Context) error {
	form, err := h.verifiedForm(c)
	if err != nil {
		return err
	}

	numMedia, _ := strconv.Atoi(form.Get("NumMedia"))
	in := domain.InboundSMS{
		MessageSID: firstOf(form, "MessageSid", "SmsSid"),
		AccountSID: form.Get("AccountSid"),
		From:       form.Get("From"),
		To:         form.Get("To"),
		Body:       form.Get("Body"),
		Status:     form.Get("SmsStatus"),
		NumMedia:   numMedia,
	}
	if _, err := h.service.HandleInbound(c.Request().Context(), in); err != nil {
		if e, ok := service.AsError(err); ok && e.Code == service.ErrorInvalidInput {
			return c.String(http.StatusBadRequest, e.Reason)
		}
		log.Error().Err(err).Str("provider_sid", in.MessageSID).Msg("failed to handle inbound message")
		return c.String(http.StatusInternalServerError, "failed to record message")
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationXML, []byte(emptyTwiML))
}

// Status applies a delivery-status callback.
// POST /webhooks/twilio/status
func (h *Handler) Status(c echo.Context) error {
	form, err := h.verifiedForm(c)
	if err != nil {
		return err
	}

	cb := domain.StatusCallback{
		MessageSID:   firstOf(form, "MessageSid", "SmsSid"),
		Status:       domain.MessageStatus(firstOf(form, "MessageStatus", "SmsStatus")),
		ErrorCode:    form.Get("ErrorCode"),
		ErrorMessage: form.Get("ErrorMessage"),
	}
	updated, err := h.service.HandleStatus(c.Request().Context(), cb)
	if err != nil {
		if e, ok := service.AsError(err); ok && e.Code == service.ErrorInvalidInput {
			return c.String(http.StatusBadRequest, e.Reason)
		}
		log.Error().Err(err).Str("provider_sid", cb.MessageSID).Msg("failed to apply status callback")
		return c.String(http.StatusInternalServerError, "failed to update status")
	}
	if !updated {
		log.Debug().Str("provider_sid", cb.MessageSID).Msg("status callback for unknown message")
	}
	return c.NoContent(http.StatusNoContent)
}

// verifiedForm parses the form body and checks its signature. A bad signature
// is rejected with 403 only when enforcement is on; otherwise it is logged.
func (h *Handler) verifiedForm(c echo.Context) (url.Values, error) {
	form, err := c.FormParams()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}

	logger := log.With().Str("path", c.Request().URL.Path).Logger()
	fullURL := h.config.PublicURL + c.Request().URL.RequestURI()
	signature := c.Request().Header.Get(twilio.SignatureHeader)

	token, err := h.service.SigningToken(c.Request().Context(), form.Get("AccountSid"))
	valid := err == nil && twilio.ValidateSignature(token, fullURL, form, signature)
	if valid {
		return form, nil
	}

	if err != nil {
		logger.Warn().Err(err).Msg("no token to verify webhook signature")
	} else {
		logger.Warn().Bool("has_signature", signature != "").Msg("invalid webhook signature")
	}
	if h.config.WebhookEnforceSignature {
		return nil, echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}
	return form, nil
}

func firstOf(form url.Values, keys ...string) string {
	for _, k := range keys {
		if v := form.Get(k); v != "" {
			return v
		}
	}
	return ""
}
