package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/repository"
	"github.com/hebes/smscrm/internal/service"
	"github.com/hebes/smscrm/tests/helpers"
)

const (
	publicURL   = "https://crm.example.com"
	accountSID  = "AC00000000000000000000000000000001"
	senderPhone = "+15550000001"
	customer    = "+15551234567"
)

func newTestHandler(t *testing.T, enforce bool) (*echo.Echo, *repository.SQLiteStore) {
	t.Helper()
	cfg := &config.Config{
		PublicURL:               publicURL,
		ProviderTimeout:         2 * time.Second,
		ConversationListLimit:   1000,
		ConversationPageSize:    100,
		WebhookEnforceSignature: enforce,
	}
	db := helpers.NewTestSQLiteStore(t)
	helpers.SeedSender(t, db, senderPhone)

	svc := service.New(db, service.StaticProvider(twilio.NewMockClient()), nil, nil, cfg, nil)
	e := echo.New()
	NewHandler(svc, cfg).RegisterRoutes(e)
	return e, db
}

func post(e *echo.Echo, path string, form url.Values, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if signature != "" {
		req.Header.Set(twilio.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func inboundForm(sid string) url.Values {
	return url.Values{
		"MessageSid": {sid},
		"AccountSid": {accountSID},
		"From":       {customer},
		"To":         {senderPhone},
		"Body":       {"hello"},
		"NumMedia":   {"0"},
	}
}

func TestInboundSignedRecordsMessage(t *testing.T) {
	e, db := newTestHandler(t, true)
	form := inboundForm("SM1")
	sig := twilio.Signature("token", publicURL+InboundPath, form)

	rec := post(e, InboundPath, form, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, echo.MIMEApplicationXML, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, emptyTwiML, rec.Body.String())

	msg, err := db.GetMessageByProviderSID(context.Background(), "SM1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, domain.DirectionInbound, msg.Direction)
	assert.Equal(t, "sp1", msg.SenderPhoneNumberID)
	assert.True(t, domain.IsRemoteKey(msg.ConversationKey))
}

func TestInboundBadSignature(t *testing.T) {
	t.Run("enforced", func(t *testing.T) {
		e, db := newTestHandler(t, true)
		rec := post(e, InboundPath, inboundForm("SM1"), "bogus")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		msg, err := db.GetMessageByProviderSID(context.Background(), "SM1")
		require.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("log only", func(t *testing.T) {
		e, db := newTestHandler(t, false)
		rec := post(e, InboundPath, inboundForm("SM1"), "")
		assert.Equal(t, http.StatusOK, rec.Code)

		msg, err := db.GetMessageByProviderSID(context.Background(), "SM1")
		require.NoError(t, err)
		assert.NotNil(t, msg)
	})
}

func TestInboundMissingFields(t *testing.T) {
	e, _ := newTestHandler(t, false)
	rec := post(e, InboundPath, url.Values{"Body": {"hi"}}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInboundRedeliveryIsIdempotent(t *testing.T) {
	e, db := newTestHandler(t, false)
	require.Equal(t, http.StatusOK, post(e, InboundPath, inboundForm("SM1"), "").Code)
	require.Equal(t, http.StatusOK, post(e, InboundPath, inboundForm("SM1"), "").Code)

	msgs, err := db.ListMessages(context.Background(), domain.MessageFilter{CustomerPhone: customer})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStatusCallback(t *testing.T) {
	e, db := newTestHandler(t, true)
	require.NoError(t, db.CreateMessage(context.Background(), &domain.Message{
		ID:                  "msg_1",
		Direction:           domain.DirectionOutbound,
		From:                senderPhone,
		To:                  customer,
		Body:                "hi",
		Status:              domain.MessageStatusSent,
		ProviderMessageSID:  "SM9",
		SenderPhoneNumberID: "sp1",
	}))

	form := url.Values{
		"MessageSid":    {"SM9"},
		"AccountSid":    {accountSID},
		"MessageStatus": {"delivered"},
	}
	rec := post(e, StatusPath, form, twilio.Signature("token", publicURL+StatusPath, form))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	msg, err := db.GetMessageByProviderSID(context.Background(), "SM9")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, domain.MessageStatusDelivered, msg.Status)
	assert.NotNil(t, msg.DeliveredAt)
}

func TestStatusCallbackUnknownMessage(t *testing.T) {
	e, _ := newTestHandler(t, false)
	rec := post(e, StatusPath, url.Values{"MessageSid": {"SM404"}, "MessageStatus": {"failed"}}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
