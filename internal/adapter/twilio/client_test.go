package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListConversationsFollowsPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/Services/IS1/Conversations" {
			http.NotFound(w, r)
			return
		}
		page := conversationPage{}
		if r.URL.Query().Get("Page") == "" {
			page.Conversations = []Conversation{{SID: "CH1"}, {SID: "CH2"}}
			page.Meta.NextPageURL = srv.URL + "/Services/IS1/Conversations?PageSize=2&Page=1"
		} else {
			page.Conversations = []Conversation{{SID: "CH3"}}
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := NewClient("AC1", "secret", time.Second).WithBaseURL(srv.URL)

	convs, err := client.ListConversations(context.Background(), "IS1", 2, 0)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "CH3", convs[2].SID)

	convs, err = client.ListConversations(context.Background(), "IS1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestCreateParticipantSendsBindingForm(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Conversations/CH1/Participants", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sid":"MB1","conversation_sid":"CH1","messaging_binding":{"address":"+15551234567","proxy_address":"+15550000001"}}`)
	}))
	defer srv.Close()

	client := NewClient("AC1", "secret", time.Second).WithBaseURL(srv.URL)
	p, err := client.CreateParticipant(context.Background(), "", "CH1", "+15551234567", "+15550000001")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", got.Get("MessagingBinding.Address"))
	assert.Equal(t, "+15550000001", got.Get("MessagingBinding.ProxyAddress"))
	assert.Equal(t, "+15550000001", p.ProxyAddress())
}

func TestCreateParticipantConflictIsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"code":50416,"message":"A binding for this participant and proxy address already exists in Conversation CH0123456789abcdef0123456789abcdef","more_info":"https://www.twilio.com/docs/errors/50416","status":409}`)
	}))
	defer srv.Close()

	client := NewClient("AC1", "secret", time.Second).WithBaseURL(srv.URL)
	_, err := client.CreateParticipant(context.Background(), "", "CH1", "+15551234567", "+15550000001")
	require.Error(t, err)

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, CodeBindingConflict, apiErr.Code)

	key, ok := ParseBindingConflict(err)
	require.True(t, ok)
	assert.Equal(t, "CH0123456789abcdef0123456789abcdef", key)
	assert.False(t, IsAlreadyParticipant(err))
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC1/Messages.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://crm.example.com/webhooks/twilio/status", r.PostForm.Get("StatusCallback"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"sid":"SM1","to":%q,"from":%q,"body":%q,"status":"queued"}`,
			r.PostForm.Get("To"), r.PostForm.Get("From"), r.PostForm.Get("Body"))
	}))
	defer srv.Close()

	client := NewClient("AC1", "secret", time.Second).WithBaseURL(srv.URL)
	msg, err := client.SendMessage(context.Background(), SendParams{
		To: "+15551234567", From: "+15550000001", Body: "hi",
		StatusCallback: "https://crm.example.com/webhooks/twilio/status",
	})
	require.NoError(t, err)
	assert.Equal(t, "SM1", msg.SID)
	assert.Equal(t, "queued", msg.Status)
}

func TestDeleteConversationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":20404,"message":"The requested resource /Conversations/CH9 was not found","status":404}`)
	}))
	defer srv.Close()

	client := NewClient("AC1", "secret", time.Second).WithBaseURL(srv.URL)
	err := client.DeleteConversation(context.Background(), "", "CH9")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
}

func TestClientTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient("AC1", "secret", 20*time.Millisecond).WithBaseURL(srv.URL)
	_, err := client.ListConversations(context.Background(), "", 10, 10)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream unavailable")
	}))
	defer srv.Close()

	client := NewClient("AC1", "secret", time.Second).WithBaseURL(srv.URL)
	_, err := client.CreateConversation(context.Background(), "", "x")
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
	assert.True(t, IsTransient(err))
}
