package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

var testEmail = model.Email{To: "buyer@example.com", Subject: "Your order", HTML: "<p>Thanks</p>"}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func TestResendProviderSend(t *testing.T) {
	var got resendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer server.Close()

	provider, err := NewResendProvider(ResendConfig{APIKey: "re_test", BaseURL: server.URL + "/", From: "Store <orders@example.com>"})
	require.NoError(t, err)
	require.NoError(t, provider.Send(context.Background(), testEmail))
	assert.Equal(t, "resend", provider.Name())
	assert.Equal(t, []string{"buyer@example.com"}, got.To)
	assert.Equal(t, "Store <orders@example.com>", got.From)
	assert.Equal(t, "Your order", got.Subject)
	assert.Equal(t, "<p>Thanks</p>", got.HTML)
}

func TestResendProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from address"}`))
	}))
	defer server.Close()

	provider, err := NewResendProvider(ResendConfig{APIKey: "re_test", BaseURL: server.URL, From: "orders@example.com"})
	require.NoError(t, err)
	err = provider.Send(context.Background(), testEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from address")
	assert.Contains(t, err.Error(), "buyer@example.com")
}

func TestResendProviderBadBaseURL(t *testing.T) {
	_, err := NewResendProvider(ResendConfig{APIKey: "re_test", BaseURL: "://missing-scheme"})
	assert.Error(t, err)
}

func TestProvidersWithoutCredentials(t *testing.T) {
	resend, err := NewResendProvider(ResendConfig{From: "orders@example.com"})
	require.NoError(t, err)
	assert.ErrorIs(t, resend.Send(context.Background(), testEmail), model.ErrProviderNotConfigured)

	smtp := NewSMTPProvider(SMTPConfig{From: "orders@example.com"})
	assert.Equal(t, "smtp", smtp.Name())
	assert.ErrorIs(t, smtp.Send(context.Background(), testEmail), model.ErrProviderNotConfigured)
}

func TestSMTPProviderBuildsMessage(t *testing.T) {
	provider := NewSMTPProvider(SMTPConfig{Host: "smtp.example.com", Username: "user", Password: "secret", From: "orders@example.com"})
	msg, err := provider.message(testEmail)
	require.NoError(t, err)
	require.Len(t, msg.GetToString(), 1)
	assert.Contains(t, msg.GetToString()[0], "buyer@example.com")

	_, err = provider.message(model.Email{To: "not an address"})
	assert.Error(t, err)

	client, err := provider.client()
	require.NoError(t, err)
	assert.NotNil(t, client)
}
