package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calyxsuite/outreach/config"
	"github.com/calyxsuite/outreach/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSMSSettings(baseURL string) models.SMSSettings {
	return models.SMSSettings{
		Provider:  "testgate",
		APIKey:    "key-123",
		APISecret: "secret-456",
		SenderID:  "TESTCO",
		BaseURL:   baseURL,
	}
}

func newTestSMSSender() SMSSender {
	return NewSMSSender(&config.SMSConfig{Timeout: 5 * time.Second, RetryCount: 2})
}

func TestSMSSenderSend(t *testing.T) {
	var gotRequest smsSendRequest
	var gotHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		assert.Equal(t, "/v1/messages", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(smsSendResponse{MessageID: "msg-001", Status: "accepted"})
	}))
	defer server.Close()

	sender := newTestSMSSender()
	result, err := sender.Send(context.Background(), testSMSSettings(server.URL), "+14155550100", "Hello there")
	require.NoError(t, err)

	assert.Equal(t, "msg-001", result.MessageID)
	assert.Equal(t, "testgate", result.Provider)

	assert.Equal(t, "TESTCO", gotRequest.Sender)
	assert.Equal(t, "+14155550100", gotRequest.Recipient)
	assert.Equal(t, "Hello there", gotRequest.Body)
	assert.Equal(t, 2, gotRequest.RetryCount)

	assert.Equal(t, "key-123", gotHeaders.Get("x-api-key"))
	assert.Equal(t, "secret-456", gotHeaders.Get("x-api-secret"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
}

func TestSMSSenderRejectedByProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(smsSendResponse{Status: "rejected", Error: "invalid recipient"})
	}))
	defer server.Close()

	sender := newTestSMSSender()
	_, err := sender.Send(context.Background(), testSMSSettings(server.URL), "+14155550100", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestSMSSenderMissingMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(smsSendResponse{Status: "accepted"})
	}))
	defer server.Close()

	sender := newTestSMSSender()
	_, err := sender.Send(context.Background(), testSMSSettings(server.URL), "+14155550100", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message ID")
}

func TestSMSSenderValidatesSettings(t *testing.T) {
	sender := newTestSMSSender()

	tests := []struct {
		name     string
		settings models.SMSSettings
		phone    string
	}{
		{name: "missing provider", settings: models.SMSSettings{APIKey: "k", SenderID: "S"}, phone: "+14155550100"},
		{name: "missing api key", settings: models.SMSSettings{Provider: "p", SenderID: "S"}, phone: "+14155550100"},
		{name: "missing sender id", settings: models.SMSSettings{Provider: "p", APIKey: "k"}, phone: "+14155550100"},
		{name: "missing phone", settings: testSMSSettings(""), phone: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sender.Send(context.Background(), tt.settings, tt.phone, "Hello")
			assert.Error(t, err)
		})
	}
}
