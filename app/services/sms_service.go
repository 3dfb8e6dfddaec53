package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/calyxsuite/outreach/config"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/utils"
)

// SMSResult is the provider acknowledgement for one accepted message
type SMSResult struct {
	MessageID string `json:"message_id"`
	Provider  string `json:"provider"`
}

// SMSSender sends SMS messages through a tenant's configured provider
type SMSSender interface {
	Send(ctx context.Context, settings models.SMSSettings, phone, message string) (*SMSResult, error)
}

// SMSSenderImpl implements SMSSender against a JSON-over-HTTP provider API
type SMSSenderImpl struct {
	client     *http.Client
	retryCount int
}

// smsSendRequest represents the request payload for the provider send API
type smsSendRequest struct {
	Sender     string `json:"sender"`
	Recipient  string `json:"recipient"`
	Body       string `json:"body"`
	RetryCount int    `json:"retryCount,omitempty"`
}

// smsSendResponse represents the provider send API response
type smsSendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// NewSMSSender creates a new SMS sender instance
func NewSMSSender(cfg *config.SMSConfig) SMSSender {
	return &SMSSenderImpl{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount: cfg.RetryCount,
	}
}

// Send submits one message to the tenant's provider and returns the provider
// acknowledgement. The settings are validated before any request is made.
func (s *SMSSenderImpl) Send(ctx context.Context, settings models.SMSSettings, phone, message string) (*SMSResult, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("sms provider not configured: %w", err)
	}
	if phone == "" {
		return nil, fmt.Errorf("recipient phone is required")
	}

	requestBody, err := json.Marshal(smsSendRequest{
		Sender:     settings.SenderID,
		Recipient:  phone,
		Body:       message,
		RetryCount: s.retryCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	url := s.endpoint(settings)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", settings.APIKey)
	if settings.APISecret != "" {
		req.Header.Set("x-api-secret", settings.APISecret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	var result smsSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode SMS response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !strings.EqualFold(result.Status, "accepted") {
		reason := result.Error
		if reason == "" {
			reason = result.Status
		}
		return nil, fmt.Errorf("SMS delivery rejected by %s: %s (%d)", settings.Provider, reason, resp.StatusCode)
	}
	if result.MessageID == "" {
		return nil, fmt.Errorf("SMS provider %s returned no message ID", settings.Provider)
	}

	return &SMSResult{
		MessageID: result.MessageID,
		Provider:  settings.Provider,
	}, nil
}

// endpoint resolves the provider send URL. Tenants may point BaseURL at a
// regional or self-hosted gateway; the default routes by provider name.
func (s *SMSSenderImpl) endpoint(settings models.SMSSettings) string {
	if settings.BaseURL != "" {
		return strings.TrimRight(settings.BaseURL, "/") + "/v1/messages"
	}
	return fmt.Sprintf("https://%s.sms-gateway.net/v1/messages", settings.Provider)
}

// MockSMSSender implements SMSSender for testing
type MockSMSSender struct {
	SentMessages []MockSMSMessage
	SendErr      error
	NextResult   *SMSResult
}

// MockSMSMessage represents a mock SMS message
type MockSMSMessage struct {
	Settings models.SMSSettings
	Phone    string
	Message  string
	SentAt   time.Time
}

// NewMockSMSSender creates a new mock SMS sender
func NewMockSMSSender() *MockSMSSender {
	return &MockSMSSender{SentMessages: make([]MockSMSMessage, 0)}
}

// Send records the message instead of delivering it
func (m *MockSMSSender) Send(ctx context.Context, settings models.SMSSettings, phone, message string) (*SMSResult, error) {
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	m.SentMessages = append(m.SentMessages, MockSMSMessage{
		Settings: settings,
		Phone:    phone,
		Message:  message,
		SentAt:   utils.UTCNow(),
	})
	if m.NextResult != nil {
		return m.NextResult, nil
	}
	return &SMSResult{MessageID: fmt.Sprintf("mock-%d", len(m.SentMessages)), Provider: "mock"}, nil
}
