package services

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/calyxsuite/outreach/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestTrackingService(t *testing.T) TrackingTokenService {
	t.Helper()
	svc, err := NewTrackingTokenService(&config.TrackingConfig{
		SecretKey:     "test-tracking-secret-key-32-chars!!",
		PublicBaseURL: "https://track.example.com/",
		Issuer:        "outreach-test",
	})
	require.NoError(t, err)
	return svc
}

func TestNewTrackingTokenService(t *testing.T) {
	_, err := NewTrackingTokenService(&config.TrackingConfig{SecretKey: ""})
	assert.Error(t, err)
}

func TestTrackingTokenRoundTrip(t *testing.T) {
	svc := createTestTrackingService(t)

	token, err := svc.Encode(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := svc.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestTrackingTokenRejectsTampering(t *testing.T) {
	svc := createTestTrackingService(t)

	token, err := svc.Encode(42)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "missing signature", token: strings.SplitN(token, ".", 2)[0]},
		{name: "flipped signature byte", token: token[:len(token)-1] + "x"},
		{name: "swapped payload", token: "OTk" + token[3:]},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Decode(tt.token)
			assert.ErrorIs(t, err, ErrTrackingTokenInvalid)
		})
	}
}

func TestTrackingTokenRejectsForeignKey(t *testing.T) {
	svc := createTestTrackingService(t)
	other, err := NewTrackingTokenService(&config.TrackingConfig{
		SecretKey:     "a-different-secret-key-32-chars!!!!",
		PublicBaseURL: "https://track.example.com",
	})
	require.NoError(t, err)

	token, err := other.Encode(42)
	require.NoError(t, err)

	_, err = svc.Decode(token)
	assert.ErrorIs(t, err, ErrTrackingTokenInvalid)
}

func TestClickURL(t *testing.T) {
	svc := createTestTrackingService(t)

	destination := "https://example.com/offer?a=1&b=2"
	clickURL, err := svc.ClickURL(42, destination)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(clickURL, "https://track.example.com/t/click/"))
	assert.Contains(t, clickURL, "?url="+url.QueryEscape(destination))

	// The destination survives a parse round trip
	parsed, err := url.Parse(clickURL)
	require.NoError(t, err)
	assert.Equal(t, destination, parsed.Query().Get("url"))
}

func TestOpenPixelURL(t *testing.T) {
	svc := createTestTrackingService(t)

	pixelURL, err := svc.OpenPixelURL(42)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(pixelURL, "https://track.example.com/t/open/"))

	// The final path segment is the bare token, nothing appended after it
	token := strings.TrimPrefix(pixelURL, "https://track.example.com/t/open/")
	id, err := svc.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestSignedUnsubscribeURL(t *testing.T) {
	svc := createTestTrackingService(t)

	t.Run("round trip", func(t *testing.T) {
		unsubURL, err := svc.SignedUnsubscribeURL(7, 30*24*time.Hour)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(unsubURL, "https://track.example.com/u/"))

		token := strings.TrimPrefix(unsubURL, "https://track.example.com/u/")
		contactID, err := svc.VerifyUnsubscribeToken(token)
		require.NoError(t, err)
		assert.Equal(t, uint(7), contactID)
	})

	t.Run("zero contact rejected", func(t *testing.T) {
		_, err := svc.SignedUnsubscribeURL(0, time.Hour)
		assert.Error(t, err)
	})

	t.Run("non-positive ttl rejected", func(t *testing.T) {
		_, err := svc.SignedUnsubscribeURL(7, 0)
		assert.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		unsubURL, err := svc.SignedUnsubscribeURL(7, time.Millisecond)
		require.NoError(t, err)

		// Claim timestamps have second precision
		time.Sleep(1100 * time.Millisecond)

		token := strings.TrimPrefix(unsubURL, "https://track.example.com/u/")
		_, err = svc.VerifyUnsubscribeToken(token)
		assert.ErrorIs(t, err, ErrUnsubscribeExpired)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		unsubURL, err := svc.SignedUnsubscribeURL(7, time.Hour)
		require.NoError(t, err)

		token := strings.TrimPrefix(unsubURL, "https://track.example.com/u/")
		_, err = svc.VerifyUnsubscribeToken(token + "x")
		assert.ErrorIs(t, err, ErrUnsubscribeInvalid)
	})
}
