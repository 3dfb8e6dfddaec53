package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/calyxsuite/outreach/config"
	"github.com/calyxsuite/outreach/utils"
	"github.com/golang-jwt/jwt/v5"
)

// Tracking service error constants
var (
	ErrTrackingTokenInvalid = errors.New("invalid tracking token")
	ErrUnsubscribeExpired   = errors.New("unsubscribe link has expired")
	ErrUnsubscribeInvalid   = errors.New("invalid unsubscribe link")
)

// TrackingTokenService builds and verifies the tokens and URLs embedded into
// outbound email: click redirects, the open pixel, and unsubscribe links.
type TrackingTokenService interface {
	Encode(recipientID uint) (string, error)
	Decode(token string) (uint, error)
	ClickURL(recipientID uint, destination string) (string, error)
	OpenPixelURL(recipientID uint) (string, error)
	SignedUnsubscribeURL(contactID uint, ttl time.Duration) (string, error)
	VerifyUnsubscribeToken(token string) (uint, error)
}

// UnsubscribeClaims represents the claims in a signed unsubscribe token
type UnsubscribeClaims struct {
	ContactID uint   `json:"contact_id"`
	Action    string `json:"action"`
	jwt.RegisteredClaims
}

// TrackingTokenServiceImpl implements TrackingTokenService
type TrackingTokenServiceImpl struct {
	secretKey     []byte
	publicBaseURL string
	issuer        string
}

// NewTrackingTokenService creates a new tracking token service
func NewTrackingTokenService(cfg *config.TrackingConfig) (TrackingTokenService, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("tracking secret key is required")
	}
	return &TrackingTokenServiceImpl{
		secretKey:     []byte(cfg.SecretKey),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		issuer:        cfg.Issuer,
	}, nil
}

// Encode produces an opaque, HMAC-signed token carrying the recipient ID
func (s *TrackingTokenServiceImpl) Encode(recipientID uint) (string, error) {
	if recipientID == 0 {
		return "", fmt.Errorf("recipient ID is required")
	}

	payload := strconv.FormatUint(uint64(recipientID), 10)
	sig := s.sign(payload)

	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig, nil
}

// Decode verifies the token signature and returns the recipient ID
func (s *TrackingTokenServiceImpl) Decode(token string) (uint, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return 0, ErrTrackingTokenInvalid
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return 0, ErrTrackingTokenInvalid
	}
	payload := string(payloadBytes)

	expected := s.sign(payload)
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return 0, ErrTrackingTokenInvalid
	}

	id, err := strconv.ParseUint(payload, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrTrackingTokenInvalid
	}

	return uint(id), nil
}

// ClickURL builds the click-tracking redirect URL for one recipient and one
// original destination. The destination travels URL-encoded in the query.
func (s *TrackingTokenServiceImpl) ClickURL(recipientID uint, destination string) (string, error) {
	token, err := s.Encode(recipientID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/t/click/%s?url=%s", s.publicBaseURL, token, url.QueryEscape(destination)), nil
}

// OpenPixelURL builds the 1x1 open-tracking pixel URL for one recipient
func (s *TrackingTokenServiceImpl) OpenPixelURL(recipientID uint) (string, error) {
	token, err := s.Encode(recipientID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/t/open/%s", s.publicBaseURL, token), nil
}

// SignedUnsubscribeURL builds a time-limited unsubscribe URL for a contact
func (s *TrackingTokenServiceImpl) SignedUnsubscribeURL(contactID uint, ttl time.Duration) (string, error) {
	if contactID == 0 {
		return "", fmt.Errorf("contact ID is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("unsubscribe TTL must be positive")
	}

	now := utils.UTCNow()
	claims := UnsubscribeClaims{
		ContactID: contactID,
		Action:    "unsubscribe",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(contactID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign unsubscribe token: %w", err)
	}

	return fmt.Sprintf("%s/u/%s", s.publicBaseURL, token), nil
}

// VerifyUnsubscribeToken validates a signed unsubscribe token and returns the
// contact it is scoped to
func (s *TrackingTokenServiceImpl) VerifyUnsubscribeToken(tokenString string) (uint, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UnsubscribeClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrUnsubscribeExpired
		}
		return 0, ErrUnsubscribeInvalid
	}

	claims, ok := token.Claims.(*UnsubscribeClaims)
	if !ok || !token.Valid || claims.Action != "unsubscribe" || claims.ContactID == 0 {
		return 0, ErrUnsubscribeInvalid
	}

	return claims.ContactID, nil
}

func (s *TrackingTokenServiceImpl) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
