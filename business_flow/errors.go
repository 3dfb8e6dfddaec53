// Package businessflow contains the core business logic for campaign broadcasting
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrCampaignNotScheduled   = errors.New("campaign is not in a broadcastable status")
	ErrCampaignAlreadyRunning = errors.New("campaign broadcast is already running")
	ErrCampaignChannelInvalid = errors.New("campaign channel is invalid")

	// Segment-related errors
	ErrSegmentNotFound     = errors.New("segment not found")
	ErrSegmentAccessDenied = errors.New("segment belongs to another user")

	// Delivery-related errors
	ErrMailSettingsMissing = errors.New("mail settings are not configured")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsCampaignAlreadyRunning(err error) bool {
	return errors.Is(err, ErrCampaignAlreadyRunning)
}
