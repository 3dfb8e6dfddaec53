package businessflow

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/calyxsuite/outreach/models"
)

// Default per-channel throttle rates, in messages per minute
const (
	DefaultEmailRatePerMinute = 100
	DefaultSMSRatePerMinute   = 30
)

// DefaultRateFor returns the built-in throttle rate for a channel
func DefaultRateFor(channel models.CampaignChannel) int {
	if channel == models.CampaignChannelSMS {
		return DefaultSMSRatePerMinute
	}
	return DefaultEmailRatePerMinute
}

// ResolveThrottleRate normalizes a raw settings value into a usable rate.
// Settings arrive from jsonb, so the value may be a float64, an int, a
// json.Number, or a string. Anything non-numeric or not strictly positive
// falls back to the channel default.
func ResolveThrottleRate(raw any, channelDefault int) int {
	switch v := raw.(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	case json.Number:
		if f, err := v.Float64(); err == nil && f > 0 {
			return int(f)
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return int(f)
		}
	}
	return channelDefault
}

// DelayFor returns the send delay for the recipient at position index in the
// broadcast order: floor(index * 60 / ratePerMinute) seconds. Integer
// arithmetic keeps the ramp exact; the first recipient is never delayed and
// delays never decrease as the index grows.
func DelayFor(index, ratePerMinute int) time.Duration {
	if index <= 0 || ratePerMinute <= 0 {
		return 0
	}
	return time.Duration(int64(index)*60/int64(ratePerMinute)) * time.Second
}
