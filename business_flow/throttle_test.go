package businessflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/calyxsuite/outreach/models"
	"github.com/stretchr/testify/assert"
)

func TestDelayFor(t *testing.T) {
	t.Run("first recipient is never delayed", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), DelayFor(0, 100))
		assert.Equal(t, time.Duration(0), DelayFor(0, 1))
	})

	t.Run("negative index and rate return zero", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), DelayFor(-1, 100))
		assert.Equal(t, time.Duration(0), DelayFor(5, 0))
		assert.Equal(t, time.Duration(0), DelayFor(5, -10))
	})

	t.Run("rate 60 ramps one second per index", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), DelayFor(0, 60))
		assert.Equal(t, time.Second, DelayFor(1, 60))
		assert.Equal(t, 2*time.Second, DelayFor(2, 60))
	})

	t.Run("delay is floored to whole seconds", func(t *testing.T) {
		// floor(1*60/45) = 1, floor(2*60/45) = 2, floor(3*60/45) = 4
		assert.Equal(t, time.Second, DelayFor(1, 45))
		assert.Equal(t, 2*time.Second, DelayFor(2, 45))
		assert.Equal(t, 4*time.Second, DelayFor(3, 45))
	})

	t.Run("delays never decrease as index grows", func(t *testing.T) {
		for _, rate := range []int{1, 7, 30, 45, 60, 100, 1000} {
			prev := time.Duration(-1)
			for index := 0; index < 500; index++ {
				d := DelayFor(index, rate)
				assert.GreaterOrEqual(t, d, prev, "rate %d index %d", rate, index)
				prev = d
			}
		}
	})
}

func TestResolveThrottleRate(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		fallback int
		want     int
	}{
		{name: "nil falls back", raw: nil, fallback: 100, want: 100},
		{name: "zero falls back", raw: 0, fallback: 100, want: 100},
		{name: "negative falls back", raw: -5, fallback: 30, want: 30},
		{name: "non-numeric string falls back", raw: "abc", fallback: 100, want: 100},
		{name: "positive int wins", raw: 45, fallback: 100, want: 45},
		{name: "positive int64 wins", raw: int64(45), fallback: 100, want: 45},
		{name: "jsonb float wins", raw: float64(45), fallback: 100, want: 45},
		{name: "negative float falls back", raw: float64(-1.5), fallback: 30, want: 30},
		{name: "numeric string wins", raw: "45", fallback: 100, want: 45},
		{name: "json number wins", raw: json.Number("45"), fallback: 100, want: 45},
		{name: "bool falls back", raw: true, fallback: 100, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveThrottleRate(tt.raw, tt.fallback))
		})
	}
}

func TestDefaultRateFor(t *testing.T) {
	assert.Equal(t, DefaultEmailRatePerMinute, DefaultRateFor(models.CampaignChannelEmail))
	assert.Equal(t, DefaultSMSRatePerMinute, DefaultRateFor(models.CampaignChannelSMS))
}

func TestThrottleRateFromJSONSettings(t *testing.T) {
	// Settings round-trip through jsonb, so numbers come back as float64
	var settings models.CampaignSettings
	err := json.Unmarshal([]byte(`{"throttle_rate_per_minute": 45}`), &settings)
	assert.NoError(t, err)
	assert.Equal(t, 45, ResolveThrottleRate(settings.ThrottleRate(), 100))
}
