package config

import "time"

type Limits struct {
	MaxAttempts int             `yaml:"max_attempts" validate:"required,min=1,max=10"`
	BaseDelay   time.Duration   `yaml:"base_delay" validate:"min=0,max=1m"`
	MaxJitter   time.Duration   `yaml:"max_jitter" validate:"min=0,max=1m"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxJitter:   time.Second,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
		},
	}
}
