package campaign

import "time"

// Config tunes the campaign specialist.
type Config struct {
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	MaxToolRounds int

	// DefaultDurationDays is assumed when the campaign dates are absent or
	// unparseable.
	DefaultDurationDays int
}

func DefaultConfig() *Config {
	return &Config{
		Temperature:         0.7,
		MaxTokens:           3000,
		Timeout:             90 * time.Second,
		MaxToolRounds:       3,
		DefaultDurationDays: 30,
	}
}
