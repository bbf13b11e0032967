package audience

import "time"

// Config tunes the audience specialist.
type Config struct {
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	MaxToolRounds int
}

func DefaultConfig() *Config {
	return &Config{
		Temperature:   0.6,
		MaxTokens:     1500,
		Timeout:       45 * time.Second,
		MaxToolRounds: 3,
	}
}
