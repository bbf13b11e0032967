package research

import "time"

// Config tunes the research specialist.
type Config struct {
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	MaxToolRounds int
}

func DefaultConfig() *Config {
	return &Config{
		Temperature:   0.7,
		MaxTokens:     2000,
		Timeout:       60 * time.Second,
		MaxToolRounds: 5,
	}
}
