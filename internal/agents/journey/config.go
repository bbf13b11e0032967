package journey

import "time"

// Config tunes the journey specialist.
type Config struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// ControlGroupPercent is used when the model omits a control group.
	ControlGroupPercent float64
}

func DefaultConfig() *Config {
	return &Config{
		Temperature:         0.7,
		MaxTokens:           2500,
		Timeout:             45 * time.Second,
		ControlGroupPercent: 15,
	}
}
