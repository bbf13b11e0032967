package classify

import "time"

// Config tunes the classification stage.
type Config struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// ContextTurns is how many prior session turns are replayed to the model.
	ContextTurns int

	// LowConfidenceThreshold is the confidence below which the classification
	// falls back to research.
	LowConfidenceThreshold float64
}

func DefaultConfig() *Config {
	return &Config{
		Temperature:            0.3,
		MaxTokens:              256,
		Timeout:                15 * time.Second,
		ContextTurns:           6,
		LowConfidenceThreshold: 0.5,
	}
}
