package poll

import "time"

// Config holds the tunables of the room engine.
type Config struct {
	// Requested durations are clamped to [MinDuration, MaxDuration].
	MinDuration     time.Duration
	MaxDuration     time.Duration
	DefaultDuration time.Duration

	// TickInterval is the wall time between two countdown decrements.
	TickInterval time.Duration

	// RetentionPeriod is how long an ended poll stays visible before eviction.
	RetentionPeriod time.Duration

	CodeLength      int
	MaxCodeAttempts int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinDuration:     60 * time.Second,
		MaxDuration:     48 * time.Hour,
		DefaultDuration: time.Hour,
		TickInterval:    time.Second,
		RetentionPeriod: time.Hour,
		CodeLength:      6,
		MaxCodeAttempts: 32,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinDuration <= 0 {
		c.MinDuration = d.MinDuration
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.MaxDuration < c.MinDuration {
		c.MaxDuration = c.MinDuration
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = d.DefaultDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.RetentionPeriod <= 0 {
		c.RetentionPeriod = d.RetentionPeriod
	}
	if c.CodeLength <= 0 {
		c.CodeLength = d.CodeLength
	}
	if c.MaxCodeAttempts <= 0 {
		c.MaxCodeAttempts = d.MaxCodeAttempts
	}
	return c
}

// ClampDuration converts a requested duration in seconds into the room's
// countdown length. Zero selects the default.
func (c Config) ClampDuration(seconds int) int {
	if seconds == 0 {
		seconds = int(c.DefaultDuration / time.Second)
	}
	minSec := int(c.MinDuration / time.Second)
	maxSec := int(c.MaxDuration / time.Second)
	if seconds < minSec {
		return minSec
	}
	if seconds > maxSec {
		return maxSec
	}
	return seconds
}
