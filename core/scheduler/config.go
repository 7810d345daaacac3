package scheduler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the planning parameters.
type Config struct {
	// WindowStart and WindowEnd bound the fire hours: [start, end).
	WindowStart int
	WindowEnd   int
	// MaxDaily is both the largest plan size and the per-day fire cap.
	MaxDaily      int
	MinTx         decimal.Decimal
	MaxTx         decimal.Decimal
	FlipInterval  time.Duration
	ResetInterval time.Duration
}

// DefaultConfig returns the stock simulation parameters.
func DefaultConfig() Config {
	return Config{
		WindowStart:   8,
		WindowEnd:     22,
		MaxDaily:      4,
		MinTx:         decimal.RequireFromString("0.0001"),
		MaxTx:         decimal.RequireFromString("0.0002"),
		FlipInterval:  time.Hour,
		ResetInterval: 24 * time.Hour,
	}
}

// Validate rejects windows and ranges the planner cannot draw from.
func (c Config) Validate() error {
	if c.WindowStart < 0 || c.WindowEnd > 24 || c.WindowStart >= c.WindowEnd {
		return fmt.Errorf("invalid window [%d, %d)", c.WindowStart, c.WindowEnd)
	}
	if c.MaxDaily < 0 {
		return fmt.Errorf("max daily charges must not be negative")
	}
	if !c.MinTx.IsPositive() || c.MaxTx.LessThan(c.MinTx) {
		return fmt.Errorf("invalid deposit range [%s, %s]", c.MinTx, c.MaxTx)
	}
	if c.FlipInterval <= 0 || c.ResetInterval <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}
