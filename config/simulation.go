package config

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SimulationConfig drives the deposit scheduler.
type SimulationConfig struct {
	MinTxETH float64 `json:"min_tx_eth"`
	MaxTxETH float64 `json:"max_tx_eth"`
	// WindowStart and WindowEnd bound the local hours in which deposits are
	// planned, end exclusive.
	WindowStart         int    `json:"window_start"`
	WindowEnd           int    `json:"window_end"`
	MaxDailyCharges     int    `json:"max_daily_charges"`
	RestartDelaySeconds int    `json:"restart_delay_seconds"`
	FlipIntervalMinutes int    `json:"flip_interval_minutes"`
	ResetIntervalHours  int    `json:"reset_interval_hours"`
	SeedFile            string `json:"seed_file"`
}

func (c *SimulationConfig) SetDefaults() {
	if c.MinTxETH == 0 {
		c.MinTxETH = 0.0001
	}
	if c.MaxTxETH == 0 {
		c.MaxTxETH = 0.0002
	}
	if c.WindowStart == 0 && c.WindowEnd == 0 {
		c.WindowStart, c.WindowEnd = 8, 22
	}
	if c.MaxDailyCharges == 0 {
		c.MaxDailyCharges = 4
	}
	if c.RestartDelaySeconds == 0 {
		c.RestartDelaySeconds = 3
	}
	if c.FlipIntervalMinutes == 0 {
		c.FlipIntervalMinutes = 60
	}
	if c.ResetIntervalHours == 0 {
		c.ResetIntervalHours = 24
	}
	if c.SeedFile == "" {
		c.SeedFile = "chargers.json"
	}
}

func (c SimulationConfig) Validate() error {
	if c.MinTxETH <= 0 || c.MaxTxETH < c.MinTxETH {
		return errors.New("require 0 < min_tx_eth <= max_tx_eth")
	}
	if c.WindowStart < 0 || c.WindowEnd > 24 || c.WindowStart >= c.WindowEnd {
		return errors.New("require 0 <= window_start < window_end <= 24")
	}
	if c.MaxDailyCharges < 0 {
		return errors.New("max_daily_charges must not be negative")
	}
	if c.RestartDelaySeconds < 0 || c.FlipIntervalMinutes < 0 || c.ResetIntervalHours < 0 {
		return errors.New("intervals must not be negative")
	}
	return nil
}

// MinTx and MaxTx are the deposit bounds rounded to 6 decimals.
func (c SimulationConfig) MinTx() decimal.Decimal { return decimal.NewFromFloat(c.MinTxETH).Round(6) }
func (c SimulationConfig) MaxTx() decimal.Decimal { return decimal.NewFromFloat(c.MaxTxETH).Round(6) }

func (c SimulationConfig) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelaySeconds) * time.Second
}

// FlipInterval is the period of the random status sweep.
func (c SimulationConfig) FlipInterval() time.Duration {
	return time.Duration(c.FlipIntervalMinutes) * time.Minute
}

func (c SimulationConfig) ResetInterval() time.Duration {
	return time.Duration(c.ResetIntervalHours) * time.Hour
}
