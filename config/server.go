package config

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// CORSOrigins lists the browser origins allowed to call the API.
	// Empty allows any origin.
	CORSOrigins []string `json:"cors_origins"`
	// APIToken enables bearer authentication on mutating routes when set.
	APIToken               string `json:"api_token"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 6139
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		c.ShutdownTimeoutSeconds = 5
	}
}

func (c ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port out of range")
	}
	return nil
}

// Addr is the listen address.
func (c ServerConfig) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// StoreConfig locates the SQLite ledger.
type StoreConfig struct {
	Path string `json:"path"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "chargers.db"
	}
}
