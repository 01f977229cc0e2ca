// Package evm wraps go-ethereum's JSON-RPC client for the chains the relayer
// reads from and writes to.
package evm

import (
	"time"
)

// RPCConfig holds RPC connection settings.
type RPCConfig struct {
	URL string `yaml:"url"`

	// Timeout bounds a single dial attempt.
	Timeout time.Duration `yaml:"timeout"`

	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// WithDefaults fills unset fields.
func (c RPCConfig) WithDefaults() RPCConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 5 * time.Second
	}
	return c
}
