package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Chain access. RPC_URL is a plain node endpoint for reads; BUNDLER_URL
	// is the sponsored relay that submits transactions on the agent's behalf.
	RPCURL       string `env:"RPC_URL,required"`
	BundlerURL   string `env:"BUNDLER_URL,required"`
	PaymasterURL string `env:"PAYMASTER_URL"`
	Network      string `env:"NETWORK" envDefault:"base-sepolia"`

	// The agent's spender key. A missing or malformed key is a startup
	// failure, never a per-message one.
	SpenderPrivateKey string `env:"SPENDER_PRIVATE_KEY,required"`

	// Per-message fee in the token's smallest unit, as a decimal string.
	MessageFee   string `env:"MESSAGE_FEE" envDefault:"50000"`
	TokenAddress string `env:"TOKEN_ADDRESS" envDefault:"0x036CbD53842c5426634e7929541eC2318f3dCF7e"`

	// Optional delivery webhook for the outbound message transport.
	TransportWebhookURL string `env:"TRANSPORT_WEBHOOK_URL"`

	RateLimitPerMin int `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.TokenAddress, "0x") || len(c.TokenAddress) != 42 {
		return fmt.Errorf("TOKEN_ADDRESS must be a 0x-prefixed 20-byte address")
	}
	if c.MessageFee == "" {
		return fmt.Errorf("MESSAGE_FEE must not be empty")
	}
	for _, r := range c.MessageFee {
		if r < '0' || r > '9' {
			return fmt.Errorf("MESSAGE_FEE must be a decimal integer in the token's smallest unit")
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
