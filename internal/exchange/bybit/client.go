// Package bybit fetches historical klines from the Bybit v5 market API.
// It covers public market-data endpoints only; there is no order or
// account surface.
package bybit

import (
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"
)

// Config holds the connection settings. Market klines are public, so the
// key pair may be left empty.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// Client is a thin kline client over the Bybit HTTP API.
type Client struct {
	httpClient *bybit_api.Client
	logger     zerolog.Logger
	retry      RetryConfig
	throttle   time.Duration
	testnet    bool
}

// NewClient returns a client against mainnet, or testnet when configured.
func NewClient(config Config) *Client {
	baseURL := bybit_api.MAINNET
	if config.Testnet {
		baseURL = bybit_api.TESTNET
	}

	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(
			config.APIKey,
			config.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		logger:   zerolog.Nop(),
		retry:    DefaultRetryConfig(),
		throttle: defaultThrottle,
		testnet:  config.Testnet,
	}
}

// SetLogger attaches a logger. The default discards everything.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// SetRetryConfig replaces the retry policy for subsequent requests.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.retry = cfg
}

// SetThrottle sets the pause between paginated requests. Public market
// endpoints allow roughly 120 requests per minute.
func (c *Client) SetThrottle(d time.Duration) {
	c.throttle = d
}

// Environment names the endpoint the client talks to.
func (c *Client) Environment() string {
	if c.testnet {
		return "testnet"
	}
	return "mainnet"
}
