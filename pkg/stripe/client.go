// Package stripe holds the platform Stripe credentials and the Connect
// defaults shared by the payment gateway and the webhook endpoint.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const defaultAccountCountry = "US"

// keyPrefixes lists the secret and restricted key prefixes accepted per mode.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	ErrMissingAPIKey     = errors.New("stripe: api key missing")
	ErrMissingSigningKey = errors.New("stripe: webhook signing secret missing")
	ErrMissingCurrency   = errors.New("stripe: settlement currency missing")
)

// Settings are applied to every Connect request the gateway builds.
type Settings struct {
	Currency       string
	AccountCountry string
	SuccessURL     string
	CancelURL      string
}

type Client struct {
	mode     string
	whSecret string
	settings Settings
}

// NewClient checks the key matches the configured mode before installing it
// as the process-wide stripe-go key.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	prefixes, known := keyPrefixes[mode]
	if !known {
		return nil, fmt.Errorf("stripe: unknown mode %q", mode)
	}

	key := strings.TrimSpace(cfg.APIKey)
	switch {
	case key == "":
		return nil, ErrMissingAPIKey
	case !hasAnyPrefix(key, prefixes):
		return nil, fmt.Errorf("stripe: %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	c := &Client{mode: mode, whSecret: strings.TrimSpace(cfg.Secret)}
	if c.whSecret == "" {
		return nil, ErrMissingSigningKey
	}

	c.settings = Settings{
		Currency:       strings.ToLower(strings.TrimSpace(cfg.Currency)),
		AccountCountry: strings.ToUpper(strings.TrimSpace(cfg.Country)),
		SuccessURL:     strings.TrimSpace(cfg.SuccessURL),
		CancelURL:      strings.TrimSpace(cfg.CancelURL),
	}
	if c.settings.Currency == "" {
		return nil, ErrMissingCurrency
	}
	if c.settings.AccountCountry == "" {
		c.settings.AccountCountry = defaultAccountCountry
	}

	stripe.Key = key
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_mode": mode,
			"currency":    c.settings.Currency,
		}), "stripe configured")
	}
	return c, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.whSecret
}

func (c *Client) Settings() Settings {
	if c == nil {
		return Settings{}
	}
	return c.settings
}
