package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables consulted before the secret files.
const (
	TokenEnv   = "PLENT_TOKEN"
	WebhookEnv = "PLENT_WEBHOOK"
)

// ErrNoToken is returned when no gateway token is configured.
var ErrNoToken = errors.New("no token: set " + TokenEnv + " or write a token file")

// Token returns the platform token from the environment or the `token`
// file next to the configuration.
func (c *Config) Token() (string, error) {
	tok, err := secret(TokenEnv, filepath.Join(c.dir, "token"))
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// WebhookURL returns the audit webhook: the environment, the `webhook`
// file, then the audit.webhook_url key. An empty result disables audit
// delivery.
func (c *Config) WebhookURL() (string, error) {
	url, err := secret(WebhookEnv, filepath.Join(c.dir, "webhook"))
	if err != nil {
		return "", err
	}
	if url == "" {
		url = c.Audit.WebhookURL
	}
	return url, nil
}

func secret(env, file string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return strings.TrimSpace(string(data)), nil
}
