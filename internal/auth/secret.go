// Package auth issues and validates the hub's session tokens.
package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
)

const secretLength = 48

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSecret creates a random alphanumeric HS256 signing secret and
// writes it to dataDir/token-secret with permissions 0600.
func GenerateSecret(dataDir string) (string, error) {
	secret, err := randomAlphanumeric(secretLength)
	if err != nil {
		return "", fmt.Errorf("generating signing secret: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	path := secretPath(dataDir)
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		return "", fmt.Errorf("writing secret to %s: %w", path, err)
	}

	return secret, nil
}

// LoadOrGenerateSecret returns the token-signing secret using this priority:
//  1. HUB_TOKEN_SECRET environment variable (also written to disk so restarts
//     without the env var set keep validating previously issued tokens)
//  2. Existing secret file on disk
//  3. Newly generated secret
func LoadOrGenerateSecret(dataDir string) (string, error) {
	if envSecret := strings.TrimSpace(os.Getenv("HUB_TOKEN_SECRET")); envSecret != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return "", fmt.Errorf("creating data dir: %w", err)
		}
		path := secretPath(dataDir)
		if err := os.WriteFile(path, []byte(envSecret), 0600); err != nil {
			return "", fmt.Errorf("writing secret to %s: %w", path, err)
		}
		return envSecret, nil
	}

	path := secretPath(dataDir)
	if data, err := os.ReadFile(path); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
	}

	return GenerateSecret(dataDir)
}

func secretPath(dataDir string) string {
	return filepath.Join(dataDir, "token-secret")
}

func randomAlphanumeric(n int) (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}
