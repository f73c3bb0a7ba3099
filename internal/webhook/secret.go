package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Settings keys for webhook state.
const (
	secretKey    = "webhook_secret"
	webhookIDKey = "webhook_id"
)

// SecretStore persists pipeline key/value settings.
type SecretStore interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

// EnsureSecret returns the persisted webhook signing secret, generating
// and storing one on first use.
func EnsureSecret(ctx context.Context, store SecretStore) (string, error) {
	secret, err := store.GetValue(ctx, secretKey)
	if err != nil {
		return "", fmt.Errorf("load webhook secret: %w", err)
	}
	if secret != "" {
		return secret, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	if err := store.SetValue(ctx, secretKey, secret); err != nil {
		return "", fmt.Errorf("persist webhook secret: %w", err)
	}
	return secret, nil
}

// Sign returns the hex HMAC-SHA256 signature for a body, as expected in
// the SignatureHeader of an inbound delivery.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
