package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// SignatureHeader carries the hex-encoded HMAC of a webhook body.
const SignatureHeader = "X-Webhook-Signature"

// KeyFromEnv returns the shared secret used to sign classification webhooks.
// Priority:
// 1) WEBHOOK_SECRET
// 2) JWT_SECRET
func KeyFromEnv() []byte {
	if v := strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")); v != "" {
		return []byte(v)
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		return []byte(v)
	}
	return []byte("SUPER_SECRET_KEY_CHANGE_ME")
}

// SignPayload computes the hex HMAC-SHA256 of body under the shared secret.
func SignPayload(body []byte) string {
	mac := hmac.New(sha256.New, KeyFromEnv())
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the HMAC of body.
// Comparison is constant-time.
func VerifySignature(body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, KeyFromEnv())
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
