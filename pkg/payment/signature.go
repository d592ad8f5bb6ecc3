package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// VerifySignature checks an inbound callback. It fails closed when no secret is
// configured. The token must equal the secret; when a signature is supplied it must
// also be the hex HMAC-SHA256 of the raw body keyed with the secret.
func VerifySignature(secret, token, signature string, body []byte) bool {
	if secret == "" || token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return false
	}
	if signature == "" {
		return true
	}
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(secret, body)))
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
