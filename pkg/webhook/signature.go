package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks a webhook signature: the hex-encoded HMAC-SHA256 of
// the exact raw request bytes under the shared secret. It returns false for
// an absent or undecodable signature and never panics. The digest comparison
// is constant-time.
func VerifySignature(rawBody []byte, signatureHex string, secret string) bool {
	if signatureHex == "" {
		return false
	}

	supplied, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), supplied)
}

// SignBody computes the hex signature the sender is expected to supply.
// Exposed for tests and for signing outbound test traffic.
func SignBody(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
