package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the gateway's callback signature.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// SignPayload computes the callback signature the gateway attaches to
// status webhooks: hex HMAC-SHA256 of the raw body with a shared secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback signature in constant time. An empty
// header never verifies.
func VerifySignature(secret string, body []byte, header string) bool {
	if header == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	expected := SignPayload(secret, body)
	return hmac.Equal([]byte(expected), []byte(header))
}
