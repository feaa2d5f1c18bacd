package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Delivery payloads are signed with the subscription secret so receivers
// can reject forged run and dispatch events. The X-Signature header carries
// the hex HMAC-SHA256 of the exact body bytes.

func digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHMAC produces the signature header value for a payload.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(digest(secret, body))
}

// VerifyHMAC reports whether a received signature matches the payload.
// Comparison is constant-time.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	raw, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(digest(secret, body), raw)
}
