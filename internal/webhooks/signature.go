package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix names the algorithm in the X-Signature header value.
const SignaturePrefix = "sha256="

// SignHMAC returns "sha256=" followed by the lowercase hex HMAC-SHA256 of body.
func SignHMAC(secret string, body []byte) string {
	return SignaturePrefix + hex.EncodeToString(digest(secret, body))
}

// VerifyHMAC checks a signature produced by SignHMAC. Receivers may also pass
// the bare hex digest.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(provided), SignaturePrefix))
	if err != nil {
		return false
	}
	return hmac.Equal(digest(secret, body), b)
}

func digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
