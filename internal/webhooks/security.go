package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const signatureHeader = "X-Esign-Signature"

// verifySignature checks the provider's HMAC-SHA256 hex signature over
// the raw body. An empty secret disables verification; that is the
// sandbox configuration, not the production one.
func verifySignature(headers http.Header, rawBody []byte, secret string) bool {
	if secret == "" {
		return true
	}
	sigHex := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHex == "" {
		return false
	}
	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}
