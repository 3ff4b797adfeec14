package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Line-Signature"

func VerifySignature(body []byte, signatureHeader, channelSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(channelSecret)
	if sig == "" || secret == "" {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// Sign returns the signature LINE would send for body.
func Sign(body []byte, channelSecret string) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(channelSecret)))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
