package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Authenticate reports whether signatureHeader is the GitHub-style
// "sha256=<hex>" HMAC-SHA256 of body keyed by secret.
//
// The comparison is constant-time over the decoded digest. Any missing
// input, wrong prefix or malformed hex returns false; callers get no hint
// about which check failed.
func Authenticate(body []byte, signatureHeader, secret string) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}
	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}

	actualMAC, err := hex.DecodeString(strings.TrimPrefix(signatureHeader, signaturePrefix))
	if err != nil {
		return false
	}

	return hmac.Equal(computeMAC(body, secret), actualMAC)
}

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(body []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(computeMAC(body, secret))
}

func computeMAC(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
