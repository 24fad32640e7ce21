// Package webhook verifies and parses inbound CI trigger events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the algorithm tag senders prepend to the hex digest.
const SignaturePrefix = "sha256="

// VerifySignature checks the keyed digest of body against the presented
// signature header value. It fails closed: a missing secret, a malformed
// header, or any mismatch yields false. The comparison is constant-time.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}

	presented, ok := strings.CutPrefix(header, SignaturePrefix)
	if !ok || presented == "" {
		return false
	}

	presentedRaw, err := hex.DecodeString(presented)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(expected, presentedRaw)
}

// Sign computes the signature header value for body. Used by tests and by
// local delivery tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
