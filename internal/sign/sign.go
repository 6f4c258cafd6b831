// Package sign computes exchange-mandated message authentication codes.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/crosstide/connector/errs"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
// Identical inputs always yield identical signatures, so request signing is
// testable without live credentials. An empty secret is a configuration
// fault and reported as a signing error rather than retried.
func Sign(payload, secret string) (string, error) {
	if secret == "" {
		return "", errs.New("", errs.CodeSigning, errs.WithMessage("api secret not configured"))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
