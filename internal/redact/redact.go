// Package redact keeps bearer tokens and credentials out of log output.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const redactedValue = "***REDACTED***"

var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"authorization",
	"cookie",
	"otp",
}

// Fingerprint returns a short stable identifier for token that is safe to log:
// "sha256:" plus the first 8 hex digits of its digest. Empty input yields "none".
func Fingerprint(token string) string {
	if token == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:4])
}

// IsSensitiveKey reports whether a field or header name suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// Header returns a copy of h with sensitive values replaced. Bearer
// credentials keep their scheme and gain a fingerprint.
func Header(h http.Header) http.Header {
	out := h.Clone()
	for k, vs := range out {
		if !IsSensitiveKey(k) {
			continue
		}
		for i, v := range vs {
			if scheme, cred, ok := strings.Cut(v, " "); ok && strings.EqualFold(scheme, "Bearer") {
				vs[i] = scheme + " " + Fingerprint(strings.TrimSpace(cred))
				continue
			}
			vs[i] = redactedValue
		}
	}
	return out
}

// Args redacts values in an hclog-style key/value list whose key is sensitive.
func Args(args ...interface{}) []interface{} {
	out := make([]interface{}, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok || !IsSensitiveKey(key) {
			continue
		}
		if s, ok := out[i+1].(string); ok && s != "" {
			out[i+1] = redactedValue
		}
	}
	return out
}
