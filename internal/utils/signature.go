package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignSOS returns the HMAC-SHA256 of an SMS SOS payload, unpadded URL-safe
// base64 so the signature survives SMS gateways and never contains ';' or '='.
func SignSOS(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// VerifySOS reports whether signature matches payload under secret.
func VerifySOS(payload, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(SignSOS(payload, secret)))
}
