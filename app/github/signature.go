package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const SignatureHeader = "X-Hub-Signature-256"

var (
	ErrMissingSignature = errors.New("signature not found")
	ErrInvalidSignature = errors.New("signature invalid")
)

// Sign returns the X-Hub-Signature-256 value of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC-SHA256 of body in constant time.
func VerifySignature(secret, header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}
	algorithm, signature, ok := strings.Cut(header, "=")
	if !ok || algorithm != "sha256" {
		return ErrInvalidSignature
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), given) {
		return ErrInvalidSignature
	}
	return nil
}
