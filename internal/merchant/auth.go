package merchant

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// CredentialConfig holds the merchant identity the processor
// authenticates with. Injected explicitly; there is no ambient global.
type CredentialConfig struct {
	MerchantID string
	Key        string

	// RequireSignature switches the password part of the credentials from
	// the shared key to an HMAC-SHA256 signature over the raw request body.
	RequireSignature bool
}

// CredentialValidator checks the processor's authorization header before
// any business logic or database access runs.
type CredentialValidator struct {
	cfg CredentialConfig
}

// NewCredentialValidator constructs a validator for the configured merchant.
func NewCredentialValidator(cfg CredentialConfig) *CredentialValidator {
	return &CredentialValidator{cfg: cfg}
}

// Validate checks the authorization header against the merchant
// credentials, and the body signature when signatures are required.
// Every failure returns the identical ErrUnauthorized; callers must not
// be able to tell which step rejected.
func (v *CredentialValidator) Validate(header string, body []byte) error {
	const scheme = "Basic "

	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(header, scheme) {
		return ErrUnauthorized
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(scheme):]))
	if err != nil {
		return ErrUnauthorized
	}

	id, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return ErrUnauthorized
	}

	idOK := subtle.ConstantTimeCompare([]byte(id), []byte(v.cfg.MerchantID)) == 1

	var secretOK bool
	if v.cfg.RequireSignature {
		mac := hmac.New(sha256.New, []byte(v.cfg.Key))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		secretOK = hmac.Equal([]byte(strings.ToLower(secret)), []byte(want))
	} else {
		secretOK = subtle.ConstantTimeCompare([]byte(secret), []byte(v.cfg.Key)) == 1
	}

	if !idOK || !secretOK {
		return ErrUnauthorized
	}
	return nil
}
