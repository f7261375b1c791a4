package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"ms-parcel/internal/errs"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw webhook
// body, keyed with the per-provider secret.
const SignatureHeader = "X-Signature"

func verifyHMACSignature(payload []byte, header http.Header, secret string) error {
	if secret == "" {
		return errs.Wrap(errs.ErrInvalidSignature, "webhook secret not configured")
	}

	got := header.Get(SignatureHeader)
	if got == "" {
		return errs.Wrap(errs.ErrInvalidSignature, "missing %s header", SignatureHeader)
	}

	gotMAC, err := hex.DecodeString(got)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidSignature, "malformed signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(gotMAC, mac.Sum(nil)) {
		return errs.Wrap(errs.ErrInvalidSignature, "signature mismatch")
	}
	return nil
}

// SignPayload computes the signature a provider would attach; used by tests
// and the sandbox simulator.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
