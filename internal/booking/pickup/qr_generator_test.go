package pickup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func openSealed(t *testing.T, encoded string, secret string) ([]byte, error) {
	t.Helper()
	raw, err := base64.URLEncoding.DecodeString(encoded)
	assert.NoError(t, err)

	hashed := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(hashed[:])
	assert.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	assert.NoError(t, err)

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func TestSealedPayloadRoundTrips(t *testing.T) {
	q := NewQRGenerator("hand-off-secret")

	payload, _ := json.Marshal(Code{BookingID: "booking-1", PickupCode: "123456"})
	encoded, err := encryptAES(payload, q.secret)
	assert.NoError(t, err)

	opened, err := openSealed(t, encoded, "hand-off-secret")
	assert.NoError(t, err)

	var code Code
	assert.NoError(t, json.Unmarshal(opened, &code))
	assert.Equal(t, "123456", code.PickupCode)
}

func TestTamperedPayloadIsRejected(t *testing.T) {
	q := NewQRGenerator("hand-off-secret")

	payload, _ := json.Marshal(Code{BookingID: "booking-1", PickupCode: "123456"})
	encoded, err := encryptAES(payload, q.secret)
	assert.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(encoded)
	assert.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, err = openSealed(t, tampered, "hand-off-secret")
	assert.Error(t, err)
}

func TestGeneratePickupQRProducesPNG(t *testing.T) {
	q := NewQRGenerator("hand-off-secret")

	png, err := q.GeneratePickupQR("booking-1", "123456")
	assert.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
