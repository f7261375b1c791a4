package pickup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// Code is the payload baked into the pickup QR the receiver presents at the
// hand-off.
type Code struct {
	BookingID  string    `json:"booking_id"`
	PickupCode string    `json:"pickup_code"`
	IssuedAt   time.Time `json:"issued_at"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GeneratePickupQR encrypts the pickup payload and renders it as a QR PNG.
func (q *QRGenerator) GeneratePickupQR(bookingID, pickupCode string) ([]byte, error) {
	data, err := json.Marshal(Code{
		BookingID:  bookingID,
		PickupCode: pickupCode,
		IssuedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, q.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// encryptAES seals the payload with AES-GCM, nonce prepended. GCM rather
// than a bare stream cipher: scanned payloads must fail loudly when
// tampered with, not decrypt to garbage.
func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}
