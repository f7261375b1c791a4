package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GeneratePaymentReference builds the ledger's wire-visible transaction
// reference. Timestamp plus 9 random digits keeps collisions out of reach
// without needing coordination.
func GeneratePaymentReference() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("PTX-%d-%09d", timestamp, randomNum.Int64())
}

// GeneratePickupCode returns the 6-digit code the receiver presents at the
// parcel hand-off.
func GeneratePickupCode() string {
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(1000000))
	return fmt.Sprintf("%06d", randomNum.Int64())
}
