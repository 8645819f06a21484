package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// referralAlphabet leaves out characters that are easy to misread (0/O, 1/I/L).
const referralAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const ReferralCodeLength = 8

// GenerateReferralCode returns an 8 character code from referralAlphabet.
func GenerateReferralCode() (string, error) {
	return randomCode(ReferralCodeLength)
}

func randomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(referralAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = referralAlphabet[idx.Int64()]
	}
	return string(out), nil
}
