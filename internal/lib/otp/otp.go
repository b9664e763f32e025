// Package otp generates the numeric one-time codes mailed during signup.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	Min = 100000
	Max = 999999
)

var span = big.NewInt(Max - Min + 1)

// Generate returns a uniformly drawn 6-digit code in [Min, Max].
func Generate() (string, error) {
	const op = "otp.Generate"

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Sprintf("%d", n.Int64()+Min), nil
}
