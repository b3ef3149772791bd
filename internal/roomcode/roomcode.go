// Package roomcode generates and checks the short codes that name rooms.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	Length   = 6
	alphabet = "abcdefghijklmnopqrstuvwxyz"
)

var ErrInvalid = fmt.Errorf("room code must be %d lowercase letters", Length)

// Generate returns a random code of Length lowercase letters.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

func Validate(code string) error {
	if len(code) != Length {
		return ErrInvalid
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'a' || code[i] > 'z' {
			return ErrInvalid
		}
	}
	return nil
}

// Normalize trims and lowercases user input before validation.
func Normalize(code string) (string, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if err := Validate(code); err != nil {
		return "", err
	}
	return code, nil
}
