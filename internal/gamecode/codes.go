package gamecode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Alphabet excludes ambiguous characters: 0, O, 1, I, L
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const Length = 6

var ErrInvalidCode = errors.New("invalid game code")

func generate() (string, error) {
	code := make([]byte, Length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

// Normalize upper-cases a typed code and drops spaces and dashes.
func Normalize(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		if r == ' ' || r == '-' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidFormat reports whether code has the right length and only alphabet
// characters. It does not say anything about whether a session uses it.
func ValidFormat(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Parse normalizes input and returns ErrInvalidCode when the result is
// malformed.
func Parse(input string) (string, error) {
	code := Normalize(input)
	if !ValidFormat(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}
