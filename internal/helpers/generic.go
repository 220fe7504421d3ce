package helpers

import (
	"crypto/rand"
)

// tokenAlphabet is the 32-character set used for all opaque credentials:
// digits and lowercase letters minus the visually ambiguous 0, 1, l and o.
const tokenAlphabet = "23456789abcdefghijkmnpqrstuvwxyz"

const (
	ClientIDLength  = 20
	AuthCodeLength  = 22
	CSRFTokenLength = 22
	SecretLength    = 40
	TokenLength     = 40
)

// RandomString draws n characters from the restricted token alphabet.
// The alphabet size divides 256, so indexing bytes directly is unbiased.
func RandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	for i, c := range b {
		b[i] = tokenAlphabet[int(c)%len(tokenAlphabet)]
	}

	return string(b), nil
}
