package game

import (
	"crypto/rand"
	"strings"
)

// CodeAlphabet omits I, O, 0 and 1 so codes survive being read aloud.
const (
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 6
)

// NewCode returns a random join code. len(CodeAlphabet) divides 256, so
// reducing each byte modulo 32 keeps the distribution uniform.
func NewCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(b), nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
