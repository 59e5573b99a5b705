package service

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"
)

// Crockford's alphabet: no I, L, O or U.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// 10 bytes encode to exactly 16 symbols, 80 bits of entropy.
const codeEntropyBytes = 10

var (
	codeEncoding = base32.NewEncoding(crockfordAlphabet).WithPadding(base32.NoPadding)
	codePattern  = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{4}(-[0-9A-HJKMNP-TV-Z]{4}){3}$`)
	codeReplacer = strings.NewReplacer("-", "", " ", "", "O", "0", "I", "1", "L", "1")
)

// NewVerificationCode returns a random code formatted as XXXX-XXXX-XXXX-XXXX.
func NewVerificationCode() (string, error) {
	buf := make([]byte, codeEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return group(codeEncoding.EncodeToString(buf)), nil
}

// NormalizeVerificationCode canonicalises user input: case, separators and
// the letters Crockford reads as digits. The result may still be invalid.
func NormalizeVerificationCode(raw string) string {
	s := codeReplacer.Replace(strings.ToUpper(strings.TrimSpace(raw)))
	if len(s) != 16 {
		return strings.ToUpper(strings.TrimSpace(raw))
	}
	return group(s)
}

// ValidVerificationCode reports whether code is in canonical form.
func ValidVerificationCode(code string) bool {
	return codePattern.MatchString(code)
}

func group(s string) string {
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12] + "-" + s[12:16]
}
