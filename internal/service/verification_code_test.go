package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerificationCodeFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewVerificationCode()
		require.NoError(t, err)
		require.True(t, ValidVerificationCode(code), code)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestNormalizeVerificationCode(t *testing.T) {
	assert.Equal(t, "7K3M-Q9TX-2HCV-8BZP", NormalizeVerificationCode(" 7k3m-q9tx-2hcv-8bzp "))
	assert.Equal(t, "7K3M-Q9TX-2HCV-8BZP", NormalizeVerificationCode("7K3MQ9TX2HCV8BZP"))
	assert.Equal(t, "0K11-Q9TX-2HCV-8BZP", NormalizeVerificationCode("OKIL-Q9TX-2HCV-8BZP"))

	assert.False(t, ValidVerificationCode(NormalizeVerificationCode("not-a-code")))
	assert.False(t, ValidVerificationCode("7K3M-Q9TX-2HCV-8BZU"))
}

func TestProficiencyFor(t *testing.T) {
	cases := map[int]string{100: "Expert", 90: "Expert", 89: "Advanced", 80: "Advanced", 70: "Intermediate", 69: "Beginner", 0: "Beginner"}
	for score, want := range cases {
		assert.Equal(t, want, ProficiencyFor(score), "score %d", score)
	}
}
