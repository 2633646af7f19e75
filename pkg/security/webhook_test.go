package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"reportId":"abc123"}`)

	sig := SignPayload(body)
	assert.True(t, VerifySignature(body, sig))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	sig := SignPayload([]byte(`{"reportId":"abc123"}`))

	assert.False(t, VerifySignature([]byte(`{"reportId":"evil"}`), sig))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	assert.False(t, VerifySignature([]byte("body"), "not-hex"))
	assert.False(t, VerifySignature([]byte("body"), ""))
}
