package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"event":"test.event","data":{"ok":true}}`)

	first := Sign("s3cr3t", body)
	second := Sign("s3cr3t", body)

	assert.Equal(t, first, second)
	assert.Contains(t, first, SignaturePrefix)
	assert.Len(t, first, len(SignaturePrefix)+64)
}

func TestVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"event":"test.event","data":{"ok":true}}`)
	sig := Sign("s3cr3t", body)

	assert.True(t, Verify("s3cr3t", body, sig))
}

func TestVerify_Rejects(t *testing.T) {
	body := []byte(`{"event":"test.event","data":{"ok":true}}`)
	sig := Sign("s3cr3t", body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
	}{
		{
			name:      "wrong secret",
			secret:    "other",
			body:      body,
			signature: sig,
		},
		{
			name:      "tampered body",
			secret:    "s3cr3t",
			body:      []byte(`{"event":"test.event","data":{"ok":false}}`),
			signature: sig,
		},
		{
			name:      "missing prefix",
			secret:    "s3cr3t",
			body:      body,
			signature: "deadbeef",
		},
		{
			name:      "invalid hex",
			secret:    "s3cr3t",
			body:      body,
			signature: SignaturePrefix + "not-hex",
		},
		{
			name:      "empty signature",
			secret:    "s3cr3t",
			body:      body,
			signature: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Verify(tt.secret, tt.body, tt.signature))
		})
	}
}
