package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "cb-token-123"
	body := []byte(`{"external_id":"enr-1","status":"PAID"}`)
	sig := Sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		token     string
		signature string
		body      []byte
		want      bool
	}{
		{"token only", secret, secret, "", body, true},
		{"token and signature", secret, secret, sig, body, true},
		{"uppercase hex accepted", secret, secret, strings.ToUpper(sig), body, true},
		{"no secret configured", "", secret, sig, body, false},
		{"missing token", secret, "", sig, body, false},
		{"wrong token", secret, "cb-token-124", "", body, false},
		{"wrong token even with valid signature", secret, "nope", sig, body, false},
		{"tampered body", secret, secret, sig, []byte(`{"external_id":"enr-1","status":"PAID","paid_amount":1}`), false},
		{"garbage signature", secret, secret, "deadbeef", body, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(tt.secret, tt.token, tt.signature, tt.body))
		})
	}
}
