package provider

import "testing"

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := "webhook-secret"
	body := []byte("MessageSid=SM123&MessageStatus=delivered")

	header := SignPayload(secret, body)

	if !VerifySignature(secret, body, header) {
		t.Error("signature over the exact body must verify")
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	secret := "webhook-secret"
	body := []byte("MessageSid=SM123&MessageStatus=delivered")
	header := SignPayload(secret, body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
	}{
		{"empty header", secret, body, ""},
		{"missing prefix", secret, body, header[len("sha256="):]},
		{"tampered body", secret, []byte("MessageSid=SM123&MessageStatus=read"), header},
		{"wrong secret", "other-secret", body, header},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySignature(tt.secret, tt.body, tt.header) {
				t.Error("signature verified but must not")
			}
		})
	}
}
