package webhook

import (
	"strings"
	"testing"
)

func TestComputeHMAC(t *testing.T) {
	payload := []byte(`{"event":"flow.completed"}`)

	sig := ComputeHMAC(payload, "secret-1")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature %q missing sha256= prefix", sig)
	}

	// Same inputs produce the same signature.
	if again := ComputeHMAC(payload, "secret-1"); again != sig {
		t.Errorf("signature not deterministic: %q vs %q", sig, again)
	}

	// Different secrets produce different signatures.
	if other := ComputeHMAC(payload, "secret-2"); other == sig {
		t.Error("different secrets produced the same signature")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"segment.defined"}`)
	sig := ComputeHMAC(payload, "secret")

	if !VerifySignature(payload, sig, "secret") {
		t.Error("valid signature rejected")
	}
	if VerifySignature(payload, sig, "wrong-secret") {
		t.Error("signature verified with wrong secret")
	}
	if VerifySignature([]byte("tampered"), sig, "secret") {
		t.Error("signature verified for tampered payload")
	}
	if VerifySignature(payload, "sha256=deadbeef", "secret") {
		t.Error("bogus signature verified")
	}
}

func TestGenerateSecret(t *testing.T) {
	first, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if !strings.HasPrefix(first, "whsec_") {
		t.Errorf("secret %q missing whsec_ prefix", first)
	}

	second, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if first == second {
		t.Error("two generated secrets are identical")
	}
}
