package envelope

import (
	"errors"
	"testing"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
)

func TestPublicPEMRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	pemBytes, err := kp.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM failed: %v", err)
	}

	parsed, err := ParsePublicKeyPEM(pemBytes)
	if err != nil {
		t.Fatalf("ParsePublicKeyPEM failed: %v", err)
	}

	// Encrypting with the parsed key must be decryptable by the original pair.
	env, err := EncryptHybrid([]byte("value"), parsed)
	if err != nil {
		t.Fatalf("EncryptHybrid failed: %v", err)
	}
	got, err := kp.Decrypt(env)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}
}

func TestParsePublicKeyPEMRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicKeyPEM([]byte("not pem")); err == nil {
		t.Error("expected error for non-PEM input")
	}
	if _, err := ParsePublicKeyPEM([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----")); err == nil {
		t.Error("expected error for wrong block type")
	}
}

func TestZeroDestroysPrivateMaterial(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	env, err := EncryptHybrid([]byte("value"), kp.Public())
	if err != nil {
		t.Fatalf("EncryptHybrid failed: %v", err)
	}

	kp.Zero()

	if kp.Public() != nil {
		t.Error("Public should return nil after Zero")
	}
	if _, err := kp.Decrypt(env); !errors.Is(err, kerrors.ErrDecryptionFailed) {
		t.Errorf("Decrypt after Zero: got %v, want ErrDecryptionFailed", err)
	}
	if _, err := kp.PublicPEM(); err == nil {
		t.Error("PublicPEM after Zero should fail")
	}
}

func TestKeyPairsAreFresh(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	if a.Public().N.Cmp(b.Public().N) == 0 {
		t.Error("two generated key pairs share a modulus")
	}
}
