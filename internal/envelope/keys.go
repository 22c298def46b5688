package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
)

// KeyPair is an ephemeral RSA key pair scoped to a single recovery
// operation. The private material lives only in process memory and is
// dropped with Zero once the operation finishes; it is never written to
// disk or transmitted.
type KeyPair struct {
	private *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh 2048-bit RSA key pair. No caching, no
// persistence.
func GenerateKeyPair() (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	return &KeyPair{private: private}, nil
}

// Public returns the public half, safe to transmit.
func (kp *KeyPair) Public() *rsa.PublicKey {
	if kp.private == nil {
		return nil
	}
	return &kp.private.PublicKey
}

// PublicPEM returns the public key in PKIX PEM form.
func (kp *KeyPair) PublicPEM() ([]byte, error) {
	pub := kp.Public()
	if pub == nil {
		return nil, fmt.Errorf("%w: key pair has been destroyed", kerrors.ErrInvalidInput)
	}

	pubASN1, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubASN1,
	}), nil
}

// Decrypt opens a hybrid-v2 envelope with the private half.
func (kp *KeyPair) Decrypt(env *Envelope) ([]byte, error) {
	if kp.private == nil {
		return nil, kerrors.ErrDecryptionFailed
	}
	return DecryptHybrid(env, kp.private)
}

// Zero drops the private material. Decryption is impossible afterwards.
// Best-effort: the key structure is unreferenced for collection rather than
// scrubbed, since big integers cannot be reliably overwritten in place.
func (kp *KeyPair) Zero() {
	kp.private = nil
}

// ParsePublicKeyPEM parses a PKIX PEM public key as produced by PublicPEM.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}
