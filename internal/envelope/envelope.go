package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"

	"golang.org/x/crypto/nacl/secretbox"
)

// Scheme is the versioned encryption scheme discriminator.
type Scheme string

const (
	// SchemeSymmetricV1 derives a 256-bit key from a shared token.
	SchemeSymmetricV1 Scheme = "symmetric-v1"

	// SchemeHybridV2 encrypts under a random session key, which is itself
	// wrapped with the recipient's RSA public key.
	SchemeHybridV2 Scheme = "hybrid-v2"
)

const (
	nonceSize = 24
	tagSize   = secretbox.Overhead
	keySize   = 32
)

// Envelope is the wire format for one encrypted value. An Envelope is
// immutable once produced; it is either decrypted or discarded.
type Envelope struct {
	Scheme     Scheme `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	AuthTag    []byte `json:"auth_tag"`
	Ciphertext []byte `json:"ciphertext"`

	// WrappedKey is the RSA-wrapped session key. Present only for hybrid-v2.
	WrappedKey []byte `json:"wrapped_key,omitempty"`
}

// Marshal serializes an Envelope to its tagged-JSON wire form.
func Marshal(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", kerrors.ErrInvalidInput)
	}
	return json.Marshal(env)
}

// Unmarshal parses the tagged-JSON wire form. Malformed data and unknown
// scheme versions fail closed with ErrDecryptionFailed.
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, kerrors.ErrDecryptionFailed
	}
	if env.Scheme != SchemeSymmetricV1 && env.Scheme != SchemeHybridV2 {
		return nil, kerrors.ErrDecryptionFailed
	}
	return &env, nil
}

// EncryptSymmetric seals plaintext under a key derived from sharedToken by
// a one-way hash. A fresh random nonce is used per call.
func EncryptSymmetric(plaintext []byte, sharedToken string) (*Envelope, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", kerrors.ErrInvalidInput)
	}
	if sharedToken == "" {
		return nil, fmt.Errorf("%w: empty shared token", kerrors.ErrInvalidInput)
	}

	key := sha256.Sum256([]byte(sharedToken))
	defer zero(key[:])

	return seal(SchemeSymmetricV1, plaintext, &key)
}

// DecryptSymmetric opens a symmetric-v1 envelope. Wrong token, wrong scheme
// version, and tampered data all return the same ErrDecryptionFailed.
func DecryptSymmetric(env *Envelope, sharedToken string) ([]byte, error) {
	if sharedToken == "" {
		return nil, fmt.Errorf("%w: empty shared token", kerrors.ErrInvalidInput)
	}
	if env == nil || env.Scheme != SchemeSymmetricV1 {
		return nil, kerrors.ErrDecryptionFailed
	}

	key := sha256.Sum256([]byte(sharedToken))
	defer zero(key[:])

	return open(env, &key)
}

// EncryptHybrid seals plaintext under a fresh random session key and wraps
// the session key with the recipient's public key. The session key is never
// reused across calls.
func EncryptHybrid(plaintext []byte, publicKey *rsa.PublicKey) (*Envelope, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", kerrors.ErrInvalidInput)
	}
	if publicKey == nil {
		return nil, fmt.Errorf("%w: nil public key", kerrors.ErrInvalidInput)
	}

	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	defer zero(key[:])

	env, err := seal(SchemeHybridV2, plaintext, &key)
	if err != nil {
		return nil, err
	}

	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, publicKey, key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to wrap session key: %w", err)
	}
	env.WrappedKey = wrapped

	return env, nil
}

// DecryptHybrid unwraps the session key with the private key and opens the
// envelope. Same fail-closed contract as DecryptSymmetric.
func DecryptHybrid(env *Envelope, privateKey *rsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, kerrors.ErrDecryptionFailed
	}
	if env == nil || env.Scheme != SchemeHybridV2 || len(env.WrappedKey) == 0 {
		return nil, kerrors.ErrDecryptionFailed
	}

	session, err := rsa.DecryptPKCS1v15(rand.Reader, privateKey, env.WrappedKey)
	if err != nil || len(session) != keySize {
		return nil, kerrors.ErrDecryptionFailed
	}
	defer zero(session)

	var key [keySize]byte
	copy(key[:], session)
	defer zero(key[:])

	return open(env, &key)
}

func seal(scheme Scheme, plaintext []byte, key *[keySize]byte) (*Envelope, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// secretbox prepends the Poly1305 tag to the ciphertext; split it out
	// so the wire format carries the tag explicitly.
	box := secretbox.Seal(nil, plaintext, &nonce, key)

	return &Envelope{
		Scheme:     scheme,
		Nonce:      nonce[:],
		AuthTag:    box[:tagSize],
		Ciphertext: box[tagSize:],
	}, nil
}

func open(env *Envelope, key *[keySize]byte) ([]byte, error) {
	if len(env.Nonce) != nonceSize || len(env.AuthTag) != tagSize || len(env.Ciphertext) == 0 {
		return nil, kerrors.ErrDecryptionFailed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], env.Nonce)

	box := make([]byte, 0, len(env.AuthTag)+len(env.Ciphertext))
	box = append(box, env.AuthTag...)
	box = append(box, env.Ciphertext...)

	plaintext, ok := secretbox.Open(nil, box, &nonce, key)
	if !ok {
		return nil, kerrors.ErrDecryptionFailed
	}

	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
