// Package envelope implements the versioned authenticated-encryption
// container used by the recovery protocol.
//
// Two interchangeable schemes share one wire format:
//
//   - symmetric-v1: the key is a one-way hash of a shared token; useful for
//     the simpler bootstrap flow where both sides already hold the token.
//   - hybrid-v2: a random per-call session key seals the payload and is
//     itself wrapped under the recipient's RSA public key, so no symmetric
//     secret ever needs to be transmitted.
//
// The AEAD is NaCl secretbox (XSalsa20-Poly1305) with a fresh 24-byte nonce
// per encryption. Decryption fails closed: wrong key, wrong scheme version,
// and tampered data are indistinguishable to the caller, all surfacing as
// errors.ErrDecryptionFailed with no partial plaintext.
package envelope
