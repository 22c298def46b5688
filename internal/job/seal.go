package job

import (
	"fmt"

	"github.com/PolarWolf314/kowhai/internal/envelope"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
)

// Seal is the oracle side of the protocol: given a request manifest and the
// secret values the remote environment injected, it produces the result
// payload. The remote job and the in-process test runner share this path.
//
// Every requested name must be present in values; a missing one fails the
// whole job rather than returning a partial result. sharedToken is only
// consulted for the symmetric scheme.
func Seal(req *Request, values map[string]string, sharedToken string) (*Result, error) {
	if req == nil || len(req.Names) == 0 {
		return nil, fmt.Errorf("%w: empty seal request", kerrors.ErrInvalidInput)
	}

	result := &Result{Envelopes: make(map[string]*envelope.Envelope, len(req.Names))}

	switch req.Scheme {
	case envelope.SchemeHybridV2:
		publicKey, err := envelope.ParsePublicKeyPEM([]byte(req.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("parsing request public key: %w", err)
		}
		for _, name := range req.Names {
			value, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s not available to the job", kerrors.ErrSecretNotFound, name)
			}
			env, err := envelope.EncryptHybrid([]byte(value), publicKey)
			if err != nil {
				return nil, fmt.Errorf("sealing %s: %w", name, err)
			}
			result.Envelopes[name] = env
		}

	case envelope.SchemeSymmetricV1:
		for _, name := range req.Names {
			value, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s not available to the job", kerrors.ErrSecretNotFound, name)
			}
			env, err := envelope.EncryptSymmetric([]byte(value), sharedToken)
			if err != nil {
				return nil, fmt.Errorf("sealing %s: %w", name, err)
			}
			result.Envelopes[name] = env
		}

	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", kerrors.ErrInvalidInput, req.Scheme)
	}

	return result, nil
}
