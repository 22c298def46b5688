package workflows

import (
	"encoding/json"
	"fmt"
	"os"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/job"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
)

// secretsEnvVar is where the recovery workflow injects the platform's
// secret values, as a JSON object of name to value.
const secretsEnvVar = "KOWHAI_SECRETS"

// sharedTokenEnvVar holds the shared recovery token inside the job, used
// only by the symmetric scheme.
const sharedTokenEnvVar = "KOWHAI_SHARED_TOKEN"

type SealOptions struct {
	// RequestPath is the committed request manifest.
	RequestPath string
	// ResultPath receives the sealed result payload. May equal RequestPath.
	ResultPath string
	Logger     logger.Logger
}

type SealResult struct {
	Names      []string
	ResultPath string
}

// Seal is the oracle side of the protocol, run inside the remote job. It
// reads the request manifest, seals the requested secret values from the
// job environment, and writes the result payload for the workflow to
// commit. Plaintext never leaves the process.
func Seal(opts SealOptions) (*SealResult, error) {
	if opts.RequestPath == "" || opts.ResultPath == "" {
		return nil, fmt.Errorf("%w: request and result paths are required", kerrors.ErrInvalidInput)
	}

	manifest, err := os.ReadFile(opts.RequestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read request manifest: %w", err)
	}
	var req job.Request
	if err := json.Unmarshal(manifest, &req); err != nil {
		return nil, fmt.Errorf("malformed request manifest: %w", err)
	}

	raw := os.Getenv(secretsEnvVar)
	if raw == "" {
		return nil, fmt.Errorf("%w: %s is not set", kerrors.ErrMissingToken, secretsEnvVar)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", secretsEnvVar, err)
	}

	result, err := job.Seal(&req, values, os.Getenv(sharedTokenEnvVar))
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result payload: %w", err)
	}
	if err := os.WriteFile(opts.ResultPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write result payload: %w", err)
	}

	opts.Logger.Debugf("sealed %d secrets", len(req.Names))
	return &SealResult{Names: req.Names, ResultPath: opts.ResultPath}, nil
}
