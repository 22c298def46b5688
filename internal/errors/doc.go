// Package errors provides typed error values for the Kōwhai application.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching. This makes
// error handling more robust and refactoring-safe.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Protocol errors: terminal outcomes of a recovery run (ErrLockTimeout,
//     ErrJobFailed, ErrDecryptionFailed)
//   - Remote store errors: ref namespace and secret store conditions
//     (ErrRefExists, ErrSecretNotFound)
//   - Project errors: project state issues (ErrProjectNotInitialized)
//   - File errors: local file discovery issues (ErrNoFilesFound)
//
// # Usage
//
// Return errors from internal packages:
//
//	if len(names) == 0 {
//	    return nil, errors.ErrNoSecretsStored
//	}
//
// Handle errors in the CLI layer:
//
//	result, err := workflows.Recover(ctx, opts)
//	if errors.Is(err, kerrors.ErrLockTimeout) {
//	    // Show user-friendly message
//	}
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("deleting ref %s: %w", ref, errors.ErrRefNotFound)
package errors
