package errors

import "errors"

// Protocol errors are the terminal failure modes of a recovery run.
var (
	// ErrLockTimeout indicates the recovery lock could not be acquired in time.
	// The lock is contended; the caller may retry later.
	ErrLockTimeout = errors.New("timed out waiting for the recovery lock")

	// ErrDispatchRejected indicates the remote platform refused to start the
	// recovery job. This is a configuration or permission problem, not a
	// transient one.
	ErrDispatchRejected = errors.New("remote job dispatch was rejected")

	// ErrJobFailed indicates the remote recovery job ran and failed.
	ErrJobFailed = errors.New("remote recovery job failed")

	// ErrJobTimedOut indicates the remote recovery job did not finish in time.
	ErrJobTimedOut = errors.New("timed out waiting for the remote recovery job")

	// ErrDecryptionFailed indicates a payload could not be decrypted.
	// Wrong key, wrong scheme version, and tampered data all surface as this
	// one error so a caller cannot distinguish the cases.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidInput indicates an empty or malformed argument was rejected
	// before any remote state was touched.
	ErrInvalidInput = errors.New("invalid input")
)

// Remote store errors describe the ref namespace and secret store surface.
var (
	// ErrRefExists indicates a branch ref already exists on the remote.
	ErrRefExists = errors.New("remote ref already exists")

	// ErrRefNotFound indicates a branch ref does not exist on the remote.
	ErrRefNotFound = errors.New("remote ref not found")

	// ErrTipMoved indicates a conditional ref operation was refused because
	// the ref's tip is no longer the commit the caller observed.
	ErrTipMoved = errors.New("remote ref tip has moved")

	// ErrSecretNotFound indicates the named secret is not in the store.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrNoSecretsStored indicates a bulk recovery found nothing to recover.
	ErrNoSecretsStored = errors.New("no secrets are stored")
)

// Project state errors indicate issues with project configuration.
var (
	// ErrProjectNotInitialized indicates the project has not been set up with Kōwhai.
	ErrProjectNotInitialized = errors.New("project has not been initialized")

	// ErrProjectAlreadyInitialized indicates the project has already been set up with Kōwhai.
	ErrProjectAlreadyInitialized = errors.New("project has already been initialized")

	// ErrInvalidProjectConfig indicates the project configuration is malformed or corrupt.
	ErrInvalidProjectConfig = errors.New("project configuration is invalid")

	// ErrMissingToken indicates no platform access token is available.
	ErrMissingToken = errors.New("no access token configured")
)

// File errors indicate issues with local file discovery or access.
var (
	// ErrNoFilesFound indicates no files matched the provided patterns.
	ErrNoFilesFound = errors.New("no matching files found")
)
