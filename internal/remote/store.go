package remote

import "context"

// JobState is the coarse execution state reported by the platform.
type JobState int

const (
	JobRunning JobState = iota
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobStatus is one observation of a dispatched job.
type JobStatus struct {
	State JobState
	// Diagnostic carries the platform's failure description, if any.
	Diagnostic string
}

// JobInputs parameterizes the remote recovery job.
type JobInputs struct {
	// Scheme names the envelope scheme the job must encrypt with.
	Scheme string
	// PublicKeyPEM is the recipient public key for hybrid encryption.
	// Empty for the symmetric scheme.
	PublicKeyPEM string
	// Names are the secret names the job must seal into the payload.
	Names []string
}

// JobHandle identifies a dispatched job run.
type JobHandle struct {
	// Ref is the temp branch the job runs against and commits its payload to.
	Ref string
	// RunID is the platform run identifier, 0 while not yet known (run
	// listing on the platform is eventually consistent after dispatch).
	RunID int64
}

// Store is the remote platform surface the recovery protocol runs against:
// a write-then-never-read-back secret store, the branch ref namespace of a
// repository, and a dispatchable remote job. Implementations are treated as
// reliable-but-slow RPC; transient failures should be marked with Transient
// so the Retrying decorator can retry them.
//
// Branch content semantics: each ref carries at most one payload blob.
// CommitAndPush replaces it and returns the new commit id;
// ReadCommittedContent returns the blob at the current tip.
type Store interface {
	// PutSecret stores plaintext under name. The store never returns the
	// value back; it is write-only by design.
	PutSecret(ctx context.Context, name, value string) error
	// ListSecretNames lists the stored secret names.
	ListSecretNames(ctx context.Context) ([]string, error)
	// DeleteSecret removes a named secret. Returns errors.ErrSecretNotFound
	// if absent.
	DeleteSecret(ctx context.Context, name string) error

	// CreateBranch atomically creates ref at the base branch tip and returns
	// the commit id it points at. Returns errors.ErrRefExists if the ref is
	// already present (the create-or-reject race that backs the lock).
	CreateBranch(ctx context.Context, ref string) (string, error)
	// DeleteBranch removes ref. Returns errors.ErrRefNotFound if absent.
	DeleteBranch(ctx context.Context, ref string) error
	// DeleteBranchIfTip removes ref only while its tip is still tip.
	// Returns errors.ErrTipMoved when the ref has advanced past the
	// observed commit, errors.ErrRefNotFound when it is gone. Lock reclaim
	// uses this so a delete decided against a stale observation cannot
	// destroy a ref that was re-acquired in the meantime.
	DeleteBranchIfTip(ctx context.Context, ref, tip string) error
	// BranchTip returns the commit id at the tip of ref, or
	// errors.ErrRefNotFound. This is the authoritative read used to resolve
	// ambiguous pushes.
	BranchTip(ctx context.Context, ref string) (string, error)
	// CommitAndPush replaces the payload blob on ref and returns the new
	// commit id.
	CommitAndPush(ctx context.Context, ref string, content []byte) (string, error)
	// ReadCommittedContent returns the payload blob at the tip of ref, or
	// errors.ErrRefNotFound when the ref or blob is absent.
	ReadCommittedContent(ctx context.Context, ref string) ([]byte, error)

	// DispatchJob triggers the remote recovery job against ref.
	DispatchJob(ctx context.Context, ref string, inputs JobInputs) (JobHandle, error)
	// PollJob reports the current state of a dispatched job.
	PollJob(ctx context.Context, handle JobHandle) (JobStatus, error)
}
