package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PolarWolf314/kowhai/internal/envelope"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/job"
	"github.com/PolarWolf314/kowhai/internal/lock"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/remote"

	"github.com/google/uuid"
)

// State is the orchestrator's position in one recovery run.
type State int

const (
	StateIdle State = iota
	StateAcquiringLock
	StateDispatching
	StateAwaitingJob
	StateRetrieving
	StateDecrypting
	StateCleaningUp
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringLock:
		return "acquiring lock"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingJob:
		return "awaiting job"
	case StateRetrieving:
		return "retrieving"
	case StateDecrypting:
		return "decrypting"
	case StateCleaningUp:
		return "cleaning up"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options tune one orchestrator. The zero value gets sensible defaults
// from New.
type Options struct {
	LockName          string
	LockTimeout       time.Duration
	LockRetryInterval time.Duration
	PollInterval      time.Duration
	JobTimeout        time.Duration

	// SharedToken, when set, selects the symmetric scheme instead of
	// generating an ephemeral key pair.
	SharedToken string
}

// Orchestrator runs the recovery protocol end to end: lock, dispatch,
// await, retrieve, decrypt, clean up. Remote state created during a run
// (temp ref, lock ref) is removed on every exit path, success or not.
type Orchestrator struct {
	store remote.Store
	locks *lock.Manager
	jobs  *job.Coordinator
	opts  Options
	log   logger.Logger

	state State
}

func New(store remote.Store, locks *lock.Manager, jobs *job.Coordinator, opts Options, log logger.Logger) *Orchestrator {
	if opts.LockName == "" {
		opts.LockName = "recovery"
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 2 * time.Minute
	}
	if opts.LockRetryInterval <= 0 {
		opts.LockRetryInterval = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		store: store,
		locks: locks,
		jobs:  jobs,
		opts:  opts,
		log:   log,
		state: StateIdle,
	}
}

// State reports where the current (or last) run got to.
func (o *Orchestrator) State() State { return o.state }

// run carries the remote state one recovery accumulates, so cleanup can
// tear down exactly what was created.
type run struct {
	lockHandle *lock.Handle
	tempRef    string
	keys       *envelope.KeyPair
	succeeded  bool
}

// Recover drives one recovery of the named secrets and returns their
// plaintext values. The result is all-or-nothing: if any requested secret
// cannot be recovered and verified, no values are returned.
func (o *Orchestrator) Recover(ctx context.Context, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no secret names requested", kerrors.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: empty secret name", kerrors.ErrInvalidInput)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate secret name %s", kerrors.ErrInvalidInput, name)
		}
		seen[name] = true
	}

	r := &run{}
	defer o.cleanup(ctx, r)

	values, err := o.recover(ctx, r, names)
	if err != nil {
		return nil, err
	}
	r.succeeded = true
	return values, nil
}

func (o *Orchestrator) recover(ctx context.Context, r *run, names []string) (map[string]string, error) {
	o.state = StateAcquiringLock
	handle, err := o.locks.Acquire(ctx, o.opts.LockName, o.opts.LockTimeout, o.opts.LockRetryInterval)
	if err != nil {
		return nil, err
	}
	r.lockHandle = handle

	stored, err := o.store.ListSecretNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored secrets: %w", err)
	}
	if len(stored) == 0 {
		return nil, kerrors.ErrNoSecretsStored
	}
	storedSet := make(map[string]bool, len(stored))
	for _, name := range stored {
		storedSet[name] = true
	}
	for _, name := range names {
		if !storedSet[name] {
			return nil, fmt.Errorf("%w: %s", kerrors.ErrSecretNotFound, name)
		}
	}

	scheme := envelope.SchemeHybridV2
	var publicKeyPEM string
	if o.opts.SharedToken != "" {
		scheme = envelope.SchemeSymmetricV1
	} else {
		kp, err := envelope.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generating recovery key pair: %w", err)
		}
		r.keys = kp
		pemBytes, err := kp.PublicPEM()
		if err != nil {
			return nil, fmt.Errorf("encoding recovery public key: %w", err)
		}
		publicKeyPEM = string(pemBytes)
	}

	o.state = StateDispatching
	r.tempRef = "recovery/" + uuid.New().String()
	jobHandle, err := o.jobs.Dispatch(ctx, job.RecoveryJob{
		Names:        names,
		Scheme:       scheme,
		PublicKeyPEM: publicKeyPEM,
		TempRef:      r.tempRef,
	})
	if err != nil {
		return nil, err
	}

	o.state = StateAwaitingJob
	outcome, err := o.jobs.AwaitResult(ctx, jobHandle, o.opts.PollInterval, o.opts.JobTimeout)
	if err != nil {
		return nil, err
	}

	o.state = StateRetrieving
	switch outcome.State {
	case job.Failed:
		return nil, fmt.Errorf("%w: %s", kerrors.ErrJobFailed, outcome.Diagnostic)
	case job.TimedOut:
		return nil, fmt.Errorf("%w: %s", kerrors.ErrJobTimedOut, outcome.Diagnostic)
	}

	o.state = StateDecrypting
	values := make(map[string]string, len(names))
	for _, name := range names {
		env, ok := outcome.Result.Envelopes[name]
		if !ok {
			return nil, fmt.Errorf("%w: result missing %s", kerrors.ErrDecryptionFailed, name)
		}

		var plaintext []byte
		var derr error
		if scheme == envelope.SchemeSymmetricV1 {
			plaintext, derr = envelope.DecryptSymmetric(env, o.opts.SharedToken)
		} else {
			plaintext, derr = r.keys.Decrypt(env)
		}
		if derr != nil {
			// All-or-nothing: one bad envelope discards the whole run.
			return nil, derr
		}
		values[name] = string(plaintext)
	}

	return values, nil
}

// cleanup tears down the run's remote state and destroys key material. It
// runs on every exit path and must make progress even when ctx was
// cancelled, so remote state is not orphaned.
func (o *Orchestrator) cleanup(ctx context.Context, r *run) {
	o.state = StateCleaningUp
	cctx := context.WithoutCancel(ctx)

	if r.tempRef != "" {
		if err := o.store.DeleteBranch(cctx, r.tempRef); err != nil && !errors.Is(err, kerrors.ErrRefNotFound) {
			o.log.WarnfAlways("failed to delete temp ref %s: %v", r.tempRef, err)
		}
	}

	if r.keys != nil {
		r.keys.Zero()
	}

	if r.lockHandle != nil {
		if err := o.locks.Release(cctx, r.lockHandle); err != nil {
			o.log.WarnfAlways("failed to release lock %s: %v", r.lockHandle.Name(), err)
		}
	}

	if r.succeeded {
		o.state = StateDone
	} else {
		o.state = StateFailed
	}
}
