package remote

import (
	"context"
	"errors"
	"time"

	logger "github.com/PolarWolf314/kowhai/internal/logging"
)

// transientError marks a Store error as safe to retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that IsTransient reports true for it. Adapters use
// it for failures that are worth retrying (5xx responses, rate limiting,
// connection resets), as opposed to rejections that will not heal on their
// own.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Retrying decorates a Store with bounded retries on transient errors.
// Backoff grows linearly with the attempt number. Non-transient errors are
// returned immediately; authoritative-state resolution (for example the
// lock manager's tip re-read) stays the caller's responsibility.
type Retrying struct {
	store    Store
	attempts int
	backoff  time.Duration
	log      logger.Logger
}

// WithRetry wraps store. attempts is the total number of tries per
// operation; backoff is the base pause between them.
func WithRetry(store Store, attempts int, backoff time.Duration, log logger.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{store: store, attempts: attempts, backoff: backoff, log: log}
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) || attempt >= r.attempts {
			return err
		}

		r.log.Debugf("transient error on %s (attempt %d/%d): %v", op, attempt, r.attempts, err)

		timer := time.NewTimer(r.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Retrying) PutSecret(ctx context.Context, name, value string) error {
	return r.do(ctx, "put secret", func() error {
		return r.store.PutSecret(ctx, name, value)
	})
}

func (r *Retrying) ListSecretNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.do(ctx, "list secrets", func() error {
		var err error
		names, err = r.store.ListSecretNames(ctx)
		return err
	})
	return names, err
}

func (r *Retrying) DeleteSecret(ctx context.Context, name string) error {
	return r.do(ctx, "delete secret", func() error {
		return r.store.DeleteSecret(ctx, name)
	})
}

func (r *Retrying) CreateBranch(ctx context.Context, ref string) (string, error) {
	var commit string
	err := r.do(ctx, "create branch", func() error {
		var err error
		commit, err = r.store.CreateBranch(ctx, ref)
		return err
	})
	return commit, err
}

func (r *Retrying) DeleteBranch(ctx context.Context, ref string) error {
	return r.do(ctx, "delete branch", func() error {
		return r.store.DeleteBranch(ctx, ref)
	})
}

func (r *Retrying) DeleteBranchIfTip(ctx context.Context, ref, tip string) error {
	return r.do(ctx, "conditional delete branch", func() error {
		return r.store.DeleteBranchIfTip(ctx, ref, tip)
	})
}

func (r *Retrying) BranchTip(ctx context.Context, ref string) (string, error) {
	var commit string
	err := r.do(ctx, "read branch tip", func() error {
		var err error
		commit, err = r.store.BranchTip(ctx, ref)
		return err
	})
	return commit, err
}

func (r *Retrying) CommitAndPush(ctx context.Context, ref string, content []byte) (string, error) {
	var commit string
	err := r.do(ctx, "commit and push", func() error {
		var err error
		commit, err = r.store.CommitAndPush(ctx, ref, content)
		return err
	})
	return commit, err
}

func (r *Retrying) ReadCommittedContent(ctx context.Context, ref string) ([]byte, error) {
	var content []byte
	err := r.do(ctx, "read committed content", func() error {
		var err error
		content, err = r.store.ReadCommittedContent(ctx, ref)
		return err
	})
	return content, err
}

func (r *Retrying) DispatchJob(ctx context.Context, ref string, inputs JobInputs) (JobHandle, error) {
	var handle JobHandle
	err := r.do(ctx, "dispatch job", func() error {
		var err error
		handle, err = r.store.DispatchJob(ctx, ref, inputs)
		return err
	})
	return handle, err
}

func (r *Retrying) PollJob(ctx context.Context, handle JobHandle) (JobStatus, error) {
	var status JobStatus
	err := r.do(ctx, "poll job", func() error {
		var err error
		status, err = r.store.PollJob(ctx, handle)
		return err
	})
	return status, err
}
