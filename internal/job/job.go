// Package job coordinates the remote one-shot encryption job: dispatching
// it against a temp ref, awaiting a terminal outcome, and retrieving its
// result from the committed payload. Results travel only through committed
// refs; job logs are never scraped.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PolarWolf314/kowhai/internal/envelope"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/remote"
)

// Request is the manifest the coordinator commits to the temp ref before
// dispatch. The remote job reads it to learn what to seal and how.
type Request struct {
	Scheme    envelope.Scheme `json:"scheme"`
	Names     []string        `json:"names"`
	PublicKey string          `json:"public_key,omitempty"`
}

// Result is the payload the remote job commits back on success: one
// envelope per requested secret name.
type Result struct {
	Envelopes map[string]*envelope.Envelope `json:"envelopes"`
}

// RecoveryJob describes one dispatch.
type RecoveryJob struct {
	Names        []string
	Scheme       envelope.Scheme
	PublicKeyPEM string
	TempRef      string
}

// OutcomeState is the terminal classification of a job.
type OutcomeState int

const (
	Succeeded OutcomeState = iota
	Failed
	TimedOut
)

func (s OutcomeState) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Outcome is the result of awaiting a dispatched job. Result is non-nil
// only for Succeeded.
type Outcome struct {
	State      OutcomeState
	Result     *Result
	Diagnostic string
}

// Coordinator drives recovery jobs against a Store.
type Coordinator struct {
	store remote.Store
	log   logger.Logger
}

func NewCoordinator(store remote.Store, log logger.Logger) *Coordinator {
	return &Coordinator{store: store, log: log}
}

// Dispatch commits the request manifest to the job's temp ref and triggers
// the remote job. The temp ref must not exist yet; Dispatch creates it.
// Failures to get the job started are wrapped with ErrDispatchRejected.
func (c *Coordinator) Dispatch(ctx context.Context, j RecoveryJob) (remote.JobHandle, error) {
	if len(j.Names) == 0 || j.TempRef == "" {
		return remote.JobHandle{}, fmt.Errorf("%w: job needs names and a temp ref", kerrors.ErrInvalidInput)
	}

	if _, err := c.store.CreateBranch(ctx, j.TempRef); err != nil {
		return remote.JobHandle{}, fmt.Errorf("%w: creating temp ref %s: %v", kerrors.ErrDispatchRejected, j.TempRef, err)
	}

	manifest, err := json.Marshal(Request{
		Scheme:    j.Scheme,
		Names:     j.Names,
		PublicKey: j.PublicKeyPEM,
	})
	if err != nil {
		return remote.JobHandle{}, fmt.Errorf("encoding job request: %w", err)
	}
	if _, err := c.store.CommitAndPush(ctx, j.TempRef, manifest); err != nil {
		return remote.JobHandle{}, fmt.Errorf("%w: committing request to %s: %v", kerrors.ErrDispatchRejected, j.TempRef, err)
	}

	handle, err := c.store.DispatchJob(ctx, j.TempRef, remote.JobInputs{
		Scheme:       string(j.Scheme),
		PublicKeyPEM: j.PublicKeyPEM,
		Names:        j.Names,
	})
	if err != nil {
		return remote.JobHandle{}, fmt.Errorf("%w: %v", kerrors.ErrDispatchRejected, err)
	}

	c.log.Debugf("dispatched recovery job on %s (run %d)", j.TempRef, handle.RunID)
	return handle, nil
}

// AwaitResult polls the job until it reaches a terminal state or timeout
// elapses. A run that completes without committing a well-formed result is
// reported as Failed, not Succeeded.
func (c *Coordinator) AwaitResult(ctx context.Context, handle remote.JobHandle, pollInterval, timeout time.Duration) (Outcome, error) {
	deadline := time.Now().Add(timeout)

	for {
		status, err := c.store.PollJob(ctx, handle)
		if err != nil {
			return Outcome{}, fmt.Errorf("polling job on %s: %w", handle.Ref, err)
		}

		switch status.State {
		case remote.JobSucceeded:
			return c.collect(ctx, handle)
		case remote.JobFailed:
			return Outcome{State: Failed, Diagnostic: status.Diagnostic}, nil
		}

		if time.Now().Add(pollInterval).After(deadline) {
			return Outcome{State: TimedOut, Diagnostic: fmt.Sprintf("no terminal state after %s", timeout)}, nil
		}

		c.log.Debugf("job on %s still running", handle.Ref)
		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// collect reads the payload at the temp ref's tip and parses it as a
// Result. A tip still holding the request manifest (or anything else that
// is not a result) means the run "succeeded" without producing output.
func (c *Coordinator) collect(ctx context.Context, handle remote.JobHandle) (Outcome, error) {
	content, err := c.store.ReadCommittedContent(ctx, handle.Ref)
	if err != nil {
		if errors.Is(err, kerrors.ErrRefNotFound) {
			return Outcome{State: Failed, Diagnostic: "job completed without committing a result payload"}, nil
		}
		return Outcome{}, fmt.Errorf("reading result from %s: %w", handle.Ref, err)
	}

	var result Result
	if err := json.Unmarshal(content, &result); err != nil || len(result.Envelopes) == 0 {
		return Outcome{State: Failed, Diagnostic: "job completed without committing a result payload"}, nil
	}

	return Outcome{State: Succeeded, Result: &result}, nil
}
