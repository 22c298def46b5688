package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/job"
	"github.com/PolarWolf314/kowhai/internal/lock"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/remote"
)

// setupOrchestrator wires a MemoryStore whose fake job seals the stored
// secrets, mirroring the real workflow where the platform injects secret
// values into the job environment.
func setupOrchestrator(t *testing.T, secrets map[string]string, opts Options) (*Orchestrator, *remote.MemoryStore) {
	t.Helper()

	store := remote.NewMemoryStore()
	for name, value := range secrets {
		if err := store.PutSecret(context.Background(), name, value); err != nil {
			t.Fatalf("PutSecret failed: %v", err)
		}
	}
	store.Runner = func(inputs remote.JobInputs, request []byte) ([]byte, error) {
		var req job.Request
		if err := json.Unmarshal(request, &req); err != nil {
			return nil, err
		}
		result, err := job.Seal(&req, store.SecretsSnapshot(), opts.SharedToken)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}

	if opts.LockTimeout == 0 {
		opts.LockTimeout = time.Second
	}
	if opts.LockRetryInterval == 0 {
		opts.LockRetryInterval = time.Millisecond
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.JobTimeout == 0 {
		opts.JobTimeout = time.Second
	}

	log := logger.Logger{}
	locks := lock.NewManager(store, "test-owner", log)
	jobs := job.NewCoordinator(store, log)
	return New(store, locks, jobs, opts, log), store
}

// assertNoRemoteState fails if any run artifacts survived cleanup.
func assertNoRemoteState(t *testing.T, store *remote.MemoryStore) {
	t.Helper()
	for _, ref := range store.Branches() {
		t.Errorf("orphaned ref after run: %s", ref)
	}
}

func TestRecoverSingleSecretHybrid(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"DB_URL": "postgres://x"}, Options{})

	values, err := orch.Recover(context.Background(), []string{"DB_URL"})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if values["DB_URL"] != "postgres://x" {
		t.Errorf("got %q, want %q", values["DB_URL"], "postgres://x")
	}
	if orch.State() != StateDone {
		t.Errorf("got state %v, want done", orch.State())
	}
	assertNoRemoteState(t, store)
}

func TestRecoverBulkAllOrNothing(t *testing.T) {
	secrets := map[string]string{
		"DB_URL":  "postgres://x",
		"API_KEY": "hunter2",
		"TOKEN":   "t",
	}
	orch, store := setupOrchestrator(t, secrets, Options{})

	values, err := orch.Recover(context.Background(), []string{"DB_URL", "API_KEY", "TOKEN"})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	for name, want := range secrets {
		if values[name] != want {
			t.Errorf("%s: got %q, want %q", name, values[name], want)
		}
	}
	assertNoRemoteState(t, store)
}

func TestRecoverSymmetricScheme(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"API_KEY": "hunter2"}, Options{SharedToken: "shared"})

	values, err := orch.Recover(context.Background(), []string{"API_KEY"})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if values["API_KEY"] != "hunter2" {
		t.Errorf("got %q, want %q", values["API_KEY"], "hunter2")
	}
	assertNoRemoteState(t, store)
}

func TestRecoverUnknownSecret(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"DB_URL": "x"}, Options{})

	_, err := orch.Recover(context.Background(), []string{"NOPE"})
	if !errors.Is(err, kerrors.ErrSecretNotFound) {
		t.Fatalf("got %v, want ErrSecretNotFound", err)
	}
	assertNoRemoteState(t, store)
}

func TestRecoverEmptyStore(t *testing.T) {
	orch, store := setupOrchestrator(t, nil, Options{})

	_, err := orch.Recover(context.Background(), []string{"DB_URL"})
	if !errors.Is(err, kerrors.ErrNoSecretsStored) {
		t.Fatalf("got %v, want ErrNoSecretsStored", err)
	}
	assertNoRemoteState(t, store)
}

func TestRecoverInvalidInput(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"DB_URL": "x"}, Options{})

	cases := [][]string{
		nil,
		{""},
		{"DB_URL", "DB_URL"},
	}
	for _, names := range cases {
		if _, err := orch.Recover(context.Background(), names); !errors.Is(err, kerrors.ErrInvalidInput) {
			t.Errorf("Recover(%v): got %v, want ErrInvalidInput", names, err)
		}
	}
	// Input validation happens before any remote mutation.
	assertNoRemoteState(t, store)
}

func TestRecoverCorruptedResultFailsClosed(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"DB_URL": "x"}, Options{})

	// Wrap the runner so the committed result is tampered with in flight.
	inner := store.Runner
	store.Runner = func(inputs remote.JobInputs, request []byte) ([]byte, error) {
		data, err := inner(inputs, request)
		if err != nil {
			return nil, err
		}
		var result job.Result
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
		result.Envelopes["DB_URL"].AuthTag[0] ^= 0x01
		return json.Marshal(&result)
	}

	_, err := orch.Recover(context.Background(), []string{"DB_URL"})
	if !errors.Is(err, kerrors.ErrDecryptionFailed) {
		t.Fatalf("got %v, want ErrDecryptionFailed", err)
	}
	if orch.State() != StateFailed {
		t.Errorf("got state %v, want failed", orch.State())
	}
	assertNoRemoteState(t, store)
}

func TestRecoverLockContention(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"DB_URL": "x"}, Options{
		LockTimeout:       30 * time.Millisecond,
		LockRetryInterval: 5 * time.Millisecond,
	})

	// Another client holds the lock for the whole attempt.
	holder := lock.NewManager(store, "other", logger.Logger{})
	handle, err := holder.Acquire(context.Background(), "recovery", time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer holder.Release(context.Background(), handle)

	_, err = orch.Recover(context.Background(), []string{"DB_URL"})
	if !errors.Is(err, kerrors.ErrLockTimeout) {
		t.Fatalf("got %v, want ErrLockTimeout", err)
	}

	// No temp ref should have been created before the lock was won.
	for _, ref := range store.Branches() {
		if strings.HasPrefix(ref, "recovery/") {
			t.Errorf("temp ref created despite lock timeout: %s", ref)
		}
	}
}

func TestRecoverDispatchRejectedCleansUp(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"DB_URL": "x"}, Options{})
	store.DispatchErr = errors.New("workflow file missing")

	_, err := orch.Recover(context.Background(), []string{"DB_URL"})
	if !errors.Is(err, kerrors.ErrDispatchRejected) {
		t.Fatalf("got %v, want ErrDispatchRejected", err)
	}
	assertNoRemoteState(t, store)
}

func TestRecoverJobFailureCleansUp(t *testing.T) {
	orch, store := setupOrchestrator(t, map[string]string{"DB_URL": "x"}, Options{})
	store.Runner = func(inputs remote.JobInputs, request []byte) ([]byte, error) {
		return nil, errors.New("environment rejected the job")
	}

	_, err := orch.Recover(context.Background(), []string{"DB_URL"})
	if !errors.Is(err, kerrors.ErrJobFailed) {
		t.Fatalf("got %v, want ErrJobFailed", err)
	}
	assertNoRemoteState(t, store)
}
