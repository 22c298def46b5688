package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
)

func TestMemoryStoreBranchLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tip, err := store.CreateBranch(ctx, "recovery/abc")
	if err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	got, err := store.BranchTip(ctx, "recovery/abc")
	if err != nil {
		t.Fatalf("BranchTip failed: %v", err)
	}
	if got != tip {
		t.Errorf("tip mismatch: got %s, want %s", got, tip)
	}

	if _, err := store.CreateBranch(ctx, "recovery/abc"); !errors.Is(err, kerrors.ErrRefExists) {
		t.Errorf("duplicate create: got %v, want ErrRefExists", err)
	}

	if err := store.DeleteBranch(ctx, "recovery/abc"); err != nil {
		t.Fatalf("DeleteBranch failed: %v", err)
	}
	if err := store.DeleteBranch(ctx, "recovery/abc"); !errors.Is(err, kerrors.ErrRefNotFound) {
		t.Errorf("second delete: got %v, want ErrRefNotFound", err)
	}
	if _, err := store.BranchTip(ctx, "recovery/abc"); !errors.Is(err, kerrors.ErrRefNotFound) {
		t.Errorf("tip of deleted ref: got %v, want ErrRefNotFound", err)
	}
}

func TestMemoryStoreCommitMovesTip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateBranch(ctx, "recovery/abc")
	if err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	pushed, err := store.CommitAndPush(ctx, "recovery/abc", []byte(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("CommitAndPush failed: %v", err)
	}
	if pushed == created {
		t.Error("push should produce a new commit id")
	}

	tip, err := store.BranchTip(ctx, "recovery/abc")
	if err != nil {
		t.Fatalf("BranchTip failed: %v", err)
	}
	if tip != pushed {
		t.Errorf("tip should be the pushed commit: got %s, want %s", tip, pushed)
	}

	content, err := store.ReadCommittedContent(ctx, "recovery/abc")
	if err != nil {
		t.Fatalf("ReadCommittedContent failed: %v", err)
	}
	if string(content) != `{"k":"v"}` {
		t.Errorf("unexpected content: %s", content)
	}
}

func TestMemoryStoreConditionalDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateBranch(ctx, "locks/recovery")
	if err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	pushed, err := store.CommitAndPush(ctx, "locks/recovery", []byte("claim"))
	if err != nil {
		t.Fatalf("CommitAndPush failed: %v", err)
	}

	// A delete anchored to a superseded tip must be refused.
	if err := store.DeleteBranchIfTip(ctx, "locks/recovery", created); !errors.Is(err, kerrors.ErrTipMoved) {
		t.Fatalf("stale-tip delete: got %v, want ErrTipMoved", err)
	}
	if !store.HasBranch("locks/recovery") {
		t.Fatal("refused delete should leave the ref in place")
	}

	if err := store.DeleteBranchIfTip(ctx, "locks/recovery", pushed); err != nil {
		t.Fatalf("current-tip delete failed: %v", err)
	}
	if err := store.DeleteBranchIfTip(ctx, "locks/recovery", pushed); !errors.Is(err, kerrors.ErrRefNotFound) {
		t.Errorf("delete of missing ref: got %v, want ErrRefNotFound", err)
	}
}

func TestMemoryStoreReadBeforeAnyCommit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.CreateBranch(ctx, "recovery/abc"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if _, err := store.ReadCommittedContent(ctx, "recovery/abc"); !errors.Is(err, kerrors.ErrRefNotFound) {
		t.Errorf("got %v, want ErrRefNotFound for ref with no payload", err)
	}
}

func TestMemoryStoreJobRunsOnFirstPoll(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Runner = func(inputs JobInputs, request []byte) ([]byte, error) {
		if string(request) != "request" {
			t.Errorf("runner got request %q", request)
		}
		return []byte("result"), nil
	}

	if _, err := store.CreateBranch(ctx, "recovery/abc"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if _, err := store.CommitAndPush(ctx, "recovery/abc", []byte("request")); err != nil {
		t.Fatalf("CommitAndPush failed: %v", err)
	}

	handle, err := store.DispatchJob(ctx, "recovery/abc", JobInputs{Scheme: "hybrid-v2"})
	if err != nil {
		t.Fatalf("DispatchJob failed: %v", err)
	}

	status, err := store.PollJob(ctx, handle)
	if err != nil {
		t.Fatalf("PollJob failed: %v", err)
	}
	if status.State != JobSucceeded {
		t.Fatalf("got state %v, want succeeded", status.State)
	}

	content, err := store.ReadCommittedContent(ctx, "recovery/abc")
	if err != nil {
		t.Fatalf("ReadCommittedContent failed: %v", err)
	}
	if string(content) != "result" {
		t.Errorf("job result not committed: got %q", content)
	}
}

func TestMemoryStoreJobFailureSurfacesDiagnostic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Runner = func(inputs JobInputs, request []byte) ([]byte, error) {
		return nil, errors.New("missing secret DB_URL")
	}

	if _, err := store.CreateBranch(ctx, "recovery/abc"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	handle, err := store.DispatchJob(ctx, "recovery/abc", JobInputs{})
	if err != nil {
		t.Fatalf("DispatchJob failed: %v", err)
	}

	status, err := store.PollJob(ctx, handle)
	if err != nil {
		t.Fatalf("PollJob failed: %v", err)
	}
	if status.State != JobFailed {
		t.Fatalf("got state %v, want failed", status.State)
	}
	if status.Diagnostic != "missing secret DB_URL" {
		t.Errorf("unexpected diagnostic: %q", status.Diagnostic)
	}
}

func TestMemoryStoreRunnerCanUseStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.PutSecret(ctx, "DB_URL", "postgres://x"); err != nil {
		t.Fatalf("PutSecret failed: %v", err)
	}

	// The recovery tests wire runners that read secrets back out of the
	// store, so a poll must not hold the store mutex across the runner.
	store.Runner = func(inputs JobInputs, request []byte) ([]byte, error) {
		names, err := store.ListSecretNames(context.Background())
		if err != nil {
			return nil, err
		}
		if len(names) != 1 {
			return nil, errors.New("unexpected store contents")
		}
		return []byte("result"), nil
	}

	if _, err := store.CreateBranch(ctx, "recovery/abc"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	handle, err := store.DispatchJob(ctx, "recovery/abc", JobInputs{})
	if err != nil {
		t.Fatalf("DispatchJob failed: %v", err)
	}

	done := make(chan JobStatus, 1)
	go func() {
		status, err := store.PollJob(ctx, handle)
		if err != nil {
			t.Errorf("PollJob failed: %v", err)
		}
		done <- status
	}()

	select {
	case status := <-done:
		if status.State != JobSucceeded {
			t.Fatalf("got state %v (%s), want succeeded", status.State, status.Diagnostic)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("PollJob blocked on a runner that calls back into the store")
	}
}

func TestMemoryStoreDispatchRequiresRef(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.DispatchJob(context.Background(), "recovery/missing", JobInputs{}); !errors.Is(err, kerrors.ErrRefNotFound) {
		t.Errorf("got %v, want ErrRefNotFound", err)
	}
}
