package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/PolarWolf314/kowhai/internal/envelope"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/remote"
)

// sealingRunner wires job.Seal into a MemoryStore so the fake job behaves
// like the real workflow: read the request manifest, seal the named secrets,
// commit the result.
func sealingRunner(values map[string]string, sharedToken string) func(remote.JobInputs, []byte) ([]byte, error) {
	return func(inputs remote.JobInputs, request []byte) ([]byte, error) {
		var req Request
		if err := json.Unmarshal(request, &req); err != nil {
			return nil, err
		}
		result, err := Seal(&req, values, sharedToken)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

func TestDispatchAndAwaitHybrid(t *testing.T) {
	store := remote.NewMemoryStore()
	store.Runner = sealingRunner(map[string]string{"DB_URL": "postgres://x"}, "")
	coord := NewCoordinator(store, logger.Logger{})
	ctx := context.Background()

	kp, err := envelope.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	pemBytes, err := kp.PublicPEM()
	if err != nil {
		t.Fatalf("PublicPEM failed: %v", err)
	}

	handle, err := coord.Dispatch(ctx, RecoveryJob{
		Names:        []string{"DB_URL"},
		Scheme:       envelope.SchemeHybridV2,
		PublicKeyPEM: string(pemBytes),
		TempRef:      "recovery/test",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	outcome, err := coord.AwaitResult(ctx, handle, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	if outcome.State != Succeeded {
		t.Fatalf("got state %v (%s), want succeeded", outcome.State, outcome.Diagnostic)
	}

	env, ok := outcome.Result.Envelopes["DB_URL"]
	if !ok {
		t.Fatal("result missing envelope for DB_URL")
	}
	plaintext, err := kp.Decrypt(env)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(plaintext) != "postgres://x" {
		t.Errorf("got %q, want %q", plaintext, "postgres://x")
	}
}

func TestDispatchRejectedWhenRefExists(t *testing.T) {
	store := remote.NewMemoryStore()
	coord := NewCoordinator(store, logger.Logger{})
	ctx := context.Background()

	if _, err := store.CreateBranch(ctx, "recovery/test"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	_, err := coord.Dispatch(ctx, RecoveryJob{
		Names:   []string{"DB_URL"},
		Scheme:  envelope.SchemeSymmetricV1,
		TempRef: "recovery/test",
	})
	if !errors.Is(err, kerrors.ErrDispatchRejected) {
		t.Fatalf("got %v, want ErrDispatchRejected", err)
	}
}

func TestAwaitReportsJobFailure(t *testing.T) {
	store := remote.NewMemoryStore()
	store.Runner = sealingRunner(map[string]string{}, "") // no secrets available
	coord := NewCoordinator(store, logger.Logger{})
	ctx := context.Background()

	handle, err := coord.Dispatch(ctx, RecoveryJob{
		Names:   []string{"DB_URL"},
		Scheme:  envelope.SchemeSymmetricV1,
		TempRef: "recovery/test",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	outcome, err := coord.AwaitResult(ctx, handle, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	if outcome.State != Failed {
		t.Fatalf("got state %v, want failed", outcome.State)
	}
	if outcome.Diagnostic == "" {
		t.Error("failed outcome should carry a diagnostic")
	}
}

func TestAwaitTreatsMissingResultAsFailure(t *testing.T) {
	store := remote.NewMemoryStore()
	// Runner that "succeeds" but leaves the request manifest in place.
	store.Runner = func(inputs remote.JobInputs, request []byte) ([]byte, error) {
		return request, nil
	}
	coord := NewCoordinator(store, logger.Logger{})
	ctx := context.Background()

	handle, err := coord.Dispatch(ctx, RecoveryJob{
		Names:   []string{"DB_URL"},
		Scheme:  envelope.SchemeSymmetricV1,
		TempRef: "recovery/test",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	outcome, err := coord.AwaitResult(ctx, handle, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	if outcome.State != Failed {
		t.Fatalf("got state %v, want failed for result-less success", outcome.State)
	}
}

func TestSealSymmetricRoundTrip(t *testing.T) {
	req := &Request{
		Scheme: envelope.SchemeSymmetricV1,
		Names:  []string{"API_KEY"},
	}
	result, err := Seal(req, map[string]string{"API_KEY": "hunter2"}, "token")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	plaintext, err := envelope.DecryptSymmetric(result.Envelopes["API_KEY"], "token")
	if err != nil {
		t.Fatalf("DecryptSymmetric failed: %v", err)
	}
	if string(plaintext) != "hunter2" {
		t.Errorf("got %q, want %q", plaintext, "hunter2")
	}
}

func TestSealFailsOnMissingSecret(t *testing.T) {
	req := &Request{
		Scheme: envelope.SchemeSymmetricV1,
		Names:  []string{"API_KEY", "DB_URL"},
	}
	_, err := Seal(req, map[string]string{"API_KEY": "x"}, "token")
	if !errors.Is(err, kerrors.ErrSecretNotFound) {
		t.Fatalf("got %v, want ErrSecretNotFound", err)
	}
}

func TestSealRejectsUnknownScheme(t *testing.T) {
	req := &Request{Scheme: "symmetric-v0", Names: []string{"X"}}
	if _, err := Seal(req, map[string]string{"X": "v"}, "token"); !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}
