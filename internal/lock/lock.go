// Package lock implements a distributed mutex on top of the remote ref
// namespace. Acquisition races the atomic create-or-reject of a well-known
// ref; ownership is proven by re-reading the remote tip, never assumed from
// a push that may have half-landed.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/remote"
)

const refPrefix = "locks/"

// Ref returns the remote ref backing the named lock.
func Ref(name string) string {
	return refPrefix + name
}

// errContended marks one failed acquisition attempt; the acquire loop
// retries it until the deadline.
var errContended = errors.New("lock contended")

// claim is the JSON blob committed to the lock ref. acquired_at lets other
// holders judge staleness.
type claim struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Handle represents a held lock.
type Handle struct {
	name   string
	ref    string
	commit string
}

// Name returns the lock's logical name.
func (h *Handle) Name() string { return h.name }

// Manager acquires and releases named locks against a Store.
type Manager struct {
	store remote.Store
	owner string
	log   logger.Logger

	// StaleAfter, when positive, allows Acquire to reclaim a lock whose
	// claim is older than this. Zero disables reclaim.
	StaleAfter time.Duration
}

// NewManager builds a Manager. owner identifies this client in the claim
// committed to the lock ref.
func NewManager(store remote.Store, owner string, log logger.Logger) *Manager {
	return &Manager{store: store, owner: owner, log: log}
}

// Acquire takes the named lock, retrying every retryInterval until timeout.
// Returns errors.ErrLockTimeout when the lock stays contended past the
// deadline.
func (m *Manager) Acquire(ctx context.Context, name string, timeout, retryInterval time.Duration) (*Handle, error) {
	deadline := time.Now().Add(timeout)

	for {
		handle, err := m.tryAcquire(ctx, name)
		if err == nil {
			m.log.Debugf("acquired lock %s at %s", name, handle.commit)
			return handle, nil
		}
		if !errors.Is(err, errContended) {
			return nil, err
		}

		if m.StaleAfter > 0 {
			if reclaimed, rerr := m.reclaimIfStale(ctx, name); rerr == nil && reclaimed {
				m.log.WarnfAlways("reclaimed stale lock %s", name)
				continue
			}
		}

		if time.Now().Add(retryInterval).After(deadline) {
			return nil, fmt.Errorf("%w: %s still held after %s", kerrors.ErrLockTimeout, name, timeout)
		}

		m.log.Debugf("lock %s contended, retrying in %s", name, retryInterval)
		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire makes one pass at the lock: create the ref, commit the claim,
// then re-read the remote tip to prove the claim actually landed.
func (m *Manager) tryAcquire(ctx context.Context, name string) (*Handle, error) {
	ref := Ref(name)

	if _, err := m.store.CreateBranch(ctx, ref); err != nil {
		if errors.Is(err, kerrors.ErrRefExists) {
			return nil, errContended
		}
		return nil, fmt.Errorf("creating lock ref %s: %w", ref, err)
	}

	body, err := json.Marshal(claim{Owner: m.owner, AcquiredAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("encoding lock claim: %w", err)
	}

	commit, err := m.store.CommitAndPush(ctx, ref, body)
	if err != nil {
		// The ref is ours but the claim did not land; back out so the lock
		// is not wedged in a half-acquired state. Cleanup must survive a
		// cancelled ctx.
		if derr := m.store.DeleteBranch(context.WithoutCancel(ctx), ref); derr != nil && !errors.Is(derr, kerrors.ErrRefNotFound) {
			m.log.WarnfAlways("failed to back out lock ref %s: %v", ref, derr)
		}
		return nil, fmt.Errorf("pushing lock claim to %s: %w", ref, err)
	}

	// Ownership verification: the remote tip is authoritative, not our push.
	tip, err := m.store.BranchTip(ctx, ref)
	if err != nil {
		return nil, errContended
	}
	if tip != commit {
		return nil, errContended
	}

	return &Handle{name: name, ref: ref, commit: commit}, nil
}

// reclaimIfStale deletes the lock ref when its claim is older than
// StaleAfter. Reports whether a reclaim happened; the caller still has to
// win the following create race.
//
// The delete is conditional on the tip the staleness was judged from:
// another acquirer may reclaim and fully re-acquire the lock between our
// read and our delete, and an unconditional delete would destroy that live
// lock and let two holders coexist.
func (m *Manager) reclaimIfStale(ctx context.Context, name string) (bool, error) {
	ref := Ref(name)

	tip, err := m.store.BranchTip(ctx, ref)
	if err != nil {
		if errors.Is(err, kerrors.ErrRefNotFound) {
			return true, nil
		}
		return false, err
	}

	content, err := m.store.ReadCommittedContent(ctx, ref)
	if err != nil && !errors.Is(err, kerrors.ErrRefNotFound) {
		return false, err
	}

	var c claim
	if err != nil || json.Unmarshal(content, &c) != nil {
		// A ref without a readable claim means the holder died mid-acquire;
		// treat it as stale.
		c.AcquiredAt = time.Time{}
	}
	if !c.AcquiredAt.IsZero() && time.Since(c.AcquiredAt) < m.StaleAfter {
		return false, nil
	}

	if err := m.store.DeleteBranchIfTip(ctx, ref, tip); err != nil {
		if errors.Is(err, kerrors.ErrRefNotFound) {
			return true, nil
		}
		if errors.Is(err, kerrors.ErrTipMoved) {
			// Someone re-acquired after our read; the lock is live again.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release deletes the lock ref. Releasing a lock that is already gone is
// not an error, so cleanup paths can call this unconditionally.
func (m *Manager) Release(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return nil
	}
	if err := m.store.DeleteBranch(ctx, handle.ref); err != nil {
		if errors.Is(err, kerrors.ErrRefNotFound) {
			return nil
		}
		return fmt.Errorf("releasing lock %s: %w", handle.name, err)
	}
	m.log.Debugf("released lock %s", handle.name)
	return nil
}

// IsHeld reports whether the named lock ref currently exists. Advisory
// only; the answer can be stale by the time it is used.
func (m *Manager) IsHeld(ctx context.Context, name string) (bool, error) {
	_, err := m.store.BranchTip(ctx, Ref(name))
	if err != nil {
		if errors.Is(err, kerrors.ErrRefNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
