package remote

import (
	"context"
	"fmt"
	"sync"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
)

// memoryBranch is one ref in the fake: its tip commit id and the payload
// blob at that tip.
type memoryBranch struct {
	tip     string
	content []byte
}

// memoryJob is one dispatched run.
type memoryJob struct {
	ref    string
	inputs JobInputs
	status JobStatus
	ran    bool
}

// MemoryStore is an in-process Store used by tests across the module. It is
// safe for concurrent use, which the lock tests rely on.
//
// A dispatched job runs lazily on the first poll: Runner receives the job
// inputs and the payload currently committed to the job's ref, and its
// return value is committed back before the job reports success. A nil
// Runner makes every job fail.
type MemoryStore struct {
	mu sync.Mutex

	secrets  map[string]string
	branches map[string]*memoryBranch
	jobs     map[int64]*memoryJob

	nextCommit int
	nextRun    int64

	// Runner produces the job's result payload from its inputs and the
	// committed request payload.
	Runner func(inputs JobInputs, request []byte) ([]byte, error)

	// DispatchErr, when set, is returned by DispatchJob.
	DispatchErr error
	// TransientListFailures makes that many leading ListSecretNames calls
	// fail with a transient error.
	TransientListFailures int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets:  make(map[string]string),
		branches: make(map[string]*memoryBranch),
		jobs:     make(map[int64]*memoryJob),
	}
}

func (m *MemoryStore) commitID() string {
	m.nextCommit++
	return fmt.Sprintf("commit-%d", m.nextCommit)
}

func (m *MemoryStore) PutSecret(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[name] = value
	return nil
}

func (m *MemoryStore) ListSecretNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TransientListFailures > 0 {
		m.TransientListFailures--
		return nil, Transient(fmt.Errorf("simulated outage"))
	}

	names := make([]string, 0, len(m.secrets))
	for name := range m.secrets {
		names = append(names, name)
	}
	return names, nil
}

func (m *MemoryStore) DeleteSecret(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[name]; !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrSecretNotFound, name)
	}
	delete(m.secrets, name)
	return nil
}

func (m *MemoryStore) CreateBranch(ctx context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[ref]; ok {
		return "", fmt.Errorf("%w: %s", kerrors.ErrRefExists, ref)
	}
	tip := m.commitID()
	m.branches[ref] = &memoryBranch{tip: tip}
	return tip, nil
}

func (m *MemoryStore) DeleteBranch(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[ref]; !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	delete(m.branches, ref)
	return nil
}

func (m *MemoryStore) DeleteBranchIfTip(ctx context.Context, ref, tip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[ref]
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	if b.tip != tip {
		return fmt.Errorf("%w: %s is at %s", kerrors.ErrTipMoved, ref, b.tip)
	}
	delete(m.branches, ref)
	return nil
}

func (m *MemoryStore) BranchTip(ctx context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	return b.tip, nil
}

func (m *MemoryStore) CommitAndPush(ctx context.Context, ref string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	b.content = append([]byte(nil), content...)
	b.tip = m.commitID()
	return b.tip, nil
}

func (m *MemoryStore) ReadCommittedContent(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[ref]
	if !ok || b.content == nil {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	return append([]byte(nil), b.content...), nil
}

func (m *MemoryStore) DispatchJob(ctx context.Context, ref string, inputs JobInputs) (JobHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DispatchErr != nil {
		return JobHandle{}, m.DispatchErr
	}
	if _, ok := m.branches[ref]; !ok {
		return JobHandle{}, fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}

	m.nextRun++
	m.jobs[m.nextRun] = &memoryJob{
		ref:    ref,
		inputs: inputs,
		status: JobStatus{State: JobRunning},
	}
	return JobHandle{Ref: ref, RunID: m.nextRun}, nil
}

func (m *MemoryStore) PollJob(ctx context.Context, handle JobHandle) (JobStatus, error) {
	m.mu.Lock()

	j, ok := m.jobs[handle.RunID]
	if !ok {
		m.mu.Unlock()
		return JobStatus{}, fmt.Errorf("unknown run %d", handle.RunID)
	}
	if j.ran {
		status := j.status
		m.mu.Unlock()
		return status, nil
	}
	j.ran = true

	runner := m.Runner
	inputs := j.inputs
	ref := j.ref
	var request []byte
	if b, ok := m.branches[ref]; ok {
		request = append([]byte(nil), b.content...)
	}

	// Run outside the mutex: runners are allowed to call back into the
	// store, the way the real job talks to the real platform.
	m.mu.Unlock()

	var result []byte
	var err error
	if runner == nil {
		err = fmt.Errorf("no runner configured")
	} else {
		result, err = runner(inputs, request)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		j.status = JobStatus{State: JobFailed, Diagnostic: err.Error()}
		return j.status, nil
	}

	b, ok := m.branches[ref]
	if !ok {
		j.status = JobStatus{State: JobFailed, Diagnostic: "ref deleted while running"}
		return j.status, nil
	}
	b.content = append([]byte(nil), result...)
	b.tip = m.commitID()
	j.status = JobStatus{State: JobSucceeded}
	return j.status, nil
}

// HasBranch reports whether ref currently exists. Test helper.
func (m *MemoryStore) HasBranch(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.branches[ref]
	return ok
}

// Branches returns the names of all live refs. Test helper.
func (m *MemoryStore) Branches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]string, 0, len(m.branches))
	for ref := range m.branches {
		refs = append(refs, ref)
	}
	return refs
}

// SecretsSnapshot returns a copy of the stored secrets. Test helper; the
// production Store surface never reads values back.
func (m *MemoryStore) SecretsSnapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.secrets))
	for k, v := range m.secrets {
		out[k] = v
	}
	return out
}
