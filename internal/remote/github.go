package remote

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/crypto/nacl/box"
)

// payloadPath is the well-known blob each protocol ref carries. The
// coordinator commits the request manifest here and the remote job
// overwrites it with the result.
const payloadPath = "payload.json"

const defaultAPIURL = "https://api.github.com"

// GitHub implements Store against the GitHub REST API: Actions repository
// secrets for the secret store, the Git Data API for the ref namespace, the
// Contents API for payload blobs, and workflow_dispatch runs for the remote
// job.
type GitHub struct {
	Owner        string
	Repo         string
	BaseBranch   string
	WorkflowFile string

	token  string
	apiURL string
	client *retryablehttp.Client
	log    logger.Logger

	mu        sync.Mutex
	sealKeyID string
	sealKey   *[32]byte
	// runIDs remembers the run resolved for each ref, since PollJob gets
	// the handle by value and run listing is expensive.
	runIDs map[string]int64
}

// NewGitHub builds a GitHub adapter. token needs repo and workflow scopes.
func NewGitHub(owner, repo, baseBranch, workflowFile, token string, log logger.Logger) *GitHub {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return &GitHub{
		Owner:        owner,
		Repo:         repo,
		BaseBranch:   baseBranch,
		WorkflowFile: workflowFile,
		token:        token,
		apiURL:       defaultAPIURL,
		client:       client,
		log:          log,
		runIDs:       make(map[string]int64),
	}
}

// SetAPIURL overrides the API base URL. Used for GitHub Enterprise and for
// tests against a local server.
func (g *GitHub) SetAPIURL(u string) {
	g.apiURL = strings.TrimSuffix(u, "/")
}

// apiError is a non-2xx response from the GitHub API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github api: %d %s", e.Status, e.Message)
}

// doJSON performs one API request. The response body, when present and
// wanted, is decoded into out. 5xx and 429 responses come back wrapped with
// Transient.
func (g *GitHub) doJSON(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, g.apiURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, Transient(fmt.Errorf("github request %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, Transient(fmt.Errorf("reading github response: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decoding github response: %w", err)
			}
		}
		return resp.StatusCode, nil
	}

	apiErr := &apiError{Status: resp.StatusCode}
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &msg) == nil {
		apiErr.Message = msg.Message
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, Transient(apiErr)
	}
	return resp.StatusCode, apiErr
}

// sealSecret encrypts value with the repository's secrets public key, as
// the Actions API requires (libsodium sealed box).
func (g *GitHub) sealSecret(ctx context.Context, value string) (encrypted, keyID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealKey == nil {
		var resp struct {
			KeyID string `json:"key_id"`
			Key   string `json:"key"`
		}
		path := fmt.Sprintf("/repos/%s/%s/actions/secrets/public-key", g.Owner, g.Repo)
		if _, err := g.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return "", "", fmt.Errorf("fetching secrets public key: %w", err)
		}

		raw, err := base64.StdEncoding.DecodeString(resp.Key)
		if err != nil || len(raw) != 32 {
			return "", "", fmt.Errorf("invalid secrets public key from platform")
		}

		var key [32]byte
		copy(key[:], raw)
		g.sealKey = &key
		g.sealKeyID = resp.KeyID
	}

	sealed, err := box.SealAnonymous(nil, []byte(value), g.sealKey, rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("sealing secret value: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sealed), g.sealKeyID, nil
}

func (g *GitHub) PutSecret(ctx context.Context, name, value string) error {
	encrypted, keyID, err := g.sealSecret(ctx, value)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/repos/%s/%s/actions/secrets/%s", g.Owner, g.Repo, url.PathEscape(name))
	body := map[string]string{
		"encrypted_value": encrypted,
		"key_id":          keyID,
	}
	if _, err := g.doJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("storing secret %s: %w", name, err)
	}
	return nil
}

func (g *GitHub) ListSecretNames(ctx context.Context) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		var resp struct {
			TotalCount int `json:"total_count"`
			Secrets    []struct {
				Name string `json:"name"`
			} `json:"secrets"`
		}
		path := fmt.Sprintf("/repos/%s/%s/actions/secrets?per_page=100&page=%d", g.Owner, g.Repo, page)
		if _, err := g.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing secrets: %w", err)
		}

		for _, s := range resp.Secrets {
			names = append(names, s.Name)
		}
		if len(names) >= resp.TotalCount || len(resp.Secrets) == 0 {
			return names, nil
		}
	}
}

func (g *GitHub) DeleteSecret(ctx context.Context, name string) error {
	path := fmt.Sprintf("/repos/%s/%s/actions/secrets/%s", g.Owner, g.Repo, url.PathEscape(name))
	status, err := g.doJSON(ctx, http.MethodDelete, path, nil, nil)
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", kerrors.ErrSecretNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("deleting secret %s: %w", name, err)
	}
	return nil
}

func (g *GitHub) BranchTip(ctx context.Context, ref string) (string, error) {
	var resp struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/ref/%s", g.Owner, g.Repo, url.PathEscape("heads/"+ref))
	status, err := g.doJSON(ctx, http.MethodGet, path, nil, &resp)
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("reading tip of %s: %w", ref, err)
	}
	return resp.Object.SHA, nil
}

func (g *GitHub) CreateBranch(ctx context.Context, ref string) (string, error) {
	base, err := g.BranchTip(ctx, g.BaseBranch)
	if err != nil {
		return "", fmt.Errorf("resolving base branch %s: %w", g.BaseBranch, err)
	}

	path := fmt.Sprintf("/repos/%s/%s/git/refs", g.Owner, g.Repo)
	body := map[string]string{
		"ref": "refs/heads/" + ref,
		"sha": base,
	}
	status, err := g.doJSON(ctx, http.MethodPost, path, body, nil)
	if status == http.StatusUnprocessableEntity {
		// GitHub rejects the create when the ref already exists; this is the
		// atomic create-or-reject the lock relies on.
		return "", fmt.Errorf("%w: %s", kerrors.ErrRefExists, ref)
	}
	if err != nil {
		return "", fmt.Errorf("creating ref %s: %w", ref, err)
	}
	return base, nil
}

func (g *GitHub) DeleteBranch(ctx context.Context, ref string) error {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/%s", g.Owner, g.Repo, url.PathEscape("heads/"+ref))
	status, err := g.doJSON(ctx, http.MethodDelete, path, nil, nil)
	if status == http.StatusNotFound || status == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	if err != nil {
		return fmt.Errorf("deleting ref %s: %w", ref, err)
	}
	return nil
}

// DeleteBranchIfTip deletes ref only while its tip is still tip. The API
// has no conditional ref delete, so the tip is re-read immediately before
// deleting; a writer landing between the two calls can still be lost, but
// the window shrinks from the caller's whole observation to one round trip.
func (g *GitHub) DeleteBranchIfTip(ctx context.Context, ref, tip string) error {
	current, err := g.BranchTip(ctx, ref)
	if err != nil {
		return err
	}
	if current != tip {
		return fmt.Errorf("%w: %s is at %s", kerrors.ErrTipMoved, ref, current)
	}
	return g.DeleteBranch(ctx, ref)
}

// payloadSHA returns the blob SHA of the payload file on ref, or "" when the
// file does not exist yet.
func (g *GitHub) payloadSHA(ctx context.Context, ref string) (string, error) {
	var resp struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", g.Owner, g.Repo, payloadPath, url.QueryEscape(ref))
	status, err := g.doJSON(ctx, http.MethodGet, path, nil, &resp)
	if status == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return resp.SHA, nil
}

func (g *GitHub) CommitAndPush(ctx context.Context, ref string, content []byte) (string, error) {
	existing, err := g.payloadSHA(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("checking payload on %s: %w", ref, err)
	}

	body := map[string]string{
		"message": "kowhai: update payload",
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  ref,
	}
	if existing != "" {
		body["sha"] = existing
	}

	var resp struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", g.Owner, g.Repo, payloadPath)
	status, err := g.doJSON(ctx, http.MethodPut, path, body, &resp)
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("pushing payload to %s: %w", ref, err)
	}
	return resp.Commit.SHA, nil
}

func (g *GitHub) ReadCommittedContent(ctx context.Context, ref string) ([]byte, error) {
	var resp struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", g.Owner, g.Repo, payloadPath, url.QueryEscape(ref))
	status, err := g.doJSON(ctx, http.MethodGet, path, nil, &resp)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("reading payload on %s: %w", ref, err)
	}

	if resp.Encoding != "base64" {
		return []byte(resp.Content), nil
	}
	// The Contents API wraps base64 at 60 columns.
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding payload on %s: %w", ref, err)
	}
	return data, nil
}

func (g *GitHub) DispatchJob(ctx context.Context, ref string, inputs JobInputs) (JobHandle, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches", g.Owner, g.Repo, url.PathEscape(g.WorkflowFile))
	body := map[string]any{
		"ref": ref,
		"inputs": map[string]string{
			"scheme":     inputs.Scheme,
			"public_key": inputs.PublicKeyPEM,
			"names":      strings.Join(inputs.Names, ","),
		},
	}
	if _, err := g.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return JobHandle{}, fmt.Errorf("dispatching workflow %s on %s: %w", g.WorkflowFile, ref, err)
	}

	handle := JobHandle{Ref: ref}
	// Dispatch returns no run id; run listing is eventually consistent, so a
	// missing id here is fine and resolved during polling.
	if id, err := g.findRun(ctx, ref); err == nil && id != 0 {
		handle.RunID = id
		g.rememberRun(ref, id)
	}
	return handle, nil
}

func (g *GitHub) rememberRun(ref string, id int64) {
	g.mu.Lock()
	g.runIDs[ref] = id
	g.mu.Unlock()
}

func (g *GitHub) rememberedRun(ref string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runIDs[ref]
}

// findRun locates the workflow_dispatch run on ref. Returns 0 when the run
// is not visible yet.
func (g *GitHub) findRun(ctx context.Context, ref string) (int64, error) {
	var resp struct {
		WorkflowRuns []struct {
			ID int64 `json:"id"`
		} `json:"workflow_runs"`
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/runs?branch=%s&event=workflow_dispatch&per_page=1", g.Owner, g.Repo, url.QueryEscape(ref))
	if _, err := g.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.WorkflowRuns) == 0 {
		return 0, nil
	}
	return resp.WorkflowRuns[0].ID, nil
}

func (g *GitHub) PollJob(ctx context.Context, handle JobHandle) (JobStatus, error) {
	if handle.RunID == 0 {
		handle.RunID = g.rememberedRun(handle.Ref)
	}
	if handle.RunID == 0 {
		id, err := g.findRun(ctx, handle.Ref)
		if err != nil {
			return JobStatus{}, fmt.Errorf("locating run for %s: %w", handle.Ref, err)
		}
		if id == 0 {
			return JobStatus{State: JobRunning}, nil
		}
		handle.RunID = id
		g.rememberRun(handle.Ref, id)
	}

	var resp struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d", g.Owner, g.Repo, handle.RunID)
	if _, err := g.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return JobStatus{}, fmt.Errorf("polling run %d: %w", handle.RunID, err)
	}

	if resp.Status != "completed" {
		return JobStatus{State: JobRunning}, nil
	}
	if resp.Conclusion == "success" {
		return JobStatus{State: JobSucceeded}, nil
	}
	return JobStatus{State: JobFailed, Diagnostic: "run concluded: " + resp.Conclusion}, nil
}
