package workflows

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/PolarWolf314/kowhai/internal/audit"
	"github.com/PolarWolf314/kowhai/internal/configs"
	"github.com/PolarWolf314/kowhai/internal/envfile"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	"github.com/PolarWolf314/kowhai/internal/job"
	"github.com/PolarWolf314/kowhai/internal/lock"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/recovery"
	"github.com/PolarWolf314/kowhai/internal/utils"
)

type RecoverOptions struct {
	// Names are the secrets to recover. Empty means every stored secret.
	Names []string
	// OutputPath, relative to the project root, receives the recovered
	// values as a dotenv file. Empty leaves the values in the result only.
	OutputPath string
	// SharedToken is required when the project is configured for the
	// symmetric scheme.
	SharedToken string
	Logger      logger.Logger
}

type RecoverResult struct {
	Names      []string
	Scheme     string
	OutputPath string
	// Values holds the recovered plaintext when no OutputPath was given.
	Values map[string]string
}

// Recover runs the full recovery protocol and either writes the recovered
// values to a dotenv file or hands them back to the caller. All-or-nothing:
// a partial recovery never produces output.
func Recover(ctx context.Context, opts RecoverOptions) (*RecoverResult, error) {
	p, err := openProject(opts.Logger)
	if err != nil {
		return nil, err
	}
	rc := p.config.Recovery

	if rc.Scheme == "symmetric-v1" && opts.SharedToken == "" {
		return nil, fmt.Errorf("%w: the symmetric scheme needs the shared recovery token", kerrors.ErrInvalidInput)
	}

	names := make([]string, 0, len(opts.Names))
	for _, name := range opts.Names {
		normalized := utils.NormalizeSecretName(name)
		if !utils.IsValidSecretName(normalized) {
			return nil, fmt.Errorf("%w: %q is not a usable secret name", kerrors.ErrInvalidInput, name)
		}
		names = append(names, normalized)
	}
	if len(names) == 0 {
		stored, err := p.store.ListSecretNames(ctx)
		if err != nil {
			return nil, err
		}
		if len(stored) == 0 {
			return nil, kerrors.ErrNoSecretsStored
		}
		names = stored
		sort.Strings(names)
	}

	locks := lock.NewManager(p.store, p.lockOwner(), opts.Logger)
	locks.StaleAfter = rc.LockStaleAfter()
	jobs := job.NewCoordinator(p.store, opts.Logger)

	orch := recovery.New(p.store, locks, jobs, recovery.Options{
		LockName:          rc.LockName,
		LockTimeout:       rc.LockTimeout(),
		LockRetryInterval: rc.LockRetryInterval(),
		PollInterval:      rc.PollInterval(),
		JobTimeout:        rc.JobTimeout(),
		SharedToken:       sharedTokenFor(rc.Scheme, opts.SharedToken),
	}, opts.Logger)

	values, err := orch.Recover(ctx, names)
	if err != nil {
		return nil, err
	}

	result := &RecoverResult{
		Names:      names,
		Scheme:     rc.Scheme,
		OutputPath: opts.OutputPath,
	}
	if opts.OutputPath != "" {
		path := filepath.Join(configs.ProjectKowhaiSettings.ProjectPath, opts.OutputPath)
		if err := envfile.Write(path, values); err != nil {
			return nil, err
		}
	} else {
		result.Values = values
	}

	if err := audit.LogWithUser(audit.Entry{
		UserUUID:   p.userUUID,
		Operation:  "recover",
		Names:      names,
		Scheme:     rc.Scheme,
		OutputPath: opts.OutputPath,
	}); err != nil {
		opts.Logger.WarnfAlways("failed to write audit entry: %v", err)
	}

	return result, nil
}

// ConfiguredScheme reports the envelope scheme the current project is
// configured for, without touching the remote. The cmd layer uses it to
// decide whether to prompt for the shared token.
func ConfiguredScheme() (string, error) {
	if err := configs.InitProjectSettings(); err != nil {
		return "", err
	}
	if configs.ProjectKowhaiSettings.ProjectPath == "" {
		return "", kerrors.ErrProjectNotInitialized
	}
	config, err := configs.LoadProjectConfig()
	if err != nil {
		return "", err
	}
	return config.Recovery.Scheme, nil
}

// sharedTokenFor passes the token through only when the configured scheme
// actually uses it, so a stray token cannot silently downgrade a hybrid
// project to the symmetric scheme.
func sharedTokenFor(scheme, token string) string {
	if scheme == "symmetric-v1" {
		return token
	}
	return ""
}
