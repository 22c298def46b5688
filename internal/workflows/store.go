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
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/utils"
)

type StoreOptions struct {
	// Patterns are dotenv glob patterns relative to the project root. Empty
	// means the conventional .env locations.
	Patterns []string
	Logger   logger.Logger
}

type StoreResult struct {
	Files []string
	Names []string
}

// Store discovers the project's dotenv files and uploads every value to the
// remote secret store under its normalized name. The store is write-only;
// after this the only way back to plaintext is a recovery run.
func Store(ctx context.Context, opts StoreOptions) (*StoreResult, error) {
	p, err := openProject(opts.Logger)
	if err != nil {
		return nil, err
	}
	root := configs.ProjectKowhaiSettings.ProjectPath

	files, err := envfile.Discover(root, opts.Patterns)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debugf("discovered %d env files", len(files))

	values := make(map[string]string)
	for _, file := range files {
		parsed, err := envfile.Parse(filepath.Join(root, file))
		if err != nil {
			return nil, err
		}
		for name, value := range parsed {
			normalized := utils.NormalizeSecretName(name)
			if !utils.IsValidSecretName(normalized) {
				return nil, fmt.Errorf("%w: %q is not a usable secret name", kerrors.ErrInvalidInput, name)
			}
			if existing, ok := values[normalized]; ok && existing != value {
				return nil, fmt.Errorf("%w: %s defined with conflicting values", kerrors.ErrInvalidInput, normalized)
			}
			values[normalized] = value
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := p.store.PutSecret(ctx, name, values[name]); err != nil {
			return nil, err
		}
		opts.Logger.Debugf("stored %s", name)
	}

	if err := audit.LogWithUser(audit.Entry{
		UserUUID:  p.userUUID,
		Operation: "store",
		Names:     names,
	}); err != nil {
		opts.Logger.WarnfAlways("failed to write audit entry: %v", err)
	}

	return &StoreResult{Files: files, Names: names}, nil
}
