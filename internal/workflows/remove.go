package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/kowhai/internal/audit"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/utils"
)

type RemoveOptions struct {
	Name   string
	Logger logger.Logger
}

type RemoveResult struct {
	Name string
}

// Remove deletes one secret from the remote store.
func Remove(ctx context.Context, opts RemoveOptions) (*RemoveResult, error) {
	p, err := openProject(opts.Logger)
	if err != nil {
		return nil, err
	}

	name := utils.NormalizeSecretName(opts.Name)
	if !utils.IsValidSecretName(name) {
		return nil, fmt.Errorf("%w: %q is not a usable secret name", kerrors.ErrInvalidInput, opts.Name)
	}

	if err := p.store.DeleteSecret(ctx, name); err != nil {
		return nil, err
	}

	if err := audit.LogWithUser(audit.Entry{
		UserUUID:  p.userUUID,
		Operation: "remove",
		Names:     []string{name},
	}); err != nil {
		opts.Logger.WarnfAlways("failed to write audit entry: %v", err)
	}

	return &RemoveResult{Name: name}, nil
}
