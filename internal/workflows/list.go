package workflows

import (
	"context"
	"sort"

	logger "github.com/PolarWolf314/kowhai/internal/logging"
)

type ListOptions struct {
	Logger logger.Logger
}

type ListResult struct {
	Names []string
}

// List returns the names of every stored secret. Values are not readable
// through any list surface; names are all the store gives back.
func List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	p, err := openProject(opts.Logger)
	if err != nil {
		return nil, err
	}

	names, err := p.store.ListSecretNames(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	return &ListResult{Names: names}, nil
}
