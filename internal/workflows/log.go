package workflows

import (
	"github.com/PolarWolf314/kowhai/internal/audit"
	"github.com/PolarWolf314/kowhai/internal/configs"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
)

type LogOptions struct {
	Logger logger.Logger
}

type LogResult struct {
	Entries []audit.Entry
}

// Log returns the project's audit history, oldest first. This is a local
// read; no remote calls are made.
func Log(opts LogOptions) (*LogResult, error) {
	if err := configs.InitProjectSettings(); err != nil {
		return nil, err
	}
	if configs.ProjectKowhaiSettings.ProjectPath == "" {
		return nil, kerrors.ErrProjectNotInitialized
	}

	entries, err := audit.ReadEntries()
	if err != nil {
		return nil, err
	}
	return &LogResult{Entries: entries}, nil
}
