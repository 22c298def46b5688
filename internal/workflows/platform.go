package workflows

import (
	"fmt"
	"os"
	"time"

	"github.com/PolarWolf314/kowhai/internal/configs"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
	"github.com/PolarWolf314/kowhai/internal/remote"
)

// project bundles everything an operation needs once the local project and
// the remote platform are resolved.
type project struct {
	config   *configs.ProjectConfig
	store    remote.Store
	userUUID string
}

// openProject resolves the current project, its configuration, and a
// retrying store against the configured remote. The access token comes from
// the environment variable named in the project config.
func openProject(log logger.Logger) (*project, error) {
	if err := configs.InitProjectSettings(); err != nil {
		return nil, err
	}
	if configs.ProjectKowhaiSettings.ProjectPath == "" {
		return nil, kerrors.ErrProjectNotInitialized
	}

	config, err := configs.LoadProjectConfig()
	if err != nil {
		return nil, err
	}
	if config.Remote.Owner == "" || config.Remote.Repo == "" {
		return nil, fmt.Errorf("%w: remote owner and repo must be set", kerrors.ErrInvalidProjectConfig)
	}

	userConfig, err := configs.EnsureUserConfig()
	if err != nil {
		return nil, err
	}

	token := os.Getenv(config.Remote.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("%w: set %s", kerrors.ErrMissingToken, config.Remote.TokenEnv)
	}

	gh := remote.NewGitHub(
		config.Remote.Owner,
		config.Remote.Repo,
		config.Remote.BaseBranch,
		config.Remote.WorkflowFile,
		token,
		log,
	)

	return &project{
		config:   config,
		store:    remote.WithRetry(gh, 3, 2*time.Second, log),
		userUUID: userConfig.User.UUID,
	}, nil
}

// lockOwner identifies this client in lock claims: stable per user, and
// readable enough to chase down a stuck lock by hand.
func (p *project) lockOwner() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return p.userUUID + "@" + hostname
}
