package workflows

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/kowhai/internal/configs"
	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
	logger "github.com/PolarWolf314/kowhai/internal/logging"
)

// recoverWorkflowYAML is the workflow installed into the repository at init
// time. It is the remote half of the protocol: on dispatch it checks out
// the temp ref, seals the requested secrets with the request's key, and
// commits the result payload back to the same ref. Secret values reach the
// job only through the platform's secrets context; nothing is ever printed
// to the run log.
const recoverWorkflowYAML = `name: kowhai recover

on:
  workflow_dispatch:
    inputs:
      scheme:
        description: Envelope scheme to seal with
        required: true
      public_key:
        description: PEM recipient public key (hybrid scheme only)
        required: false
      names:
        description: Comma-separated secret names to seal
        required: true

permissions:
  contents: write

jobs:
  seal:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
        with:
          ref: ${{ github.ref_name }}

      - uses: actions/setup-go@v5
        with:
          go-version: stable

      - name: Seal requested secrets
        env:
          KOWHAI_SECRETS: ${{ toJSON(secrets) }}
          KOWHAI_SHARED_TOKEN: ${{ secrets.KOWHAI_SHARED_TOKEN }}
        run: |
          go run github.com/PolarWolf314/kowhai@latest seal \
            --request payload.json \
            --result payload.json

      - name: Commit result payload
        run: |
          git config user.name "kowhai"
          git config user.email "kowhai@users.noreply.github.com"
          git add payload.json
          git commit -m "kowhai: recovery result"
          git push origin HEAD:${{ github.ref_name }}
`

type InitOptions struct {
	Owner      string
	Repo       string
	BaseBranch string
	Logger     logger.Logger
}

type InitResult struct {
	ProjectName  string
	ProjectPath  string
	WorkflowPath string
}

// Init sets up the current directory as a project: .kowhai/config.toml with
// the remote coordinates, and the recovery workflow file the remote half of
// the protocol runs from.
func Init(opts InitOptions) (*InitResult, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("%w: owner and repo are required", kerrors.ErrInvalidInput)
	}

	if err := configs.InitProjectSettings(); err != nil {
		return nil, err
	}
	if configs.ProjectKowhaiSettings.ProjectPath != "" {
		return nil, fmt.Errorf("%w: at %s", kerrors.ErrProjectAlreadyInitialized, configs.ProjectKowhaiSettings.ProjectPath)
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	if _, err := configs.EnsureUserConfig(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(wd, ".kowhai"), 0700); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	configs.ProjectKowhaiSettings.ProjectPath = wd
	configs.ProjectKowhaiSettings.ProjectName = filepath.Base(wd)

	config := &configs.ProjectConfig{}
	config.Project.UUID = configs.GenerateProjectUUID()
	config.Project.Name = filepath.Base(wd)
	config.Remote.Owner = opts.Owner
	config.Remote.Repo = opts.Repo
	if opts.BaseBranch != "" {
		config.Remote.BaseBranch = opts.BaseBranch
	}

	loaded, err := configs.LoadProjectConfig()
	if err == nil {
		// Preserve defaulted sections so the saved file is complete.
		config.Remote.BaseBranch = firstNonEmpty(config.Remote.BaseBranch, loaded.Remote.BaseBranch)
		config.Remote.WorkflowFile = loaded.Remote.WorkflowFile
		config.Remote.TokenEnv = loaded.Remote.TokenEnv
		config.Recovery = loaded.Recovery
	}

	if err := configs.SaveProjectConfig(config); err != nil {
		return nil, err
	}
	configs.ProjectKowhaiSettings.ProjectUUID = config.Project.UUID

	workflowPath := filepath.Join(wd, ".github", "workflows", config.Remote.WorkflowFile)
	if err := os.MkdirAll(filepath.Dir(workflowPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create workflow directory: %w", err)
	}
	if err := os.WriteFile(workflowPath, []byte(recoverWorkflowYAML), 0644); err != nil {
		return nil, fmt.Errorf("failed to write workflow file: %w", err)
	}

	opts.Logger.Infof("initialized project %s for %s/%s", config.Project.Name, opts.Owner, opts.Repo)

	return &InitResult{
		ProjectName:  config.Project.Name,
		ProjectPath:  wd,
		WorkflowPath: workflowPath,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
