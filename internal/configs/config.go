package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

type UserConfig struct {
	User User `toml:"user"`
}

type User struct {
	UUID string `toml:"user_uuid"`
}

type ProjectConfig struct {
	Project  Project        `toml:"project"`
	Remote   RemoteConfig   `toml:"remote"`
	Recovery RecoveryConfig `toml:"recovery"`
}

type Project struct {
	UUID string `toml:"project_uuid"`
	Name string `toml:"name"`
}

// RemoteConfig identifies the repository and workflow the protocol runs
// against, and where to find the access token.
type RemoteConfig struct {
	Owner        string `toml:"owner"`
	Repo         string `toml:"repo"`
	BaseBranch   string `toml:"base_branch"`
	WorkflowFile string `toml:"workflow_file"`
	// TokenEnv names the environment variable holding the access token.
	TokenEnv string `toml:"token_env"`
}

// RecoveryConfig tunes the recovery protocol.
type RecoveryConfig struct {
	LockName string `toml:"lock_name"`
	// Scheme selects the envelope scheme: "hybrid-v2" (default) or
	// "symmetric-v1". The symmetric scheme requires a shared recovery token
	// stored as a platform secret and entered at recovery time.
	Scheme string `toml:"scheme"`

	LockTimeoutSeconds   int `toml:"lock_timeout_seconds"`
	LockRetrySeconds     int `toml:"lock_retry_seconds"`
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
	JobTimeoutSeconds    int `toml:"job_timeout_seconds"`
	LockStaleAfterMinute int `toml:"lock_stale_after_minutes"`
}

func (rc RemoteConfig) withDefaults() RemoteConfig {
	if rc.BaseBranch == "" {
		rc.BaseBranch = "main"
	}
	if rc.WorkflowFile == "" {
		rc.WorkflowFile = "kowhai-recover.yml"
	}
	if rc.TokenEnv == "" {
		rc.TokenEnv = "KOWHAI_TOKEN"
	}
	return rc
}

func (rc RecoveryConfig) withDefaults() RecoveryConfig {
	if rc.LockName == "" {
		rc.LockName = "recovery"
	}
	if rc.Scheme == "" {
		rc.Scheme = "hybrid-v2"
	}
	if rc.LockTimeoutSeconds == 0 {
		rc.LockTimeoutSeconds = 120
	}
	if rc.LockRetrySeconds == 0 {
		rc.LockRetrySeconds = 5
	}
	if rc.PollIntervalSeconds == 0 {
		rc.PollIntervalSeconds = 10
	}
	if rc.JobTimeoutSeconds == 0 {
		rc.JobTimeoutSeconds = 600
	}
	if rc.LockStaleAfterMinute == 0 {
		rc.LockStaleAfterMinute = 30
	}
	return rc
}

// LockTimeout returns the lock acquisition timeout as a duration.
func (rc RecoveryConfig) LockTimeout() time.Duration {
	return time.Duration(rc.LockTimeoutSeconds) * time.Second
}

// LockRetryInterval returns the pause between lock attempts as a duration.
func (rc RecoveryConfig) LockRetryInterval() time.Duration {
	return time.Duration(rc.LockRetrySeconds) * time.Second
}

// PollInterval returns the pause between job polls as a duration.
func (rc RecoveryConfig) PollInterval() time.Duration {
	return time.Duration(rc.PollIntervalSeconds) * time.Second
}

// JobTimeout returns the remote job deadline as a duration.
func (rc RecoveryConfig) JobTimeout() time.Duration {
	return time.Duration(rc.JobTimeoutSeconds) * time.Second
}

// LockStaleAfter returns the age past which an orphaned lock may be
// reclaimed. Zero disables reclaiming.
func (rc RecoveryConfig) LockStaleAfter() time.Duration {
	return time.Duration(rc.LockStaleAfterMinute) * time.Minute
}

// LoadUserConfig loads the user configuration from the config file.
func LoadUserConfig() (*UserConfig, error) {
	configPath := filepath.Join(UserKowhaiSettings.UserConfigsPath, "config.toml")

	config := &UserConfig{}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	if err := LoadTOML(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	return config, nil
}

// SaveUserConfig saves the user configuration to the config file.
func SaveUserConfig(config *UserConfig) error {
	configPath := filepath.Join(UserKowhaiSettings.UserConfigsPath, "config.toml")

	if err := SaveTOML(configPath, config); err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}

	return nil
}

// EnsureUserConfig ensures the user configuration exists and has a UUID.
func EnsureUserConfig() (*UserConfig, error) {
	config, err := LoadUserConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if config.User.UUID == "" {
		config.User.UUID = uuid.New().String()
		if err := SaveUserConfig(config); err != nil {
			return nil, fmt.Errorf("failed to save user config: %w", err)
		}
	}

	return config, nil
}

// LoadProjectConfig loads the project configuration from the config file,
// applying defaults to any unset field.
// Note: Caller should ensure InitProjectSettings is called before calling this function.
func LoadProjectConfig() (*ProjectConfig, error) {
	configPath := filepath.Join(ProjectKowhaiSettings.ProjectPath, ".kowhai", "config.toml")

	config := &ProjectConfig{}

	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		if err := LoadTOML(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load project config: %w", err)
		}
	}

	config.Remote = config.Remote.withDefaults()
	config.Recovery = config.Recovery.withDefaults()

	return config, nil
}

// SaveProjectConfig saves the project configuration to the config file.
// Note: Caller should ensure InitProjectSettings is called before calling this function.
func SaveProjectConfig(config *ProjectConfig) error {
	configPath := filepath.Join(ProjectKowhaiSettings.ProjectPath, ".kowhai", "config.toml")

	if err := SaveTOML(configPath, config); err != nil {
		return fmt.Errorf("failed to save project config: %w", err)
	}

	return nil
}

// GenerateProjectUUID generates a new UUID for the project.
func GenerateProjectUUID() string {
	return uuid.New().String()
}

// SaveTOML writes a config struct as TOML, creating the parent directory
// with owner-only permissions since config files live under dot dirs that
// may later hold the audit log.
func SaveTOML(filePath string, data any) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(data)
}

// LoadTOML decodes a TOML file into a config struct.
func LoadTOML(filePath string, data any) error {
	_, err := toml.DecodeFile(filePath, data)
	return err
}
