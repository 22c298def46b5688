package configs

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

type UserSettings struct {
	UserConfigsPath string
	Username        string
}

type ProjectSettings struct {
	ProjectUUID string
	ProjectName string
	ProjectPath string
}

var (
	UserKowhaiSettings    *UserSettings
	ProjectKowhaiSettings *ProjectSettings
)

func init() {
	UserKowhaiSettings = defaultUserSettings()
	ProjectKowhaiSettings = &ProjectSettings{}
}

func defaultUserSettings() *UserSettings {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}

	username := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}

	return &UserSettings{
		UserConfigsPath: filepath.Join(configDir, "kowhai"),
		Username:        username,
	}
}

// InitProjectSettings locates the project root (the nearest ancestor
// directory containing .kowhai/) and populates ProjectKowhaiSettings.
// An empty ProjectPath afterwards means the project is not initialized.
func InitProjectSettings() error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	root := findProjectRoot(wd)
	ProjectKowhaiSettings.ProjectPath = root
	if root == "" {
		ProjectKowhaiSettings.ProjectName = ""
		ProjectKowhaiSettings.ProjectUUID = ""
		return nil
	}

	ProjectKowhaiSettings.ProjectName = filepath.Base(root)

	config, err := LoadProjectConfig()
	if err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}
	if config.Project.UUID != "" {
		ProjectKowhaiSettings.ProjectUUID = config.Project.UUID
	}
	if config.Project.Name != "" {
		ProjectKowhaiSettings.ProjectName = config.Project.Name
	}

	return nil
}

// findProjectRoot walks up from dir looking for a .kowhai directory.
// Returns "" if none is found.
func findProjectRoot(dir string) string {
	for {
		candidate := filepath.Join(dir, ".kowhai")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
