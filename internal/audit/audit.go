package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/kowhai/internal/configs"
)

const logFileName = "audit.jsonl"

// Entry is one audit record. Entries never contain secret values, only
// names and metadata about the operation.
type Entry struct {
	Timestamp   time.Time `json:"ts"`
	UserUUID    string    `json:"user,omitempty"`
	Operation   string    `json:"op"`
	Names       []string  `json:"names,omitempty"`
	NamesCount  int       `json:"names_count"`
	Scheme      string    `json:"scheme,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	ProjectUUID string    `json:"project_uuid,omitempty"`
	ProjectName string    `json:"project_name,omitempty"`
}

// LogPath returns the audit log location for the current project.
func LogPath() string {
	return filepath.Join(configs.ProjectKowhaiSettings.ProjectPath, ".kowhai", logFileName)
}

// Log appends an entry for the current user and project. The timestamp and
// project fields are filled in here.
func Log(entry Entry) error {
	userConfig, err := configs.LoadUserConfig()
	if err == nil {
		entry.UserUUID = userConfig.User.UUID
	}
	return LogWithUser(entry)
}

// LogWithUser appends an entry as given, filling timestamp and project
// fields only. Callers that already know the acting user set UserUUID
// themselves.
func LogWithUser(entry Entry) error {
	entry.Timestamp = time.Now().UTC()
	entry.NamesCount = len(entry.Names)
	entry.ProjectUUID = configs.ProjectKowhaiSettings.ProjectUUID
	entry.ProjectName = configs.ProjectKowhaiSettings.ProjectName

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	path := LogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ReadEntries loads the project's audit log, oldest first. A missing log
// file yields an empty slice.
func ReadEntries() ([]Entry, error) {
	f, err := os.Open(LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	return ParseEntries(f)
}

// ParseEntries decodes JSONL audit records from r. Unparseable lines are
// skipped so one corrupt record does not hide the rest of the history.
func ParseEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}
