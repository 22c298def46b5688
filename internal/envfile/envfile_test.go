package envfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDiscoverDefaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), "A=1\n")
	writeFile(t, filepath.Join(root, "services", "api", ".env"), "B=2\n")
	writeFile(t, filepath.Join(root, ".env.production"), "C=3\n")
	writeFile(t, filepath.Join(root, "README.md"), "not env\n")

	files, err := Discover(root, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	want := []string{".env", ".env.production", "services/api/.env"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d]: got %s, want %s", i, files[i], want[i])
		}
	}
}

func TestDiscoverCustomPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config", "secrets.env"), "A=1\n")
	writeFile(t, filepath.Join(root, ".env"), "B=2\n")

	// A leading **/ matches zero directories too, so the root .env is
	// included alongside the nested match.
	files, err := Discover(root, []string{"**/*.env"})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{".env", "config/secrets.env"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d]: got %s, want %s", i, files[i], want[i])
		}
	}
}

func TestDiscoverScopedPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config", "secrets.env"), "A=1\n")
	writeFile(t, filepath.Join(root, ".env"), "B=2\n")

	files, err := Discover(root, []string{"config/*.env"})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 1 || files[0] != "config/secrets.env" {
		t.Errorf("got %v, want [config/secrets.env]", files)
	}
}

func TestDiscoverNoMatches(t *testing.T) {
	root := t.TempDir()
	if _, err := Discover(root, nil); !errors.Is(err, kerrors.ErrNoFilesFound) {
		t.Fatalf("got %v, want ErrNoFilesFound", err)
	}
}

func TestParseAndWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".env")

	values := map[string]string{
		"DB_URL":  "postgres://localhost/app",
		"API_KEY": "with spaces and = signs",
	}
	if err := Write(path, values); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("env file permissions: got %v, want 0600", info.Mode().Perm())
	}

	got, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	for name, want := range values {
		if got[name] != want {
			t.Errorf("%s: got %q, want %q", name, got[name], want)
		}
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := Parse(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
