package testutils

import (
	"os"
	"path/filepath"
	"testing"
)

// TempTestDir returns a temp dir for a test that only gets cleaned up if the
// test does not fail, so the state files of a failed run can be inspected.
func TempTestDir(t testing.TB, prefix string) string {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("Test data dir: %s", dir)
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("Unable to remove temp dir %s: %v", dir, err)
		}
	})

	return dir
}

// WriteTestFile writes content to name inside dir and returns its path.
func WriteTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	fname := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(fname), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fname, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return fname
}
