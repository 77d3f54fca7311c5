package extproc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "convert.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestConvertReportsProgressAndOutput(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo "progress 30" >&2
cat "$1" > "$2"
echo "progress 100" >&2
`)
	c, err := New("/bin/sh", []string{script}, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var seen []int
	out, err := c.Convert(context.Background(), []byte("model bytes"), func(pct int) {
		seen = append(seen, pct)
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !bytes.Equal(out, []byte("model bytes")) {
		t.Fatalf("output = %q", out)
	}
	if len(seen) != 2 || seen[0] != 30 || seen[1] != 100 {
		t.Fatalf("progress callbacks = %v, want [30 100]", seen)
	}
}

func TestConvertSurvivesOversizedStderrLine(t *testing.T) {
	t.Parallel()

	// A single unterminated 2MB stderr line overflows any line scanner and
	// fills the pipe buffer; Convert must drain it and still finish.
	script := writeScript(t, `
head -c 2097152 /dev/zero | tr '\0' x >&2
echo "" >&2
cat "$1" > "$2"
`)
	c, err := New("/bin/sh", []string{script}, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	var out []byte
	var convErr error
	go func() {
		out, convErr = c.Convert(context.Background(), []byte("model bytes"), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Convert hung on an oversized stderr line")
	}

	if convErr != nil {
		t.Fatalf("Convert: %v", convErr)
	}
	if !bytes.Equal(out, []byte("model bytes")) {
		t.Fatalf("output = %q", out)
	}
}

func TestConvertFailureCarriesStderr(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo "unsupported schema" >&2
exit 3
`)
	c, err := New("/bin/sh", []string{script}, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Convert(context.Background(), []byte("x"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("unsupported schema")) {
		t.Fatalf("error %q does not carry stderr text", err)
	}
}

func TestConvertCleansTempFiles(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `cat "$1" > "$2"`)
	tempDir := t.TempDir()
	c, err := New("/bin/sh", []string{script}, tempDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Convert(context.Background(), []byte("x"), nil); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	if _, err := New("  ", nil, ""); err == nil {
		t.Fatal("expected error")
	}
}
