// Package extproc adapts an external conversion command to the engine
// contracts. The command is invoked per job with an input and output path and
// reports progress as "progress <n>" lines on stderr.
package extproc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vinnividivicci/openingbim-cicd/internal/engine"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
)

const (
	maxStderrBytes = 64 * 1024
	maxStderrLine  = 1024 * 1024
)

// Converter shells out to a configured conversion command.
type Converter struct {
	command string
	args    []string
	tempDir string
}

var _ engine.Converter = (*Converter)(nil)

// New creates a converter invoking command with args plus the generated
// input and output paths appended. tempDir defaults to the OS temp dir.
func New(command string, args []string, tempDir string) (*Converter, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("converter command is empty")
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Converter{command: command, args: args, tempDir: tempDir}, nil
}

// Convert writes the model to a temp file, runs the command, and returns the
// produced output bytes. Temp files are removed regardless of outcome.
func (c *Converter) Convert(ctx context.Context, model []byte, onProgress engine.ProgressFunc) ([]byte, error) {
	id := uuid.NewString()
	inPath := filepath.Join(c.tempDir, id+".in")
	outPath := filepath.Join(c.tempDir, id+".out")
	defer func() {
		os.Remove(inPath)
		os.Remove(outPath)
	}()

	if err := os.WriteFile(inPath, model, 0o644); err != nil {
		return nil, fmt.Errorf("write converter input: %w", err)
	}

	args := append(append([]string{}, c.args...), inPath, outPath)
	cmd := exec.CommandContext(ctx, c.command, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start converter: %w", err)
	}

	// Progress lines are consumed as they arrive; everything else is kept
	// for the error message.
	var tail bytes.Buffer
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxStderrLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if pct, ok := parseProgressLine(line); ok {
			if onProgress != nil {
				onProgress(pct)
			}
			continue
		}
		if tail.Len() < maxStderrBytes {
			tail.WriteString(line)
			tail.WriteByte('\n')
		}
	}
	if scanner.Err() != nil {
		// An oversized or unterminated line stops the scanner mid-stream.
		// The pipe must still be drained or the child blocks on a full
		// buffer and Wait never returns.
		_, _ = io.Copy(io.Discard, stderr)
	}

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(tail.String())
		if msg == "" {
			msg = err.Error()
		}
		log.WithComponent("extproc").Error("converter failed", "error", msg)
		return nil, fmt.Errorf("converter: %s", msg)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read converter output: %w", err)
	}
	return out, nil
}

func parseProgressLine(line string) (int, bool) {
	rest, ok := strings.CutPrefix(line, "progress ")
	if !ok {
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}
