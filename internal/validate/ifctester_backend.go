package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinnividivicci/openingbim-cicd/internal/log"
)

const defaultIfcTesterTimeout = 5 * time.Minute

// IfcTesterBackend shells out to the ifctester validation tool. Model and
// rule-spec bytes are written to uniquely named temp files, the tool is
// invoked with both paths and a JSON output flag, and its report is read from
// stdout. Temp files are removed regardless of outcome.
type IfcTesterBackend struct {
	command string
	args    []string
	tempDir string
	timeout time.Duration
}

var _ Backend = (*IfcTesterBackend)(nil)

// NewIfcTesterBackend creates a backend invoking command with args plus the
// model path, spec path and "json" appended (e.g. command="python3",
// args=["ids_validator.py"]).
func NewIfcTesterBackend(command string, args []string, tempDir string, timeout time.Duration) (*IfcTesterBackend, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("ifctester command is empty")
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = defaultIfcTesterTimeout
	}
	return &IfcTesterBackend{command: command, args: args, tempDir: tempDir, timeout: timeout}, nil
}

func (b *IfcTesterBackend) Name() string { return "ifctester" }

func (b *IfcTesterBackend) Validate(ctx context.Context, model, ruleSpec []byte, fileName string, onProgress ProgressFunc) (json.RawMessage, error) {
	if len(bytes.TrimSpace(ruleSpec)) == 0 {
		return nil, fmt.Errorf("%w: empty specification file", ErrSpecParse)
	}

	id := uuid.NewString()
	ifcPath := filepath.Join(b.tempDir, id+".ifc")
	idsPath := filepath.Join(b.tempDir, id+".ids")
	defer func() {
		os.Remove(ifcPath)
		os.Remove(idsPath)
	}()

	if err := os.WriteFile(ifcPath, model, 0o644); err != nil {
		return nil, fmt.Errorf("write model temp file: %w", err)
	}
	if err := os.WriteFile(idsPath, ruleSpec, 0o644); err != nil {
		return nil, fmt.Errorf("write rule-spec temp file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := append(append([]string{}, b.args...), ifcPath, idsPath, "json")
	cmd := exec.CommandContext(runCtx, b.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := log.WithComponent("ifctester").With("file", fileName)
	logger.Debug("invoking validator", "command", b.command)

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ifctester timed out after %v", b.timeout)
		}
		reason := toolErrorReason(stdout.Bytes(), stderr.Bytes(), err)
		logger.Error("validator failed", "error", reason)
		return nil, fmt.Errorf("ifctester: %s", reason)
	}

	if onProgress != nil {
		onProgress(1, 1)
	}
	return stdout.Bytes(), nil
}

// toolErrorReason extracts a readable failure reason: the tool writes either
// a JSON error envelope or free text before exiting non-zero.
func toolErrorReason(stdout, stderr []byte, runErr error) string {
	for _, out := range [][]byte{stdout, stderr} {
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(bytes.TrimSpace(out), &envelope); err == nil && envelope.Error != "" {
			if envelope.Message != "" {
				return envelope.Error + ": " + envelope.Message
			}
			return envelope.Error
		}
	}
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return msg
	}
	return runErr.Error()
}
