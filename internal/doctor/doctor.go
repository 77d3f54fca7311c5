// Package doctor checks that a host is ready to run the service: the
// configuration is coherent, the artifact directory is writable, and the
// external converter and validator commands resolve.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vinnividivicci/openingbim-cicd/internal/config"
)

// Result holds the outcome of a diagnostics run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single diagnostic error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor runs environment diagnostics against a loaded config.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkStorage(r)
	d.checkConversion(r)
	d.checkValidation(r)
	d.checkAuth(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkStorage verifies the artifact directory can be created and written.
func (d *Doctor) checkStorage(r *Result) {
	dir := d.cfg.Storage.Dir
	if dir == "" {
		d.addError(r, "storage", "storage.dir", "storage.dir is required")
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.addError(r, "storage", "storage.dir",
			fmt.Sprintf("cannot create %s: %v", dir, err))
		return
	}

	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		d.addError(r, "storage", "storage.dir",
			fmt.Sprintf("directory %s is not writable: %v", dir, err))
		return
	}
	_ = os.Remove(probe)

	if d.cfg.Storage.SweepInterval > d.cfg.Storage.Retention {
		d.addWarning(r, "storage", "storage.sweep_interval",
			fmt.Sprintf("sweep interval %s exceeds retention %s; expired artifacts will linger",
				d.cfg.Storage.SweepInterval, d.cfg.Storage.Retention))
	}
}

// checkConversion verifies the converter command resolves.
func (d *Doctor) checkConversion(r *Result) {
	d.checkCommand(r, "conversion", "conversion.command", d.cfg.Conversion.Command)
	d.checkTempDir(r, "conversion", "conversion.temp_dir", d.cfg.Conversion.TempDir)
}

// checkValidation verifies the configured backend is runnable.
func (d *Doctor) checkValidation(r *Result) {
	switch d.cfg.Validation.Backend {
	case "ifctester":
		d.checkCommand(r, "validation", "validation.command", d.cfg.Validation.Command)
		d.checkTempDir(r, "validation", "validation.temp_dir", d.cfg.Validation.TempDir)
	case "engine":
		d.addError(r, "validation", "validation.backend",
			"engine backend requires an embedded rule engine which this binary does not link; use ifctester")
	default:
		d.addError(r, "validation", "validation.backend",
			fmt.Sprintf("unknown backend %q", d.cfg.Validation.Backend))
	}
}

// checkAuth warns when the API runs without authentication.
func (d *Doctor) checkAuth(r *Result) {
	if d.cfg.API.Auth.APIKey == "" {
		d.addWarning(r, "api", "api.auth.api_key",
			"no API key configured; all endpoints are unauthenticated")
	}
}

func (d *Doctor) checkCommand(r *Result, category, field, command string) {
	if command == "" {
		d.addError(r, category, field, "command is required")
		return
	}
	if strings.ContainsRune(command, os.PathSeparator) {
		if _, err := os.Stat(command); err != nil {
			d.addError(r, category, field,
				fmt.Sprintf("command %s not found: %v", command, err))
		}
		return
	}
	if _, err := exec.LookPath(command); err != nil {
		d.addError(r, category, field,
			fmt.Sprintf("command %q not found in PATH", command))
	}
}

func (d *Doctor) checkTempDir(r *Result, category, field, dir string) {
	if dir == "" {
		return // os.TempDir is used
	}
	info, err := os.Stat(dir)
	if err != nil {
		d.addError(r, category, field,
			fmt.Sprintf("temp dir %s not accessible: %v", dir, err))
		return
	}
	if !info.IsDir() {
		d.addError(r, category, field,
			fmt.Sprintf("temp dir %s is not a directory", dir))
	}
}

// FormatHuman returns a human-readable diagnostics report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Environment ready.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Environment ready (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Environment not ready (%d error(s), %d warning(s))\n",
			len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
