package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

type DoctorIssueLevel string

const (
	DoctorIssueLevelError DoctorIssueLevel = "error"
	DoctorIssueLevelWarn  DoctorIssueLevel = "warn"
)

var ErrDoctorIssuesFound = errors.New("doctor found errors")

type DoctorIssue struct {
	Level   DoctorIssueLevel `json:"level" yaml:"level"`
	Code    string           `json:"code" yaml:"code"`
	Message string           `json:"message" yaml:"message"`
	Path    string           `json:"path,omitempty" yaml:"path,omitempty"`
}

type DoctorReport struct {
	Issues []DoctorIssue `json:"issues" yaml:"issues"`
}

func (r DoctorReport) HasErrors() bool {
	for _, it := range r.Issues {
		if it.Level == DoctorIssueLevelError {
			return true
		}
	}
	return false
}

func (r *DoctorReport) Add(level DoctorIssueLevel, code, message, path string) {
	r.Issues = append(r.Issues, DoctorIssue{Level: level, Code: code, Message: message, Path: path})
}

// DoctorLocal checks the local state: config permissions, the TUI state file
// and the activity log.
func DoctorLocal(ctx context.Context, s Store, cfg *Config) DoctorReport {
	report := DoctorReport{Issues: []DoctorIssue{}}

	if cfgPath, err := ConfigPath(); err == nil {
		if fi, err := os.Stat(cfgPath); err == nil {
			if cfg != nil && cfg.Token != "" && fi.Mode().Perm()&0o077 != 0 {
				report.Add(DoctorIssueLevelWarn, "config_permissions", "config.json holds a token but is readable by others; chmod 600 it", cfgPath)
			}
		}
	}

	statePath := s.tuiStatePath()
	if b, err := os.ReadFile(statePath); err == nil && len(strings.TrimSpace(string(b))) > 0 {
		var st TUIState
		if err := json.Unmarshal(b, &st); err != nil {
			report.Add(DoctorIssueLevelWarn, "tui_state_invalid_json", "the console will start from defaults: "+err.Error(), statePath)
		}
	}

	if _, err := os.Stat(s.activityPath()); err == nil {
		l, err := openActivityLog(ctx, s.activityPath())
		if err != nil {
			report.Add(DoctorIssueLevelError, "activity_open_failed", err.Error(), s.activityPath())
			return report
		}
		defer func() { _ = l.Close() }()
		if err := l.Check(ctx); err != nil {
			report.Add(DoctorIssueLevelError, "activity_corrupt", err.Error(), s.activityPath())
		}
	}
	return report
}
