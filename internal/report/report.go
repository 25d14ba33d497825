package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/buildchain/internal/executor"
)

// Format selects the encoding of a written report.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for a format other than yaml or json.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts "yaml", "yml" and "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml", "":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatForPath picks the format from the file extension. Anything but
// .json is written as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Report is the serialisable form of an executor.Result.
type Report struct {
	RunID     string           `yaml:"run_id" json:"run_id"`
	Succeeded bool             `yaml:"succeeded" json:"succeeded"`
	Started   time.Time        `yaml:"started" json:"started"`
	Duration  string           `yaml:"duration" json:"duration"`
	Totals    Totals           `yaml:"totals" json:"totals"`
	Steps     []Step           `yaml:"steps" json:"steps"`
	Finals    map[string][]any `yaml:"finals,omitempty" json:"finals,omitempty"`
	Error     string           `yaml:"error,omitempty" json:"error,omitempty"`
}

// Totals counts steps per terminal status.
type Totals struct {
	Completed int `yaml:"completed" json:"completed"`
	Failed    int `yaml:"failed" json:"failed"`
	Skipped   int `yaml:"skipped" json:"skipped"`
}

// Step is the report entry of one step.
type Step struct {
	Name     string `yaml:"name" json:"name"`
	Status   string `yaml:"status" json:"status"`
	Reason   string `yaml:"reason,omitempty" json:"reason,omitempty"`
	Detail   string `yaml:"detail,omitempty" json:"detail,omitempty"`
	Error    string `yaml:"error,omitempty" json:"error,omitempty"`
	Fatal    bool   `yaml:"fatal,omitempty" json:"fatal,omitempty"`
	Duration string `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// FromResult converts res into a Report. buildErr is the error returned by
// Execute alongside res, if any.
func FromResult(res *executor.Result, buildErr error) Report {
	r := Report{
		RunID:     res.RunID,
		Succeeded: res.Succeeded,
		Started:   res.Started.UTC(),
		Duration:  res.Duration().String(),
		Totals: Totals{
			Completed: res.Count(executor.Completed),
			Failed:    res.Count(executor.Failed),
			Skipped:   res.Count(executor.Skipped),
		},
		Steps: make([]Step, 0, len(res.Steps)),
	}
	if buildErr != nil {
		r.Error = buildErr.Error()
	}
	for _, s := range res.Steps {
		entry := Step{
			Name:   s.Name,
			Status: s.Status.String(),
			Reason: string(s.Reason),
			Detail: s.Detail,
			Fatal:  s.Fatal,
		}
		if s.Err != nil {
			entry.Error = s.Err.Error()
		}
		if d := s.Duration(); d > 0 {
			entry.Duration = d.String()
		}
		r.Steps = append(r.Steps, entry)
	}
	if len(res.Finals) > 0 {
		r.Finals = make(map[string][]any, len(res.Finals))
		for id, values := range res.Finals {
			r.Finals[id.String()] = values
		}
	}
	return r
}

// Write encodes r to w.
func (r Report) Write(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FinalNames returns the final item names in the report, sorted.
func (r Report) FinalNames() []string {
	names := make([]string, 0, len(r.Finals))
	for name := range r.Finals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
