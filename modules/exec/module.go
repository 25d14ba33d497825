// Package exec provides the exec handler, which runs an external command and
// records its output.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"sort"
	"strings"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the exec handler.
type Input struct {
	Command []string          `hcl:"command"`
	Dir     string            `hcl:"dir,optional"`
	Env     map[string]string `hcl:"env,optional"`
}

// ErrEmptyCommand is returned when the command list is empty.
var ErrEmptyCommand = errors.New("exec: command must not be empty")

// OnRunExec runs the command and records its trimmed standard output into
// every produced item. A non-zero exit status fails the step.
func OnRunExec(ctx context.Context, call *registry.Call) error {
	input := call.Input.(*Input)
	if len(input.Command) == 0 {
		return ErrEmptyCommand
	}
	logger := ctxlog.FromContext(ctx)

	cmd := osexec.CommandContext(ctx, input.Command[0], input.Command[1:]...)
	cmd.Dir = input.Dir
	if len(input.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(input.Env)...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Running command.", "step", call.StepName(), "command", input.Command)
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("command %q failed: %w: %s", input.Command[0], err, msg)
		}
		return fmt.Errorf("command %q failed: %w", input.Command[0], err)
	}
	return call.RecordAll(strings.TrimSpace(stdout.String()))
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("exec", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunExec,
	})
}
