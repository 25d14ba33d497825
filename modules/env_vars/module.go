package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/specialistvlad/buildchain/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input selects the variables to record. With neither names nor prefix set,
// every variable is recorded.
type Input struct {
	Names  []string `hcl:"names,optional"`
	Prefix string   `hcl:"prefix,optional"`
}

// Lookup returns the selected variables from environ, given in os.Environ form.
func Lookup(environ []string, input *Input) map[string]string {
	wanted := make(map[string]struct{}, len(input.Names))
	for _, n := range input.Names {
		wanted[n] = struct{}{}
	}
	selectAll := len(wanted) == 0 && input.Prefix == ""

	envMap := make(map[string]string)
	for _, e := range environ {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 {
			continue
		}
		_, named := wanted[pair[0]]
		prefixed := input.Prefix != "" && strings.HasPrefix(pair[0], input.Prefix)
		if selectAll || named || prefixed {
			envMap[pair[0]] = pair[1]
		}
	}
	return envMap
}

// OnRunEnvVars records the selected environment variables into every
// produced item.
func OnRunEnvVars(ctx context.Context, call *registry.Call) error {
	return call.RecordAll(Lookup(os.Environ(), call.Input.(*Input)))
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("env_vars", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunEnvVars,
	})
}
