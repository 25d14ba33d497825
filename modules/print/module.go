package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/itemstore"
	"github.com/specialistvlad/buildchain/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print handler.
type Input struct {
	Title string `hcl:"title,optional"`
}

// OnRunPrint writes every consumed item to the application output.
func OnRunPrint(ctx context.Context, call *registry.Call) error {
	input := call.Input.(*Input)
	ctxlog.FromContext(ctx).Info("Printing consumed items", "step", call.StepName())

	title := input.Title
	if title == "" {
		title = call.StepName()
	}
	fmt.Fprintf(call.Output, "%s:\n", title)

	for _, c := range call.Consumes {
		if call.Status(c.Item) == itemstore.NotProduced {
			fmt.Fprintf(call.Output, "      %s = (null)\n", c.Item.Name())
			continue
		}
		values, err := call.Read(c.Item)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintf(call.Output, "      %s = %s\n", c.Item.Name(), format(v))
		}
	}
	return nil
}

// format renders maps with sorted keys for consistent output.
func format(v any) string {
	switch tv := v.(type) {
	case string:
		return fmt.Sprintf("%q", tv)
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := "{"
		for i, k := range keys {
			if i > 0 {
				s += ", "
			}
			s += fmt.Sprintf("%s = %s", k, format(tv[k]))
		}
		return s + "}"
	case map[string]string:
		m := make(map[string]any, len(tv))
		for k, val := range tv {
			m[k] = val
		}
		return format(m)
	case []any:
		s := "["
		for i, e := range tv {
			if i > 0 {
				s += ", "
			}
			s += format(e)
		}
		return s + "]"
	default:
		return fmt.Sprintf("%v", tv)
	}
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("print", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunPrint,
	})
}
