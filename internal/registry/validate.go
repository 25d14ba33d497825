package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
)

// Validate checks that every handler has a function and that every input
// constructor returns a pointer to a struct whose exported fields carry hcl
// tags.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	for _, name := range r.Names() {
		h, _ := r.Handler(name)
		if h == nil || h.Fn == nil {
			errs = append(errs, fmt.Sprintf("handler '%s': no Go function registered", name))
			continue
		}
		if h.NewInput == nil {
			continue
		}

		input := h.NewInput()
		t := reflect.TypeOf(input)
		if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			errs = append(errs, fmt.Sprintf("handler '%s': NewInput must return a pointer to a struct, got %T", name, input))
			continue
		}

		st := t.Elem()
		tagged := 0
		for i := 0; i < st.NumField(); i++ {
			field := st.Field(i)
			if !field.IsExported() {
				continue
			}
			if tag := field.Tag.Get("hcl"); tag == "" {
				errs = append(errs, fmt.Sprintf("handler '%s': input field '%s' has no hcl tag", name, field.Name))
				continue
			}
			tagged++
		}
		if tagged == 0 {
			logger.Warn("Handler input struct declares no arguments.", "handler", name, "type", st.String())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
