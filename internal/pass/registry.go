package pass

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OptionSpec documents one pass option.
type OptionSpec struct {
	Name    string
	Default string
	Help    string
}

// Registration describes a pass kind that can be created by name.
type Registration struct {
	Name    string
	Summary string
	Options []OptionSpec
	New     func(opts Options) (Pass, error)
}

// Registry maps pass names to registrations.
type Registry struct {
	regs map[string]Registration
}

// NewRegistry creates a registry. Duplicate names panic: registrations are
// assembled in code.
func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{regs: make(map[string]Registration)}
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a registration.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" || reg.New == nil {
		return fmt.Errorf("pass registration needs a name and a constructor")
	}
	if _, dup := r.regs[reg.Name]; dup {
		return fmt.Errorf("pass %q registered twice", reg.Name)
	}
	r.regs[reg.Name] = reg
	return nil
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.regs[name]
	return reg, ok
}

// All returns every registration sorted by name.
func (r *Registry) All() []Registration {
	out := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create instantiates a pass. Options not declared by the registration are
// rejected.
func (r *Registry) Create(name string, opts Options) (Pass, error) {
	reg, ok := r.regs[name]
	if !ok {
		return nil, &UnknownPassError{Name: name}
	}
	known := make(map[string]bool, len(reg.Options))
	for _, o := range reg.Options {
		known[o.Name] = true
	}
	for key := range opts {
		if !known[key] {
			return nil, fmt.Errorf("pass %q has no option %q", name, key)
		}
	}
	if opts == nil {
		opts = Options{}
	}
	p, err := reg.New(opts)
	if err != nil {
		return nil, fmt.Errorf("pass %q: %w", name, err)
	}
	return p, nil
}

// UnknownPassError reports a pass name missing from the registry.
type UnknownPassError struct {
	Name string
}

func (e *UnknownPassError) Error() string {
	return fmt.Sprintf("unknown pass %q", e.Name)
}

// Options are the textual options of one pass instance.
type Options map[string]string

// Bool reads a boolean option.
func (o Options) Bool(name string, def bool) (bool, error) {
	v, ok := o[name]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %s: %q is not a boolean", name, v)
	}
	return b, nil
}

// Int reads an integer option.
func (o Options) Int(name string, def int) (int, error) {
	v, ok := o[name]
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %q is not an integer", name, v)
	}
	return i, nil
}

// String reads a string option.
func (o Options) String(name, def string) string {
	if v, ok := o[name]; ok {
		return v
	}
	return def
}

// FormatOptions renders options as "{k=v k2=v2}", or "" when empty.
func FormatOptions(kvs []KV) string {
	if len(kvs) == 0 {
		return ""
	}
	parts := make([]string, len(kvs))
	for i, kv := range kvs {
		parts[i] = kv.Key + "=" + kv.Value
	}
	return "{" + strings.Join(parts, " ") + "}"
}
