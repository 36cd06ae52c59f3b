package wisp

import (
	"reflect"
)

// Module contributes configuration to an injector. A module's Configure
// is invoked exactly once per recording; the binder it receives is only
// valid for the duration of that call.
//
// Module structs may additionally declare provider methods: any method
// whose name starts with "Provide" is discovered by the built-in module
// method scanner and bound as a constructor for its first result type. A
// method name containing "Singleton" is bound in the singleton scope and
// one containing "Eager" as an eager singleton:
//
//	func (m *DBModule) ProvideConnSingleton(cfg *Config) (*Conn, error)
//
// Modules carrying capabilities for restricted binding sources implement
// PermitHolder as well.
type Module interface {
	Configure(b Binder)
}

// namedModule adapts a configure function to the Module interface.
type namedModule struct {
	name string
	fn   func(b Binder)
}

// NewModule builds a module from a name and a configure function. The
// name identifies the module in installation paths and error messages.
func NewModule(name string, fn func(b Binder)) Module {
	return &namedModule{name: name, fn: fn}
}

func (m *namedModule) Configure(b Binder) { m.fn(b) }
func (m *namedModule) ModuleName() string { return m.name }

// CombineModules groups modules so they install together.
func CombineModules(modules ...Module) Module {
	return NewModule("combined", func(b Binder) {
		for _, m := range modules {
			b.Install(m)
		}
	})
}

// OverrideModule returns a module that installs base's configuration with
// the overriding modules' bindings and scope registrations taking
// precedence: any key bound by an override replaces the base binding for
// that key instead of colliding with it.
func OverrideModule(base Module, overrides ...Module) Module {
	return NewModule("override", func(b Binder) {
		stage := b.CurrentStage()
		baseElements := GetStagedElements(stage, base)
		overrideElements := GetStagedElements(stage, overrides...)

		overriddenKeys := make(map[Key]bool)
		overriddenScopes := make(map[string]bool)
		for _, e := range overrideElements {
			switch e := e.(type) {
			case *BindingElement:
				overriddenKeys[e.Key] = true
			case *ScopeRegistration:
				overriddenScopes[e.Name] = true
			}
		}

		for _, e := range baseElements {
			switch e := e.(type) {
			case *BindingElement:
				if overriddenKeys[e.Key] {
					continue
				}
			case *ScopeRegistration:
				if overriddenScopes[e.Name] {
					continue
				}
			}
			e.ApplyTo(b)
		}
		for _, e := range overrideElements {
			e.ApplyTo(b)
		}
	})
}

// moduleName derives the human-readable name a module appears under in
// installation paths.
func moduleName(m Module) string {
	if named, ok := m.(interface{ ModuleName() string }); ok {
		return named.ModuleName()
	}
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// modulePermits collects the permits a module carries.
func modulePermits(m Module) []Permit {
	if holder, ok := m.(PermitHolder); ok {
		return holder.Permits()
	}
	return nil
}

// comparableModule reports whether the module value can be used as a map
// key for identity de-duplication.
func comparableModule(m Module) bool {
	return reflect.TypeOf(m).Comparable()
}
