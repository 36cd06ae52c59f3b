package wisp

import (
	"reflect"
	"strings"

	"github.com/calummacc/wisp/errors"
)

// ModuleScanner discovers provider methods on installed modules. After
// every module is installed, each scanner runs exactly once per
// (scanner, module) pair: for every module method the scanner claims, the
// recorder builds the method's injection point and provisional key, and
// the scanner may rewrite the key before the binding is recorded.
//
// Scanners run only during recording, never during provisioning. A
// scanner may install additional modules through the binder it receives,
// but those modules may not declare provider methods of their own, and a
// scanner may not register further scanners; both violations are
// recorded as error messages.
//
// A scanner implementing PermitHolder contributes its permits to the
// bindings it records.
type ModuleScanner interface {
	// Matches reports whether the scanner claims a module method.
	Matches(method reflect.Method) bool
	// Scan inspects a claimed method and returns the key to bind it
	// under. Returning a zero Key skips the method without error.
	Scan(b Binder, key Key, point *InjectionPoint) (Key, error)
}

// providerMethodPrefix marks methods claimed by the built-in scanner.
const providerMethodPrefix = "Provide"

// providerMethodScanner is the built-in scanner behind provider methods.
type providerMethodScanner struct{}

func (providerMethodScanner) Matches(method reflect.Method) bool {
	return strings.HasPrefix(method.Name, providerMethodPrefix) &&
		method.Name != providerMethodPrefix
}

func (providerMethodScanner) Scan(_ Binder, key Key, _ *InjectionPoint) (Key, error) {
	return key, nil
}

// hasProviderMethods reports whether a module declares methods the
// built-in scanner would claim.
func hasProviderMethods(m Module) bool {
	t := reflect.TypeOf(m)
	for i := 0; i < t.NumMethod(); i++ {
		if (providerMethodScanner{}).Matches(t.Method(i)) {
			return true
		}
	}
	return false
}

// methodScoping derives a provider method's scoping from its name.
func methodScoping(name string) Scoping {
	switch {
	case strings.Contains(name, "Eager"):
		return AsEagerSingleton
	case strings.Contains(name, "Singleton"):
		return InScope(SingletonScopeName)
	default:
		return Unscoped
	}
}

// scanProviderMethods runs one scanner over one installed module,
// recording a constructor binding per claimed method. Each method is
// claimed by at most one scanner; claims are tracked per module in the
// claimed set.
func scanProviderMethods(b *recordingBinder, scanner ModuleScanner, m Module, claimed map[string]bool) {
	mv := reflect.ValueOf(m)
	mt := mv.Type()
	declaring := TypeLiteralOf(mt)

	for i := 0; i < mt.NumMethod(); i++ {
		method := mt.Method(i)
		if claimed[method.Name] || method.Name == "Configure" || method.Name == "Permits" {
			continue
		}
		if !scanner.Matches(method) {
			continue
		}
		claimed[method.Name] = true
		bound := mv.Method(i)
		if bound.Type().NumOut() == 0 {
			b.AddMessage(errors.NewMessage(errors.MalformedInjectionPoint,
				"provider method %s of %s returns nothing", method.Name, moduleName(m)).
				WithSource(b.newSource()))
			continue
		}
		point, err := boundMethodPoint(declaring, method, bound)
		if err != nil {
			b.addPointError(err)
			continue
		}
		key := keyForType(bound.Type().Out(0))
		key, err = scanner.Scan(b, key, point)
		if err != nil {
			b.AddMessage(errors.NewMessage(errors.ScannerError,
				"scanner rejected provider method %s of %s: %v", method.Name, moduleName(m), err).
				WithSource(b.newSource()))
			continue
		}
		if !key.IsValid() {
			continue
		}
		b.append(&BindingElement{
			baseElement: baseElement{source: b.newScannerSource(scanner)},
			Key:         key,
			Target:      &ConstructorTarget{Point: point},
			Scoping:     methodScoping(method.Name),
		})
	}
}
