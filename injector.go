package wisp

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/calummacc/wisp/errors"
	"go.uber.org/zap"
)

// injectorOptions are the compiled policy flags. A child injector
// inherits its parent's flags.
type injectorOptions struct {
	requireExplicitBindings       bool
	disableCircularProxies        bool
	requireInjectedConstructors   bool
	requireExactBindingQualifiers bool
}

// Injector owns a compiled binding graph and serves fully wired instances
// on demand. After creation an injector is safe for concurrent use:
// GetInstance, GetProvider and GetBinding may be called from many
// goroutines. The binding map, converter list and scope map are
// effectively immutable after creation; only the just-in-time cache and
// per-binding singleton cells mutate, under their own locks.
type Injector struct {
	parent *Injector
	stage  Stage
	logger *zap.Logger

	bindings map[Key]*Binding
	order    []Key

	jitMu    sync.Mutex
	jit      map[Key]*Binding
	jitOrder []Key

	scopes             map[string]Scope
	converters         []converterEntry
	typeListeners      []typeListenerEntry
	provisionListeners []provisionListenerEntry
	interceptors       []interceptorEntry
	extraMembers       map[reflect.Type][]MembersInjector

	opts injectorOptions
}

// Parent returns the enclosing injector, or nil at the top level.
func (i *Injector) Parent() *Injector { return i.parent }

// Stage returns the stage the injector was created in.
func (i *Injector) Stage() Stage { return i.stage }

// String renders the injector for debugging.
func (i *Injector) String() string {
	return fmt.Sprintf("Injector(stage=%s, bindings=%d)", i.stage, len(i.bindings))
}

// GetInstance returns a fully constructed, fully injected instance for
// the key. Missing bindings and provisioning failures surface as a
// *errors.ProvisionError carrying the dependency chain.
func (i *Injector) GetInstance(key Key) (any, error) {
	b, err := i.resolveBinding(key)
	if err != nil {
		return nil, err
	}
	return i.provision(newInternalContext(), b, NewDependency(key))
}

// GetInstanceOf is the generic convenience over GetInstance.
func GetInstanceOf[T any](i *Injector) (T, error) {
	var zero T
	v, err := i.GetInstance(KeyOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.NewProvisionError(errors.NewMessage(errors.InternalError,
			"binding for %s produced %T", KeyOf[T](), v))
	}
	return typed, nil
}

// GetQualifiedInstanceOf resolves a qualified key generically.
func GetQualifiedInstanceOf[T any](i *Injector, q Qualifier) (T, error) {
	var zero T
	v, err := i.GetInstance(QualifiedKeyOf[T](q))
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.NewProvisionError(errors.NewMessage(errors.InternalError,
			"binding for %s produced %T", QualifiedKeyOf[T](q), v))
	}
	return typed, nil
}

// GetProvider returns a provider for the key. The binding is resolved
// eagerly; provisioning happens per Get call.
func (i *Injector) GetProvider(key Key) (Provider, error) {
	b, err := i.resolveBinding(key)
	if err != nil {
		return nil, err
	}
	return b.Provider(), nil
}

// GetBinding resolves a binding, creating a just-in-time binding when the
// key has no explicit one.
func (i *Injector) GetBinding(key Key) (*Binding, error) {
	return i.resolveBinding(key)
}

// GetExistingBinding returns the explicit or already-created just-in-time
// binding for the key, or nil without side effects.
func (i *Injector) GetExistingBinding(key Key) *Binding {
	for inj := i; inj != nil; inj = inj.parent {
		if b, ok := inj.bindings[key]; ok {
			return b
		}
		inj.jitMu.Lock()
		b, ok := inj.jit[key]
		inj.jitMu.Unlock()
		if ok {
			return b
		}
	}
	return nil
}

// Bindings returns this injector's explicit bindings in declaration
// order. Iteration order is stable across runs.
func (i *Injector) Bindings() []*Binding {
	out := make([]*Binding, 0, len(i.order))
	for _, k := range i.order {
		out = append(out, i.bindings[k])
	}
	return out
}

// AllBindings returns the explicit bindings followed by the just-in-time
// bindings created so far, each group in creation order.
func (i *Injector) AllBindings() []*Binding {
	out := i.Bindings()
	i.jitMu.Lock()
	defer i.jitMu.Unlock()
	for _, k := range i.jitOrder {
		out = append(out, i.jit[k])
	}
	return out
}

// CreateChildInjector compiles the modules into a child injector that
// sees this injector's bindings. Child injectors are independent: a
// failed child leaves the parent untouched, and sibling children may
// succeed where one failed.
func (i *Injector) CreateChildInjector(modules ...Module) (*Injector, error) {
	elements, permits := recordElements(i.stage, stackTraceModeFromEnv(), modules)
	child, err := compile(i, i.stage, i.logger, elements, permits)
	if err != nil {
		return nil, err
	}
	permits.Clear()
	return child, nil
}

// resolveBinding locates the binding for a key: explicit bindings up the
// parent chain, then cached just-in-time bindings, then the marker
// qualifier fallback, and finally just-in-time creation.
func (i *Injector) resolveBinding(key Key) (*Binding, error) {
	for inj := i; inj != nil; inj = inj.parent {
		if b, ok := inj.bindings[key]; ok {
			return b, nil
		}
	}
	for inj := i; inj != nil; inj = inj.parent {
		inj.jitMu.Lock()
		b, ok := inj.jit[key]
		inj.jitMu.Unlock()
		if ok {
			return b, nil
		}
	}
	if q, ok := key.Qualifier(); ok && q.IsMarker() && !i.opts.requireExactBindingQualifiers {
		unqualified := key.WithoutQualifier()
		for inj := i; inj != nil; inj = inj.parent {
			if b, ok := inj.bindings[unqualified]; ok {
				return b, nil
			}
		}
	}
	return i.createJITBinding(key)
}

// createJITBinding synthesises and caches a binding for an unbound key.
// Creation runs under the cache lock so concurrent demands for the same
// key share one binding.
func (i *Injector) createJITBinding(key Key) (*Binding, error) {
	i.jitMu.Lock()
	defer i.jitMu.Unlock()
	if b, ok := i.jit[key]; ok {
		return b, nil
	}
	b, err := i.buildJITBinding(key)
	if err != nil {
		return nil, err
	}
	i.jit[key] = b
	i.jitOrder = append(i.jitOrder, key)
	i.logger.Debug("created just-in-time binding", zap.String("key", key.String()))
	return b, nil
}

// buildJITBinding attempts the just-in-time strategies in order: a
// provider-shaped key, a members-injector-shaped key, a converted
// constant, and finally struct construction.
func (i *Injector) buildJITBinding(key Key) (*Binding, error) {
	t := key.Type()

	if provided, ok := providerShape(t); ok {
		providedKey := key.OfType(TypeLiteralOf(provided))
		return &Binding{
			key:      key,
			source:   syntheticSource("provider for " + providedKey.String()),
			target:   &ProviderBindingTarget{ProvidedKey: providedKey},
			injector: i,
			factory:  providerBindingFactory(i, key, providedKey),
			jit:      true,
		}, nil
	}

	if _, ok := membersInjectorShape(t); ok && !key.HasQualifier() {
		return &Binding{
			key:      key,
			source:   syntheticSource("members injector " + key.String()),
			injector: i,
			factory:  membersInjectorFactory(i, key),
			jit:      true,
		}, nil
	}

	if i.opts.requireExplicitBindings {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.JitDisabled,
			"explicit bindings are required and %s is not bound", key))
	}

	if key.HasQualifier() {
		if b, ok, err := i.tryConvertedConstant(key); ok {
			return b, err
		}
		return nil, errors.NewProvisionError(errors.NewMessage(errors.MissingBinding,
			"no binding for %s", key))
	}

	return i.buildConstructedBinding(key)
}

// tryConvertedConstant matches a qualified key against a bound string
// constant and the converter list. The boolean result reports whether the
// strategy applied at all; conversion failures surface at the use site.
func (i *Injector) tryConvertedConstant(key Key) (*Binding, bool, error) {
	q, _ := key.Qualifier()
	sourceKey := NewQualifiedKey(TypeOf[string](), q)
	var constant *Binding
	for inj := i; inj != nil; inj = inj.parent {
		if b, ok := inj.bindings[sourceKey]; ok {
			constant = b
			break
		}
	}
	if constant == nil {
		return nil, false, nil
	}
	instanceTarget, ok := constant.target.(*InstanceTarget)
	if !ok {
		return nil, false, nil
	}
	entry := i.findConverter(key.TypeLiteral())
	if entry == nil {
		return nil, false, nil
	}
	value, err := entry.converter.Convert(instanceTarget.Value.(string), key.TypeLiteral())
	if err != nil {
		return nil, true, errors.NewProvisionError(errors.NewMessage(errors.ConversionFailed,
			"converting %q to %s: %v", instanceTarget.Value, key, err).WithSource(constant.source))
	}
	if value == nil || !reflect.TypeOf(value).AssignableTo(key.Type()) {
		return nil, true, errors.NewProvisionError(errors.NewMessage(errors.ConverterReturnedWrongType,
			"converter produced %T for %s", value, key).WithSource(constant.source))
	}
	return &Binding{
		key:    key,
		source: constant.source,
		target: &ConvertedConstantTarget{
			SourceKey: sourceKey,
			Value:     value,
			Converter: entry.converter,
		},
		injector: i,
		factory:  convertedFactory(value),
		jit:      true,
	}, true, nil
}

// buildConstructedBinding synthesises struct construction for a concrete
// unqualified key.
func (i *Injector) buildConstructedBinding(key Key) (*Binding, error) {
	if _, ok := key.TypeLiteral().concrete(); !ok {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.MissingBinding,
			"no binding for %s and it is not a constructable type", key))
	}
	points, err := membersInjectionPoints(key.TypeLiteral())
	if err != nil {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.MalformedInjectionPoint,
			"cannot construct %s: %v", key, err))
	}
	if i.opts.requireInjectedConstructors && len(points) == 0 {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.MissingConstructor,
			"%s has no injectable members and implicit construction is disabled", key))
	}
	return &Binding{
		key:      key,
		source:   syntheticSource("constructed " + key.String()),
		target:   &UntargettedTarget{},
		injector: i,
		factory:  structFactory(i, key),
		jit:      true,
	}, nil
}

// resolveDependencyValue resolves one dependency within a context. The
// boolean result is false when an optional dependency had no binding.
func (i *Injector) resolveDependencyValue(ctx *internalContext, d Dependency) (any, bool, error) {
	b, err := i.resolveBinding(d.Key())
	if err != nil {
		if d.Optional() {
			return nil, false, nil
		}
		return nil, false, chainMissing(ctx, d.Key(), err)
	}
	v, err := i.provision(ctx, b, d)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// findConverter returns the first converter matching a target type,
// consulting the outermost injector's registrations first so the seeded
// standard converters keep precedence.
func (i *Injector) findConverter(t TypeLiteral) *converterEntry {
	if i.parent != nil {
		if e := i.parent.findConverter(t); e != nil {
			return e
		}
	}
	for idx := range i.converters {
		if i.converters[idx].matcher.Matches(t) {
			return &i.converters[idx]
		}
	}
	return nil
}

// resolveScope locates a registered scope by name up the parent chain.
func (i *Injector) resolveScope(name string) (Scope, bool) {
	for inj := i; inj != nil; inj = inj.parent {
		if s, ok := inj.scopes[name]; ok {
			return s, true
		}
	}
	return nil, false
}

// extraMembersFor returns listener-registered members injectors for a
// type.
func (i *Injector) extraMembersFor(t reflect.Type) []MembersInjector {
	var out []MembersInjector
	for inj := i; inj != nil; inj = inj.parent {
		out = append(out, inj.extraMembers[t]...)
	}
	return out
}

// providerShape recognises the provider mapping: func() T or
// func() (T, error).
func providerShape(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Func || t.NumIn() != 0 {
		return nil, false
	}
	switch t.NumOut() {
	case 1:
		if t.Out(0) == errorType {
			return nil, false
		}
		return t.Out(0), true
	case 2:
		if t.Out(1) != errorType || t.Out(0) == errorType {
			return nil, false
		}
		return t.Out(0), true
	default:
		return nil, false
	}
}

// membersInjectorShape recognises the members-injector mapping:
// func(*T) error.
func membersInjectorShape(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 1 {
		return nil, false
	}
	if t.Out(0) != errorType {
		return nil, false
	}
	in := t.In(0)
	if in.Kind() != reflect.Pointer || in.Elem().Kind() != reflect.Struct {
		return nil, false
	}
	return in, true
}

// syntheticSource labels bindings the injector creates itself.
func syntheticSource(what string) *ElementSource {
	return &ElementSource{declaring: what, trustedOriginal: false}
}
