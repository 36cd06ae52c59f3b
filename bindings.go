package wisp

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/calummacc/wisp/errors"
)

// internalFactory produces one instance for a binding within a resolution
// context.
type internalFactory func(ctx *internalContext, dep Dependency) (any, error)

// singletonCell is the one-shot memoiser behind singleton bindings. The
// first successful construction is published under the cell lock; failed
// constructions are not cached.
type singletonCell struct {
	mu       sync.Mutex
	done     bool
	instance any
}

func (c *singletonCell) get(build func() (any, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.instance, nil
	}
	v, err := build()
	if err != nil {
		return nil, err
	}
	c.instance = v
	c.done = true
	return v, nil
}

// Binding is a compiled mapping from a key to a construction recipe. It
// is immutable for the owning injector's lifetime.
type Binding struct {
	key      Key
	source   *ElementSource
	scoping  Scoping
	target   BindingTarget
	injector *Injector
	factory  internalFactory
	jit      bool

	// overridable marks seed bindings and private-environment exposures,
	// which a later explicit binding may replace without a duplicate
	// error.
	overridable bool

	// cell is set for singleton-scoped bindings; customScope for every
	// other resolved scope.
	cell        *singletonCell
	customScope Scope
	scopedOnce  sync.Once
	scoped      Provider

	depsOnce sync.Once
	deps     []Dependency

	listenersOnce sync.Once
	listeners     []ProvisionListener
}

// Key returns the key this binding serves.
func (b *Binding) Key() Key { return b.key }

// Source identifies where the binding was configured.
func (b *Binding) Source() *ElementSource { return b.source }

// Scoping returns the binding's requested scoping.
func (b *Binding) Scoping() Scoping { return b.scoping }

// Target returns the recorded target, or nil for synthetic bindings.
func (b *Binding) Target() BindingTarget { return b.target }

// Injector returns the injector that owns the binding.
func (b *Binding) Injector() *Injector { return b.injector }

// IsJustInTime reports whether the binding was synthesised on demand
// rather than configured explicitly.
func (b *Binding) IsJustInTime() bool { return b.jit }

// Provider returns a handle provisioning this binding. Each Get opens a
// fresh resolution context.
func (b *Binding) Provider() Provider {
	return ProviderFunc(func() (any, error) {
		return b.injector.provision(newInternalContext(), b, NewDependency(b.key))
	})
}

// Dependencies returns the binding's direct dependencies, derived from
// its target. The result is computed once and cached.
func (b *Binding) Dependencies() []Dependency {
	b.depsOnce.Do(func() {
		b.deps = dependenciesOf(b.key, b.target)
	})
	return b.deps
}

// String renders the binding for messages.
func (b *Binding) String() string {
	return fmt.Sprintf("binding %s (%s)", b.key, b.scoping)
}

// dependenciesOf derives direct dependencies from a binding target.
func dependenciesOf(key Key, target BindingTarget) []Dependency {
	switch t := target.(type) {
	case *LinkedKeyTarget:
		return []Dependency{NewDependency(t.Target)}
	case *ProviderKeyTarget:
		return []Dependency{NewDependency(t.ProviderKey)}
	case *ConvertedConstantTarget:
		return []Dependency{NewDependency(t.SourceKey)}
	case *ProviderBindingTarget:
		return []Dependency{NewDependency(t.ProvidedKey)}
	case *ConstructorTarget:
		return t.Point.Dependencies()
	case *InstanceTarget:
		return memberDependencies(typeLiteralFor(t.Value))
	case *UntargettedTarget:
		return memberDependencies(key.TypeLiteral())
	case *ExposedTarget:
		return nil
	default:
		return nil
	}
}

// memberDependencies flattens a type's members-injection dependencies.
func memberDependencies(t TypeLiteral) []Dependency {
	points, err := membersInjectionPoints(t)
	if err != nil {
		return nil
	}
	var out []Dependency
	for _, p := range points {
		out = append(out, p.Dependencies()...)
	}
	return out
}

// instanceFactory serves a pre-constructed value.
func instanceFactory(value any) internalFactory {
	return func(*internalContext, Dependency) (any, error) {
		return value, nil
	}
}

// providerInstanceFactory delegates to a user-supplied provider. A
// provisioning error from user code is wrapped with the failing key; the
// root cause is preserved.
func providerInstanceFactory(i *Injector, key Key, p Provider) internalFactory {
	return func(ctx *internalContext, dep Dependency) (any, error) {
		v, err := safeProviderGet(p)
		if err != nil {
			return nil, provisionFailure(ctx, key, err)
		}
		return v, nil
	}
}

// linkedFactory delegates provisioning to the target key's binding inside
// the same context, so cycle detection spans linked edges.
func linkedFactory(i *Injector, target Key) internalFactory {
	return func(ctx *internalContext, dep Dependency) (any, error) {
		b, err := i.resolveBinding(target)
		if err != nil {
			return nil, chainMissing(ctx, target, err)
		}
		return i.provision(ctx, b, NewDependency(target))
	}
}

// providerKeyFactory resolves the provider key, asserts the instance is a
// Provider, and delegates to it.
func providerKeyFactory(i *Injector, key, providerKey Key) internalFactory {
	return func(ctx *internalContext, dep Dependency) (any, error) {
		b, err := i.resolveBinding(providerKey)
		if err != nil {
			return nil, chainMissing(ctx, providerKey, err)
		}
		instance, err := i.provision(ctx, b, NewDependency(providerKey))
		if err != nil {
			return nil, err
		}
		p, ok := instance.(Provider)
		if !ok {
			return nil, errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
				"%s bound to provider key %s whose instance %T is not a Provider", key, providerKey, instance).
				WithSource(nil))
		}
		v, err := safeProviderGet(p)
		if err != nil {
			return nil, provisionFailure(ctx, key, err)
		}
		return v, nil
	}
}

// constructorFactory invokes a constructor function with resolved
// arguments, then injects the result's members.
func constructorFactory(i *Injector, key Key, point *InjectionPoint) internalFactory {
	return func(ctx *internalContext, dep Dependency) (any, error) {
		args := make([]reflect.Value, len(point.deps))
		ft := point.fn.Type()
		for n, d := range point.deps {
			v, ok, err := i.resolveDependencyValue(ctx, d)
			if err != nil {
				return nil, err
			}
			if !ok {
				args[n] = reflect.Zero(ft.In(n))
				continue
			}
			args[n] = toArgValue(v, ft.In(n))
		}
		out, err := safeCall(ctx, key, point.fn, args)
		if err != nil {
			return nil, err
		}
		result := out[0]
		if len(out) == 2 && !out[1].IsNil() {
			return nil, provisionFailure(ctx, key, out[1].Interface().(error))
		}
		instance := result.Interface()
		if instance != nil {
			if err := i.injectMembersCtx(ctx, instance); err != nil {
				return nil, err
			}
		}
		return instance, nil
	}
}

// structFactory allocates a concrete type and injects its members. The
// freshly allocated pointer is published as an early reference so that
// interface-typed circular dependencies can resolve against it while its
// fields are still being filled.
func structFactory(i *Injector, key Key) internalFactory {
	st, _ := key.TypeLiteral().concrete()
	wantPointer := key.Type().Kind() == reflect.Pointer
	return func(ctx *internalContext, dep Dependency) (any, error) {
		pv := reflect.New(st)
		if wantPointer {
			ctx.setConstructing(key, pv)
			defer ctx.clearConstructing(key)
		}
		if err := i.injectValueMembers(ctx, pv); err != nil {
			return nil, err
		}
		if wantPointer {
			return pv.Interface(), nil
		}
		return pv.Elem().Interface(), nil
	}
}

// convertedFactory serves a constant converted at binding-creation time.
func convertedFactory(value any) internalFactory {
	return func(*internalContext, Dependency) (any, error) {
		return value, nil
	}
}

// providerBindingFactory synthesises the value behind provider-shaped
// keys: a function of the key's own type whose calls resolve the provided
// key in a fresh context.
func providerBindingFactory(i *Injector, key, provided Key) internalFactory {
	fnType := key.Type()
	return func(*internalContext, Dependency) (any, error) {
		fn := reflect.MakeFunc(fnType, func([]reflect.Value) []reflect.Value {
			v, err := i.GetInstance(provided)
			result := reflect.Zero(fnType.Out(0))
			if v != nil {
				result = toArgValue(v, fnType.Out(0))
			}
			if fnType.NumOut() == 2 {
				errVal := reflect.Zero(errorType)
				if err != nil {
					errVal = reflect.ValueOf(err)
				}
				return []reflect.Value{result, errVal}
			}
			if err != nil {
				panic(err)
			}
			return []reflect.Value{result}
		})
		return fn.Interface(), nil
	}
}

// membersInjectorFactory synthesises the value behind members-injector
// shaped keys: a function accepting a pointer and injecting its members.
func membersInjectorFactory(i *Injector, key Key) internalFactory {
	fnType := key.Type()
	return func(*internalContext, Dependency) (any, error) {
		fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
			err := i.InjectMembers(args[0].Interface())
			errVal := reflect.Zero(errorType)
			if err != nil {
				errVal = reflect.ValueOf(err)
			}
			return []reflect.Value{errVal}
		})
		return fn.Interface(), nil
	}
}

// exposedFactory delegates to the private environment's injector.
func exposedFactory(child *Injector, key Key) internalFactory {
	return func(ctx *internalContext, dep Dependency) (any, error) {
		b, err := child.resolveBinding(key)
		if err != nil {
			return nil, chainMissing(ctx, key, err)
		}
		return child.provision(ctx, b, NewDependency(key))
	}
}

// toArgValue adapts a resolved instance to a target reflect type.
func toArgValue(v any, want reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(want)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != want && rv.Type().ConvertibleTo(want) && !rv.Type().AssignableTo(want) {
		return rv.Convert(want)
	}
	return rv
}

// safeProviderGet shields the engine from panics in user providers.
func safeProviderGet(p Provider) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.Get()
}

// safeCall shields the engine from panics in user constructors.
func safeCall(ctx *internalContext, key Key, fn reflect.Value, args []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("constructor panicked: %v", r)
			}
			err = provisionFailure(ctx, key, cause)
		}
	}()
	return fn.Call(args), nil
}

// provisionFailure wraps a user-code failure with the key and the active
// dependency chain, preserving the root cause.
func provisionFailure(ctx *internalContext, key Key, cause error) error {
	if pe, ok := cause.(*errors.ProvisionError); ok {
		return pe
	}
	msg := errors.NewMessage(errors.InjectionFailed, "error provisioning %s", key).WithCause(cause)
	for _, d := range ctx.dependencyChain() {
		msg.WithSource(d.Key())
	}
	return errors.NewProvisionError(msg)
}

// chainMissing decorates a missing-binding failure with the chain that
// demanded it.
func chainMissing(ctx *internalContext, key Key, cause error) error {
	if pe, ok := cause.(*errors.ProvisionError); ok {
		return pe
	}
	msg := errors.NewMessage(errors.MissingBinding, "no binding for %s", key).WithCause(cause)
	for _, d := range ctx.dependencyChain() {
		msg.WithSource(d.Key())
	}
	return errors.NewProvisionError(msg)
}
