package wisp

import (
	"fmt"
	"sync"
)

// Provider supplies instances of a single binding. Implementations may be
// user-supplied or synthesised by the injector.
type Provider interface {
	// Get returns an instance, constructing one if the binding's scope
	// requires it.
	Get() (any, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func() (any, error)

// Get implements Provider.
func (f ProviderFunc) Get() (any, error) { return f() }

// Scope transforms an unscoped provider into one with defined caching and
// lifetime semantics. ScopeProvider is invoked at most once per binding;
// the returned provider is reused for every subsequent request.
type Scope interface {
	// ScopeProvider wraps the unscoped provider for the given key.
	ScopeProvider(key Key, unscoped Provider) Provider
}

// SingletonScopeName is the name the built-in singleton scope is
// registered under.
const SingletonScopeName = "singleton"

type scopingKind int

const (
	scopingUnscoped scopingKind = iota
	scopingNamed
	scopingInstance
	scopingEager
)

// Scoping records how a binding asked to be scoped: not at all, by the
// name of a registered scope, by a scope instance, or as an eager
// singleton.
type Scoping struct {
	kind  scopingKind
	name  string
	scope Scope
}

// Unscoped is the default scoping: a new instance per provision.
var Unscoped = Scoping{}

// InScope references a registered scope by name.
func InScope(name string) Scoping {
	return Scoping{kind: scopingNamed, name: name}
}

// WithScope scopes a binding with a scope instance directly.
func WithScope(s Scope) Scoping {
	return Scoping{kind: scopingInstance, scope: s}
}

// AsEagerSingleton marks a binding as a singleton constructed at injector
// creation time.
var AsEagerSingleton = Scoping{kind: scopingEager}

// IsUnscoped reports whether no scope was requested.
func (s Scoping) IsUnscoped() bool { return s.kind == scopingUnscoped }

// IsEager reports whether the binding is an eager singleton.
func (s Scoping) IsEager() bool { return s.kind == scopingEager }

// isSingleton reports whether the scoping resolves to the built-in
// singleton scope.
func (s Scoping) isSingleton() bool {
	switch s.kind {
	case scopingEager:
		return true
	case scopingNamed:
		return s.name == SingletonScopeName
	case scopingInstance:
		_, ok := s.scope.(singletonScope)
		return ok
	default:
		return false
	}
}

// String renders the scoping for messages.
func (s Scoping) String() string {
	switch s.kind {
	case scopingNamed:
		return fmt.Sprintf("in scope %q", s.name)
	case scopingInstance:
		return fmt.Sprintf("in scope %v", s.scope)
	case scopingEager:
		return "as eager singleton"
	default:
		return "unscoped"
	}
}

// noScope passes provisioning straight through; every request constructs
// a fresh instance.
type noScope struct{}

// NoScope is the pass-through scope.
var NoScope Scope = noScope{}

func (noScope) ScopeProvider(_ Key, unscoped Provider) Provider { return unscoped }
func (noScope) String() string                                  { return "NoScope" }

// singletonScope memoises the first successful construction per binding.
// A failed construction is not cached; the next request retries.
type singletonScope struct{}

// SingletonScope is the built-in singleton scope, registered under
// SingletonScopeName in every injector.
var SingletonScope Scope = singletonScope{}

func (singletonScope) ScopeProvider(key Key, unscoped Provider) Provider {
	return &singletonProvider{key: key, unscoped: unscoped}
}

func (singletonScope) String() string { return "SingletonScope" }

// singletonProvider is the per-binding one-shot cell. The first
// construction runs under the cell lock; concurrent readers block until
// the instance is published and then short-circuit without re-entering
// provisioning.
type singletonProvider struct {
	key      Key
	unscoped Provider

	mu       sync.Mutex
	done     bool
	instance any
}

func (p *singletonProvider) Get() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return p.instance, nil
	}
	instance, err := p.unscoped.Get()
	if err != nil {
		return nil, err
	}
	p.instance = instance
	p.done = true
	return instance, nil
}

// cached returns the published instance without constructing.
func (p *singletonProvider) cached() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instance, p.done
}
