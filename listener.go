package wisp

import (
	"github.com/calummacc/wisp/matcher"
)

// TypeListener is notified of every type the compiler prepares for
// injection. Listeners run during injector creation, never during
// provisioning; the encounter lets a listener contribute members
// injectors and interceptors for the heard type.
type TypeListener interface {
	Hear(t TypeLiteral, encounter TypeEncounter)
}

// TypeListenerFunc adapts a function to the TypeListener interface.
type TypeListenerFunc func(t TypeLiteral, encounter TypeEncounter)

// Hear implements TypeListener.
func (f TypeListenerFunc) Hear(t TypeLiteral, encounter TypeEncounter) { f(t, encounter) }

// TypeEncounter is the surface a type listener contributes through.
type TypeEncounter interface {
	// AddError records a configuration error against the heard type.
	AddError(format string, args ...any)
	// Register adds a members injector run after the heard type's own
	// members injection.
	Register(mi MembersInjector)
	// GetProvider returns a provider usable once the injector exists.
	GetProvider(k Key) Provider
	// BindInterceptor attaches method interceptors to the heard type.
	BindInterceptor(mm matcher.Matcher[string], is ...MethodInterceptor)
}

// ProvisionListener observes provisioning of matching bindings. Listeners
// run in registration order and share one invocation: the first Provision
// call, from any listener, constructs the instance, and any further call,
// from the same or a later listener, fails. When no listener calls it,
// provisioning proceeds after all listeners return.
type ProvisionListener interface {
	OnProvision(invocation *ProvisionInvocation)
}

// ProvisionListenerFunc adapts a function to the ProvisionListener
// interface.
type ProvisionListenerFunc func(invocation *ProvisionInvocation)

// OnProvision implements ProvisionListener.
func (f ProvisionListenerFunc) OnProvision(invocation *ProvisionInvocation) { f(invocation) }

// typeListenerEntry is one registered type listener.
type typeListenerEntry struct {
	matcher  matcher.Matcher[TypeLiteral]
	listener TypeListener
	source   *ElementSource
}

// provisionListenerEntry is one registered provision listener group.
type provisionListenerEntry struct {
	matcher   matcher.Matcher[Key]
	listeners []ProvisionListener
	source    *ElementSource
}
