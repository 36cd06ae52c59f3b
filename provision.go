package wisp

import (
	"fmt"

	"github.com/calummacc/wisp/errors"
)

// provision produces one instance for a binding within a context. The
// sequence per request: open a context frame (detecting circular
// references), apply the binding's scope, dispatch provision listeners,
// and finally invoke the internal factory.
func (i *Injector) provision(ctx *internalContext, b *Binding, dep Dependency) (any, error) {
	if idx := ctx.indexOf(b); idx >= 0 {
		return i.resolveCircular(ctx, b, idx)
	}
	ctx.push(b, dep)
	defer ctx.pop()

	switch {
	case b.cell != nil:
		// Built-in singleton: at most one construction per key. Cached
		// instances short-circuit without re-entering provisioning.
		return b.cell.get(func() (any, error) {
			return i.dispatchProvision(ctx, b, dep)
		})
	case b.customScope != nil:
		// Custom scopes receive the unscoped provider once per binding.
		// Each call the scope makes opens a fresh resolution context:
		// cycle state does not cross a custom scope boundary.
		b.scopedOnce.Do(func() {
			unscoped := ProviderFunc(func() (any, error) {
				return b.injector.dispatchProvision(newInternalContext(), b, NewDependency(b.key))
			})
			b.scoped = b.customScope.ScopeProvider(b.key, unscoped)
		})
		v, err := safeProviderGet(b.scoped)
		if err != nil {
			return nil, provisionFailure(ctx, b.key, err)
		}
		return v, nil
	default:
		return i.dispatchProvision(ctx, b, dep)
	}
}

// resolveCircular handles a dependency chain that re-entered a key. When
// circular proxies are enabled and the request is interface-typed, a
// partially constructed early reference satisfies it; otherwise the cycle
// is fatal and the error names every key on it.
func (i *Injector) resolveCircular(ctx *internalContext, b *Binding, idx int) (any, error) {
	if !i.opts.disableCircularProxies && b.key.TypeLiteral().IsInterface() {
		// Chase the linked-key chain to the concrete binding first; the
		// assignability scan is only a fallback for indirect cycles.
		cur := b
		for depth := 0; depth < 16; depth++ {
			if v, ok := ctx.constructing[cur.key]; ok && v.Type().AssignableTo(b.key.Type()) {
				return v.Interface(), nil
			}
			linked, ok := cur.target.(*LinkedKeyTarget)
			if !ok {
				break
			}
			next, err := i.resolveBinding(linked.Target)
			if err != nil {
				break
			}
			cur = next
		}
		if v, ok := ctx.earlyReference(b.key); ok {
			return v, nil
		}
	}
	chain := ctx.chainFrom(idx, b.key)
	msg := errors.NewMessage(errors.CyclicDependency,
		"circular dependency: %s", joinChain(chain))
	for _, k := range chain {
		msg.WithSource(k)
	}
	return nil, errors.NewProvisionError(msg)
}

func joinChain(chain []string) string {
	out := ""
	for n, k := range chain {
		if n > 0 {
			out += " -> "
		}
		out += k
	}
	return out
}

// dispatchProvision runs matching provision listeners in registration
// order, then the factory. The listeners share one invocation, so Provision
// succeeds once across all of them; if none calls it, the core provisions
// after the listeners return.
func (i *Injector) dispatchProvision(ctx *internalContext, b *Binding, dep Dependency) (any, error) {
	listeners := i.provisionListenersFor(b)
	if len(listeners) == 0 {
		return b.factory(ctx, dep)
	}

	inv := &ProvisionInvocation{injector: i, binding: b, dep: dep, ctx: ctx}
	for _, l := range listeners {
		if err := dispatchListener(l, inv); err != nil {
			return nil, provisionFailure(ctx, b.key, err)
		}
		if inv.err != nil {
			return nil, inv.err
		}
	}
	if !inv.done {
		inv.Provision()
	}
	return inv.result, inv.err
}

// dispatchListener shields the engine from panics in listener code.
func dispatchListener(l ProvisionListener, inv *ProvisionInvocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("provision listener panicked: %v", r)
		}
	}()
	l.OnProvision(inv)
	return nil
}

// provisionListenersFor collects the listeners whose matcher accepts the
// binding's key, outermost injector first. The owning injector's chain is
// used, so the cached result is stable no matter which child requests
// first.
func (i *Injector) provisionListenersFor(b *Binding) []ProvisionListener {
	b.listenersOnce.Do(func() {
		var chain []*Injector
		for inj := b.injector; inj != nil; inj = inj.parent {
			chain = append(chain, inj)
		}
		for n := len(chain) - 1; n >= 0; n-- {
			for _, e := range chain[n].provisionListeners {
				if e.matcher.Matches(b.key) {
					b.listeners = append(b.listeners, e.listeners...)
				}
			}
		}
	})
	return b.listeners
}

// ProvisionInvocation is handed to provision listeners. A listener may
// trigger provisioning itself with Provision to observe or wrap the
// produced value; calling Provision a second time is an error.
type ProvisionInvocation struct {
	injector *Injector
	binding  *Binding
	dep      Dependency
	ctx      *internalContext

	done   bool
	result any
	err    error
}

// Binding returns the binding being provisioned.
func (inv *ProvisionInvocation) Binding() *Binding { return inv.binding }

// DependencyChain snapshots the dependency chain that led to this
// provisioning, outermost request first.
func (inv *ProvisionInvocation) DependencyChain() []Dependency {
	return inv.ctx.dependencyChain()
}

// Provision constructs the instance. The first call invokes the factory;
// subsequent calls fail.
func (inv *ProvisionInvocation) Provision() (any, error) {
	if inv.done {
		inv.err = errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
			"Provision called more than once for %s", inv.binding.key))
		return nil, inv.err
	}
	inv.done = true
	inv.result, inv.err = inv.binding.factory(inv.ctx, inv.dep)
	return inv.result, inv.err
}
