package wisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calummacc/wisp/matcher"
)

// Test types
type (
	provisionWidget struct {
		ID int
	}

	// auditInterceptor records method names it saw.
	auditInterceptor struct {
		seen []string
	}

	interceptedService struct{}
)

func (a *auditInterceptor) Invoke(inv MethodInvocation) (any, error) {
	a.seen = append(a.seen, inv.Method().Name)
	return inv.Proceed()
}

func (interceptedService) Describe(prefix string) string { return prefix + "-described" }

// TestProvisionListenerOrder tests that listeners run in registration
// order and the core provisions when no listener does.
func TestProvisionListenerOrder(t *testing.T) {
	var order []string
	listenerFor := func(name string) ProvisionListener {
		return ProvisionListenerFunc(func(inv *ProvisionInvocation) {
			order = append(order, name)
		})
	}

	inj, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*provisionWidget](b).ToConstructor(func() *provisionWidget {
			order = append(order, "construct")
			return &provisionWidget{ID: 1}
		})
		b.BindProvisionListener(matcher.Only(KeyOf[*provisionWidget]()), listenerFor("first"))
		b.BindProvisionListener(matcher.Only(KeyOf[*provisionWidget]()), listenerFor("second"))
	}))
	require.NoError(t, err)

	w, err := GetInstanceOf[*provisionWidget](inj)
	require.NoError(t, err)
	assert.Equal(t, 1, w.ID)
	assert.Equal(t, []string{"first", "second", "construct"}, order)
}

// TestProvisionListenerCanProvision tests a listener observing the
// constructed value through Provision.
func TestProvisionListenerCanProvision(t *testing.T) {
	var observed any
	inj, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*provisionWidget](b).ToConstructor(func() *provisionWidget {
			return &provisionWidget{ID: 7}
		})
		b.BindProvisionListener(matcher.Only(KeyOf[*provisionWidget]()),
			ProvisionListenerFunc(func(inv *ProvisionInvocation) {
				observed, _ = inv.Provision()
			}))
	}))
	require.NoError(t, err)

	w, err := GetInstanceOf[*provisionWidget](inj)
	require.NoError(t, err)
	assert.Same(t, w, observed)
}

// TestProvisionListenerDoubleProvisionFails tests the exactly-once
// contract on Provision.
func TestProvisionListenerDoubleProvisionFails(t *testing.T) {
	inj, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*provisionWidget](b).ToConstructor(func() *provisionWidget {
			return &provisionWidget{}
		})
		b.BindProvisionListener(matcher.Only(KeyOf[*provisionWidget]()),
			ProvisionListenerFunc(func(inv *ProvisionInvocation) {
				inv.Provision()
				inv.Provision()
			}))
	}))
	require.NoError(t, err)

	_, err = GetInstanceOf[*provisionWidget](inj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

// TestProvisionListenerSkipsCachedSingletons tests that a cached
// singleton short-circuits before listener dispatch.
func TestProvisionListenerSkipsCachedSingletons(t *testing.T) {
	invocations := 0
	inj, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*provisionWidget](b).ToConstructor(func() *provisionWidget {
			return &provisionWidget{}
		}).In(InScope(SingletonScopeName))
		b.BindProvisionListener(matcher.Only(KeyOf[*provisionWidget]()),
			ProvisionListenerFunc(func(inv *ProvisionInvocation) {
				invocations++
			}))
	}))
	require.NoError(t, err)

	_, err = GetInstanceOf[*provisionWidget](inj)
	require.NoError(t, err)
	_, err = GetInstanceOf[*provisionWidget](inj)
	require.NoError(t, err)
	assert.Equal(t, 1, invocations)
}

// TestProvisionListenerPanicPropagates tests that a panicking listener
// surfaces as a provisioning error.
func TestProvisionListenerPanicPropagates(t *testing.T) {
	inj, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*provisionWidget](b).ToConstructor(func() *provisionWidget {
			return &provisionWidget{}
		})
		b.BindProvisionListener(matcher.Any[Key](),
			ProvisionListenerFunc(func(inv *ProvisionInvocation) {
				panic("listener exploded")
			}))
	}))
	require.NoError(t, err)

	_, err = GetInstanceOf[*provisionWidget](inj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listener exploded")
}

// TestMethodInterception tests the interceptor registration and the
// invocation hook.
func TestMethodInterception(t *testing.T) {
	audit := &auditInterceptor{}
	inj, err := CreateInjector(NewModule("aop", func(b Binder) {
		Bind[*interceptedService](b).ToConstructor(func() *interceptedService {
			return &interceptedService{}
		})
		b.BindInterceptor(
			matcher.Only(TypeOf[*interceptedService]()),
			matcher.Func(func(name string) bool { return name == "Describe" }),
			audit)
	}))
	require.NoError(t, err)

	svc, err := GetInstanceOf[*interceptedService](inj)
	require.NoError(t, err)

	out, err := inj.InvokeIntercepted(svc, "Describe", "x")
	require.NoError(t, err)
	assert.Equal(t, "x-described", out)
	assert.Equal(t, []string{"Describe"}, audit.seen)

	// Chain lookup matches the registration.
	chain := inj.MethodInterceptors(TypeOf[*interceptedService](), "Describe")
	assert.Len(t, chain, 1)
	assert.Empty(t, inj.MethodInterceptors(TypeOf[*interceptedService](), "Other"))
}

// TestInterceptorCanShortCircuit tests an interceptor replacing the
// result without proceeding.
func TestInterceptorCanShortCircuit(t *testing.T) {
	inj, err := CreateInjector(NewModule("aop", func(b Binder) {
		b.BindInterceptor(
			matcher.Any[TypeLiteral](),
			matcher.Any[string](),
			MethodInterceptorFunc(func(inv MethodInvocation) (any, error) {
				return "short-circuited", nil
			}))
	}))
	require.NoError(t, err)

	out, err := inj.InvokeIntercepted(&interceptedService{}, "Describe", "x")
	require.NoError(t, err)
	assert.Equal(t, "short-circuited", out)
}
