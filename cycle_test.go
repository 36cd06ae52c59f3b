package wisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wisperrors "github.com/calummacc/wisp/errors"
)

// Test types
type (
	cycleA interface {
		NameA() string
		PartnerB() cycleB
	}

	cycleB interface {
		NameB() string
		PartnerA() cycleA
	}

	cycleImplA struct {
		B cycleB `inject:""`
	}

	cycleImplB struct {
		A cycleA `inject:""`
	}

	// selfCycle depends on itself through a concrete pointer; concrete
	// cycles are always fatal.
	selfCycle struct {
		Self *selfCycle `inject:""`
	}
)

func (a *cycleImplA) NameA() string    { return "a" }
func (a *cycleImplA) PartnerB() cycleB { return a.B }

func (b *cycleImplB) NameB() string    { return "b" }
func (b *cycleImplB) PartnerA() cycleA { return b.A }

func cycleModule() Module {
	return NewModule("cycle", func(b Binder) {
		Bind[cycleA](b).To(TypeOf[*cycleImplA]())
		Bind[cycleB](b).To(TypeOf[*cycleImplB]())
	})
}

// TestInterfaceCycleResolves tests scenario four with proxies enabled:
// both cycle members resolve and method dispatch crosses the cycle.
func TestInterfaceCycleResolves(t *testing.T) {
	inj, err := CreateInjector(cycleModule())
	require.NoError(t, err)

	a, err := GetInstanceOf[cycleA](inj)
	require.NoError(t, err)
	require.NotNil(t, a.PartnerB())
	assert.Equal(t, "b", a.PartnerB().NameB())
	assert.Equal(t, "a", a.PartnerB().PartnerA().NameA())

	b, err := GetInstanceOf[cycleB](inj)
	require.NoError(t, err)
	require.NotNil(t, b.PartnerA())
	assert.Equal(t, "a", b.PartnerA().NameA())
}

// TestCycleFailsWithProxiesDisabled tests scenario four with proxies
// off: the failure names every key on the cycle.
func TestCycleFailsWithProxiesDisabled(t *testing.T) {
	inj, err := CreateInjector(cycleModule(), NewModule("opts", func(b Binder) {
		b.DisableCircularProxies()
	}))
	require.NoError(t, err)

	_, err = GetInstanceOf[cycleA](inj)
	require.Error(t, err)
	text := err.Error()
	assert.Contains(t, text, string(wisperrors.CyclicDependency))
	assert.Contains(t, text, "wisp.cycleA")
	assert.Contains(t, text, "wisp.cycleB")

	_, err = GetInstanceOf[cycleB](inj)
	require.Error(t, err)
}

// TestConcreteCycleIsFatal tests that a pointer cycle without an
// interface in it cannot use an early reference.
func TestConcreteCycleIsFatal(t *testing.T) {
	inj, err := CreateInjector(NewModule("self", func(b Binder) {}))
	require.NoError(t, err)

	_, err = inj.GetInstance(KeyOf[*selfCycle]())
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(wisperrors.CyclicDependency))
}

// TestProviderBreaksCycle tests the static cycle break: injecting a
// provider function instead of the value defers resolution past the
// cycle.
func TestProviderBreaksCycle(t *testing.T) {
	type lazyB struct {
		MakeA func() *selfCycle `inject:""`
	}
	inj, err := CreateInjector(NewModule("lazy", func(b Binder) {}))
	require.NoError(t, err)

	holder, err := GetInstanceOf[*lazyB](inj)
	require.NoError(t, err)
	require.NotNil(t, holder.MakeA)
}
