package wisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test types
type (
	elementsGreeter interface {
		Greet() string
	}

	elementsEnglishGreeter struct{}

	// elementsProviderModule declares provider methods for the built-in
	// scanner.
	elementsProviderModule struct{}

	// elementsPanicModule fails during configure.
	elementsPanicModule struct{}
)

func (elementsEnglishGreeter) Greet() string { return "hello" }

func (m *elementsProviderModule) Configure(b Binder) {}

func (m *elementsProviderModule) ProvideGreeting() string { return "hi" }

func (m *elementsProviderModule) ProvideCountSingleton() int { return 7 }

func (m *elementsPanicModule) Configure(b Binder) {
	panic("boom")
}

// bindingElements filters the binding elements out of a stream.
func bindingElements(elements []Element) []*BindingElement {
	var out []*BindingElement
	for _, e := range elements {
		if be, ok := e.(*BindingElement); ok {
			out = append(out, be)
		}
	}
	return out
}

// TestRecorderCapturesBindings tests that module configuration is
// reified into binding elements with sources.
func TestRecorderCapturesBindings(t *testing.T) {
	m := NewModule("test", func(b Binder) {
		Bind[elementsGreeter](b).To(TypeOf[*elementsEnglishGreeter]())
		Bind[string](b).ToInstance("hello")
	})
	elements := GetElements(m)
	bindings := bindingElements(elements)
	require.Len(t, bindings, 2)

	assert.Equal(t, KeyOf[elementsGreeter](), bindings[0].Key)
	linked, ok := bindings[0].Target.(*LinkedKeyTarget)
	require.True(t, ok)
	assert.Equal(t, KeyOf[*elementsEnglishGreeter](), linked.Target)

	instance, ok := bindings[1].Target.(*InstanceTarget)
	require.True(t, ok)
	assert.Equal(t, "hello", instance.Value)

	// Every element is tied to the installing module.
	require.NotNil(t, bindings[0].Source())
	require.NotNil(t, bindings[0].Source().ModuleSource())
	assert.Equal(t, "test", bindings[0].Source().ModuleSource().Name())
}

// TestInstallDeduplicatesModules tests that installing the same module
// instance twice is a no-op.
func TestInstallDeduplicatesModules(t *testing.T) {
	inner := NewModule("inner", func(b Binder) {
		Bind[int](b).ToInstance(1)
	})
	outer := NewModule("outer", func(b Binder) {
		b.Install(inner)
		b.Install(inner)
	})
	elements := GetElements(outer, inner)
	assert.Len(t, bindingElements(elements), 1)
}

// TestModulePanicBecomesMessage tests that a panicking module records a
// message element instead of propagating.
func TestModulePanicBecomesMessage(t *testing.T) {
	elements := GetElements(&elementsPanicModule{})
	var msgs []*MessageElement
	for _, e := range elements {
		if m, ok := e.(*MessageElement); ok {
			msgs = append(msgs, m)
		}
	}
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Message.Text, "boom")
}

// TestWithSource tests caller-supplied source attribution.
func TestWithSource(t *testing.T) {
	m := NewModule("test", func(b Binder) {
		Bind[int](b.WithSource("config.yaml:12")).ToInstance(3)
	})
	bindings := bindingElements(GetElements(m))
	require.Len(t, bindings, 1)
	assert.Equal(t, "config.yaml:12", bindings[0].Source().DeclaringSource())
}

// TestProviderMethodScanning tests the built-in module method scanner.
func TestProviderMethodScanning(t *testing.T) {
	elements := GetElements(&elementsProviderModule{})
	bindings := bindingElements(elements)
	require.Len(t, bindings, 2)

	byKey := make(map[Key]*BindingElement)
	for _, b := range bindings {
		byKey[b.Key] = b
	}
	greeting, ok := byKey[KeyOf[string]()]
	require.True(t, ok)
	_, isCtor := greeting.Target.(*ConstructorTarget)
	assert.True(t, isCtor)
	assert.True(t, greeting.Scoping.IsUnscoped())

	count, ok := byKey[KeyOf[int]()]
	require.True(t, ok)
	assert.True(t, count.Scoping.isSingleton())
}

// TestModuleElementRoundTrip tests that getModule(getElements(M))
// reproduces an equivalent element stream.
func TestModuleElementRoundTrip(t *testing.T) {
	m := NewModule("round", func(b Binder) {
		Bind[string](b).ToInstance("v")
		Bind[elementsGreeter](b).To(TypeOf[*elementsEnglishGreeter]()).In(InScope(SingletonScopeName))
		b.RequestStaticInjection()
		b.RequireExplicitBindings()
		pb := b.NewPrivateBinder()
		Bind[int](pb).ToInstance(9)
		pb.Expose(KeyOf[int]())
	})
	first := GetElements(m)
	second := GetElements(GetModule(first))
	require.Equal(t, len(first), len(second))

	for n := range first {
		assert.IsType(t, first[n], second[n], "element %d", n)
	}

	firstBindings := bindingElements(first)
	secondBindings := bindingElements(second)
	require.Equal(t, len(firstBindings), len(secondBindings))
	for n := range firstBindings {
		assert.Equal(t, firstBindings[n].Key, secondBindings[n].Key)
		assert.IsType(t, firstBindings[n].Target, secondBindings[n].Target)
		assert.Equal(t, firstBindings[n].Scoping.isSingleton(), secondBindings[n].Scoping.isSingleton())
	}
}

// TestPrivateEnvironmentRecording tests private binder element capture.
func TestPrivateEnvironmentRecording(t *testing.T) {
	m := NewModule("private", func(b Binder) {
		pb := b.NewPrivateBinder()
		Bind[string](pb).ToInstance("secret")
		pb.Expose(KeyOf[string]())
	})
	elements := GetElements(m)
	var env *PrivateEnvironment
	for _, e := range elements {
		if pe, ok := e.(*PrivateEnvironment); ok {
			env = pe
		}
	}
	require.NotNil(t, env)
	assert.Len(t, bindingElements(env.Elements), 1)
	require.Len(t, env.Exposed, 1)
	assert.Equal(t, KeyOf[string](), env.Exposed[0].Key)
}

// TestOptionsRecorded tests option flag capture.
func TestOptionsRecorded(t *testing.T) {
	m := NewModule("opts", func(b Binder) {
		b.RequireExplicitBindings()
		b.DisableCircularProxies()
	})
	elements := GetElements(m)
	var flags []OptionFlag
	for _, e := range elements {
		if o, ok := e.(*OptionElement); ok {
			flags = append(flags, o.Flag)
		}
	}
	assert.Equal(t, []OptionFlag{RequireExplicitBindingsFlag, DisableCircularProxiesFlag}, flags)
}

// TestProviderLookupDelegateSetOnce tests the set-once contract.
func TestProviderLookupDelegateSetOnce(t *testing.T) {
	lookup := &ProviderLookup{Dependency: NewDependency(KeyOf[int]())}
	lookup.SetDelegate(ProviderFunc(func() (any, error) { return 1, nil }))
	assert.Panics(t, func() {
		lookup.SetDelegate(ProviderFunc(func() (any, error) { return 2, nil }))
	})

	// Unset lookups fail instead of blocking.
	fresh := &ProviderLookup{Dependency: NewDependency(KeyOf[int]())}
	_, err := fresh.Provider().Get()
	assert.Error(t, err)
}
