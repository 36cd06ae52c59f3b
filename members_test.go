package wisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test types
type (
	membersDB struct {
		Name string
	}

	membersCache struct {
		Size int
	}

	// membersTarget mixes field and setter injection; fields inject
	// before setters.
	membersTarget struct {
		DB *membersDB `inject:""`

		order []string
		cache *membersCache
	}
)

func (m *membersTarget) InjectCache(c *membersCache) {
	m.cache = c
	m.order = append(m.order, "setter")
}

// Package-level variables for static injection.
var (
	staticDB    *membersDB
	staticLabel string
)

func membersModule() Module {
	return NewModule("members", func(b Binder) {
		Bind[*membersDB](b).ToConstructor(func() *membersDB {
			return &membersDB{Name: "db"}
		})
		Bind[*membersCache](b).ToConstructor(func() *membersCache {
			return &membersCache{Size: 64}
		})
		Bind[string](b).ToInstance("label")
	})
}

// TestInjectMembers tests field and setter injection on an existing
// instance.
func TestInjectMembers(t *testing.T) {
	inj, err := CreateInjector(membersModule())
	require.NoError(t, err)

	target := &membersTarget{}
	require.NoError(t, inj.InjectMembers(target))
	require.NotNil(t, target.DB)
	assert.Equal(t, "db", target.DB.Name)
	require.NotNil(t, target.cache)
	assert.Equal(t, 64, target.cache.Size)
	assert.Equal(t, []string{"setter"}, target.order)
}

// TestRequestInjection tests creation-time injection of a registered
// instance.
func TestRequestInjection(t *testing.T) {
	target := &membersTarget{}
	_, err := CreateInjector(membersModule(), NewModule("req", func(b Binder) {
		b.RequestInjection(target)
	}))
	require.NoError(t, err)
	require.NotNil(t, target.DB)
	assert.Equal(t, "db", target.DB.Name)
}

// TestStaticInjection tests pointer targets filled at creation, in
// request order.
func TestStaticInjection(t *testing.T) {
	staticDB = nil
	staticLabel = ""
	_, err := CreateInjector(membersModule(), NewModule("static", func(b Binder) {
		b.RequestStaticInjection(&staticDB, &staticLabel)
	}))
	require.NoError(t, err)
	require.NotNil(t, staticDB)
	assert.Equal(t, "db", staticDB.Name)
	assert.Equal(t, "label", staticLabel)
}

// TestMembersInjectorFor tests the reusable members injector handle.
func TestMembersInjectorFor(t *testing.T) {
	inj, err := CreateInjector(membersModule())
	require.NoError(t, err)

	mi, err := inj.MembersInjectorFor(TypeOf[*membersTarget]())
	require.NoError(t, err)

	first := &membersTarget{}
	second := &membersTarget{}
	require.NoError(t, mi.InjectMembers(first))
	require.NoError(t, mi.InjectMembers(second))
	assert.NotSame(t, first.DB, second.DB, "unscoped dependencies construct per injection")
}

// TestInstanceBindingMembersInjectedOnce tests that instance bindings
// receive members injection at creation only.
func TestInstanceBindingMembersInjectedOnce(t *testing.T) {
	held := &membersTarget{}
	inj, err := CreateInjector(membersModule(), NewModule("inst", func(b Binder) {
		Bind[*membersTarget](b).ToInstance(held)
	}))
	require.NoError(t, err)

	injectedAtCreation := held.DB
	require.NotNil(t, injectedAtCreation)

	got, err := GetInstanceOf[*membersTarget](inj)
	require.NoError(t, err)
	assert.Same(t, held, got)
	assert.Same(t, injectedAtCreation, got.DB, "provisioning must not re-inject")
}

// TestUnexportedTaggedFieldFails tests the malformed injection point
// diagnostic.
func TestUnexportedTaggedFieldFails(t *testing.T) {
	type badTarget struct {
		db *membersDB `inject:""` //nolint:unused
	}
	inj, err := CreateInjector(membersModule())
	require.NoError(t, err)

	err = inj.InjectMembers(&badTarget{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not exported")
}
