package wisp

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test types
type (
	keyTestService struct {
		Name string
	}

	keyTestReader interface {
		Read() string
	}
)

// TestKeyEquality tests that keys are canonical and structural.
func TestKeyEquality(t *testing.T) {
	assert.Equal(t, KeyOf[int](), NewKey(TypeLiteralOf(reflect.TypeOf(0))))
	assert.Equal(t, KeyOf[*keyTestService](), KeyOf[*keyTestService]())
	assert.NotEqual(t, KeyOf[int](), KeyOf[int64]())

	// Parameterised types are part of the identity.
	assert.NotEqual(t, QualifiedKeyOf[[]string](Marker("q")), QualifiedKeyOf[[]int](Marker("q")))

	// Value qualifiers compare by all member values.
	assert.NotEqual(t, QualifiedKeyOf[int](Named("1")), QualifiedKeyOf[int](Named("2")))
	assert.Equal(t, QualifiedKeyOf[int](Named("1")), QualifiedKeyOf[int](Named("1")))

	// Marker and value qualifiers of the same name are distinct.
	assert.NotEqual(t, QualifiedKeyOf[int](Marker("named")), QualifiedKeyOf[int](Named("x")))
}

// TestQualifierMembers tests structural equality of value qualifiers.
func TestQualifierMembers(t *testing.T) {
	a := Value("q", map[string]string{"x": "1", "y": "2"})
	b := Value("q", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, a.Members())

	named := Named("en")
	assert.Equal(t, "named", named.Name())
	assert.False(t, named.IsMarker())
	assert.Equal(t, map[string]string{"value": "en"}, named.Members())

	marker := Marker("internal")
	assert.True(t, marker.IsMarker())
	assert.Empty(t, marker.Members())

	var zero Qualifier
	assert.True(t, zero.IsZero())
	assert.False(t, marker.IsZero())
}

// TestKeyQualifierAccessors tests qualifier manipulation on keys.
func TestKeyQualifierAccessors(t *testing.T) {
	k := QualifiedKeyOf[keyTestReader](Named("en"))
	q, ok := k.Qualifier()
	assert.True(t, ok)
	assert.Equal(t, Named("en"), q)

	// OfType keeps the qualifier.
	k2 := k.OfType(TypeOf[int]())
	q2, ok := k2.Qualifier()
	assert.True(t, ok)
	assert.Equal(t, Named("en"), q2)
	assert.Equal(t, reflect.TypeOf(0), k2.Type())

	unq := k.WithoutQualifier()
	assert.False(t, unq.HasQualifier())
}

// TestTypeLiteral tests type literal construction and inspection.
func TestTypeLiteral(t *testing.T) {
	r := TypeOf[keyTestReader]()
	assert.True(t, r.IsInterface())
	assert.True(t, r.IsValid())

	s := TypeOf[*keyTestService]()
	assert.False(t, s.IsInterface())
	st, ok := s.concrete()
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeOf(keyTestService{}), st)

	_, ok = TypeOf[keyTestReader]().concrete()
	assert.False(t, ok)

	assert.Equal(t, "wisp.keyTestService", TypeOf[keyTestService]().String())
}

// TestKeyString tests the message rendering of keys.
func TestKeyString(t *testing.T) {
	assert.Equal(t, "int", KeyOf[int]().String())
	assert.Contains(t, QualifiedKeyOf[int](Named("en")).String(), "@named(value=en)")
	assert.Contains(t, QualifiedKeyOf[int](Marker("internal")).String(), "@internal")
}
