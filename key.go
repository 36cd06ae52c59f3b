package wisp

import (
	"reflect"

	"github.com/calummacc/wisp/errors"
)

// Key is the identity a value is requested under: a type plus an optional
// qualifier. Keys are comparable and canonical; they are the map keys of
// the binding graph.
type Key struct {
	t TypeLiteral
	q Qualifier
}

// KeyOf returns the unqualified key for T.
func KeyOf[T any]() Key {
	return Key{t: TypeOf[T]()}
}

// QualifiedKeyOf returns the key for T under the given qualifier.
func QualifiedKeyOf[T any](q Qualifier) Key {
	return Key{t: TypeOf[T](), q: q}
}

// NewKey returns the unqualified key for a type literal.
func NewKey(t TypeLiteral) Key {
	if !t.IsValid() {
		panic(errors.NewConfigurationError("NewKey called with an invalid type literal"))
	}
	return Key{t: t}
}

// NewQualifiedKey returns the key for a type literal under a qualifier.
func NewQualifiedKey(t TypeLiteral, q Qualifier) Key {
	if !t.IsValid() {
		panic(errors.NewConfigurationError("NewQualifiedKey called with an invalid type literal"))
	}
	return Key{t: t, q: q}
}

// keyForType builds an unqualified key for a reflect.Type.
func keyForType(t reflect.Type) Key {
	return Key{t: TypeLiteralOf(t)}
}

// TypeLiteral returns the key's type.
func (k Key) TypeLiteral() TypeLiteral {
	return k.t
}

// Type returns the key's reflect.Type.
func (k Key) Type() reflect.Type {
	return k.t.Type()
}

// Qualifier returns the key's qualifier and whether one is present.
func (k Key) Qualifier() (Qualifier, bool) {
	return k.q, !k.q.IsZero()
}

// HasQualifier reports whether the key carries a qualifier.
func (k Key) HasQualifier() bool {
	return !k.q.IsZero()
}

// OfType returns a key with the same qualifier but a different type.
func (k Key) OfType(t TypeLiteral) Key {
	if !t.IsValid() {
		panic(errors.NewConfigurationError("OfType called with an invalid type literal"))
	}
	return Key{t: t, q: k.q}
}

// WithQualifier returns a key for the same type under the given qualifier.
func (k Key) WithQualifier(q Qualifier) Key {
	return Key{t: k.t, q: q}
}

// WithoutQualifier strips the qualifier.
func (k Key) WithoutQualifier() Key {
	return Key{t: k.t}
}

// IsValid reports whether the key names a type.
func (k Key) IsValid() bool {
	return k.t.IsValid()
}

// String renders the key for messages, e.g. "wisp_test.Greeter @named(value=en)".
func (k Key) String() string {
	if k.q.IsZero() {
		return k.t.String()
	}
	return k.t.String() + " " + k.q.String()
}
