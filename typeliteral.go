package wisp

import (
	"fmt"
	"reflect"

	"github.com/calummacc/wisp/errors"
)

// TypeLiteral identifies a possibly generic Go type. Unlike a bare
// reflect.Type it can be produced for interface types without an instance
// via TypeOf, and it is the unit the container keys bindings, converters
// and listeners by.
//
// Go reifies type arguments at runtime, so no extra canonicalisation is
// required: two TypeLiterals are equal exactly when their reflect.Types
// are identical.
type TypeLiteral struct {
	t reflect.Type
}

// TypeOf returns the TypeLiteral for T. It works for interface types,
// pointer types and instantiated generic types alike:
//
//	TypeOf[io.Reader]()
//	TypeOf[*UserService]()
//	TypeOf[map[string][]int]()
func TypeOf[T any]() TypeLiteral {
	return TypeLiteral{t: reflect.TypeOf((*T)(nil)).Elem()}
}

// TypeLiteralOf wraps an explicit reflect.Type.
func TypeLiteralOf(t reflect.Type) TypeLiteral {
	if t == nil {
		panic(errors.NewConfigurationError("TypeLiteralOf called with a nil type"))
	}
	return TypeLiteral{t: t}
}

// typeLiteralFor wraps the dynamic type of a value.
func typeLiteralFor(v any) TypeLiteral {
	if v == nil {
		panic(errors.NewConfigurationError("cannot derive a type from a nil value"))
	}
	return TypeLiteral{t: reflect.TypeOf(v)}
}

// Type returns the underlying reflect.Type.
func (tl TypeLiteral) Type() reflect.Type {
	return tl.t
}

// IsValid reports whether the literal wraps a type at all.
func (tl TypeLiteral) IsValid() bool {
	return tl.t != nil
}

// IsInterface reports whether the underlying type is an interface.
func (tl TypeLiteral) IsInterface() bool {
	return tl.t != nil && tl.t.Kind() == reflect.Interface
}

// concrete returns the struct type a binding for this literal would
// allocate: the literal itself for struct types, the element type for
// pointers to structs, and nil and false otherwise.
func (tl TypeLiteral) concrete() (reflect.Type, bool) {
	switch {
	case tl.t == nil:
		return nil, false
	case tl.t.Kind() == reflect.Struct:
		return tl.t, true
	case tl.t.Kind() == reflect.Pointer && tl.t.Elem().Kind() == reflect.Struct:
		return tl.t.Elem(), true
	default:
		return nil, false
	}
}

// Supertype returns the literal for the given interface as implemented by
// this type. It fails when the type does not implement the interface.
func (tl TypeLiteral) Supertype(iface TypeLiteral) (TypeLiteral, error) {
	if !iface.IsInterface() {
		return TypeLiteral{}, errors.NewConfigurationError("Supertype requires an interface type, got %v", iface)
	}
	if !tl.t.Implements(iface.t) {
		return TypeLiteral{}, errors.NewConfigurationError("%v does not implement %v", tl, iface)
	}
	return iface, nil
}

// FieldType returns the literal of a struct field as declared by this
// type.
func (tl TypeLiteral) FieldType(field reflect.StructField) TypeLiteral {
	return TypeLiteral{t: field.Type}
}

// ParameterTypes returns the literals of a method's parameters, excluding
// the receiver.
func (tl TypeLiteral) ParameterTypes(method reflect.Method) []TypeLiteral {
	mt := method.Type
	start := 0
	if method.Func.IsValid() {
		start = 1
	}
	out := make([]TypeLiteral, 0, mt.NumIn()-start)
	for i := start; i < mt.NumIn(); i++ {
		out = append(out, TypeLiteral{t: mt.In(i)})
	}
	return out
}

// ReturnType returns the literal of a method's first result.
func (tl TypeLiteral) ReturnType(method reflect.Method) (TypeLiteral, error) {
	if method.Type.NumOut() == 0 {
		return TypeLiteral{}, errors.NewConfigurationError("method %s of %v returns nothing", method.Name, tl)
	}
	return TypeLiteral{t: method.Type.Out(0)}, nil
}

// String renders the type the way reflect does.
func (tl TypeLiteral) String() string {
	if tl.t == nil {
		return "<invalid type>"
	}
	return tl.t.String()
}

// GoString aids debugging output.
func (tl TypeLiteral) GoString() string {
	return fmt.Sprintf("wisp.TypeLiteral(%s)", tl)
}
