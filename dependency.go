package wisp

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/calummacc/wisp/errors"
)

// Dependency describes a single injection site: the key being requested,
// the injection point requesting it, the parameter index within that
// point, and whether the site tolerates a missing binding.
type Dependency struct {
	key      Key
	point    *InjectionPoint
	index    int
	optional bool
}

// NewDependency returns a synthetic dependency on a key, unattached to
// any injection point. Used for direct injector lookups.
func NewDependency(key Key) Dependency {
	return Dependency{key: key, index: -1}
}

// Key returns the requested key.
func (d Dependency) Key() Key { return d.key }

// InjectionPoint returns the requesting point, or nil for synthetic
// dependencies.
func (d Dependency) InjectionPoint() *InjectionPoint { return d.point }

// ParameterIndex returns the index of this dependency within its
// injection point, or -1 for fields and synthetic dependencies.
func (d Dependency) ParameterIndex() int { return d.index }

// Optional reports whether the site tolerates a missing binding.
func (d Dependency) Optional() bool { return d.optional }

// String renders the dependency for messages.
func (d Dependency) String() string {
	if d.point == nil {
		return d.key.String()
	}
	return fmt.Sprintf("%s for %s", d.key, d.point)
}

type pointKind int

const (
	pointField pointKind = iota
	pointMethod
	pointConstructor
)

// InjectionPoint is a reflective location that receives values: a tagged
// struct field, an InjectXxx setter method, or a constructor function.
// It carries the dependencies it produces.
type InjectionPoint struct {
	declaring TypeLiteral
	kind      pointKind
	field     reflect.StructField
	method    reflect.Method
	fn        reflect.Value
	deps      []Dependency
	optional  bool
}

// Declaring returns the type that declares this point.
func (p *InjectionPoint) Declaring() TypeLiteral { return p.declaring }

// Dependencies returns the dependencies this point produces.
func (p *InjectionPoint) Dependencies() []Dependency { return p.deps }

// IsOptional reports whether the whole point may be skipped when its
// dependencies cannot be satisfied.
func (p *InjectionPoint) IsOptional() bool { return p.optional }

// String renders the point for messages.
func (p *InjectionPoint) String() string {
	switch p.kind {
	case pointField:
		return fmt.Sprintf("field %s of %s", p.field.Name, p.declaring)
	case pointMethod:
		return fmt.Sprintf("method %s of %s", p.method.Name, p.declaring)
	default:
		if p.declaring.IsValid() {
			return fmt.Sprintf("constructor of %s", p.declaring)
		}
		return fmt.Sprintf("constructor %s", p.fn.Type())
	}
}

// injectTag is the struct tag that marks a field for injection.
const injectTag = "inject"

// setterPrefix marks methods that receive injected values.
const setterPrefix = "Inject"

// parseInjectTag interprets an inject tag value. The grammar is a
// comma-separated token list: "optional", "name=<value>" for a named
// qualifier, "qualifier=<name>" for a marker qualifier.
func parseInjectTag(value string) (optional bool, q Qualifier, err error) {
	if value == "" {
		return false, Qualifier{}, nil
	}
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "":
		case tok == "optional":
			optional = true
		case strings.HasPrefix(tok, "name="):
			q = Named(strings.TrimPrefix(tok, "name="))
		case strings.HasPrefix(tok, "qualifier="):
			q = Marker(strings.TrimPrefix(tok, "qualifier="))
		default:
			return false, Qualifier{}, fmt.Errorf("unknown inject tag token %q", tok)
		}
	}
	return optional, q, nil
}

var (
	pointCacheMu sync.RWMutex
	pointCache   = make(map[reflect.Type][]*InjectionPoint)
)

// membersInjectionPoints returns the injection points of a type in
// members-injection order: fields first in declaration order, then setter
// methods in method-name order. Lookups are cached per type; the cost amortises
// across all instantiations.
func membersInjectionPoints(tl TypeLiteral) ([]*InjectionPoint, error) {
	st, ok := tl.concrete()
	if !ok {
		// Interfaces, funcs, maps and scalars have no members to inject.
		return nil, nil
	}

	pointCacheMu.RLock()
	cached, ok := pointCache[st]
	pointCacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	var points []*InjectionPoint
	declaring := TypeLiteralOf(st)

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		tag, tagged := field.Tag.Lookup(injectTag)
		if !tagged {
			continue
		}
		if !field.IsExported() {
			return nil, errors.NewMessage(errors.MalformedInjectionPoint,
				"field %s of %v is tagged for injection but not exported", field.Name, declaring)
		}
		optional, q, err := parseInjectTag(tag)
		if err != nil {
			return nil, errors.NewMessage(errors.MalformedInjectionPoint,
				"field %s of %v: %v", field.Name, declaring, err)
		}
		p := &InjectionPoint{
			declaring: declaring,
			kind:      pointField,
			field:     field,
			optional:  optional,
		}
		p.deps = []Dependency{{
			key:      NewQualifiedKey(TypeLiteralOf(field.Type), q),
			point:    p,
			index:    -1,
			optional: optional,
		}}
		points = append(points, p)
	}

	pt := reflect.PointerTo(st)
	for i := 0; i < pt.NumMethod(); i++ {
		method := pt.Method(i)
		if !strings.HasPrefix(method.Name, setterPrefix) || method.Name == setterPrefix {
			continue
		}
		mt := method.Type
		if mt.NumIn() < 2 {
			continue
		}
		p := &InjectionPoint{
			declaring: declaring,
			kind:      pointMethod,
			method:    method,
		}
		for j := 1; j < mt.NumIn(); j++ {
			p.deps = append(p.deps, Dependency{
				key:   keyForType(mt.In(j)),
				point: p,
				index: j - 1,
			})
		}
		points = append(points, p)
	}

	pointCacheMu.Lock()
	pointCache[st] = points
	pointCacheMu.Unlock()
	return points, nil
}

// constructorPoint builds the injection point for a constructor function:
// func(deps...) T or func(deps...) (T, error).
func constructorPoint(fn any) (*InjectionPoint, error) {
	if fn == nil {
		return nil, errors.NewMessage(errors.MalformedInjectionPoint, "constructor is nil")
	}
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, errors.NewMessage(errors.MalformedInjectionPoint,
			"constructor must be a function, got %v", ft)
	}
	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.NewMessage(errors.MalformedInjectionPoint,
				"constructor %v: second result must be error", ft)
		}
	default:
		return nil, errors.NewMessage(errors.MalformedInjectionPoint,
			"constructor %v must return a value and optionally an error", ft)
	}

	p := &InjectionPoint{
		declaring: TypeLiteralOf(ft.Out(0)),
		kind:      pointConstructor,
		fn:        fv,
	}
	for i := 0; i < ft.NumIn(); i++ {
		p.deps = append(p.deps, Dependency{
			key:   keyForType(ft.In(i)),
			point: p,
			index: i,
		})
	}
	return p, nil
}

// boundMethodPoint builds the injection point for a provider method bound
// to its module instance.
func boundMethodPoint(declaring TypeLiteral, method reflect.Method, bound reflect.Value) (*InjectionPoint, error) {
	mt := bound.Type()
	switch mt.NumOut() {
	case 1:
	case 2:
		if mt.Out(1) != errorType {
			return nil, errors.NewMessage(errors.MalformedInjectionPoint,
				"provider method %s of %v: second result must be error", method.Name, declaring)
		}
	default:
		return nil, errors.NewMessage(errors.MalformedInjectionPoint,
			"provider method %s of %v must return a value and optionally an error", method.Name, declaring)
	}
	p := &InjectionPoint{
		declaring: declaring,
		kind:      pointConstructor,
		method:    method,
		fn:        bound,
	}
	for i := 0; i < mt.NumIn(); i++ {
		p.deps = append(p.deps, Dependency{
			key:   keyForType(mt.In(i)),
			point: p,
			index: i,
		})
	}
	return p, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
