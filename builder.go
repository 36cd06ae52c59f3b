package wisp

import (
	"reflect"
)

// BindingBuilder is the fluent surface behind Binder.Bind. It mutates the
// binding element recorded when the builder was opened; the last call
// wins, matching element-stream semantics.
type BindingBuilder struct {
	binder  *recordingBinder
	element *BindingElement
}

// AnnotatedWith qualifies the key being bound.
func (bb *BindingBuilder) AnnotatedWith(q Qualifier) *BindingBuilder {
	bb.element.Key = bb.element.Key.WithQualifier(q)
	return bb
}

// To links the key to another type's unqualified key.
func (bb *BindingBuilder) To(t TypeLiteral) *BindingBuilder {
	return bb.ToKey(NewKey(t))
}

// ToKey links the key to another key; provisioning delegates to the
// target key's binding.
func (bb *BindingBuilder) ToKey(target Key) *BindingBuilder {
	if target == bb.element.Key {
		bb.binder.AddError("binding %s links to itself", target)
		return bb
	}
	bb.element.Target = &LinkedKeyTarget{Target: target}
	return bb
}

// ToInstance binds the key to a pre-constructed value. The instance's
// members are injected once, when the injector is created.
func (bb *BindingBuilder) ToInstance(value any) *BindingBuilder {
	if value == nil {
		bb.binder.AddError("binding %s to a nil instance", bb.element.Key)
		return bb
	}
	bb.element.Target = &InstanceTarget{Value: value}
	return bb
}

// ToProvider binds the key to a provider instance.
func (bb *BindingBuilder) ToProvider(p Provider) *BindingBuilder {
	if p == nil {
		bb.binder.AddError("binding %s to a nil provider", bb.element.Key)
		return bb
	}
	bb.element.Target = &ProviderInstanceTarget{Provider: p}
	return bb
}

// ToProviderFunc binds the key to a provider function.
func (bb *BindingBuilder) ToProviderFunc(f func() (any, error)) *BindingBuilder {
	return bb.ToProvider(ProviderFunc(f))
}

// ToProviderKey binds the key to another key whose instances provide it.
func (bb *BindingBuilder) ToProviderKey(providerKey Key) *BindingBuilder {
	bb.element.Target = &ProviderKeyTarget{ProviderKey: providerKey}
	return bb
}

// ToConstructor binds the key to a constructor function of the shape
// func(deps...) T or func(deps...) (T, error).
func (bb *BindingBuilder) ToConstructor(fn any) *BindingBuilder {
	point, err := constructorPoint(fn)
	if err != nil {
		bb.binder.addPointError(err)
		return bb
	}
	bb.element.Target = &ConstructorTarget{Point: point}
	return bb
}

// toPoint installs a pre-built constructor point; used by element replay.
func (bb *BindingBuilder) toPoint(point *InjectionPoint) *BindingBuilder {
	bb.element.Target = &ConstructorTarget{Point: point}
	return bb
}

// In applies a scoping to the binding.
func (bb *BindingBuilder) In(s Scoping) *BindingBuilder {
	bb.element.Scoping = s
	return bb
}

// in is the replay entry point; it sets the recorded scoping as given.
func (bb *BindingBuilder) in(s Scoping) {
	bb.element.Scoping = s
}

// ConstantBindingBuilder is the fluent surface behind Binder.BindConstant.
type ConstantBindingBuilder struct {
	binder    *recordingBinder
	qualifier Qualifier
	source    *ElementSource
}

// To binds a constant value under the builder's qualifier. The value must
// be a scalar: a bool, integer, float, or string. String constants may
// later satisfy other types through registered type converters.
func (cb *ConstantBindingBuilder) To(value any) {
	if value == nil {
		cb.binder.AddError("constant binding %s to a nil value", cb.qualifier)
		return
	}
	t := reflect.TypeOf(value)
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		cb.binder.AddError("constant binding %s requires a scalar value, got %v", cb.qualifier, t)
		return
	}
	cb.binder.append(&BindingElement{
		baseElement: baseElement{source: cb.source},
		Key:         NewQualifiedKey(TypeLiteralOf(t), cb.qualifier),
		Target:      &InstanceTarget{Value: value},
		Scoping:     Unscoped,
	})
}
