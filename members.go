package wisp

import (
	"reflect"

	"github.com/calummacc/wisp/errors"
)

// MembersInjector populates an already-constructed instance's tagged
// fields and InjectXxx setter methods with resolved dependencies.
type MembersInjector interface {
	InjectMembers(instance any) error
}

// membersInjectorFunc adapts a function to the MembersInjector interface.
type membersInjectorFunc func(instance any) error

func (f membersInjectorFunc) InjectMembers(instance any) error { return f(instance) }

// InjectMembers injects the instance's members: inject-tagged fields
// first in declaration order, then setter methods in method-name order, followed by any
// members injectors contributed by type listeners.
func (i *Injector) InjectMembers(instance any) error {
	return i.injectMembersCtx(newInternalContext(), instance)
}

// MembersInjectorFor returns a reusable members injector for a type. The
// type's injection points are validated eagerly.
func (i *Injector) MembersInjectorFor(t TypeLiteral) (MembersInjector, error) {
	if _, err := membersInjectionPoints(t); err != nil {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.MalformedInjectionPoint,
			"cannot build a members injector for %s: %v", t, err))
	}
	return membersInjectorFunc(func(instance any) error {
		return i.InjectMembers(instance)
	}), nil
}

// injectMembersCtx performs members injection within a resolution
// context, so injections requested mid-provisioning share cycle state.
func (i *Injector) injectMembersCtx(ctx *internalContext, instance any) error {
	if instance == nil {
		return errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
			"cannot inject members of a nil instance"))
	}
	rv := reflect.ValueOf(instance)
	t := typeLiteralFor(instance)
	points, err := membersInjectionPoints(t)
	if err != nil {
		return errors.NewProvisionError(errors.NewMessage(errors.MalformedInjectionPoint,
			"cannot inject %s: %v", t, err))
	}
	extras := i.extraMembersFor(rv.Type())
	if len(points) == 0 && len(extras) == 0 {
		return nil
	}
	if len(points) > 0 && (rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct) {
		return errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
			"members injection of %s requires a pointer to a struct", t))
	}
	if len(points) > 0 {
		if err := i.injectValueMembers(ctx, rv); err != nil {
			return err
		}
	}
	for _, mi := range extras {
		if err := mi.InjectMembers(instance); err != nil {
			return provisionFailure(ctx, NewKey(t), err)
		}
	}
	return nil
}

// injectValueMembers fills the fields and setters of an addressable
// struct pointed to by pv.
func (i *Injector) injectValueMembers(ctx *internalContext, pv reflect.Value) error {
	points, err := membersInjectionPoints(TypeLiteralOf(pv.Type()))
	if err != nil {
		return errors.NewProvisionError(errors.NewMessage(errors.MalformedInjectionPoint,
			"cannot inject %v: %v", pv.Type(), err))
	}
	elem := pv.Elem()
	for _, p := range points {
		switch p.kind {
		case pointField:
			d := p.deps[0]
			v, ok, err := i.resolveDependencyValue(ctx, d)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			fv := elem.FieldByIndex(p.field.Index)
			fv.Set(toArgValue(v, p.field.Type))
		case pointMethod:
			mv := pv.MethodByName(p.method.Name)
			args := make([]reflect.Value, len(p.deps))
			for n, d := range p.deps {
				v, ok, err := i.resolveDependencyValue(ctx, d)
				if err != nil {
					return err
				}
				if !ok {
					args[n] = reflect.Zero(mv.Type().In(n))
					continue
				}
				args[n] = toArgValue(v, mv.Type().In(n))
			}
			out, err := safeCall(ctx, NewKey(p.declaring), mv, args)
			if err != nil {
				return err
			}
			if len(out) > 0 && mv.Type().Out(len(out)-1) == errorType && !out[len(out)-1].IsNil() {
				return provisionFailure(ctx, NewKey(p.declaring), out[len(out)-1].Interface().(error))
			}
		}
	}
	return nil
}

// fillStaticTargets resolves and assigns the pointed-to variables of a
// static injection request, in request order.
func (i *Injector) fillStaticTargets(targets []any) error {
	for _, target := range targets {
		if target == nil {
			return errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
				"static injection target is nil"))
		}
		rv := reflect.ValueOf(target)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
				"static injection targets must be non-nil pointers, got %T", target))
		}
		v, err := i.GetInstance(keyForType(rv.Type().Elem()))
		if err != nil {
			return err
		}
		rv.Elem().Set(toArgValue(v, rv.Type().Elem()))
	}
	return nil
}
