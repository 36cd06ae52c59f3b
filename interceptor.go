package wisp

import (
	"fmt"
	"reflect"

	"github.com/calummacc/wisp/errors"
	"github.com/calummacc/wisp/matcher"
)

// MethodInvocation is one intercepted call: the receiver, the method and
// its arguments. Proceed continues down the interceptor chain and finally
// invokes the method itself.
type MethodInvocation interface {
	// Method returns the intercepted method.
	Method() reflect.Method
	// Receiver returns the instance the method is invoked on.
	Receiver() any
	// Arguments returns the call arguments.
	Arguments() []any
	// Proceed runs the rest of the chain and the method, returning the
	// method's first result.
	Proceed() (any, error)
}

// MethodInterceptor wraps matching method invocations. Interception is an
// invocation hook: callers route calls through Injector.InvokeIntercepted
// (or a chain obtained from MethodInterceptors) rather than through
// generated proxies.
type MethodInterceptor interface {
	Invoke(invocation MethodInvocation) (any, error)
}

// MethodInterceptorFunc adapts a function to the MethodInterceptor
// interface.
type MethodInterceptorFunc func(invocation MethodInvocation) (any, error)

// Invoke implements MethodInterceptor.
func (f MethodInterceptorFunc) Invoke(invocation MethodInvocation) (any, error) {
	return f(invocation)
}

// interceptorEntry is one registered interceptor group.
type interceptorEntry struct {
	classMatcher  matcher.Matcher[TypeLiteral]
	methodMatcher matcher.Matcher[string]
	interceptors  []MethodInterceptor
	source        *ElementSource
}

// methodInvocation walks the chain; index addresses the next interceptor.
type methodInvocation struct {
	method   reflect.Method
	receiver any
	args     []any
	chain    []MethodInterceptor
	index    int
}

func (inv *methodInvocation) Method() reflect.Method { return inv.method }
func (inv *methodInvocation) Receiver() any          { return inv.receiver }
func (inv *methodInvocation) Arguments() []any       { return inv.args }

func (inv *methodInvocation) Proceed() (any, error) {
	if inv.index < len(inv.chain) {
		next := inv.chain[inv.index]
		inv.index++
		return next.Invoke(inv)
	}
	return inv.call()
}

// call performs the underlying reflective method call, returning the
// first result and any trailing error result.
func (inv *methodInvocation) call() (any, error) {
	rv := reflect.ValueOf(inv.receiver)
	mv := rv.MethodByName(inv.method.Name)
	if !mv.IsValid() {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.InternalError,
			"intercepted method %s not found on %T", inv.method.Name, inv.receiver))
	}
	in := make([]reflect.Value, len(inv.args))
	for i, a := range inv.args {
		if a == nil {
			in[i] = reflect.Zero(mv.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(a)
	}
	out := mv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if mv.Type().Out(0) == errorType {
			err, _ := out[0].Interface().(error)
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		var err error
		if mv.Type().Out(len(out)-1) == errorType {
			err, _ = out[len(out)-1].Interface().(error)
		}
		return out[0].Interface(), err
	}
}

// MethodInterceptors returns the interceptor chain registered for a type
// and method name, in registration order.
func (i *Injector) MethodInterceptors(t TypeLiteral, methodName string) []MethodInterceptor {
	var injectors []*Injector
	for inj := i; inj != nil; inj = inj.parent {
		injectors = append(injectors, inj)
	}
	var chain []MethodInterceptor
	for n := len(injectors) - 1; n >= 0; n-- {
		for _, e := range injectors[n].interceptors {
			if e.classMatcher.Matches(t) && e.methodMatcher.Matches(methodName) {
				chain = append(chain, e.interceptors...)
			}
		}
	}
	return chain
}

// InvokeIntercepted calls a method on an instance through its registered
// interceptor chain. When no interceptors match, the method is called
// directly.
func (i *Injector) InvokeIntercepted(instance any, methodName string, args ...any) (any, error) {
	if instance == nil {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
			"cannot invoke %s on a nil instance", methodName))
	}
	t := reflect.TypeOf(instance)
	method, ok := t.MethodByName(methodName)
	if !ok {
		return nil, errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
			"%v has no method %s", t, methodName))
	}
	chain := i.MethodInterceptors(TypeLiteralOf(t), methodName)
	inv := &methodInvocation{
		method:   method,
		receiver: instance,
		args:     args,
		chain:    chain,
	}
	out, err := inv.Proceed()
	if err != nil {
		if _, ok := err.(*errors.ProvisionError); ok {
			return out, err
		}
		return out, errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
			"interceptor chain for %s failed", methodName).WithCause(err))
	}
	return out, nil
}

// String aids debugging of interceptor registrations.
func (e interceptorEntry) String() string {
	return fmt.Sprintf("interceptors(%v, %v)", e.classMatcher, e.methodMatcher)
}
