package wisp

import (
	"reflect"
)

// contextFrame is one step of an in-flight resolution: the binding being
// provisioned and the dependency that demanded it.
type contextFrame struct {
	binding *Binding
	dep     Dependency
}

// internalContext is the per-call resolution state: the dependency chain
// used for cycle detection and error reporting, and the set of partially
// constructed instances available as early references for circular
// dependencies.
//
// A fresh context is opened at every public entry point and threaded
// explicitly through internal factories; contexts are never shared
// between goroutines, so concurrent provisioning in different goroutines
// does not share cycle state.
type internalContext struct {
	frames       []contextFrame
	constructing map[Key]reflect.Value
}

func newInternalContext() *internalContext {
	return &internalContext{}
}

// push opens a frame for a binding.
func (c *internalContext) push(b *Binding, dep Dependency) {
	c.frames = append(c.frames, contextFrame{binding: b, dep: dep})
}

// pop closes the innermost frame.
func (c *internalContext) pop() {
	c.frames = c.frames[:len(c.frames)-1]
}

// indexOf returns the frame index already provisioning the binding, or
// -1. Frames compare by binding identity, not key: a private
// environment's binding and its exposure in the parent share a key
// without forming a cycle.
func (c *internalContext) indexOf(b *Binding) int {
	for i, f := range c.frames {
		if f.binding == b {
			return i
		}
	}
	return -1
}

// chainFrom renders the keys of the dependency chain starting at a frame,
// closing the loop with the repeated key.
func (c *internalContext) chainFrom(start int, repeated Key) []string {
	out := make([]string, 0, len(c.frames)-start+1)
	for _, f := range c.frames[start:] {
		out = append(out, f.binding.key.String())
	}
	out = append(out, repeated.String())
	return out
}

// dependencyChain snapshots the active dependency chain for listeners and
// error messages.
func (c *internalContext) dependencyChain() []Dependency {
	out := make([]Dependency, len(c.frames))
	for i, f := range c.frames {
		out[i] = f.dep
	}
	return out
}

// setConstructing publishes a partially constructed instance as an early
// reference while its members are being injected.
func (c *internalContext) setConstructing(key Key, v reflect.Value) {
	if c.constructing == nil {
		c.constructing = make(map[Key]reflect.Value)
	}
	c.constructing[key] = v
}

// clearConstructing withdraws the early reference once construction
// completes.
func (c *internalContext) clearConstructing(key Key) {
	delete(c.constructing, key)
}

// earlyReference finds a partially constructed instance assignable to the
// requested interface type. Early references are only handed out for
// interface-typed requests; handing out a partially initialised concrete
// value would let callers observe unset fields without any indirection to
// hide behind.
func (c *internalContext) earlyReference(key Key) (any, bool) {
	if !key.TypeLiteral().IsInterface() {
		return nil, false
	}
	if v, ok := c.constructing[key]; ok {
		return v.Interface(), true
	}
	want := key.Type()
	for _, v := range c.constructing {
		if v.Type().AssignableTo(want) {
			return v.Interface(), true
		}
	}
	return nil, false
}
