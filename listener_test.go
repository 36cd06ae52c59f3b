package wisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calummacc/wisp/matcher"
)

// Test types
type (
	listenerWidget struct {
		Label string

		stamped bool
	}
)

// TestTypeListenerHearsBoundTypes tests that listeners run over the
// types the compiler prepares, during creation only.
func TestTypeListenerHearsBoundTypes(t *testing.T) {
	var heard []string
	_, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*listenerWidget](b).ToConstructor(func() *listenerWidget {
			return &listenerWidget{Label: "w"}
		})
		Bind[string](b).ToInstance("s")
		b.BindTypeListener(matcher.Any[TypeLiteral](),
			TypeListenerFunc(func(tl TypeLiteral, encounter TypeEncounter) {
				heard = append(heard, tl.String())
			}))
	}))
	require.NoError(t, err)
	assert.Contains(t, heard, "*wisp.listenerWidget")
	assert.Contains(t, heard, "string")
}

// TestTypeListenerRegistersMembersInjector tests encounter-contributed
// members injection.
func TestTypeListenerRegistersMembersInjector(t *testing.T) {
	inj, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*listenerWidget](b).ToConstructor(func() *listenerWidget {
			return &listenerWidget{Label: "w"}
		})
		b.BindTypeListener(matcher.Only(TypeOf[*listenerWidget]()),
			TypeListenerFunc(func(tl TypeLiteral, encounter TypeEncounter) {
				encounter.Register(membersInjectorFunc(func(instance any) error {
					instance.(*listenerWidget).stamped = true
					return nil
				}))
			}))
	}))
	require.NoError(t, err)

	w, err := GetInstanceOf[*listenerWidget](inj)
	require.NoError(t, err)
	assert.True(t, w.stamped)
}

// TestTypeListenerBindsInterceptor tests encounter-contributed
// interceptors.
func TestTypeListenerBindsInterceptor(t *testing.T) {
	inj, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[*interceptedService](b).ToConstructor(func() *interceptedService {
			return &interceptedService{}
		})
		b.BindTypeListener(matcher.Only(TypeOf[*interceptedService]()),
			TypeListenerFunc(func(tl TypeLiteral, encounter TypeEncounter) {
				encounter.BindInterceptor(matcher.Any[string](),
					MethodInterceptorFunc(func(inv MethodInvocation) (any, error) {
						return "from-listener", nil
					}))
			}))
	}))
	require.NoError(t, err)

	out, err := inj.InvokeIntercepted(&interceptedService{}, "Describe", "x")
	require.NoError(t, err)
	assert.Equal(t, "from-listener", out)
}

// TestTypeListenerErrorFailsCreation tests encounter error reporting.
func TestTypeListenerErrorFailsCreation(t *testing.T) {
	_, err := CreateInjector(NewModule("listen", func(b Binder) {
		Bind[string](b).ToInstance("s")
		b.BindTypeListener(matcher.Any[TypeLiteral](),
			TypeListenerFunc(func(tl TypeLiteral, encounter TypeEncounter) {
				encounter.AddError("refused")
			}))
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
