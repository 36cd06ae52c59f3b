package wisp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calummacc/wisp/matcher"
)

// Test types
type (
	// logLevel is a named integer type, the enum analog.
	logLevel int32

	converterConfig struct {
		Debug   bool          `inject:"qualifier=debug"`
		Workers uint16        `inject:"qualifier=workers"`
		Ratio   float64       `inject:"qualifier=ratio"`
		Timeout time.Duration `inject:"qualifier=timeout"`
		Level   logLevel      `inject:"qualifier=level"`
		Initial rune          `inject:"qualifier=initial"`
	}
)

// TestStandardConverters tests the seeded converters across the scalar
// kinds, durations, named types and characters.
func TestStandardConverters(t *testing.T) {
	inj, err := CreateInjector(NewModule("config", func(b Binder) {
		b.BindConstant(Marker("debug")).To("true")
		b.BindConstant(Marker("workers")).To("12")
		b.BindConstant(Marker("ratio")).To("0.75")
		b.BindConstant(Marker("timeout")).To("1500ms")
		b.BindConstant(Marker("level")).To("3")
		b.BindConstant(Marker("initial")).To("w")
	}))
	require.NoError(t, err)

	cfg, err := GetInstanceOf[*converterConfig](inj)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, uint16(12), cfg.Workers)
	assert.Equal(t, 0.75, cfg.Ratio)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, logLevel(3), cfg.Level)
	assert.Equal(t, 'w', cfg.Initial)
}

// TestCustomConverterRegistration tests user converters registered via
// ConvertToTypes, consulted after the standard ones.
func TestCustomConverterRegistration(t *testing.T) {
	type endpoint struct {
		Host string
	}
	inj, err := CreateInjector(NewModule("config", func(b Binder) {
		b.BindConstant(Marker("upstream")).To("api.example.com")
		b.ConvertToTypes(
			matcher.Only(TypeOf[*endpoint]()),
			TypeConverterFunc(func(value string, to TypeLiteral) (any, error) {
				return &endpoint{Host: value}, nil
			}))
	}))
	require.NoError(t, err)

	v, err := inj.GetInstance(QualifiedKeyOf[*endpoint](Marker("upstream")))
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", v.(*endpoint).Host)
}

// TestConverterWrongTypeFails tests the wrong-raw-type diagnostic.
func TestConverterWrongTypeFails(t *testing.T) {
	type endpoint struct{ Host string }
	inj, err := CreateInjector(NewModule("config", func(b Binder) {
		b.BindConstant(Marker("upstream")).To("api.example.com")
		b.ConvertToTypes(
			matcher.Only(TypeOf[*endpoint]()),
			TypeConverterFunc(func(value string, to TypeLiteral) (any, error) {
				return 42, nil
			}))
	}))
	require.NoError(t, err)

	_, err = inj.GetInstance(QualifiedKeyOf[*endpoint](Marker("upstream")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONVERTER_RETURNED_WRONG_TYPE")
}
