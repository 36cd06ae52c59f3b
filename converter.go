package wisp

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/calummacc/wisp/matcher"
)

// TypeConverter turns a bound string constant into a value of another
// type. Converters are consulted in registration order; the first one
// whose matcher accepts the target type wins.
type TypeConverter interface {
	// Convert parses the constant for the target type. Returning an
	// error, a nil value, or a value of the wrong type fails the lookup.
	Convert(value string, to TypeLiteral) (any, error)
}

// TypeConverterFunc adapts a function to the TypeConverter interface.
type TypeConverterFunc func(value string, to TypeLiteral) (any, error)

// Convert implements TypeConverter.
func (f TypeConverterFunc) Convert(value string, to TypeLiteral) (any, error) {
	return f(value, to)
}

// converterEntry is one registered converter with its matcher and source.
type converterEntry struct {
	matcher   matcher.Matcher[TypeLiteral]
	converter TypeConverter
	source    *ElementSource
}

// durationType gets its own converter; its kind is int64 but its syntax
// is not numeric.
var durationType = reflect.TypeOf(time.Duration(0))

// scalarKind reports whether the standard converter can parse a kind.
func scalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// convertScalar parses a constant into any scalar kind, covering the
// numeric and boolean primitives plus named types over them (the enum
// analog: the parsed value is converted to the named type). Values of
// kind int32 additionally accept a single character.
func convertScalar(value string, to TypeLiteral) (any, error) {
	t := to.Type()
	var (
		parsed reflect.Value
		err    error
	)
	switch t.Kind() {
	case reflect.Bool:
		var v bool
		v, err = strconv.ParseBool(value)
		parsed = reflect.ValueOf(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var v int64
		v, err = strconv.ParseInt(value, 10, t.Bits())
		if err != nil && t.Kind() == reflect.Int32 && utf8.RuneCountInString(value) == 1 {
			r, _ := utf8.DecodeRuneInString(value)
			v, err = int64(r), nil
		}
		parsed = reflect.ValueOf(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var v uint64
		v, err = strconv.ParseUint(value, 10, t.Bits())
		parsed = reflect.ValueOf(v)
	case reflect.Float32, reflect.Float64:
		var v float64
		v, err = strconv.ParseFloat(value, t.Bits())
		parsed = reflect.ValueOf(v)
	default:
		return nil, fmt.Errorf("no conversion to %v", to)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse %q as %v: %w", value, to, err)
	}
	return parsed.Convert(t).Interface(), nil
}

// defaultConverterEntries seeds the converter list: durations first, then
// every scalar kind.
func defaultConverterEntries() []converterEntry {
	return []converterEntry{
		{
			matcher: matcher.Only(TypeLiteralOf(durationType)),
			converter: TypeConverterFunc(func(value string, to TypeLiteral) (any, error) {
				d, err := time.ParseDuration(value)
				if err != nil {
					return nil, fmt.Errorf("cannot parse %q as %v: %w", value, to, err)
				}
				return d, nil
			}),
		},
		{
			matcher: matcher.Func(func(t TypeLiteral) bool {
				return scalarKind(t.Type().Kind())
			}),
			converter: TypeConverterFunc(convertScalar),
		},
	}
}
