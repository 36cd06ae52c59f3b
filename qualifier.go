package wisp

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Qualifier distinguishes multiple bindings of the same type. A qualifier
// is either a marker (identified by name alone) or a value qualifier
// (a name plus a set of member values compared structurally). The zero
// Qualifier means "no qualifier".
//
// Qualifiers are plain comparable values, so two qualifiers are equal
// exactly when their name and all member values are equal. Member order
// does not matter; members are stored in a canonical sorted encoding.
type Qualifier struct {
	name   string
	canon  string
	valued bool
}

// Marker returns a marker qualifier identified by name only.
func Marker(name string) Qualifier {
	return Qualifier{name: name}
}

// Named returns the common string-valued qualifier, equivalent to
// Value("named", map[string]string{"value": value}).
func Named(value string) Qualifier {
	return Value("named", map[string]string{"value": value})
}

// Value returns a qualifier carrying member values. Two value qualifiers
// are equal when their names and all members match.
func Value(name string, members map[string]string) Qualifier {
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(members[k]))
	}
	return Qualifier{name: name, canon: strings.Join(parts, "&"), valued: true}
}

// Name returns the qualifier's name.
func (q Qualifier) Name() string {
	return q.name
}

// IsZero reports whether this is the absent qualifier.
func (q Qualifier) IsZero() bool {
	return q == Qualifier{}
}

// IsMarker reports whether the qualifier carries no member values.
func (q Qualifier) IsMarker() bool {
	return !q.IsZero() && !q.valued
}

// Members decodes the member values of a value qualifier. Markers return
// an empty map.
func (q Qualifier) Members() map[string]string {
	out := make(map[string]string)
	if q.canon == "" {
		return out
	}
	for _, part := range strings.Split(q.canon, "&") {
		k, v, _ := strings.Cut(part, "=")
		uk, _ := url.QueryUnescape(k)
		uv, _ := url.QueryUnescape(v)
		out[uk] = uv
	}
	return out
}

// String renders the qualifier for messages, e.g. @named(value=en).
func (q Qualifier) String() string {
	if q.IsZero() {
		return ""
	}
	if q.IsMarker() {
		return "@" + q.name
	}
	members := q.Members()
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, members[k]))
	}
	return fmt.Sprintf("@%s(%s)", q.name, strings.Join(parts, ", "))
}
