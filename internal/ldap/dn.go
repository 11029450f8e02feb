package ldap

import (
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// AttributeValue is a single attribute=value pair of a relative distinguished name.
type AttributeValue struct {
	Type  string
	Value string
}

// RDN is one component of a DN. Most RDNs carry a single pair; multi-valued
// RDNs ("cn=a+uid=b") carry several.
type RDN struct {
	pairs []AttributeValue
}

// NewRDN builds a single-valued RDN.
func NewRDN(attrType, value string) RDN {
	return RDN{pairs: []AttributeValue{{Type: strings.TrimSpace(attrType), Value: value}}}
}

// Pairs returns a copy of the attribute/value pairs of the RDN.
func (r RDN) Pairs() []AttributeValue {
	return slices.Clone(r.pairs)
}

// String renders the RDN with its original attribute type spelling.
func (r RDN) String() string {
	parts := make([]string, len(r.pairs))
	for i, p := range r.pairs {
		parts[i] = p.Type + "=" + EscapeDNValue(p.Value)
	}
	return strings.Join(parts, "+")
}

// normalized renders the RDN with lower-case attribute types, pairs ordered by type.
func (r RDN) normalized() string {
	parts := make([]string, len(r.pairs))
	for i, p := range r.pairs {
		parts[i] = strings.ToLower(p.Type) + "=" + EscapeDNValue(p.Value)
	}
	if len(parts) > 1 {
		slices.Sort(parts)
	}
	return strings.Join(parts, "+")
}

// equalFold compares two RDNs with case-insensitive values.
func (r RDN) equalFold(o RDN) bool {
	return strings.EqualFold(r.normalized(), o.normalized())
}

// DN is an immutable distinguished name. Components are stored leaf first,
// the way they are written: "ou=company1,ou=Sweden" holds [ou=company1, ou=Sweden].
//
// The zero value is the empty (root) DN.
type DN struct {
	rdns []RDN
	key  string
}

// Name is accepted wherever a listing operation needs a base node: either a
// parsed DN or its textual form. Both resolve to the same DN.
type Name interface {
	resolve() (DN, error)
}

// StringName is the textual form of a Name.
type StringName string

func (s StringName) resolve() (DN, error) {
	return ParseDN(string(s))
}

func (d DN) resolve() (DN, error) {
	return d, nil
}

// ParseDN parses an RFC 4514 distinguished name. Blank input yields the root DN.
func ParseDN(text string) (DN, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return DN{}, nil
	}

	parsed, err := ldap.ParseDN(text)
	if err != nil {
		return DN{}, &Error{
			Op:      "parse_dn",
			Kind:    KindInvalidName,
			DN:      text,
			Message: "invalid DN syntax",
			Cause:   err,
		}
	}

	rdns := make([]RDN, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		pairs := make([]AttributeValue, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrType := strings.TrimSpace(attr.Type)
			if attrType == "" {
				return DN{}, &Error{
					Op:      "parse_dn",
					Kind:    KindInvalidName,
					DN:      text,
					Message: "empty attribute type in DN component",
				}
			}
			pairs = append(pairs, AttributeValue{Type: attrType, Value: attr.Value})
		}
		rdns = append(rdns, RDN{pairs: pairs})
	}

	return newDN(rdns), nil
}

// MustParseDN is like ParseDN but panics on error. Intended for constants and tests.
func MustParseDN(text string) DN {
	dn, err := ParseDN(text)
	if err != nil {
		panic(err)
	}
	return dn
}

func newDN(rdns []RDN) DN {
	parts := make([]string, len(rdns))
	for i, rdn := range rdns {
		parts[i] = rdn.normalized()
	}
	return DN{rdns: rdns, key: strings.Join(parts, ",")}
}

// Size returns the number of RDN components.
func (d DN) Size() int {
	return len(d.rdns)
}

// IsEmpty reports whether d is the root DN.
func (d DN) IsEmpty() bool {
	return len(d.rdns) == 0
}

// RDN returns the i-th component, counting from the leaf.
func (d DN) RDN(i int) RDN {
	return d.rdns[i]
}

// RDNs returns a copy of the components, leaf first.
func (d DN) RDNs() []RDN {
	return slices.Clone(d.rdns)
}

// String renders the DN with the attribute type spelling it was built from.
func (d DN) String() string {
	parts := make([]string, len(d.rdns))
	for i, rdn := range d.rdns {
		parts[i] = rdn.String()
	}
	return strings.Join(parts, ",")
}

// Normalized renders the normalized form used for equality.
func (d DN) Normalized() string {
	return d.key
}

// Key returns a value suitable as a map key; equal DNs share the same key.
func (d DN) Key() string {
	return d.key
}

// Equal reports whether d and o have the same normalized component sequence.
func (d DN) Equal(o DN) bool {
	return d.key == o.key
}

// Append returns a new DN made of d's components followed by suffix's.
// This is how a relative name is resolved against its base.
func (d DN) Append(suffix DN) DN {
	rdns := make([]RDN, 0, len(d.rdns)+len(suffix.rdns))
	rdns = append(rdns, d.rdns...)
	rdns = append(rdns, suffix.rdns...)
	return newDN(rdns)
}

// Prepend returns a new DN with rdns placed in front of d's components.
func (d DN) Prepend(rdns ...RDN) DN {
	out := make([]RDN, 0, len(rdns)+len(d.rdns))
	out = append(out, rdns...)
	out = append(out, d.rdns...)
	return newDN(out)
}

// Child returns the DN of the single-valued child attrType=value under d.
func (d DN) Child(attrType, value string) DN {
	return d.Prepend(NewRDN(attrType, value))
}

// Parent returns d without its leaf component. The parent of the root is the root.
func (d DN) Parent() DN {
	if len(d.rdns) <= 1 {
		return DN{}
	}
	return newDN(slices.Clone(d.rdns[1:]))
}

// IsDescendantOf reports whether d lies strictly below ancestor. Values are
// compared case-insensitively, as directory naming attributes are.
func (d DN) IsDescendantOf(ancestor DN) bool {
	_, ok := d.RelativeTo(ancestor)
	return ok && len(d.rdns) > len(ancestor.rdns)
}

// RelativeTo strips base from the end of d. It reports false when base is not
// a suffix of d.
func (d DN) RelativeTo(base DN) (DN, bool) {
	if len(base.rdns) > len(d.rdns) {
		return DN{}, false
	}
	offset := len(d.rdns) - len(base.rdns)
	for i, rdn := range base.rdns {
		if !d.rdns[offset+i].equalFold(rdn) {
			return DN{}, false
		}
	}
	return newDN(slices.Clone(d.rdns[:offset])), true
}

// EscapeDNValue escapes a DN attribute value according to RFC 4514: the
// characters , + " \ < > ; always, a leading # or space, a trailing space,
// and NUL as \00.
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	last := len(value) - 1
	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '#':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case ' ':
			if i == 0 || i == last {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case 0:
			b.WriteString("\\00")
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}
