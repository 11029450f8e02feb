package ldap

import (
	"fmt"
	"strings"
)

// ContextMapper converts the bound data of one child into a value of type T.
// Mappers are owned by the caller and may be shared between calls.
type ContextMapper[T any] interface {
	MapFromContext(rec *ChildRecord) (T, error)
}

// ContextMapperFunc adapts a function to ContextMapper.
type ContextMapperFunc[T any] func(rec *ChildRecord) (T, error)

func (f ContextMapperFunc[T]) MapFromContext(rec *ChildRecord) (T, error) {
	return f(rec)
}

// binaryAttributes are rendered through a decoder instead of as raw bytes.
var binaryAttributes = map[string]func([]byte) (string, error){
	"objectguid": decodeObjectGUID,
	"objectsid":  decodeObjectSID,
}

// AttributesMapper returns a mapper that yields every attribute of the
// entry. Active Directory objectGUID and objectSid values are rendered in
// their string forms.
func AttributesMapper() ContextMapper[map[string][]string] {
	return ContextMapperFunc[map[string][]string](mapAttributes)
}

func mapAttributes(rec *ChildRecord) (map[string][]string, error) {
	entry := rec.Entry()
	if entry == nil {
		return nil, fmt.Errorf("record %q carries no attribute data", rec.Name)
	}

	attrs := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		decode, ok := binaryAttributes[strings.ToLower(attr.Name)]
		if !ok {
			attrs[attr.Name] = append(attrs[attr.Name], attr.Values...)
			continue
		}

		for _, raw := range attr.ByteValues {
			value, err := decode(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s of %s: %w", attr.Name, rec.DN, err)
			}
			attrs[attr.Name] = append(attrs[attr.Name], value)
		}
	}
	return attrs, nil
}
