package ldap

import (
	"fmt"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// ChildRecord is one child produced by an enumeration step.
//
// Records are created by the cursor and handed to a handler synchronously;
// handlers that keep data beyond the call must copy what they need.
type ChildRecord struct {
	// Name is the child's name relative to the enumerated node, e.g. "ou=groups".
	Name string

	// DN is the child's name relative to the client's root context.
	DN DN

	// ClassName is the most specific objectClass of the child.
	ClassName string

	entry *ldap.Entry
}

// IsBound reports whether the record carries the child's attribute data.
func (r *ChildRecord) IsBound() bool {
	return r.entry != nil
}

// Entry returns the raw directory entry, or nil for name-class records.
func (r *ChildRecord) Entry() *ldap.Entry {
	return r.entry
}

// Binding renders the record as "<relative name>: <class name>".
func (r *ChildRecord) Binding() string {
	if r.ClassName == "" {
		return r.Name
	}
	return fmt.Sprintf("%s: %s", r.Name, r.ClassName)
}

// StringAttribute returns the first value of attr, or "" when absent.
func (r *ChildRecord) StringAttribute(attr string) string {
	if r.entry == nil {
		return ""
	}
	return r.entry.GetEqualFoldAttributeValue(attr)
}

// StringAttributes returns every value of attr.
func (r *ChildRecord) StringAttributes(attr string) []string {
	if r.entry == nil {
		return nil
	}
	return r.entry.GetEqualFoldAttributeValues(attr)
}

// AttributeNames lists the attributes present on the entry, in server order.
func (r *ChildRecord) AttributeNames() []string {
	if r.entry == nil {
		return nil
	}
	names := make([]string, 0, len(r.entry.Attributes))
	for _, attr := range r.entry.Attributes {
		names = append(names, attr.Name)
	}
	return names
}

// Attributes returns the entry's values keyed by attribute name.
func (r *ChildRecord) Attributes() map[string][]string {
	if r.entry == nil {
		return nil
	}
	attrs := make(map[string][]string, len(r.entry.Attributes))
	for _, attr := range r.entry.Attributes {
		attrs[attr.Name] = append(attrs[attr.Name], attr.Values...)
	}
	return attrs
}

// ObjectGUID renders the Active Directory objectGUID attribute in its
// canonical string form.
func (r *ChildRecord) ObjectGUID() (string, error) {
	if r.entry == nil {
		return "", fmt.Errorf("record %q carries no attribute data", r.Name)
	}
	raw := r.entry.GetRawAttributeValue("objectGUID")
	if len(raw) == 0 {
		return "", fmt.Errorf("objectGUID attribute not found on %q", r.Name)
	}
	return decodeObjectGUID(raw)
}

// ObjectSID renders the Active Directory objectSid attribute as S-1-5-...
func (r *ChildRecord) ObjectSID() (string, error) {
	if r.entry == nil {
		return "", fmt.Errorf("record %q carries no attribute data", r.Name)
	}
	raw := r.entry.GetRawAttributeValue("objectSid")
	if len(raw) == 0 {
		return "", fmt.Errorf("objectSid attribute not found on %q", r.Name)
	}
	return decodeObjectSID(raw)
}

// decodeObjectGUID converts AD's mixed-endian GUID bytes to a standard UUID string.
// Data1, Data2 and Data3 are little-endian on the wire; Data4 is kept as is.
func decodeObjectGUID(raw []byte) (string, error) {
	if len(raw) != 16 {
		return "", fmt.Errorf("invalid GUID byte length: expected 16, got %d", len(raw))
	}

	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = raw[3], raw[2], raw[1], raw[0]
	b[4], b[5] = raw[5], raw[4]
	b[6], b[7] = raw[7], raw[6]
	copy(b[8:], raw[8:])

	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", fmt.Errorf("invalid GUID: %w", err)
	}
	return id.String(), nil
}

// decodeObjectSID converts a binary SID to its string form.
func decodeObjectSID(raw []byte) (string, error) {
	// revision, sub-authority count and 6-byte identifier authority
	if len(raw) < 8 {
		return "", fmt.Errorf("invalid SID byte length: %d", len(raw))
	}
	if want := 8 + 4*int(raw[1]); len(raw) != want {
		return "", fmt.Errorf("invalid SID byte length: expected %d, got %d", want, len(raw))
	}
	return objectsid.Decode(raw).String(), nil
}

// newChildRecord builds a record for entry, found one level below base.
func newChildRecord(entry *ldap.Entry, root DN, bound bool) (*ChildRecord, error) {
	absolute, err := ParseDN(entry.DN)
	if err != nil {
		return nil, err
	}
	if absolute.IsEmpty() {
		return nil, &Error{Op: "enumerate", Kind: KindOperationFailed, Message: "server returned an entry without a DN"}
	}

	relative, ok := absolute.RelativeTo(root)
	if !ok {
		relative = absolute
	}

	rec := &ChildRecord{
		Name: absolute.RDN(0).String(),
		DN:   relative,
	}
	if classes := entry.GetEqualFoldAttributeValues("objectClass"); len(classes) > 0 {
		rec.ClassName = classes[len(classes)-1]
	}
	if bound {
		rec.entry = entry
	}
	return rec, nil
}
