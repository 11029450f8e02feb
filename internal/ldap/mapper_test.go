package ldap

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesMapper(t *testing.T) {
	entry := ldap.NewEntry("cn=svc,ou=users,dc=example,dc=com", map[string][]string{
		"objectClass": {"top", "user"},
		"cn":          {"svc"},
		"objectGUID":  {string(adGUIDBytes)},
		"objectSid":   {string(adSIDBytes)},
	})
	rec, err := newChildRecord(entry, MustParseDN("dc=example,dc=com"), true)
	require.NoError(t, err)

	attrs, err := AttributesMapper().MapFromContext(rec)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"objectClass": {"top", "user"},
		"cn":          {"svc"},
		"objectGUID":  {"6f9619ff-8b86-d011-b42d-00c04fc964ff"},
		"objectSid":   {"S-1-5-21-1004336348-1177238915-682003330-512"},
	}, attrs)
}

func TestAttributesMapper_BadBinaryValue(t *testing.T) {
	entry := ldap.NewEntry("cn=svc,dc=example,dc=com", map[string][]string{
		"objectGUID": {"short"},
	})
	rec, err := newChildRecord(entry, DN{}, true)
	require.NoError(t, err)

	_, err = AttributesMapper().MapFromContext(rec)
	assert.ErrorContains(t, err, "failed to decode objectGUID")
}

func TestAttributesMapper_UnboundRecord(t *testing.T) {
	rec, err := newChildRecord(ldap.NewEntry("cn=svc,dc=example,dc=com", nil), DN{}, false)
	require.NoError(t, err)

	_, err = AttributesMapper().MapFromContext(rec)
	assert.ErrorContains(t, err, "carries no attribute data")
}
