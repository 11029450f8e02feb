package ldap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFields(t *testing.T) {
	fields := map[string]any{
		"Password":  "hunter2",
		"base_dn":   "ou=Sweden,dc=jayway,dc=se",
		"bind_args": "user=admin password=hunter2",
		"entries":   3,
	}

	got := SanitizeFields(fields)

	assert.Equal(t, "[REDACTED]", got["Password"])
	assert.Equal(t, "[REDACTED]", got["bind_args"])
	assert.Equal(t, "ou=Sweden,dc=jayway,dc=se", got["base_dn"])
	assert.Equal(t, 3, got["entries"])
	assert.Equal(t, "hunter2", fields["Password"], "input is not modified")
}

func TestConfigLogFields(t *testing.T) {
	config := DefaultConfig()
	config.LDAPURLs = []string{"ldaps://dc1.example.com:636"}
	config.BaseDN = "dc=example,dc=com"
	config.Username = "cn=reader,dc=example,dc=com"
	config.Password = "hunter2"

	got := ConfigLogFields(config)

	assert.Equal(t, "[REDACTED]", got["password"])
	assert.Equal(t, true, got["password_set"])
	assert.Equal(t, "cn=reader,dc=example,dc=com", got["username"])
	assert.Equal(t, "dc=example,dc=com", got["base_dn"])
	assert.Equal(t, 1, got["ldap_urls_count"])
	assert.Equal(t, "simple", got["auth_method"])
	for _, v := range got {
		assert.NotEqual(t, "hunter2", v)
	}

	config.Password = ""
	got = ConfigLogFields(config)
	assert.Equal(t, false, got["password_set"])
}

func TestLogListOperation(t *testing.T) {
	ctx := context.Background()
	done := logListOperation(ctx, "list", MustParseDN("ou=Sweden,dc=jayway,dc=se"), false)

	assert.NotPanics(t, func() { done(2, nil) })
	assert.NotPanics(t, func() {
		done(0, newError("list", KindNotFound, DN{}, "missing", nil))
	})
	assert.NotPanics(t, func() { done(0, errors.New("plain")) })
}
