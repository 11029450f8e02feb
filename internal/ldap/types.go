package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for the pooled directory connection.
type ConnectionConfig struct {
	// Connection settings
	Domain   string        `validate:"omitempty,hostname_rfc1123"` // Domain for SRV discovery
	LDAPURLs []string      `validate:"dive,startswith=ldap"`       // Direct LDAP URLs (overrides domain)
	BaseDN   string        // Root context; every listed name is relative to it
	Timeout  time.Duration `default:"30s" validate:"gt=0"` // Connection timeout

	// Authentication settings
	Username       string // Bind DN, UPN or Kerberos principal
	Password       string // Password for simple bind authentication
	KerberosRealm  string // Kerberos realm for GSSAPI authentication
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosConfig string // Path to Kerberos config file (krb5.conf)
	KerberosCCache string // Path to Kerberos credential cache
	KerberosSPN    string // Override for the LDAP service principal name

	// TLS settings
	TLSConfig *tls.Config `validate:"-"` // Custom TLS configuration
	UseTLS    bool        `default:"true"` // Upgrade plain connections with StartTLS
	SkipTLS   bool        // Skip TLS entirely (not recommended)

	// Pool settings
	MaxConnections int           `default:"10" validate:"gt=0,lte=100"`
	MaxIdleTime    time.Duration `default:"5m" validate:"gt=0"`

	// Dial retry settings
	MaxRetries     int           `default:"3" validate:"gte=0"`
	InitialBackoff time.Duration `default:"500ms"`
	MaxBackoff     time.Duration `default:"30s"`
	BackoffFactor  float64       `default:"2.0" validate:"gt=1"`

	// Enumeration settings
	SearchBuffer int `default:"64" validate:"gte=0"` // Buffered results per open cursor
	SizeLimit    int `validate:"gte=0"`              // Server-side size limit, 0 for none
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config", "fallback"
}

// DirContext is a ready-to-use directory connection rooted at the server.
// Close releases it back to whoever handed it out.
type DirContext interface {
	SearchAsync(ctx context.Context, req *ldap.SearchRequest, bufferSize int) ldap.Response
	Close() error
}

// ContextSource hands out authenticated directory contexts.
type ContextSource interface {
	Get(ctx context.Context) (DirContext, error)
}

// PoolStats provides statistics about the connection pool.
type PoolStats struct {
	Total   int           // Total pooled connections
	Active  int64         // Active (in-use) connections
	Idle    int           // Idle connections
	Created int64         // Total connections created
	Errors  int64         // Total connection errors
	Uptime  time.Duration // Pool uptime
}

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota // Username/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodExternal                     // External/certificate authentication
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodExternal:
		return "external"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	// Kerberos authentication takes precedence
	if c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.Username != "") {
		return AuthMethodKerberos
	}

	if c.Username == "" && c.TLSConfig != nil && len(c.TLSConfig.Certificates) > 0 {
		return AuthMethodExternal
	}

	return AuthMethodSimpleBind
}

// HasAuthentication checks if any authentication method is configured.
func (c *ConnectionConfig) HasAuthentication() bool {
	hasPassword := c.Username != "" && c.Password != ""
	hasKerberos := c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.Username != "")
	hasExternal := c.TLSConfig != nil && len(c.TLSConfig.Certificates) > 0

	return hasPassword || hasKerberos || hasExternal
}
