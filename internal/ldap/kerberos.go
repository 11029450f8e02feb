package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// performKerberosAuth binds conn with GSSAPI.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, serverInfo *ServerInfo) error {
	principal, realm, err := kerberosPrincipal(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, source, err := createGSSAPIClient(cfg, principal, realm)
	if err != nil {
		LogKerberosEvent(ctx, "authentication_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	LogKerberosEvent(ctx, "ticket_acquired", map[string]any{
		"principal":   principal,
		"realm":       realm,
		"spn":         spn,
		"credentials": source,
	})

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		LogKerberosEvent(ctx, "authentication_failed", map[string]any{"spn": spn, "error": err.Error()})
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}
	return nil
}

// kerberosPrincipal splits "user@REALM" when no realm is configured.
func kerberosPrincipal(cfg *ConnectionConfig) (principal, realm string, err error) {
	principal, realm = cfg.Username, cfg.KerberosRealm
	if realm == "" {
		if user, r, ok := strings.Cut(principal, "@"); ok {
			principal, realm = user, r
		}
	}

	if realm == "" {
		return "", "", fmt.Errorf("kerberos realm is required (set kerberos_realm or include realm in username)")
	}
	if principal == "" && cfg.KerberosCCache == "" {
		return "", "", fmt.Errorf("username (principal) is required for Kerberos authentication")
	}
	return principal, realm, nil
}

// createGSSAPIClient picks credentials in order: credential cache, keytab, password.
func createGSSAPIClient(cfg *ConnectionConfig, principal, realm string) (ldap.GSSAPIClient, string, error) {
	krb5conf := cfg.KerberosConfig
	if krb5conf == "" {
		krb5conf = defaultKrb5Conf
	}
	if !fileExists(krb5conf) {
		return nil, "", fmt.Errorf("kerberos configuration file not found at %s", krb5conf)
	}

	disableFAST := krb5client.DisablePAFXFAST(true)

	if ccache := firstExisting(cfg.KerberosCCache, defaultCCachePath()); ccache != "" {
		c, err := gssapi.NewClientFromCCache(ccache, krb5conf, disableFAST)
		return c, "ccache", err
	}

	if principal != "" {
		if keytab := firstExisting(cfg.KerberosKeytab, defaultKeytabPath()); keytab != "" {
			c, err := gssapi.NewClientWithKeytab(principal, realm, keytab, krb5conf, disableFAST)
			return c, "keytab", err
		}
	}

	if principal != "" && cfg.Password != "" {
		c, err := gssapi.NewClientWithPassword(principal, realm, cfg.Password, krb5conf, disableFAST)
		return c, "password", err
	}

	return nil, "", fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal returns cfg.KerberosSPN, or ldap/<host>.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}
	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}
	if serverInfo == nil || serverInfo.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}
	return "ldap/" + serverInfo.Host, nil
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func defaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

// firstExisting returns the first readable path.
func firstExisting(paths ...string) string {
	for _, p := range paths {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
