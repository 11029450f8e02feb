package ldap

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// logListOperation logs the start of an enumeration and returns a function
// that logs its outcome.
func logListOperation(ctx context.Context, operation string, base DN, bindings bool) func(handled int, err error) {
	start := time.Now()
	fields := map[string]any{
		"operation": operation,
		"base_dn":   base.String(),
		"bindings":  bindings,
	}

	tflog.SubsystemDebug(ctx, "ldap", "Starting directory enumeration", fields)

	return func(handled int, err error) {
		exitFields := make(map[string]any, len(fields)+3)
		maps.Copy(exitFields, fields)
		exitFields["duration_ms"] = time.Since(start).Milliseconds()
		exitFields["entries"] = handled

		if err != nil {
			exitFields["error"] = err.Error()
			exitFields["error_kind"] = string(GetErrorKind(err))
			tflog.SubsystemError(ctx, "ldap", "Directory enumeration failed", exitFields)
			return
		}
		tflog.SubsystemDebug(ctx, "ldap", "Directory enumeration completed", exitFields)
	}
}

// logCloseFailure records a release failure that was not returned to the caller.
func logCloseFailure(ctx context.Context, base DN, err error) {
	tflog.SubsystemWarn(ctx, "ldap", "Failed to release directory context after earlier error", map[string]any{
		"base_dn": base.String(),
		"error":   err.Error(),
	})
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["error"] = err.Error()

	// Add LDAP-specific error information if available
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		fields["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			fields["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", fields)
}

// LogKerberosEvent logs Kerberos-specific events.
func LogKerberosEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "ticket_acquired", "keytab_loaded":
		tflog.SubsystemInfo(ctx, "ldap", "Kerberos event", fields)
	case "authentication_failed":
		tflog.SubsystemError(ctx, "ldap", "Kerberos event", fields)
	default:
		tflog.SubsystemDebug(ctx, "ldap", "Kerberos event", fields)
	}
}

// LogPoolEvent logs connection pool events.
func LogPoolEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "pool_initialized", "connection_acquired", "connection_released":
		tflog.SubsystemDebug(ctx, "pool", "Pool event", fields)
	case "pool_exhausted", "connection_failed", "connection_lost":
		tflog.SubsystemWarn(ctx, "pool", "Pool event", fields)
	case "pool_creation_failed", "all_connections_failed":
		tflog.SubsystemError(ctx, "pool", "Pool event", fields)
	default:
		tflog.SubsystemTrace(ctx, "pool", "Pool event", fields)
	}
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":    true,
		"passwd":      true,
		"secret":      true,
		"token":       true,
		"key":         true,
		"private_key": true,
		"credential":  true,
		"credentials": true,
	}

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// ConfigLogFields describes config for logging with credentials redacted.
func ConfigLogFields(config *ConnectionConfig) map[string]any {
	return SanitizeFields(map[string]any{
		"domain":          config.Domain,
		"ldap_urls_count": len(config.LDAPURLs),
		"base_dn":         config.BaseDN,
		"auth_method":     config.GetAuthMethod().String(),
		"username":        config.Username,
		"password":        config.Password,
		"password_set":    config.Password != "",
		"kerberos_realm":  config.KerberosRealm,
		"use_tls":         config.UseTLS,
		"max_connections": config.MaxConnections,
	})
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range []string{"password=", "passwd=", "secret=", "token=", "key="} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// LogDataSourceOperation provides standardized entry/exit logging for Terraform data source operations.
func LogDataSourceOperation(ctx context.Context, dataSource, operation string, fields map[string]any) func(error) {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}

	entryFields := make(map[string]any)
	maps.Copy(entryFields, fields)
	entryFields["data_source"] = dataSource
	entryFields["operation"] = operation

	tflog.SubsystemDebug(ctx, "provider", "Starting data source operation", entryFields)

	return func(err error) {
		exitFields := make(map[string]any)
		maps.Copy(exitFields, fields)
		exitFields["data_source"] = dataSource
		exitFields["operation"] = operation
		exitFields["duration_ms"] = time.Since(start).Milliseconds()
		exitFields["has_error"] = err != nil

		if err != nil {
			exitFields["error"] = err.Error()
			tflog.SubsystemError(ctx, "provider", "Data source operation failed", exitFields)
		} else {
			tflog.SubsystemDebug(ctx, "provider", "Data source operation completed", exitFields)
		}
	}
}
