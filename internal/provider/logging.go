package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// initializeLogging initializes the provider subsystem for consistent logging.
// This should be called at the beginning of each data source Read method.
func initializeLogging(ctx context.Context) context.Context {
	// Pattern: TF_LOG_PROVIDER_LDAPDIR_<SUBSYSTEM>
	ctx = tflog.NewSubsystem(ctx, "provider",
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_LDAPDIR_PROVIDER"))
	ctx = tflog.NewSubsystem(ctx, "ldap",
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_LDAPDIR_LDAP"))
	ctx = tflog.NewSubsystem(ctx, "pool",
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_LDAPDIR_POOL"))
	return ctx
}
