package provider

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
	"github.com/isometry/terraform-provider-ldapdir/internal/provider/validators"
)

// Ensure LDAPDirectoryProvider satisfies various provider interfaces.
var _ provider.Provider = &LDAPDirectoryProvider{}
var _ provider.ProviderWithFunctions = &LDAPDirectoryProvider{}
var _ provider.ProviderWithConfigValidators = &LDAPDirectoryProvider{}

// LDAPDirectoryProvider defines the provider implementation.
type LDAPDirectoryProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string
}

// LDAPDirectoryProviderModel describes the provider data model.
type LDAPDirectoryProviderModel struct {
	// Connection settings - mutually exclusive
	Domain  types.String `tfsdk:"domain"`
	LdapURL types.String `tfsdk:"ldap_url"`
	BaseDN  types.String `tfsdk:"base_dn"`

	// Authentication settings
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	// Kerberos settings (optional)
	KerberosRealm  types.String `tfsdk:"kerberos_realm"`
	KerberosKeytab types.String `tfsdk:"kerberos_keytab"`
	KerberosConfig types.String `tfsdk:"kerberos_config"`
	KerberosCCache types.String `tfsdk:"kerberos_ccache"`
	KerberosSPN    types.String `tfsdk:"kerberos_spn"`

	// TLS settings
	UseTLS            types.Bool   `tfsdk:"use_tls"`
	SkipTLSVerify     types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile     types.String `tfsdk:"tls_ca_cert_file"`
	TLSCACert         types.String `tfsdk:"tls_ca_cert"`
	TLSClientCertFile types.String `tfsdk:"tls_client_cert_file"`
	TLSClientKeyFile  types.String `tfsdk:"tls_client_key_file"`

	// Connection pool settings
	MaxConnections types.Int64 `tfsdk:"max_connections"`
	MaxIdleTime    types.Int64 `tfsdk:"max_idle_time"`
	ConnectTimeout types.Int64 `tfsdk:"connect_timeout"`

	// Retry settings
	MaxRetries     types.Int64 `tfsdk:"max_retries"`
	InitialBackoff types.Int64 `tfsdk:"initial_backoff"`
	MaxBackoff     types.Int64 `tfsdk:"max_backoff"`

	// Listing settings
	SizeLimit types.Int64 `tfsdk:"size_limit"`
}

func (p *LDAPDirectoryProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "ldapdir"
	resp.Version = p.version
}

func (p *LDAPDirectoryProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The LDAP directory provider reads the structure of an LDAP directory. " +
			"It lists the immediate children of directory nodes over pooled, authenticated connections.",
		Attributes: map[string]schema.Attribute{
			// Connection settings - mutually exclusive
			"domain": schema.StringAttribute{
				MarkdownDescription: "Domain name for SRV-based server discovery (e.g., `example.com`). " +
					"Mutually exclusive with `ldap_url`. Can be set via the `LDAPDIR_DOMAIN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"ldap_url": schema.StringAttribute{
				MarkdownDescription: "Direct LDAP/LDAPS URL (e.g., `ldaps://ldap.example.com:636`). " +
					"Mutually exclusive with `domain`. Can be set via the `LDAPDIR_LDAP_URL` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Root context of the provider (e.g., `dc=example,dc=com`). " +
					"Every `base` given to a data source is relative to it. " +
					"Can be set via the `LDAPDIR_BASE_DN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},

			// Authentication settings
			"username": schema.StringAttribute{
				MarkdownDescription: "Bind DN, UPN or Kerberos principal. " +
					"Can be set via the `LDAPDIR_USERNAME` environment variable.",
				Optional: true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for LDAP authentication. " +
					"Can be set via the `LDAPDIR_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// Kerberos settings
			"kerberos_realm": schema.StringAttribute{
				MarkdownDescription: "Kerberos realm for GSSAPI authentication (e.g., `EXAMPLE.COM`). " +
					"Can be set via the `LDAPDIR_KERBEROS_REALM` environment variable.",
				Optional: true,
			},
			"kerberos_keytab": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos keytab file for authentication. " +
					"Can be set via the `LDAPDIR_KERBEROS_KEYTAB` environment variable.",
				Optional: true,
			},
			"kerberos_config": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos configuration file. Defaults to `/etc/krb5.conf`. " +
					"Can be set via the `LDAPDIR_KERBEROS_CONFIG` environment variable.",
				Optional: true,
			},
			"kerberos_ccache": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos credential cache file. " +
					"When specified, existing Kerberos tickets will be used for authentication. " +
					"Can be set via the `LDAPDIR_KERBEROS_CCACHE` environment variable.",
				Optional: true,
			},
			"kerberos_spn": schema.StringAttribute{
				MarkdownDescription: "Override Service Principal Name (SPN) for Kerberos authentication. " +
					"Use when connecting by IP address where the SPN doesn't match the host. " +
					"Format: `ldap/<hostname>`. " +
					"Can be set via the `LDAPDIR_KERBEROS_SPN` environment variable.",
				Optional: true,
			},

			// TLS settings
			"use_tls": schema.BoolAttribute{
				MarkdownDescription: "Upgrade plain `ldap://` connections with StartTLS. Defaults to `true`. " +
					"Can be set via the `LDAPDIR_USE_TLS` environment variable.",
				Optional: true,
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: "Skip TLS certificate verification. Not recommended for production. Defaults to `false`. " +
					"Can be set via the `LDAPDIR_SKIP_TLS_VERIFY` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to custom CA certificate file for TLS verification. " +
					"Can be set via the `LDAPDIR_TLS_CA_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_ca_cert": schema.StringAttribute{
				MarkdownDescription: "Custom CA certificate content (PEM) for TLS verification. " +
					"Can be set via the `LDAPDIR_TLS_CA_CERT` environment variable.",
				Optional:  true,
				Sensitive: true,
			},
			"tls_client_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to client certificate file for mutual TLS authentication. " +
					"Can be set via the `LDAPDIR_TLS_CLIENT_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_client_key_file": schema.StringAttribute{
				MarkdownDescription: "Path to client private key file for mutual TLS authentication. " +
					"Can be set via the `LDAPDIR_TLS_CLIENT_KEY_FILE` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// Connection pool settings
			"max_connections": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of connections in the connection pool. Defaults to `10`. " +
					"Can be set via the `LDAPDIR_MAX_CONNECTIONS` environment variable.",
				Optional: true,
			},
			"max_idle_time": schema.Int64Attribute{
				MarkdownDescription: "Maximum idle time for connections in seconds. Defaults to `300` (5 minutes). " +
					"Can be set via the `LDAPDIR_MAX_IDLE_TIME` environment variable.",
				Optional: true,
			},
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: "Connection timeout in seconds. Defaults to `30`. " +
					"Can be set via the `LDAPDIR_CONNECT_TIMEOUT` environment variable.",
				Optional: true,
			},

			// Retry settings
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of dial attempts per server. Defaults to `3`. " +
					"Can be set via the `LDAPDIR_MAX_RETRIES` environment variable.",
				Optional: true,
			},
			"initial_backoff": schema.Int64Attribute{
				MarkdownDescription: "Initial backoff delay in milliseconds between dial attempts. Defaults to `500`. " +
					"Can be set via the `LDAPDIR_INITIAL_BACKOFF` environment variable.",
				Optional: true,
			},
			"max_backoff": schema.Int64Attribute{
				MarkdownDescription: "Maximum backoff delay in seconds between dial attempts. Defaults to `30`. " +
					"Can be set via the `LDAPDIR_MAX_BACKOFF` environment variable.",
				Optional: true,
			},

			// Listing settings
			"size_limit": schema.Int64Attribute{
				MarkdownDescription: "Server-side limit on the number of children returned by one listing. " +
					"`0` means no limit. Can be set via the `LDAPDIR_SIZE_LIMIT` environment variable.",
				Optional: true,
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *LDAPDirectoryProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		// Domain and ldap_url are mutually exclusive
		providervalidator.Conflicting(
			path.MatchRoot("domain"),
			path.MatchRoot("ldap_url"),
		),
		// TLS cert file and cert content are mutually exclusive
		providervalidator.Conflicting(
			path.MatchRoot("tls_ca_cert_file"),
			path.MatchRoot("tls_ca_cert"),
		),
		providervalidator.RequiredTogether(
			path.MatchRoot("tls_client_cert_file"),
			path.MatchRoot("tls_client_key_file"),
		),
	}
}

func (p *LDAPDirectoryProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data LDAPDirectoryProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Configure logging subsystems and set up provider context
	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring LDAP directory provider", map[string]any{
		"version": p.version,
	})

	config := p.buildLDAPConfig(&data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Built LDAP connection configuration", ldapclient.ConfigLogFields(config))

	if err := ldapclient.ValidateConfig(config); err != nil {
		resp.Diagnostics.AddError(
			"Invalid Provider Configuration",
			"The LDAP connection settings are not valid.\n\n"+
				"Validation Error: "+err.Error(),
		)
		return
	}

	start := time.Now()
	client, err := ldapclient.NewClient(ctx, config)
	if err != nil {
		tflog.Error(ctx, "Failed to create LDAP client", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Create LDAP Client",
			"An unexpected error occurred when creating the LDAP client. "+
				"If the error is not clear, please contact the provider developers.\n\n"+
				"LDAP Client Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "LDAP directory provider configured successfully", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"root_dn":     client.Root().String(),
	})

	// Make the client available to data sources
	resp.DataSourceData = client
}

// configureLogging sets up logging configuration based on environment variables.
func (p *LDAPDirectoryProvider) configureLogging(ctx context.Context) context.Context {
	ctx = initializeLogging(ctx)

	// Add persistent fields for all logs
	ctx = tflog.SetField(ctx, "provider", "ldapdir")
	ctx = tflog.SetField(ctx, "provider_version", p.version)
	ctx = tflog.MaskFieldValuesWithFieldKeys(ctx, "password")

	tflog.Debug(ctx, "LDAP directory provider logging configured")

	return ctx
}

// buildLDAPConfig constructs the LDAP client configuration from provider config and environment variables.
func (p *LDAPDirectoryProvider) buildLDAPConfig(data *LDAPDirectoryProviderModel, diags *diag.Diagnostics) *ldapclient.ConnectionConfig {
	config := ldapclient.DefaultConfig()

	// Connection settings
	config.Domain = p.getStringValue(data.Domain, "LDAPDIR_DOMAIN")

	if ldapURL := p.getStringValue(data.LdapURL, "LDAPDIR_LDAP_URL"); ldapURL != "" {
		config.LDAPURLs = []string{ldapURL}
	}

	if config.Domain == "" && len(config.LDAPURLs) == 0 {
		diags.AddError(
			"Missing Connection Configuration",
			"Either 'domain' or 'ldap_url' must be configured, "+
				"or the LDAPDIR_DOMAIN or LDAPDIR_LDAP_URL environment variable set.",
		)
		return config
	}

	config.BaseDN = p.getStringValue(data.BaseDN, "LDAPDIR_BASE_DN")

	// Authentication settings; an anonymous bind is used when none are given
	config.Username = p.getStringValue(data.Username, "LDAPDIR_USERNAME")
	config.Password = p.getStringValue(data.Password, "LDAPDIR_PASSWORD")
	config.KerberosRealm = p.getStringValue(data.KerberosRealm, "LDAPDIR_KERBEROS_REALM")
	config.KerberosKeytab = p.getStringValue(data.KerberosKeytab, "LDAPDIR_KERBEROS_KEYTAB")
	config.KerberosConfig = p.getStringValue(data.KerberosConfig, "LDAPDIR_KERBEROS_CONFIG")
	config.KerberosCCache = p.getStringValue(data.KerberosCCache, "LDAPDIR_KERBEROS_CCACHE")
	config.KerberosSPN = p.getStringValue(data.KerberosSPN, "LDAPDIR_KERBEROS_SPN")

	if config.Username != "" && config.Password == "" && config.KerberosRealm == "" {
		diags.AddError(
			"Incomplete Authentication Configuration",
			"A username was given without a password or Kerberos realm. "+
				"For simple bind: provide 'password' or set LDAPDIR_PASSWORD. "+
				"For Kerberos: provide 'kerberos_realm' and a keytab, credential cache or password.",
		)
		return config
	}

	// TLS settings
	config.UseTLS = p.getBoolValue(data.UseTLS, "LDAPDIR_USE_TLS", true)

	tlsConfig, err := buildTLSConfig(
		p.getBoolValue(data.SkipTLSVerify, "LDAPDIR_SKIP_TLS_VERIFY", false),
		p.getStringValue(data.TLSCACertFile, "LDAPDIR_TLS_CA_CERT_FILE"),
		p.getStringValue(data.TLSCACert, "LDAPDIR_TLS_CA_CERT"),
		p.getStringValue(data.TLSClientCertFile, "LDAPDIR_TLS_CLIENT_CERT_FILE"),
		p.getStringValue(data.TLSClientKeyFile, "LDAPDIR_TLS_CLIENT_KEY_FILE"),
	)
	if err != nil {
		diags.AddError("Invalid TLS Configuration", err.Error())
		return config
	}
	tlsConfig.MinVersion = config.TLSConfig.MinVersion
	config.TLSConfig = tlsConfig

	// Connection pool settings
	if maxConnections := p.getInt64Value(data.MaxConnections, "LDAPDIR_MAX_CONNECTIONS", 10); maxConnections > 0 {
		config.MaxConnections = int(maxConnections)
	}

	if maxIdleTime := p.getInt64Value(data.MaxIdleTime, "LDAPDIR_MAX_IDLE_TIME", 300); maxIdleTime > 0 {
		config.MaxIdleTime = time.Duration(maxIdleTime) * time.Second
	}

	if connectTimeout := p.getInt64Value(data.ConnectTimeout, "LDAPDIR_CONNECT_TIMEOUT", 30); connectTimeout > 0 {
		config.Timeout = time.Duration(connectTimeout) * time.Second
	}

	// Retry settings
	if maxRetries := p.getInt64Value(data.MaxRetries, "LDAPDIR_MAX_RETRIES", 3); maxRetries >= 0 {
		config.MaxRetries = int(maxRetries)
	}

	if initialBackoff := p.getInt64Value(data.InitialBackoff, "LDAPDIR_INITIAL_BACKOFF", 500); initialBackoff > 0 {
		config.InitialBackoff = time.Duration(initialBackoff) * time.Millisecond
	}

	if maxBackoff := p.getInt64Value(data.MaxBackoff, "LDAPDIR_MAX_BACKOFF", 30); maxBackoff > 0 {
		config.MaxBackoff = time.Duration(maxBackoff) * time.Second
	}

	if sizeLimit := p.getInt64Value(data.SizeLimit, "LDAPDIR_SIZE_LIMIT", 0); sizeLimit >= 0 {
		config.SizeLimit = int(sizeLimit)
	}

	return config
}

// buildTLSConfig assembles the client TLS settings. CA material is added to
// a pool of its own; the system roots are used when none is given.
func buildTLSConfig(skipVerify bool, caFile, caPEM, certFile, keyFile string) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: skipVerify} //nolint:gosec // opt-in via skip_tls_verify

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		caPEM = string(pem)
	}
	if caPEM != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return nil, fmt.Errorf("no valid PEM certificates found in CA certificate")
		}
		cfg.RootCAs = pool
	}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// Helper functions for configuration value resolution

func (p *LDAPDirectoryProvider) getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func (p *LDAPDirectoryProvider) getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *LDAPDirectoryProvider) getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *LDAPDirectoryProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{}
}

func (p *LDAPDirectoryProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewChildrenDataSource,
		NewEntriesDataSource,
	}
}

func (p *LDAPDirectoryProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewNormalizeDNFunction,
		NewDNEqualFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &LDAPDirectoryProvider{
			version: version,
		}
	}
}
