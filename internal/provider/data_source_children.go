package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
	"github.com/isometry/terraform-provider-ldapdir/internal/provider/helpers"
	customtypes "github.com/isometry/terraform-provider-ldapdir/internal/provider/types"
	"github.com/isometry/terraform-provider-ldapdir/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &ChildrenDataSource{}
var _ datasource.DataSourceWithConfigure = &ChildrenDataSource{}

func NewChildrenDataSource() datasource.DataSource {
	return &ChildrenDataSource{}
}

// ChildrenDataSource lists the immediate children of a directory node.
type ChildrenDataSource struct {
	client *ldapclient.DirectoryClient
}

// ChildrenDataSourceModel describes the data source data model.
type ChildrenDataSourceModel struct {
	Base     customtypes.DNStringValue `tfsdk:"base"`
	Bindings types.Bool                `tfsdk:"bindings"`

	// Computed outputs
	ID    types.String `tfsdk:"id"`
	Names types.List   `tfsdk:"names"`
	DNs   types.List   `tfsdk:"dns"`
	Count types.Int64  `tfsdk:"count"`
}

func (d *ChildrenDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_children"
}

func (d *ChildrenDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists the immediate children of a directory node. " +
			"Only one level is returned; the order follows the directory server.",

		Attributes: map[string]schema.Attribute{
			"base": schema.StringAttribute{
				MarkdownDescription: "Node to list, relative to the provider's `base_dn`. " +
					"Omit or set to `\"\"` to list the root context. Example: `OU=Sweden`",
				CustomType: customtypes.DNStringType{},
				Optional:   true,
				Validators: []validator.String{
					validators.IsValidBaseDN(),
				},
			},
			"bindings": schema.BoolAttribute{
				MarkdownDescription: "When `true`, each entry of `names` is rendered as `<name>: <class>` " +
					"using the child's most specific object class. Defaults to `false`.",
				Optional: true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "The absolute DN of the listed node.",
				Computed:            true,
			},
			"names": schema.ListAttribute{
				MarkdownDescription: "The relative names of the children, e.g. `ou=company1`.",
				ElementType:         types.StringType,
				Computed:            true,
			},
			"dns": schema.ListAttribute{
				MarkdownDescription: "The DNs of the children relative to the provider's `base_dn`, " +
					"in the same order as `names`.",
				ElementType: types.StringType,
				Computed:    true,
			},
			"count": schema.Int64Attribute{
				MarkdownDescription: "The number of children.",
				Computed:            true,
			},
		},
	}
}

func (d *ChildrenDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	client, ok := req.ProviderData.(*ldapclient.DirectoryClient)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *ldapclient.DirectoryClient, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	d.client = client
}

func (d *ChildrenDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data ChildrenDataSourceModel

	// Initialize logging subsystem for consistent logging
	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if d.client == nil {
		resp.Diagnostics.AddError(
			"Unconfigured LDAP Client",
			"The provider has not been configured. Please report this issue to the provider developers.",
		)
		return
	}

	base := ldapclient.StringName(data.Base.ValueString())
	bindings := data.Bindings.ValueBool()

	done := ldapclient.LogDataSourceOperation(ctx, "ldapdir_children", "read", map[string]any{
		"base":     string(base),
		"bindings": bindings,
	})

	names, dns, err := d.listChildren(ctx, base, bindings)
	done(err)
	if err != nil {
		addListError(&resp.Diagnostics, string(base), err)
		return
	}

	tflog.Debug(ctx, "Listed directory children", map[string]any{
		"base":  string(base),
		"count": len(names),
	})

	rel, err := ldapclient.ParseDN(string(base))
	if err != nil {
		resp.Diagnostics.AddError("Invalid Base", err.Error())
		return
	}
	data.ID = types.StringValue(rel.Append(d.client.Root()).String())

	var diags diag.Diagnostics
	data.Names, diags = helpers.StringList(names)
	resp.Diagnostics.Append(diags...)
	data.DNs, diags = helpers.StringList(dns)
	resp.Diagnostics.Append(diags...)
	data.Count = types.Int64Value(int64(len(names)))
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// listChildren collects the names and root-relative DNs of the children of
// base in a single enumeration.
func (d *ChildrenDataSource) listChildren(ctx context.Context, base ldapclient.Name, bindings bool) ([]string, []string, error) {
	names := []string{}
	dns := []string{}

	h := ldapclient.NameClassPairHandlerFunc(func(rec *ldapclient.ChildRecord) error {
		if bindings {
			names = append(names, rec.Binding())
		} else {
			names = append(names, rec.Name)
		}
		dns = append(dns, rec.DN.String())
		return nil
	})

	list := d.client.ListWithHandler
	if bindings {
		list = d.client.ListBindingsWithHandler
	}
	if err := list(ctx, base, h); err != nil {
		return nil, nil, err
	}
	return names, dns, nil
}

// addListError reports a listing failure with a summary matching its kind.
func addListError(diags *diag.Diagnostics, base string, err error) {
	switch {
	case errors.Is(err, ldapclient.ErrNotFound):
		diags.AddError(
			"Directory Node Not Found",
			fmt.Sprintf("The node %q does not exist below the provider's base DN.\n\n%s", base, err.Error()),
		)
	case errors.Is(err, ldapclient.ErrInvalidName):
		diags.AddError(
			"Invalid Directory Name",
			fmt.Sprintf("The name %q is not a valid Distinguished Name.\n\n%s", base, err.Error()),
		)
	case errors.Is(err, ldapclient.ErrCommunication):
		diags.AddError(
			"LDAP Communication Error",
			fmt.Sprintf("Could not list the children of %q: %s", base, err.Error()),
		)
	default:
		diags.AddError(
			"Error Listing Directory",
			fmt.Sprintf("Could not list the children of %q: %s", base, err.Error()),
		)
	}
}
