package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
	"github.com/isometry/terraform-provider-ldapdir/internal/provider/helpers"
	customtypes "github.com/isometry/terraform-provider-ldapdir/internal/provider/types"
	"github.com/isometry/terraform-provider-ldapdir/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &EntriesDataSource{}
var _ datasource.DataSourceWithConfigure = &EntriesDataSource{}

func NewEntriesDataSource() datasource.DataSource {
	return &EntriesDataSource{}
}

// EntriesDataSource lists the immediate children of a directory node
// together with their attributes.
type EntriesDataSource struct {
	client *ldapclient.DirectoryClient
}

// EntriesDataSourceModel describes the data source data model.
type EntriesDataSourceModel struct {
	Base       customtypes.DNStringValue `tfsdk:"base"`
	Attributes types.List                `tfsdk:"attributes"`

	// Computed outputs
	ID      types.String `tfsdk:"id"`
	Entries types.List   `tfsdk:"entries"`
}

// entryAttrTypes is the object type of one element of entries.
var entryAttrTypes = map[string]attr.Type{
	"name":         types.StringType,
	"dn":           types.StringType,
	"object_class": types.StringType,
	"attributes":   types.MapType{ElemType: helpers.StringListType},
}

// childEntry is the mapped form of one bound child.
type childEntry struct {
	Name        string
	DN          string
	ObjectClass string
	Attributes  map[string][]string
}

func (d *EntriesDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_entries"
}

func (d *EntriesDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists the immediate children of a directory node with their attribute data. " +
			"Active Directory `objectGUID` and `objectSid` values are rendered in their string forms.",

		Attributes: map[string]schema.Attribute{
			"base": schema.StringAttribute{
				MarkdownDescription: "Node to list, relative to the provider's `base_dn`. " +
					"Omit or set to `\"\"` to list the root context. Example: `OU=company1,OU=Sweden`",
				CustomType: customtypes.DNStringType{},
				Optional:   true,
				Validators: []validator.String{
					validators.IsValidBaseDN(),
				},
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attribute names to keep in each entry's `attributes` map, matched case-insensitively. " +
					"When omitted every attribute returned by the server is kept.",
				ElementType: types.StringType,
				Optional:    true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "The absolute DN of the listed node.",
				Computed:            true,
			},
			"entries": schema.ListNestedAttribute{
				MarkdownDescription: "One element per child.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "Relative name of the child, e.g. `cn=Some Person`.",
							Computed:            true,
						},
						"dn": schema.StringAttribute{
							MarkdownDescription: "DN of the child relative to the provider's `base_dn`.",
							Computed:            true,
						},
						"object_class": schema.StringAttribute{
							MarkdownDescription: "Most specific object class of the child.",
							Computed:            true,
						},
						"attributes": schema.MapAttribute{
							MarkdownDescription: "Attribute values keyed by attribute name.",
							ElementType:         helpers.StringListType,
							Computed:            true,
						},
					},
				},
			},
		},
	}
}

func (d *EntriesDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
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

func (d *EntriesDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data EntriesDataSourceModel

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

	keep, err := helpers.StringsFromList(ctx, data.Attributes)
	if err != nil {
		resp.Diagnostics.AddAttributeError(path.Root("attributes"), "Invalid Attributes Filter", err.Error())
		return
	}

	base := ldapclient.StringName(data.Base.ValueString())

	done := ldapclient.LogDataSourceOperation(ctx, "ldapdir_entries", "read", map[string]any{
		"base":              string(base),
		"attribute_filters": len(keep),
	})

	entries, err := ldapclient.ListBindingsWithMapper(ctx, d.client, base, newEntryMapper(keep))
	done(err)
	if err != nil {
		addListError(&resp.Diagnostics, string(base), err)
		return
	}

	tflog.Debug(ctx, "Listed directory entries", map[string]any{
		"base":  string(base),
		"count": len(entries),
	})

	rel, err := ldapclient.ParseDN(string(base))
	if err != nil {
		resp.Diagnostics.AddError("Invalid Base", err.Error())
		return
	}
	data.ID = types.StringValue(rel.Append(d.client.Root()).String())

	data.Entries = entriesToList(entries, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// newEntryMapper maps a bound child to a childEntry, keeping only the
// attributes named in keep when it is non-empty.
func newEntryMapper(keep []string) ldapclient.ContextMapper[childEntry] {
	attrs := ldapclient.AttributesMapper()

	return ldapclient.ContextMapperFunc[childEntry](func(rec *ldapclient.ChildRecord) (childEntry, error) {
		values, err := attrs.MapFromContext(rec)
		if err != nil {
			return childEntry{}, err
		}

		if len(keep) > 0 {
			for name := range values {
				if !slices.ContainsFunc(keep, func(k string) bool { return strings.EqualFold(k, name) }) {
					delete(values, name)
				}
			}
		}

		return childEntry{
			Name:        rec.Name,
			DN:          rec.DN.String(),
			ObjectClass: rec.ClassName,
			Attributes:  values,
		}, nil
	})
}

// entriesToList converts mapped children to the entries attribute value.
func entriesToList(entries []childEntry, diags *diag.Diagnostics) types.List {
	objType := types.ObjectType{AttrTypes: entryAttrTypes}

	elements := make([]attr.Value, 0, len(entries))
	for _, e := range entries {
		attrsMap, d := helpers.StringListMap(e.Attributes)
		diags.Append(d...)

		obj, d := types.ObjectValue(entryAttrTypes, map[string]attr.Value{
			"name":         types.StringValue(e.Name),
			"dn":           types.StringValue(e.DN),
			"object_class": types.StringValue(e.ObjectClass),
			"attributes":   attrsMap,
		})
		diags.Append(d...)
		elements = append(elements, obj)
	}
	if diags.HasError() {
		return types.ListNull(objType)
	}

	list, d := types.ListValue(objType, elements)
	diags.Append(d...)
	return list
}
