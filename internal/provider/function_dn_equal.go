package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/function"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
)

var _ function.Function = &DNEqualFunction{}

func NewDNEqualFunction() function.Function {
	return &DNEqualFunction{}
}

// DNEqualFunction implements the dn_equal function.
type DNEqualFunction struct{}

// Metadata returns the function name and signature.
func (f DNEqualFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "dn_equal"
}

// Definition returns the function schema including parameters and return types.
func (f DNEqualFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Compare two Distinguished Names",
		Description: "Returns true when both arguments name the same directory entry. Attribute types compare case-insensitively; values compare exactly.",
		MarkdownDescription: "Returns `true` when both arguments name the same directory entry.\n\n" +
			"Attribute types compare case-insensitively and whitespace around separators is ignored; " +
			"attribute values compare exactly.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:        "a",
				Description: "First Distinguished Name.",
			},
			function.StringParameter{
				Name:        "b",
				Description: "Second Distinguished Name.",
			},
		},
		Return: function.BoolReturn{},
	}
}

// Run implements the function logic.
func (f DNEqualFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var a, b string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &a, &b))
	if resp.Error != nil {
		return
	}

	left, err := ldapclient.ParseDN(a)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, fmt.Sprintf("Invalid Distinguished Name %q: %s", a, err.Error()))
		return
	}
	right, err := ldapclient.ParseDN(b)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(1, fmt.Sprintf("Invalid Distinguished Name %q: %s", b, err.Error()))
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, left.Equal(right)))
}
