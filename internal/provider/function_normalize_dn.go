package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/function"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
)

var _ function.Function = &NormalizeDNFunction{}

func NewNormalizeDNFunction() function.Function {
	return &NormalizeDNFunction{}
}

// NormalizeDNFunction implements the normalize_dn function.
type NormalizeDNFunction struct{}

// Metadata returns the function name and signature.
func (f NormalizeDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "normalize_dn"
}

// Definition returns the function schema including parameters and return types.
func (f NormalizeDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Normalize a Distinguished Name",
		Description: "Returns the canonical form of a DN: attribute types are lowercased, whitespace around separators is removed and special characters in values are escaped. Values keep their case.",
		MarkdownDescription: "Returns the canonical form of a DN.\n\n" +
			"- Attribute types are lowercased\n" +
			"- Whitespace around `,`, `+` and `=` is removed\n" +
			"- Values keep their case and are escaped as needed\n\n" +
			"Example: `normalize_dn(\"OU=Sweden , DC=jayway,DC=se\")` returns `\"ou=Sweden,dc=jayway,dc=se\"`.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "dn",
				Description:         "The Distinguished Name to normalize. An empty string yields an empty string.",
				MarkdownDescription: "The Distinguished Name to normalize. An empty string yields an empty string.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f NormalizeDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var input string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &input))
	if resp.Error != nil {
		return
	}

	dn, err := ldapclient.ParseDN(input)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, fmt.Sprintf("Invalid Distinguished Name %q: %s", input, err.Error()))
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, dn.Normalized()))
}
