package validators

import (
	"context"
	"errors"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
)

// Ensure the implementation satisfies the expected interface.
var _ validator.String = dnValidator{}

// dnValidator validates that a string is a properly formatted Distinguished Name (DN).
type dnValidator struct {
	allowEmpty bool
}

// Description describes the validation in plain text.
func (v dnValidator) Description(_ context.Context) string {
	if v.allowEmpty {
		return "value must be empty or a valid Distinguished Name (DN)"
	}
	return "value must be a valid Distinguished Name (DN)"
}

// MarkdownDescription describes the validation in Markdown.
func (v dnValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

// ValidateString performs the validation.
func (v dnValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	// Skip validation for unknown or null values
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()

	if value == "" {
		if !v.allowEmpty {
			response.Diagnostics.AddAttributeError(
				request.Path,
				"Invalid Distinguished Name",
				"The value \"\" is not a valid Distinguished Name format: DN cannot be empty",
			)
		}
		return
	}

	if _, err := ldapclient.ParseDN(value); err != nil {
		detail := err.Error()
		var lerr *ldapclient.Error
		if errors.As(err, &lerr) && lerr.Cause != nil {
			detail = lerr.Cause.Error()
		}
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Distinguished Name",
			"The value \""+value+"\" is not a valid Distinguished Name format: "+detail,
		)
	}
}

// IsValidDN returns a validator which ensures that any configured
// attribute value is a valid Distinguished Name (DN).
//
// Unknown values and null values are skipped from validation.
func IsValidDN() validator.String {
	return dnValidator{}
}

// IsValidBaseDN is like IsValidDN but also accepts the empty string, which
// names the root context.
func IsValidBaseDN() validator.String {
	return dnValidator{allowEmpty: true}
}
