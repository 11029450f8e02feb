// Package helpers provides common utility functions for Terraform type conversions
// that can be reused across data sources and functions.
package helpers

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// StringListType is list(string).
var StringListType = types.ListType{ElemType: types.StringType}

// StringList converts values to a list(string). A nil slice becomes an
// empty list, never null.
func StringList(values []string) (types.List, diag.Diagnostics) {
	elements := make([]attr.Value, len(values))
	for i, v := range values {
		elements[i] = types.StringValue(v)
	}
	return types.ListValue(types.StringType, elements)
}

// StringListMap converts attribute data to a map(list(string)). Values of
// every key keep their order.
func StringListMap(values map[string][]string) (types.Map, diag.Diagnostics) {
	var diags diag.Diagnostics

	elements := make(map[string]attr.Value, len(values))
	for key, vals := range values {
		list, d := StringList(vals)
		diags.Append(d...)
		elements[key] = list
	}
	if diags.HasError() {
		return types.MapNull(StringListType), diags
	}

	m, d := types.MapValue(StringListType, elements)
	diags.Append(d...)
	return m, diags
}

// StringsFromList returns the known, non-null elements of a list(string).
// A null list yields nil.
func StringsFromList(ctx context.Context, list types.List) ([]string, error) {
	if list.IsNull() {
		return nil, nil
	}
	if list.IsUnknown() {
		return nil, fmt.Errorf("cannot process unknown values")
	}

	var out []string
	if diags := list.ElementsAs(ctx, &out, false); diags.HasError() {
		return nil, fmt.Errorf("failed to read string list: %v", diags.Errors())
	}
	return slices.DeleteFunc(out, func(s string) bool { return s == "" }), nil
}
