package provider

import (
	"fmt"
	"os"
	"regexp"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/knownvalue"
	"github.com/hashicorp/terraform-plugin-testing/statecheck"
	"github.com/hashicorp/terraform-plugin-testing/tfjsonpath"
)

// Acceptance test environment. The provider itself is configured from the
// regular LDAPDIR_* variables.
const (
	// EnvTestBase names a node below LDAPDIR_BASE_DN that has children.
	EnvTestBase = "LDAPDIR_TEST_BASE"
)

// testAccProtoV6ProviderFactories is used to instantiate a provider during acceptance testing.
// The factory function is called for each Terraform CLI command to create a provider
// server that the CLI can connect to and interact with.
var testAccProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"ldapdir": providerserver.NewProtocol6WithError(New("test")()),
}

// testAccPreCheck skips the test unless a directory server is configured.
func testAccPreCheck(t *testing.T) {
	t.Helper()

	if os.Getenv("LDAPDIR_LDAP_URL") == "" && os.Getenv("LDAPDIR_DOMAIN") == "" {
		t.Skip("Skipping test: LDAPDIR_LDAP_URL or LDAPDIR_DOMAIN must point at a directory server")
	}
	if os.Getenv(EnvTestBase) == "" {
		t.Skipf("Skipping test: %s must name a node with children", EnvTestBase)
	}
}

func TestAccChildrenDataSource_basic(t *testing.T) {
	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: fmt.Sprintf(`
data "ldapdir_children" "test" {
  base = %q
}

output "count_matches" {
  value = data.ldapdir_children.test.count == length(data.ldapdir_children.test.names)
}
`, os.Getenv(EnvTestBase)),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttrSet("data.ldapdir_children.test", "id"),
					resource.TestCheckResourceAttrSet("data.ldapdir_children.test", "names.0"),
					resource.TestCheckOutput("count_matches", "true"),
				),
			},
		},
	})
}

func TestAccEntriesDataSource_attributeFilter(t *testing.T) {
	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: fmt.Sprintf(`
data "ldapdir_entries" "test" {
  base       = %q
  attributes = ["objectClass"]
}
`, os.Getenv(EnvTestBase)),
				ConfigStateChecks: []statecheck.StateCheck{
					statecheck.ExpectKnownValue(
						"data.ldapdir_entries.test",
						tfjsonpath.New("entries").AtSliceIndex(0).AtMapKey("object_class"),
						knownvalue.NotNull(),
					),
				},
			},
		},
	})
}

func TestAccChildrenDataSource_notFound(t *testing.T) {
	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: `
data "ldapdir_children" "test" {
  base = "ou=does-not-exist-ldapdir"
}
`,
				ExpectError: regexp.MustCompile(`Directory Node Not Found`),
			},
		},
	})
}

func TestAccFunctions(t *testing.T) {
	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: `
output "normalized" {
  value = provider::ldapdir::normalize_dn("OU=Sweden,DC=jayway,DC=se")
}

output "equal" {
  value = provider::ldapdir::dn_equal("OU=Sweden,DC=jayway,DC=se", "ou=Sweden,dc=jayway,dc=se")
}
`,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckOutput("normalized", "ou=Sweden,dc=jayway,dc=se"),
					resource.TestCheckOutput("equal", "true"),
				),
			},
		},
	})
}
