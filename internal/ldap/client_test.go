package ldap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
	"github.com/isometry/terraform-provider-ldapdir/internal/ldap/ldaptest"
)

type person struct {
	FullName    string
	LastName    string
	Description string
	Phone       string
	Company     string
	Country     string
}

var personMapper = ldapclient.ContextMapperFunc[person](func(rec *ldapclient.ChildRecord) (person, error) {
	p := person{
		FullName:    rec.StringAttribute("cn"),
		LastName:    rec.StringAttribute("sn"),
		Description: rec.StringAttribute("description"),
		Phone:       rec.StringAttribute("telephoneNumber"),
	}
	// cn=<name>,ou=<company>,ou=<country>
	if rec.DN.Size() >= 3 {
		p.Company = rec.DN.RDN(1).Pairs()[0].Value
		p.Country = rec.DN.RDN(2).Pairs()[0].Value
	}
	return p, nil
})

func newFixtureClient(t *testing.T) (*ldapclient.DirectoryClient, *ldaptest.Directory) {
	t.Helper()

	dir := ldaptest.Fixture()
	client := ldapclient.NewDirectoryClient(context.Background(), dir, ldapclient.MustParseDN(ldaptest.FixtureBase))
	t.Cleanup(func() {
		assert.Equal(t, dir.Acquired(), dir.Released(), "every directory context must be released")
	})
	return client, dir
}

func parseAll(t *testing.T, names []string) []string {
	t.Helper()

	keys := make([]string, len(names))
	for i, name := range names {
		dn, err := ldapclient.ParseDN(name)
		require.NoError(t, err)
		keys[i] = dn.Key()
	}
	return keys
}

func TestList_Root(t *testing.T) {
	client, _ := newFixtureClient(t)

	names, err := client.List(context.Background(), ldapclient.StringName(""))
	require.NoError(t, err)

	require.Len(t, names, 3)
	assert.ElementsMatch(t,
		parseAll(t, []string{"ou=groups", "ou=Norway", "ou=Sweden"}),
		parseAll(t, names),
	)
}

func TestList_NilBaseIsRoot(t *testing.T) {
	client, _ := newFixtureClient(t)

	fromNil, err := client.List(context.Background(), nil)
	require.NoError(t, err)

	fromEmpty, err := client.List(context.Background(), ldapclient.StringName(""))
	require.NoError(t, err)

	assert.ElementsMatch(t, fromEmpty, fromNil)
}

func TestList_TextAndDNResolveIdentically(t *testing.T) {
	client, _ := newFixtureClient(t)
	ctx := context.Background()

	fromText, err := client.List(ctx, ldapclient.StringName(" OU=Sweden "))
	require.NoError(t, err)

	fromDN, err := client.List(ctx, ldapclient.MustParseDN("ou=Sweden"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ou=company1", "ou=company2"}, fromText)
	assert.ElementsMatch(t, fromText, fromDN)
}

func TestList_EmptyNode(t *testing.T) {
	client, _ := newFixtureClient(t)

	names, err := client.List(context.Background(), ldapclient.StringName("ou=empty,ou=Norway"))
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestList_RequestsOnlyObjectClass(t *testing.T) {
	client, dir := newFixtureClient(t)

	_, err := client.List(context.Background(), ldapclient.StringName("ou=groups"))
	require.NoError(t, err)

	searches := dir.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, "ou=groups,dc=jayway,dc=se", searches[0].BaseDN)
	assert.Equal(t, ldap.ScopeSingleLevel, searches[0].Scope)
	assert.Equal(t, []string{"objectClass"}, searches[0].Attributes)
}

func TestListWithHandler_CountMatchesList(t *testing.T) {
	client, _ := newFixtureClient(t)
	ctx := context.Background()

	for _, base := range []string{"", "ou=groups", "ou=Sweden", "ou=company1,ou=Sweden", "ou=empty,ou=Norway"} {
		t.Run(base, func(t *testing.T) {
			names, err := client.List(ctx, ldapclient.StringName(base))
			require.NoError(t, err)

			counter := &ldapclient.CountingHandler{}
			require.NoError(t, client.ListWithHandler(ctx, ldapclient.StringName(base), counter))
			assert.Equal(t, len(names), counter.Count())
		})
	}
}

func TestListWithHandler_RecordsAreUnbound(t *testing.T) {
	client, _ := newFixtureClient(t)

	var classes []string
	err := client.ListWithHandler(context.Background(), ldapclient.StringName("ou=groups"),
		ldapclient.NameClassPairHandlerFunc(func(rec *ldapclient.ChildRecord) error {
			assert.False(t, rec.IsBound())
			classes = append(classes, rec.ClassName)
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, []string{"groupOfUniqueNames", "groupOfUniqueNames"}, classes)
}

func TestListBindings(t *testing.T) {
	client, dir := newFixtureClient(t)

	bindings, err := client.ListBindings(context.Background(), ldapclient.StringName("ou=Norway"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"ou=company1: organizationalUnit",
		"ou=empty: organizationalUnit",
	}, bindings)

	searches := dir.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, []string{"*"}, searches[0].Attributes)
}

func TestListBindingsWithHandler_RecordsAreBound(t *testing.T) {
	client, _ := newFixtureClient(t)

	var dns []string
	err := client.ListBindingsWithHandler(context.Background(), ldapclient.StringName("ou=company1,ou=Norway"),
		ldapclient.NameClassPairHandlerFunc(func(rec *ldapclient.ChildRecord) error {
			require.True(t, rec.IsBound())
			assert.Equal(t, "Person", rec.StringAttribute("sn"))
			dns = append(dns, rec.DN.String())
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, []string{"cn=Some Person,ou=company1,ou=Norway"}, dns)
}

func TestListBindingsWithMapper_SinglePerson(t *testing.T) {
	client, _ := newFixtureClient(t)

	people, err := ldapclient.ListBindingsWithMapper(context.Background(), client,
		ldapclient.StringName("ou=company2,ou=Sweden"), personMapper)
	require.NoError(t, err)

	require.Len(t, people, 1)
	assert.Equal(t, person{
		FullName:    "Some Person",
		LastName:    "Person",
		Description: "Sweden, Company2, Some Person",
		Phone:       "+46 555-456321",
		Company:     "company2",
		Country:     "Sweden",
	}, people[0])
}

func TestListBindingsWithMapper_AttributesMapper(t *testing.T) {
	client, _ := newFixtureClient(t)

	attrs, err := ldapclient.ListBindingsWithMapper(context.Background(), client,
		ldapclient.StringName("ou=company2,ou=Sweden"), ldapclient.AttributesMapper())
	require.NoError(t, err)

	require.Len(t, attrs, 1)
	got := attrs[0]
	assert.Equal(t, []string{"Some Person"}, got["cn"])
	assert.Equal(t, []string{"Person"}, got["sn"])
	assert.Equal(t, []string{"Sweden, Company2, Some Person"}, got["description"])
	assert.Equal(t, []string{"+46 555-456321"}, got["telephoneNumber"])
}

func TestListBindingsWithMapper_ThreePeople(t *testing.T) {
	client, _ := newFixtureClient(t)
	ctx := context.Background()
	base := ldapclient.StringName("ou=company1,ou=Sweden")

	people, err := ldapclient.ListBindingsWithMapper(ctx, client, base, personMapper)
	require.NoError(t, err)
	require.Len(t, people, 3)

	var phones []string
	for _, p := range people {
		assert.Equal(t, "company1", p.Company)
		assert.Equal(t, "Sweden", p.Country)
		assert.Equal(t, "Sweden, Company1, "+p.FullName, p.Description)
		phones = append(phones, p.Phone)
	}
	assert.ElementsMatch(t, []string{"+46 555-123456", "+46 555-654321", "+46 555-123654"}, phones)

	// one mapped value per child, in the same order as a plain listing
	names, err := client.List(ctx, base)
	require.NoError(t, err)
	require.Len(t, names, len(people))
	for i, name := range names {
		assert.Equal(t, "cn="+people[i].FullName, name)
	}
}

func TestListBindingsWithMapper_NilMapper(t *testing.T) {
	client, dir := newFixtureClient(t)

	_, err := ldapclient.ListBindingsWithMapper[string](context.Background(), client, nil, nil)
	assert.ErrorIs(t, err, ldapclient.ErrOperationFailed)
	assert.Zero(t, dir.Acquired())
}

func TestListWithHandler_NilHandler(t *testing.T) {
	client, dir := newFixtureClient(t)

	err := client.ListWithHandler(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ldapclient.ErrOperationFailed)
	assert.Zero(t, dir.Acquired())
}

func TestList_NotFound(t *testing.T) {
	client, dir := newFixtureClient(t)
	ctx := context.Background()
	missing := ldapclient.StringName("ou=Denmark")

	names, err := client.List(ctx, missing)
	require.Error(t, err)
	assert.Nil(t, names)
	assert.ErrorIs(t, err, ldapclient.ErrNotFound)
	assert.True(t, ldapclient.IsNotFoundError(err))

	var lerr *ldapclient.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "list", lerr.Op)
	assert.Equal(t, uint16(ldap.LDAPResultNoSuchObject), lerr.LDAPCode)
	assert.Equal(t, "ou=Denmark,dc=jayway,dc=se", lerr.DN)

	calls := 0
	err = client.ListBindingsWithHandler(ctx, missing, ldapclient.NameClassPairHandlerFunc(func(*ldapclient.ChildRecord) error {
		calls++
		return nil
	}))
	assert.ErrorIs(t, err, ldapclient.ErrNotFound)
	assert.Zero(t, calls)

	people, err := ldapclient.ListBindingsWithMapper(ctx, client, missing, personMapper)
	assert.ErrorIs(t, err, ldapclient.ErrNotFound)
	assert.Nil(t, people)

	assert.Equal(t, 3, dir.Released())
}

func TestList_InvalidName(t *testing.T) {
	client, dir := newFixtureClient(t)

	_, err := client.List(context.Background(), ldapclient.StringName("not-a-dn"))
	assert.ErrorIs(t, err, ldapclient.ErrInvalidName)
	assert.Zero(t, dir.Acquired())
}

func TestList_ContextUnavailable(t *testing.T) {
	client, dir := newFixtureClient(t)
	dir.FailGet(ldapclient.NewConnectionError("no servers reachable", true, nil))

	_, err := client.List(context.Background(), nil)
	assert.ErrorIs(t, err, ldapclient.ErrCommunication)

	var connErr *ldapclient.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestList_SentinelFromCollaboratorIsNotModified(t *testing.T) {
	client, dir := newFixtureClient(t)
	dir.FailGet(ldapclient.ErrCommunication)

	_, err := client.List(context.Background(), ldapclient.StringName("ou=Sweden"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ldapclient.ErrCommunication)

	assert.Empty(t, ldapclient.ErrCommunication.Op)
	assert.Empty(t, ldapclient.ErrCommunication.DN)
	assert.ErrorIs(t, &ldapclient.Error{Kind: ldapclient.KindCommunication}, ldapclient.ErrCommunication)

	// A second failure still classifies against the untouched sentinel.
	_, err = client.List(context.Background(), nil)
	assert.ErrorIs(t, err, ldapclient.ErrCommunication)
}

func TestList_FailureDuringIteration(t *testing.T) {
	client, dir := newFixtureClient(t)
	dir.FailAfter(1, nil)

	names, err := client.List(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, names, "no partial results")
	assert.ErrorIs(t, err, ldapclient.ErrCommunication)
	assert.Equal(t, 1, dir.Released())
}

func TestList_ReleaseFailureAfterSuccess(t *testing.T) {
	client, dir := newFixtureClient(t)
	dir.FailRelease(errors.New("unbind failed"))

	names, err := client.List(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, names)
	assert.ErrorIs(t, err, ldapclient.ErrCommunication)
	assert.ErrorContains(t, err, "unbind failed")
	assert.Equal(t, ldapclient.KindCommunication, ldapclient.GetErrorKind(err))

	var lerr *ldapclient.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "list", lerr.Op)
}

func TestList_ReleaseFailureKeepsPrimaryError(t *testing.T) {
	client, dir := newFixtureClient(t)
	dir.FailRelease(errors.New("unbind failed"))

	_, err := client.List(context.Background(), ldapclient.StringName("ou=Denmark"))
	assert.ErrorIs(t, err, ldapclient.ErrNotFound)
	assert.NotErrorIs(t, err, ldapclient.ErrCommunication)

	boom := errors.New("boom")
	err = client.ListBindingsWithHandler(context.Background(), nil, ldapclient.NameClassPairHandlerFunc(func(*ldapclient.ChildRecord) error {
		return boom
	}))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ldapclient.ErrMapping)
}

func TestListBindingsWithMapper_MapperErrorAborts(t *testing.T) {
	client, dir := newFixtureClient(t)
	boom := errors.New("unexpected person")

	calls := 0
	mapper := ldapclient.ContextMapperFunc[string](func(rec *ldapclient.ChildRecord) (string, error) {
		calls++
		if calls == 2 {
			return "", boom
		}
		return rec.Name, nil
	})

	got, err := ldapclient.ListBindingsWithMapper(context.Background(), client,
		ldapclient.StringName("ou=company1,ou=Sweden"), mapper)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ldapclient.ErrMapping)
	assert.ErrorIs(t, err, boom, "original cause is kept")
	assert.Equal(t, 1, dir.Released())
}

func TestListBindingsWithMapper_KeepsMapperMessage(t *testing.T) {
	client, _ := newFixtureClient(t)

	_, err := ldapclient.ListBindingsWithMapper(context.Background(), client,
		ldapclient.StringName("ou=Sweden"), ldapclient.ContextMapperFunc[string](func(rec *ldapclient.ChildRecord) (string, error) {
			return rec.ObjectGUID()
		}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ldapclient.ErrMapping)
	assert.ErrorContains(t, err, "objectGUID attribute not found")
}

func TestDirectoryClient_ConcurrentCalls(t *testing.T) {
	client, dir := newFixtureClient(t)
	ctx := context.Background()

	bases := map[string]int{
		"":                      3,
		"ou=groups":             2,
		"ou=Sweden":             2,
		"ou=company1,ou=Sweden": 3,
		"ou=company2,ou=Sweden": 1,
		"ou=Norway":             2,
		"ou=empty,ou=Norway":    0,
	}

	g, ctx := errgroup.WithContext(ctx)
	for range 4 {
		for base, want := range bases {
			g.Go(func() error {
				names, err := client.List(ctx, ldapclient.StringName(base))
				if err != nil {
					return err
				}
				people, err := ldapclient.ListBindingsWithMapper(ctx, client, ldapclient.StringName(base), ldapclient.AttributesMapper())
				if err != nil {
					return err
				}
				assert.Len(t, names, want, base)
				assert.Len(t, people, want, base)
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 2*4*len(bases), dir.Acquired())
}
