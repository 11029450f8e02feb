package ldap

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver answers SRV lookups from a fixed table.
type fakeResolver struct {
	records map[string][]*net.SRV
	lookups []string
}

func (r *fakeResolver) LookupSRV(_ context.Context, _, _, name string) (string, []*net.SRV, error) {
	r.lookups = append(r.lookups, name)
	recs, ok := r.records[name]
	if !ok {
		return "", nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return name, recs, nil
}

func TestSRVDiscovery_DiscoverServers(t *testing.T) {
	tests := []struct {
		name        string
		records     map[string][]*net.SRV
		wantHosts   []string
		wantTLS     bool
		wantLookups int
	}{
		{
			name: "ldaps records end the search",
			records: map[string][]*net.SRV{
				"_ldaps._tcp.example.com": {
					{Target: "dc2.example.com.", Port: 636, Priority: 10, Weight: 50},
					{Target: "dc1.example.com.", Port: 636, Priority: 0, Weight: 100},
				},
				"_ldap._tcp.example.com": {
					{Target: "dc3.example.com.", Port: 389},
				},
			},
			wantHosts:   []string{"dc1.example.com", "dc2.example.com"},
			wantTLS:     true,
			wantLookups: 1,
		},
		{
			name: "plain ldap and global catalog",
			records: map[string][]*net.SRV{
				"_ldap._tcp.example.com": {
					{Target: "dc1.example.com.", Port: 389, Priority: 0, Weight: 10},
				},
				"_gc._tcp.example.com": {
					{Target: "gc.example.com.", Port: 3268, Priority: 0, Weight: 90},
				},
			},
			wantHosts:   []string{"gc.example.com", "dc1.example.com"},
			wantLookups: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{records: tt.records}
			discovery := &SRVDiscovery{ctx: context.Background(), resolver: resolver}

			servers, err := discovery.DiscoverServers(context.Background(), "example.com")
			require.NoError(t, err)

			var hosts []string
			for _, server := range servers {
				require.NoError(t, ValidateServerInfo(server))
				assert.Equal(t, "srv", server.Source)
				assert.Equal(t, tt.wantTLS, server.UseTLS)
				hosts = append(hosts, server.Host)
			}
			assert.Equal(t, tt.wantHosts, hosts)
			assert.Len(t, resolver.lookups, tt.wantLookups)
		})
	}
}

func TestSRVDiscovery_Fallback(t *testing.T) {
	discovery := &SRVDiscovery{ctx: context.Background(), resolver: &fakeResolver{}}

	servers, err := discovery.DiscoverServers(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, "ldaps://example.com:636", ServerInfoToURL(servers[0]))
	assert.Equal(t, "ldap://example.com:389", ServerInfoToURL(servers[1]))
	for _, server := range servers {
		assert.Equal(t, "fallback", server.Source)
	}
}

func TestSRVDiscovery_EmptyDomain(t *testing.T) {
	discovery := NewSRVDiscovery(context.Background())

	_, err := discovery.DiscoverServers(context.Background(), "")
	assert.Error(t, err)
}

func TestSRVDiscovery_LookupErrorIsWrapped(t *testing.T) {
	discovery := &SRVDiscovery{ctx: context.Background(), resolver: &fakeResolver{}}

	_, err := discovery.lookupSRV(context.Background(), "_ldap._tcp.example.com", false)
	require.Error(t, err)

	var dnsErr *net.DNSError
	assert.True(t, errors.As(err, &dnsErr))
	assert.True(t, dnsErr.IsNotFound)
}

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    *ServerInfo
		wantErr bool
	}{
		{
			name: "ldaps with port",
			url:  "ldaps://dc1.example.com:636",
			want: &ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true, Weight: 100, Source: "config"},
		},
		{
			name: "ldap default port",
			url:  "ldap://dc1.example.com",
			want: &ServerInfo{Host: "dc1.example.com", Port: 389, Weight: 100, Source: "config"},
		},
		{
			name: "ldaps default port",
			url:  "LDAPS://dc1.example.com",
			want: &ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true, Weight: 100, Source: "config"},
		},
		{
			name: "custom port",
			url:  "ldap://localhost:10389",
			want: &ServerInfo{Host: "localhost", Port: 10389, Weight: 100, Source: "config"},
		},
		{
			name: "ipv6 literal",
			url:  "ldap://[::1]:389",
			want: &ServerInfo{Host: "::1", Port: 389, Weight: 100, Source: "config"},
		},
		{name: "empty", url: "", wantErr: true},
		{name: "wrong scheme", url: "http://dc1.example.com", wantErr: true},
		{name: "missing host", url: "ldap://:389", wantErr: true},
		{name: "port out of range", url: "ldap://dc1.example.com:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLDAPURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLDAPURL(%q) expected error, got %+v", tt.url, got)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateServerInfo(t *testing.T) {
	tests := []struct {
		name    string
		server  *ServerInfo
		wantErr bool
	}{
		{name: "valid", server: &ServerInfo{Host: "dc1.example.com", Port: 636}},
		{name: "nil", server: nil, wantErr: true},
		{name: "empty host", server: &ServerInfo{Port: 389}, wantErr: true},
		{name: "zero port", server: &ServerInfo{Host: "dc1"}, wantErr: true},
		{name: "negative priority", server: &ServerInfo{Host: "dc1", Port: 389, Priority: -1}, wantErr: true},
		{name: "negative weight", server: &ServerInfo{Host: "dc1", Port: 389, Weight: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerInfo(tt.server)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServerInfo() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerInfoToURL(t *testing.T) {
	assert.Equal(t, "ldaps://dc1.example.com:636", ServerInfoToURL(&ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true}))
	assert.Equal(t, "ldap://[::1]:389", ServerInfoToURL(&ServerInfo{Host: "::1", Port: 389}))
}

func TestSortServersByPriority(t *testing.T) {
	servers := []*ServerInfo{
		{Host: "c", Priority: 10, Weight: 100},
		{Host: "b", Priority: 0, Weight: 10},
		{Host: "a", Priority: 0, Weight: 90},
		{Host: "d", Priority: 10, Weight: 100},
	}

	sortServersByPriority(servers)

	var order []string
	for _, s := range servers {
		order = append(order, s.Host)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}
