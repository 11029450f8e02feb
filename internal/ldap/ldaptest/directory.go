// Package ldaptest provides an in-memory directory for exercising
// DirectoryClient without a server.
package ldaptest

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldif"

	ldapclient "github.com/isometry/terraform-provider-ldapdir/internal/ldap"
)

// FixtureBase is the suffix of the entries in the bundled fixture.
const FixtureBase = "dc=jayway,dc=se"

//go:embed fixture.ldif
var fixtureLDIF string

// Directory is a read-only ContextSource backed by a list of entries.
// Searches return entries in the order they were loaded.
type Directory struct {
	mu      sync.Mutex
	entries []*ldap.Entry
	dns     []ldapclient.DN
	index   map[string]int

	getErr     error
	releaseErr error
	failAfter  int
	failErr    error
	searches   []*ldap.SearchRequest

	acquired atomic.Int64
	released atomic.Int64
}

// New builds a directory from entries.
func New(entries ...*ldap.Entry) (*Directory, error) {
	d := &Directory{
		index:     make(map[string]int, len(entries)),
		failAfter: -1,
	}
	for _, e := range entries {
		if err := d.add(e); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// LoadLDIF builds a directory from LDIF content records.
func LoadLDIF(text string) (*Directory, error) {
	parsed, err := ldif.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse LDIF: %w", err)
	}

	entries := make([]*ldap.Entry, 0, len(parsed.Entries))
	for _, rec := range parsed.Entries {
		if rec.Entry == nil {
			return nil, errors.New("LDIF change records are not supported")
		}
		entries = append(entries, rec.Entry)
	}
	return New(entries...)
}

// Fixture returns a fresh directory loaded with the bundled fixture:
//
//	dc=jayway,dc=se
//	  ou=groups         (cn=ROLE_USER, cn=ROLE_ADMIN)
//	  ou=Sweden
//	    ou=company1     (three persons)
//	    ou=company2     (cn=Some Person)
//	  ou=Norway
//	    ou=company1     (cn=Some Person)
//	    ou=empty
func Fixture() *Directory {
	d, err := LoadLDIF(fixtureLDIF)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Directory) add(e *ldap.Entry) error {
	dn, err := ldapclient.ParseDN(e.DN)
	if err != nil {
		return err
	}
	if _, ok := d.index[dn.Key()]; ok {
		return fmt.Errorf("duplicate entry %q", e.DN)
	}
	d.index[dn.Key()] = len(d.entries)
	d.entries = append(d.entries, e)
	d.dns = append(d.dns, dn)
	return nil
}

// FailGet makes every following Get return err.
func (d *Directory) FailGet(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getErr = err
}

// FailRelease makes closing a context return err.
func (d *Directory) FailRelease(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseErr = err
}

// FailAfter ends every search with err once n entries have been delivered.
func (d *Directory) FailAfter(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAfter = n
	d.failErr = err
}

// Acquired returns how many contexts were handed out.
func (d *Directory) Acquired() int {
	return int(d.acquired.Load())
}

// Released returns how many contexts were closed.
func (d *Directory) Released() int {
	return int(d.released.Load())
}

// Searches returns the requests received so far.
func (d *Directory) Searches() []*ldap.SearchRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*ldap.SearchRequest(nil), d.searches...)
}

// Get hands out a new context.
func (d *Directory) Get(ctx context.Context) (ldapclient.DirContext, error) {
	d.mu.Lock()
	err := d.getErr
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.acquired.Add(1)
	return &dirContext{dir: d}, nil
}

type dirContext struct {
	dir    *Directory
	closed atomic.Bool
}

func (c *dirContext) SearchAsync(ctx context.Context, req *ldap.SearchRequest, _ int) ldap.Response {
	if c.closed.Load() {
		return &response{ctx: ctx, err: ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))}
	}
	return c.dir.search(ctx, req)
}

func (c *dirContext) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.dir.released.Add(1)

	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()
	return c.dir.releaseErr
}

// search evaluates req against the entries. Filters are not evaluated;
// every entry in scope matches.
func (d *Directory) search(ctx context.Context, req *ldap.SearchRequest) *response {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.searches = append(d.searches, req)
	resp := &response{ctx: ctx, failAfter: d.failAfter, failErr: d.failErr}

	base, err := ldapclient.ParseDN(req.BaseDN)
	if err != nil {
		resp.err = ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
		return resp
	}
	if !base.IsEmpty() {
		if _, ok := d.index[base.Key()]; !ok {
			resp.err = &ldap.Error{
				ResultCode: ldap.LDAPResultNoSuchObject,
				Err:        fmt.Errorf("no such object: %s", req.BaseDN),
				MatchedDN:  d.matchedDN(base),
			}
			return resp
		}
	}

	for i, dn := range d.dns {
		if !inScope(dn, base, req.Scope) {
			continue
		}
		if req.SizeLimit > 0 && len(resp.entries) == req.SizeLimit {
			resp.err = ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded"))
			break
		}
		resp.entries = append(resp.entries, project(d.entries[i], req.Attributes))
	}
	return resp
}

// matchedDN returns the closest existing ancestor of dn.
func (d *Directory) matchedDN(dn ldapclient.DN) string {
	for p := dn.Parent(); !p.IsEmpty(); p = p.Parent() {
		if i, ok := d.index[p.Key()]; ok {
			return d.entries[i].DN
		}
	}
	return ""
}

func inScope(dn, base ldapclient.DN, scope int) bool {
	switch scope {
	case ldap.ScopeBaseObject:
		return dn.Equal(base)
	case ldap.ScopeSingleLevel:
		return dn.Size() == base.Size()+1 && dn.IsDescendantOf(base)
	default:
		return dn.Equal(base) || dn.IsDescendantOf(base)
	}
}

// project copies the requested attributes of e. No attributes or "*"
// selects all of them.
func project(e *ldap.Entry, attributes []string) *ldap.Entry {
	all := len(attributes) == 0
	for _, a := range attributes {
		if a == "*" {
			all = true
		}
	}

	out := &ldap.Entry{DN: e.DN}
	for _, attr := range e.Attributes {
		if !all && !wanted(attr.Name, attributes) {
			continue
		}
		out.Attributes = append(out.Attributes, &ldap.EntryAttribute{
			Name:       attr.Name,
			Values:     append([]string(nil), attr.Values...),
			ByteValues: append([][]byte(nil), attr.ByteValues...),
		})
	}
	return out
}

func wanted(name string, attributes []string) bool {
	for _, a := range attributes {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// response implements ldap.Response over a precomputed result set.
type response struct {
	ctx       context.Context
	entries   []*ldap.Entry
	pos       int
	current   *ldap.Entry
	err       error
	failAfter int
	failErr   error
}

func (r *response) Next() bool {
	r.current = nil
	if err := r.ctx.Err(); err != nil {
		if r.err == nil {
			r.err = err
		}
		return false
	}
	if r.failAfter >= 0 && r.pos == r.failAfter && !(len(r.entries) == 0 && r.err != nil) {
		r.err = r.failErr
		if r.err == nil {
			r.err = ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset by peer"))
		}
		return false
	}
	if r.pos >= len(r.entries) {
		return false
	}
	r.current = r.entries[r.pos]
	r.pos++
	return true
}

func (r *response) Entry() *ldap.Entry { return r.current }

func (r *response) Referral() string { return "" }

func (r *response) Controls() []ldap.Control { return nil }

func (r *response) Err() error { return r.err }
