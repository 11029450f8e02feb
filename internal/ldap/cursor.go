package ldap

import (
	"context"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// Attributes requested for name-class and binding enumerations.
var (
	nameClassAttributes = []string{"objectClass"}
	bindingAttributes   = []string{"*"}
)

// EnumerationCursor iterates once over the children of a single directory node.
// It owns the directory context it was opened with and releases it on Close.
//
// A cursor is forward-only and is not safe for concurrent use.
type EnumerationCursor struct {
	base     DN // absolute DN being enumerated
	root     DN // client root; record DNs are relative to it
	bindings bool

	dirCtx   DirContext
	response ldap.Response
	cancel   context.CancelFunc

	peeked    *ChildRecord
	done      bool
	exhausted bool // response has returned its final result

	closeOnce sync.Once
	closeErr  error
}

// openCursor starts a one-level search below base and primes the first
// result, so a missing base fails here rather than during iteration.
func openCursor(ctx context.Context, source ContextSource, root, base DN, bindings bool, bufferSize, sizeLimit int) (*EnumerationCursor, error) {
	dirCtx, err := source.Get(ctx)
	if err != nil {
		return nil, communicationError("open_cursor", base, err)
	}

	attributes := nameClassAttributes
	if bindings {
		attributes = bindingAttributes
	}

	req := ldap.NewSearchRequest(
		base.String(),
		ldap.ScopeSingleLevel,
		ldap.NeverDerefAliases,
		sizeLimit,
		0,
		false,
		"(objectClass=*)",
		attributes,
		nil,
	)

	searchCtx, cancel := context.WithCancel(ctx)
	c := &EnumerationCursor{
		base:     base,
		root:     root,
		bindings: bindings,
		dirCtx:   dirCtx,
		response: dirCtx.SearchAsync(searchCtx, req, bufferSize),
		cancel:   cancel,
	}

	if _, err := c.HasNext(); err != nil {
		if closeErr := c.Close(); closeErr != nil {
			logCloseFailure(ctx, base, closeErr)
		}
		return nil, err
	}

	return c, nil
}

// HasNext reports whether another record is available. It blocks until the
// server delivers the next entry or the final result.
func (c *EnumerationCursor) HasNext() (bool, error) {
	if c.peeked != nil {
		return true, nil
	}
	if c.done {
		return false, nil
	}

	for c.response.Next() {
		entry := c.response.Entry()
		if entry == nil {
			// referral or control-only response
			continue
		}

		rec, err := newChildRecord(entry, c.root, c.bindings)
		if err != nil {
			c.done = true
			return false, translateError("enumerate", c.base, err)
		}
		c.peeked = rec
		return true, nil
	}

	c.done = true
	c.exhausted = true
	if err := c.response.Err(); err != nil {
		return false, translateError("enumerate", c.base, err)
	}
	return false, nil
}

// Next returns the next record and advances the cursor.
func (c *EnumerationCursor) Next() (*ChildRecord, error) {
	ok, err := c.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError("enumerate", KindOperationFailed, c.base, "cursor exhausted", nil)
	}

	rec := c.peeked
	c.peeked = nil
	return rec, nil
}

// Close abandons any outstanding results and releases the directory context.
// Only the first call does any work; later calls return the same error.
//
// Results the server already sent are drained in the background, since the
// search goroutine of an abandoned response blocks once its buffer is full.
func (c *EnumerationCursor) Close() error {
	c.closeOnce.Do(func() {
		c.done = true
		c.peeked = nil
		c.cancel()

		if !c.exhausted {
			go drainResponse(c.response)
		}

		if err := c.dirCtx.Close(); err != nil {
			c.closeErr = newError("close_cursor", KindCommunication, c.base, "failed to release directory context", err)
		}
	})
	return c.closeErr
}

// drainResponse consumes r until its final result.
func drainResponse(r ldap.Response) {
	for r.Next() {
	}
}
