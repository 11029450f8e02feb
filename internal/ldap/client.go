package ldap

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const defaultSearchBuffer = 64

// DirectoryClient lists the children of directory nodes.
//
// Every base name passed to it is relative to the root context the client
// was created with. A DirectoryClient keeps no per-call state and is safe
// for concurrent use.
type DirectoryClient struct {
	source       ContextSource
	root         DN
	searchBuffer int
	sizeLimit    int
}

// NewDirectoryClient creates a client that obtains directory contexts from
// source. Names are resolved relative to root.
func NewDirectoryClient(ctx context.Context, source ContextSource, root DN) *DirectoryClient {
	tflog.SubsystemDebug(ctx, "ldap", "Creating directory client", map[string]any{
		"root_dn": root.String(),
	})

	return &DirectoryClient{
		source:       source,
		root:         root,
		searchBuffer: defaultSearchBuffer,
	}
}

// NewClient creates a client backed by a connection pool built from config.
// The configured BaseDN becomes the client's root context.
func NewClient(ctx context.Context, config *ConnectionConfig) (*DirectoryClient, error) {
	if config == nil {
		config = DefaultConfig()
	}

	root, err := ParseDN(config.BaseDN)
	if err != nil {
		return nil, fmt.Errorf("invalid base DN: %w", err)
	}

	tflog.SubsystemDebug(ctx, "ldap", "Creating new LDAP client", ConfigLogFields(config))

	start := time.Now()
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		tflog.SubsystemError(ctx, "ldap", "Failed to create connection pool", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	tflog.SubsystemInfo(ctx, "ldap", "LDAP client created successfully", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"pool_size":   config.MaxConnections,
		"auth_method": config.GetAuthMethod().String(),
	})

	return &DirectoryClient{
		source:       pool,
		root:         root,
		searchBuffer: config.SearchBuffer,
		sizeLimit:    config.SizeLimit,
	}, nil
}

// Root returns the root context names are resolved against.
func (c *DirectoryClient) Root() DN {
	return c.root
}

// Close releases the context source if it holds resources.
func (c *DirectoryClient) Close() error {
	if closer, ok := c.source.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// List returns the relative names of the immediate children of base.
// A node without children yields an empty slice.
func (c *DirectoryClient) List(ctx context.Context, base Name) ([]string, error) {
	h := NewNameCollector()
	if err := c.enumerate(ctx, "list", base, false, h); err != nil {
		return nil, err
	}
	return h.Items(), nil
}

// ListWithHandler delivers every child of base to h.
func (c *DirectoryClient) ListWithHandler(ctx context.Context, base Name, h NameClassPairHandler) error {
	return c.enumerate(ctx, "list", base, false, h)
}

// ListBindings returns a "<name>: <class>" rendering of every child of base.
func (c *DirectoryClient) ListBindings(ctx context.Context, base Name) ([]string, error) {
	h := NewBindingCollector()
	if err := c.enumerate(ctx, "list_bindings", base, true, h); err != nil {
		return nil, err
	}
	return h.Items(), nil
}

// ListBindingsWithHandler delivers every child of base, with its attribute
// data, to h.
func (c *DirectoryClient) ListBindingsWithHandler(ctx context.Context, base Name, h NameClassPairHandler) error {
	return c.enumerate(ctx, "list_bindings", base, true, h)
}

// ListBindingsWithMapper maps every child of base through mapper. The first
// mapper error aborts the call and no results are returned.
func ListBindingsWithMapper[T any](ctx context.Context, c *DirectoryClient, base Name, mapper ContextMapper[T]) ([]T, error) {
	if mapper == nil {
		return nil, newError("list_bindings", KindOperationFailed, DN{}, "context mapper cannot be nil", nil)
	}

	h := NewContextMapperHandler(mapper)
	if err := c.enumerate(ctx, "list_bindings", base, true, h); err != nil {
		return nil, err
	}
	return h.Results(), nil
}

// resolve turns base into an absolute DN under the root context.
func (c *DirectoryClient) resolve(op string, base Name) (DN, error) {
	if base == nil {
		return c.root, nil
	}

	rel, err := base.resolve()
	if err != nil {
		return DN{}, translateError(op, DN{}, err)
	}
	return rel.Append(c.root), nil
}

// enumerate drives one cursor over the children of base, feeding h. The
// cursor is closed on every path; a close failure only surfaces when
// nothing else went wrong.
func (c *DirectoryClient) enumerate(ctx context.Context, op string, base Name, bindings bool, h NameClassPairHandler) (err error) {
	if h == nil {
		return newError(op, KindOperationFailed, DN{}, "handler cannot be nil", nil)
	}

	full, err := c.resolve(op, base)
	if err != nil {
		return err
	}

	handled := 0
	done := logListOperation(ctx, op, full, bindings)
	defer func() { done(handled, err) }()

	cursor, err := openCursor(ctx, c.source, c.root, full, bindings, c.searchBuffer, c.sizeLimit)
	if err != nil {
		return withOp(err, op)
	}
	defer func() {
		if closeErr := cursor.Close(); closeErr != nil {
			if err == nil {
				err = withOp(closeErr, op)
				return
			}
			logCloseFailure(ctx, full, closeErr)
		}
	}()

	for {
		ok, err := cursor.HasNext()
		if err != nil {
			return withOp(err, op)
		}
		if !ok {
			return nil
		}

		rec, err := cursor.Next()
		if err != nil {
			return withOp(err, op)
		}

		if err := h.HandleNameClassPair(rec); err != nil {
			return mappingError(op, full, err)
		}
		handled++
	}
}

// mappingError wraps a handler failure. Errors already in the taxonomy pass
// through untouched.
func mappingError(op string, dn DN, err error) error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(op, KindMapping, dn, err.Error(), err)
}

// withOp records the client operation on errors raised by the cursor.
func withOp(err error, op string) error {
	if e, ok := err.(*Error); ok {
		out := *e
		out.Op = op
		return &out
	}
	return err
}
