/*
Package ldap lists the immediate children of directory nodes.

# Listing

DirectoryClient offers five entry points over a single traversal:

  - List: relative names of the children of a node
  - ListWithHandler: every child delivered to a NameClassPairHandler
  - ListBindings: a "<name>: <class>" rendering of every child
  - ListBindingsWithHandler: every child, with its attribute data, delivered to a handler
  - ListBindingsWithMapper: every child mapped to a caller type through a ContextMapper

Base names are relative to the client's root context and may be given as a
parsed DN or as a StringName; both resolve identically. A nil or empty base
lists the root itself. Enumeration order is whatever the server returns.

Each call opens one EnumerationCursor, feeds the selected handler and closes
the cursor on every exit path. A call either returns its full result or a
single *Error and nothing else.

# Errors

Every failure is reported as an *Error carrying one ErrorKind:

  - KindNotFound: the base node does not exist
  - KindCommunication: the connection failed while opening, iterating or releasing
  - KindInvalidName: a name did not parse
  - KindMapping: a handler or mapper failed for some child
  - KindOperationFailed: any other protocol error

Use errors.Is with ErrNotFound, ErrCommunication and the other sentinels to
test the kind. The underlying cause stays reachable through errors.As.

# Connections

NewClient builds a ConnectionPool from a ConnectionConfig. Servers come from
explicit LDAP URLs or DNS SRV discovery; connections authenticate with a
simple bind, Kerberos (GSSAPI) or an external bind and are reused across
calls. Any other ContextSource, such as the in-memory directory in package
ldaptest, can be passed to NewDirectoryClient instead.

# Logging

The package logs through tflog subsystems: "ldap" for listing operations and
Kerberos events, "pool" for connection management and "provider" for data
source operations.
*/
package ldap
