package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// maxAuthAge is how long a pooled bind is trusted before it is refreshed.
const maxAuthAge = 5 * time.Minute

// ConnectionPool hands out authenticated connections to the configured
// servers. It implements ContextSource.
type ConnectionPool struct {
	ctx         context.Context // Logging context with pool subsystem
	config      *ConnectionConfig
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool
	discovery   *SRVDiscovery
	dial        func(context.Context, *ServerInfo) (*PooledConnection, error)

	// Statistics
	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time
}

// PooledConnection is a connection checked out of a ConnectionPool.
type PooledConnection struct {
	conn          *ldap.Conn
	lastUsed      time.Time
	healthy       bool
	authenticated bool
	authTime      time.Time
	serverInfo    *ServerInfo
	returnToPool  func(*PooledConnection)
	released      atomic.Bool
}

// NewConnectionPool creates a new connection pool. Servers are resolved
// eagerly; connections are dialed on demand.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig) (*ConnectionPool, error) {
	start := time.Now()
	tflog.SubsystemDebug(ctx, "pool", "Creating new connection pool")

	if config == nil {
		config = DefaultConfig()
	}

	if err := ValidateConfig(config); err != nil {
		LogPoolEvent(ctx, "pool_creation_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool := &ConnectionPool{
		ctx:         ctx,
		config:      config,
		connections: make(chan *PooledConnection, config.MaxConnections),
		discovery:   NewSRVDiscovery(ctx),
		startTime:   time.Now(),
	}
	pool.dial = pool.createSingleConnection

	if err := pool.discoverServers(); err != nil {
		LogPoolEvent(ctx, "pool_creation_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}

	LogPoolEvent(ctx, "pool_initialized", map[string]any{
		"server_count":    len(pool.servers),
		"max_connections": config.MaxConnections,
		"duration_ms":     time.Since(start).Milliseconds(),
	})
	return pool, nil
}

// discoverServers resolves the configured URLs, or the domain's SRV records.
func (p *ConnectionPool) discoverServers() error {
	var servers []*ServerInfo

	switch {
	case len(p.config.LDAPURLs) > 0:
		for _, url := range p.config.LDAPURLs {
			server, err := ParseLDAPURL(url)
			if err != nil {
				return fmt.Errorf("invalid LDAP URL %s: %w", url, err)
			}
			servers = append(servers, server)
		}
	case p.config.Domain != "":
		ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
		defer cancel()

		discovered, err := p.discovery.DiscoverServers(ctx, p.config.Domain)
		if err != nil {
			return fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	default:
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return errors.New("no servers discovered")
	}

	p.mu.Lock()
	p.servers = servers
	p.mu.Unlock()

	tflog.SubsystemDebug(p.ctx, "pool", "Server discovery completed", map[string]any{
		"server_count": len(servers),
	})
	return nil
}

// Get returns an idle connection or dials a new one.
func (p *ConnectionPool) Get(ctx context.Context) (DirContext, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, NewConnectionError("connection pool is closed", false, nil)
	}

	select {
	case conn := <-p.connections:
		if p.isConnectionHealthy(conn) {
			if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
				if err := p.authenticateConnection(ctx, conn); err != nil {
					p.closeConnection(conn)
					return p.newContext(ctx)
				}
			}
			conn.lastUsed = time.Now()
			conn.released.Store(false)
			atomic.AddInt64(&p.activeConns, 1)
			LogPoolEvent(p.ctx, "connection_acquired", map[string]any{"reused": true})
			return conn, nil
		}
		p.closeConnection(conn)
	default:
	}

	return p.newContext(ctx)
}

func (p *ConnectionPool) newContext(ctx context.Context) (DirContext, error) {
	conn, err := p.createConnection(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// createConnection dials the servers in order, backing off between rounds.
func (p *ConnectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		for _, server := range p.servers {
			conn, err := p.dial(ctx, server)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				LogPoolEvent(p.ctx, "connection_failed", map[string]any{
					"server":  ServerInfoToURL(server),
					"attempt": attempt + 1,
					"error":   err.Error(),
				})

				var connErr *ConnectionError
				if errors.As(err, &connErr) && !connErr.IsRetryable() {
					return nil, err
				}
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			atomic.AddInt64(&p.activeConns, 1)
			LogPoolEvent(p.ctx, "connection_acquired", map[string]any{
				"reused": false,
				"server": ServerInfoToURL(server),
			})
			return conn, nil
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, NewConnectionError("gave up waiting for a connection", false, ctx.Err())
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	stats := p.Stats()
	LogPoolEvent(p.ctx, "all_connections_failed", map[string]any{
		"servers": len(p.servers),
		"errors":  stats.Errors,
		"active":  stats.Active,
	})
	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

// retryableBindError reports whether a failed bind may succeed on another
// attempt. Rejected credentials fail the same way on every server.
func retryableBindError(err error) bool {
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		switch ldapErr.ResultCode {
		case ldap.LDAPResultInvalidCredentials,
			ldap.LDAPResultInappropriateAuthentication,
			ldap.LDAPResultInsufficientAccessRights,
			ldap.LDAPResultConfidentialityRequired,
			ldap.LDAPResultStrongAuthRequired:
			return false
		}
	}
	return true
}

// dialServer opens a transport to server, upgrading with StartTLS when configured.
func (p *ConnectionPool) dialServer(server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)
	dialer := ldap.DialWithDialer(&net.Dialer{Timeout: p.config.Timeout})

	if server.UseTLS {
		return ldap.DialURL(url, dialer, ldap.DialWithTLSConfig(p.config.TLSConfig))
	}

	conn, err := ldap.DialURL(url, dialer)
	if err != nil {
		return nil, err
	}
	if p.config.UseTLS && !p.config.SkipTLS {
		if err := conn.StartTLS(p.config.TLSConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("StartTLS failed: %w", err)
		}
	}
	return conn, nil
}

// createSingleConnection dials and authenticates one server.
func (p *ConnectionPool) createSingleConnection(ctx context.Context, server *ServerInfo) (*PooledConnection, error) {
	url := ServerInfoToURL(server)

	conn, err := p.dialServer(server)
	if err != nil {
		return nil, NewConnectionError("failed to connect to "+url, true, err)
	}
	conn.SetTimeout(p.config.Timeout)

	pooledConn := &PooledConnection{
		conn:         conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	if p.config.HasAuthentication() {
		if err := p.authenticateConnection(ctx, pooledConn); err != nil {
			conn.Close()
			return nil, NewConnectionError("failed to authenticate connection to "+url, retryableBindError(err), err)
		}
	}

	return pooledConn, nil
}

// authenticateConnection binds a pooled connection using the configured method.
func (p *ConnectionPool) authenticateConnection(ctx context.Context, pooledConn *PooledConnection) error {
	if pooledConn == nil || pooledConn.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	authMethod := p.config.GetAuthMethod()
	var err error

	switch authMethod {
	case AuthMethodSimpleBind:
		if p.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		err = pooledConn.conn.Bind(p.config.Username, p.config.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(ctx, pooledConn.conn, p.config, pooledConn.serverInfo)
	case AuthMethodExternal:
		err = pooledConn.conn.ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method: %s", authMethod.String())
	}

	if err != nil {
		pooledConn.authenticated = false
		pooledConn.authTime = time.Time{}
		LogLDAPError(p.ctx, "pool", "bind", err, map[string]any{
			"auth_method": authMethod.String(),
		})
		return err
	}

	pooledConn.authenticated = true
	pooledConn.authTime = time.Now()
	return nil
}

// needsReAuthentication reports whether a connection's bind is missing or stale.
func (p *ConnectionPool) needsReAuthentication(conn *PooledConnection) bool {
	if conn == nil || !conn.authenticated {
		return true
	}
	return time.Since(conn.authTime) > maxAuthAge
}

// returnConnection puts a released connection back, or closes it.
func (p *ConnectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.closeConnection(conn)
		return
	}

	if !p.isConnectionHealthy(conn) {
		p.closeConnection(conn)
		return
	}

	select {
	case p.connections <- conn:
		LogPoolEvent(p.ctx, "connection_released", nil)
	default:
		// pool full
		p.closeConnection(conn)
	}
}

// isConnectionHealthy checks that a connection is open, fresh and bound.
func (p *ConnectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy {
		return false
	}
	if conn.conn.IsClosing() {
		return false
	}
	if time.Since(conn.lastUsed) > p.config.MaxIdleTime {
		return false
	}
	if p.config.HasAuthentication() && !conn.authenticated {
		return false
	}
	return true
}

// closeConnection closes a pooled connection.
func (p *ConnectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.conn.Close()
		conn.healthy = false
		conn.authenticated = false
		conn.authTime = time.Time{}
	}
}

// Close closes all idle connections and shuts down the pool. Connections
// still checked out are closed when they are released.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	LogPoolEvent(p.ctx, "pool_closed", map[string]any{
		"created": atomic.LoadInt64(&p.totalCreated),
		"errors":  atomic.LoadInt64(&p.totalErrors),
	})
	return nil
}

// Stats returns pool statistics.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Total:   len(p.connections) + int(atomic.LoadInt64(&p.activeConns)),
		Active:  atomic.LoadInt64(&p.activeConns),
		Idle:    len(p.connections),
		Created: atomic.LoadInt64(&p.totalCreated),
		Errors:  atomic.LoadInt64(&p.totalErrors),
		Uptime:  time.Since(p.startTime),
	}
}

// SearchAsync starts a search on the underlying connection.
func (pc *PooledConnection) SearchAsync(ctx context.Context, req *ldap.SearchRequest, bufferSize int) ldap.Response {
	return pc.conn.SearchAsync(ctx, req, bufferSize)
}

// Close releases the connection to its pool. Releasing a connection whose
// transport has been lost reports that loss.
func (pc *PooledConnection) Close() error {
	if !pc.released.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if pc.conn == nil || pc.conn.IsClosing() {
		pc.healthy = false
		err = NewConnectionError("connection lost before release", true, ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed")))
	}

	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
	return err
}

func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}
