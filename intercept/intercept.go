// Package intercept wraps a database/sql driver so that every statement is
// rewritten through a set of patches before it reaches the real driver. The
// wrapped driver behaves exactly like the original when no patches are
// registered.
package intercept

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/shibukawa/sqlpatch"
)

// Rendering is one intercepted statement, before and after patching.
type Rendering struct {
	Original string
	Patched  string
}

// Mock holds the patches applied to intercepted statements and a log of every
// rewrite performed. It is safe for concurrent use; a single Mock is shared by
// all connections of a wrapped driver.
type Mock struct {
	mu         sync.Mutex
	patches    []*sqlpatch.Patch
	opts       sqlpatch.Options
	renderings []Rendering
}

// NewMock builds a mock with an initial set of patches.
func NewMock(patches ...*sqlpatch.Patch) *Mock {
	return &Mock{patches: patches}
}

// AddPatch registers another patch. It applies to statements intercepted from
// then on.
func (m *Mock) AddPatch(p *sqlpatch.Patch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches = append(m.patches, p)
}

// SetOptions overrides the engine options for intercepted statements.
func (m *Mock) SetOptions(opts sqlpatch.Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
}

// Reset drops all patches and the rendering log.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches = nil
	m.renderings = nil
}

// Renderings returns a copy of the rewrite log in interception order.
func (m *Mock) Renderings() []Rendering {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rendering, len(m.renderings))
	copy(out, m.renderings)
	return out
}

// Rewrite applies the registered patches to one statement and logs the
// result. With no patches the statement passes through untouched and
// unlogged. Engine errors surface as query errors to the caller.
func (m *Mock) Rewrite(query string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.patches) == 0 {
		return query, nil
	}
	patched, err := sqlpatch.ApplyWith(query, m.opts, m.patches...)
	if err != nil {
		return "", err
	}
	m.renderings = append(m.renderings, Rendering{Original: query, Patched: patched})
	return patched, nil
}

// Wrap returns a driver that rewrites every statement through the mock before
// delegating to d.
func Wrap(d driver.Driver, m *Mock) driver.Driver {
	return &wrappedDriver{wrapped: d, mock: m}
}

// Register wraps d and registers it with database/sql under name. Like
// sql.Register, it must not be called twice with the same name.
func Register(name string, d driver.Driver, m *Mock) {
	sql.Register(name, Wrap(d, m))
}

type wrappedDriver struct {
	wrapped driver.Driver
	mock    *Mock
}

func (d *wrappedDriver) Open(name string) (driver.Conn, error) {
	c, err := d.wrapped.Open(name)
	if err != nil {
		return nil, err
	}
	return &conn{wrapped: c, mock: d.mock}, nil
}

func (d *wrappedDriver) OpenConnector(name string) (driver.Connector, error) {
	if dc, ok := d.wrapped.(driver.DriverContext); ok {
		c, err := dc.OpenConnector(name)
		if err != nil {
			return nil, err
		}
		return &connector{wrapped: c, driver: d}, nil
	}
	return dsnConnector{dsn: name, driver: d}, nil
}

// connector wraps a driver.Connector from the underlying driver.
type connector struct {
	wrapped driver.Connector
	driver  *wrappedDriver
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn2, err := c.wrapped.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{wrapped: conn2, mock: c.driver.mock}, nil
}

func (c *connector) Driver() driver.Driver { return c.driver }

// dsnConnector serves drivers that predate driver.DriverContext.
type dsnConnector struct {
	dsn    string
	driver *wrappedDriver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver { return c.driver }

type conn struct {
	wrapped driver.Conn
	mock    *Mock
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	patched, err := c.mock.Rewrite(query)
	if err != nil {
		return nil, err
	}
	return c.wrapped.Prepare(patched)
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	patched, err := c.mock.Rewrite(query)
	if err != nil {
		return nil, err
	}
	if pc, ok := c.wrapped.(driver.ConnPrepareContext); ok {
		return pc.PrepareContext(ctx, patched)
	}
	return c.wrapped.Prepare(patched)
}

// QueryContext rewrites and delegates when the underlying connection supports
// direct queries. The capability check comes first so the ErrSkip fallback to
// Prepare does not consume side-effect entries twice.
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.wrapped.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	patched, err := c.mock.Rewrite(query)
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, patched, args)
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.wrapped.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	patched, err := c.mock.Rewrite(query)
	if err != nil {
		return nil, err
	}
	return e.ExecContext(ctx, patched, args)
}

func (c *conn) Begin() (driver.Tx, error) {
	return c.wrapped.Begin() //nolint:staticcheck // fallback for drivers without BeginTx
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.wrapped.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.wrapped.Begin() //nolint:staticcheck // fallback for drivers without BeginTx
}

func (c *conn) Ping(ctx context.Context) error {
	if p, ok := c.wrapped.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *conn) ResetSession(ctx context.Context) error {
	if r, ok := c.wrapped.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *conn) IsValid() bool {
	if v, ok := c.wrapped.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *conn) Close() error {
	return c.wrapped.Close()
}
