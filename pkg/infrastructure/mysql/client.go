package mysql

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Client is the query surface shared by pooled clients, dedicated
// connections and transactions.
type Client interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type Transaction interface {
	Client
	Commit() error
	Rollback() error
}

// Connection is a single physical connection checked out of a pool.
// Callers must Close it to return it.
type Connection interface {
	Client
	BeginTransaction(ctx context.Context, opts *sql.TxOptions) (Transaction, error)
	Close() error
}

// PooledClient wraps one underlying connection pool.
type PooledClient interface {
	Client
	Connection(ctx context.Context) (Connection, error)
	PingContext(ctx context.Context) error
	Close() error
}

type pooledClient struct {
	*sqlx.DB
}

func (c *pooledClient) Connection(ctx context.Context) (Connection, error) {
	connx, err := c.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &connection{Conn: connx}, nil
}

type connection struct {
	*sqlx.Conn
}

func (c *connection) BeginTransaction(ctx context.Context, opts *sql.TxOptions) (Transaction, error) {
	return c.BeginTxx(ctx, opts)
}
