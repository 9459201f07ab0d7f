package mysql

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	liberr "gitea.xscloud.ru/xscloud/dbpool/pkg/common/errors"
)

// Connector opens a physical connection pool from a PoolConfig. The
// Registry holds exactly one Connector; tests substitute their own.
type Connector interface {
	Open(ctx context.Context, cfg PoolConfig) (PooledClient, error)
}

func NewConnector() Connector {
	return &connector{}
}

type connector struct{}

func (connector) Open(ctx context.Context, cfg PoolConfig) (PooledClient, error) {
	db, err := sqlx.Open(cfg.driverName(), cfg.dsn())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	// database/sql has no connection floor; the minimum maps to the
	// idle set kept warm between commands.
	db.SetMaxIdleConns(cfg.MinConnections)
	db.SetConnMaxLifetime(cfg.ConnectionMaxLifeTime)
	db.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)

	pingErr := db.PingContext(ctx)
	if pingErr != nil {
		return nil, liberr.Join(errors.WithStack(pingErr), db.Close())
	}

	return &pooledClient{db}, nil
}
