package mysql

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type poolState int

const (
	stateUninitialized poolState = iota
	stateConnecting
	stateConnected
	stateClosing
	stateClosed
)

// Pool wraps one physical connection pool. It is owned exclusively by the
// Registry; callers address it by name and must not hold a reference
// across calls.
type Pool struct {
	name      string
	config    PoolConfig
	connector Connector

	mu     sync.Mutex
	state  poolState
	client PooledClient
}

func newPool(name string, config PoolConfig, connector Connector) *Pool {
	return &Pool{
		name:      name,
		config:    config,
		connector: connector,
	}
}

func (p *Pool) Name() string {
	return p.name
}

// connect establishes the underlying pool. Holding the pool mutex across
// the open serializes concurrent connects, so the connector runs at most
// once per pool.
func (p *Pool) connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateConnected:
		return nil
	case stateClosing, stateClosed:
		return errors.Errorf("pool %q is closed", p.name)
	}

	p.state = stateConnecting
	client, err := p.connector.Open(ctx, p.config)
	if err != nil {
		p.state = stateUninitialized
		return err
	}

	p.client = client
	p.state = stateConnected
	return nil
}

// Client returns the live underlying pool.
func (p *Pool) Client() (PooledClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateConnected {
		return nil, errors.Errorf("pool %q is not connected", p.name)
	}
	return p.client, nil
}

// Connection checks a dedicated connection out of the pool. Acquisition
// waits at most the configured acquire timeout; the returned connection
// itself is not bound to that deadline.
func (p *Pool) Connection(ctx context.Context) (Connection, error) {
	client, err := p.Client()
	if err != nil {
		return nil, err
	}

	if p.config.AcquireTimeout > 0 {
		acquireCtx, cancel := context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
		conn, acquireErr := client.Connection(acquireCtx)
		return conn, errors.WithStack(acquireErr)
	}

	conn, err := client.Connection(ctx)
	return conn, errors.WithStack(err)
}

func (p *Pool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return nil
	}

	p.state = stateClosing
	var err error
	if p.client != nil {
		err = p.client.Close()
	}
	p.client = nil
	p.state = stateClosed
	return errors.WithStack(err)
}
