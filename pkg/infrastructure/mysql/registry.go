package mysql

import (
	"context"
	"sync"
	"time"

	"gitea.xscloud.ru/xscloud/dbpool/pkg/application/events"
	"gitea.xscloud.ru/xscloud/dbpool/pkg/application/logging"
	liberr "gitea.xscloud.ru/xscloud/dbpool/pkg/common/errors"
)

// Registry owns the mapping from logical pool name to live pool. It is an
// explicit handle constructed at startup and passed to the executor,
// coordinator and bulk loader; there is no package-level state.
type Registry struct {
	connector  Connector
	dispatcher events.Dispatcher
	logger     logging.Logger

	mu    sync.Mutex
	pools map[string]*Pool
}

func NewRegistry(connector Connector, dispatcher events.Dispatcher, logger logging.Logger) *Registry {
	if dispatcher == nil {
		dispatcher = events.NewNopDispatcher()
	}
	return &Registry{
		connector:  connector,
		dispatcher: dispatcher,
		logger:     logger,
		pools:      make(map[string]*Pool),
	}
}

// SetPool creates a pool for name, replacing and closing any existing
// entry. A creation failure removes the partial entry before returning.
func (r *Registry) SetPool(ctx context.Context, name string, config PoolConfig) error {
	if name == "" {
		return &ConfigError{Reason: "pool name must not be empty"}
	}
	if err := config.validate(); err != nil {
		return &ConfigError{Name: name, Reason: err.Error()}
	}

	pool := newPool(name, config, r.connector)

	r.mu.Lock()
	replaced := r.pools[name]
	r.pools[name] = pool
	r.mu.Unlock()

	if replaced != nil {
		if err := replaced.close(); err != nil {
			r.logger.WithField("pool", name).Error(err, "failed to close replaced pool")
		}
	}

	if err := pool.connect(ctx); err != nil {
		r.removeIfSame(name, pool)
		return err
	}

	r.reportLifecycle(ctx, events.TypePoolSet, name, nil)
	return nil
}

// GetPool returns the live pool for name, creating it from config when
// absent. A nil config and no live entry is a ConfigError. A pool that is
// not yet connected is connected before it is returned.
func (r *Registry) GetPool(ctx context.Context, name string, config *PoolConfig) (*Pool, error) {
	if name == "" {
		return nil, &ConfigError{Reason: "pool name must not be empty"}
	}

	r.mu.Lock()
	pool, ok := r.pools[name]
	if !ok {
		if config == nil {
			r.mu.Unlock()
			return nil, &ConfigError{Name: name, Reason: "pool is not configured"}
		}
		if err := config.validate(); err != nil {
			r.mu.Unlock()
			return nil, &ConfigError{Name: name, Reason: err.Error()}
		}
		pool = newPool(name, *config, r.connector)
		r.pools[name] = pool
	}
	created := !ok
	r.mu.Unlock()

	if err := pool.connect(ctx); err != nil {
		r.removeIfSame(name, pool)
		return nil, err
	}

	if created {
		r.reportLifecycle(ctx, events.TypePoolSet, name, nil)
	}
	return pool, nil
}

// ClosePool closes the named pool. The entry is deregistered before the
// underlying close completes, so a lookup racing the close recreates the
// pool instead of reusing a dead handle.
func (r *Registry) ClosePool(name string) error {
	r.mu.Lock()
	pool, ok := r.pools[name]
	if !ok {
		r.mu.Unlock()
		return &NotFoundError{Name: name}
	}
	delete(r.pools, name)
	r.mu.Unlock()

	err := pool.close()
	r.reportLifecycle(context.Background(), events.TypePoolClosed, name, err)
	return err
}

// CloseAllPools closes every tracked pool concurrently, waits for all of
// them and aggregates the failures.
func (r *Registry) CloseAllPools() error {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, pool := range r.pools {
		pools = append(pools, pool)
	}
	r.pools = make(map[string]*Pool)
	r.mu.Unlock()

	errs := make([]error, len(pools))
	var wg sync.WaitGroup
	for i, pool := range pools {
		i, pool := i, pool
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = pool.close()
			r.reportLifecycle(context.Background(), events.TypePoolClosed, pool.Name(), errs[i])
		}()
	}
	wg.Wait()

	return liberr.Join(errs...)
}

func (r *Registry) removeIfSame(name string, pool *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pools[name] == pool {
		delete(r.pools, name)
	}
}

func (r *Registry) reportLifecycle(ctx context.Context, eventType, name string, cause error) {
	logger := r.logger.WithField("pool", name)
	if cause != nil {
		logger.Error(cause, eventType)
	} else {
		logger.Info(eventType)
	}

	event := events.Event{
		Type: eventType,
		Pool: name,
		At:   time.Now(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if err := r.dispatcher.Dispatch(ctx, event); err != nil {
		logger.Warning(err, "failed to dispatch lifecycle event")
	}
}
