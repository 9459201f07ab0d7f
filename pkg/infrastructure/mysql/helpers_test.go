package mysql

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	appevents "gitea.xscloud.ru/xscloud/dbpool/pkg/application/events"
	"gitea.xscloud.ru/xscloud/dbpool/pkg/application/logging"
)

func sqliteConfig(t *testing.T) PoolConfig {
	t.Helper()
	return PoolConfig{
		Driver:         "sqlite3",
		DSN:            "file:" + filepath.Join(t.TempDir(), "pool.db") + "?_busy_timeout=5000",
		MaxConnections: 4,
		AcquireTimeout: 5 * time.Second,
	}
}

func newTestRegistry(t *testing.T, connector Connector, dispatcher appevents.Dispatcher) *Registry {
	t.Helper()
	if connector == nil {
		connector = NewConnector()
	}
	registry := NewRegistry(connector, dispatcher, logging.NewNopLogger())
	t.Cleanup(func() {
		_ = registry.CloseAllPools()
	})
	return registry
}

type countingConnector struct {
	inner Connector

	mu        sync.Mutex
	opens     map[string]int
	checkouts map[string]int
}

func newCountingConnector() *countingConnector {
	return &countingConnector{
		inner:     NewConnector(),
		opens:     make(map[string]int),
		checkouts: make(map[string]int),
	}
}

func (c *countingConnector) Open(ctx context.Context, cfg PoolConfig) (PooledClient, error) {
	c.mu.Lock()
	c.opens[cfg.DSN]++
	c.mu.Unlock()

	client, err := c.inner.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &countingClient{PooledClient: client, dsn: cfg.DSN, connector: c}, nil
}

func (c *countingConnector) opened(dsn string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[dsn]
}

func (c *countingConnector) checkedOut(dsn string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkouts[dsn]
}

type countingClient struct {
	PooledClient
	dsn       string
	connector *countingConnector
}

func (c *countingClient) Connection(ctx context.Context) (Connection, error) {
	c.connector.mu.Lock()
	c.connector.checkouts[c.dsn]++
	c.connector.mu.Unlock()
	return c.PooledClient.Connection(ctx)
}

func (c *countingConnector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.opens {
		total += n
	}
	return total
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []appevents.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event appevents.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	types := make([]string, 0, len(d.events))
	for _, event := range d.events {
		types = append(types, event.Type)
	}
	return types
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) WithField(string, interface{}) logging.Logger { return l }
func (l *recordingLogger) WithFields(logging.Fields) logging.Logger     { return l }

func (l *recordingLogger) Debug(args ...interface{})            { l.record(args...) }
func (l *recordingLogger) Info(args ...interface{})             { l.record(args...) }
func (l *recordingLogger) Warning(_ error, args ...interface{}) { l.record(args...) }
func (l *recordingLogger) Error(_ error, args ...interface{})   { l.record(args...) }

func (l *recordingLogger) record(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprint(args...))
}

func (l *recordingLogger) contains(message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, recorded := range l.messages {
		if recorded == message {
			return true
		}
	}
	return false
}
