package events

import (
	"context"
	"time"
)

const (
	TypePoolSet    = "pool_set"
	TypePoolClosed = "pool_closed"
)

// Event describes a pool lifecycle transition.
type Event struct {
	Type  string    `json:"event"`
	Pool  string    `json:"pool"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

func NewNopDispatcher() Dispatcher {
	return nopDispatcher{}
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, Event) error { return nil }
