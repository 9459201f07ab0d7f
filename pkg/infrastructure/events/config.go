package events

import "time"

type ConnectionConfig struct {
	User           string
	Password       string
	Host           string
	ConnectTimeout time.Duration
}

type ExchangeConfig struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
}
