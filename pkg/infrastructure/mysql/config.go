package mysql

import (
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultDriver = "mysql"

// PoolConfig describes one named connection pool. A pool built from a
// config never observes later changes to it; reconfiguring requires
// recreating the pool.
type PoolConfig struct {
	Driver   string `yaml:"driver"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`

	// DSN overrides the assembled connection string when set. Required
	// for non-MySQL drivers.
	DSN string `yaml:"dsn"`

	MinConnections int           `yaml:"min_connections"`
	MaxConnections int           `yaml:"max_connections"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	ConnectionMaxLifeTime time.Duration `yaml:"connection_max_lifetime"`
	ConnectionMaxIdleTime time.Duration `yaml:"connection_max_idle_time"`

	Encrypt            bool `yaml:"encrypt"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

func (cfg PoolConfig) driverName() string {
	if cfg.Driver == "" {
		return DefaultDriver
	}
	return cfg.Driver
}

func (cfg PoolConfig) validate() error {
	if cfg.DSN != "" {
		return nil
	}
	if cfg.driverName() != DefaultDriver {
		return errors.Errorf("driver %q requires an explicit dsn", cfg.Driver)
	}
	if cfg.Host == "" {
		return errors.New("host must not be empty")
	}
	if cfg.Database == "" {
		return errors.New("database must not be empty")
	}
	return nil
}

func (cfg PoolConfig) dsn() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	driverCfg := driver.NewConfig()
	driverCfg.User = cfg.User
	driverCfg.Passwd = cfg.Password
	driverCfg.Net = "tcp"
	driverCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	driverCfg.DBName = cfg.Database
	driverCfg.ParseTime = true
	switch {
	case cfg.Encrypt && cfg.InsecureSkipVerify:
		driverCfg.TLSConfig = "skip-verify"
	case cfg.Encrypt:
		driverCfg.TLSConfig = "true"
	}
	return driverCfg.FormatDSN()
}

// ParseConfig decodes a yaml mapping from pool name to PoolConfig,
// typically the startup configuration with "readPool" and "writePool"
// entries.
func ParseConfig(data []byte) (map[string]PoolConfig, error) {
	var configs map[string]PoolConfig
	err := yaml.Unmarshal(data, &configs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for name, cfg := range configs {
		err = cfg.validate()
		if err != nil {
			return nil, &ConfigError{Name: name, Reason: err.Error()}
		}
	}
	return configs, nil
}
