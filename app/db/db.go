package db

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	dbMu   sync.Mutex
	dbConn *gorm.DB
	config *Config
)

type Config struct {
	Connection  string
	Debug       bool
	PoolSize    int
	IdleTimeout int
}

func dialectorFor(connection string) (gorm.Dialector, error) {
	uri, err := url.Parse(connection)
	if err != nil {
		return nil, err
	}

	switch uri.Scheme {
	case "sqlite":
		path := uri.Path
		if uri.Host != "" {
			path = uri.Host + path
		}
		return sqlite.Open(path), nil
	case "mysql":
		connStr := fmt.Sprintf("%s@tcp(%s)%s?%s", uri.User.String(), uri.Host, uri.Path, uri.RawQuery)
		return mysql.Open(connStr), nil
	case "postgres", "postgresql":
		return postgres.Open(connection), nil
	}
	return nil, fmt.Errorf("dialector '%s' is not supported", uri.Scheme)
}

func Init(cfg *Config) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if dbConn != nil {
		return nil
	}

	if cfg.PoolSize == 0 {
		cfg.PoolSize = 5
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 3600
	}

	dialector, err := dialectorFor(cfg.Connection)
	if err != nil {
		return err
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return err
	}
	if cfg.Debug {
		conn = conn.Debug()
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}

	poolSize := cfg.PoolSize
	if strings.HasPrefix(cfg.Connection, "sqlite") {
		poolSize = 1
	}
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.IdleTimeout) * time.Second)
	dbConn = conn
	config = cfg
	return nil
}

// Close releases the connection pool so Init can be called again.
func Close() error {
	dbMu.Lock()
	defer dbMu.Unlock()
	if dbConn == nil {
		return nil
	}
	sqlDB, err := dbConn.DB()
	if err != nil {
		return err
	}
	dbConn = nil
	config = nil
	return sqlDB.Close()
}

func GetDBConnection() *gorm.DB {
	return dbConn
}
