package config

import (
	"fmt"

	"github.com/go-ini/ini"
)

type DatabaseConfig struct {
	Connection  string `json:"connection"`
	Debug       bool   `json:"debug"`
	PoolSize    int    `json:"pool_size"`
	IdleTimeout int    `json:"idle_timeout"`
}

func NewDefaultDatabaseConfig(c *ini.Section) DatabaseConfig {
	debug, _ := c.Key("debug").Bool()
	pool_size, _ := c.Key("pool_size").Int()
	idle_timeout, _ := c.Key("idle_timeout").Int()

	connection := c.Key("connection").String()
	if connection == "" {
		driver := c.Key("driver").MustString("postgres")
		host := c.Key("host").MustString("localhost")
		port := c.Key("port").MustString("5432")
		user := c.Key("user").MustString("lm")
		passwd := c.Key("passwd").Value()
		name := c.Key("name").MustString("lm")
		switch driver {
		case "mysql":
			connection = fmt.Sprintf("mysql://%s:%s@%s:%s/%s?charset=utf8&parseTime=True&loc=Local", user, passwd, host, port, name)
		case "sqlite":
			connection = fmt.Sprintf("sqlite://%s", c.Key("path").MustString("/tmp/lifemonitor.db"))
		default:
			connection = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, passwd, host, port, name)
		}
	}
	return DatabaseConfig{
		Connection:  connection,
		Debug:       debug,
		PoolSize:    pool_size,
		IdleTimeout: idle_timeout,
	}
}
