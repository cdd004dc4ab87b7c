package config

import (
	"fmt"

	"github.com/go-ini/ini"
)

type MessagingConfig struct {
	Connection string `json:"connection"`
	Exchange   string `json:"exchange"`
	Workers    int    `json:"workers"`
}

func NewMessagingConfig(c *ini.Section) MessagingConfig {
	connection := c.Key("connection").String()
	if connection == "" {
		host := c.Key("host").MustString("localhost:5672")
		user := c.Key("user").MustString("guest")
		passwd := c.Key("passwd").MustString("guest")
		connection = fmt.Sprintf("rabbit://%s:%s@%s/", user, passwd, host)
	}
	return MessagingConfig{
		Connection: connection,
		Exchange:   c.Key("exchange").MustString("lifemonitor"),
		Workers:    c.Key("workers").MustInt(4),
	}
}
