package config

import (
	"os"

	"github.com/go-ini/ini"
)

type APIConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	BaseURL      string `json:"base_url"`
	InstanceName string `json:"instance_name"`
}

func NewDefaultAPIConfig(c *ini.Section) APIConfig {
	name := c.Key("instance_name").String()
	if name == "" {
		name = os.Getenv("HOSTNAME")
	}
	return APIConfig{
		Host:         c.Key("host").MustString("0.0.0.0"),
		Port:         c.Key("port").MustInt(8000),
		BaseURL:      c.Key("base_url").MustString("https://localhost:8000"),
		InstanceName: name,
	}
}
