package config

import (
	"github.com/go-ini/ini"
)

type LogConfig struct {
	Format          string `json:"format"`
	TimestampFormat string `json:"timestamp_format"`
	DirPath         string `json:"dir_path"`
	Level           string `json:"level"`
	MaxSize         int    `json:"max_size"`
	MaxBackups      int    `json:"max_backups"`
	MaxAge          int    `json:"max_age"`
}

func NewDefaultLogConfig(c *ini.Section) LogConfig {
	return LogConfig{
		Format:          "{{.timestamp}} {{.pid}} [{{.name}}] [{{.levelname}}] [{{.requestId}} {{.job}}] {{.message}}",
		TimestampFormat: "2006-01-02 15:04:05.000",
		DirPath:         c.Key("dir_path").String(),
		Level:           c.Key("level").MustString("info"),
		MaxSize:         c.Key("max_size").MustInt(100),
		MaxBackups:      c.Key("max_backups").MustInt(5),
		MaxAge:          c.Key("max_age").MustInt(30),
	}
}
