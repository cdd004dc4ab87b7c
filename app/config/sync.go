package config

import (
	"time"

	"github.com/go-ini/ini"
)

type SyncConfig struct {
	Interval         time.Duration `json:"interval"`
	MaxBuildsPerSync int           `json:"max_builds_per_sync"`
}

func NewSyncConfig(c *ini.Section) SyncConfig {
	return SyncConfig{
		Interval:         c.Key("interval").MustDuration(5 * time.Minute),
		MaxBuildsPerSync: c.Key("max_builds_per_sync").MustInt(10),
	}
}

type NotificationsConfig struct {
	Channel string        `json:"channel"`
	MaxAge  time.Duration `json:"max_age"`
}

func NewNotificationsConfig(c *ini.Section) NotificationsConfig {
	return NotificationsConfig{
		Channel: c.Key("channel").MustString("lifemonitor:notifications"),
		MaxAge:  c.Key("max_age").MustDuration(10 * time.Second),
	}
}
