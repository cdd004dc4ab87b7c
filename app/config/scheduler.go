package config

import (
	"github.com/go-ini/ini"
)

// SchedulerConfig holds cron specs for the scheduled plane.
type SchedulerConfig struct {
	Heartbeat          string `json:"heartbeat"`
	UpdateMetrics      string `json:"update_metrics"`
	CheckInstallations string `json:"check_installations"`
	BuildsSync         string `json:"builds_sync"`
}

func NewDefaultSchedulerConfig(c *ini.Section) SchedulerConfig {
	return SchedulerConfig{
		Heartbeat:          c.Key("heartbeat").MustString("@every 1m"),
		UpdateMetrics:      c.Key("update_metrics").MustString("@every 30s"),
		CheckInstallations: c.Key("check_installations").MustString("0 4 * * *"),
		BuildsSync:         c.Key("builds_sync").MustString("@every 5m"),
	}
}
