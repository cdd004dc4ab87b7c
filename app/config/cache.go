package config

import (
	"github.com/go-ini/ini"
)

// CacheConfig timeouts are in seconds.
type CacheConfig struct {
	Type             string `json:"type"`
	RedisAddr        string `json:"redis_addr"`
	RedisPassword    string `json:"redis_password"`
	RedisDB          int    `json:"redis_db"`
	Prefix           string `json:"prefix"`
	DefaultTimeout   int    `json:"default_timeout"`
	BuildTimeout     int    `json:"build_timeout"`
	LastBuildTimeout int    `json:"last_build_timeout"`
	LockTimeout      int    `json:"lock_timeout"`
	JobTimeout       int    `json:"job_timeout"`
}

func NewCacheConfig(c *ini.Section) CacheConfig {
	return CacheConfig{
		Type:             c.Key("type").In("redis", []string{"redis", "memory"}),
		RedisAddr:        c.Key("redis_addr").MustString("localhost:6379"),
		RedisPassword:    c.Key("redis_password").Value(),
		RedisDB:          c.Key("redis_db").MustInt(0),
		Prefix:           c.Key("prefix").MustString("lifemonitor:"),
		DefaultTimeout:   c.Key("default_timeout").MustInt(300),
		BuildTimeout:     c.Key("build_timeout").MustInt(0),
		LastBuildTimeout: c.Key("last_build_timeout").MustInt(60),
		LockTimeout:      c.Key("lock_timeout").MustInt(30),
		JobTimeout:       c.Key("job_timeout").MustInt(3600),
	}
}
