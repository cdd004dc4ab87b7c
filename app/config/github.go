package config

import (
	"github.com/go-ini/ini"
)

type GithubConfig struct {
	AppID             int64  `json:"app_id"`
	PrivateKeyPath    string `json:"private_key_path"`
	WebhookSecret     string `json:"-"`
	Bot               string `json:"bot"`
	APIURL            string `json:"api_url"`
	ServiceToken      string `json:"-"`
	ServiceRepository string `json:"service_repository"`
}

func NewGithubConfig(c *ini.Section) GithubConfig {
	return GithubConfig{
		AppID:             c.Key("app_id").MustInt64(0),
		PrivateKeyPath:    c.Key("private_key_path").String(),
		WebhookSecret:     c.Key("webhook_secret").String(),
		Bot:               c.Key("bot").MustString("lifemonitor[bot]"),
		APIURL:            c.Key("api_url").MustString("https://api.github.com"),
		ServiceToken:      c.Key("service_token").String(),
		ServiceRepository: c.Key("service_repository").String(),
	}
}

// Configured reports whether the GitHub App integration can serve webhooks.
func (c GithubConfig) Configured() bool {
	return c.AppID != 0 && c.WebhookSecret != ""
}
