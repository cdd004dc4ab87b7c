package config

import (
	"strings"

	"github.com/go-ini/ini"
)

type RegistryConfig struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	URI          string `json:"uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	TokenURL     string `json:"token_url"`
	Enabled      bool   `json:"enabled"`
}

const registrySectionPrefix = "registry."

// NewRegistriesConfig collects every [registry.<name>] section.
func NewRegistriesConfig(file *ini.File) map[string]RegistryConfig {
	result := map[string]RegistryConfig{}
	for _, s := range file.Sections() {
		if !strings.HasPrefix(s.Name(), registrySectionPrefix) {
			continue
		}
		name := strings.TrimPrefix(s.Name(), registrySectionPrefix)
		uri := strings.TrimRight(s.Key("uri").String(), "/")
		result[name] = RegistryConfig{
			Name:         name,
			Type:         s.Key("type").MustString("seek"),
			URI:          uri,
			ClientID:     s.Key("client_id").String(),
			ClientSecret: s.Key("client_secret").String(),
			TokenURL:     s.Key("token_url").MustString(uri + "/oauth/token"),
			Enabled:      s.Key("enabled").MustBool(true),
		}
	}
	return result
}

// NewPeersConfig maps LifeMonitor instance names to their base URLs.
func NewPeersConfig(c *ini.Section) map[string]string {
	peers := map[string]string{}
	for _, k := range c.Keys() {
		peers[k.Name()] = strings.TrimRight(k.String(), "/")
	}
	return peers
}
