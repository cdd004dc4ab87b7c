package config

import (
	"os"
	"path/filepath"

	"github.com/go-ini/ini"
)

type StorageConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
	SpoolDir  string `json:"spool_dir"`
}

func NewStorageConfig(c *ini.Section) StorageConfig {
	return StorageConfig{
		Endpoint:  c.Key("endpoint").String(),
		AccessKey: c.Key("access_key").String(),
		SecretKey: c.Key("secret_key").String(),
		Bucket:    c.Key("bucket").MustString("lifemonitor"),
		Region:    c.Key("region").MustString("us-east-1"),
		UseSSL:    c.Key("use_ssl").MustBool(true),
		SpoolDir:  c.Key("spool_dir").MustString(filepath.Join(os.TempDir(), "lifemonitor-spool")),
	}
}

func (c StorageConfig) Enabled() bool {
	return c.Endpoint != ""
}
