package config

import (
	"os"

	"github.com/go-ini/ini"
)

const (
	DefaultConfigFile = "/opt/lifemonitor/config.ini"
	configFileEnv     = "LIFEMONITOR_CONFIG"
)

var (
	Config = Load(configFilePath())
)

type Configuration struct {
	API           APIConfig                 `json:"api"`
	Database      DatabaseConfig            `json:"database"`
	Cache         CacheConfig               `json:"cache"`
	Messaging     MessagingConfig           `json:"messaging"`
	LOG           LogConfig                 `json:"log"`
	Github        GithubConfig              `json:"github"`
	Storage       StorageConfig             `json:"storage"`
	Scheduler     SchedulerConfig           `json:"scheduler"`
	Sync          SyncConfig                `json:"sync"`
	Notifications NotificationsConfig       `json:"notifications"`
	Peers         map[string]string         `json:"peers"`
	Registries    map[string]RegistryConfig `json:"registries"`
}

func configFilePath() string {
	if p := os.Getenv(configFileEnv); p != "" {
		return p
	}
	return DefaultConfigFile
}

// Load reads the ini file at path. A missing file yields the defaults.
func Load(path string) Configuration {
	file, err := ini.LooseLoad(path)
	if err != nil {
		file = ini.Empty()
	}
	return fromFile(file)
}

func fromFile(file *ini.File) Configuration {
	return Configuration{
		API:           NewDefaultAPIConfig(file.Section("api")),
		Database:      NewDefaultDatabaseConfig(file.Section("db")),
		Cache:         NewCacheConfig(file.Section("cache")),
		Messaging:     NewMessagingConfig(file.Section("messaging")),
		LOG:           NewDefaultLogConfig(file.Section("log")),
		Github:        NewGithubConfig(file.Section("github")),
		Storage:       NewStorageConfig(file.Section("storage")),
		Scheduler:     NewDefaultSchedulerConfig(file.Section("scheduler")),
		Sync:          NewSyncConfig(file.Section("sync")),
		Notifications: NewNotificationsConfig(file.Section("notifications")),
		Peers:         NewPeersConfig(file.Section("peers")),
		Registries:    NewRegistriesConfig(file),
	}
}

func (c *Configuration) Initialize(configFile string) error {
	if configFile == "" {
		configFile = configFilePath()
	}
	file, err := ini.Load(configFile)
	if err != nil {
		return err
	}
	*c = fromFile(file)
	return nil
}

func Initialize(configFile string) error {
	return Config.Initialize(configFile)
}
