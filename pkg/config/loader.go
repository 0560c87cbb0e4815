package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":9000")
	v.SetDefault("server.wsAddress", "")
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("server.auth.tokenTTL", "24h")
	v.SetDefault("server.auth.adminPassword", "change-me-admin")
	v.SetDefault("server.connectionLimit", 0)
	v.SetDefault("transport.readTimeout", "120s")
	v.SetDefault("transport.writeTimeout", "10s")
	v.SetDefault("transport.sendTimeout", "5s")
	v.SetDefault("transport.maxFrameSize", 1<<20)
	v.SetDefault("storage.dbPath", "data/relay.db")
	v.SetDefault("storage.blobDir", "data/blobs")
	v.SetDefault("history.pageSize", 50)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("ai.keyword", "")
	v.SetDefault("logLevel", "info")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("GORELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
