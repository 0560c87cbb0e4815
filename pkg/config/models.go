package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Storage   StorageConfig
	History   HistoryConfig
	AI        AIConfig
	LogLevel  string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	// Address is the raw TCP listener for length-prefixed framed clients.
	Address string
	// WSAddress is the WebSocket gateway carrying the same payloads.
	// Empty disables the gateway.
	WSAddress string `mapstructure:"wsAddress"`
	// ConnectionLimit caps live connections server-wide; zero disables.
	ConnectionLimit int `mapstructure:"connectionLimit"`
	Auth            AuthConfig
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwtSecret"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
	// AdminPassword seeds the initial admin account on first start.
	AdminPassword string `mapstructure:"adminPassword"`
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	SendTimeout  time.Duration `mapstructure:"sendTimeout"`
	MaxFrameSize uint32        `mapstructure:"maxFrameSize"`
}

type StorageConfig struct {
	DBPath  string `mapstructure:"dbPath"`
	BlobDir string `mapstructure:"blobDir"`
}

type HistoryConfig struct {
	PageSize int `mapstructure:"pageSize"`
}

type AIConfig struct {
	Enabled bool
	APIKey  string `mapstructure:"apiKey"`
	Model   string
	// Keyword triggers the bridge anywhere in a message body, in addition
	// to the leading @ai mention.
	Keyword string
}
